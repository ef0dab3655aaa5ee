package store_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/moviekeep/moviekeep/model"
	"github.com/moviekeep/moviekeep/store"
)

func ann() store.NewUser {
	return store.NewUser{Name: "Ann", Username: "ann1", Password: "secret"}
}

func dune() model.Movie {
	return model.Movie{Title: "Dune", Year: "2021", Rating: 8.0}
}

// runContractTests runs the shared behavior suite against a backend. Each
// subtest gets a fresh store so id sequences start from empty state.
func runContractTests(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("ids are dense from empty", func(t *testing.T) {
		s := newStore(t)
		for i, username := range []string{"ann1", "bob1", "cat1"} {
			u, err := s.AddUser(store.NewUser{Name: "User" + username, Username: username, Password: "secret"})
			if err != nil {
				t.Fatal(err)
			}
			if u.ID != i+1 {
				t.Fatalf("user %d: expected id %d, got %d", i, i+1, u.ID)
			}
		}
	})

	t.Run("duplicate username rejected, prior state unchanged", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.AddUser(ann()); err != nil {
			t.Fatal(err)
		}
		_, err := s.AddUser(store.NewUser{Name: "Other", Username: "ann1", Password: "hunter2"})
		if !errors.Is(err, store.ErrDuplicateUsername) {
			t.Fatalf("expected ErrDuplicateUsername, got %v", err)
		}
		users, err := s.GetAllUsers()
		if err != nil {
			t.Fatal(err)
		}
		if len(users) != 1 {
			t.Fatalf("expected 1 user after rejected add, got %d", len(users))
		}
		if users[0].Name != "Ann" {
			t.Fatalf("expected original record to survive, got %+v", users[0])
		}
	})

	t.Run("invalid user data rejected before allocation", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.AddUser(store.NewUser{Name: "ab", Username: "short", Password: "secret"}); err == nil {
			t.Fatal("expected validation error for short name")
		}
		if _, err := s.AddUser(store.NewUser{Name: "Fine", Username: "fine", Password: "xy"}); err == nil {
			t.Fatal("expected validation error for short password")
		}
		users, err := s.GetAllUsers()
		if err != nil {
			t.Fatal(err)
		}
		if len(users) != 0 {
			t.Fatalf("expected no users, got %d", len(users))
		}
	})

	t.Run("find user selectors", func(t *testing.T) {
		s := newStore(t)
		created, err := s.AddUser(ann())
		if err != nil {
			t.Fatal(err)
		}
		byName, err := s.FindUser("ann1", 0)
		if err != nil {
			t.Fatal(err)
		}
		if byName.ID != created.ID {
			t.Fatalf("expected id %d, got %d", created.ID, byName.ID)
		}
		byID, err := s.FindUser("", created.ID)
		if err != nil {
			t.Fatal(err)
		}
		if byID.Username != "ann1" {
			t.Fatalf("expected ann1, got %q", byID.Username)
		}
		// id selector wins over a bogus username
		both, err := s.FindUser("nosuch", created.ID)
		if err != nil {
			t.Fatal(err)
		}
		if both.ID != created.ID {
			t.Fatalf("id selector should win, got %+v", both)
		}
		if _, err := s.FindUser("", 0); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound with no selector, got %v", err)
		}
		if _, err := s.FindUser("ghost", 0); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown username, got %v", err)
		}
	})

	t.Run("check password", func(t *testing.T) {
		s := newStore(t)
		u, err := s.AddUser(ann())
		if err != nil {
			t.Fatal(err)
		}
		ok, err := s.CheckPassword(u.ID, "secret")
		if err != nil || !ok {
			t.Fatalf("expected true, nil; got %v, %v", ok, err)
		}
		ok, err = s.CheckPassword(u.ID, "wrong")
		if err != nil || ok {
			t.Fatalf("expected false, nil; got %v, %v", ok, err)
		}
		ok, err = s.CheckPassword(999, "secret")
		if err != nil || ok {
			t.Fatalf("absent user: expected false, nil; got %v, %v", ok, err)
		}
	})

	t.Run("movie round trip", func(t *testing.T) {
		s := newStore(t)
		u, err := s.AddUser(ann())
		if err != nil {
			t.Fatal(err)
		}
		ok, msg := s.AddMovie(u.ID, dune())
		if !ok {
			t.Fatalf("AddMovie failed: %s", msg)
		}
		movies, err := s.GetUserMovies(u.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(movies) != 1 {
			t.Fatalf("expected 1 movie, got %d", len(movies))
		}
		m := movies[0]
		if m.ID != 1 || m.OwnerID != u.ID {
			t.Fatalf("expected id=1 owner=%d, got id=%d owner=%d", u.ID, m.ID, m.OwnerID)
		}
		if m.Title != "Dune" || m.Year != "2021" || m.Rating != 8.0 {
			t.Fatalf("fields did not survive the round trip: %+v", m)
		}
		got, err := s.GetMovie(u.ID, m.ID)
		if err != nil {
			t.Fatal(err)
		}
		if *got != m {
			t.Fatalf("GetMovie mismatch: %+v vs %+v", *got, m)
		}

		confirmation, err := s.DeleteMovie(u.ID, m.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(confirmation, "Dune") {
			t.Fatalf("confirmation should name the title, got %q", confirmation)
		}
		movies, err = s.GetUserMovies(u.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(movies) != 0 {
			t.Fatalf("expected empty list after delete, got %d", len(movies))
		}
	})

	t.Run("deleting a movie twice fails the second time", func(t *testing.T) {
		s := newStore(t)
		u, err := s.AddUser(ann())
		if err != nil {
			t.Fatal(err)
		}
		if ok, msg := s.AddMovie(u.ID, dune()); !ok {
			t.Fatalf("AddMovie failed: %s", msg)
		}
		if _, err := s.DeleteMovie(u.ID, 1); err != nil {
			t.Fatal(err)
		}
		if _, err := s.DeleteMovie(u.ID, 1); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("movie of another user is not visible", func(t *testing.T) {
		s := newStore(t)
		owner, err := s.AddUser(ann())
		if err != nil {
			t.Fatal(err)
		}
		other, err := s.AddUser(store.NewUser{Name: "Bob", Username: "bob1", Password: "secret"})
		if err != nil {
			t.Fatal(err)
		}
		if ok, msg := s.AddMovie(owner.ID, dune()); !ok {
			t.Fatalf("AddMovie failed: %s", msg)
		}
		movies, err := s.GetUserMovies(owner.ID)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetMovie(other.ID, movies[0].ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for non-owner, got %v", err)
		}
	})

	t.Run("update movie", func(t *testing.T) {
		s := newStore(t)
		u, err := s.AddUser(ann())
		if err != nil {
			t.Fatal(err)
		}
		if ok, msg := s.AddMovie(u.ID, dune()); !ok {
			t.Fatalf("AddMovie failed: %s", msg)
		}
		if err := s.UpdateMovie(u.ID, 1, store.MovieUpdate{Title: "Dune: Part One", Rating: 8.2}); err != nil {
			t.Fatal(err)
		}
		m, err := s.GetMovie(u.ID, 1)
		if err != nil {
			t.Fatal(err)
		}
		if m.Title != "Dune: Part One" || m.Rating != 8.2 {
			t.Fatalf("update not applied: %+v", m)
		}
		if m.Year != "2021" {
			t.Fatalf("unset field must stay, got year %q", m.Year)
		}
		if err := s.UpdateMovie(u.ID, 42, store.MovieUpdate{Title: "x"}); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update user requires the current password", func(t *testing.T) {
		s := newStore(t)
		u, err := s.AddUser(ann())
		if err != nil {
			t.Fatal(err)
		}
		err = s.UpdateUser(u.ID, store.UserUpdate{Name: "Anna"}, "wrong")
		if !errors.Is(err, store.ErrInvalidCredential) {
			t.Fatalf("expected ErrInvalidCredential, got %v", err)
		}
		unchanged, err := s.FindUser("", u.ID)
		if err != nil {
			t.Fatal(err)
		}
		if unchanged.Name != "Ann" {
			t.Fatalf("rejected update must not mutate, got %q", unchanged.Name)
		}
		if err := s.UpdateUser(u.ID, store.UserUpdate{Name: "Anna"}, "secret"); err != nil {
			t.Fatal(err)
		}
		changed, err := s.FindUser("", u.ID)
		if err != nil {
			t.Fatal(err)
		}
		if changed.Name != "Anna" {
			t.Fatalf("expected Anna, got %q", changed.Name)
		}
		err = s.UpdateUser(999, store.UserUpdate{Name: "Nobody"}, "secret")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("update user cannot take another user's username", func(t *testing.T) {
		s := newStore(t)
		a, err := s.AddUser(ann())
		if err != nil {
			t.Fatal(err)
		}
		b, err := s.AddUser(store.NewUser{Name: "Bob", Username: "bob1", Password: "hunter2"})
		if err != nil {
			t.Fatal(err)
		}
		err = s.UpdateUser(b.ID, store.UserUpdate{Username: "ann1"}, "hunter2")
		if !errors.Is(err, store.ErrDuplicateUsername) {
			t.Fatalf("expected ErrDuplicateUsername, got %v", err)
		}
		unchanged, err := s.FindUser("", b.ID)
		if err != nil {
			t.Fatal(err)
		}
		if unchanged.Username != "bob1" {
			t.Fatalf("rejected update must not mutate, got %q", unchanged.Username)
		}
		// Re-submitting your own username is not a collision.
		if err := s.UpdateUser(a.ID, store.UserUpdate{Username: "ann1", Name: "Anna"}, "secret"); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("delete user cascades to movies", func(t *testing.T) {
		s := newStore(t)
		u, err := s.AddUser(ann())
		if err != nil {
			t.Fatal(err)
		}
		s.AddMovie(u.ID, dune())
		s.AddMovie(u.ID, model.Movie{Title: "Alien", Year: "1979", Rating: 8.5})

		if err := s.DeleteUser(u.ID, "wrong"); !errors.Is(err, store.ErrInvalidCredential) {
			t.Fatalf("expected ErrInvalidCredential, got %v", err)
		}
		if err := s.DeleteUser(u.ID, "secret"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.FindUser("", u.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if _, err := s.GetUserMovies(u.ID); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for deleted user's movies, got %v", err)
		}
		if err := s.DeleteUser(u.ID, "secret"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("deleting a non-max user does not recycle its id", func(t *testing.T) {
		s := newStore(t)
		for _, username := range []string{"ann1", "bob1", "cat1"} {
			if _, err := s.AddUser(store.NewUser{Name: "User" + username, Username: username, Password: "secret"}); err != nil {
				t.Fatal(err)
			}
		}
		if err := s.DeleteUser(2, "secret"); err != nil {
			t.Fatal(err)
		}
		u, err := s.AddUser(store.NewUser{Name: "Dana", Username: "dana1", Password: "secret"})
		if err != nil {
			t.Fatal(err)
		}
		if u.ID == 2 {
			t.Fatal("freed id must not be reused")
		}
		if u.ID != 4 {
			t.Fatalf("expected id 4, got %d", u.ID)
		}
	})

	t.Run("add movie for unknown user reports failure", func(t *testing.T) {
		s := newStore(t)
		ok, msg := s.AddMovie(42, dune())
		if ok {
			t.Fatal("expected ok=false for unknown user")
		}
		if msg == "" {
			t.Fatal("expected a failure message")
		}
	})
}

func newJSONStore(t *testing.T) store.Store {
	s, err := store.NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newCSVStore(t *testing.T) store.Store {
	s, err := store.NewCSVStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newSqliteStore(t *testing.T) store.Store {
	s, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJSONStoreContract(t *testing.T)   { runContractTests(t, newJSONStore) }
func TestCSVStoreContract(t *testing.T)    { runContractTests(t, newCSVStore) }
func TestSqliteStoreContract(t *testing.T) { runContractTests(t, newSqliteStore) }

func TestFactory(t *testing.T) {
	for _, backend := range []string{"json", "csv", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			s, err := store.New(backend, t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			s.Close()
		})
	}

	for _, backend := range []string{"", "redis", "JSON"} {
		t.Run("rejects "+backend, func(t *testing.T) {
			_, err := store.New(backend, t.TempDir())
			if !errors.Is(err, store.ErrUnknownBackend) {
				t.Fatalf("expected ErrUnknownBackend, got %v", err)
			}
		})
	}
}

func TestJSONStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewJSONStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.AddUser(ann())
	if err != nil {
		t.Fatal(err)
	}
	s.AddMovie(u.ID, dune())

	raw, err := os.ReadFile(filepath.Join(dir, "catalog.json"))
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Version int                       `json:"version"`
		Users   map[string]map[string]any `json:"users"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Version != 1 {
		t.Fatalf("expected version 1, got %d", doc.Version)
	}
	rec, ok := doc.Users["1"]
	if !ok {
		t.Fatalf("expected users keyed by id, got %v", doc.Users)
	}
	if rec["username"] != "ann1" {
		t.Fatalf("expected username field, got %v", rec)
	}
	if _, ok := rec["password_hash"]; !ok {
		t.Fatal("expected password_hash field in the document")
	}
	nested, ok := rec["movies"].([]any)
	if !ok || len(nested) != 1 {
		t.Fatalf("expected one nested movie, got %v", rec["movies"])
	}
}

func TestJSONStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewJSONStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "catalog.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAllUsers(); !errors.Is(err, store.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestCSVStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewCSVStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	header := "id,name,username,email,password_hash,movies\n"
	if err := os.WriteFile(filepath.Join(dir, "users.csv"), []byte(header+"abc,Ann,ann1,,h,\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAllUsers(); !errors.Is(err, store.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for non-numeric id, got %v", err)
	}
}

func TestCSVStoreCascadeOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewCSVStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.AddUser(ann())
	if err != nil {
		t.Fatal(err)
	}
	other, err := s.AddUser(store.NewUser{Name: "Bob", Username: "bob1", Password: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	s.AddMovie(u.ID, dune())
	s.AddMovie(other.ID, model.Movie{Title: "Alien", Year: "1979"})
	s.AddMovie(u.ID, model.Movie{Title: "Arrival", Year: "2016"})

	if err := s.DeleteUser(u.ID, "secret"); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "movies.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 { // header + Bob's movie
		t.Fatalf("expected 2 lines in movies.csv, got %d: %q", len(lines), lines)
	}
	for _, line := range lines[1:] {
		if strings.HasSuffix(line, ","+"1") {
			t.Fatalf("movie row still references deleted owner: %q", line)
		}
	}

	// Bob's catalog survives.
	movies, err := s.GetUserMovies(other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 1 || movies[0].Title != "Alien" {
		t.Fatalf("expected Bob to keep Alien, got %+v", movies)
	}
}

func TestCSVStoreMovieReferenceStripped(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewCSVStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.AddUser(ann())
	if err != nil {
		t.Fatal(err)
	}
	s.AddMovie(u.ID, dune())
	s.AddMovie(u.ID, model.Movie{Title: "Alien", Year: "1979"})

	if _, err := s.DeleteMovie(u.ID, 1); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "users.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), ",2") && !strings.Contains(string(raw), "\"2\"") {
		t.Fatalf("expected remaining movie reference 2 in users.csv: %q", string(raw))
	}
	movies, err := s.GetUserMovies(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(movies) != 1 || movies[0].ID != 2 {
		t.Fatalf("expected only movie 2 to remain, got %+v", movies)
	}
}

func TestSqliteStoreReviews(t *testing.T) {
	s, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	u, err := s.AddUser(ann())
	if err != nil {
		t.Fatal(err)
	}
	if ok, msg := s.AddMovie(u.ID, dune()); !ok {
		t.Fatalf("AddMovie failed: %s", msg)
	}
	movies, err := s.GetUserMovies(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	movieID := movies[0].ID

	r, err := s.AddReview(u.ID, movieID, "still holds up")
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != 1 || r.UserID != u.ID || r.MovieID != movieID {
		t.Fatalf("unexpected review: %+v", r)
	}
	if _, err := s.AddReview(u.ID, 999, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown movie, got %v", err)
	}

	reviews, err := s.MovieReviews(movieID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 1 || reviews[0].Text != "still holds up" {
		t.Fatalf("unexpected reviews: %+v", reviews)
	}

	// Deleting the movie takes its reviews with it.
	if _, err := s.DeleteMovie(u.ID, movieID); err != nil {
		t.Fatal(err)
	}
	reviews, err = s.AllReviews()
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 0 {
		t.Fatalf("expected reviews to cascade with the movie, got %+v", reviews)
	}
}

func TestSqliteStoreUserCascadeIncludesReviews(t *testing.T) {
	s, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	u, err := s.AddUser(ann())
	if err != nil {
		t.Fatal(err)
	}
	s.AddMovie(u.ID, dune())
	if _, err := s.AddReview(u.ID, 1, "great"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteUser(u.ID, "secret"); err != nil {
		t.Fatal(err)
	}
	reviews, err := s.AllReviews()
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 0 {
		t.Fatalf("expected reviews to cascade with the user, got %+v", reviews)
	}
}

func TestSqliteStoreEmailUniqueness(t *testing.T) {
	s, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	first := ann()
	first.Email = "ann@example.com"
	if _, err := s.AddUser(first); err != nil {
		t.Fatal(err)
	}
	clash := store.NewUser{Name: "Bob", Username: "bob1", Email: "ann@example.com", Password: "secret"}
	if _, err := s.AddUser(clash); err == nil {
		t.Fatal("expected the engine to reject a duplicate email")
	}

	// Users without an email never clash with each other.
	if _, err := s.AddUser(store.NewUser{Name: "Cat", Username: "cat1", Password: "secret"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddUser(store.NewUser{Name: "Dan", Username: "dan1", Password: "secret"}); err != nil {
		t.Fatal(err)
	}
}
