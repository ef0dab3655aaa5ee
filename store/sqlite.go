package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/moviekeep/moviekeep/model"
)

// SqliteStore keeps the catalog in a SQLite database with declared foreign
// keys and cascade deletes:
//
//	users(id, name, username UNIQUE, email UNIQUE, password_hash)
//	movies(id, title, year, rating, poster, owner_id -> users.id)
//	reviews(id, user_id -> users.id, movie_id -> movies.id, text)
//
// Deleting a user removes its movies and reviews transitively; deleting a
// movie removes its reviews. Reviews exist only in this backend; the
// document and flat-file backends have no equivalent. User ids come from
// AUTOINCREMENT, so a deleted id is never handed out again. Movie ids are
// global here, unlike the per-user numbering of the document backend.
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSqliteStore opens (creating if needed) the database and bootstraps
// the schema.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	// Both pragmas ride the DSN: a plain `PRAGMA foreign_keys=ON` via
	// Exec only reaches the one pooled connection that runs it, and the
	// cascades must hold on every connection database/sql hands out.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			username TEXT NOT NULL UNIQUE,
			email TEXT UNIQUE,
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS movies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			year TEXT,
			rating REAL,
			poster TEXT,
			owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			movie_id INTEGER NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
			text TEXT NOT NULL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

const userColumns = "id, name, username, email, password_hash"

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var email sql.NullString
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &email, &u.PasswordHash); err != nil {
		return nil, err
	}
	u.Email = email.String
	return &u, nil
}

// nullable maps an empty string to NULL so the UNIQUE(email) constraint
// ignores users without an email.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *SqliteStore) findUser(username string, userID int) (*model.User, error) {
	var row *sql.Row
	switch {
	case userID != 0:
		row = s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", userID)
	case username != "":
		row = s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE username = ?", username)
	default:
		return nil, ErrNotFound
	}
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SqliteStore) GetAllUsers() ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query("SELECT " + userColumns + " FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *SqliteStore) FindUser(username string, userID int) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findUser(username, userID)
}

func (s *SqliteStore) CheckPassword(userID int, plain string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, err := s.findUser("", userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.VerifyPassword(plain), nil
}

func (s *SqliteStore) AddUser(nu NewUser) (*model.User, error) {
	if err := model.ValidateCredentials(nu.Name, nu.Password); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Defensive pre-check: friendlier than the engine's raw constraint
	// violation. The UNIQUE index still backs it.
	if _, err := s.findUser(nu.Username, 0); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateUsername, nu.Username)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	hash, err := model.HashPassword(nu.Password)
	if err != nil {
		return nil, err
	}
	res, err := s.db.Exec(
		"INSERT INTO users (name, username, email, password_hash) VALUES (?, ?, ?, ?)",
		strings.TrimSpace(nu.Name), strings.TrimSpace(nu.Username), nullable(strings.TrimSpace(nu.Email)), hash,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.findUser("", int(id))
}

func (s *SqliteStore) UpdateUser(userID int, upd UserUpdate, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.findUser("", userID)
	if err != nil {
		return err
	}
	if !u.VerifyPassword(password) {
		return ErrInvalidCredential
	}
	if v := strings.TrimSpace(upd.Username); v != "" && v != u.Username {
		if _, err := s.findUser(v, 0); err == nil {
			return fmt.Errorf("%w: %q", ErrDuplicateUsername, v)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	applyUserUpdate(u, upd)
	_, err = s.db.Exec(
		"UPDATE users SET name = ?, username = ?, email = ? WHERE id = ?",
		u.Name, u.Username, nullable(u.Email), userID,
	)
	if err != nil {
		return fmt.Errorf("updating user %d: %w", userID, err)
	}
	return nil
}

func (s *SqliteStore) DeleteUser(userID int, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.findUser("", userID)
	if err != nil {
		return err
	}
	if !u.VerifyPassword(password) {
		return ErrInvalidCredential
	}
	// Movies and reviews go with the declared cascades.
	if _, err := s.db.Exec("DELETE FROM users WHERE id = ?", userID); err != nil {
		return fmt.Errorf("deleting user %d: %w", userID, err)
	}
	return nil
}

func (s *SqliteStore) GetUserMovies(userID int) ([]model.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.findUser("", userID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		"SELECT id, title, year, rating, poster, owner_id FROM movies WHERE owner_id = ? ORDER BY id",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movies := []model.Movie{}
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, *m)
	}
	return movies, rows.Err()
}

func scanMovie(row interface{ Scan(...any) error }) (*model.Movie, error) {
	var m model.Movie
	var year, poster sql.NullString
	var rating sql.NullFloat64
	if err := row.Scan(&m.ID, &m.Title, &year, &rating, &poster, &m.OwnerID); err != nil {
		return nil, err
	}
	m.Year = year.String
	m.Rating = rating.Float64
	m.Poster = poster.String
	return &m, nil
}

func (s *SqliteStore) AddMovie(userID int, m model.Movie) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.findUser("", userID); err != nil {
		return false, fmt.Sprintf("user id %d is not valid", userID)
	}
	_, err := s.db.Exec(
		"INSERT INTO movies (title, year, rating, poster, owner_id) VALUES (?, ?, ?, ?, ?)",
		m.Title, nullable(m.Year), m.Rating, nullable(m.Poster), userID,
	)
	if err != nil {
		return false, fmt.Sprintf("adding movie: %v", err)
	}
	return true, fmt.Sprintf("%s added", m.Title)
}

func (s *SqliteStore) getMovie(userID, movieID int) (*model.Movie, error) {
	// Ownership is checked jointly with the id: a movie owned by someone
	// else is the same not-found as a missing one.
	row := s.db.QueryRow(
		"SELECT id, title, year, rating, poster, owner_id FROM movies WHERE id = ? AND owner_id = ?",
		movieID, userID,
	)
	m, err := scanMovie(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: movie %d", ErrNotFound, movieID)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *SqliteStore) GetMovie(userID, movieID int) (*model.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMovie(userID, movieID)
}

func (s *SqliteStore) UpdateMovie(userID, movieID int, upd MovieUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.getMovie(userID, movieID)
	if err != nil {
		return err
	}
	applyMovieUpdate(m, upd)
	_, err = s.db.Exec(
		"UPDATE movies SET title = ?, year = ?, rating = ? WHERE id = ?",
		m.Title, nullable(m.Year), m.Rating, movieID,
	)
	if err != nil {
		return fmt.Errorf("updating movie %d: %w", movieID, err)
	}
	return nil
}

func (s *SqliteStore) DeleteMovie(userID, movieID int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.getMovie(userID, movieID)
	if err != nil {
		return "", err
	}
	if _, err := s.db.Exec("DELETE FROM movies WHERE id = ?", movieID); err != nil {
		return "", fmt.Errorf("deleting movie %d: %w", movieID, err)
	}
	return fmt.Sprintf("%s deleted", m.Title), nil
}

// AddReview stores a review for a movie visible to the reviewer. Reviews
// are a relational-only feature; the other backends do not implement them.
func (s *SqliteStore) AddReview(userID, movieID int, text string) (*model.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getMovie(userID, movieID); err != nil {
		return nil, err
	}
	res, err := s.db.Exec(
		"INSERT INTO reviews (user_id, movie_id, text) VALUES (?, ?, ?)",
		userID, movieID, text,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting review: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Review{ID: int(id), UserID: userID, MovieID: movieID, Text: text}, nil
}

// MovieReviews returns the reviews of one movie ordered by id.
func (s *SqliteStore) MovieReviews(movieID int) ([]model.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryReviews("SELECT id, user_id, movie_id, text FROM reviews WHERE movie_id = ? ORDER BY id", movieID)
}

// AllReviews returns every review ordered by id.
func (s *SqliteStore) AllReviews() ([]model.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryReviews("SELECT id, user_id, movie_id, text FROM reviews ORDER BY id")
}

func (s *SqliteStore) queryReviews(query string, args ...any) ([]model.Review, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reviews := []model.Review{}
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.MovieID, &r.Text); err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
