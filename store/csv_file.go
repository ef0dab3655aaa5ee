package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/moviekeep/moviekeep/model"
)

// CSVStore simulates a relational schema with two delimited files:
//
//	users.csv   id,name,username,email,password_hash,movies
//	movies.csv  id,title,year,rating,poster,owner_id
//
// The movies column of a user row is a comma-joined list of movie ids, the
// foreign keys into movies.csv; each movie row carries its owner id as the
// back-reference. There is no file-level transaction: a multi-step
// mutation is two sequential whole-file rewrites. Only the user-file write
// is rollback-protected, by restoring a pre-mutation snapshot when the
// rewrite fails. Movie ids are global, taken from the movie-file length so
// the file stays append-friendly.
type CSVStore struct {
	mu        sync.Mutex
	userPath  string
	moviePath string
}

var (
	userHeader  = []string{"id", "name", "username", "email", "password_hash", "movies"}
	movieHeader = []string{"id", "title", "year", "rating", "poster", "owner_id"}
)

// userRow is one users.csv record: the user plus its movie-id references.
type userRow struct {
	user     model.User
	movieIDs []int
}

// NewCSVStore seeds both files with their headers when absent.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &CSVStore{
		userPath:  filepath.Join(dir, "users.csv"),
		moviePath: filepath.Join(dir, "movies.csv"),
	}
	if err := seedCSV(s.userPath, userHeader); err != nil {
		return nil, err
	}
	if err := seedCSV(s.moviePath, movieHeader); err != nil {
		return nil, err
	}
	return s, nil
}

func seedCSV(path string, header []string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func readRecords(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrCorrupt, path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[1:], nil // drop the header
}

func (s *CSVStore) readUsers() ([]userRow, error) {
	records, err := readRecords(s.userPath)
	if err != nil {
		return nil, err
	}
	rows := make([]userRow, 0, len(records))
	for _, rec := range records {
		if len(rec) != len(userHeader) {
			return nil, fmt.Errorf("%w: %s: malformed row %v", ErrCorrupt, s.userPath, rec)
		}
		id, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad user id %q", ErrCorrupt, s.userPath, rec[0])
		}
		row := userRow{user: model.User{
			ID:           id,
			Name:         rec[1],
			Username:     rec[2],
			Email:        rec[3],
			PasswordHash: rec[4],
		}}
		for _, part := range strings.Split(rec[5], ",") {
			if part == "" {
				continue
			}
			mid, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: bad movie reference %q", ErrCorrupt, s.userPath, part)
			}
			row.movieIDs = append(row.movieIDs, mid)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *CSVStore) readMovies() ([]model.Movie, error) {
	records, err := readRecords(s.moviePath)
	if err != nil {
		return nil, err
	}
	movies := make([]model.Movie, 0, len(records))
	for _, rec := range records {
		if len(rec) != len(movieHeader) {
			return nil, fmt.Errorf("%w: %s: malformed row %v", ErrCorrupt, s.moviePath, rec)
		}
		id, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad movie id %q", ErrCorrupt, s.moviePath, rec[0])
		}
		owner, err := strconv.Atoi(rec[5])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad owner id %q", ErrCorrupt, s.moviePath, rec[5])
		}
		rating := 0.0
		if rec[3] != "" {
			rating, err = strconv.ParseFloat(rec[3], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: bad rating %q", ErrCorrupt, s.moviePath, rec[3])
			}
		}
		movies = append(movies, model.Movie{
			ID:      id,
			Title:   rec[1],
			Year:    rec[2],
			Rating:  rating,
			Poster:  rec[4],
			OwnerID: owner,
		})
	}
	return movies, nil
}

func (s *CSVStore) writeUserRecords(rows []userRow) error {
	f, err := os.Create(s.userPath)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(userHeader); err != nil {
		return err
	}
	for _, row := range rows {
		ids := make([]string, len(row.movieIDs))
		for i, id := range row.movieIDs {
			ids[i] = strconv.Itoa(id)
		}
		rec := []string{
			strconv.Itoa(row.user.ID),
			row.user.Name,
			row.user.Username,
			row.user.Email,
			row.user.PasswordHash,
			strings.Join(ids, ","),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeUsers rewrites users.csv, restoring the pre-mutation snapshot when
// the rewrite fails. The movie file gets no such protection.
func (s *CSVStore) writeUsers(rows []userRow) error {
	snapshot, snapErr := s.readUsers()
	if err := s.writeUserRecords(rows); err != nil {
		if snapErr == nil {
			_ = s.writeUserRecords(snapshot)
		}
		return fmt.Errorf("writing %s: %w", s.userPath, err)
	}
	return nil
}

func (s *CSVStore) writeMovies(movies []model.Movie) error {
	f, err := os.Create(s.moviePath)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(movieHeader); err != nil {
		return err
	}
	for _, m := range movies {
		rating := ""
		if m.Rating != 0 {
			rating = strconv.FormatFloat(m.Rating, 'g', -1, 64)
		}
		rec := []string{
			strconv.Itoa(m.ID),
			m.Title,
			m.Year,
			rating,
			m.Poster,
			strconv.Itoa(m.OwnerID),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func findRow(rows []userRow, username string, userID int) int {
	if userID != 0 {
		for i := range rows {
			if rows[i].user.ID == userID {
				return i
			}
		}
		return -1
	}
	if username != "" {
		for i := range rows {
			if rows[i].user.Username == username {
				return i
			}
		}
	}
	return -1
}

func (s *CSVStore) GetAllUsers() ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readUsers()
	if err != nil {
		return nil, err
	}
	users := make([]model.User, len(rows))
	for i, row := range rows {
		users[i] = row.user
	}
	return users, nil
}

func (s *CSVStore) FindUser(username string, userID int) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readUsers()
	if err != nil {
		return nil, err
	}
	i := findRow(rows, username, userID)
	if i < 0 {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	u := rows[i].user
	return &u, nil
}

func (s *CSVStore) CheckPassword(userID int, plain string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readUsers()
	if err != nil {
		return false, err
	}
	i := findRow(rows, "", userID)
	if i < 0 {
		return false, nil
	}
	return rows[i].user.VerifyPassword(plain), nil
}

func (s *CSVStore) AddUser(nu NewUser) (*model.User, error) {
	if err := model.ValidateCredentials(nu.Name, nu.Password); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readUsers()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.user.Username == nu.Username {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateUsername, nu.Username)
		}
	}
	hash, err := model.HashPassword(nu.Password)
	if err != nil {
		return nil, err
	}
	id := 0
	for _, row := range rows {
		if row.user.ID > id {
			id = row.user.ID
		}
	}
	id++
	user := model.User{
		ID:           id,
		Name:         strings.TrimSpace(nu.Name),
		Username:     strings.TrimSpace(nu.Username),
		Email:        strings.TrimSpace(nu.Email),
		PasswordHash: hash,
	}
	rows = append(rows, userRow{user: user})
	if err := s.writeUsers(rows); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *CSVStore) UpdateUser(userID int, upd UserUpdate, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readUsers()
	if err != nil {
		return err
	}
	i := findRow(rows, "", userID)
	if i < 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if !rows[i].user.VerifyPassword(password) {
		return ErrInvalidCredential
	}
	if v := strings.TrimSpace(upd.Username); v != "" && v != rows[i].user.Username {
		if findRow(rows, v, 0) >= 0 {
			return fmt.Errorf("%w: %q", ErrDuplicateUsername, v)
		}
	}
	applyUserUpdate(&rows[i].user, upd)
	return s.writeUsers(rows)
}

func (s *CSVStore) DeleteUser(userID int, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readUsers()
	if err != nil {
		return err
	}
	i := findRow(rows, "", userID)
	if i < 0 {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if !rows[i].user.VerifyPassword(password) {
		return ErrInvalidCredential
	}
	// Cascade by hand: the owner's movie rows go first, then the user row.
	movies, err := s.readMovies()
	if err != nil {
		return err
	}
	kept := movies[:0]
	for _, m := range movies {
		if m.OwnerID != userID {
			kept = append(kept, m)
		}
	}
	if err := s.writeMovies(kept); err != nil {
		return err
	}
	rows = append(rows[:i], rows[i+1:]...)
	return s.writeUsers(rows)
}

func (s *CSVStore) GetUserMovies(userID int) ([]model.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userMovies(userID)
}

func (s *CSVStore) userMovies(userID int) ([]model.Movie, error) {
	rows, err := s.readUsers()
	if err != nil {
		return nil, err
	}
	if findRow(rows, "", userID) < 0 {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	movies, err := s.readMovies()
	if err != nil {
		return nil, err
	}
	owned := []model.Movie{}
	for _, m := range movies {
		if m.OwnerID == userID {
			owned = append(owned, m)
		}
	}
	return owned, nil
}

func (s *CSVStore) AddMovie(userID int, m model.Movie) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readUsers()
	if err != nil {
		return false, err.Error()
	}
	i := findRow(rows, "", userID)
	if i < 0 {
		return false, fmt.Sprintf("user id %d is not valid", userID)
	}
	movies, err := s.readMovies()
	if err != nil {
		return false, err.Error()
	}
	m.ID = len(movies) + 1
	m.OwnerID = userID

	// Two rewrites with no transaction across them: the reference in the
	// user file lands first, then the movie row.
	rows[i].movieIDs = append(rows[i].movieIDs, m.ID)
	if err := s.writeUsers(rows); err != nil {
		return false, err.Error()
	}
	movies = append(movies, m)
	if err := s.writeMovies(movies); err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("%s added", m.Title)
}

func (s *CSVStore) GetMovie(userID, movieID int) (*model.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	movies, err := s.readMovies()
	if err != nil {
		return nil, err
	}
	for _, m := range movies {
		if m.ID == movieID && m.OwnerID == userID {
			out := m
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: movie %d", ErrNotFound, movieID)
}

func (s *CSVStore) UpdateMovie(userID, movieID int, upd MovieUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	movies, err := s.readMovies()
	if err != nil {
		return err
	}
	for i := range movies {
		if movies[i].ID == movieID && movies[i].OwnerID == userID {
			applyMovieUpdate(&movies[i], upd)
			return s.writeMovies(movies)
		}
	}
	return fmt.Errorf("%w: movie %d", ErrNotFound, movieID)
}

func (s *CSVStore) DeleteMovie(userID, movieID int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	movies, err := s.readMovies()
	if err != nil {
		return "", err
	}
	title := ""
	found := false
	kept := movies[:0]
	for _, m := range movies {
		if m.ID == movieID && m.OwnerID == userID {
			title, found = m.Title, true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return "", fmt.Errorf("%w: movie %d", ErrNotFound, movieID)
	}
	if err := s.writeMovies(kept); err != nil {
		return "", err
	}
	// Strip the dangling reference out of the owner's id list.
	rows, err := s.readUsers()
	if err != nil {
		return "", err
	}
	if i := findRow(rows, "", userID); i >= 0 {
		ids := rows[i].movieIDs[:0]
		for _, id := range rows[i].movieIDs {
			if id != movieID {
				ids = append(ids, id)
			}
		}
		rows[i].movieIDs = ids
		if err := s.writeUsers(rows); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s deleted", title), nil
}

func (s *CSVStore) Close() error { return nil }
