package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/moviekeep/moviekeep/model"
)

// JSONStore persists the entire catalog as one nested document:
//
//	{"version": 1, "users": {"<id>": {..., "movies": [...]}}}
//
// Every operation is read-whole-file, mutate in memory, write-whole-file.
// Movies live inside their owner's record, so deleting a user can never
// leave an orphan. Movie ids are scoped per user.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

type document struct {
	Version int                   `json:"version"`
	Users   map[string]model.User `json:"users"`
}

// NewJSONStore seeds the document file with the empty shape when it does
// not exist yet.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &JSONStore{path: filepath.Join(dir, "catalog.json")}
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		if err := s.save(&document{Version: 1, Users: map[string]model.User{}}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *JSONStore) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{Version: 1, Users: map[string]model.User{}}, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, s.path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrCorrupt, s.path, err)
	}
	if doc.Users == nil {
		doc.Users = map[string]model.User{}
	}
	return &doc, nil
}

func (s *JSONStore) save(doc *document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o644)
}

func (s *JSONStore) GetAllUsers() ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(doc.Users))
	for _, u := range doc.Users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *JSONStore) FindUser(username string, userID int) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	u, err := findInDocument(doc, username, userID)
	if err != nil {
		return nil, err
	}
	out := *u
	return &out, nil
}

// findInDocument honors the id selector first, then the username. Both
// zero means not found.
func findInDocument(doc *document, username string, userID int) (*model.User, error) {
	if userID != 0 {
		u, ok := doc.Users[strconv.Itoa(userID)]
		if !ok {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return &u, nil
	}
	if username != "" {
		for _, u := range doc.Users {
			if u.Username == username {
				return &u, nil
			}
		}
		return nil, fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	return nil, ErrNotFound
}

func (s *JSONStore) CheckPassword(userID int, plain string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return false, err
	}
	u, ok := doc.Users[strconv.Itoa(userID)]
	if !ok {
		return false, nil
	}
	return u.VerifyPassword(plain), nil
}

func (s *JSONStore) AddUser(nu NewUser) (*model.User, error) {
	if err := model.ValidateCredentials(nu.Name, nu.Password); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, u := range doc.Users {
		if u.Username == nu.Username {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateUsername, nu.Username)
		}
	}
	hash, err := model.HashPassword(nu.Password)
	if err != nil {
		return nil, err
	}
	id := 0
	for key := range doc.Users {
		if n, err := strconv.Atoi(key); err == nil && n > id {
			id = n
		}
	}
	id++
	user := model.User{
		ID:           id,
		Name:         strings.TrimSpace(nu.Name),
		Username:     strings.TrimSpace(nu.Username),
		Email:        strings.TrimSpace(nu.Email),
		PasswordHash: hash,
		Movies:       []model.Movie{},
	}
	doc.Users[strconv.Itoa(id)] = user
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *JSONStore) UpdateUser(userID int, upd UserUpdate, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	key := strconv.Itoa(userID)
	u, ok := doc.Users[key]
	if !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if !u.VerifyPassword(password) {
		return ErrInvalidCredential
	}
	if v := strings.TrimSpace(upd.Username); v != "" && v != u.Username {
		if _, err := findInDocument(doc, v, 0); err == nil {
			return fmt.Errorf("%w: %q", ErrDuplicateUsername, v)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	applyUserUpdate(&u, upd)
	doc.Users[key] = u
	return s.save(doc)
}

func applyUserUpdate(u *model.User, upd UserUpdate) {
	if v := strings.TrimSpace(upd.Name); v != "" {
		u.Name = v
	}
	if v := strings.TrimSpace(upd.Username); v != "" {
		u.Username = v
	}
	if v := strings.TrimSpace(upd.Email); v != "" {
		u.Email = v
	}
}

func (s *JSONStore) DeleteUser(userID int, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	key := strconv.Itoa(userID)
	u, ok := doc.Users[key]
	if !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if !u.VerifyPassword(password) {
		return ErrInvalidCredential
	}
	// The movies vanish with the record; nothing to cascade by hand.
	delete(doc.Users, key)
	return s.save(doc)
}

func (s *JSONStore) GetUserMovies(userID int) ([]model.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	u, ok := doc.Users[strconv.Itoa(userID)]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	movies := make([]model.Movie, len(u.Movies))
	copy(movies, u.Movies)
	return movies, nil
}

func (s *JSONStore) AddMovie(userID int, m model.Movie) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return false, err.Error()
	}
	key := strconv.Itoa(userID)
	u, ok := doc.Users[key]
	if !ok {
		return false, fmt.Sprintf("user id %d is not valid", userID)
	}
	id := 0
	for _, existing := range u.Movies {
		if existing.ID > id {
			id = existing.ID
		}
	}
	m.ID = id + 1
	m.OwnerID = userID
	u.Movies = append(u.Movies, m)
	doc.Users[key] = u
	if err := s.save(doc); err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("%s added", m.Title)
}

func (s *JSONStore) GetMovie(userID, movieID int) (*model.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	u, ok := doc.Users[strconv.Itoa(userID)]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	for _, m := range u.Movies {
		if m.ID == movieID {
			out := m
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: movie %d", ErrNotFound, movieID)
}

func (s *JSONStore) UpdateMovie(userID, movieID int, upd MovieUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	key := strconv.Itoa(userID)
	u, ok := doc.Users[key]
	if !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	for i := range u.Movies {
		if u.Movies[i].ID == movieID {
			applyMovieUpdate(&u.Movies[i], upd)
			doc.Users[key] = u
			return s.save(doc)
		}
	}
	return fmt.Errorf("%w: movie %d", ErrNotFound, movieID)
}

func applyMovieUpdate(m *model.Movie, upd MovieUpdate) {
	if v := strings.TrimSpace(upd.Title); v != "" {
		m.Title = v
	}
	if v := strings.TrimSpace(upd.Year); v != "" {
		m.Year = v
	}
	if upd.Rating != 0 {
		m.Rating = upd.Rating
	}
}

func (s *JSONStore) DeleteMovie(userID, movieID int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return "", err
	}
	key := strconv.Itoa(userID)
	u, ok := doc.Users[key]
	if !ok {
		return "", fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	for i, m := range u.Movies {
		if m.ID == movieID {
			u.Movies = append(u.Movies[:i], u.Movies[i+1:]...)
			doc.Users[key] = u
			if err := s.save(doc); err != nil {
				return "", err
			}
			return fmt.Sprintf("%s deleted", m.Title), nil
		}
	}
	return "", fmt.Errorf("%w: movie %d", ErrNotFound, movieID)
}

func (s *JSONStore) Close() error { return nil }
