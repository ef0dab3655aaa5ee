// Package store defines the catalog storage contract and its backends.
package store

import (
	"errors"

	"github.com/moviekeep/moviekeep/model"
)

var (
	// ErrNotFound covers both an absent user and an absent movie. A movie
	// that exists but belongs to another user maps to the same error so
	// callers cannot probe for existence.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateUsername is returned by AddUser before anything is
	// written when the username is already taken.
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrInvalidCredential is returned by UpdateUser and DeleteUser when
	// the supplied plaintext password does not match the stored hash.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrCorrupt means the persisted medium could not be read or parsed.
	// It is surfaced immediately and never retried.
	ErrCorrupt = errors.New("storage corrupt")

	// ErrUnknownBackend is returned by New for an unconfigured selector.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// NewUser carries the fields needed to register a user. Password is
// plaintext here and hashed before it is persisted.
type NewUser struct {
	Name     string
	Username string
	Email    string
	Password string
}

// UserUpdate holds replacement profile fields. Empty fields are left
// unchanged.
type UserUpdate struct {
	Name     string
	Username string
	Email    string
}

// MovieUpdate holds replacement movie fields. Empty Title/Year and a zero
// Rating are left unchanged.
type MovieUpdate struct {
	Title  string
	Year   string
	Rating float64
}

// Store is the contract every backend implements identically in behavior
// and differently in mechanism. Backends are stateless handles: each call
// re-reads durable state, so callers always see the latest committed data,
// but two handles on the same files need external coordination.
type Store interface {
	// GetAllUsers returns every registered user ordered by id.
	GetAllUsers() ([]model.User, error)

	// FindUser resolves a user by exactly one selector. A non-zero userID
	// wins over username; with both zero it returns ErrNotFound.
	FindUser(username string, userID int) (*model.User, error)

	// CheckPassword reports whether plain matches the user's stored hash.
	// An absent user is false, not an error.
	CheckPassword(userID int, plain string) (bool, error)

	// AddUser validates the input, rejects a duplicate username, assigns
	// the next id, hashes the password and persists the user.
	AddUser(u NewUser) (*model.User, error)

	// UpdateUser re-authenticates with the current password before
	// applying the profile changes.
	UpdateUser(userID int, upd UserUpdate, password string) error

	// DeleteUser re-authenticates, then removes the user and every movie
	// the user owns.
	DeleteUser(userID int, password string) error

	// GetUserMovies returns the user's movies, empty when there are none,
	// ErrNotFound when the user does not exist.
	GetUserMovies(userID int) ([]model.Movie, error)

	// AddMovie never fails with an error: it reports (ok, message) so the
	// caller can treat failure as a normal branch.
	AddMovie(userID int, m model.Movie) (bool, string)

	// GetMovie returns the movie only when it belongs to userID.
	GetMovie(userID, movieID int) (*model.Movie, error)

	// UpdateMovie applies the changes to a movie owned by userID.
	UpdateMovie(userID, movieID int, upd MovieUpdate) error

	// DeleteMovie removes the movie and returns a confirmation message
	// naming the deleted title.
	DeleteMovie(userID, movieID int) (string, error)

	// Close releases the underlying medium. A no-op for file backends.
	Close() error
}
