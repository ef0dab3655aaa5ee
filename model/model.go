// Package model defines the entities shared by every storage backend.
package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	minNameLength     = 3
	maxNameLength     = 100
	minPasswordLength = 3
)

// ErrInvalidUserData is returned when submitted user fields fail validation.
var ErrInvalidUserData = errors.New("invalid user data")

// User is a registered catalog owner. PasswordHash is opaque; callers go
// through HashPassword and VerifyPassword. Movies is populated by backends
// that keep movies nested inside the user record; the flat-file and
// relational backends expose movies through their own queries instead.
type User struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Username     string  `json:"username"`
	Email        string  `json:"email,omitempty"`
	PasswordHash string  `json:"password_hash"`
	Movies       []Movie `json:"movies"`
}

// Movie belongs to exactly one user. ID is scoped per owner in the document
// backend and global in the flat-file and relational backends.
type Movie struct {
	ID      int     `json:"id"`
	Title   string  `json:"title"`
	Year    string  `json:"year"`
	Rating  float64 `json:"rating,omitempty"`
	Poster  string  `json:"poster,omitempty"`
	OwnerID int     `json:"owner_id"`
}

// Review is only supported by the relational backend.
type Review struct {
	ID      int    `json:"id"`
	UserID  int    `json:"user_id"`
	MovieID int    `json:"movie_id"`
	Text    string `json:"text"`
}

// ValidateCredentials checks registration input before any id is allocated
// or anything is written.
func ValidateCredentials(name, password string) error {
	name = strings.TrimSpace(name)
	n := len([]rune(name))
	if n < minNameLength || n >= maxNameLength {
		return fmt.Errorf("%w: name must be between %d and %d characters", ErrInvalidUserData, minNameLength, maxNameLength)
	}
	if isAllDigits(name) {
		return fmt.Errorf("%w: name must not be numeric", ErrInvalidUserData)
	}
	if len([]rune(password)) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUserData, minPasswordLength)
	}
	return nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
