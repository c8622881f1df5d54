// Package store contains entities and persistence for users and their
// topic preferences.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is an error that is returned when the requested entity is not found.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned on a unique-key conflict.
var ErrAlreadyExists = errors.New("already exists")

// Interface defines methods for store
type Interface interface {
	Create(ctx context.Context, u User, topics []string) error
	GetByEmail(ctx context.Context, email string) (User, error)
	ListPreferences(ctx context.Context, userID string) ([]string, error)
	UpsertPreferences(ctx context.Context, userID string, topics []string) error
}

// User is a struct that contains the user's data. PasswordHash is a bcrypt
// hash, never the plain password.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}
