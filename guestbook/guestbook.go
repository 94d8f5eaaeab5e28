package guestbook

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxWishes is the most entries any snapshot will ever carry.
const MaxWishes = 1000

var ErrEmptyField = errors.New("name and message must not be empty")

// Wish is a single guestbook entry. Entries are immutable once written and
// CreatedAt stays nil until the backing collection has acknowledged the write
// and assigned a timestamp.
type Wish struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Message   string     `db:"message" json:"message"`
	CreatedAt *time.Time `db:"-" json:"created_at,omitempty"`
}

// Collection is the external document collection behind the guestbook.
// Implementations only need to support appending and an ordered, capped read
// plus a change signal; nothing is ever edited or deleted.
type Collection interface {
	Append(ctx context.Context, name, message string) (Wish, error)
	Latest(ctx context.Context, limit int) ([]Wish, error)
	Changes(ctx context.Context) (<-chan struct{}, error)
}

// Normalise trims both fields and rejects the pair when either is empty.
func Normalise(name, message string) (string, string, error) {
	name = strings.TrimSpace(name)
	message = strings.TrimSpace(message)
	if name == "" || message == "" {
		return "", "", ErrEmptyField
	}
	return name, message, nil
}

// ClampLimit keeps a requested snapshot size within (0, MaxWishes].
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxWishes {
		return MaxWishes
	}
	return limit
}
