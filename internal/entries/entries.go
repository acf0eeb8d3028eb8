// Package entries keeps the user's visit log: which mountains they skied, how
// often, and how they rank them.
package entries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits.
const (
	MaxLocationLen = 100
	MaxContentLen  = 50
)

var (
	// ErrNotFound means no entry has the requested ID.
	ErrNotFound = errors.New("entry not found")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("invalid entry")
)

// Entry is one stored visit record.
type Entry struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	Visited   int       `json:"visited"`
	Ranking   int       `json:"ranking"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft carries the user-editable fields of an Entry.
type Draft struct {
	Location string `json:"location"`
	Visited  int    `json:"visited"`
	Ranking  int    `json:"ranking"`
	Content  string `json:"content"`
}

// Normalize trims text fields and validates limits.
func (d Draft) Normalize() (Draft, error) {
	d.Location = strings.TrimSpace(d.Location)
	d.Content = strings.TrimSpace(d.Content)
	switch {
	case d.Location == "":
		return Draft{}, fmt.Errorf("%w: location is required", ErrInvalid)
	case utf8.RuneCountInString(d.Location) > MaxLocationLen:
		return Draft{}, fmt.Errorf("%w: location exceeds %d characters", ErrInvalid, MaxLocationLen)
	case utf8.RuneCountInString(d.Content) > MaxContentLen:
		return Draft{}, fmt.Errorf("%w: content exceeds %d characters", ErrInvalid, MaxContentLen)
	case d.Visited < 0:
		return Draft{}, fmt.Errorf("%w: visited must be >= 0", ErrInvalid)
	case d.Ranking < 0:
		return Draft{}, fmt.Errorf("%w: ranking must be >= 0", ErrInvalid)
	}
	return d, nil
}

// Store persists entries. List returns entries oldest first.
type Store interface {
	Create(ctx context.Context, d Draft) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	Update(ctx context.Context, id string, d Draft) (Entry, error)
	Delete(ctx context.Context, id string) error
}
