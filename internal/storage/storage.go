// Package storage provides the corpus of reference images and fetches image
// bytes by name or locator.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// ErrUnsupportedLocator is returned for a locator scheme the fetcher does not
// serve.
var ErrUnsupportedLocator = errors.New("unsupported locator")

// MaxObjectSize caps the number of bytes read for a single object.
const MaxObjectSize = 50 << 20

// Object describes one corpus item.
type Object struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Lister enumerates the corpus.
type Lister interface {
	List(ctx context.Context) ([]Object, error)
}

// Fetcher returns the bytes of a named object.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Bucket is a listable corpus whose objects can be fetched and addressed.
type Bucket interface {
	Lister
	Fetcher
	// URL returns the public locator of the named object.
	URL(name string) string
}
