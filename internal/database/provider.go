package database

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by the getters before a backend registers itself.
var ErrNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex(ctx context.Context) error
}

var (
	postgresPersonWriter      func() PersonWriter
	postgresEmbeddingWriter   func() EmbeddingWriter
	postgresMatchRecordWriter func() MatchRecordWriter
	postgresEmbeddingHNSW     HNSWRebuilder // Singleton for embedding HNSW rebuilding
	postgresInitialized       bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	persons func() PersonWriter,
	embeddings func() EmbeddingWriter,
	records func() MatchRecordWriter,
) {
	postgresPersonWriter = persons
	postgresEmbeddingWriter = embeddings
	postgresMatchRecordWriter = records
	postgresInitialized = true
}

// RegisterEmbeddingHNSWRebuilder registers the HNSW rebuilder for the embedding repository.
func RegisterEmbeddingHNSWRebuilder(rebuilder HNSWRebuilder) {
	postgresEmbeddingHNSW = rebuilder
}

// GetEmbeddingHNSWRebuilder returns the registered embedding HNSW rebuilder, or nil if not registered.
func GetEmbeddingHNSWRebuilder() HNSWRebuilder {
	return postgresEmbeddingHNSW
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

func get[T any](ctor func() T, what string) (T, error) {
	var zero T
	if !postgresInitialized {
		return zero, ErrNotInitialized
	}
	if ctor == nil {
		return zero, fmt.Errorf("PostgreSQL %s not registered", what)
	}
	return ctor(), nil
}

// GetPersonReader returns a PersonReader from the PostgreSQL backend
func GetPersonReader(ctx context.Context) (PersonReader, error) {
	return get(postgresPersonWriter, "person repository")
}

// GetPersonWriter returns a PersonWriter from the PostgreSQL backend
func GetPersonWriter(ctx context.Context) (PersonWriter, error) {
	return get(postgresPersonWriter, "person repository")
}

// GetEmbeddingReader returns an EmbeddingReader from the PostgreSQL backend
func GetEmbeddingReader(ctx context.Context) (EmbeddingReader, error) {
	return get(postgresEmbeddingWriter, "embedding repository")
}

// GetEmbeddingWriter returns an EmbeddingWriter from the PostgreSQL backend
func GetEmbeddingWriter(ctx context.Context) (EmbeddingWriter, error) {
	return get(postgresEmbeddingWriter, "embedding repository")
}

// GetMatchRecordWriter returns a MatchRecordWriter from the PostgreSQL backend
func GetMatchRecordWriter(ctx context.Context) (MatchRecordWriter, error) {
	return get(postgresMatchRecordWriter, "match record repository")
}
