package database

import (
	"context"
)

// PersonReader provides read-only access to the missing-person registry
type PersonReader interface {
	// GetPerson retrieves a person by ID, returns nil if not found
	GetPerson(ctx context.Context, id string) (*Person, error)
	// FindPersonByName looks a person up by name. Names are normalized before
	// comparison (lowercase, no diacritics, dashes to spaces) so "jan-novak"
	// matches "Jan Novák". Returns nil if not found.
	FindPersonByName(ctx context.Context, name string) (*Person, error)
	// ListPersons returns all persons ordered by name
	ListPersons(ctx context.Context) ([]Person, error)
}

// PersonWriter provides write access to the registry
type PersonWriter interface {
	PersonReader

	// CreatePerson inserts a person and returns it with its generated ID
	CreatePerson(ctx context.Context, name string) (*Person, error)
}

// EmbeddingReader provides read-only access to reference embeddings
type EmbeddingReader interface {
	// Get retrieves an embedding by ID, returns nil if not found
	Get(ctx context.Context, id int64) (*StoredEmbedding, error)
	// HasImageURL checks if an embedding was already stored for the image URL
	HasImageURL(ctx context.Context, imageURL string) (bool, error)
	// Count returns the total number of embeddings stored
	Count(ctx context.Context) (int, error)
	// FindSimilarWithDistance finds the nearest embeddings with cosine
	// distance below maxDistance, closest first
	FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]StoredEmbedding, []float64, error)
	// GetAll returns every stored embedding ordered by ID
	GetAll(ctx context.Context) ([]StoredEmbedding, error)
}

// EmbeddingWriter provides write access to reference embeddings
type EmbeddingWriter interface {
	EmbeddingReader

	// Save stores an embedding and returns its ID
	Save(ctx context.Context, emb StoredEmbedding) (int64, error)
	// Delete removes an embedding and drops it from any in-memory index
	Delete(ctx context.Context, id int64) error
}

// MatchRecordWriter persists audit records of best matches
type MatchRecordWriter interface {
	SaveMatchRecord(ctx context.Context, rec MatchRecord) error
	// RecentMatchRecords returns the newest records for a subject, newest first
	RecentMatchRecords(ctx context.Context, subjectID string, limit int) ([]MatchRecord, error)
}
