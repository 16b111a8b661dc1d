// Package database defines the persistence contracts for the missing-person
// registry, reference embeddings and match records.
package database

import (
	"time"
)

// Person is a row of the missing-person registry.
type Person struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// StoredEmbedding is a reference embedding of one corpus image.
type StoredEmbedding struct {
	ID        int64
	PersonID  string
	ImageURL  string
	Embedding []float32
	Extractor string // name of the extractor that produced the vector
	Dim       int
	CreatedAt time.Time
}

// MatchRecord is a persisted audit entry for a best match.
type MatchRecord struct {
	ID           string
	SubjectID    string
	QueryURL     string
	CandidateID  string
	CandidateURL string
	Confidence   float64
	Strategy     string
	Action       string
	CreatedAt    time.Time
}
