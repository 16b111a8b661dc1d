// Package audit hands best matches to human-review sinks. Recording is fire
// and forget: the matching pipeline never waits for or fails on a sink.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-finder/internal/database"
)

const (
	// ActionImageMatch tags records produced by a corpus match.
	ActionImageMatch = "image_match"

	// SchemaVersionV1 is the first version of the published event payload.
	SchemaVersionV1 = 1

	// EventTypeMatchRecorded is the event type of published records.
	EventTypeMatchRecorded = "face_finder.match.recorded"
)

// Record is one audit entry for the best match of a request.
type Record struct {
	ID           string    `json:"id"`
	SubjectID    string    `json:"subject_id"`
	QueryURL     string    `json:"query_url"`
	CandidateID  string    `json:"candidate_id"`
	CandidateURL string    `json:"candidate_url"`
	Confidence   float64   `json:"confidence"`
	Strategy     string    `json:"strategy"`
	Action       string    `json:"action"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewRecord fills the ID, action and timestamp of a match record.
func NewRecord(subjectID, queryURL, candidateID, candidateURL string, confidence float64, strategy string) Record {
	return Record{
		ID:           uuid.NewString(),
		SubjectID:    subjectID,
		QueryURL:     queryURL,
		CandidateID:  candidateID,
		CandidateURL: candidateURL,
		Confidence:   confidence,
		Strategy:     strategy,
		Action:       ActionImageMatch,
		CreatedAt:    time.Now().UTC(),
	}
}

// MatchRecord converts r to its database row.
func (r Record) MatchRecord() database.MatchRecord {
	return database.MatchRecord{
		ID:           r.ID,
		SubjectID:    r.SubjectID,
		QueryURL:     r.QueryURL,
		CandidateID:  r.CandidateID,
		CandidateURL: r.CandidateURL,
		Confidence:   r.Confidence,
		Strategy:     r.Strategy,
		Action:       r.Action,
		CreatedAt:    r.CreatedAt,
	}
}

// Event is the transport-neutral payload published for a record.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EmittedAt     time.Time `json:"emitted_at"`
	Record        Record    `json:"record"`
}

// NewEvent wraps r in a versioned event.
func NewEvent(r Record) Event {
	return Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMatchRecorded,
		EmittedAt:     time.Now().UTC(),
		Record:        r,
	}
}

// Recorder persists or publishes audit records.
type Recorder interface {
	Record(ctx context.Context, r Record) error
}
