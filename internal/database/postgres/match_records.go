package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-finder/internal/database"
)

// MatchRecordRepository persists audit records of best matches
type MatchRecordRepository struct {
	pool *Pool
}

// NewMatchRecordRepository creates a new PostgreSQL match record repository
func NewMatchRecordRepository(pool *Pool) *MatchRecordRepository {
	return &MatchRecordRepository{pool: pool}
}

// SaveMatchRecord inserts rec. A missing ID is generated; a zero CreatedAt
// takes the database clock.
func (r *MatchRecordRepository) SaveMatchRecord(ctx context.Context, rec database.MatchRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var createdAt any
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO match_records
			(id, subject_id, query_url, candidate_id, candidate_url, confidence, strategy, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.SubjectID, rec.QueryURL, rec.CandidateID, rec.CandidateURL,
		rec.Confidence, rec.Strategy, rec.Action, createdAt)
	if err != nil {
		return fmt.Errorf("save match record: %w", err)
	}
	return nil
}

// RecentMatchRecords returns the newest records for a subject, newest first
func (r *MatchRecordRepository) RecentMatchRecords(ctx context.Context, subjectID string, limit int) ([]database.MatchRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subject_id, query_url, candidate_id, candidate_url, confidence, strategy, action, created_at
		FROM match_records
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query match records: %w", err)
	}
	defer rows.Close()

	var records []database.MatchRecord
	for rows.Next() {
		var rec database.MatchRecord
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.QueryURL, &rec.CandidateID, &rec.CandidateURL,
			&rec.Confidence, &rec.Strategy, &rec.Action, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan match record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match records: %w", err)
	}
	return records, nil
}

var _ database.MatchRecordWriter = (*MatchRecordRepository)(nil)
