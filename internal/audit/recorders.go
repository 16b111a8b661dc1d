package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/face-finder/internal/database"
)

// LogRecorder writes records to a logger. It is the default sink when no
// database or broker is configured.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a LogRecorder. A nil logger uses slog.Default.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

func (l *LogRecorder) Record(ctx context.Context, r Record) error {
	l.logger.InfoContext(ctx, "match recorded",
		"record_id", r.ID,
		"subject_id", r.SubjectID,
		"candidate_id", r.CandidateID,
		"confidence", r.Confidence,
		"strategy", r.Strategy,
		"action", r.Action,
	)
	return nil
}

// PostgresRecorder stores records in the match_records table.
type PostgresRecorder struct {
	writer database.MatchRecordWriter
}

// NewPostgresRecorder wraps a match record writer.
func NewPostgresRecorder(writer database.MatchRecordWriter) *PostgresRecorder {
	return &PostgresRecorder{writer: writer}
}

func (p *PostgresRecorder) Record(ctx context.Context, r Record) error {
	if err := p.writer.SaveMatchRecord(ctx, r.MatchRecord()); err != nil {
		return fmt.Errorf("store match record %s: %w", r.ID, err)
	}
	return nil
}

// MultiRecorder fans a record out to several recorders. Every recorder is
// called; their errors are joined.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, r Record) error {
	var errs []error
	for _, rec := range m {
		if err := rec.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Recorder = (*LogRecorder)(nil)
	_ Recorder = (*PostgresRecorder)(nil)
	_ Recorder = MultiRecorder(nil)
)
