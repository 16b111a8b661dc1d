// Package backfill stores reference embeddings for corpus images so that
// indexed search can find them.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/database"
	"github.com/kozaktomas/face-finder/internal/facematch"
	"github.com/kozaktomas/face-finder/internal/features"
	"github.com/kozaktomas/face-finder/internal/storage"
)

var (
	// ErrPersonNotFound is returned by Register for an unknown person ID.
	ErrPersonNotFound = errors.New("person not found")

	// ErrMissingField is returned by Register when an argument is empty.
	ErrMissingField = errors.New("person_id and image_url are required")
)

// Result summarizes one backfill run.
type Result struct {
	Processed int `json:"processed"`
	Stored    int `json:"stored"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ProgressFunc is called after each object with the running totals and the
// corpus size. It may be called from several goroutines.
type ProgressFunc func(r Result, total int)

// Config wires a Backfiller.
type Config struct {
	Corpus     storage.Bucket
	Fetcher    storage.Fetcher // resolves Register locators; defaults to Corpus
	Extractor  features.Extractor
	Persons    database.PersonReader
	Embeddings database.EmbeddingWriter
	Rebuilder  database.HNSWRebuilder // optional
	Workers    int
	Logger     *slog.Logger
}

// Backfiller embeds corpus images of known persons.
type Backfiller struct {
	cfg Config
}

func New(cfg Config) (*Backfiller, error) {
	if cfg.Corpus == nil || cfg.Extractor == nil || cfg.Persons == nil || cfg.Embeddings == nil {
		return nil, errors.New("backfill: corpus, extractor, persons and embeddings are required")
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = cfg.Corpus
	}
	if cfg.Workers <= 0 {
		cfg.Workers = constants.DefaultBackfillWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Backfiller{cfg: cfg}, nil
}

type outcome int

const (
	outcomeStored outcome = iota
	outcomeSkipped
	outcomeFailed
)

// Run processes every corpus object. Objects whose name does not resolve to
// a known person, or whose URL already has an embedding, are skipped.
// Per-object failures are logged and counted. Only a listing failure is
// returned as an error. When anything was stored the HNSW index is rebuilt.
func (b *Backfiller) Run(ctx context.Context, progress ProgressFunc) (Result, error) {
	objects, err := b.cfg.Corpus.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list corpus: %w", err)
	}
	total := len(objects)
	b.cfg.Logger.InfoContext(ctx, "backfill started", "objects", total)

	var processed, stored, skipped, failed atomic.Int64
	snapshot := func() Result {
		return Result{
			Processed: int(processed.Load()),
			Stored:    int(stored.Load()),
			Skipped:   int(skipped.Load()),
			Failed:    int(failed.Load()),
		}
	}

	var g errgroup.Group
	g.SetLimit(b.cfg.Workers)
	for _, obj := range objects {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch b.processObject(ctx, obj) {
			case outcomeStored:
				stored.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			case outcomeFailed:
				failed.Add(1)
			}
			processed.Add(1)
			if progress != nil {
				progress(snapshot(), total)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := snapshot()
	if result.Stored > 0 {
		b.rebuildIndex(ctx)
	}
	b.cfg.Logger.InfoContext(ctx, "backfill complete",
		"processed", result.Processed,
		"stored", result.Stored,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}

func (b *Backfiller) processObject(ctx context.Context, obj storage.Object) outcome {
	log := b.cfg.Logger.With("object", obj.Name)
	imageURL := b.cfg.Corpus.URL(obj.Name)

	name := facematch.PersonNameFromObject(obj.Name)
	person, err := b.cfg.Persons.FindPersonByName(ctx, name)
	if err != nil {
		log.ErrorContext(ctx, "person lookup failed", "error", err)
		return outcomeFailed
	}
	if person == nil {
		log.InfoContext(ctx, "no person with this name, skipping", "person_name", name)
		return outcomeSkipped
	}

	exists, err := b.cfg.Embeddings.HasImageURL(ctx, imageURL)
	if err != nil {
		log.ErrorContext(ctx, "embedding lookup failed", "error", err)
		return outcomeFailed
	}
	if exists {
		log.DebugContext(ctx, "embedding already exists, skipping", "image_url", imageURL)
		return outcomeSkipped
	}

	img, err := b.cfg.Corpus.Fetch(ctx, obj.Name)
	if err != nil {
		log.ErrorContext(ctx, "fetch failed", "error", err)
		return outcomeFailed
	}
	if _, err := b.store(ctx, person.ID, imageURL, img); err != nil {
		log.ErrorContext(ctx, "store failed", "error", err)
		return outcomeFailed
	}
	log.InfoContext(ctx, "stored embedding", "person_id", person.ID, "image_url", imageURL)
	return outcomeStored
}

// Register fetches imageURL, embeds it and stores it for personID. It returns
// the new embedding ID.
func (b *Backfiller) Register(ctx context.Context, personID, imageURL string) (int64, error) {
	if personID == "" || imageURL == "" {
		return 0, ErrMissingField
	}
	person, err := b.cfg.Persons.GetPerson(ctx, personID)
	if err != nil {
		return 0, fmt.Errorf("get person: %w", err)
	}
	if person == nil {
		return 0, fmt.Errorf("%w: %s", ErrPersonNotFound, personID)
	}

	img, err := b.cfg.Fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return 0, fmt.Errorf("fetch image: %w", err)
	}
	id, err := b.store(ctx, person.ID, imageURL, img)
	if err != nil {
		return 0, err
	}
	b.cfg.Logger.InfoContext(ctx, "registered embedding", "id", id, "person_id", person.ID, "image_url", imageURL)
	return id, nil
}

func (b *Backfiller) store(ctx context.Context, personID, imageURL string, img []byte) (int64, error) {
	vec, err := b.cfg.Extractor.Extract(ctx, img)
	if err != nil {
		return 0, fmt.Errorf("extract embedding: %w", err)
	}
	if dim := b.cfg.Extractor.Dim(); len(vec) != dim {
		return 0, fmt.Errorf("%w: got %d, want %d", features.ErrDimensionMismatch, len(vec), dim)
	}
	id, err := b.cfg.Embeddings.Save(ctx, database.StoredEmbedding{
		PersonID:  personID,
		ImageURL:  imageURL,
		Embedding: vec,
		Extractor: b.cfg.Extractor.Name(),
		Dim:       len(vec),
	})
	if err != nil {
		return 0, fmt.Errorf("save embedding: %w", err)
	}
	return id, nil
}

func (b *Backfiller) rebuildIndex(ctx context.Context) {
	r := b.cfg.Rebuilder
	if r == nil || !r.IsHNSWEnabled() {
		return
	}
	if err := r.RebuildHNSW(ctx); err != nil {
		b.cfg.Logger.WarnContext(ctx, "HNSW rebuild failed", "error", err)
		return
	}
	if err := r.SaveHNSWIndex(ctx); err != nil {
		b.cfg.Logger.WarnContext(ctx, "HNSW save failed", "error", err)
	}
	b.cfg.Logger.InfoContext(ctx, "HNSW index rebuilt", "embeddings", r.HNSWCount())
}
