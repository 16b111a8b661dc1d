package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/face-finder/internal/database"
	"github.com/pgvector/pgvector-go"
)

const embeddingColumns = "id, person_id, image_url, embedding, extractor, dim, created_at"

// EmbeddingRepository provides PostgreSQL-backed reference embedding storage
// with an optional in-memory HNSW index
type EmbeddingRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex
}

// NewEmbeddingRepository creates a new PostgreSQL embedding repository
func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmbedding(row rowScanner, extra ...any) (database.StoredEmbedding, error) {
	var emb database.StoredEmbedding
	var vec pgvector.Vector
	dest := append([]any{
		&emb.ID, &emb.PersonID, &emb.ImageURL, &vec, &emb.Extractor, &emb.Dim, &emb.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return emb, err //nolint:wrapcheck // callers wrap
	}
	emb.Embedding = vec.Slice()
	return emb, nil
}

// Get retrieves an embedding by ID, returns nil if not found
func (r *EmbeddingRepository) Get(ctx context.Context, id int64) (*database.StoredEmbedding, error) {
	emb, err := scanEmbedding(r.pool.QueryRow(ctx,
		"SELECT "+embeddingColumns+" FROM face_embeddings WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found
	}
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	return &emb, nil
}

// HasImageURL checks if an embedding exists for the given image URL
func (r *EmbeddingRepository) HasImageURL(ctx context.Context, imageURL string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM face_embeddings WHERE image_url = $1)", imageURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check embedding exists: %w", err)
	}
	return exists, nil
}

// Count returns the total number of embeddings stored
func (r *EmbeddingRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// FindSimilarWithDistance finds similar embeddings and returns distances.
// Uses in-memory HNSW index if enabled, otherwise falls back to PostgreSQL.
func (r *EmbeddingRepository) FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.StoredEmbedding, []float64, error) {
	r.hnswMu.RLock()
	index := r.hnswIndex
	enabled := r.hnswEnabled && index != nil
	r.hnswMu.RUnlock()

	if enabled {
		results, distances, err := index.SearchWithDistance(embedding, limit, maxDistance)
		if err == nil {
			return results, distances, nil
		}
		if !errors.Is(err, database.ErrIndexNotInitialized) {
			return nil, nil, fmt.Errorf("HNSW search: %w", err)
		}
		// An empty graph has nothing to search; the table may have rows added
		// by another process, so fall through.
	}

	return r.findSimilarWithDistancePostgres(ctx, embedding, limit, maxDistance)
}

// findSimilarWithDistancePostgres uses pgvector with ef_search tuned to the in-memory index
func (r *EmbeddingRepository) findSimilarWithDistancePostgres(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.StoredEmbedding, []float64, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+embeddingColumns+`,
		       embedding <=> $1::vector AS distance
		FROM face_embeddings
		WHERE embedding <=> $1::vector < $2
		ORDER BY distance
		LIMIT $3
	`, pgvector.NewVector(embedding), maxDistance, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []database.StoredEmbedding
	var distances []float64
	for rows.Next() {
		var dist float64
		emb, err := scanEmbedding(rows, &dist)
		if err != nil {
			return nil, nil, fmt.Errorf("scan embedding: %w", err)
		}
		embeddings = append(embeddings, emb)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, distances, nil
}

// Save inserts an embedding, replacing any earlier one for the same image URL,
// and adds it to the in-memory index when enabled.
func (r *EmbeddingRepository) Save(ctx context.Context, emb database.StoredEmbedding) (int64, error) {
	if emb.Dim == 0 {
		emb.Dim = len(emb.Embedding)
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO face_embeddings (person_id, image_url, embedding, extractor, dim)
		VALUES ($1, $2, $3::vector, $4, $5)
		ON CONFLICT (image_url) DO UPDATE SET
			person_id = EXCLUDED.person_id,
			embedding = EXCLUDED.embedding,
			extractor = EXCLUDED.extractor,
			dim = EXCLUDED.dim,
			created_at = NOW()
		RETURNING id, created_at
	`, emb.PersonID, emb.ImageURL, pgvector.NewVector(emb.Embedding), emb.Extractor, emb.Dim).Scan(&emb.ID, &emb.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("save embedding: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Add(emb)
	}
	r.hnswMu.RUnlock()

	return emb.ID, nil
}

// Delete removes the embedding and hides it from the HNSW index
func (r *EmbeddingRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM face_embeddings WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Delete(id)
	}
	r.hnswMu.RUnlock()
	return nil
}

// GetAll retrieves all embeddings ordered by ID
func (r *EmbeddingRepository) GetAll(ctx context.Context) ([]database.StoredEmbedding, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+embeddingColumns+" FROM face_embeddings ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query all embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []database.StoredEmbedding
	for rows.Next() {
		emb, err := scanEmbedding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

func (r *EmbeddingRepository) indexStats(ctx context.Context) (database.HNSWIndexMetadata, error) {
	var meta database.HNSWIndexMetadata
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM face_embeddings").
		Scan(&meta.EmbeddingCount, &meta.MaxEmbeddingID)
	if err != nil {
		return meta, fmt.Errorf("failed to get embedding stats: %w", err)
	}
	return meta, nil
}

// tryLoadIndex loads a cached index when its metadata matches the table.
func tryLoadIndex(ctx context.Context, indexPath string, current database.HNSWIndexMetadata) *database.HNSWIndex {
	cached, err := database.LoadHNSWMetadata(indexPath)
	if err != nil {
		slog.DebugContext(ctx, "embedding index metadata unavailable, rebuilding", "error", err)
		return nil
	}
	if cached.EmbeddingCount != current.EmbeddingCount || cached.MaxEmbeddingID != current.MaxEmbeddingID {
		slog.InfoContext(ctx, "embedding index stale, rebuilding",
			"db_count", current.EmbeddingCount, "cached_count", cached.EmbeddingCount)
		return nil
	}

	index := database.NewHNSWIndex()
	if err := index.LoadWithMetadata(indexPath); err != nil {
		slog.WarnContext(ctx, "embedding index load failed, rebuilding", "error", err)
		return nil
	}
	if index.IsEmpty() {
		return nil
	}
	slog.InfoContext(ctx, "embedding index loaded from disk", "count", index.Count())
	return index
}

// EnableHNSW loads or builds an in-memory HNSW index.
// If indexPath is provided, it will try to load from disk first and save after building.
func (r *EmbeddingRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	stats, err := r.indexStats(ctx)
	if err != nil {
		return err
	}

	if indexPath != "" {
		if index := tryLoadIndex(ctx, indexPath, stats); index != nil {
			r.hnswIndex = index
			r.hnswEnabled = true
			return nil
		}
	}

	embeddings, err := r.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}

	index := database.NewHNSWIndex()
	index.Build(embeddings)
	r.hnswIndex = index
	r.hnswEnabled = true

	if indexPath != "" && len(embeddings) > 0 {
		stats.BuildTime = time.Now()
		if err := index.SaveWithMetadata(indexPath, stats); err != nil {
			slog.WarnContext(ctx, "failed to save embedding index", "path", indexPath, "error", err)
		}
	}
	slog.InfoContext(ctx, "embedding index built", "count", index.Count())
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to PostgreSQL queries
func (r *EmbeddingRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled
func (r *EmbeddingRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// HNSWCount returns the number of embeddings in the HNSW index
func (r *EmbeddingRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data
func (r *EmbeddingRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	indexPath := r.hnswIndexPath
	r.hnswMu.RUnlock()
	return r.EnableHNSW(ctx, indexPath)
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured)
func (r *EmbeddingRepository) SaveHNSWIndex(ctx context.Context) error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndex == nil {
		return nil
	}

	stats, err := r.indexStats(ctx)
	if err != nil {
		return err
	}
	stats.BuildTime = time.Now()
	if err := r.hnswIndex.SaveWithMetadata(r.hnswIndexPath, stats); err != nil {
		return fmt.Errorf("saving HNSW embedding index: %w", err)
	}
	slog.InfoContext(ctx, "embedding index saved", "path", r.hnswIndexPath, "count", stats.EmbeddingCount)
	return nil
}

var (
	_ database.EmbeddingWriter = (*EmbeddingRepository)(nil)
	_ database.HNSWRebuilder   = (*EmbeddingRepository)(nil)
)
