// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-finder/internal/database"
	"github.com/kozaktomas/face-finder/internal/facematch"
)

// MockPersonRepository is an in-memory database.PersonWriter
type MockPersonRepository struct {
	mu      sync.RWMutex
	persons map[string]*database.Person

	// Error injection
	GetError    error
	FindError   error
	ListError   error
	CreateError error
}

// NewMockPersonRepository creates a new mock person repository
func NewMockPersonRepository() *MockPersonRepository {
	return &MockPersonRepository{persons: make(map[string]*database.Person)}
}

// AddPerson adds a person to the mock store
func (m *MockPersonRepository) AddPerson(p database.Person) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persons[p.ID] = &p
}

// GetPerson retrieves a person by ID
func (m *MockPersonRepository) GetPerson(ctx context.Context, id string) (*database.Person, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.persons[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil //nolint:nilnil // not found
}

// FindPersonByName matches on the normalized name
func (m *MockPersonRepository) FindPersonByName(ctx context.Context, name string) (*database.Person, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *database.Person
	for _, p := range m.persons {
		if !facematch.SameName(p.Name, name) {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, nil //nolint:nilnil // not found
	}
	cp := *found
	return &cp, nil
}

// ListPersons returns persons ordered by name
func (m *MockPersonRepository) ListPersons(ctx context.Context) ([]database.Person, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Person, 0, len(m.persons))
	for _, p := range m.persons {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreatePerson stores a person with a generated ID
func (m *MockPersonRepository) CreatePerson(ctx context.Context, name string) (*database.Person, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	p := database.Person{ID: uuid.NewString(), Name: name, CreatedAt: time.Now()}
	m.AddPerson(p)
	return &p, nil
}

// MockEmbeddingRepository is an in-memory database.EmbeddingWriter with
// brute-force similarity search
type MockEmbeddingRepository struct {
	mu         sync.RWMutex
	embeddings map[int64]*database.StoredEmbedding
	nextID     int64

	// Error injection
	GetError    error
	HasError    error
	CountError  error
	SearchError error
	GetAllError error
	SaveError   error
	DeleteError error
}

// NewMockEmbeddingRepository creates a new mock embedding repository
func NewMockEmbeddingRepository() *MockEmbeddingRepository {
	return &MockEmbeddingRepository{embeddings: make(map[int64]*database.StoredEmbedding)}
}

// AddEmbedding stores emb as-is, assigning an ID when it has none
func (m *MockEmbeddingRepository) AddEmbedding(emb database.StoredEmbedding) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if emb.ID == 0 {
		m.nextID++
		emb.ID = m.nextID
	} else if emb.ID > m.nextID {
		m.nextID = emb.ID
	}
	m.embeddings[emb.ID] = &emb
	return emb.ID
}

// Get retrieves an embedding by ID
func (m *MockEmbeddingRepository) Get(ctx context.Context, id int64) (*database.StoredEmbedding, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if emb, ok := m.embeddings[id]; ok {
		cp := *emb
		return &cp, nil
	}
	return nil, nil //nolint:nilnil // not found
}

// HasImageURL checks if an embedding exists for the URL
func (m *MockEmbeddingRepository) HasImageURL(ctx context.Context, imageURL string) (bool, error) {
	if m.HasError != nil {
		return false, m.HasError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, emb := range m.embeddings {
		if emb.ImageURL == imageURL {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the total number of embeddings
func (m *MockEmbeddingRepository) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings), nil
}

// FindSimilarWithDistance scans all embeddings, closest first
func (m *MockEmbeddingRepository) FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.StoredEmbedding, []float64, error) {
	if m.SearchError != nil {
		return nil, nil, m.SearchError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type hit struct {
		emb  database.StoredEmbedding
		dist float64
	}
	var hits []hit
	for _, emb := range m.embeddings {
		d := database.CosineDistance(embedding, emb.Embedding)
		if d < maxDistance {
			hits = append(hits, hit{*emb, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].emb.ID < hits[j].emb.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]database.StoredEmbedding, len(hits))
	distances := make([]float64, len(hits))
	for i, h := range hits {
		results[i] = h.emb
		distances[i] = h.dist
	}
	return results, distances, nil
}

// GetAll returns embeddings ordered by ID
func (m *MockEmbeddingRepository) GetAll(ctx context.Context) ([]database.StoredEmbedding, error) {
	if m.GetAllError != nil {
		return nil, m.GetAllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.StoredEmbedding, 0, len(m.embeddings))
	for _, emb := range m.embeddings {
		out = append(out, *emb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save stores an embedding, replacing one with the same image URL
func (m *MockEmbeddingRepository) Save(ctx context.Context, emb database.StoredEmbedding) (int64, error) {
	if m.SaveError != nil {
		return 0, m.SaveError
	}
	if emb.Dim == 0 {
		emb.Dim = len(emb.Embedding)
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now()
	}

	m.mu.Lock()
	for id, existing := range m.embeddings {
		if existing.ImageURL == emb.ImageURL {
			delete(m.embeddings, id)
		}
	}
	m.mu.Unlock()

	emb.ID = 0
	return m.AddEmbedding(emb), nil
}

// Delete removes an embedding
func (m *MockEmbeddingRepository) Delete(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.embeddings[id]; !ok {
		return fmt.Errorf("embedding %d not found", id)
	}
	delete(m.embeddings, id)
	return nil
}

// MockHNSWRebuilder counts rebuild calls
type MockHNSWRebuilder struct {
	mu           sync.Mutex
	Rebuilds     int
	Saves        int
	Count        int
	RebuildError error
}

// RebuildHNSW records a rebuild
func (m *MockHNSWRebuilder) RebuildHNSW(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rebuilds++
	return m.RebuildError
}

// HNSWCount returns Count
func (m *MockHNSWRebuilder) HNSWCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Count
}

// IsHNSWEnabled always reports true
func (m *MockHNSWRebuilder) IsHNSWEnabled() bool { return true }

// SaveHNSWIndex records a save
func (m *MockHNSWRebuilder) SaveHNSWIndex(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	return nil
}

// RebuildCount returns the number of RebuildHNSW calls
func (m *MockHNSWRebuilder) RebuildCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Rebuilds
}

// MockMatchRecordWriter keeps records in memory
type MockMatchRecordWriter struct {
	mu      sync.Mutex
	records []database.MatchRecord

	SaveError error
}

// NewMockMatchRecordWriter creates a new mock match record writer
func NewMockMatchRecordWriter() *MockMatchRecordWriter {
	return &MockMatchRecordWriter{}
}

// SaveMatchRecord appends rec
func (m *MockMatchRecordWriter) SaveMatchRecord(ctx context.Context, rec database.MatchRecord) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.records = append(m.records, rec)
	return nil
}

// RecentMatchRecords returns the newest records for a subject
func (m *MockMatchRecordWriter) RecentMatchRecords(ctx context.Context, subjectID string, limit int) ([]database.MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.MatchRecord
	for i := len(m.records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.records[i].SubjectID == subjectID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

// Records returns a copy of all stored records
func (m *MockMatchRecordWriter) Records() []database.MatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.MatchRecord(nil), m.records...)
}

var (
	_ database.PersonWriter      = (*MockPersonRepository)(nil)
	_ database.EmbeddingWriter   = (*MockEmbeddingRepository)(nil)
	_ database.HNSWRebuilder     = (*MockHNSWRebuilder)(nil)
	_ database.MatchRecordWriter = (*MockMatchRecordWriter)(nil)
)
