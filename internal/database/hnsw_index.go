package database

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// ErrIndexNotInitialized is returned when searching an index with no graph.
var ErrIndexNotInitialized = errors.New("index not initialized")

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	EmbeddingCount int64     `json:"embedding_count"`
	MaxEmbeddingID int64     `json:"max_embedding_id"`
	BuildTime      time.Time `json:"build_time"`
	Version        int       `json:"version"`
}

const hnswMetadataVersion = 1

// HNSWIndex wraps the HNSW graph for reference embedding search.
// Keys are embedding IDs.
type HNSWIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64] // set when loaded from disk
	idToEmb    map[int64]*StoredEmbedding
	mu         sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToEmb: make(map[int64]*StoredEmbedding),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with embeddings.
func (h *HNSWIndex) Build(embeddings []StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savedGraph = nil
	h.idToEmb = make(map[int64]*StoredEmbedding, len(embeddings))
	if len(embeddings) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range embeddings {
		emb := &embeddings[i]
		if len(emb.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(emb.ID, emb.Embedding))
		h.idToEmb[emb.ID] = emb
	}
	h.graph = g
}

// Add inserts a single embedding.
func (h *HNSWIndex) Add(emb StoredEmbedding) {
	if len(emb.Embedding) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.savedGraph != nil:
		h.savedGraph.Add(hnsw.MakeNode(emb.ID, emb.Embedding))
	case h.graph == nil:
		h.graph = newGraph()
		fallthrough
	default:
		h.graph.Add(hnsw.MakeNode(emb.ID, emb.Embedding))
	}
	h.idToEmb[emb.ID] = &emb
}

// Delete hides an embedding from search results. The graph node stays until
// the next Build.
func (h *HNSWIndex) Delete(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.idToEmb, id)
}

// Get returns the embedding for id, or nil.
func (h *HNSWIndex) Get(id int64) *StoredEmbedding {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToEmb[id]
}

// SearchWithDistance returns up to k embeddings with cosine distance strictly
// below maxDistance, closest first.
func (h *HNSWIndex) SearchWithDistance(query []float32, k int, maxDistance float64) ([]StoredEmbedding, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, nil, ErrIndexNotInitialized
	}
	if k <= 0 {
		return nil, nil, nil
	}

	searchK := max(k*HNSWSearchMultiplier, HNSWMinSearch)
	var neighbors []hnsw.Node[int64]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, searchK)
	} else {
		neighbors = h.graph.Search(query, searchK)
	}

	type hit struct {
		emb  *StoredEmbedding
		dist float64
	}
	hits := make([]hit, 0, len(neighbors))
	for _, n := range neighbors {
		emb, ok := h.idToEmb[n.Key]
		if !ok {
			continue
		}
		if dist := CosineDistance(query, emb.Embedding); dist < maxDistance {
			hits = append(hits, hit{emb, dist})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]StoredEmbedding, len(hits))
	distances := make([]float64, len(hits))
	for i, hit := range hits {
		results[i] = *hit.emb
		distances[i] = hit.dist
	}
	return results, distances, nil
}

// Count returns the number of searchable embeddings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToEmb)
}

// IsEmpty returns true if no graph is loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// LoadHNSWMetadata reads the .meta file stored next to an index.
func LoadHNSWMetadata(basePath string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata
	data, err := os.ReadFile(basePath + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// SaveWithMetadata writes the graph to basePath, metadata to basePath.meta
// and the embedding rows to basePath.embeddings. An empty index removes the
// files.
func (h *HNSWIndex) SaveWithMetadata(basePath string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		_ = os.Remove(basePath)
		_ = os.Remove(basePath + ".meta")
		_ = os.Remove(basePath + ".embeddings")
		return nil
	}

	if err := h.exportGraph(basePath); err != nil {
		return err
	}

	metadata.Version = hnswMetadataVersion
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(basePath+".meta", metaData, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	embeddings := make([]StoredEmbedding, 0, len(h.idToEmb))
	for _, emb := range h.idToEmb {
		embeddings = append(embeddings, *emb)
	}
	f, err := os.Create(basePath + ".embeddings") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create embeddings file: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(embeddings); err != nil {
		return fmt.Errorf("failed to encode embeddings: %w", err)
	}
	return nil
}

func (h *HNSWIndex) exportGraph(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if h.savedGraph != nil {
		err = h.savedGraph.Export(f)
	} else {
		err = h.graph.Export(f)
	}
	if err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	return nil
}

// LoadWithMetadata loads a graph and its embedding rows saved by SaveWithMetadata.
func (h *HNSWIndex) LoadWithMetadata(basePath string) error {
	saved, err := hnsw.LoadSavedGraph[int64](basePath)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	f, err := os.Open(basePath + ".embeddings") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to open embeddings file: %w", err)
	}
	defer f.Close()

	var embeddings []StoredEmbedding
	if err := gob.NewDecoder(f).Decode(&embeddings); err != nil {
		return fmt.Errorf("failed to decode embeddings: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = nil
	h.savedGraph = saved
	h.idToEmb = make(map[int64]*StoredEmbedding, len(embeddings))
	for i := range embeddings {
		h.idToEmb[embeddings[i].ID] = &embeddings[i]
	}
	return nil
}
