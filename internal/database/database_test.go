package database

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"mismatched", []float32{1, 0}, []float32{1, 0, 0}, MaxCosineDistance},
		{"empty", nil, nil, MaxCosineDistance},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, MaxCosineDistance},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineDistance(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("CosineDistance = %f, want %f", got, tc.want)
			}
		})
	}
}

func axis(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func testEmbeddings() []StoredEmbedding {
	near := []float32{0.9, 0.1, 0, 0}
	return []StoredEmbedding{
		{ID: 1, PersonID: "p1", ImageURL: "a.jpg", Embedding: axis(4, 0)},
		{ID: 2, PersonID: "p2", ImageURL: "b.jpg", Embedding: axis(4, 1)},
		{ID: 3, PersonID: "p1", ImageURL: "c.jpg", Embedding: near},
		{ID: 4, PersonID: "p3", ImageURL: "d.jpg", Embedding: axis(4, 2)},
	}
}

func TestHNSWIndexSearchWithDistance(t *testing.T) {
	idx := NewHNSWIndex()
	idx.Build(testEmbeddings())

	if idx.Count() != 4 {
		t.Fatalf("expected 4 indexed, got %d", idx.Count())
	}

	results, distances, err := idx.SearchWithDistance(axis(4, 0), 5, 0.5)
	if err != nil {
		t.Fatalf("SearchWithDistance: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results within distance, got %d", len(results))
	}
	if results[0].ID != 1 || results[1].ID != 3 {
		t.Errorf("unexpected order: %d, %d", results[0].ID, results[1].ID)
	}
	if distances[0] > 1e-6 || distances[1] <= distances[0] {
		t.Errorf("unexpected distances %v", distances)
	}
}

func TestHNSWIndexLimit(t *testing.T) {
	idx := NewHNSWIndex()
	idx.Build(testEmbeddings())

	results, _, err := idx.SearchWithDistance(axis(4, 0), 1, MaxCosineDistance+1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Errorf("expected only the closest result, got %+v", results)
	}
}

func TestHNSWIndexEmpty(t *testing.T) {
	idx := NewHNSWIndex()
	if !idx.IsEmpty() {
		t.Error("new index should be empty")
	}
	_, _, err := idx.SearchWithDistance(axis(4, 0), 3, 1)
	if !errors.Is(err, ErrIndexNotInitialized) {
		t.Errorf("expected ErrIndexNotInitialized, got %v", err)
	}

	idx.Build(nil)
	if !idx.IsEmpty() {
		t.Error("building from nothing should leave the index empty")
	}
}

func TestHNSWIndexAddAndDelete(t *testing.T) {
	idx := NewHNSWIndex()
	idx.Add(StoredEmbedding{ID: 7, Embedding: axis(4, 3)})
	idx.Add(StoredEmbedding{ID: 8})

	if idx.Count() != 1 {
		t.Fatalf("expected 1 indexed, got %d", idx.Count())
	}
	if idx.Get(7) == nil {
		t.Fatal("expected embedding 7")
	}

	idx.Delete(7)
	results, _, err := idx.SearchWithDistance(axis(4, 3), 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("deleted embedding still returned: %+v", results)
	}
}

func TestHNSWIndexSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.hnsw")

	idx := NewHNSWIndex()
	idx.Build(testEmbeddings())
	if err := idx.SaveWithMetadata(path, HNSWIndexMetadata{EmbeddingCount: 4, MaxEmbeddingID: 4}); err != nil {
		t.Fatalf("SaveWithMetadata: %v", err)
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata: %v", err)
	}
	if meta.EmbeddingCount != 4 || meta.MaxEmbeddingID != 4 || meta.Version != hnswMetadataVersion {
		t.Errorf("unexpected metadata %+v", meta)
	}

	loaded := NewHNSWIndex()
	if err := loaded.LoadWithMetadata(path); err != nil {
		t.Fatalf("LoadWithMetadata: %v", err)
	}
	if loaded.Count() != 4 {
		t.Errorf("expected 4 loaded, got %d", loaded.Count())
	}
	results, _, err := loaded.SearchWithDistance(axis(4, 1), 1, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ImageURL != "b.jpg" {
		t.Errorf("unexpected results after load: %+v", results)
	}

	// Saving an empty index removes the files.
	if err := NewHNSWIndex().SaveWithMetadata(path, HNSWIndexMetadata{}); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadHNSWMetadata(path); err == nil {
		t.Error("expected metadata to be removed")
	}
}
