package scoring

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kozaktomas/face-finder/internal/features"
)

func mustRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func mustStrategy(t *testing.T, name string) *Strategy {
	t.Helper()
	s, err := mustRegistry(t).Get(name)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", name, err)
	}
	return s
}

func imageLike(n int, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, seed))
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(rng.IntN(256))
	}
	return buf
}

func TestBuiltinRegistry(t *testing.T) {
	r := mustRegistry(t)

	if r.Default() != "whole_face" {
		t.Errorf("Default() = %q, want whole_face", r.Default())
	}
	if got := r.Names(); !slices.Equal(got, []string{"eye_region", "whole_face"}) {
		t.Errorf("Names() = %v", got)
	}

	def, err := r.Get("")
	if err != nil {
		t.Fatalf("Get default failed: %v", err)
	}
	if def.Name != "whole_face" {
		t.Errorf("empty name resolved to %q", def.Name)
	}
	if def.LabelBonus != nil {
		t.Error("label bonus must be disabled in built-in strategies")
	}

	_, err = r.Get("nose_bridge")
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := mustRegistry(t)
	s, _ := r.Get("whole_face")
	s.Threshold = 1
	again, _ := r.Get("whole_face")
	if again.Threshold != 70 {
		t.Errorf("registry strategy mutated through copy: threshold %g", again.Threshold)
	}
}

func TestCombineWholeFace(t *testing.T) {
	s := mustStrategy(t, "whole_face")

	tests := []struct {
		name     string
		scores   ScoreSet
		expected float64
	}{
		{"no evidence gives clamp floor", ScoreSet{}, 50},
		{"all zero gives clamp floor", ScoreSet{"vector": 0, "structural": 0, "color": 0, "symmetry": 0}, 50},
		{"mid scores", ScoreSet{"vector": 0.5, "structural": 0.5, "color": 0.5}, 75},
		{"vector bonus", ScoreSet{"vector": 0.8}, 84},
		{"both bonuses", ScoreSet{"vector": 0.8, "symmetry": 0.9}, 92},
		{"bonus threshold is strict", ScoreSet{"vector": 0.7}, 71},
		{"perfect match clamps to max", ScoreSet{"vector": 1, "structural": 1, "color": 1, "symmetry": 1}, 98},
		{"strongly negative clamps to min", ScoreSet{"vector": -1, "structural": -1, "color": 0}, 50},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := s.Combine(tc.scores, Hints{})
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("Combine(%v) = %f; want %f", tc.scores, got, tc.expected)
			}
		})
	}
}

func TestCombineEyeRegion(t *testing.T) {
	s := mustStrategy(t, "eye_region")

	tests := []struct {
		name     string
		scores   ScoreSet
		expected float64
	}{
		{"all zero gives clamp floor", ScoreSet{}, 70},
		{"floor remap", ScoreSet{"vector": 0.6, "structural": 0.6, "color": 0.6}, 80},
		{"shape bonus", ScoreSet{"vector": 0.6, "structural": 0.6, "color": 0.6, "shape": 0.8}, 90},
		{"perfect match clamps to max", ScoreSet{"vector": 1, "structural": 1, "color": 1, "shape": 1}, 97},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := s.Combine(tc.scores, Hints{})
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("Combine(%v) = %f; want %f", tc.scores, got, tc.expected)
			}
		})
	}
}

func TestCombineFloorRaise(t *testing.T) {
	s := &Strategy{
		Name:    "raise",
		Weights: map[string]float64{"vector": 1},
		Remap:   Remap{Mode: RemapDirect},
		FloorRaise: &FloorRaise{
			All: map[string]float64{"structural": 0.9, "color": 0.9},
			To:  85,
		},
		Clamp: Clamp{Min: 0, Max: 100},
	}

	if got := s.Combine(ScoreSet{"vector": 0.2, "structural": 0.95, "color": 0.9}, Hints{}); got != 85 {
		t.Errorf("floor raise not applied: got %f", got)
	}
	if got := s.Combine(ScoreSet{"vector": 0.2, "structural": 0.95, "color": 0.89}, Hints{}); got != 20 {
		t.Errorf("floor raise applied with one metric below minimum: got %f", got)
	}
	if got := s.Combine(ScoreSet{"vector": 0.9, "structural": 1, "color": 1}, Hints{}); got != 90 {
		t.Errorf("floor raise must not lower confidence: got %f", got)
	}
}

func TestCombineLabelBonus(t *testing.T) {
	s := &Strategy{
		Name:       "labels",
		Weights:    map[string]float64{"vector": 1},
		Remap:      Remap{Mode: RemapDirect},
		LabelBonus: &LabelBonus{Add: 5, Terms: []string{"ref"}},
		Clamp:      Clamp{Min: 0, Max: 100},
	}

	tests := []struct {
		name     string
		hints    Hints
		expected float64
	}{
		{"subject in label", Hints{Subject: "jan-novak", Label: "Jan Novák 03"}, 55},
		{"term in label", Hints{Label: "REF portrait"}, 55},
		{"no match", Hints{Subject: "petr", Label: "Jan Novák"}, 50},
		{"empty label", Hints{Subject: "jan"}, 50},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Combine(ScoreSet{"vector": 0.5}, tc.hints); got != tc.expected {
				t.Errorf("Combine = %f; want %f", got, tc.expected)
			}
		})
	}

	s.LabelBonus.Add = 0
	if got := s.Combine(ScoreSet{"vector": 0.5}, Hints{Label: "ref"}); got != 50 {
		t.Errorf("disabled label bonus applied: got %f", got)
	}
}

func TestCombineNaN(t *testing.T) {
	s := mustStrategy(t, "whole_face")
	if got := s.Combine(ScoreSet{"vector": math.NaN()}, Hints{}); got != 50 {
		t.Errorf("NaN score should clamp to floor, got %f", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Strategy {
		return Strategy{
			Name:      "ok",
			Weights:   map[string]float64{"vector": 0.5, "color": 0.5},
			Remap:     Remap{Mode: RemapSigned},
			Clamp:     Clamp{Min: 50, Max: 98},
			Threshold: 70,
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *Strategy)
		wantErr bool
	}{
		{"valid", func(s *Strategy) {}, false},
		{"missing name", func(s *Strategy) { s.Name = "" }, true},
		{"weights do not sum to one", func(s *Strategy) { s.Weights["vector"] = 0.7 }, true},
		{"unknown weight metric", func(s *Strategy) { s.Weights = map[string]float64{"texture": 1} }, true},
		{"unknown remap", func(s *Strategy) { s.Remap.Mode = "log" }, true},
		{"unknown bonus metric", func(s *Strategy) { s.Bonuses = []Bonus{{Metric: "ears", Above: 0.5, Add: 1}} }, true},
		{"unknown floor metric", func(s *Strategy) { s.FloorRaise = &FloorRaise{All: map[string]float64{"ears": 1}, To: 85} }, true},
		{"inverted clamp", func(s *Strategy) { s.Clamp = Clamp{Min: 90, Max: 80} }, true},
		{"threshold outside clamp", func(s *Strategy) { s.Threshold = 99 }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(&s)
			err := s.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	if got := mustStrategy(t, "whole_face").Metrics(); !slices.Equal(got, []string{"vector", "structural", "color", "symmetry"}) {
		t.Errorf("whole_face metrics = %v", got)
	}
	if got := mustStrategy(t, "eye_region").Metrics(); !slices.Equal(got, []string{"vector", "structural", "color", "shape"}) {
		t.Errorf("eye_region metrics = %v", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	content := `
default: strict
strategies:
  - name: strict
    descriptor: face
    weights: {vector: 1}
    remap: {mode: direct}
    clamp: {min: 0, max: 100}
    threshold: 90
    top_k: 3
  - name: whole_face
    descriptor: face
    weights: {vector: 1}
    remap: {mode: signed}
    clamp: {min: 50, max: 98}
    threshold: 60
    top_k: 10
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	r := mustRegistry(t)
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if r.Default() != "strict" {
		t.Errorf("Default() = %q, want strict", r.Default())
	}
	wf, _ := r.Get("whole_face")
	if wf.Threshold != 60 || wf.TopK != 10 {
		t.Errorf("whole_face not overridden: %+v", wf)
	}
	if _, err := r.Get("eye_region"); err != nil {
		t.Errorf("built-in strategy lost after override: %v", err)
	}

	if err := r.LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("strategies:\n  - name: broken\n    weights: {vector: 2}\n    remap: {mode: signed}\n"), 0600)
	if err := r.LoadFile(bad); err == nil {
		t.Error("expected validation error for invalid strategy")
	}
}

func TestScorerSelfMatch(t *testing.T) {
	ctx := context.Background()
	img := imageLike(60000, 7)

	tests := []struct {
		strategy string
		want     float64
	}{
		{"whole_face", 98},
		{"eye_region", 97},
	}

	for _, tc := range tests {
		t.Run(tc.strategy, func(t *testing.T) {
			s := mustStrategy(t, tc.strategy)
			ext, err := features.New(features.BackendRegion, features.Options{Descriptor: s.Descriptor})
			if err != nil {
				t.Fatal(err)
			}
			scorer := NewScorer(s, ext)

			q, err := scorer.Sample(ctx, img)
			if err != nil {
				t.Fatal(err)
			}
			c, err := scorer.Sample(ctx, append([]byte(nil), img...))
			if err != nil {
				t.Fatal(err)
			}
			scores := scorer.Score(q, c)
			if math.Abs(scores[MetricVector]-1) > 1e-5 {
				t.Errorf("vector similarity = %f, want 1", scores[MetricVector])
			}
			if math.Abs(scores[MetricStructural]-1) > 1e-9 {
				t.Errorf("structural = %f, want 1", scores[MetricStructural])
			}
			if got := scorer.Confidence(scores, Hints{}); got != tc.want {
				t.Errorf("self-match confidence = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestScorerComputesOnlyDeclaredMetrics(t *testing.T) {
	s := mustStrategy(t, "whole_face")
	scorer := NewScorer(s, features.NewRegionExtractor(features.FaceParams))
	q, _ := scorer.Sample(context.Background(), imageLike(5000, 1))
	scores := scorer.Score(q, q)
	if _, ok := scores[MetricShape]; ok {
		t.Error("shape computed although whole_face does not use it")
	}
	if len(scores) != 4 {
		t.Errorf("expected 4 metrics, got %d", len(scores))
	}
}

func TestConfidenceWithinClamp(t *testing.T) {
	ctx := context.Background()
	buffers := [][]byte{nil, {}, {0}, imageLike(10, 1), imageLike(3000, 2), imageLike(70000, 3), make([]byte, 4096)}

	for _, name := range []string{"whole_face", "eye_region"} {
		s := mustStrategy(t, name)
		ext, _ := features.New(features.BackendRegion, features.Options{Descriptor: s.Descriptor})
		scorer := NewScorer(s, ext)
		for i, a := range buffers {
			for j, b := range buffers {
				qa, _ := scorer.Sample(ctx, a)
				qb, _ := scorer.Sample(ctx, b)
				got := scorer.Confidence(scorer.Score(qa, qb), Hints{})
				if got < s.Clamp.Min || got > s.Clamp.Max {
					t.Errorf("%s: buffers %d/%d confidence %f outside [%g, %g]", name, i, j, got, s.Clamp.Min, s.Clamp.Max)
				}
			}
		}
	}
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, []byte) (features.Vector, error) {
	return nil, errors.New("model offline")
}
func (failingExtractor) Dim() int { return 128 }
func (failingExtractor) Name() string { return "failing" }

func TestNewSampleExtractorError(t *testing.T) {
	if _, err := NewSample(context.Background(), failingExtractor{}, []byte{1, 2, 3}); err == nil {
		t.Error("expected extractor error to propagate")
	}
}

func TestWithOverrides(t *testing.T) {
	base := mustStrategy(t, "whole_face")

	tests := []struct {
		name          string
		threshold     float64
		topK          int
		wantThreshold float64
		wantTopK      int
	}{
		{"keep both", -1, 0, base.Threshold, base.TopK},
		{"threshold only", 65, 0, 65, base.TopK},
		{"top k only", -1, 3, base.Threshold, 3},
		{"unlimited top k", 80, -1, 80, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.WithOverrides(tt.threshold, tt.topK)
			if got.Threshold != tt.wantThreshold || got.TopK != tt.wantTopK {
				t.Errorf("WithOverrides() = (%g, %d), want (%g, %d)", got.Threshold, got.TopK, tt.wantThreshold, tt.wantTopK)
			}
			if got == base {
				t.Error("WithOverrides returned the receiver")
			}
		})
	}
	if base.Threshold != 70 {
		t.Errorf("receiver threshold changed to %g", base.Threshold)
	}
}

func TestCombineIsReproducible(t *testing.T) {
	s := &Strategy{
		Name: "all_metrics",
		Weights: map[string]float64{
			MetricVector: 0.31, MetricStructural: 0.17, MetricColor: 0.23,
			MetricSymmetry: 0.19, MetricShape: 0.1,
		},
		Remap: Remap{Mode: RemapSigned},
		Clamp: Clamp{Min: -1000, Max: 1000},
	}

	rng := rand.New(rand.NewPCG(7, 11))
	for i := range 500 {
		scores := ScoreSet{}
		for _, m := range KnownMetrics {
			scores[m] = rng.Float64()*2 - 1
		}
		want := s.Combine(scores, Hints{})
		for range 50 {
			if got := s.Combine(scores, Hints{}); math.Float64bits(got) != math.Float64bits(want) {
				t.Fatalf("score set %d: Combine gave %v then %v", i, want, got)
			}
		}
	}
}
