package scoring

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/kozaktomas/face-finder/internal/facematch"
)

// Metric names used in a ScoreSet and in strategy definitions.
const (
	MetricVector     = "vector"
	MetricStructural = "structural"
	MetricColor      = "color"
	MetricSymmetry   = "symmetry"
	MetricShape      = "shape"
)

// KnownMetrics lists every metric the scorer can compute.
var KnownMetrics = []string{MetricVector, MetricStructural, MetricColor, MetricSymmetry, MetricShape}

// Remap modes.
const (
	RemapSigned = "signed" // (c + 1) / 2 * 100
	RemapDirect = "direct" // c * 100
	RemapFloor  = "floor"  // base + c * scale
)

// ScoreSet maps metric name to score for one (query, candidate) pair.
type ScoreSet map[string]float64

// Hints carries contextual strings used by the optional label bonus.
type Hints struct {
	Subject string // identifier of the person being searched for
	Label   string // candidate object name
}

type Remap struct {
	Mode  string  `yaml:"mode" json:"mode"`
	Base  float64 `yaml:"base,omitempty" json:"base,omitempty"`
	Scale float64 `yaml:"scale,omitempty" json:"scale,omitempty"`
}

// Bonus adds Add points when Metric is strictly greater than Above.
type Bonus struct {
	Metric string  `yaml:"metric" json:"metric"`
	Above  float64 `yaml:"above" json:"above"`
	Add    float64 `yaml:"add" json:"add"`
}

// LabelBonus adds points when the candidate label mentions the subject or one
// of the configured terms. It encodes a dataset naming convention and is off
// unless Add is positive.
type LabelBonus struct {
	Add   float64  `yaml:"add" json:"add"`
	Terms []string `yaml:"terms,omitempty" json:"terms,omitempty"`
}

// FloorRaise lifts confidence to To when every metric in All reaches its minimum.
type FloorRaise struct {
	All map[string]float64 `yaml:"all" json:"all"`
	To  float64            `yaml:"to" json:"to"`
}

type Clamp struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Strategy is a named scoring policy.
type Strategy struct {
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Descriptor  string             `yaml:"descriptor" json:"descriptor"`
	Weights     map[string]float64 `yaml:"weights" json:"weights"`
	Remap       Remap              `yaml:"remap" json:"remap"`
	Bonuses     []Bonus            `yaml:"bonuses,omitempty" json:"bonuses,omitempty"`
	LabelBonus  *LabelBonus        `yaml:"label_bonus,omitempty" json:"label_bonus,omitempty"`
	FloorRaise  *FloorRaise        `yaml:"floor_raise,omitempty" json:"floor_raise,omitempty"`
	Clamp       Clamp              `yaml:"clamp" json:"clamp"`
	Threshold   float64            `yaml:"threshold" json:"threshold"`
	TopK        int                `yaml:"top_k" json:"top_k"`
}

// Validate checks the strategy for internal consistency.
func (s *Strategy) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Weights) == 0 {
		errs = append(errs, errors.New("at least one weight is required"))
	}
	var sum float64
	for m, w := range s.Weights {
		if !isKnownMetric(m) {
			errs = append(errs, fmt.Errorf("unknown metric %q in weights", m))
		}
		sum += w
	}
	if len(s.Weights) > 0 && math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("weights sum to %g, want 1", sum))
	}
	switch s.Remap.Mode {
	case RemapSigned, RemapDirect, RemapFloor:
	default:
		errs = append(errs, fmt.Errorf("unknown remap mode %q", s.Remap.Mode))
	}
	for _, b := range s.Bonuses {
		if !isKnownMetric(b.Metric) {
			errs = append(errs, fmt.Errorf("unknown metric %q in bonuses", b.Metric))
		}
	}
	if s.FloorRaise != nil {
		for m := range s.FloorRaise.All {
			if !isKnownMetric(m) {
				errs = append(errs, fmt.Errorf("unknown metric %q in floor_raise", m))
			}
		}
	}
	if s.Clamp.Min > s.Clamp.Max {
		errs = append(errs, fmt.Errorf("clamp min %g exceeds max %g", s.Clamp.Min, s.Clamp.Max))
	}
	if s.Threshold < s.Clamp.Min || s.Threshold > s.Clamp.Max {
		errs = append(errs, fmt.Errorf("threshold %g outside clamp [%g, %g]", s.Threshold, s.Clamp.Min, s.Clamp.Max))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("strategy %q: %w", s.Name, err)
	}
	return nil
}

// Metrics returns every metric the strategy reads, in KnownMetrics order.
func (s *Strategy) Metrics() []string {
	used := make(map[string]bool)
	for m := range s.Weights {
		used[m] = true
	}
	for _, b := range s.Bonuses {
		used[b.Metric] = true
	}
	if s.FloorRaise != nil {
		for m := range s.FloorRaise.All {
			used[m] = true
		}
	}
	var out []string
	for _, m := range KnownMetrics {
		if used[m] {
			out = append(out, m)
		}
	}
	return out
}

// Combine maps a score set to a confidence inside the clamp interval.
// Steps run in a fixed order: weighted sum, remap, bonuses, label bonus,
// floor raise, clamp. Missing metrics count as zero. The weighted sum runs in
// KnownMetrics order so equal score sets give bit-identical confidences.
func (s *Strategy) Combine(scores ScoreSet, hints Hints) float64 {
	var combined float64
	for _, m := range KnownMetrics {
		if w, ok := s.Weights[m]; ok {
			combined += w * scores[m]
		}
	}

	var conf float64
	switch s.Remap.Mode {
	case RemapSigned:
		conf = (combined + 1) / 2 * 100
	case RemapFloor:
		conf = s.Remap.Base + combined*s.Remap.Scale
	default:
		conf = combined * 100
	}

	for _, b := range s.Bonuses {
		if scores[b.Metric] > b.Above {
			conf += b.Add
		}
	}

	if s.LabelBonus != nil && s.LabelBonus.Add > 0 && labelMatches(hints, s.LabelBonus.Terms) {
		conf += s.LabelBonus.Add
	}

	if s.FloorRaise != nil && len(s.FloorRaise.All) > 0 && allReach(scores, s.FloorRaise.All) {
		conf = max(conf, s.FloorRaise.To)
	}

	return s.clamp(conf)
}

func (s *Strategy) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return s.Clamp.Min
	}
	return max(s.Clamp.Min, min(s.Clamp.Max, v))
}

func allReach(scores ScoreSet, mins map[string]float64) bool {
	for m, lo := range mins {
		if scores[m] < lo {
			return false
		}
	}
	return true
}

func labelMatches(h Hints, terms []string) bool {
	label := facematch.NormalizePersonName(h.Label)
	if label == "" {
		return false
	}
	if subject := facematch.NormalizePersonName(h.Subject); subject != "" && strings.Contains(label, subject) {
		return true
	}
	for _, term := range terms {
		if t := facematch.NormalizePersonName(term); t != "" && strings.Contains(label, t) {
			return true
		}
	}
	return false
}

func isKnownMetric(m string) bool {
	return slices.Contains(KnownMetrics, m)
}

// WithOverrides returns a copy of s with a deployment threshold and top-K.
// A negative threshold or a zero topK keeps the strategy's own value.
func (s *Strategy) WithOverrides(threshold float64, topK int) *Strategy {
	out := *s
	if threshold >= 0 {
		out.Threshold = threshold
	}
	if topK != 0 {
		out.TopK = topK
	}
	return &out
}
