package scoring

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed strategies.yaml
var builtinYAML []byte

// ErrUnknownStrategy is returned for a strategy name that is not registered.
var ErrUnknownStrategy = errors.New("unknown scoring strategy")

type strategyFile struct {
	Default    string     `yaml:"default"`
	Strategies []Strategy `yaml:"strategies"`
}

// Registry holds the named strategies available to the pipeline.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]*Strategy
	def        string
}

// NewRegistry returns a registry preloaded with the built-in strategies.
func NewRegistry() (*Registry, error) {
	r := &Registry{strategies: make(map[string]*Strategy)}
	if err := r.load(builtinYAML); err != nil {
		return nil, fmt.Errorf("built-in strategies: %w", err)
	}
	return r, nil
}

// LoadFile adds or overrides strategies from a YAML file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("read strategies file: %w", err)
	}
	if err := r.load(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (r *Registry) load(data []byte) error {
	var f strategyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse strategies: %w", err)
	}
	for i := range f.Strategies {
		if err := f.Strategies[i].Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range f.Strategies {
		s := f.Strategies[i]
		r.strategies[s.Name] = &s
	}
	if f.Default != "" {
		if _, ok := r.strategies[f.Default]; !ok {
			return fmt.Errorf("%w: default %q", ErrUnknownStrategy, f.Default)
		}
		r.def = f.Default
	}
	return nil
}

// Get returns a copy of the named strategy. An empty name selects the default.
func (r *Registry) Get(name string) (*Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.def
	}
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	cp := *s
	return &cp, nil
}

// Default returns the name of the default strategy.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Names returns the registered strategy names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List returns copies of all strategies sorted by name.
func (r *Registry) List() []Strategy {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		out = append(out, *r.strategies[n])
	}
	return out
}
