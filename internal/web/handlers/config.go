package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/database"
	"github.com/kozaktomas/face-finder/internal/scoring"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config   *config.Config
	strategy *scoring.Strategy
	registry *scoring.Registry
}

// NewConfigHandler creates a new config handler. strategy is the resolved
// strategy the pipeline runs with.
func NewConfigHandler(cfg *config.Config, strategy *scoring.Strategy, registry *scoring.Registry) *ConfigHandler {
	return &ConfigHandler{
		config:   cfg,
		strategy: strategy,
		registry: registry,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Strategy        string  `json:"strategy"`
	Extractor       string  `json:"extractor"`
	Threshold       float64 `json:"threshold"`
	TopK            int     `json:"top_k"`
	Workers         int     `json:"workers"`
	Storage         string  `json:"storage"`
	IndexedSearch   bool    `json:"indexed_search"`
	HNSWEnabled     bool    `json:"hnsw_enabled"`
	HNSWCount       int     `json:"hnsw_count"`
	AuditSink       string  `json:"audit_sink"`
	LabelBonusOn    bool    `json:"label_bonus"`
	StrategiesTotal int     `json:"strategies_total"`
}

// Get returns the active matching configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	storage := "local"
	if h.config.Storage.Remote() {
		storage = "remote"
	}

	response := ConfigResponse{
		Strategy:      h.strategy.Name,
		Extractor:     h.config.Matching.Extractor,
		Threshold:     h.strategy.Threshold,
		TopK:          h.strategy.TopK,
		Workers:       h.config.Matching.Workers,
		Storage:       storage,
		IndexedSearch: database.IsInitialized(),
		AuditSink:     h.config.Audit.Sink,
		LabelBonusOn:  h.strategy.LabelBonus != nil && h.strategy.LabelBonus.Add > 0,
	}
	if h.registry != nil {
		response.StrategiesTotal = len(h.registry.Names())
	}
	if rebuilder := database.GetEmbeddingHNSWRebuilder(); rebuilder != nil {
		response.HNSWEnabled = rebuilder.IsHNSWEnabled()
		response.HNSWCount = rebuilder.HNSWCount()
	}

	respondJSON(w, http.StatusOK, response)
}

// StrategiesResponse lists the registered scoring strategies
type StrategiesResponse struct {
	Default    string             `json:"default"`
	Active     string             `json:"active"`
	Strategies []scoring.Strategy `json:"strategies"`
}

// Strategies returns every registered strategy
func (h *ConfigHandler) Strategies(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		respondJSON(w, http.StatusOK, StrategiesResponse{Active: h.strategy.Name, Strategies: []scoring.Strategy{*h.strategy}})
		return
	}
	respondJSON(w, http.StatusOK, StrategiesResponse{
		Default:    h.registry.Default(),
		Active:     h.strategy.Name,
		Strategies: h.registry.List(),
	})
}
