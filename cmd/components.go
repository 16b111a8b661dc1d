package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-finder/internal/audit"
	"github.com/kozaktomas/face-finder/internal/backfill"
	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/database"
	"github.com/kozaktomas/face-finder/internal/database/postgres"
	"github.com/kozaktomas/face-finder/internal/features"
	"github.com/kozaktomas/face-finder/internal/matcher"
	"github.com/kozaktomas/face-finder/internal/scoring"
	"github.com/kozaktomas/face-finder/internal/storage"
)

// Audit sinks selected by AUDIT_SINK.
const (
	sinkLog      = "log"
	sinkPostgres = "postgres"
	sinkKafka    = "kafka"
)

// components are the long-lived objects shared by the commands. The
// database-backed ones are nil unless DATABASE_URL is set.
type components struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *scoring.Registry
	strategy *scoring.Strategy

	corpus  storage.Bucket
	fetcher *storage.URLFetcher

	pipeline   *matcher.Pipeline
	dispatcher *audit.Dispatcher

	repos            *postgres.Repositories
	indexedExtractor features.Extractor
	indexed          *matcher.IndexedSearcher
	backfiller       *backfill.Backfiller

	closers []func()
}

// loadRegistry returns the built-in strategies plus the optional file.
func loadRegistry(cfg *config.Config) (*scoring.Registry, error) {
	registry, err := scoring.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("loading built-in strategies: %w", err)
	}
	if cfg.Matching.StrategiesFile != "" {
		if err := registry.LoadFile(cfg.Matching.StrategiesFile); err != nil {
			return nil, fmt.Errorf("loading strategies file: %w", err)
		}
	}
	return registry, nil
}

// resolveStrategy picks the configured strategy and applies the deployment
// overrides on top of it. The registry validated the strategy on load; an
// overridden threshold may lie outside the clamp range.
func resolveStrategy(cfg *config.Config, registry *scoring.Registry) (*scoring.Strategy, error) {
	s, err := registry.Get(cfg.Matching.Strategy)
	if err != nil {
		return nil, err
	}
	s = s.WithOverrides(cfg.Matching.Threshold, cfg.Matching.TopK)
	if cfg.Matching.LabelBonus && s.LabelBonus == nil {
		s.LabelBonus = &scoring.LabelBonus{Add: constants.DefaultLabelBonus}
	}
	return s, nil
}

func openCorpus(cfg *config.Config) (storage.Bucket, error) {
	if cfg.Storage.Remote() {
		return storage.NewRemoteBucket(cfg.Storage.URL, cfg.Storage.Bucket, cfg.Storage.Key)
	}
	return storage.NewLocalBucket(cfg.Storage.Dir)
}

func newExtractor(cfg *config.Config, descriptor string) (features.Extractor, error) {
	return features.New(cfg.Matching.Extractor, features.Options{
		Descriptor:   descriptor,
		EmbeddingURL: cfg.Embedding.URL,
		Dim:          cfg.Embedding.Dim,
	})
}

// buildComponents wires storage, scoring and the pipeline. With withDB the
// PostgreSQL backend, indexed search and backfill are set up as well, and a
// missing DATABASE_URL is an error. fetchOpts configure the locator fetcher
// shared by every component.
func buildComponents(ctx context.Context, cfg *config.Config, log *slog.Logger, withDB bool, fetchOpts ...storage.URLFetcherOption) (*components, error) {
	c := &components{cfg: cfg, logger: log}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	c.registry = registry

	if c.strategy, err = resolveStrategy(cfg, registry); err != nil {
		return nil, err
	}

	if c.corpus, err = openCorpus(cfg); err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	c.fetcher = storage.NewURLFetcher(c.corpus, fetchOpts...)

	extractor, err := newExtractor(cfg, c.strategy.Descriptor)
	if err != nil {
		return nil, err
	}

	if withDB || cfg.Database.URL != "" {
		if err := c.initDatabase(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}

	if err := c.initAudit(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.pipeline = matcher.NewPipeline(c.corpus, c.fetcher, scoring.NewScorer(c.strategy, extractor), matcher.Options{
		Workers:      cfg.Matching.Workers,
		FetchTimeout: time.Duration(cfg.Matching.FetchTimeoutSec) * time.Second,
		Logger:       log,
		Audit:        c.dispatcher,
	})

	log.Info("components ready",
		"strategy", c.strategy.Name,
		"extractor", extractor.Name(),
		"remote_storage", cfg.Storage.Remote(),
		"database", c.repos != nil,
		"audit_sink", cfg.Audit.Sink)
	return c, nil
}

func (c *components) initDatabase(ctx context.Context) error {
	if c.cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	c.logger.Info("connecting to PostgreSQL")
	pool, err := postgres.Initialize(ctx, &c.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	c.closers = append(c.closers, func() { _ = pool.Close() })
	c.repos = postgres.Register(pool)

	initEmbeddingHNSW(ctx, c.logger, c.repos.Embeddings, c.cfg.Database.HNSWIndexPath)

	// Stored embeddings are face descriptors whatever the active strategy.
	extractor, err := newExtractor(c.cfg, features.KindFace)
	if err != nil {
		return err
	}
	c.indexedExtractor = extractor

	embeddings, err := database.GetEmbeddingReader(ctx)
	if err != nil {
		return err
	}
	c.indexed = matcher.NewIndexedSearcher(c.fetcher, extractor, embeddings, c.logger)
	c.backfiller, err = c.newBackfiller(ctx, constants.DefaultBackfillWorkers)
	return err
}

// newBackfiller needs initDatabase to have run.
func (c *components) newBackfiller(ctx context.Context, workers int) (*backfill.Backfiller, error) {
	persons, err := database.GetPersonReader(ctx)
	if err != nil {
		return nil, err
	}
	embeddings, err := database.GetEmbeddingWriter(ctx)
	if err != nil {
		return nil, err
	}
	return backfill.New(backfill.Config{
		Corpus:     c.corpus,
		Fetcher:    c.fetcher,
		Extractor:  c.indexedExtractor,
		Persons:    persons,
		Embeddings: embeddings,
		Rebuilder:  database.GetEmbeddingHNSWRebuilder(),
		Workers:    workers,
		Logger:     c.logger,
	})
}

func (c *components) initAudit(ctx context.Context) error {
	var recorder audit.Recorder
	switch c.cfg.Audit.Sink {
	case "", sinkLog:
		recorder = audit.NewLogRecorder(c.logger)
	case sinkPostgres:
		if c.repos == nil {
			return errors.New("AUDIT_SINK=postgres requires DATABASE_URL")
		}
		records, err := database.GetMatchRecordWriter(ctx)
		if err != nil {
			return err
		}
		recorder = audit.NewPostgresRecorder(records)
	case sinkKafka:
		publisher, err := audit.NewKafkaPublisher(c.cfg.Audit.KafkaBrokers, c.cfg.Audit.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka audit sink: %w", err)
		}
		c.closers = append(c.closers, func() { _ = publisher.Close() })
		// Keep a local trace of published records.
		recorder = audit.MultiRecorder{publisher, audit.NewLogRecorder(c.logger)}
	default:
		return fmt.Errorf("unknown audit sink %q", c.cfg.Audit.Sink)
	}

	d, err := audit.NewDispatcher(&audit.DispatcherConfig{
		Recorder:   recorder,
		NumWorkers: uint(max(c.cfg.Audit.Workers, 0)),
		QueueSize:  uint(max(c.cfg.Audit.QueueSize, 0)),
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.dispatcher = d
	// Drain before the sinks close.
	c.closers = append([]func(){d.Close}, c.closers...)
	return nil
}

// Close drains the audit queue and releases connections.
func (c *components) Close() {
	for _, fn := range c.closers {
		fn()
	}
	c.closers = nil
}

// initEmbeddingHNSW builds or loads the embedding HNSW index for fast similarity search.
func initEmbeddingHNSW(ctx context.Context, log *slog.Logger, repo *postgres.EmbeddingRepository, indexPath string) {
	if err := repo.EnableHNSW(ctx, indexPath); err != nil {
		log.Warn("failed to build embedding HNSW index, indexed search will query PostgreSQL", "error", err)
		return
	}
	log.Info("embedding HNSW index ready", "embeddings", repo.HNSWCount(), "path", indexPath)
}

// saveHNSWIndex persists the embedding index during shutdown.
func saveHNSWIndex(ctx context.Context, log *slog.Logger) {
	rebuilder := database.GetEmbeddingHNSWRebuilder()
	if rebuilder == nil {
		return
	}
	if err := rebuilder.SaveHNSWIndex(ctx); err != nil {
		log.Warn("failed to save embedding HNSW index", "error", err)
		return
	}
	log.Info("embedding HNSW index saved")
}
