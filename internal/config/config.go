package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Storage   StorageConfig
	Matching  MatchingConfig
	Embedding EmbeddingConfig
	Database  DatabaseConfig
	Audit     AuditConfig
	Log       LogConfig
	Web       WebConfig
}

// StorageConfig selects the reference corpus. A non-empty URL selects the
// remote bucket, otherwise Dir is served as a local bucket.
type StorageConfig struct {
	Dir    string // local corpus directory (default ./dataset-images)
	URL    string // storage server base URL
	Bucket string // bucket name (default dataset-images)
	Key    string // bearer key for the storage server
}

// Remote reports whether the remote bucket is configured.
func (c *StorageConfig) Remote() bool {
	return c.URL != ""
}

type MatchingConfig struct {
	Strategy        string  // strategy name, empty selects the built-in default
	StrategiesFile  string  // optional YAML file with extra or overriding strategies
	Threshold       float64 // negative keeps the strategy threshold
	TopK            int     // zero keeps the strategy top_k
	Workers         int     // candidate worker pool size (default 8)
	FetchTimeoutSec int     // per-candidate fetch timeout (default 30)
	LabelBonus      bool    // enable the name-match bonus
	Extractor       string  // region | random | remote (default region)
}

type EmbeddingConfig struct {
	URL string // embedding server for the remote extractor
	Dim int    // defaults to 128
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the reference HNSW index (optional, rebuilt on startup if empty)
}

type AuditConfig struct {
	Sink         string   // postgres | kafka | log (default log)
	KafkaBrokers []string // comma separated in KAFKA_BROKERS
	KafkaTopic   string   // defaults to face-finder.matches
	Workers      int      // defaults to 2
	QueueSize    int      // defaults to 100
}

type LogConfig struct {
	Level string // debug | info | warn | error (default info)
	JSON  bool
	File  string // optional JSON log file written next to console output
}

type WebConfig struct {
	AllowedOrigins []string // comma separated in WEB_ALLOWED_ORIGINS
	APIKey         string   // when set, /api/v1 routes except health require it
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envBool accepts the strconv.ParseBool spellings.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			Dir:    envString("STORAGE_DIR", "./dataset-images"),
			URL:    os.Getenv("STORAGE_URL"),
			Bucket: envString("STORAGE_BUCKET", "dataset-images"),
			Key:    os.Getenv("STORAGE_KEY"),
		},
		Matching: MatchingConfig{
			Strategy:        os.Getenv("MATCH_STRATEGY"),
			StrategiesFile:  os.Getenv("MATCH_STRATEGIES_FILE"),
			Threshold:       envFloat("MATCH_THRESHOLD", -1),
			TopK:            envInt("MATCH_TOP_K", 0),
			Workers:         envInt("MATCH_WORKERS", 8),
			FetchTimeoutSec: envInt("MATCH_FETCH_TIMEOUT_SEC", 30),
			LabelBonus:      envBool("MATCH_LABEL_BONUS", false),
			Extractor:       envString("MATCH_EXTRACTOR", "region"),
		},
		Embedding: EmbeddingConfig{
			URL: envString("EMBEDDING_URL", "http://localhost:8000"),
			Dim: envInt("EMBEDDING_DIM", 128),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Audit: AuditConfig{
			Sink:         envString("AUDIT_SINK", "log"),
			KafkaBrokers: envList("KAFKA_BROKERS"),
			KafkaTopic:   envString("KAFKA_TOPIC", "face-finder.matches"),
			Workers:      envInt("AUDIT_WORKERS", 2),
			QueueSize:    envInt("AUDIT_QUEUE_SIZE", 100),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
			JSON:  envBool("LOG_JSON", false),
			File:  os.Getenv("LOG_FILE"),
		},
		Web: WebConfig{
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			APIKey:         os.Getenv("WEB_API_KEY"),
		},
	}
}
