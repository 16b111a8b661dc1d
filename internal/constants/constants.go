// Package constants provides shared constants used across the codebase.
package constants

// Matching constants
const (
	// DefaultWorkers is the number of candidates fetched and scored in parallel
	DefaultWorkers = 8

	// DefaultFetchTimeoutSec bounds a single object fetch
	DefaultFetchTimeoutSec = 30

	// DefaultLabelBonus is the confidence added by the label bonus when it is
	// enabled without a strategy-specific value
	DefaultLabelBonus = 5.0
)

// Indexed search constants
const (
	// DefaultIndexedThreshold is the minimum cosine similarity for indexed matches
	DefaultIndexedThreshold = 0.6

	// DefaultIndexedLimit is the default number of indexed matches returned
	DefaultIndexedLimit = 5

	// MaxIndexedLimit caps the limit a caller may request
	MaxIndexedLimit = 100
)

// Processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) sent to the embedding server
	MaxImageSize = 1920

	// DefaultBackfillWorkers is the number of corpus objects embedded in parallel
	DefaultBackfillWorkers = 4
)

// Audit constants
const (
	DefaultAuditWorkers   = 2
	DefaultAuditQueueSize = 100
)
