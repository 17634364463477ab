package ripple

import "time"

// Config holds the configuration for an Engine instance.
type Config struct {
	// Concurrency is the number of items processed in parallel per batch.
	Concurrency int

	// PollInterval is how often the background poller claims a batch.
	PollInterval time.Duration

	// BatchSize is the maximum number of items claimed per poll cycle.
	BatchSize int

	// MaxAttempts is the attempt budget before an item goes dead.
	MaxAttempts int

	// BackoffBase is the delay before the first retry. Each further retry
	// doubles it.
	BackoffBase time.Duration

	// BackoffCap bounds the retry delay.
	BackoffCap time.Duration

	// ActionTimeout bounds each non-wait action, including webhook calls.
	ActionTimeout time.Duration

	// MaxChainDepth bounds trigger_event chains. An action exceeding it
	// fails permanently.
	MaxChainDepth int

	// RuleCacheTTL is the TTL for the matcher's in-memory active rule cache.
	// Set to 0 to cache until invalidation.
	RuleCacheTTL time.Duration

	// SignatureTolerance bounds the accepted clock skew on inbound webhook
	// timestamps. Set to 0 to disable the check.
	SignatureTolerance time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        4,
		PollInterval:       15 * time.Second,
		BatchSize:          25,
		MaxAttempts:        5,
		BackoffBase:        30 * time.Second,
		BackoffCap:         1 * time.Hour,
		ActionTimeout:      10 * time.Second,
		MaxChainDepth:      5,
		RuleCacheTTL:       30 * time.Second,
		SignatureTolerance: 5 * time.Minute,
	}
}
