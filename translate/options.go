// Package translate implements the chunked, concurrent translation pipeline
// for string catalogs: batches of source strings are sent to a chat
// completion backend, responses are validated, and partial results are merged
// into translated and skipped sets that together cover every requested key.
package translate

import (
	"time"

	"github.com/rs/zerolog"
)

// Placeholder policies.
const (
	// PolicyWarn logs a warning for drifted placeholders and keeps the value.
	PolicyWarn = "warn"
	// PolicyStrict skips translations whose placeholders drifted.
	PolicyStrict = "strict"
)

// Defaults used when the corresponding Options field is zero.
const (
	DefaultChunkSize      = 50
	DefaultMaxConcurrent  = 2
	DefaultRateLimitDelay = time.Second
	DefaultRetryThreshold = 10
	DefaultTemperature    = 0.3
	DefaultRequestTimeout = 120 * time.Second
	retryTemperature      = 0.3
)

// Options controls the translation behavior.
type Options struct {
	// ChunkSize is how many keys are sent per backend call.
	ChunkSize int
	// MaxConcurrent is the maximum number of chunks in flight.
	MaxConcurrent int
	// RateLimitDelay is slept by every dispatch slot before its backend call.
	// Negative disables pacing.
	RateLimitDelay time.Duration
	// RetryThreshold is the largest number of missing keys that still earns
	// a retry request. Negative disables retries.
	RetryThreshold int
	// Temperature for the primary request. Zero means DefaultTemperature.
	Temperature float32
	// RequestTimeout bounds a single backend call.
	RequestTimeout time.Duration
	// JobTimeout bounds a whole TranslateMany call (0 = no deadline).
	JobTimeout time.Duration
	// PlaceholderPolicy is PolicyWarn (default) or PolicyStrict.
	PlaceholderPolicy string
	// OnProgress is called after each chunk completes.
	OnProgress func(lang string, done, total int)
	// Logger receives pipeline logs. The zero value discards them.
	Logger zerolog.Logger
}

func (o *Options) effectiveChunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return DefaultChunkSize
}

func (o *Options) effectiveMaxConcurrent() int {
	if o.MaxConcurrent > 0 {
		return o.MaxConcurrent
	}
	return DefaultMaxConcurrent
}

func (o *Options) effectiveDelay() time.Duration {
	if o.RateLimitDelay < 0 {
		return 0
	}
	if o.RateLimitDelay > 0 {
		return o.RateLimitDelay
	}
	return DefaultRateLimitDelay
}

func (o *Options) effectiveRetryThreshold() int {
	if o.RetryThreshold < 0 {
		return 0
	}
	if o.RetryThreshold > 0 {
		return o.RetryThreshold
	}
	return DefaultRetryThreshold
}

func (o *Options) effectiveTemperature() float32 {
	if o.Temperature > 0 {
		return o.Temperature
	}
	return DefaultTemperature
}

func (o *Options) effectiveTimeout() time.Duration {
	if o.RequestTimeout > 0 {
		return o.RequestTimeout
	}
	return DefaultRequestTimeout
}

func (o *Options) strict() bool {
	return o.PlaceholderPolicy == PolicyStrict
}
