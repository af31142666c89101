package chunkuploader

import (
	"time"
)

// Config holds configuration for the chunk uploader.
type Config struct {
	// MaxRetryPerChunk is the number of additional attempts for a chunk whose failure
	// IsRetryable accepts. Default: 0, a failed chunk fails the upload.
	MaxRetryPerChunk int

	// RetryWait is the pause before every retry.
	// Default: 2 seconds
	RetryWait time.Duration

	// IsRetryable decides whether a failed attempt may be repeated.
	// If nil, no failure is retried.
	IsRetryable func(error) bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetryPerChunk: 0,
		RetryWait:        2 * time.Second,
		IsRetryable:      nil,
	}
}

func (c Config) retryable(err error) bool {
	return c.IsRetryable != nil && c.IsRetryable(err)
}

func (c Config) maxRetries() uint {
	if c.MaxRetryPerChunk < 0 {
		return 0
	}
	return uint(c.MaxRetryPerChunk)
}
