// Package retry defines the retry and backoff policy for queue processing.
package retry

import "time"

// Config is the immutable retry policy shared by the processor and the
// scheduler. Delay grows exponentially with the retry count and is capped
// at MaxDelay.
type Config struct {
	// BatchSize is the number of queue items drained per processing round.
	BatchSize int

	// MaxRetries is the number of failed attempts before an item is
	// marked FAILED permanently.
	MaxRetries int

	// BaseDelay is the backoff delay for the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// SyncInterval is the period between scheduled processing runs.
	SyncInterval time.Duration
}

// DefaultConfig mirrors the backoff ladder 1s, 2s, 4s, 8s, 16s.
var DefaultConfig = Config{
	BatchSize:    10,
	MaxRetries:   5,
	BaseDelay:    time.Second,
	MaxDelay:     16 * time.Second,
	SyncInterval: 30 * time.Second,
}

// Delay returns the backoff delay for a given retry count (0-indexed):
// BaseDelay * 2^retryCount, capped at MaxDelay.
func (c Config) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	delay := c.BaseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}

	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// ShouldRetry reports whether another attempt is allowed for the given
// retry count.
func (c Config) ShouldRetry(retryCount int) bool {
	return retryCount < c.MaxRetries
}
