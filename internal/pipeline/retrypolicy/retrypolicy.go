// Package retrypolicy provides classified exponential-backoff retry for the
// pipeline's fetch stage (fetcher.Resilient), backed by
// github.com/cenkalti/backoff/v4. The warehouse loader runs its own retry
// loop and does not call Do.
//
// "Classified" means the policy consults internal/platform/pipelineerr to
// decide whether a failure is worth retrying at all (a malformed-record
// parse error never succeeds on retry; a source timeout often does) before
// spending a backoff slot on it.
package retrypolicy

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	pipelineerr "github.com/r3e-labs/inmarket-pipeline/internal/platform/pipelineerr"
)

// Config configures retry behavior for one class of operation (source
// fetch, warehouse load, ...).
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, randomization factor
}

// DefaultConfig returns the retry settings used for exchange source fetches
// unless a caller overrides them.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// WarehouseConfig returns retry settings tuned for ClickHouse load retries:
// one more attempt and longer delays, since a warehouse outage rarely clears in
// under a second.
func WarehouseConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Do executes fn with exponential backoff, skipping the remaining attempts
// as soon as pipelineerr.IsRetryable reports the most recent error is not
// worth retrying.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		bo.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		bo.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		bo.Multiplier = cfg.Multiplier
	}
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0 // bounded by MaxRetries below, not elapsed time

	maxRetries := uint64(cfg.MaxAttempts - 1)
	withMax := backoff.WithMaxRetries(bo, maxRetries)
	withCtx := backoff.WithContext(withMax, ctx)

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !pipelineerr.IsRetryable(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, withCtx)

	if err == nil {
		return nil
	}
	// Unwrap backoff.Permanent back to the caller's original error, and
	// prefer the raw last attempt's error over backoff's own bookkeeping
	// error (e.g. context cancellation) when both are available.
	if lastErr != nil {
		return lastErr
	}
	return err
}
