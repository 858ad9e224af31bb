package fetcher

import (
	"context"
	"errors"

	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/circuitbreaker"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/retrypolicy"
	pipelineerr "github.com/r3e-labs/inmarket-pipeline/internal/platform/pipelineerr"
)

// Resilient wraps a Fetcher with the retry and circuit-breaker policy of
// §4.3/§4.4: the breaker is consulted on every attempt, inside the retry
// loop, so an open breaker fails the call immediately without spending an
// attempt on it, and ErrNotFound (an exchange holiday, never worth
// retrying) short-circuits the loop the same way.
type Resilient struct {
	inner    Fetcher
	breakers *circuitbreaker.Registry
	retry    retrypolicy.Config
}

// NewResilient wraps inner with breakers (keyed by inner.Source()) and
// retry.
func NewResilient(inner Fetcher, breakers *circuitbreaker.Registry, retry retrypolicy.Config) *Resilient {
	return &Resilient{inner: inner, breakers: breakers, retry: retry}
}

// Source delegates to the wrapped fetcher.
func (r *Resilient) Source() string { return r.inner.Source() }

// Fetch runs the wrapped fetcher's Fetch under the source's circuit
// breaker, retrying retryable failures with backoff per r.retry.
func (r *Resilient) Fetch(ctx context.Context, params Params) ([]byte, error) {
	breaker := r.breakers.Get(r.inner.Source())

	var result []byte
	runErr := retrypolicy.Do(ctx, r.retry, func() error {
		attemptErr := breaker.Execute(ctx, func() error {
			raw, err := r.inner.Fetch(ctx, params)
			if err != nil {
				return err
			}
			result = raw
			return nil
		})
		switch {
		case errors.Is(attemptErr, ErrNotFound):
			// A 404 is a fact about the date, not a transient failure;
			// never worth a retry attempt, per §4.4/§7.
			return pipelineerr.Wrap(pipelineerr.ErrCodeSourceHTTPStatus, "source reported not found", 404, attemptErr).
				WithDetails("source", r.inner.Source())
		case errors.Is(attemptErr, circuitbreaker.ErrCircuitOpen), errors.Is(attemptErr, circuitbreaker.ErrTooManyRequests):
			// Propagate immediately without spending further attempts;
			// the breaker itself governs when calls resume, per §4.2/§4.3.
			return pipelineerr.Wrap(pipelineerr.ErrCodeCircuitOpen, "circuit breaker open for source", 503, attemptErr).
				WithDetails("source", r.inner.Source())
		default:
			return attemptErr
		}
	})

	if runErr != nil {
		if errors.Is(runErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(runErr, circuitbreaker.ErrCircuitOpen) || errors.Is(runErr, circuitbreaker.ErrTooManyRequests) {
			return nil, runErr
		}
		return nil, runErr
	}
	return result, nil
}
