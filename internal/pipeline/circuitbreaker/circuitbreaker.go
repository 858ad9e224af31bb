// Package circuitbreaker provides a per-source circuit breaker registry for
// the pipeline's fetch stage, backed by github.com/sony/gobreaker/v2.
//
// Each ingest source (NSE bhavcopy, BSE bhavcopy, NSE bulk/block deals, ...)
// gets its own breaker so a single failing exchange endpoint does not stall
// runs for unrelated sources sharing the same scheduler tick.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/r3e-labs/inmarket-pipeline/internal/platform/logging"
)

// State represents circuit breaker state.
type State int

const (
	StateClosed State = State(gobreaker.StateClosed)
	StateOpen   State = State(gobreaker.StateOpen)
	StateHalf   State = State(gobreaker.StateHalfOpen)
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalf:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config configures a single source's circuit breaker.
type Config struct {
	MaxFailures   int           // consecutive failures before opening
	Timeout       time.Duration // time in open state before half-open
	HalfOpenMax   int           // max requests allowed in half-open
	OnStateChange func(source string, from, to State)
}

// DefaultConfig returns the breaker settings used for exchange source fetches
// unless a source overrides them.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	}
}

// Breaker wraps gobreaker.CircuitBreaker for a single source.
type Breaker struct {
	gb *gobreaker.CircuitBreaker[any]
}

func newBreaker(source string, cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}

	maxFailures := uint32(cfg.MaxFailures)
	settings := gobreaker.Settings{
		Name:        source,
		MaxRequests: uint32(cfg.HalfOpenMax),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}

	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(name, State(from), State(to))
		}
	}

	return &Breaker{gb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	return State(b.gb.State())
}

// Execute runs fn with circuit breaker protection. The ctx parameter is
// accepted for call-site symmetry with the rest of the fetch pipeline;
// callers should enforce their own deadline on fn via context.
func (b *Breaker) Execute(_ context.Context, fn func() error) error {
	_, err := b.gb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err != nil {
		return mapGobreakerError(err)
	}
	return nil
}

func mapGobreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return ErrCircuitOpen
	}
	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrTooManyRequests
	}
	return err
}

// Registry lazily creates and caches one Breaker per source name.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	logger   *logging.Logger
	breakers map[string]*Breaker
}

// NewRegistry creates a breaker registry. cfg is applied to every source's
// breaker; there is no per-source override.
func NewRegistry(cfg Config, logger *logging.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for source, creating it on first use.
func (r *Registry) Get(source string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[source]; ok {
		return b
	}

	cfg := r.cfg
	if cfg.OnStateChange == nil && r.logger != nil {
		logger := r.logger
		cfg.OnStateChange = func(src string, from, to State) {
			logger.WithFields(map[string]interface{}{
				"source":     src,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("circuit breaker state changed")
		}
	}

	b := newBreaker(source, cfg)
	r.breakers[source] = b
	return b
}

// States returns the current state of every breaker created so far, keyed
// by source name.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for source, b := range r.breakers {
		out[source] = b.State()
	}
	return out
}
