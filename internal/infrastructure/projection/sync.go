package projection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
)

// Invalidator drops cached read results.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// SyncConfig tunes the post-command sync step.
type SyncConfig struct {
	// Timeout bounds one catch-up plus invalidation. Zero means no bound.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
}

// DefaultSyncConfig returns the defaults used by the CLI.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Timeout:          2 * time.Second,
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
	}
}

// SyncStep runs catch-up and cache invalidation after a command. Repeated
// failures open a circuit breaker so commands stop paying for a broken read
// database until the cooldown has elapsed.
type SyncStep struct {
	orch    *Orchestrator
	cache   Invalidator
	breaker circuitbreaker.CircuitBreaker[int]
	timeout time.Duration
	logger  *slog.Logger
}

// NewSyncStep creates a sync step. cache may be nil.
func NewSyncStep(orch *Orchestrator, cache Invalidator, cfg SyncConfig, logger *slog.Logger) *SyncStep {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultSyncConfig().FailureThreshold
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultSyncConfig().Cooldown
	}
	return &SyncStep{
		orch:  orch,
		cache: cache,
		breaker: circuitbreaker.New[int](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cooldown,
			Timeout:     cooldown,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounded config value
			},
		}),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Sync catches projections up and invalidates the cache. Records rejected
// for tree violations are reported in the error but do not count against
// the breaker.
func (s *SyncStep) Sync(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var rejected error
	n, err := s.breaker.Execute(ctx, func(ctx context.Context) (int, error) {
		n, err := s.orch.CatchUp(ctx)
		if errors.Is(err, ErrTreeViolation) {
			rejected, err = err, nil
		}
		// Rows may have changed even when catch-up stopped early.
		if s.cache != nil {
			if invErr := s.cache.Invalidate(ctx); invErr != nil {
				err = errors.Join(err, invErr)
			}
		}
		return n, err
	})
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Debug("projections caught up", "records", n)
	}
	return rejected
}

// State returns the breaker state: "closed", "half-open" or "open".
func (s *SyncStep) State() string {
	return s.breaker.State().String()
}
