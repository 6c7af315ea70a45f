// Package resilience wraps model-provider calls with retry and a
// per-operation circuit breaker, so one misbehaving upstream cannot stall
// every query.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/domain"
)

// Config tunes retry and breaker behavior. Zero values receive defaults in
// normalize.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	BreakerEnabled   bool
	FailureRatio     float64
	MinRequests      uint32
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

func (c Config) normalize() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.5
	}
	if c.MinRequests == 0 {
		c.MinRequests = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = 2
	}
	return c
}

// Executor runs operations under retry and an independent breaker per
// operation name.
type Executor struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewExecutor creates an executor. logger may be nil.
func NewExecutor(cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:      cfg.normalize(),
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Execute runs fn under the operation's breaker with retry. An open breaker
// surfaces as domain.ErrUpstreamUnavailable so callers degrade the signal
// the same way as any other outage.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}

	if !e.cfg.BreakerEnabled {
		return e.withRetry(ctx, operation, fn)
	}

	_, err := e.breaker(operation).Execute(func() (any, error) {
		return nil, e.withRetry(ctx, operation, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open for %s", domain.ErrUpstreamUnavailable, operation)
	}
	return err
}

func (e *Executor) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	backoff := e.cfg.InitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == e.cfg.MaxAttempts {
			return err
		}

		e.logger.Warn("retrying operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * e.cfg.Multiplier)
		if backoff > e.cfg.MaxBackoff {
			backoff = e.cfg.MaxBackoff
		}
	}
}

func (e *Executor) breaker(operation string) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.HalfOpenMaxCalls,
		Timeout:     e.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit breaker state change",
				zap.String("operation", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	e.breakers[operation] = cb
	return cb
}

// retryable: timeouts and provider 5xx/429-style failures are worth another
// attempt; everything else fails fast.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrUpstreamTimeout) ||
		errors.Is(err, domain.ErrModelProviderError) ||
		errors.Is(err, context.DeadlineExceeded)
}
