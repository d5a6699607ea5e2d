package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Completion is one chat completion request: a system instruction block, the
// user payload, and the sampling temperature.
type Completion struct {
	System      string
	User        string
	Temperature float32
}

// Backend turns a completion request into the assistant's reply text.
// Implementations must be safe for concurrent use.
type Backend interface {
	Complete(ctx context.Context, c Completion) (string, error)
}

// BackendFunc adapts a plain function to Backend.
type BackendFunc func(ctx context.Context, c Completion) (string, error)

// Complete calls f.
func (f BackendFunc) Complete(ctx context.Context, c Completion) (string, error) {
	return f(ctx, c)
}

// GuardOptions configures Guard.
type GuardOptions struct {
	// Name identifies the circuit breaker in logs.
	Name string
	// BreakerFailures is the number of consecutive failures that opens the
	// breaker. Zero means 5.
	BreakerFailures int
	// BreakerCooldown is how long the breaker stays open before probing
	// again. Zero means 30s.
	BreakerCooldown time.Duration
	// RequestsPerMinute caps the backend call rate (0 = unlimited).
	RequestsPerMinute int
	Logger            zerolog.Logger
}

type guardedBackend struct {
	next    Backend
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// Guard wraps b with a circuit breaker and an optional request rate limiter.
// While the breaker is open calls fail fast with gobreaker.ErrOpenState.
func Guard(b Backend, opts GuardOptions) Backend {
	failures := opts.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	name := opts.Name
	if name == "" {
		name = "backend"
	}
	logger := opts.Logger

	g := &guardedBackend{next: b}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the caller's doing, not a backend fault.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	if opts.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return g
}

func (g *guardedBackend) Complete(ctx context.Context, c Completion) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Complete(ctx, c)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
