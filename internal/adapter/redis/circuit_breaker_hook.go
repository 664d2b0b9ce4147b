package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerDelay    = 30 * time.Second
)

type breakerRecorder interface {
	BreakerChanged(to string, value float64)
}

// BreakerOptions tunes the circuit breaker. Zero values fall back to defaults.
type BreakerOptions struct {
	FailureThreshold uint
	Delay            time.Duration
}

// CircuitBreakerHook fails Redis calls fast after consecutive failures so a dead
// mirror never holds up the simulator for the full sink timeout.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook opens after FailureThreshold consecutive failures, half-opens
// after Delay, and closes again on the first success. rec may be nil.
func NewCircuitBreakerHook(opts BreakerOptions, rec breakerRecorder) *CircuitBreakerHook {
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = defaultBreakerFailures
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultBreakerDelay
	}

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(opts.FailureThreshold).
		WithDelay(opts.Delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if rec != nil {
				rec.BreakerChanged(e.NewState.String(), stateToFloat(e.NewState))
			}
		}).
		Build()

	return &CircuitBreakerHook{cb: cb}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, err
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
			cmd.SetErr(err)
			return err
		}

		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
		} else {
			h.cb.RecordSuccess()
		}
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
			for _, cmd := range cmds {
				cmd.SetErr(err)
			}
			return err
		}

		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return err
		}
		h.cb.RecordSuccess()
		return err
	}
}

// State reports the breaker state for health checks and tests.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

// ReadyCheck fails while the breaker is open.
func (h *CircuitBreakerHook) ReadyCheck(context.Context) error {
	if h.cb.State() == circuitbreaker.OpenState {
		return fmt.Errorf("redis mirror: %w", circuitbreaker.ErrOpen)
	}
	return nil
}
