package plugin

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"

	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
)

// ErrBreakerFallback is logged (not surfaced to the caller) whenever the
// breaker is open or the out-of-process backend errors; BreakerBackend
// always falls back to the in-process solver rather than failing the
// planning call.
var ErrBreakerFallback = errors.New("scheduling: scheduler plugin unavailable, used in-process fallback")

// BreakerBackend wraps an out-of-process SchedulerBackend in a circuit
// breaker: repeated MODEL_INVALID/timeout responses trip the breaker, and
// every call while it is open (or that errors outright) falls back to the
// in-process pure-Go CP-SAT implementation instead of failing the
// planning call.
type BreakerBackend struct {
	remote SchedulerBackend
	fallback services.CPSATBackend
	breaker *gobreaker.CircuitBreaker[SolveResponse]
	onFallback func(error)
}

// NewBreakerBackend constructs a BreakerBackend. onFallback, if non-nil,
// is invoked whenever a call falls back to the in-process solver, so
// callers can log it without BreakerBackend taking a logger dependency.
func NewBreakerBackend(remote SchedulerBackend, fallback services.CPSATBackend, onFallback func(error)) *BreakerBackend {
	settings := gobreaker.Settings{
		Name: "cpsat-scheduler-plugin",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &BreakerBackend{
		remote: remote,
		fallback: fallback,
		breaker: gobreaker.NewCircuitBreaker[SolveResponse](settings),
		onFallback: onFallback,
	}
}

// Solve satisfies services.CPSATBackend: it prefers the out-of-process
// backend and transparently falls back to the in-process solver on any
// breaker trip or remote failure.
func (b *BreakerBackend) Solve(ctx context.Context, model *domain.Model, taskIDs []int) services.CPSATResult {
	req := BuildSolveRequest(model, taskIDs)

	resp, err := b.breaker.Execute(func() (SolveResponse, error) {
		resp, err := b.remote.Solve(req)
		if err != nil {
			return SolveResponse{}, err
		}
		if resp.Status == string(services.StatusModelInvalid) {
			return SolveResponse{}, errors.New("scheduling: scheduler plugin reported MODEL_INVALID")
		}
		return resp, nil
	})
	if err != nil {
		if b.onFallback != nil {
			b.onFallback(errors.Join(ErrBreakerFallback, err))
		}
		return b.fallback.Solve(ctx, model, taskIDs)
	}

	result, err := resp.ToCPSATResult()
	if err != nil {
		if b.onFallback != nil {
			b.onFallback(errors.Join(ErrBreakerFallback, err))
		}
		return b.fallback.Solve(ctx, model, taskIDs)
	}
	return result
}
