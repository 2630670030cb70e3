package services

import (
	"context"
	"math"
	"time"

	"github.com/hybridsched/planner/internal/scheduling/domain"
)

// HorizonConfig carries the parameters.
type HorizonConfig struct {
	InitialHorizonDays int
	ExtensionFactor float64
	MaxHorizonDays int
}

// DefaultHorizonConfig matches the documented defaults.
func DefaultHorizonConfig() HorizonConfig {
	return HorizonConfig{InitialHorizonDays: 28, ExtensionFactor: 1.25, MaxHorizonDays: 1825}
}

// ModelBuilder rebuilds the domain model at a given horizon; supplied by the
// caller so the controller does not need to know where raw rows came from.
type ModelBuilder func(horizonDays int) (*domain.Model, error)

// HorizonController wraps the CP-SAT scheduler and grows the planning
// window until a solution is found or the cap is exceeded. Constraints are
// never relaxed; only the time window grows.
type HorizonController struct {
	scheduler CPSATBackend
	cfg HorizonConfig
}

// NewHorizonController constructs a HorizonController over scheduler.
func NewHorizonController(scheduler CPSATBackend, cfg HorizonConfig) *HorizonController {
	return &HorizonController{scheduler: scheduler, cfg: cfg}
}

// HorizonResult carries the CP-SAT result plus the horizon at which it was
// obtained.
type HorizonResult struct {
	CPSATResult
	HorizonDays int
	CapExceeded bool
}

// Run rebuilds the model at increasingly large horizons (via build) and
// invokes the scheduler until OPTIMAL/FEASIBLE is returned or
// MaxHorizonDays is exceeded.
func (h *HorizonController) Run(ctx context.Context, build ModelBuilder, taskIDs []int) (HorizonResult, error) {
	horizon := h.cfg.InitialHorizonDays
	for {
		if ctx.Err() != nil {
			return HorizonResult{HorizonDays: horizon}, ctx.Err()
		}
		model, err := build(horizon)
		if err != nil {
			return HorizonResult{HorizonDays: horizon}, err
		}

		res := h.scheduler.Solve(ctx, model, taskIDs)
		if res.Status.IsSolved() {
			return HorizonResult{CPSATResult: res, HorizonDays: horizon}, nil
		}

		next := int(math.Ceil(float64(horizon) * h.cfg.ExtensionFactor))
		if next <= horizon {
			next = horizon + 1
		}
		if next > h.cfg.MaxHorizonDays {
			return HorizonResult{CPSATResult: res, HorizonDays: horizon, CapExceeded: true}, nil
		}
		horizon = next
	}
}

// elapsedSeconds is a small helper used by callers assembling SolveTime.
func elapsedSeconds(start time.Time) float64 {
	return time.Since(start).Seconds()
}
