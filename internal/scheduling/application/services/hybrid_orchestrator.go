package services

import (
	"context"
	"time"

	"github.com/hybridsched/planner/internal/scheduling/domain"
)

// RoutingThresholds carries the four greedy-routing knobs.
type RoutingThresholds struct {
	Tasks int
	Hours int
	Users int
	AvgHours float64
}

// DefaultRoutingThresholds matches the documented defaults.
func DefaultRoutingThresholds() RoutingThresholds {
	return RoutingThresholds{Tasks: 50, Hours: 1000, Users: 10, AvgHours: 100}
}

// OrchestratorConfig bundles every knob the hybrid orchestrator needs.
type OrchestratorConfig struct {
	HybridMode bool
	Thresholds RoutingThresholds
	ResidualMaxTasks int // skip the CP-SAT reconciliation pass above this residual size
	ResidualTimeLimit time.Duration
	Horizon HorizonConfig
	CPSAT CPSATConfig
}

// DefaultOrchestratorConfig matches the documented defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		HybridMode: true,
		Thresholds: DefaultRoutingThresholds(),
		ResidualMaxTasks: 20,
		ResidualTimeLimit: 10 * time.Second,
		Horizon: DefaultHorizonConfig(),
		CPSAT: DefaultCPSATConfig(),
	}
}

// Orchestrator classifies the workload, routes to greedy or CP-SAT,
// optionally reconciles the greedy residual with CP-SAT, and falls back to
// full CP-SAT when greedy makes no progress at all.
type Orchestrator struct {
	cfg OrchestratorConfig
	greedy *GreedyScheduler
	cpsat CPSATBackend
	horizon *HorizonController
}

// NewOrchestrator constructs the hybrid orchestrator against the
// in-process pure-Go CP-SAT implementation.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	cpsat := NewCPSATScheduler(cfg.CPSAT)
	return &Orchestrator{
		cfg: cfg,
		greedy: NewGreedyScheduler(),
		cpsat: cpsat,
		horizon: NewHorizonController(cpsat, cfg.Horizon),
	}
}

// WithCPSATBackend swaps the CP-SAT backend the orchestrator and its
// horizon controller run against, e.g. for a circuit-breaker-wrapped
// out-of-process plugin backend.
func (o *Orchestrator) WithCPSATBackend(backend CPSATBackend) *Orchestrator {
	o.cpsat = backend
	o.horizon = NewHorizonController(backend, o.cfg.Horizon)
	return o
}

// Outcome is what the orchestrator hands to the solution assembler.
type Outcome struct {
	Assignments []domain.Assignment
	AlgorithmUsed Algorithm
	ObjectiveValue *int
	Status ResultStatus
	HorizonDays int
	SolveTimeSec float64
}

// shouldGreedy implements the routing rule: greedy is selected when
// any threshold is met; otherwise CP-SAT.
func shouldGreedy(model *domain.Model, th RoutingThresholds) bool {
	tasks := model.Tasks()
	n := len(tasks)
	if n == 0 {
		return true
	}
	var totalHours, userSet = 0, map[int]bool{}
	for _, t := range tasks {
		totalHours += t.RemainingHours
		userSet[t.ResourceID] = true
	}
	avg := float64(totalHours) / float64(n)
	return n > th.Tasks || totalHours > th.Hours || len(userSet) > th.Users || avg > th.AvgHours
}

// Run executes the control flow. model is used for routing and for the
// greedy pass. Every full CP-SAT run goes through the horizon controller,
// which calls build to rebuild the model from the same raw input rows,
// first at the configured initial horizon and then at each larger one.
func (o *Orchestrator) Run(ctx context.Context, model *domain.Model, build ModelBuilder) Outcome {
	start := time.Now()

	if !o.cfg.HybridMode {
		return o.runFullCPSAT(ctx, build, start)
	}

	if !shouldGreedy(model, o.cfg.Thresholds) {
		return o.runFullCPSAT(ctx, build, start)
	}

	greedyRes := o.greedy.Schedule(ctx, model, nil, nil)

	if len(greedyRes.Assignments) == 0 && len(greedyRes.Residual) > 0 {
		// Greedy made zero progress: discard and fall back.
		out := o.runFullCPSAT(ctx, build, start)
		out.AlgorithmUsed = AlgorithmOrtoolsFallbk
		return out
	}

	if len(greedyRes.Residual) == 0 {
		return Outcome{
			Assignments: greedyRes.Assignments,
			AlgorithmUsed: AlgorithmGreedy,
			Status: ResultOptimal,
			HorizonDays: model.HorizonDays,
			SolveTimeSec: elapsedSeconds(start),
		}
	}

	if len(greedyRes.Residual) > o.cfg.ResidualMaxTasks {
		// Residual too large to be worth a CP-SAT reconciliation pass.
		return Outcome{
			Assignments: greedyRes.Assignments,
			AlgorithmUsed: AlgorithmGreedy,
			Status: ResultPartial,
			HorizonDays: model.HorizonDays,
			SolveTimeSec: elapsedSeconds(start),
		}
	}

	residualIDs := make([]int, len(greedyRes.Residual))
	residualHours := make(map[int]int, len(greedyRes.Residual))
	for i, r := range greedyRes.Residual {
		residualIDs[i] = r.TaskID
		residualHours[r.TaskID] = r.HoursNeeded
	}
	residualCfg := o.cfg.CPSAT
	residualCfg.TimeLimit = o.cfg.ResidualTimeLimit
	residualScheduler := NewCPSATScheduler(residualCfg)
	residualModel := domain.OverrideRemainingHours(residualOnlyModel(model, greedyRes), residualHours)
	cpsatRes := residualScheduler.Solve(ctx, residualModel, residualIDs)

	merged := append(append([]domain.Assignment{}, greedyRes.Assignments...), cpsatRes.Assignments...)
	status := ResultPartial
	if cpsatRes.Status.IsSolved() && allResidualCovered(greedyRes.Residual, cpsatRes.Assignments) {
		status = ResultOptimal
	}

	return Outcome{
		Assignments: merged,
		AlgorithmUsed: AlgorithmHybrid,
		Status: status,
		HorizonDays: model.HorizonDays,
		SolveTimeSec: elapsedSeconds(start),
	}
}

func (o *Orchestrator) runFullCPSAT(ctx context.Context, build ModelBuilder, start time.Time) Outcome {
	hr, err := o.horizon.Run(ctx, build, nil)
	status := ResultInfeasible
	var objective *int
	if err == nil {
		if hr.Status.IsSolved() {
			status = ResultOptimal
			v := hr.ObjectiveValue
			objective = &v
		} else if hr.CapExceeded {
			status = ResultInfeasible
		}
	}
	return Outcome{
		Assignments: hr.Assignments,
		AlgorithmUsed: AlgorithmOrtools,
		ObjectiveValue: objective,
		Status: status,
		HorizonDays: hr.HorizonDays,
		SolveTimeSec: elapsedSeconds(start),
	}
}

// residualOnlyModel restricts resource-hour exclusivity to hours not
// already occupied by greedy's assignments, by rebuilding the candidate
// lists with those hours excluded. Occupancy is keyed by
// (resource_id, date, hour), not by domain.SlotUnit directly: a SlotUnit
// embeds the TaskID it was assigned to, so keying on it would only ever
// exclude a task's own prior candidates and let a residual task see
// (and double-book) a resource-hour that a *different* task's greedy
// assignment already consumed.
func residualOnlyModel(model *domain.Model, greedy GreedyResult) *domain.Model {
	type resourceHour struct {
		resourceID int
		date       string
		hour       int
	}
	occupied := make(map[resourceHour]bool, len(greedy.Assignments))
	for _, a := range greedy.Assignments {
		task, ok := model.Task(a.TaskID)
		if !ok {
			continue
		}
		occupied[resourceHour{resourceID: task.ResourceID, date: a.Date.String(), hour: a.Hour}] = true
	}
	return domain.FilterCandidates(model, func(su domain.SlotUnit) bool {
		task, ok := model.Task(su.TaskID)
		if !ok {
			return false
		}
		return !occupied[resourceHour{resourceID: task.ResourceID, date: su.Date.String(), hour: su.Hour}]
	})
}

func allResidualCovered(residual []ResidualTask, assignments []domain.Assignment) bool {
	got := make(map[int]int)
	for _, a := range assignments {
		got[a.TaskID]++
	}
	for _, r := range residual {
		if got[r.TaskID] < r.HoursNeeded {
			return false
		}
	}
	return true
}
