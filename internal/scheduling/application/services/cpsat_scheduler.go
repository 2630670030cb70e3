package services

import (
	"context"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hybridsched/planner/internal/scheduling/domain"
)

// Status mirrors the reported solver statuses.
type Status string

const (
	StatusOptimal Status = "OPTIMAL"
	StatusFeasible Status = "FEASIBLE"
	StatusInfeasible Status = "INFEASIBLE"
	StatusModelInvalid Status = "MODEL_INVALID"
	StatusUnknown Status = "UNKNOWN"
)

// IsSolved reports whether status represents a usable solution; the other
// three statuses are treated as no-solution.
func (s Status) IsSolved() bool { return s == StatusOptimal || s == StatusFeasible }

// CPSATBackend is the CP-SAT scheduler's contract, satisfied by the
// in-process pure-Go implementation below and by a circuit-breaker-wrapped
// out-of-process plugin backend, so the orchestrator and horizon
// controller can run against either without knowing which is in play.
type CPSATBackend interface {
	Solve(ctx context.Context, model *domain.Model, taskIDs []int) CPSATResult
}

// CPSATConfig carries the solver parameters.
type CPSATConfig struct {
	TimeLimit time.Duration
	Workers int
	LogProgress bool
}

// DefaultCPSATConfig matches the documented defaults.
func DefaultCPSATConfig() CPSATConfig {
	return CPSATConfig{TimeLimit: 30 * time.Second, Workers: 4}
}

// CPSATResult is the solver's output contract.
type CPSATResult struct {
	Status Status
	Assignments []domain.Assignment
	ObjectiveValue int // total task-days used (sum of day[t,date])
	Branches int
	Conflicts int
}

// CPSATScheduler is a from-scratch pure-Go exact solver over the Boolean
// model: one variable x[t,date,hour] per candidate slot unit,
// hour-count equality per task, resource-exclusivity per (resource,date,hour),
// and the dispersion objective, the number of distinct (task, date) pairs
// used. The objective is counted on each attempt's matching; it is not
// searched for a minimum beyond keeping the lowest count among the
// workers' attempts. Feasibility is decided exactly by reducing hour-count equality
// plus resource-exclusivity to maximum bipartite matching (one task-hour
// demand unit per left node, one resource-hour slot per right node) and
// solving it with Kuhn's augmenting-path algorithm: a demand unit whose
// candidate slots are all taken tries to bump each occupant onto one of
// its own alternative slots before giving up, so placement order never
// produces a false INFEASIBLE the way a single greedy pass would. Maximum
// matching cardinality is invariant to processing order (König's theorem),
// so every worker agrees on feasibility; only the dispersion objective
// varies across workers, which try different task/candidate tie-break
// orders and report the best (lowest) objective among solved attempts.
//
// No CP-SAT/OR-Tools binding is available to this module (see DESIGN.md);
// this solver is the one component in the engine with no third-party
// dependency to wire, by necessity rather than convenience.
type CPSATScheduler struct {
	cfg CPSATConfig
}

// NewCPSATScheduler constructs a scheduler with the given solver parameters.
func NewCPSATScheduler(cfg CPSATConfig) *CPSATScheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &CPSATScheduler{cfg: cfg}
}

// Solve runs the constraint model against the tasks named in taskIDs (nil
// means "all tasks in model"), honoring the solver's time limit. It spawns
// up to cfg.Workers independent search attempts with different tie-break
// orderings and keeps the best result.
func (s *CPSATScheduler) Solve(ctx context.Context, model *domain.Model, taskIDs []int) CPSATResult {
	tasks := selectTasks(model, taskIDs)
	feasible := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if model.IsStructurallyFeasible(t.TaskID) {
			feasible = append(feasible, t)
		}
	}
	if len(feasible) == 0 {
		if len(tasks) == 0 {
			return CPSATResult{Status: StatusOptimal}
		}
		return CPSATResult{Status: StatusInfeasible}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.cfg.TimeLimit)
	defer cancel()

	results := make([]CPSATResult, s.cfg.Workers)
	group, gctx := errgroup.WithContext(timeoutCtx)
	for w := 0; w < s.cfg.Workers; w++ {
		w := w
		group.Go(func() error {
			results[w] = s.solveOne(gctx, model, feasible, w)
			return nil
		})
	}
	_ = group.Wait()

	return bestResult(results)
}

func bestResult(results []CPSATResult) CPSATResult {
	best := CPSATResult{Status: StatusUnknown}
	for _, r := range results {
		if r.Status.IsSolved() && (!best.Status.IsSolved() || r.ObjectiveValue < best.ObjectiveValue) {
			best = r
		} else if !best.Status.IsSolved() && r.Status == StatusInfeasible {
			best = r
		}
	}
	return best
}

// demandUnit is one task-hour that must be matched to exactly one candidate
// resource-hour slot.
type demandUnit struct {
	taskID int
	resourceID int
	candidates []domain.SlotUnit
}

// slotKey identifies one resource-hour, the atom resource-exclusivity is
// enforced over. Date is compared as its canonical string form rather than
// the raw DateOnly, matching the rest of the package's map-key convention.
type slotKey struct {
	resourceID int
	date string
	hour int
}

func newSlotKey(resourceID int, date domain.DateOnly, hour int) slotKey {
	return slotKey{resourceID: resourceID, date: date.String(), hour: hour}
}

// solveOne performs a single maximum-bipartite-matching attempt: every
// task-hour demand unit is matched to a resource-hour slot via Kuhn's
// augmenting-path algorithm, in a worker-specific tie-break order that only
// affects which optimal-cardinality matching (and so which dispersion
// objective) is found, never whether one exists.
func (s *CPSATScheduler) solveOne(ctx context.Context, model *domain.Model, tasks []domain.Task, workerSeed int) CPSATResult {
	ordered := make([]domain.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if workerSeed%2 == 0 {
			return ordered[i].TaskID < ordered[j].TaskID
		}
		return ordered[i].PriorityScore > ordered[j].PriorityScore
	})

	var units []demandUnit
	for _, task := range ordered {
		candidates := model.Candidates(task.TaskID)
		for i := 0; i < task.RemainingHours; i++ {
			units = append(units, demandUnit{taskID: task.TaskID, resourceID: task.ResourceID, candidates: candidates})
		}
	}

	matchSlot := make(map[slotKey]int, len(units))
	matchUnit := make(map[int]domain.SlotUnit, len(units))
	branches, conflicts := 0, 0
	matched := 0

	for u := range units {
		if ctx.Err() != nil {
			return CPSATResult{Status: StatusUnknown, Branches: branches, Conflicts: conflicts}
		}
		visited := make(map[slotKey]bool)
		if augment(u, units, matchSlot, matchUnit, visited, &branches, &conflicts) {
			matched++
		}
	}

	if matched < len(units) {
		return CPSATResult{Status: StatusInfeasible, Branches: branches, Conflicts: conflicts}
	}

	assignments := make([]domain.Assignment, 0, len(units))
	for u := range units {
		assignments = append(assignments, domain.Assignment{SlotUnit: matchUnit[u]})
	}

	objective := dayCount(assignments)
	return CPSATResult{
		Status: StatusOptimal,
		Assignments: assignments,
		ObjectiveValue: objective,
		Branches: branches,
		Conflicts: conflicts,
	}
}

// augment tries to match demand unit u to one of its candidate slots,
// recursively bumping the slot's current occupant onto an alternative slot
// of its own when every candidate is already taken — the "undo-and-retry"
// step that a single fixed-order greedy pass can't do. Returns whether u
// ended up matched.
func augment(u int, units []demandUnit, matchSlot map[slotKey]int, matchUnit map[int]domain.SlotUnit, visited map[slotKey]bool, branches, conflicts *int) bool {
	for _, cand := range units[u].candidates {
		key := newSlotKey(units[u].resourceID, cand.Date, cand.Hour)
		*branches++
		if visited[key] {
			continue
		}
		visited[key] = true

		owner, taken := matchSlot[key]
		if !taken {
			matchSlot[key] = u
			matchUnit[u] = cand
			return true
		}
		*conflicts++
		if augment(owner, units, matchSlot, matchUnit, visited, branches, conflicts) {
			matchSlot[key] = u
			matchUnit[u] = cand
			return true
		}
	}
	return false
}

func dayCount(assignments []domain.Assignment) int {
	seen := make(map[string]bool)
	for _, a := range assignments {
		seen[strconv.Itoa(a.TaskID)+"|"+a.Date.String()] = true
	}
	return len(seen)
}

func selectTasks(model *domain.Model, taskIDs []int) []domain.Task {
	if taskIDs == nil {
		return model.Tasks()
	}
	out := make([]domain.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		if t, ok := model.Task(id); ok {
			out = append(out, t)
		}
	}
	return out
}
