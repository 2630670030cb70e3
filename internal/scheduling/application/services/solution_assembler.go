package services

import (
	"sort"

	"github.com/hybridsched/planner/internal/scheduling/domain"
)

// ResultStatus mirrors the output document status field. It shares
// OPTIMAL, FEASIBLE and INFEASIBLE with Status and adds PARTIAL and TIMEOUT
// for the assembled, caller-facing document; MODEL_INVALID and UNKNOWN have
// no counterpart here.
type ResultStatus string

const (
	ResultOptimal ResultStatus = "OPTIMAL"
	ResultFeasible ResultStatus = "FEASIBLE"
	ResultPartial ResultStatus = "PARTIAL"
	ResultInfeasible ResultStatus = "INFEASIBLE"
	ResultTimeout ResultStatus = "TIMEOUT"
)

// Algorithm mirrors the algorithm_used enumeration.
type Algorithm string

const (
	AlgorithmGreedy Algorithm = "greedy"
	AlgorithmOrtools Algorithm = "ortools"
	AlgorithmHybrid Algorithm = "hybrid_greedy_ortools"
	AlgorithmOrtoolsFallbk Algorithm = "ortools_fallback"
)

// TaskCompleteness reports per-task scheduling completeness.
type TaskCompleteness struct {
	TaskID int
	ScheduledHours int
	RemainingHours int
}

// Complete reports whether the task was fully scheduled.
func (c TaskCompleteness) Complete() bool { return c.ScheduledHours >= c.RemainingHours }

// Solution is the solution assembler's output, a structured
// counterpart to the output document.
type Solution struct {
	Assignments []domain.Assignment
	ObjectiveValue *int
	Status ResultStatus
	SolveTime float64 // seconds
	HorizonDays int
	AlgorithmUsed Algorithm
	Completeness []TaskCompleteness
}

// ByTask groups assignments by task_id, sorted date asc, hour asc within
// each task.
func (s Solution) ByTask() map[int][]domain.SlotUnit {
	out := make(map[int][]domain.SlotUnit)
	for _, a := range s.Assignments {
		out[a.TaskID] = append(out[a.TaskID], a.SlotUnit)
	}
	for id := range out {
		units := out[id]
		sort.Slice(units, func(i, j int) bool { return units[i].Less(units[j]) })
		out[id] = units
	}
	return out
}

// Assembler merges assignments from whichever algorithm(s) ran into the
// canonical solution and computes completeness.
type Assembler struct{}

// NewAssembler constructs a solution Assembler.
func NewAssembler() *Assembler { return &Assembler{} }

// Assemble merges assignments into the canonical Solution, computing
// per-task and aggregate completeness. horizonDays, algorithmUsed,
// objective, and solveTime are passed through from whichever component(s)
// produced assignments. status is passed through too, except that an
// OPTIMAL or FEASIBLE status becomes PARTIAL when some task is incomplete
// and INFEASIBLE when no task got any hour.
func (a *Assembler) Assemble(
	model *domain.Model,
	assignments []domain.Assignment,
	status ResultStatus,
	horizonDays int,
	algorithmUsed Algorithm,
	objectiveValue *int,
	solveTimeSeconds float64,
) Solution {
	scheduled := make(map[int]int)
	for _, asn := range assignments {
		scheduled[asn.TaskID]++
	}

	completeness := make([]TaskCompleteness, 0, len(model.Tasks()))
	allComplete := true
	anyScheduled := false
	for _, t := range model.Tasks() {
		tc := TaskCompleteness{TaskID: t.TaskID, ScheduledHours: scheduled[t.TaskID], RemainingHours: t.RemainingHours}
		completeness = append(completeness, tc)
		if tc.ScheduledHours > 0 {
			anyScheduled = true
		}
		if !tc.Complete() {
			allComplete = false
		}
	}

	finalStatus := status
	if status.isSolverSuccess() {
		if allComplete {
			finalStatus = status // OPTIMAL or FEASIBLE carried through unchanged
		} else if anyScheduled {
			finalStatus = ResultPartial
		} else {
			finalStatus = ResultInfeasible
		}
	}

	return Solution{
		Assignments: assignments,
		ObjectiveValue: objectiveValue,
		Status: finalStatus,
		SolveTime: solveTimeSeconds,
		HorizonDays: horizonDays,
		AlgorithmUsed: algorithmUsed,
		Completeness: completeness,
	}
}

func (s ResultStatus) isSolverSuccess() bool {
	return s == ResultOptimal || s == ResultFeasible
}
