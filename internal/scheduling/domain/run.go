package domain

import (
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/hybridsched/planner/internal/shared/domain"
)

// Run is the aggregate root persisted to run history: an audit record of
// one planning call (inputs summary, outcome, statistics). It is
// bookkeeping about calls to the engine, not state fed back into the
// engine's own scheduling decisions.
type Run struct {
	shareddomain.BaseAggregateRoot

	TaskCount int
	HorizonDays int
	AlgorithmUsed string
	Status string
	SolveTimeSec float64
}

// NewRun creates a Run aggregate for a just-completed planning call and
// raises a SchedulePlanned domain event, recording one event per completed
// operation.
func NewRun(taskCount, horizonDays int, algorithmUsed, status string, solveTimeSec float64) *Run {
	r := &Run{
		BaseAggregateRoot: shareddomain.NewBaseAggregateRoot(),
		TaskCount: taskCount,
		HorizonDays: horizonDays,
		AlgorithmUsed: algorithmUsed,
		Status: status,
		SolveTimeSec: solveTimeSec,
	}
	r.AddDomainEvent(NewSchedulePlannedEvent(r.ID(), taskCount, algorithmUsed, status))
	return r
}

// RehydrateRun recreates a Run from persisted run-history state.
func RehydrateRun(id uuid.UUID, createdAt, updatedAt time.Time, taskCount, horizonDays int, algorithmUsed, status string, solveTimeSec float64) *Run {
	entity := shareddomain.RehydrateBaseEntity(id, createdAt, updatedAt)
	return &Run{
		BaseAggregateRoot: shareddomain.RehydrateBaseAggregateRoot(entity, 0),
		TaskCount: taskCount,
		HorizonDays: horizonDays,
		AlgorithmUsed: algorithmUsed,
		Status: status,
		SolveTimeSec: solveTimeSec,
	}
}

// SchedulePlannedEvent is raised once per completed planning call.
type SchedulePlannedEvent struct {
	shareddomain.BaseEvent
	TaskCount int
	AlgorithmUsed string
	Status string
}

// NewSchedulePlannedEvent constructs a SchedulePlannedEvent for runID.
func NewSchedulePlannedEvent(runID uuid.UUID, taskCount int, algorithmUsed, status string) SchedulePlannedEvent {
	return SchedulePlannedEvent{
		BaseEvent: shareddomain.NewBaseEvent(runID, "Run", "scheduling.schedule_planned"),
		TaskCount: taskCount,
		AlgorithmUsed: algorithmUsed,
		Status: status,
	}
}
