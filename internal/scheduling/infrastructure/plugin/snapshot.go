package plugin

import (
	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
)

// SlotUnitSnapshot is the wire form of a domain.SlotUnit: net/rpc's gob
// codec cannot cross process boundaries with the domain package's
// unexported fields, so every plugin request/response is built from
// plain exported structs instead.
type SlotUnitSnapshot struct {
	Date string
	Hour int
}

// TaskSnapshot is the wire form of one task plus its precomputed
// candidate slot units, so the out-of-process backend never needs to
// rebuild the availability index itself.
type TaskSnapshot struct {
	TaskID int
	ResourceID int
	RemainingHours int
	PriorityScore float64
	Candidates []SlotUnitSnapshot
}

// SolveRequest is sent to the out-of-process scheduler backend.
type SolveRequest struct {
	Tasks []TaskSnapshot
}

// AssignmentSnapshot is the wire form of one domain.Assignment.
type AssignmentSnapshot struct {
	TaskID int
	Date string
	Hour int
}

// SolveResponse is returned by the out-of-process scheduler backend.
type SolveResponse struct {
	Status string
	Assignments []AssignmentSnapshot
	ObjectiveValue int
	Branches int
	Conflicts int
}

// BuildSolveRequest snapshots the tasks named in taskIDs (nil means every
// task in model) and their candidate slot units for transmission.
func BuildSolveRequest(model *domain.Model, taskIDs []int) SolveRequest {
	var tasks []domain.Task
	if taskIDs == nil {
		tasks = model.Tasks()
	} else {
		for _, id := range taskIDs {
			if t, ok := model.Task(id); ok {
				tasks = append(tasks, t)
			}
		}
	}

	snapshots := make([]TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		cands := model.Candidates(t.TaskID)
		candSnaps := make([]SlotUnitSnapshot, len(cands))
		for i, c := range cands {
			candSnaps[i] = SlotUnitSnapshot{Date: c.Date.String(), Hour: c.Hour}
		}
		snapshots = append(snapshots, TaskSnapshot{
			TaskID: t.TaskID,
			ResourceID: t.ResourceID,
			RemainingHours: t.RemainingHours,
			PriorityScore: t.PriorityScore,
			Candidates: candSnaps,
		})
	}
	return SolveRequest{Tasks: snapshots}
}

// ToCPSATResult converts a wire response back into the application
// layer's CPSATResult, reparsing each assignment's date.
func (r SolveResponse) ToCPSATResult() (services.CPSATResult, error) {
	assignments := make([]domain.Assignment, 0, len(r.Assignments))
	for _, a := range r.Assignments {
		date, err := domain.ParseDateOnly(a.Date)
		if err != nil {
			return services.CPSATResult{}, err
		}
		assignments = append(assignments, domain.Assignment{
			SlotUnit: domain.SlotUnit{TaskID: a.TaskID, Date: date, Hour: a.Hour},
		})
	}
	return services.CPSATResult{
		Status: services.Status(r.Status),
		Assignments: assignments,
		ObjectiveValue: r.ObjectiveValue,
		Branches: r.Branches,
		Conflicts: r.Conflicts,
	}, nil
}
