// Package services implements the scheduling engine's constructive and
// constraint-based solvers.
package services

import (
	"context"
	"sort"
	"strconv"

	"github.com/hybridsched/planner/internal/scheduling/domain"
)

// ResidualTask is a task that the greedy pass could not fully place
// ("residual list of (task_id, hours_still_needed)").
type ResidualTask struct {
	TaskID int
	HoursNeeded int
}

// GreedyResult is the contract: a partial assignment set plus
// the tasks it could not finish.
type GreedyResult struct {
	Assignments []domain.Assignment
	Residual []ResidualTask
}

// GreedyScheduler implements priority-ordered constructive placement into
// the earliest feasible hour slot under per-resource, per-hour mutual
// exclusion.
type GreedyScheduler struct{}

// NewGreedyScheduler constructs a GreedyScheduler. It holds no state between
// calls: each planning call owns its own domain-model instance.
func NewGreedyScheduler() *GreedyScheduler {
	return &GreedyScheduler{}
}

// Schedule runs the greedy policy against model, optionally
// restricted to a subset of tasks (nil means all) and pre-occupied
// resource-hours keyed as occupancyKey builds them.
func (s *GreedyScheduler) Schedule(ctx context.Context, model *domain.Model, taskIDs []int, preoccupied map[string]bool) GreedyResult {
	tasks := s.candidateTasks(model, taskIDs)
	sortTasksByPriorityThenID(tasks)

	occupied := make(map[string]bool, len(preoccupied))
	for k, v := range preoccupied {
		occupied[k] = v
	}

	result := GreedyResult{}
	for _, task := range tasks {
		if ctx.Err() != nil {
			return result
		}
		k := task.RemainingHours
		for _, cand := range model.Candidates(task.TaskID) {
			if k == 0 {
				break
			}
			key := occupancyKey(task.ResourceID, cand.Date, cand.Hour)
			if occupied[key] {
				continue
			}
			occupied[key] = true
			result.Assignments = append(result.Assignments, domain.Assignment{SlotUnit: cand})
			k--
		}
		if k > 0 {
			result.Residual = append(result.Residual, ResidualTask{TaskID: task.TaskID, HoursNeeded: k})
		}
	}
	return result
}

func (s *GreedyScheduler) candidateTasks(model *domain.Model, taskIDs []int) []domain.Task {
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

// sortTasksByPriorityThenID orders tasks by priority_score descending, ties
// broken by task_id ascending, for determinism.
func sortTasksByPriorityThenID(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].PriorityScore != tasks[j].PriorityScore {
			return tasks[i].PriorityScore > tasks[j].PriorityScore
		}
		return tasks[i].TaskID < tasks[j].TaskID
	})
}

// occupancyKey identifies one (resource, date, hour) cell of the occupied
// set.
func occupancyKey(resourceID int, date domain.DateOnly, hour int) string {
	return date.String() + "|" + strconv.Itoa(resourceID) + "|" + strconv.Itoa(hour)
}
