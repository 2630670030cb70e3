package services_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
)

// forceGreedyThresholds routes every non-empty workload to the greedy pass,
// regardless of size, so these tests exercise the residual reconciliation
// branch without needing a large fixture.
func forceGreedyThresholds() services.RoutingThresholds {
	return services.RoutingThresholds{Tasks: 0, Hours: 0, Users: 0, AvgHours: 0}
}

// TestOrchestrator_S6_ResidualReconciliationRespectsRemainingHours is the S6
// hybrid scenario: two tasks share one resource. The higher-priority task
// claims the first 3 hours of the shared window; the lower-priority task
// needs 8 but the greedy pass can only fit 5 of them before running out of
// its own unoccupied candidates, leaving a residual of 3. The CP-SAT
// reconciliation pass must solve against that residual (3), not the task's
// full remaining_hours (8): merged assignments for the residual task must
// total exactly 5 (what greedy placed), never more, and no resource-hour may
// be claimed by both tasks.
func TestOrchestrator_S6_ResidualReconciliationRespectsRemainingHours(t *testing.T) {
	start := mustDate(t, "2026-08-03") // Monday
	tasks := []domain.Task{
		{TaskID: 1, ResourceID: 1, RemainingHours: 3, PriorityScore: 90},
		{TaskID: 2, ResourceID: 1, RemainingHours: 8, PriorityScore: 10},
	}
	slots := []domain.CalendarSlot{
		{TaskID: 1, DayOfWeek: 0, HourFrom: 9, HourTo: 12},  // 9,10,11
		{TaskID: 2, DayOfWeek: 0, HourFrom: 9, HourTo: 17},  // 9..16, shares the same resource
	}
	model, err := domain.BuildModel(tasks, slots, nil, start, 1)
	require.NoError(t, err)

	cfg := services.DefaultOrchestratorConfig()
	cfg.Thresholds = forceGreedyThresholds()
	orch := services.NewOrchestrator(cfg)

	build := func(horizonDays int) (*domain.Model, error) {
		return domain.BuildModel(tasks, slots, nil, start, horizonDays)
	}

	outcome := orch.Run(context.Background(), model, build)

	require.Equal(t, services.AlgorithmHybrid, outcome.AlgorithmUsed)

	byTask := map[int]int{}
	seenResourceHour := map[string]int{}
	for _, a := range outcome.Assignments {
		byTask[a.TaskID]++
		key := a.Date.String() + "|1|" + strconv.Itoa(a.Hour)
		seenResourceHour[key]++
		require.LessOrEqualf(t, seenResourceHour[key], 1, "resource-hour %s double-booked across tasks", key)
	}

	require.LessOrEqual(t, byTask[1], 3, "task 1 must never exceed its remaining_hours")
	require.LessOrEqual(t, byTask[2], 8, "task 2 must never exceed its remaining_hours")
	require.Equal(t, 5, byTask[2], "task 2's residual window is fully consumed by greedy; reconciliation has no room left and must not fabricate extra hours up to remaining_hours")
}

// TestOrchestrator_GreedyFullyCovers_NoReconciliationNeeded is the simple
// all-greedy path: no residual, no CP-SAT call, algorithm reported as greedy.
func TestOrchestrator_GreedyFullyCovers_NoReconciliationNeeded(t *testing.T) {
	start := mustDate(t, "2026-08-03")
	tasks := []domain.Task{
		{TaskID: 1, ResourceID: 1, RemainingHours: 2, PriorityScore: 50},
	}
	slots := []domain.CalendarSlot{
		{TaskID: 1, DayOfWeek: 0, HourFrom: 9, HourTo: 17},
	}
	model, err := domain.BuildModel(tasks, slots, nil, start, 1)
	require.NoError(t, err)

	cfg := services.DefaultOrchestratorConfig()
	cfg.Thresholds = forceGreedyThresholds()
	orch := services.NewOrchestrator(cfg)

	build := func(horizonDays int) (*domain.Model, error) {
		return domain.BuildModel(tasks, slots, nil, start, horizonDays)
	}

	outcome := orch.Run(context.Background(), model, build)
	require.Equal(t, services.AlgorithmGreedy, outcome.AlgorithmUsed)
	require.Equal(t, services.ResultOptimal, outcome.Status)
	require.Len(t, outcome.Assignments, 2)
}
