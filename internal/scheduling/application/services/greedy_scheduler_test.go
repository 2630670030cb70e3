package services_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
)

func mustDate(t *testing.T, s string) domain.DateOnly {
	t.Helper()
	d, err := domain.ParseDateOnly(s)
	require.NoError(t, err)
	return d
}

func TestGreedyScheduler_S3_ResourceContentionPriorities(t *testing.T) {
	start := mustDate(t, "2026-08-03") // Monday
	tasks := []domain.Task{
		{TaskID: 1, ResourceID: 1, RemainingHours: 2, PriorityScore: 90},
		{TaskID: 2, ResourceID: 1, RemainingHours: 2, PriorityScore: 30},
	}
	slots := []domain.CalendarSlot{
		{TaskID: 1, DayOfWeek: 0, HourFrom: 9, HourTo: 11},
		{TaskID: 2, DayOfWeek: 0, HourFrom: 9, HourTo: 11},
	}
	model, err := domain.BuildModel(tasks, slots, nil, start, 28)
	require.NoError(t, err)

	res := services.NewGreedyScheduler().Schedule(context.Background(), model, nil, nil)

	byTask := map[int][]domain.SlotUnit{}
	for _, a := range res.Assignments {
		byTask[a.TaskID] = append(byTask[a.TaskID], a.SlotUnit)
	}
	require.Len(t, byTask[1], 2)
	require.Equal(t, 9, byTask[1][0].Hour)
	require.Equal(t, 10, byTask[1][1].Hour)
	require.Len(t, byTask[2], 2) // overflows to the next Monday's 09-11 window
	require.Equal(t, start.AddDays(7), byTask[2][0].Date)
	require.Empty(t, res.Residual)
}

func TestGreedyScheduler_ResourceExclusivityInvariant(t *testing.T) {
	start := mustDate(t, "2026-08-03")
	tasks := []domain.Task{
		{TaskID: 1, ResourceID: 1, RemainingHours: 5, PriorityScore: 80},
		{TaskID: 2, ResourceID: 1, RemainingHours: 5, PriorityScore: 20},
	}
	slots := []domain.CalendarSlot{
		{TaskID: 1, DayOfWeek: 0, HourFrom: 9, HourTo: 17},
		{TaskID: 2, DayOfWeek: 0, HourFrom: 9, HourTo: 17},
	}
	model, err := domain.BuildModel(tasks, slots, nil, start, 28)
	require.NoError(t, err)

	res := services.NewGreedyScheduler().Schedule(context.Background(), model, nil, nil)

	seen := map[string]bool{}
	for _, a := range res.Assignments {
		key := a.Date.String() + "|" + strconv.Itoa(a.Hour)
		require.False(t, seen[key], "resource-hour exclusivity violated at %s", key)
		seen[key] = true
	}
}

func TestGreedyScheduler_Determinism(t *testing.T) {
	start := mustDate(t, "2026-08-03")
	tasks := []domain.Task{
		{TaskID: 2, ResourceID: 1, RemainingHours: 3, PriorityScore: 50},
		{TaskID: 1, ResourceID: 1, RemainingHours: 3, PriorityScore: 50},
	}
	slots := []domain.CalendarSlot{
		{TaskID: 1, DayOfWeek: 0, HourFrom: 9, HourTo: 17},
		{TaskID: 2, DayOfWeek: 0, HourFrom: 9, HourTo: 17},
	}
	model, err := domain.BuildModel(tasks, slots, nil, start, 28)
	require.NoError(t, err)

	run := func() []domain.Assignment {
		return services.NewGreedyScheduler().Schedule(context.Background(), model, nil, nil).Assignments
	}
	a, b := run(), run()
	require.Equal(t, a, b)
	// task_id ascending tie-break: task 1 (lower id) claims 9,10,11 first.
	require.Equal(t, 1, a[0].TaskID)
}
