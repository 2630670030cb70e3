package calendarexport_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
	"github.com/hybridsched/planner/internal/scheduling/infrastructure/calendarexport"
)

func mustDate(t *testing.T, s string) domain.DateOnly {
	t.Helper()
	d, err := domain.ParseDateOnly(s)
	require.NoError(t, err)
	return d
}

func TestBuildCalendar_MergesContiguousHours(t *testing.T) {
	start := mustDate(t, "2026-08-03")
	tasks := []domain.Task{{TaskID: 1, ResourceID: 7, RemainingHours: 3, PriorityScore: 50}}
	slots := []domain.CalendarSlot{{TaskID: 1, DayOfWeek: 0, HourFrom: 9, HourTo: 17}}
	model, err := domain.BuildModel(tasks, slots, nil, start, 7)
	require.NoError(t, err)

	assignments := []domain.Assignment{
		{SlotUnit: domain.SlotUnit{TaskID: 1, Date: start, Hour: 9}},
		{SlotUnit: domain.SlotUnit{TaskID: 1, Date: start, Hour: 10}},
		{SlotUnit: domain.SlotUnit{TaskID: 1, Date: start, Hour: 11}},
	}
	solution := services.NewAssembler().Assemble(model, assignments, services.ResultOptimal, 7, services.AlgorithmGreedy, nil, 0.1)

	cal := calendarexport.BuildCalendar(model, 7, solution)
	require.Len(t, cal.Children, 1, "three contiguous hours should merge into one VEVENT")
}

func TestBuildCalendar_FiltersByResource(t *testing.T) {
	start := mustDate(t, "2026-08-03")
	tasks := []domain.Task{
		{TaskID: 1, ResourceID: 7, RemainingHours: 1, PriorityScore: 50},
		{TaskID: 2, ResourceID: 8, RemainingHours: 1, PriorityScore: 50},
	}
	slots := []domain.CalendarSlot{
		{TaskID: 1, DayOfWeek: 0, HourFrom: 9, HourTo: 10},
		{TaskID: 2, DayOfWeek: 0, HourFrom: 9, HourTo: 10},
	}
	model, err := domain.BuildModel(tasks, slots, nil, start, 7)
	require.NoError(t, err)

	assignments := []domain.Assignment{
		{SlotUnit: domain.SlotUnit{TaskID: 1, Date: start, Hour: 9}},
		{SlotUnit: domain.SlotUnit{TaskID: 2, Date: start, Hour: 9}},
	}
	solution := services.NewAssembler().Assemble(model, assignments, services.ResultOptimal, 7, services.AlgorithmGreedy, nil, 0.1)

	cal := calendarexport.BuildCalendar(model, 7, solution)
	require.Len(t, cal.Children, 1)

	ids := calendarexport.ResourceIDs(model)
	require.ElementsMatch(t, []int{7, 8}, ids)
}
