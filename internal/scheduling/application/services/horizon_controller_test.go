package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
)

func TestHorizonController_S4_HorizonExtension(t *testing.T) {
	start := mustDate(t, "2026-08-03")
	tasks := []domain.Task{{TaskID: 1, ResourceID: 1, RemainingHours: 40, PriorityScore: 50}}
	slots := []domain.CalendarSlot{{TaskID: 1, DayOfWeek: 0, HourFrom: 9, HourTo: 17}} // 8h/week

	build := func(horizonDays int) (*domain.Model, error) {
		return domain.BuildModel(tasks, slots, nil, start, horizonDays)
	}

	cfg := services.DefaultHorizonConfig()
	cfg.InitialHorizonDays = 28
	hc := services.NewHorizonController(services.NewCPSATScheduler(services.DefaultCPSATConfig()), cfg)

	res, err := hc.Run(context.Background(), build, nil)
	require.NoError(t, err)
	require.True(t, res.Status.IsSolved())
	require.GreaterOrEqual(t, res.HorizonDays, 35)
	require.Len(t, res.Assignments, 40)
}

func TestHorizonController_CapExceeded(t *testing.T) {
	start := mustDate(t, "2026-08-03")
	// No calendar slots at all: structurally infeasible at every horizon.
	tasks := []domain.Task{{TaskID: 1, ResourceID: 1, RemainingHours: 5, PriorityScore: 50}}

	build := func(horizonDays int) (*domain.Model, error) {
		return domain.BuildModel(tasks, nil, nil, start, horizonDays)
	}

	cfg := services.HorizonConfig{InitialHorizonDays: 7, ExtensionFactor: 2, MaxHorizonDays: 20}
	hc := services.NewHorizonController(services.NewCPSATScheduler(services.DefaultCPSATConfig()), cfg)

	res, err := hc.Run(context.Background(), build, nil)
	require.NoError(t, err)
	require.True(t, res.CapExceeded)
	require.False(t, res.Status.IsSolved())
}
