// Package mcp exposes the scheduling engine as a Model Context Protocol
// tool server: one plan_schedule tool whose input/output schema mirrors
// the CLI's invocation document exactly.
package mcp

import (
	"context"
	"errors"
	"strconv"
	"time"

	mcpgo "github.com/felixgeelhaar/mcp-go"

	"github.com/hybridsched/planner/adapter/cli"
	"github.com/hybridsched/planner/internal/scheduling/application/commands"
	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
	"github.com/hybridsched/planner/internal/scheduling/infrastructure/recurrence"
)

// ToolDependencies provides the planning handler to MCP tools.
type ToolDependencies struct {
	App *cli.App
}

type taskInput struct {
	ID int `json:"id" jsonschema:"required"`
	Name string `json:"name" jsonschema:"required"`
	UserID int `json:"user_id" jsonschema:"required"`
	RemainingHours int `json:"remaining_hours" jsonschema:"required"`
	PriorityScore float64 `json:"priority_score,omitempty"`
}

type calendarSlotInput struct {
	TaskID int `json:"task_id" jsonschema:"required"`
	DayOfWeek int `json:"dayofweek" jsonschema:"required"`
	HourFrom int `json:"hour_from" jsonschema:"required"`
	HourTo int `json:"hour_to" jsonschema:"required"`
}

type leaveInput struct {
	TaskID int `json:"task_id" jsonschema:"required"`
	DateFrom string `json:"date_from" jsonschema:"required"`
	DateTo string `json:"date_to" jsonschema:"required"`
}

type recurringLeaveInput struct {
	TaskID int `json:"task_id" jsonschema:"required"`
	RRule string `json:"rrule" jsonschema:"required"`
	DTStart string `json:"dtstart" jsonschema:"required"`
	DurationDays int `json:"duration_days,omitempty"`
}

// planScheduleInput is the plan_schedule tool's input schema, mirroring
// the engine's invocation inputs exactly.
type planScheduleInput struct {
	Tasks []taskInput `json:"tasks" jsonschema:"required"`
	CalendarSlots []calendarSlotInput `json:"calendar_slots" jsonschema:"required"`
	Leaves []leaveInput `json:"leaves,omitempty"`
	RecurringLeaves []recurringLeaveInput `json:"recurring_leaves,omitempty"`

	StartDate string `json:"start_date,omitempty"`
	InitialHorizonDays int `json:"initial_horizon_days,omitempty"`
	HorizonExtensionFactor float64 `json:"horizon_extension_factor,omitempty"`
	MaxHorizonDays int `json:"max_horizon_days,omitempty"`
	OrtoolsTimeLimitSeconds int `json:"ortools_time_limit_seconds,omitempty"`
	OrtoolsWorkers int `json:"ortools_workers,omitempty"`
	HybridMode *bool `json:"hybrid_mode,omitempty"`
	GreedyThresholdTasks int `json:"greedy_threshold_tasks,omitempty"`
	GreedyThresholdHours int `json:"greedy_threshold_hours,omitempty"`
	GreedyThresholdUsers int `json:"greedy_threshold_users,omitempty"`
	GreedyThresholdAvgHours float64 `json:"greedy_threshold_avg_hours,omitempty"`
}

type slotOutput struct {
	Date string `json:"date"`
	Hour int `json:"hour"`
}

// planScheduleOutput is the plan_schedule tool's output schema, mirroring
// the engine's invocation output exactly.
type planScheduleOutput struct {
	Tasks map[string][]slotOutput `json:"tasks"`
	ObjectiveValue *int `json:"objective_value"`
	Status string `json:"status"`
	SolveTime float64 `json:"solve_time"`
	HorizonDays int `json:"horizon_days"`
	AlgorithmUsed string `json:"algorithm_used"`
}

// RegisterTools registers the plan_schedule tool on srv.
func RegisterTools(srv *mcpgo.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil || deps.App.PlanHandler == nil {
		return errors.New("plan handler is required")
	}

	srv.Tool("plan_schedule").
		Description("Schedule tasks into one-hour slots given calendars and leaves, choosing between a greedy constructive scheduler and a CP-SAT constraint solver based on workload shape").
		Handler(func(ctx context.Context, input planScheduleInput) (*planScheduleOutput, error) {
			cmd, err := toPlanCommand(input)
			if err != nil {
				return nil, err
			}
			result, err := deps.App.PlanHandler.Handle(ctx, cmd)
			if err != nil {
				return nil, err
			}
			return toPlanScheduleOutput(result.Solution), nil
		})

	return nil
}

func toPlanCommand(input planScheduleInput) (commands.PlanCommand, error) {
	tasks := make([]domain.Task, 0, len(input.Tasks))
	for _, t := range input.Tasks {
		tasks = append(tasks, domain.Task{
			TaskID: t.ID,
			Name: t.Name,
			ResourceID: t.UserID,
			RemainingHours: t.RemainingHours,
			PriorityScore: t.PriorityScore,
		})
	}

	slots := make([]domain.CalendarSlot, 0, len(input.CalendarSlots))
	for _, s := range input.CalendarSlots {
		slots = append(slots, domain.CalendarSlot{
			TaskID: s.TaskID, DayOfWeek: s.DayOfWeek, HourFrom: s.HourFrom, HourTo: s.HourTo,
		})
	}

	leaves := make([]domain.Leave, 0, len(input.Leaves))
	for _, l := range input.Leaves {
		from, err := domain.ParseDateOnly(l.DateFrom)
		if err != nil {
			return commands.PlanCommand{}, err
		}
		to, err := domain.ParseDateOnly(l.DateTo)
		if err != nil {
			return commands.PlanCommand{}, err
		}
		leaves = append(leaves, domain.Leave{TaskID: l.TaskID, DateFrom: from, DateTo: to})
	}

	recurringLeaves := make([]recurrence.RecurringLeave, 0, len(input.RecurringLeaves))
	for _, rl := range input.RecurringLeaves {
		dtstart, err := domain.ParseDateOnly(rl.DTStart)
		if err != nil {
			return commands.PlanCommand{}, err
		}
		recurringLeaves = append(recurringLeaves, recurrence.RecurringLeave{
			TaskID: rl.TaskID, RRule: rl.RRule, DTStart: dtstart, DurationDays: rl.DurationDays,
		})
	}

	startDate := domain.NewDateOnly(time.Now())
	if input.StartDate != "" {
		var err error
		startDate, err = domain.ParseDateOnly(input.StartDate)
		if err != nil {
			return commands.PlanCommand{}, err
		}
	}

	cfg := services.DefaultOrchestratorConfig()
	if input.HybridMode != nil {
		cfg.HybridMode = *input.HybridMode
	}
	if input.InitialHorizonDays > 0 {
		cfg.Horizon.InitialHorizonDays = input.InitialHorizonDays
	}
	if input.MaxHorizonDays > 0 {
		cfg.Horizon.MaxHorizonDays = input.MaxHorizonDays
	}
	if input.HorizonExtensionFactor > 0 {
		cfg.Horizon.ExtensionFactor = input.HorizonExtensionFactor
	}
	if input.OrtoolsTimeLimitSeconds > 0 {
		cfg.CPSAT.TimeLimit = time.Duration(input.OrtoolsTimeLimitSeconds) * time.Second
	}
	if input.OrtoolsWorkers > 0 {
		cfg.CPSAT.Workers = input.OrtoolsWorkers
	}
	if input.GreedyThresholdTasks > 0 {
		cfg.Thresholds.Tasks = input.GreedyThresholdTasks
	}
	if input.GreedyThresholdHours > 0 {
		cfg.Thresholds.Hours = input.GreedyThresholdHours
	}
	if input.GreedyThresholdUsers > 0 {
		cfg.Thresholds.Users = input.GreedyThresholdUsers
	}
	if input.GreedyThresholdAvgHours > 0 {
		cfg.Thresholds.AvgHours = input.GreedyThresholdAvgHours
	}

	return commands.PlanCommand{
		Tasks: tasks,
		CalendarSlots: slots,
		Leaves: leaves,
		RecurringLeaves: recurringLeaves,
		StartDate: startDate,
		Config: cfg,
	}, nil
}

func toPlanScheduleOutput(sol services.Solution) *planScheduleOutput {
	byTask := sol.ByTask()
	tasks := make(map[string][]slotOutput, len(byTask))
	for taskID, units := range byTask {
		slots := make([]slotOutput, 0, len(units))
		for _, u := range units {
			slots = append(slots, slotOutput{Date: u.Date.String(), Hour: u.Hour})
		}
		tasks[strconv.Itoa(taskID)] = slots
	}
	return &planScheduleOutput{
		Tasks: tasks,
		ObjectiveValue: sol.ObjectiveValue,
		Status: string(sol.Status),
		SolveTime: sol.SolveTime,
		HorizonDays: sol.HorizonDays,
		AlgorithmUsed: string(sol.AlgorithmUsed),
	}
}
