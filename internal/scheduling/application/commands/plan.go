// Package commands holds the top-level application commands of the
// scheduling bounded context, orchestrated end-to-end.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-ical"

	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
	"github.com/hybridsched/planner/internal/scheduling/infrastructure/calendarexport"
	"github.com/hybridsched/planner/internal/scheduling/infrastructure/lock"
	"github.com/hybridsched/planner/internal/scheduling/infrastructure/recurrence"
	sharedapplication "github.com/hybridsched/planner/internal/shared/application"
	"github.com/hybridsched/planner/internal/shared/infrastructure/outbox"
	"github.com/hybridsched/planner/pkg/observability"
)

// RunLocker acquires the cross-process mutex over a set of resource IDs.
// Satisfied by *lock.RedisRunLock; nil in single-process deployments.
type RunLocker interface {
	Acquire(ctx context.Context, resourceIDs []int) (*lock.RunLock, error)
}

// PlanCommand is one planning call's invocation input.
type PlanCommand struct {
	Tasks []domain.Task
	CalendarSlots []domain.CalendarSlot
	Leaves []domain.Leave
	// RecurringLeaves are expanded against [StartDate,
	// StartDate+Config.Horizon.MaxHorizonDays], both ends inclusive, and
	// merged into Leaves before the domain model is built.
	RecurringLeaves []recurrence.RecurringLeave
	StartDate domain.DateOnly
	Config services.OrchestratorConfig
	InitialHorizon int
}

func (PlanCommand) CommandName() string { return "scheduling.plan" }

// PlanResult is the assembled output document, carried as a Go
// struct rather than a raw JSON blob so CLI/MCP adapters can render it
// either way.
type PlanResult struct {
	Solution services.Solution
}

// PlanHandler wires the domain model builder, hybrid orchestrator, and
// solution assembler into one transactional operation: it records a Run
// audit entity and its SchedulePlanned event via the unit-of-work + outbox
// pattern.
type PlanHandler struct {
	uow sharedapplication.UnitOfWork
	runRepo domain.RunRepository
	outbox outbox.Repository
	locker RunLocker
	cpsatBackend services.CPSATBackend
	calendarStore *calendarexport.Store
	calendarExportDir string
	metrics observability.Metrics
	logger *slog.Logger
}

// NewPlanHandler constructs a PlanHandler.
func NewPlanHandler(uow sharedapplication.UnitOfWork, runRepo domain.RunRepository, outboxRepo outbox.Repository, logger *slog.Logger) *PlanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanHandler{uow: uow, runRepo: runRepo, outbox: outboxRepo, logger: logger, metrics: observability.NoopMetrics{}}
}

// WithMetrics attaches a metrics collector; every planning call records
// engine execution count/duration/errors, scheduled-slot and task gauges,
// a horizon-extension counter, and run-history counters against it.
func (h *PlanHandler) WithMetrics(metrics observability.Metrics) *PlanHandler {
	if metrics != nil {
		h.metrics = metrics
	}
	return h
}

// WithRunLocker attaches a cross-process run lock, used in multi-process
// deployments where several CLI/MCP processes share one run-history
// database. Nil is a valid no-op locker for single-process deployments.
func (h *PlanHandler) WithRunLocker(locker RunLocker) *PlanHandler {
	h.locker = locker
	return h
}

// WithCPSATBackend routes the exact-solver phase through backend instead of
// the in-process CP-SAT scheduler, e.g. a plugin.BreakerBackend dispensing
// an external solver plugin with in-process fallback on failure.
func (h *PlanHandler) WithCPSATBackend(backend services.CPSATBackend) *PlanHandler {
	h.cpsatBackend = backend
	return h
}

// WithCalendarExport attaches a calendar export store, refreshed with one
// iCalendar feed per resource after every successful planning call.
func (h *PlanHandler) WithCalendarExport(store *calendarexport.Store) *PlanHandler {
	h.calendarStore = store
	return h
}

// WithCalendarExportDir additionally writes one .ics file per resource to
// dir after every successful planning call, alongside (or instead of) the
// in-memory CalDAV store.
func (h *PlanHandler) WithCalendarExportDir(dir string) *PlanHandler {
	h.calendarExportDir = dir
	return h
}

// Handle runs the end-to-end control flow: build the domain model at
// the initial horizon, hand it to the hybrid orchestrator (which itself
// drives the horizon controller when it needs to extend the window),
// assemble the canonical solution, and persist a Run audit record.
func (h *PlanHandler) Handle(ctx context.Context, cmd PlanCommand) (PlanResult, error) {
	leaves := cmd.Leaves
	if len(cmd.RecurringLeaves) > 0 {
		windowEnd := cmd.StartDate.AddDays(cmd.Config.Horizon.MaxHorizonDays)
		expanded, err := recurrence.ExpandAll(cmd.RecurringLeaves, cmd.StartDate, windowEnd)
		if err != nil {
			h.logger.Error("scheduling: invalid recurring leave rule", "error", err)
			return PlanResult{}, err
		}
		leaves = append(append([]domain.Leave(nil), leaves...), expanded...)
	}

	build := func(horizonDays int) (*domain.Model, error) {
		return domain.BuildModel(cmd.Tasks, cmd.CalendarSlots, leaves, cmd.StartDate, horizonDays)
	}

	initialHorizon := cmd.InitialHorizon
	if initialHorizon <= 0 {
		initialHorizon = cmd.Config.Horizon.InitialHorizonDays
	}
	model, err := build(initialHorizon)
	if err != nil {
		h.logger.Error("scheduling: invalid input", "error", err)
		return PlanResult{}, err
	}

	if h.locker != nil {
		resourceIDs := make([]int, 0, len(model.Tasks()))
		for _, t := range model.Tasks() {
			resourceIDs = append(resourceIDs, t.ResourceID)
		}
		run, err := h.locker.Acquire(ctx, resourceIDs)
		if err != nil {
			return PlanResult{}, fmt.Errorf("scheduling: acquiring run lock: %w", err)
		}
		defer func() {
			if err := run.Release(context.WithoutCancel(ctx)); err != nil {
				h.logger.Warn("failed to release run lock", "error", err)
			}
		}()
	}

	orchestrator := services.NewOrchestrator(cmd.Config)
	if h.cpsatBackend != nil {
		orchestrator = orchestrator.WithCPSATBackend(h.cpsatBackend)
	}

	span, ctx := observability.StartSpan(ctx, "scheduling.orchestrator_run")
	span.SetAttribute("task_count", len(cmd.Tasks))
	span.SetAttribute("initial_horizon_days", initialHorizon)

	engineStart := time.Now()
	outcome := orchestrator.Run(ctx, model, build)
	span.SetAttribute("algorithm_used", string(outcome.AlgorithmUsed))
	span.SetAttribute("horizon_days", outcome.HorizonDays)
	span.End()

	h.metrics.Timing(observability.MetricEngineDuration, time.Since(engineStart), observability.T("algorithm", string(outcome.AlgorithmUsed)))
	h.metrics.Counter(observability.MetricEngineExecutions, 1, observability.T("algorithm", string(outcome.AlgorithmUsed)))
	if outcome.Status == services.ResultInfeasible {
		h.metrics.Counter(observability.MetricEngineErrors, 1)
	}
	if outcome.HorizonDays > initialHorizon {
		h.metrics.Counter(observability.MetricHorizonExtensions, 1)
	}

	solution := services.NewAssembler().Assemble(
		model,
		outcome.Assignments,
		outcome.Status,
		outcome.HorizonDays,
		outcome.AlgorithmUsed,
		outcome.ObjectiveValue,
		outcome.SolveTimeSec,
	)

	var scheduledSlots, unplacedTasks int64
	for _, tc := range solution.Completeness {
		scheduledSlots += int64(tc.ScheduledHours)
		if !tc.Complete() {
			unplacedTasks++
		}
	}
	h.metrics.Gauge(observability.MetricSlotsAssigned, float64(scheduledSlots))
	h.metrics.Gauge(observability.MetricTasksPlanned, float64(len(solution.Completeness)-int(unplacedTasks)))
	h.metrics.Gauge(observability.MetricTasksUnplaced, float64(unplacedTasks))

	if h.calendarStore != nil || h.calendarExportDir != "" {
		calendars := make(map[int]*ical.Calendar, len(calendarexport.ResourceIDs(model)))
		for _, resourceID := range calendarexport.ResourceIDs(model) {
			calendars[resourceID] = calendarexport.BuildCalendar(model, resourceID, solution)
		}
		if h.calendarStore != nil {
			h.calendarStore.ReplaceAll(calendars)
		}
		if h.calendarExportDir != "" {
			if err := calendarexport.WriteDir(h.calendarExportDir, calendars); err != nil {
				h.logger.Warn("failed to write calendar export files", "error", err)
			}
		}
	}

	h.logger.Info("planning call complete",
		"task_count", len(cmd.Tasks),
		"algorithm_used", solution.AlgorithmUsed,
		"status", solution.Status,
		"horizon_days", solution.HorizonDays,
		"solve_time", solution.SolveTime,
	)

	if h.uow != nil && h.runRepo != nil {
		err := observability.TimeOperation(ctx, h.logger, h.metrics, "scheduling.record_run_history", func() error {
			return sharedapplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
				run := domain.NewRun(len(cmd.Tasks), solution.HorizonDays, string(solution.AlgorithmUsed), string(solution.Status), solution.SolveTime)
				if err := h.runRepo.Save(txCtx, run); err != nil {
					return err
				}
				if h.outbox != nil {
					for _, event := range run.DomainEvents() {
						msg, err := outbox.NewMessage(event)
						if err != nil {
							return err
						}
						if err := h.outbox.Save(txCtx, msg); err != nil {
							return err
						}
					}
				}
				return nil
			})
		})
		if err != nil {
			h.logger.Warn("failed to record run history", "error", err)
			// Recording run history is audit bookkeeping, not part of the
			// engine's contract — a failure here does not
			// invalidate an otherwise successful planning result.
		} else {
			h.metrics.Counter(observability.MetricRunsRecorded, 1)
		}
	}

	return PlanResult{Solution: solution}, nil
}
