package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hybridsched/planner/internal/scheduling/application/commands"
	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
	"github.com/hybridsched/planner/internal/scheduling/infrastructure/recurrence"
	"github.com/hybridsched/planner/internal/shared/infrastructure/security"
)

var (
	planTasksPath          string
	planCalendarPath       string
	planLeavesPath         string
	planRecurringLeavePath string
	planStartDate          string
	planOutputPath         string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run one planning call over task/calendar/leave input tables",
	Long: `plan reads the three input tables (tasks, calendar_slots, leaves) as
CSV, runs the hybrid greedy/CP-SAT scheduler, and writes the output
document as JSON to stdout or --out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.PlanHandler == nil {
			return withExitCode(1, fmt.Errorf("planner is not initialized"))
		}

		tasks, err := readTasksCSV(planTasksPath)
		if err != nil {
			return withExitCode(3, err)
		}
		slots, err := readCalendarSlotsCSV(planCalendarPath)
		if err != nil {
			return withExitCode(3, err)
		}
		leaves, err := readLeavesCSV(planLeavesPath)
		if err != nil {
			return withExitCode(3, err)
		}
		recurringLeaves, err := readRecurringLeavesCSV(planRecurringLeavePath)
		if err != nil {
			return withExitCode(3, err)
		}

		startDate := domain.NewDateOnly(time.Now())
		if planStartDate != "" {
			startDate, err = domain.ParseDateOnly(planStartDate)
			if err != nil {
				return withExitCode(3, err)
			}
		}

		cfg := orchestratorConfigFromFlags(cmd)

		cmdData := commands.PlanCommand{
			Tasks:           tasks,
			CalendarSlots:   slots,
			Leaves:          leaves,
			RecurringLeaves: recurringLeaves,
			StartDate:       startDate,
			Config:          cfg,
		}

		result, err := app.PlanHandler.Handle(cmd.Context(), cmdData)
		if err != nil {
			return withExitCode(3, err)
		}

		doc := documentFromSolution(result.Solution)

		out := os.Stdout
		if planOutputPath != "" {
			f, err := os.Create(planOutputPath)
			if err != nil {
				return withExitCode(1, err)
			}
			defer f.Close()
			return writeDocument(f, doc, result.Solution.Status)
		}
		return writeDocument(out, doc, result.Solution.Status)
	},
}

func writeDocument(w io.Writer, doc outputDocument, status services.ResultStatus) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return withExitCode(1, err)
	}
	if status == services.ResultInfeasible {
		return withExitCode(2, fmt.Errorf("no feasible solution within the horizon cap"))
	}
	return nil
}

func init() {
	planCmd.Flags().StringVar(&planTasksPath, "tasks", "tasks.csv", "path to the tasks input CSV")
	planCmd.Flags().StringVar(&planCalendarPath, "calendar-slots", "calendar_slots.csv", "path to the calendar_slots input CSV")
	planCmd.Flags().StringVar(&planLeavesPath, "leaves", "leaves.csv", "path to the leaves input CSV")
	planCmd.Flags().StringVar(&planRecurringLeavePath, "recurring-leaves", "recurring_leaves.csv", "path to the recurring-leave RRULE input CSV")
	planCmd.Flags().StringVar(&planStartDate, "start-date", "", "YYYY-MM-DD, default: today")
	planCmd.Flags().StringVar(&planOutputPath, "out", "", "output file path, default: stdout")
	planCmd.Flags().Bool("hybrid-mode", true, "enable greedy/CP-SAT routing")
	planCmd.Flags().Int("initial-horizon-days", 28, "initial planning horizon in days")
	planCmd.Flags().Int("max-horizon-days", 1825, "absolute horizon cap in days")
	planCmd.Flags().Float64("horizon-extension-factor", 1.25, "horizon growth factor per extension")
	planCmd.Flags().Int("ortools-time-limit", 30, "CP-SAT time limit per invocation, in seconds")
	planCmd.Flags().Int("ortools-workers", 4, "CP-SAT parallel worker count")
	planCmd.Flags().Int("greedy-threshold-tasks", 50, "task-count routing threshold")
	planCmd.Flags().Int("greedy-threshold-hours", 1000, "total-hours routing threshold")
	planCmd.Flags().Int("greedy-threshold-users", 10, "distinct-resource routing threshold")
	planCmd.Flags().Float64("greedy-threshold-avg-hours", 100, "average-hours-per-task routing threshold")
	planCmd.Flags().Int("residual-max-tasks", 20, "max residual tasks handed to CP-SAT after a greedy pass")
	AddCommand(planCmd)
}

func orchestratorConfigFromFlags(cmd *cobra.Command) services.OrchestratorConfig {
	flags := cmd.Flags()
	hybridMode, _ := flags.GetBool("hybrid-mode")
	initialHorizon, _ := flags.GetInt("initial-horizon-days")
	maxHorizon, _ := flags.GetInt("max-horizon-days")
	extensionFactor, _ := flags.GetFloat64("horizon-extension-factor")
	timeLimit, _ := flags.GetInt("ortools-time-limit")
	workers, _ := flags.GetInt("ortools-workers")
	thresholdTasks, _ := flags.GetInt("greedy-threshold-tasks")
	thresholdHours, _ := flags.GetInt("greedy-threshold-hours")
	thresholdUsers, _ := flags.GetInt("greedy-threshold-users")
	thresholdAvgHours, _ := flags.GetFloat64("greedy-threshold-avg-hours")
	residualMaxTasks, _ := flags.GetInt("residual-max-tasks")

	cfg := services.DefaultOrchestratorConfig()
	cfg.HybridMode = hybridMode
	cfg.Thresholds = services.RoutingThresholds{
		Tasks: thresholdTasks, Hours: thresholdHours, Users: thresholdUsers, AvgHours: thresholdAvgHours,
	}
	cfg.ResidualMaxTasks = residualMaxTasks
	cfg.Horizon = services.HorizonConfig{
		InitialHorizonDays: initialHorizon,
		ExtensionFactor:    extensionFactor,
		MaxHorizonDays:     maxHorizon,
	}
	cfg.CPSAT.TimeLimit = time.Duration(timeLimit) * time.Second
	cfg.CPSAT.Workers = workers
	return cfg
}

// outputDocument is the JSON wire shape of the planning call's output.
type outputDocument struct {
	Tasks          map[string][]slotDocument `json:"tasks"`
	ObjectiveValue *int                      `json:"objective_value"`
	Status         services.ResultStatus     `json:"status"`
	SolveTime      float64                   `json:"solve_time"`
	HorizonDays    int                       `json:"horizon_days"`
	AlgorithmUsed  services.Algorithm        `json:"algorithm_used"`
}

type slotDocument struct {
	Date string `json:"date"`
	Hour int    `json:"hour"`
}

func documentFromSolution(sol services.Solution) outputDocument {
	byTask := sol.ByTask()
	tasks := make(map[string][]slotDocument, len(byTask))
	for taskID, units := range byTask {
		slots := make([]slotDocument, 0, len(units))
		for _, u := range units {
			slots = append(slots, slotDocument{Date: u.Date.String(), Hour: u.Hour})
		}
		tasks[strconv.Itoa(taskID)] = slots
	}
	return outputDocument{
		Tasks:          tasks,
		ObjectiveValue: sol.ObjectiveValue,
		Status:         sol.Status,
		SolveTime:      sol.SolveTime,
		HorizonDays:    sol.HorizonDays,
		AlgorithmUsed:  sol.AlgorithmUsed,
	}
}

func readTasksCSV(path string) ([]domain.Task, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, "id", "name", "user_id", "remaining_hours")
	if err != nil {
		return nil, err
	}
	priorityIdx, hasPriority := indexOf(header, "priority_score")

	tasks := make([]domain.Task, 0, len(rows))
	for i, row := range rows {
		id, err := strconv.Atoi(row[idx["id"]])
		if err != nil {
			return nil, fmt.Errorf("tasks.csv row %d: invalid id: %w", i+1, err)
		}
		userID, err := strconv.Atoi(row[idx["user_id"]])
		if err != nil {
			return nil, fmt.Errorf("tasks.csv row %d: invalid user_id: %w", i+1, err)
		}
		hours, err := strconv.Atoi(row[idx["remaining_hours"]])
		if err != nil {
			return nil, fmt.Errorf("tasks.csv row %d: invalid remaining_hours: %w", i+1, err)
		}
		priority := domain.DefaultPriorityScore
		if hasPriority && row[priorityIdx] != "" {
			priority, err = strconv.ParseFloat(row[priorityIdx], 64)
			if err != nil {
				return nil, fmt.Errorf("tasks.csv row %d: invalid priority_score: %w", i+1, err)
			}
		}
		tasks = append(tasks, domain.Task{
			TaskID:         id,
			Name:           row[idx["name"]],
			ResourceID:     userID,
			RemainingHours: hours,
			PriorityScore:  priority,
		})
	}
	return tasks, nil
}

func readCalendarSlotsCSV(path string) ([]domain.CalendarSlot, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, "task_id", "dayofweek", "hour_from", "hour_to")
	if err != nil {
		return nil, err
	}

	slots := make([]domain.CalendarSlot, 0, len(rows))
	for i, row := range rows {
		taskID, err := strconv.Atoi(row[idx["task_id"]])
		if err != nil {
			return nil, fmt.Errorf("calendar_slots.csv row %d: invalid task_id: %w", i+1, err)
		}
		dow, err := strconv.Atoi(row[idx["dayofweek"]])
		if err != nil {
			return nil, fmt.Errorf("calendar_slots.csv row %d: invalid dayofweek: %w", i+1, err)
		}
		from, err := strconv.Atoi(row[idx["hour_from"]])
		if err != nil {
			return nil, fmt.Errorf("calendar_slots.csv row %d: invalid hour_from: %w", i+1, err)
		}
		to, err := strconv.Atoi(row[idx["hour_to"]])
		if err != nil {
			return nil, fmt.Errorf("calendar_slots.csv row %d: invalid hour_to: %w", i+1, err)
		}
		slots = append(slots, domain.CalendarSlot{TaskID: taskID, DayOfWeek: dow, HourFrom: from, HourTo: to})
	}
	return slots, nil
}

func readLeavesCSV(path string) ([]domain.Leave, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil // leaves are optional; an absent file means no leaves
	}
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, "task_id", "date_from", "date_to")
	if err != nil {
		return nil, err
	}

	leaves := make([]domain.Leave, 0, len(rows))
	for i, row := range rows {
		taskID, err := strconv.Atoi(row[idx["task_id"]])
		if err != nil {
			return nil, fmt.Errorf("leaves.csv row %d: invalid task_id: %w", i+1, err)
		}
		from, err := domain.ParseDateOnly(row[idx["date_from"]])
		if err != nil {
			return nil, fmt.Errorf("leaves.csv row %d: %w", i+1, err)
		}
		to, err := domain.ParseDateOnly(row[idx["date_to"]])
		if err != nil {
			return nil, fmt.Errorf("leaves.csv row %d: %w", i+1, err)
		}
		leaves = append(leaves, domain.Leave{TaskID: taskID, DateFrom: from, DateTo: to})
	}
	return leaves, nil
}

func readRecurringLeavesCSV(path string) ([]recurrence.RecurringLeave, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil // recurring leaves are optional; an absent file means none
	}
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, "task_id", "rrule", "dtstart")
	if err != nil {
		return nil, err
	}
	durationIdx, hasDuration := indexOf(header, "duration_days")

	leaves := make([]recurrence.RecurringLeave, 0, len(rows))
	for i, row := range rows {
		taskID, err := strconv.Atoi(row[idx["task_id"]])
		if err != nil {
			return nil, fmt.Errorf("recurring_leaves.csv row %d: invalid task_id: %w", i+1, err)
		}
		dtstart, err := domain.ParseDateOnly(row[idx["dtstart"]])
		if err != nil {
			return nil, fmt.Errorf("recurring_leaves.csv row %d: %w", i+1, err)
		}
		duration := 1
		if hasDuration && row[durationIdx] != "" {
			duration, err = strconv.Atoi(row[durationIdx])
			if err != nil {
				return nil, fmt.Errorf("recurring_leaves.csv row %d: invalid duration_days: %w", i+1, err)
			}
		}
		leaves = append(leaves, recurrence.RecurringLeave{
			TaskID:       taskID,
			RRule:        row[idx["rrule"]],
			DTStart:      dtstart,
			DurationDays: duration,
		})
	}
	return leaves, nil
}

func readCSV(path string) (rows [][]string, header []string, err error) {
	f, err := security.SafeOpen(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%s: empty file, missing header row", path)
	}
	return all[1:], all[0], nil
}

func indexOf(header []string, name string) (int, bool) {
	for i, h := range header {
		if h == name {
			return i, true
		}
	}
	return 0, false
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(required))
	for _, name := range required {
		i, ok := indexOf(header, name)
		if !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
		idx[name] = i
	}
	return idx, nil
}
