package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hybridsched/planner/internal/scheduling/application/commands"
	"github.com/hybridsched/planner/internal/scheduling/application/services"
	"github.com/hybridsched/planner/internal/scheduling/domain"
)

var (
	replTasksPath    string
	replCalendarPath string
	replLeavesPath   string
	replStartDate    string
)

// replCmd keeps one set of tasks/calendars/leaves loaded across repeated
// what-if planning calls, each recorded to run history.
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive loop: replan the same inputs under varying parameters",
	Long: `repl loads the three input tables once and then repeatedly
replans them as you tweak orchestrator parameters, without re-reading the
CSV files on each call. Commands:

  set hybrid-mode true|false
  set initial-horizon-days <n>
  set max-horizon-days <n>
  set ortools-time-limit <seconds>
  set ortools-workers <n>
  plan       run a planning call with the current parameters
  show       print the current parameters
  quit       exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.PlanHandler == nil {
			return withExitCode(1, fmt.Errorf("planner is not initialized"))
		}

		tasks, err := readTasksCSV(replTasksPath)
		if err != nil {
			return withExitCode(3, err)
		}
		slots, err := readCalendarSlotsCSV(replCalendarPath)
		if err != nil {
			return withExitCode(3, err)
		}
		leaves, err := readLeavesCSV(replLeavesPath)
		if err != nil {
			return withExitCode(3, err)
		}

		startDate := domain.NewDateOnly(time.Now())
		if replStartDate != "" {
			startDate, err = domain.ParseDateOnly(replStartDate)
			if err != nil {
				return withExitCode(3, err)
			}
		}

		cfg := services.DefaultOrchestratorConfig()
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Printf("loaded %d tasks, %d calendar slots, %d leaves\n", len(tasks), len(slots), len(leaves))
		fmt.Println(`type "plan" to run, "show" for current parameters, "quit" to exit`)

		for {
			fmt.Print("planner> ")
			if !scanner.Scan() {
				return nil
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			fields := strings.Fields(line)

			switch fields[0] {
			case "quit", "exit":
				return nil
			case "show":
				printOrchestratorConfig(cfg)
			case "set":
				if err := applyReplSetting(&cfg, fields[1:]); err != nil {
					fmt.Fprintln(os.Stderr, err)
				}
			case "plan":
				cmdData := commands.PlanCommand{
					Tasks:         tasks,
					CalendarSlots: slots,
					Leaves:        leaves,
					StartDate:     startDate,
					Config:        cfg,
				}
				result, err := app.PlanHandler.Handle(cmd.Context(), cmdData)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					continue
				}
				doc := documentFromSolution(result.Solution)
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(doc)
			default:
				fmt.Fprintf(os.Stderr, "unrecognized command %q\n", fields[0])
			}
		}
	},
}

func applyReplSetting(cfg *services.OrchestratorConfig, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf(`usage: set <key> <value>`)
	}
	key, value := args[0], args[1]
	switch key {
	case "hybrid-mode":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.HybridMode = b
	case "initial-horizon-days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Horizon.InitialHorizonDays = n
	case "max-horizon-days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Horizon.MaxHorizonDays = n
	case "ortools-time-limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.CPSAT.TimeLimit = time.Duration(n) * time.Second
	case "ortools-workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.CPSAT.Workers = n
	default:
		return fmt.Errorf("unknown parameter %q", key)
	}
	return nil
}

func printOrchestratorConfig(cfg services.OrchestratorConfig) {
	fmt.Printf("hybrid-mode:            %v\n", cfg.HybridMode)
	fmt.Printf("initial-horizon-days:   %d\n", cfg.Horizon.InitialHorizonDays)
	fmt.Printf("max-horizon-days:       %d\n", cfg.Horizon.MaxHorizonDays)
	fmt.Printf("ortools-time-limit:     %s\n", cfg.CPSAT.TimeLimit)
	fmt.Printf("ortools-workers:        %d\n", cfg.CPSAT.Workers)
}

func init() {
	replCmd.Flags().StringVar(&replTasksPath, "tasks", "tasks.csv", "path to the tasks input CSV")
	replCmd.Flags().StringVar(&replCalendarPath, "calendar-slots", "calendar_slots.csv", "path to the calendar_slots input CSV")
	replCmd.Flags().StringVar(&replLeavesPath, "leaves", "leaves.csv", "path to the leaves input CSV")
	replCmd.Flags().StringVar(&replStartDate, "start-date", "", "YYYY-MM-DD, default: today")
	AddCommand(replCmd)
}
