package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use: "history",
	Short: "List recent planning run audit records",
	Long: `history lists recent entries from the run-history store: one row
per completed planning call, independent of the engine's own scheduling
decisions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.RunList == nil {
			fmt.Println("Run history requires a database connection.")
			return nil
		}

		runs, err := app.RunList.List(cmd.Context(), historyLimit)
		if err != nil {
			return withExitCode(1, fmt.Errorf("failed to list run history: %w", err))
		}
		if len(runs) == 0 {
			fmt.Println("No planning runs recorded yet.")
			return nil
		}

		fmt.Printf("%-36s %6s %8s %-22s %-10s %10s\n", "RUN ID", "TASKS", "HORIZON", "ALGORITHM", "STATUS", "SOLVE TIME")
		for _, run := range runs {
			fmt.Printf("%-36s %6d %8d %-22s %-10s %9.2fs\n",
				run.ID(), run.TaskCount, run.HorizonDays, run.AlgorithmUsed, run.Status, run.SolveTimeSec)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max number of runs to list")
	AddCommand(historyCmd)
}
