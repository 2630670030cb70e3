package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hybridsched/planner/pkg/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity to the run-history database and any wired services",
	Long: `health runs every registered health checker (database, and redis
when a distributed run lock is configured) and prints the aggregated
result as JSON. Exit code is 1 if any checker reports unhealthy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Health == nil {
			fmt.Println(`{"status":"healthy","checks":{}}`)
			return nil
		}

		overall := app.Health.GetOverallHealth(cmd.Context())
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(overall); err != nil {
			return withExitCode(1, err)
		}
		if overall.Status == observability.HealthStatusUnhealthy {
			return withExitCode(1, fmt.Errorf("one or more health checks failed"))
		}
		return nil
	},
}

func init() {
	AddCommand(healthCmd)
}
