package cli

import (
	"github.com/hybridsched/planner/internal/scheduling/application/commands"
	"github.com/hybridsched/planner/internal/scheduling/domain"
	"github.com/hybridsched/planner/pkg/observability"
)

// App holds the CLI's wired dependencies.
type App struct {
	PlanHandler *commands.PlanHandler
	RunList     domain.RunReader
	Health      *observability.HealthRegistry
}

var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
