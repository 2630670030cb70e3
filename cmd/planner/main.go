// Command planner is the scheduling engine's CLI entrypoint: it wires the
// container, registers the plan/repl/history/version subcommands, and
// hands off to cobra.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hybridsched/planner/adapter/cli"
	"github.com/hybridsched/planner/internal/app"
	"github.com/hybridsched/planner/internal/scheduling/application/commands"
	"github.com/hybridsched/planner/pkg/config"
	"github.com/hybridsched/planner/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("failed to load config, using development mode", "error", err)
		cfg = &config.Config{AppEnv: "development", LocalMode: true, SQLitePath: "planner.db"}
	}

	if cfg.IsDevelopment() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	cli.SetLogger(logger)

	var cliApp *cli.App
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("failed to initialize container, planning calls will not be recorded to run history", "error", err)
			// The engine itself has no database dependency;
			// only the run-history audit trail needs one, so plan/repl still
			// work with a PlanHandler that has nothing to persist to.
			cliApp = &cli.App{PlanHandler: commands.NewPlanHandler(nil, nil, nil, logger)}
		} else {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
	} else {
		defer container.Close()

		if container.OutboxProcessor != nil {
			go container.OutboxProcessor.Start(ctx)
		}

		cliApp = &cli.App{
			PlanHandler: container.PlanHandler,
			RunList: container.RunList,
			Health: container.Health,
		}
	}

	cli.SetApp(cliApp)
	cli.Execute()
}
