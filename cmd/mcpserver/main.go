// Command mcpserver exposes the scheduling engine as an MCP tool server:
// one plan_schedule tool callable from any MCP-speaking agent host.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hybridsched/planner/adapter/cli"
	"github.com/hybridsched/planner/internal/app"
	mcpinternal "github.com/hybridsched/planner/internal/mcp"
	"github.com/hybridsched/planner/pkg/config"
	"github.com/hybridsched/planner/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	if container.OutboxProcessor != nil {
		go container.OutboxProcessor.Start(ctx)
	}

	cliApp := &cli.App{
		PlanHandler: container.PlanHandler,
		RunList:     container.RunList,
		Health:      container.Health,
	}

	if err := mcpinternal.Serve(ctx, cfg, cliApp, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
