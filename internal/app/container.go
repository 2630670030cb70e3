// Package app wires together the scheduling engine's dependencies: config,
// logging, the run-history store, the outbox, and the planning command
// handler, with distinct local (SQLite) and production (Postgres) shapes.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hybridsched/planner/internal/scheduling/application/commands"
	schedulingServices "github.com/hybridsched/planner/internal/scheduling/application/services"
	schedulingDomain "github.com/hybridsched/planner/internal/scheduling/domain"
	schedulingCalendarExport "github.com/hybridsched/planner/internal/scheduling/infrastructure/calendarexport"
	schedulingLock "github.com/hybridsched/planner/internal/scheduling/infrastructure/lock"
	schedulingPersistence "github.com/hybridsched/planner/internal/scheduling/infrastructure/persistence"
	schedulingPlugin "github.com/hybridsched/planner/internal/scheduling/infrastructure/plugin"
	sharedApplication "github.com/hybridsched/planner/internal/shared/application"
	"github.com/hybridsched/planner/internal/shared/infrastructure/security"
	"github.com/hybridsched/planner/internal/shared/infrastructure/database"
	_ "github.com/hybridsched/planner/internal/shared/infrastructure/database/sqlite" // registers the SQLite driver
	"github.com/hybridsched/planner/internal/shared/infrastructure/eventbus"
	"github.com/hybridsched/planner/internal/shared/infrastructure/migrations"
	"github.com/hybridsched/planner/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/hybridsched/planner/internal/shared/infrastructure/persistence"
	"github.com/hybridsched/planner/pkg/config"
	"github.com/hybridsched/planner/pkg/observability"
)

// Container holds the wired dependencies needed to run a planning call from
// the CLI or MCP adapter.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	DB       *pgxpool.Pool
	DBConn   database.Connection
	DBDriver database.Driver

	RunRepo schedulingDomain.RunRepository
	RunList schedulingDomain.RunReader
	Outbox  outbox.Repository

	EventPublisher eventbus.Publisher
	UnitOfWork     sharedApplication.UnitOfWork

	PlanHandler     *commands.PlanHandler
	OutboxProcessor *outbox.Processor

	RedisClient   *redis.Client
	RunLocker     *schedulingLock.RedisRunLock
	CalendarStore *schedulingCalendarExport.Store
	CalDAVServer  *http.Server
	pluginCloser  func()

	Health  *observability.HealthRegistry
	Metrics observability.Metrics
}

// NewContainer builds a Container, choosing SQLite or PostgreSQL per cfg.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if cfg.IsSQLite() {
		return newSQLiteContainer(ctx, cfg, logger)
	}
	return newPostgresContainer(ctx, cfg, logger)
}

func newSQLiteContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite connection: %w", err)
	}

	sqliteConn, ok := conn.(interface{ DB() *sql.DB })
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("expected SQLite connection with DB() method, got %T", conn)
	}

	logger.Info("running SQLite migrations")
	if err := migrations.RunSQLiteMigrations(ctx, sqliteConn.DB()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	c.DBConn = conn
	c.DBDriver = database.DriverSQLite
	c.RunRepo = schedulingPersistence.NewSQLiteRunRepository(sqliteConn.DB())
	c.RunList = schedulingPersistence.NewSQLiteRunRepository(sqliteConn.DB())
	c.Outbox = outbox.NewSQLiteRepository(sqliteConn.DB())
	c.UnitOfWork = sharedPersistence.NewSQLiteUnitOfWork(sqliteConn.DB())
	c.EventPublisher = eventbus.NewNoopPublisher(logger)

	c.wireHandlers(logger)
	c.Health.Register("database", observability.DatabaseHealthChecker(func(ctx context.Context) error {
		return sqliteConn.DB().PingContext(ctx)
	}))

	logger.Info("local mode container initialized", "database", cfg.SQLitePath, "driver", "sqlite")
	return c, nil
}

func newPostgresContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("running PostgreSQL migrations")
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	c.DB = pool
	c.RunRepo = schedulingPersistence.NewPostgresRunRepository(pool)
	c.RunList = schedulingPersistence.NewPostgresRunRepository(pool)
	c.Outbox = outbox.NewPostgresRepository(pool)
	c.UnitOfWork = sharedPersistence.NewPostgresUnitOfWork(pool)

	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("RabbitMQ not available, using noop publisher")
			c.EventPublisher = eventbus.NewNoopPublisher(logger)
		} else {
			pool.Close()
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
	} else {
		c.EventPublisher = publisher
	}

	c.wireHandlers(logger)
	c.Health.Register("database", observability.DatabaseHealthChecker(func(ctx context.Context) error {
		return pool.Ping(ctx)
	}))

	logger.Info("connected to database")
	return c, nil
}

func (c *Container) wireHandlers(logger *slog.Logger) {
	c.PlanHandler = commands.NewPlanHandler(c.UnitOfWork, c.RunRepo, c.Outbox, logger)
	c.Health = observability.NewHealthRegistry()

	if c.Config.IsDevelopment() {
		c.Metrics = observability.NewInMemoryMetrics()
	} else {
		c.Metrics = observability.NoopMetrics{}
	}
	c.PlanHandler = c.PlanHandler.WithMetrics(c.Metrics)

	if !c.Config.LocalMode && c.Config.RedisURL != "" {
		if opts, err := redis.ParseURL(c.Config.RedisURL); err != nil {
			logger.Warn("invalid REDIS_URL, distributed run lock disabled", "error", err)
		} else {
			c.RedisClient = redis.NewClient(opts)
			c.RunLocker = schedulingLock.NewRedisRunLock(c.RedisClient, 30*time.Second)
			c.PlanHandler = c.PlanHandler.WithRunLocker(c.RunLocker)
			c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
				return c.RedisClient.Ping(ctx).Err()
			}))
		}
	}

	if c.Config.SchedulerPluginPath != "" {
		pluginPath, err := security.ValidateFilePath(c.Config.SchedulerPluginPath)
		if err != nil {
			logger.Warn("rejected scheduler plugin path, using in-process CP-SAT only", "error", err)
		} else if backend, closer, err := schedulingPlugin.Dispense(exec.Command(pluginPath), nil); err != nil {
			logger.Warn("failed to dispense scheduler plugin, using in-process CP-SAT only", "error", err)
		} else {
			c.pluginCloser = closer
			fallback := schedulingServices.NewCPSATScheduler(schedulingServices.DefaultCPSATConfig())
			breaker := schedulingPlugin.NewBreakerBackend(backend, fallback, func(err error) {
				logger.Warn("scheduler plugin call failed, fell back to in-process CP-SAT", "error", err)
			})
			c.PlanHandler = c.PlanHandler.WithCPSATBackend(breaker)
		}
	}

	if c.Config.CalDAVAddr != "" || c.Config.CalendarExportDir != "" {
		c.CalendarStore = schedulingCalendarExport.NewStore()
		c.PlanHandler = c.PlanHandler.WithCalendarExport(c.CalendarStore)
	}
	if c.Config.CalendarExportDir != "" {
		if dir, err := security.ValidateFilePath(c.Config.CalendarExportDir); err != nil {
			logger.Warn("rejected calendar export directory, disk export disabled", "error", err)
		} else {
			c.PlanHandler = c.PlanHandler.WithCalendarExportDir(dir)
		}
	}
	if c.Config.CalDAVAddr != "" {
		c.CalDAVServer = &http.Server{Addr: c.Config.CalDAVAddr, Handler: schedulingCalendarExport.NewHandler(c.CalendarStore)}
		go func() {
			if err := c.CalDAVServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("caldav server error", "error", err)
			}
		}()
		logger.Info("calendar export CalDAV server listening", "addr", c.Config.CalDAVAddr)
	}

	if c.Config.OutboxProcessorEnabled {
		processorConfig := outbox.ProcessorConfig{
			PollInterval: c.Config.OutboxPollInterval,
			BatchSize:    c.Config.OutboxBatchSize,
			MaxRetries:   c.Config.OutboxMaxRetries,
		}
		c.OutboxProcessor = outbox.NewProcessor(c.Outbox, c.EventPublisher, processorConfig, logger)
	}
}

// Close releases all held resources.
func (c *Container) Close() {
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}
	if c.CalDAVServer != nil {
		if err := c.CalDAVServer.Shutdown(context.Background()); err != nil {
			c.Logger.Warn("error shutting down caldav server", "error", err)
		}
	}
	if c.pluginCloser != nil {
		c.pluginCloser()
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing redis client", "error", err)
		}
	}
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
		c.Logger.Info("PostgreSQL connection closed")
	}
	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing SQLite connection", "error", err)
		} else {
			c.Logger.Info("SQLite connection closed")
		}
	}
}
