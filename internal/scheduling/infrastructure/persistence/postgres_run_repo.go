package persistence

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hybridsched/planner/internal/scheduling/domain"
	sharedPersistence "github.com/hybridsched/planner/internal/shared/infrastructure/persistence"
)

// PostgresRunRepository persists Run audit records to PostgreSQL.
type PostgresRunRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRunRepository creates a new PostgreSQL run repository.
func NewPostgresRunRepository(pool *pgxpool.Pool) *PostgresRunRepository {
	return &PostgresRunRepository{pool: pool}
}

// Save inserts or updates a Run record.
func (r *PostgresRunRepository) Save(ctx context.Context, run *domain.Run) error {
	execer := sharedPersistence.Executor(ctx, r.pool)
	_, err := execer.Exec(ctx, `
		INSERT INTO scheduling_runs (id, task_count, horizon_days, algorithm_used, status, solve_time_sec, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			task_count = EXCLUDED.task_count,
			horizon_days = EXCLUDED.horizon_days,
			algorithm_used = EXCLUDED.algorithm_used,
			status = EXCLUDED.status,
			solve_time_sec = EXCLUDED.solve_time_sec,
			updated_at = EXCLUDED.updated_at`,
		run.ID(), run.TaskCount, run.HorizonDays, run.AlgorithmUsed, run.Status, run.SolveTimeSec,
		run.CreatedAt(), run.UpdatedAt(),
	)
	return err
}

// FindByID retrieves a Run by its identifier.
func (r *PostgresRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	execer := sharedPersistence.Executor(ctx, r.pool)
	row := execer.QueryRow(ctx, `
		SELECT id, task_count, horizon_days, algorithm_used, status, solve_time_sec, created_at, updated_at
		FROM scheduling_runs WHERE id = $1`, id)

	var (
		runID                  uuid.UUID
		taskCount, horizonDays int
		algorithmUsed, status  string
		solveTimeSec           float64
		createdAt, updatedAt   sql.NullTime
	)
	if err := row.Scan(&runID, &taskCount, &horizonDays, &algorithmUsed, &status, &solveTimeSec, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return domain.RehydrateRun(runID, createdAt.Time, updatedAt.Time, taskCount, horizonDays, algorithmUsed, status, solveTimeSec), nil
}

// Delete removes a Run by its identifier.
func (r *PostgresRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	execer := sharedPersistence.Executor(ctx, r.pool)
	_, err := execer.Exec(ctx, `DELETE FROM scheduling_runs WHERE id = $1`, id)
	return err
}

// List returns the most recent run-history records, newest first.
func (r *PostgresRunRepository) List(ctx context.Context, limit int) ([]*domain.Run, error) {
	execer := sharedPersistence.Executor(ctx, r.pool)
	rows, err := execer.Query(ctx, `
		SELECT id, task_count, horizon_days, algorithm_used, status, solve_time_sec, created_at, updated_at
		FROM scheduling_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		var (
			runID                  uuid.UUID
			taskCount, horizonDays int
			algorithmUsed, status  string
			solveTimeSec           float64
			createdAt, updatedAt   sql.NullTime
		)
		if err := rows.Scan(&runID, &taskCount, &horizonDays, &algorithmUsed, &status, &solveTimeSec, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, domain.RehydrateRun(runID, createdAt.Time, updatedAt.Time, taskCount, horizonDays, algorithmUsed, status, solveTimeSec))
	}
	return runs, rows.Err()
}
