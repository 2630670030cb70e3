package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/hybridsched/planner/internal/scheduling/domain"
	sharedPersistence "github.com/hybridsched/planner/internal/shared/infrastructure/persistence"
)

type sqliteQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRunRepository persists Run audit records to SQLite, the default
// local run-history store.
type SQLiteRunRepository struct {
	dbConn *sql.DB
}

// NewSQLiteRunRepository creates a new SQLite run repository.
func NewSQLiteRunRepository(dbConn *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{dbConn: dbConn}
}

func (r *SQLiteRunRepository) querier(ctx context.Context) sqliteQuerier {
	if info, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return r.dbConn
}

// Save inserts or updates a Run record.
func (r *SQLiteRunRepository) Save(ctx context.Context, run *domain.Run) error {
	_, err := r.querier(ctx).ExecContext(ctx, `
		INSERT INTO scheduling_runs (id, task_count, horizon_days, algorithm_used, status, solve_time_sec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task_count = excluded.task_count,
			horizon_days = excluded.horizon_days,
			algorithm_used = excluded.algorithm_used,
			status = excluded.status,
			solve_time_sec = excluded.solve_time_sec,
			updated_at = excluded.updated_at`,
		run.ID().String(), run.TaskCount, run.HorizonDays, run.AlgorithmUsed, run.Status, run.SolveTimeSec,
		run.CreatedAt().Format(time.RFC3339), run.UpdatedAt().Format(time.RFC3339),
	)
	return err
}

// FindByID retrieves a Run by its identifier.
func (r *SQLiteRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	row := r.querier(ctx).QueryRowContext(ctx, `
		SELECT id, task_count, horizon_days, algorithm_used, status, solve_time_sec, created_at, updated_at
		FROM scheduling_runs WHERE id = ?`, id.String())
	return scanRun(row)
}

// Delete removes a Run by its identifier.
func (r *SQLiteRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.querier(ctx).ExecContext(ctx, `DELETE FROM scheduling_runs WHERE id = ?`, id.String())
	return err
}

// List returns the most recent run-history records, newest first, for the
// CLI `history` command.
func (r *SQLiteRunRepository) List(ctx context.Context, limit int) ([]*domain.Run, error) {
	rows, err := r.querier(ctx).QueryContext(ctx, `
		SELECT id, task_count, horizon_days, algorithm_used, status, solve_time_sec, created_at, updated_at
		FROM scheduling_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row *sql.Row) (*domain.Run, error) {
	run, err := scanRunFields(row)
	if err == sql.ErrNoRows {
		return nil, err
	}
	return run, err
}

func scanRunRow(rows *sql.Rows) (*domain.Run, error) {
	return scanRunFields(rows)
}

func scanRunFields(s rowScanner) (*domain.Run, error) {
	var (
		idStr string
		taskCount, horizonDays int
		algorithmUsed, status string
		solveTimeSec float64
		createdAt, updatedAt string
	)
	if err := s.Scan(&idStr, &taskCount, &horizonDays, &algorithmUsed, &status, &solveTimeSec, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateRun(id, created, updated, taskCount, horizonDays, algorithmUsed, status, solveTimeSec), nil
}
