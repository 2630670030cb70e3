package domain

import (
	"context"

	shareddomain "github.com/hybridsched/planner/internal/shared/domain"
)

// RunRepository persists Run audit records.
type RunRepository = shareddomain.Repository[*Run]

// RunReader supports listing run history for the CLI's `history` command,
// beyond the base Repository[T] contract.
type RunReader interface {
	List(ctx context.Context, limit int) ([]*Run, error)
}
