package labreport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a history entry does not exist.
var ErrNotFound = errors.New("lab report not found")

// ReportRepository persists report history entries.
type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	List(ctx context.Context, limit, offset int) ([]*Report, int, error)
	Stats(ctx context.Context) (*Stats, error)
}
