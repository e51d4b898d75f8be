package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrSeriesNotFound    = errors.New("recurring task series not found")
	ErrTimeBlockNotFound = errors.New("recurring time block not found")
)

// TaskSeriesRepository persists recurring task series.
type TaskSeriesRepository interface {
	Save(ctx context.Context, s *TaskSeries) error
	FindByID(ctx context.Context, userID, id uuid.UUID) (*TaskSeries, error)
	// ListActive returns non-deleted series, newest first. The
	// materializer relies on this ordering for deterministic output.
	ListActive(ctx context.Context, userID uuid.UUID) ([]*TaskSeries, error)
	// ActiveUserIDs lists users holding at least one live series, for
	// the background materialization sweep.
	ActiveUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// TimeBlockRepository persists recurring time blocks.
type TimeBlockRepository interface {
	Save(ctx context.Context, b *TimeBlock) error
	FindByID(ctx context.Context, userID, id uuid.UUID) (*TimeBlock, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]*TimeBlock, error)
}
