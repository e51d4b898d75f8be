package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrBlockNotFound       = errors.New("scheduled block not found")
	ErrDuplicateOccurrence = errors.New("occurrence already exists for series")
)

// TaskRepository persists tasks scoped to a user.
type TaskRepository interface {
	// Save upserts; an insert that violates the per-series occurrence
	// uniqueness returns ErrDuplicateOccurrence.
	Save(ctx context.Context, t *Task) error
	FindByID(ctx context.Context, userID, id uuid.UUID) (*Task, error)
	// FindActive returns non-deleted tasks, newest first.
	FindActive(ctx context.Context, userID uuid.UUID) ([]*Task, error)
	// FindOpen returns open non-deleted tasks, newest first.
	FindOpen(ctx context.Context, userID uuid.UUID) ([]*Task, error)
	// FindOpenBySeries returns open occurrences materialized from a series.
	FindOpenBySeries(ctx context.Context, userID, seriesID uuid.UUID) ([]*Task, error)
	// Purge permanently removes a soft-deleted task.
	Purge(ctx context.Context, userID, id uuid.UUID) error
}

// ScheduledBlockRepository persists the user's timeline.
type ScheduledBlockRepository interface {
	Save(ctx context.Context, b *ScheduledBlock) error
	FindByID(ctx context.Context, userID, id uuid.UUID) (*ScheduledBlock, error)
	// FindByUser returns all blocks ordered by (start_time, id).
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*ScheduledBlock, error)
	// FindLocked returns locked blocks ordered by (start_time, id).
	FindLocked(ctx context.Context, userID uuid.UUID) ([]*ScheduledBlock, error)
	// ReplaceUnlocked deletes all unlocked blocks for the user and inserts
	// the new set in one transaction. Locked blocks are untouched.
	ReplaceUnlocked(ctx context.Context, userID uuid.UUID, blocks []*ScheduledBlock) error
	// DeleteForEntity removes blocks holding time for an entity, used when
	// a task is soft-deleted.
	DeleteForEntity(ctx context.Context, userID, entityID uuid.UUID) error
}
