package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
)

// DeleteTaskCommand soft-deletes a task and drops its scheduled blocks.
type DeleteTaskCommand struct {
	UserID uuid.UUID
	TaskID uuid.UUID
}

// DeleteTaskHandler handles the DeleteTaskCommand.
type DeleteTaskHandler struct {
	taskRepo  domain.TaskRepository
	blockRepo domain.ScheduledBlockRepository
	clock     clock.Clock
}

// NewDeleteTaskHandler creates a new DeleteTaskHandler.
func NewDeleteTaskHandler(taskRepo domain.TaskRepository, blockRepo domain.ScheduledBlockRepository, clk clock.Clock) *DeleteTaskHandler {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &DeleteTaskHandler{taskRepo: taskRepo, blockRepo: blockRepo, clock: clk}
}

// Handle soft-deletes the task, then cascades to its blocks.
func (h *DeleteTaskHandler) Handle(ctx context.Context, cmd DeleteTaskCommand) error {
	t, err := h.taskRepo.FindByID(ctx, cmd.UserID, cmd.TaskID)
	if err != nil {
		return err
	}
	t.SoftDelete(h.clock.Now())
	if err := h.taskRepo.Save(ctx, t); err != nil {
		return err
	}
	if err := h.blockRepo.DeleteForEntity(ctx, cmd.UserID, cmd.TaskID); err != nil {
		return fmt.Errorf("failed to delete blocks for task: %w", err)
	}
	return nil
}

// RestoreTaskHandler undoes a soft delete.
type RestoreTaskHandler struct {
	taskRepo domain.TaskRepository
}

// NewRestoreTaskHandler creates a new RestoreTaskHandler.
func NewRestoreTaskHandler(taskRepo domain.TaskRepository) *RestoreTaskHandler {
	return &RestoreTaskHandler{taskRepo: taskRepo}
}

// Handle restores a soft-deleted task.
func (h *RestoreTaskHandler) Handle(ctx context.Context, userID, taskID uuid.UUID) error {
	t, err := h.taskRepo.FindByID(ctx, userID, taskID)
	if err != nil {
		return err
	}
	t.Restore()
	return h.taskRepo.Save(ctx, t)
}

// PurgeTaskHandler permanently removes a task.
type PurgeTaskHandler struct {
	taskRepo  domain.TaskRepository
	blockRepo domain.ScheduledBlockRepository
}

// NewPurgeTaskHandler creates a new PurgeTaskHandler.
func NewPurgeTaskHandler(taskRepo domain.TaskRepository, blockRepo domain.ScheduledBlockRepository) *PurgeTaskHandler {
	return &PurgeTaskHandler{taskRepo: taskRepo, blockRepo: blockRepo}
}

// Handle purges a task and its blocks.
func (h *PurgeTaskHandler) Handle(ctx context.Context, userID, taskID uuid.UUID) error {
	if err := h.blockRepo.DeleteForEntity(ctx, userID, taskID); err != nil &&
		!errors.Is(err, domain.ErrBlockNotFound) {
		return err
	}
	return h.taskRepo.Purge(ctx, userID, taskID)
}
