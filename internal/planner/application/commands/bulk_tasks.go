package commands

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
)

// BulkOp selects which lifecycle transition a bulk command applies.
type BulkOp string

const (
	BulkDelete  BulkOp = "delete"
	BulkRestore BulkOp = "restore"
	BulkPurge   BulkOp = "purge"
)

// BulkTasksCommand applies one lifecycle operation to many tasks.
type BulkTasksCommand struct {
	UserID  uuid.UUID
	TaskIDs []uuid.UUID
	Op      BulkOp
}

// BulkTasksResult reports what happened per the bulk contract: unknown IDs
// are collected, not fatal.
type BulkTasksResult struct {
	AffectedCount int
	NotFoundIDs   []uuid.UUID
}

// BulkTasksHandler handles the BulkTasksCommand.
type BulkTasksHandler struct {
	deleteHandler  *DeleteTaskHandler
	restoreHandler *RestoreTaskHandler
	purgeHandler   *PurgeTaskHandler
}

// NewBulkTasksHandler creates a new BulkTasksHandler.
func NewBulkTasksHandler(taskRepo domain.TaskRepository, blockRepo domain.ScheduledBlockRepository, clk clock.Clock) *BulkTasksHandler {
	return &BulkTasksHandler{
		deleteHandler:  NewDeleteTaskHandler(taskRepo, blockRepo, clk),
		restoreHandler: NewRestoreTaskHandler(taskRepo),
		purgeHandler:   NewPurgeTaskHandler(taskRepo, blockRepo),
	}
}

// Handle applies the operation to each task, collecting unknown IDs.
func (h *BulkTasksHandler) Handle(ctx context.Context, cmd BulkTasksCommand) (*BulkTasksResult, error) {
	result := &BulkTasksResult{}
	for _, id := range cmd.TaskIDs {
		var err error
		switch cmd.Op {
		case BulkDelete:
			err = h.deleteHandler.Handle(ctx, DeleteTaskCommand{UserID: cmd.UserID, TaskID: id})
		case BulkRestore:
			err = h.restoreHandler.Handle(ctx, cmd.UserID, id)
		case BulkPurge:
			err = h.purgeHandler.Handle(ctx, cmd.UserID, id)
		default:
			return nil, errors.New("unknown bulk operation")
		}

		switch {
		case err == nil:
			result.AffectedCount++
		case errors.Is(err, domain.ErrTaskNotFound):
			result.NotFoundIDs = append(result.NotFoundIDs, id)
		default:
			return nil, err
		}
	}
	return result, nil
}
