package commands

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/eventbus"
)

// CompleteTaskCommand marks a task completed.
type CompleteTaskCommand struct {
	UserID uuid.UUID
	TaskID uuid.UUID
}

// CompleteTaskHandler handles the CompleteTaskCommand.
type CompleteTaskHandler struct {
	taskRepo  domain.TaskRepository
	clock     clock.Clock
	publisher eventbus.Publisher
	logger    *slog.Logger
}

// NewCompleteTaskHandler creates a new CompleteTaskHandler.
func NewCompleteTaskHandler(taskRepo domain.TaskRepository, clk clock.Clock, publisher eventbus.Publisher, logger *slog.Logger) *CompleteTaskHandler {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompleteTaskHandler{taskRepo: taskRepo, clock: clk, publisher: publisher, logger: logger}
}

// Handle executes the CompleteTaskCommand.
func (h *CompleteTaskHandler) Handle(ctx context.Context, cmd CompleteTaskCommand) error {
	t, err := h.taskRepo.FindByID(ctx, cmd.UserID, cmd.TaskID)
	if err != nil {
		return err
	}
	if err := t.Complete(h.clock.Now()); err != nil {
		return err
	}
	if err := h.taskRepo.Save(ctx, t); err != nil {
		return err
	}

	eventbus.PublishAudit(ctx, h.publisher, h.logger,
		eventbus.NewAuditEvent(cmd.UserID, "task.completed", "task", t.ID().String()))
	return nil
}
