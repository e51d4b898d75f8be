// Package commands holds the planner's write-side use cases.
package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/eventbus"
)

// CreateTaskCommand contains the data needed to create a task.
type CreateTaskCommand struct {
	UserID          uuid.UUID
	Title           string
	Notes           *string
	Category        string
	DurationMinutes int
	Deadline        *time.Time
	StartAfter      *time.Time
	DueBy           *time.Time
}

// CreateTaskResult contains the result of creating a task.
type CreateTaskResult struct {
	TaskID     uuid.UUID
	AIExcluded bool
}

// CreateTaskHandler handles the CreateTaskCommand.
type CreateTaskHandler struct {
	taskRepo  domain.TaskRepository
	publisher eventbus.Publisher
	logger    *slog.Logger
}

// NewCreateTaskHandler creates a new CreateTaskHandler.
func NewCreateTaskHandler(taskRepo domain.TaskRepository, publisher eventbus.Publisher, logger *slog.Logger) *CreateTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateTaskHandler{taskRepo: taskRepo, publisher: publisher, logger: logger}
}

// Handle executes the CreateTaskCommand.
func (h *CreateTaskHandler) Handle(ctx context.Context, cmd CreateTaskCommand) (*CreateTaskResult, error) {
	t, err := domain.NewTask(cmd.UserID, cmd.Title)
	if err != nil {
		return nil, err
	}

	if cmd.Notes != nil {
		if err := t.SetNotes(cmd.Notes); err != nil {
			return nil, err
		}
	}
	if cmd.Category != "" {
		if err := t.SetCategory(domain.ParseCategory(cmd.Category)); err != nil {
			return nil, err
		}
	}
	if cmd.DurationMinutes > 0 {
		if err := t.SetEstimatedDuration(cmd.DurationMinutes); err != nil {
			return nil, err
		}
	}
	if cmd.Deadline != nil {
		if err := t.SetDeadline(cmd.Deadline); err != nil {
			return nil, err
		}
	}
	if cmd.StartAfter != nil {
		t.SetStartAfter(cmd.StartAfter)
	}
	if cmd.DueBy != nil {
		t.SetDueBy(cmd.DueBy)
	}

	if err := h.taskRepo.Save(ctx, t); err != nil {
		return nil, err
	}

	eventbus.PublishAudit(ctx, h.publisher, h.logger,
		eventbus.NewAuditEvent(cmd.UserID, "task.created", "task", t.ID().String()))

	return &CreateTaskResult{TaskID: t.ID(), AIExcluded: t.AIExcluded()}, nil
}
