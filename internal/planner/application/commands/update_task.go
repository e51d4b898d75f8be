package commands

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

// UpdateTaskCommand patches a task; nil fields are left untouched.
type UpdateTaskCommand struct {
	UserID          uuid.UUID
	TaskID          uuid.UUID
	Title           *string
	Notes           *string
	Category        *string
	DurationMinutes *int
	Deadline        *time.Time
	ClearDeadline   bool
	StartAfter      *time.Time
	DueBy           *time.Time
	AIExcluded      *bool
	Status          *string
}

// UpdateTaskHandler handles the UpdateTaskCommand.
type UpdateTaskHandler struct {
	taskRepo domain.TaskRepository
}

// NewUpdateTaskHandler creates a new UpdateTaskHandler.
func NewUpdateTaskHandler(taskRepo domain.TaskRepository) *UpdateTaskHandler {
	return &UpdateTaskHandler{taskRepo: taskRepo}
}

// Handle executes the UpdateTaskCommand.
func (h *UpdateTaskHandler) Handle(ctx context.Context, cmd UpdateTaskCommand) error {
	t, err := h.taskRepo.FindByID(ctx, cmd.UserID, cmd.TaskID)
	if err != nil {
		return err
	}

	if cmd.Title != nil {
		if err := t.SetTitle(*cmd.Title); err != nil {
			return err
		}
	}
	if cmd.Notes != nil {
		if err := t.SetNotes(cmd.Notes); err != nil {
			return err
		}
	}
	if cmd.Category != nil {
		if err := t.SetCategory(domain.ParseCategory(*cmd.Category)); err != nil {
			return err
		}
	}
	if cmd.DurationMinutes != nil {
		if err := t.SetEstimatedDuration(*cmd.DurationMinutes); err != nil {
			return err
		}
	}
	switch {
	case cmd.ClearDeadline:
		if err := t.SetDeadline(nil); err != nil {
			return err
		}
	case cmd.Deadline != nil:
		if err := t.SetDeadline(cmd.Deadline); err != nil {
			return err
		}
	}
	if cmd.StartAfter != nil {
		t.SetStartAfter(cmd.StartAfter)
	}
	if cmd.DueBy != nil {
		t.SetDueBy(cmd.DueBy)
	}
	if cmd.AIExcluded != nil {
		t.SetAIExcluded(*cmd.AIExcluded)
	}
	if cmd.Status != nil {
		switch domain.ParseStatus(*cmd.Status) {
		case domain.StatusCompleted:
			if err := t.Complete(time.Now().UTC()); err != nil {
				return err
			}
		case domain.StatusMissed:
			if err := t.MarkMissed(time.Now().UTC()); err != nil {
				return err
			}
		case domain.StatusOpen:
			if err := t.Reopen(); err != nil {
				return err
			}
		}
	}

	return h.taskRepo.Save(ctx, t)
}
