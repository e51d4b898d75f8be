package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/application/services"
	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

const fallbackTitleLength = 60

// AddSmartTaskCommand creates a task from free-form notes with AI-derived
// title and category. Notes beginning with "." skip inference entirely.
type AddSmartTaskCommand struct {
	UserID uuid.UUID
	Notes  string
}

// AddSmartTaskResult contains the created task and what was inferred.
type AddSmartTaskResult struct {
	TaskID     uuid.UUID
	Title      string
	Category   domain.Category
	AIExcluded bool
}

// AddSmartTaskHandler handles the AddSmartTaskCommand.
type AddSmartTaskHandler struct {
	taskRepo   domain.TaskRepository
	classifier services.Classifier
	logger     *slog.Logger
}

// NewAddSmartTaskHandler creates a new AddSmartTaskHandler.
func NewAddSmartTaskHandler(taskRepo domain.TaskRepository, classifier services.Classifier, logger *slog.Logger) *AddSmartTaskHandler {
	if classifier == nil {
		classifier = services.NoopClassifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AddSmartTaskHandler{taskRepo: taskRepo, classifier: classifier, logger: logger}
}

// Handle creates the task. The exclusion gate is consulted before any
// inference call so excluded notes never leave the process.
func (h *AddSmartTaskHandler) Handle(ctx context.Context, cmd AddSmartTaskCommand) (*AddSmartTaskResult, error) {
	notes := strings.TrimSpace(cmd.Notes)
	excluded := strings.HasPrefix(notes, ".")

	title := ""
	category := domain.CategoryUnknown
	if !excluded {
		title = h.classifier.GenerateTitle(ctx, notes)
		category, _ = h.classifier.InferCategory(ctx, notes)
	}
	if title == "" {
		title = fallbackTitle(notes)
	}

	t, err := domain.NewTask(cmd.UserID, title)
	if err != nil {
		return nil, err
	}
	t.SetSource(domain.SourceSmart, nil)
	if err := t.SetNotes(&notes); err != nil {
		return nil, err
	}
	if err := t.SetCategory(category); err != nil {
		return nil, err
	}
	if excluded {
		t.SetAIExcluded(true)
	}

	if err := h.taskRepo.Save(ctx, t); err != nil {
		return nil, err
	}
	return &AddSmartTaskResult{
		TaskID:     t.ID(),
		Title:      t.Title(),
		Category:   t.Category(),
		AIExcluded: t.AIExcluded(),
	}, nil
}

// fallbackTitle truncates notes when no generated title is available.
func fallbackTitle(notes string) string {
	if len(notes) <= fallbackTitleLength {
		return notes
	}
	return strings.TrimSpace(notes[:fallbackTitleLength]) + "…"
}
