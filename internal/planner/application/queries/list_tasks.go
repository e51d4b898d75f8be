// Package queries holds the planner's read-side use cases.
package queries

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

// TaskDTO is the read model for a task.
type TaskDTO struct {
	ID                   uuid.UUID  `json:"id"`
	Title                string     `json:"title"`
	Notes                *string    `json:"notes,omitempty"`
	Status               string     `json:"status"`
	Category             string     `json:"category"`
	EnergyIntensity      string     `json:"energy_intensity"`
	EstimatedDurationMin int        `json:"estimated_duration_min"`
	DurationConfidence   float64    `json:"duration_confidence"`
	RiskScore            float64    `json:"risk_score"`
	ImpactScore          float64    `json:"impact_score"`
	Deadline             *time.Time `json:"deadline,omitempty"`
	StartAfter           *time.Time `json:"start_after,omitempty"`
	DueBy                *time.Time `json:"due_by,omitempty"`
	AIExcluded           bool       `json:"ai_excluded"`
	ManuallyScheduled    bool       `json:"manually_scheduled"`
	RecurrenceSeriesID   *uuid.UUID `json:"recurrence_series_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func taskToDTO(t *domain.Task) TaskDTO {
	return TaskDTO{
		ID:                   t.ID(),
		Title:                t.Title(),
		Notes:                t.Notes(),
		Status:               t.Status().String(),
		Category:             t.Category().String(),
		EnergyIntensity:      t.EnergyIntensity().String(),
		EstimatedDurationMin: t.EstimatedDurationMin(),
		DurationConfidence:   t.DurationConfidence(),
		RiskScore:            t.RiskScore(),
		ImpactScore:          t.ImpactScore(),
		Deadline:             t.Deadline(),
		StartAfter:           t.StartAfter(),
		DueBy:                t.DueBy(),
		AIExcluded:           t.AIExcluded(),
		ManuallyScheduled:    t.ManuallyScheduled(),
		RecurrenceSeriesID:   t.RecurrenceSeriesID(),
		CreatedAt:            t.CreatedAt(),
		UpdatedAt:            t.UpdatedAt(),
	}
}

// ListTasksQuery lists the user's non-deleted tasks, newest first.
type ListTasksQuery struct {
	UserID uuid.UUID
}

// ListTasksHandler handles the ListTasksQuery.
type ListTasksHandler struct {
	taskRepo domain.TaskRepository
}

// NewListTasksHandler creates a new ListTasksHandler.
func NewListTasksHandler(taskRepo domain.TaskRepository) *ListTasksHandler {
	return &ListTasksHandler{taskRepo: taskRepo}
}

// Handle executes the ListTasksQuery.
func (h *ListTasksHandler) Handle(ctx context.Context, query ListTasksQuery) ([]TaskDTO, error) {
	tasks, err := h.taskRepo.FindActive(ctx, query.UserID)
	if err != nil {
		return nil, err
	}
	dtos := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		dtos = append(dtos, taskToDTO(t))
	}
	return dtos, nil
}

// GetTaskQuery fetches a single task.
type GetTaskQuery struct {
	UserID uuid.UUID
	TaskID uuid.UUID
}

// GetTaskHandler handles the GetTaskQuery.
type GetTaskHandler struct {
	taskRepo domain.TaskRepository
}

// NewGetTaskHandler creates a new GetTaskHandler.
func NewGetTaskHandler(taskRepo domain.TaskRepository) *GetTaskHandler {
	return &GetTaskHandler{taskRepo: taskRepo}
}

// Handle executes the GetTaskQuery.
func (h *GetTaskHandler) Handle(ctx context.Context, query GetTaskQuery) (*TaskDTO, error) {
	t, err := h.taskRepo.FindByID(ctx, query.UserID, query.TaskID)
	if err != nil {
		return nil, err
	}
	dto := taskToDTO(t)
	return &dto, nil
}
