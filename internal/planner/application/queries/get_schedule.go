package queries

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

// BlockDTO is the read model for a scheduled block.
type BlockDTO struct {
	ID              uuid.UUID `json:"id"`
	EntityType      string    `json:"entity_type"`
	EntityID        uuid.UUID `json:"entity_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	ScheduledBy     string    `json:"scheduled_by"`
	Locked          bool      `json:"locked"`
	CalendarEventID *string   `json:"calendar_event_id,omitempty"`
	TaskTitle       string    `json:"task_title,omitempty"`
}

// ScheduleDTO is the current plan.
type ScheduleDTO struct {
	Blocks []BlockDTO `json:"blocks"`
}

// GetScheduleQuery fetches the user's current plan.
type GetScheduleQuery struct {
	UserID uuid.UUID
}

// GetScheduleHandler handles the GetScheduleQuery.
type GetScheduleHandler struct {
	blockRepo domain.ScheduledBlockRepository
	taskRepo  domain.TaskRepository
}

// NewGetScheduleHandler creates a new GetScheduleHandler.
func NewGetScheduleHandler(blockRepo domain.ScheduledBlockRepository, taskRepo domain.TaskRepository) *GetScheduleHandler {
	return &GetScheduleHandler{blockRepo: blockRepo, taskRepo: taskRepo}
}

// Handle executes the GetScheduleQuery. Blocks come back ordered by
// (start_time, id).
func (h *GetScheduleHandler) Handle(ctx context.Context, query GetScheduleQuery) (*ScheduleDTO, error) {
	blocks, err := h.blockRepo.FindByUser(ctx, query.UserID)
	if err != nil {
		return nil, err
	}

	titles := make(map[uuid.UUID]string)
	if tasks, err := h.taskRepo.FindActive(ctx, query.UserID); err == nil {
		for _, t := range tasks {
			titles[t.ID()] = t.Title()
		}
	}

	dto := &ScheduleDTO{Blocks: make([]BlockDTO, 0, len(blocks))}
	for _, b := range blocks {
		dto.Blocks = append(dto.Blocks, BlockDTO{
			ID:              b.ID(),
			EntityType:      string(b.EntityType()),
			EntityID:        b.EntityID(),
			StartTime:       b.StartTime(),
			EndTime:         b.EndTime(),
			ScheduledBy:     string(b.ScheduledBy()),
			Locked:          b.Locked(),
			CalendarEventID: b.CalendarEventID(),
			TaskTitle:       titles[b.EntityID()],
		})
	}
	return dto, nil
}
