package commands

import (
	"context"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

// ToggleBlockLockCommand locks or unlocks a scheduled block.
type ToggleBlockLockCommand struct {
	UserID  uuid.UUID
	BlockID uuid.UUID
	Locked  bool
}

// ToggleBlockLockHandler handles the ToggleBlockLockCommand.
type ToggleBlockLockHandler struct {
	blockRepo domain.ScheduledBlockRepository
}

// NewToggleBlockLockHandler creates a new ToggleBlockLockHandler.
func NewToggleBlockLockHandler(blockRepo domain.ScheduledBlockRepository) *ToggleBlockLockHandler {
	return &ToggleBlockLockHandler{blockRepo: blockRepo}
}

// Handle executes the ToggleBlockLockCommand.
func (h *ToggleBlockLockHandler) Handle(ctx context.Context, cmd ToggleBlockLockCommand) error {
	b, err := h.blockRepo.FindByID(ctx, cmd.UserID, cmd.BlockID)
	if err != nil {
		return err
	}
	if cmd.Locked {
		b.Lock()
	} else {
		b.Unlock()
	}
	return h.blockRepo.Save(ctx, b)
}
