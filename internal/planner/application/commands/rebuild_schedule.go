package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/application/services"
	"github.com/qnz18/qzwhatnext/internal/planner/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/eventbus"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/lock"
)

// ErrNoTasks is returned when a rebuild is requested with nothing to place.
var ErrNoTasks = errors.New("no open tasks to schedule")

// ReservationSource yields externally reserved intervals for a horizon,
// typically non-managed calendar events and recurring time blocks.
type ReservationSource interface {
	ReservedIntervals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]services.Interval, error)
}

// TimezoneSource resolves the user's calendar timezone for due-date urgency.
type TimezoneSource interface {
	Timezone(ctx context.Context, userID uuid.UUID) (*time.Location, error)
}

// RebuildScheduleCommand rebuilds the user's plan over the horizon.
type RebuildScheduleCommand struct {
	UserID uuid.UUID
}

// RebuildScheduleResult is the new plan.
type RebuildScheduleResult struct {
	StartTime  time.Time
	Blocks     []*domain.ScheduledBlock
	Overflow   []*domain.Task
	TaskTitles map[uuid.UUID]string
}

// RebuildScheduleHandler ranks open tasks and lays them onto the horizon,
// avoiding reservations and preserving locked blocks. Rebuilds for the same
// user are serialized by an advisory lock.
type RebuildScheduleHandler struct {
	taskRepo     domain.TaskRepository
	blockRepo    domain.ScheduledBlockRepository
	scheduler    *services.Scheduler
	reservations ReservationSource
	timezones    TimezoneSource
	locker       lock.UserLocker
	clock        clock.Clock
	horizon      time.Duration
	publisher    eventbus.Publisher
	logger       *slog.Logger
}

// NewRebuildScheduleHandler creates a new RebuildScheduleHandler.
// reservations and timezones may be nil when no calendar is connected.
func NewRebuildScheduleHandler(
	taskRepo domain.TaskRepository,
	blockRepo domain.ScheduledBlockRepository,
	scheduler *services.Scheduler,
	reservations ReservationSource,
	timezones TimezoneSource,
	locker lock.UserLocker,
	clk clock.Clock,
	horizon time.Duration,
	publisher eventbus.Publisher,
	logger *slog.Logger,
) *RebuildScheduleHandler {
	if scheduler == nil {
		scheduler = services.NewScheduler(logger)
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if horizon <= 0 {
		horizon = services.DefaultHorizon
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RebuildScheduleHandler{
		taskRepo:     taskRepo,
		blockRepo:    blockRepo,
		scheduler:    scheduler,
		reservations: reservations,
		timezones:    timezones,
		locker:       locker,
		clock:        clk,
		horizon:      horizon,
		publisher:    publisher,
		logger:       logger,
	}
}

// Handle executes the RebuildScheduleCommand.
func (h *RebuildScheduleHandler) Handle(ctx context.Context, cmd RebuildScheduleCommand) (*RebuildScheduleResult, error) {
	release, err := h.locker.Acquire(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire rebuild lock: %w", err)
	}
	defer release()

	now := h.clock.Now()
	horizonEnd := now.Add(h.horizon)

	tasks, err := h.taskRepo.FindOpen(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	loc := time.UTC
	if h.timezones != nil {
		if userLoc, err := h.timezones.Timezone(ctx, cmd.UserID); err == nil && userLoc != nil {
			loc = userLoc
		}
	}

	var reserved []services.Interval
	if h.reservations != nil {
		reserved, err = h.reservations.ReservedIntervals(ctx, cmd.UserID, now, horizonEnd)
		if err != nil {
			return nil, err
		}
	}

	lockedBlocks, err := h.blockRepo.FindLocked(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	ranked := services.StackRank(tasks, now, loc)
	schedule := h.scheduler.BuildSchedule(ranked, now, horizonEnd, reserved, lockedBlocks)

	if err := h.blockRepo.ReplaceUnlocked(ctx, cmd.UserID, schedule.Blocks); err != nil {
		return nil, fmt.Errorf("failed to persist schedule: %w", err)
	}

	h.logger.Info("schedule rebuilt",
		slog.String("user_id", cmd.UserID.String()),
		slog.Int("blocks", len(schedule.Blocks)),
		slog.Int("overflow", len(schedule.Overflow)))
	eventbus.PublishAudit(ctx, h.publisher, h.logger,
		eventbus.NewAuditEvent(cmd.UserID, "schedule.rebuilt", "schedule", ""))

	titles := make(map[uuid.UUID]string, len(tasks))
	for _, t := range tasks {
		titles[t.ID()] = t.Title()
	}
	return &RebuildScheduleResult{
		StartTime:  now,
		Blocks:     schedule.Blocks,
		Overflow:   schedule.Overflow,
		TaskTitles: titles,
	}, nil
}
