package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	plannerservices "github.com/qnz18/qzwhatnext/internal/planner/application/services"
	plannerdomain "github.com/qnz18/qzwhatnext/internal/planner/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/eventbus"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/lock"
)

const transitionSummary = "Transition"

// ReconcileResult summarizes the writes one pass performed. A pass over an
// already-synchronized plan reports zero writes.
type ReconcileResult struct {
	EventsCreated  int
	EventsPatched  int
	EventsDeleted  int
	BlocksImported int
	EventIDs       []string
}

// Reconciler converges the user's calendar onto the planned schedule:
// one managed event per scheduled block, externally moved events imported
// back as locked blocks, managed events with no surviving block deleted.
type Reconciler struct {
	gateway   Gateway
	taskRepo  plannerdomain.TaskRepository
	blockRepo plannerdomain.ScheduledBlockRepository
	scheduler *plannerservices.Scheduler
	locker    lock.UserLocker
	clk       clock.Clock
	horizon   time.Duration
	publisher eventbus.Publisher
	logger    *slog.Logger
}

func NewReconciler(
	gateway Gateway,
	taskRepo plannerdomain.TaskRepository,
	blockRepo plannerdomain.ScheduledBlockRepository,
	scheduler *plannerservices.Scheduler,
	locker lock.UserLocker,
	clk clock.Clock,
	horizon time.Duration,
	publisher eventbus.Publisher,
	logger *slog.Logger,
) *Reconciler {
	if scheduler == nil {
		scheduler = plannerservices.NewScheduler(logger)
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if horizon <= 0 {
		horizon = plannerservices.DefaultHorizon
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		gateway:   gateway,
		taskRepo:  taskRepo,
		blockRepo: blockRepo,
		scheduler: scheduler,
		locker:    locker,
		clk:       clk,
		horizon:   horizon,
		publisher: publisher,
		logger:    logger,
	}
}

// Reconcile rebuilds the plan over the horizon, then diffs each planned
// block against its calendar event and applies the minimal set of writes.
// Reruns with no intervening change perform no writes.
func (r *Reconciler) Reconcile(ctx context.Context, userID uuid.UUID) (*ReconcileResult, error) {
	release, err := r.locker.Acquire(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire reconcile lock: %w", err)
	}
	defer release()

	now := r.clk.Now()
	horizonEnd := now.Add(r.horizon)

	// A missing or revoked grant surfaces here, before any local change.
	events, err := r.gateway.ListEvents(ctx, userID, now, horizonEnd)
	if err != nil {
		return nil, err
	}

	plan, titles, err := r.rebuildPlan(ctx, userID, now, horizonEnd, events)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{}
	planned := make(map[uuid.UUID]bool, len(plan))
	for _, block := range plan {
		planned[block.ID()] = true
		if err := r.syncBlock(ctx, userID, block, titles, result); err != nil {
			return nil, err
		}
		if id := block.CalendarEventID(); id != nil {
			result.EventIDs = append(result.EventIDs, *id)
		}
	}

	if err := r.deleteOrphans(ctx, userID, events, planned, result); err != nil {
		return nil, err
	}

	r.logger.Info("calendar reconciled",
		slog.String("user_id", userID.String()),
		slog.Int("created", result.EventsCreated),
		slog.Int("patched", result.EventsPatched),
		slog.Int("deleted", result.EventsDeleted),
		slog.Int("imported", result.BlocksImported))
	eventbus.PublishAudit(ctx, r.publisher, r.logger,
		eventbus.NewAuditEvent(userID, "calendar.reconciled", "schedule", ""))

	return result, nil
}

// rebuildPlan regenerates the schedule treating non-managed events and
// locked blocks as reservations. Regenerated blocks inherit calendar
// metadata from their predecessors through deterministic block identity.
func (r *Reconciler) rebuildPlan(
	ctx context.Context,
	userID uuid.UUID,
	now, horizonEnd time.Time,
	events []Event,
) ([]*plannerdomain.ScheduledBlock, map[uuid.UUID]string, error) {
	var reservations []plannerservices.Interval
	for _, ev := range events {
		if ev.Status == EventStatusCancelled || ev.IsManaged() {
			continue
		}
		reservations = append(reservations, plannerservices.Interval{Start: ev.Start, End: ev.End})
	}

	prior, err := r.blockRepo.FindByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	priorByID := make(map[uuid.UUID]*plannerdomain.ScheduledBlock, len(prior))
	for _, b := range prior {
		priorByID[b.ID()] = b
	}

	lockedBlocks, err := r.blockRepo.FindLocked(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	tasks, err := r.taskRepo.FindOpen(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	loc := time.UTC
	if tz, err := r.gateway.Timezone(ctx, userID); err == nil && tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}

	ranked := plannerservices.StackRank(tasks, now, loc)
	schedule := r.scheduler.BuildSchedule(ranked, now, horizonEnd, reservations, lockedBlocks)

	for _, block := range schedule.Blocks {
		old, ok := priorByID[block.ID()]
		if !ok || old.CalendarEventID() == nil {
			continue
		}
		etag := ""
		if old.CalendarEventEtag() != nil {
			etag = *old.CalendarEventEtag()
		}
		block.SetCalendarMetadata(*old.CalendarEventID(), etag, old.CalendarEventUpdatedAt())
	}

	if err := r.blockRepo.ReplaceUnlocked(ctx, userID, schedule.Blocks); err != nil {
		return nil, nil, fmt.Errorf("failed to persist schedule: %w", err)
	}

	titles := make(map[uuid.UUID]string)
	active, err := r.taskRepo.FindActive(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range active {
		titles[t.ID()] = t.Title()
	}

	plan := append(lockedBlocks, schedule.Blocks...)
	sort.Slice(plan, func(i, j int) bool {
		if !plan[i].StartTime().Equal(plan[j].StartTime()) {
			return plan[i].StartTime().Before(plan[j].StartTime())
		}
		return plan[i].ID().String() < plan[j].ID().String()
	})
	return plan, titles, nil
}

// syncBlock makes the block's calendar event match the block, or imports
// the event's times when the user moved it on the calendar side.
func (r *Reconciler) syncBlock(
	ctx context.Context,
	userID uuid.UUID,
	block *plannerdomain.ScheduledBlock,
	titles map[uuid.UUID]string,
	result *ReconcileResult,
) error {
	summary := r.summaryFor(block, titles)

	if block.CalendarEventID() == nil {
		return r.createEvent(ctx, userID, block, summary, result)
	}

	ev, err := r.gateway.GetEvent(ctx, userID, *block.CalendarEventID())
	if errors.Is(err, ErrEventGone) {
		return r.createEvent(ctx, userID, block, summary, result)
	}
	if err != nil {
		return err
	}
	if ev.Status == EventStatusCancelled {
		return r.createEvent(ctx, userID, block, summary, result)
	}

	timeMoved := !ev.Start.Equal(block.StartTime()) || !ev.End.Equal(block.EndTime())
	summaryDiffers := ev.Summary != summary
	if !timeMoved && !summaryDiffers {
		// Refresh drifted version metadata without touching the event.
		if r.versionDrifted(block, ev) {
			block.SetCalendarMetadata(ev.ID, ev.Etag, ev.Updated)
			return r.blockRepo.Save(ctx, block)
		}
		return nil
	}

	if r.versionDrifted(block, ev) && timeMoved {
		// The event changed on the calendar since our last write: the
		// user's edit wins and pins the block.
		if err := block.ImportTimes(ev.Start, ev.End); err != nil {
			return fmt.Errorf("failed to import event times: %w", err)
		}
		block.SetCalendarMetadata(ev.ID, ev.Etag, ev.Updated)
		if err := r.blockRepo.Save(ctx, block); err != nil {
			return err
		}
		result.BlocksImported++
		return nil
	}

	patched, err := r.gateway.PatchEvent(ctx, userID, ev.ID, r.draftFor(block, summary))
	if err != nil {
		return err
	}
	block.SetCalendarMetadata(patched.ID, patched.Etag, patched.Updated)
	if err := r.blockRepo.Save(ctx, block); err != nil {
		return err
	}
	result.EventsPatched++
	return nil
}

func (r *Reconciler) createEvent(
	ctx context.Context,
	userID uuid.UUID,
	block *plannerdomain.ScheduledBlock,
	summary string,
	result *ReconcileResult,
) error {
	created, err := r.gateway.InsertEvent(ctx, userID, r.draftFor(block, summary))
	if err != nil {
		return err
	}
	block.SetCalendarMetadata(created.ID, created.Etag, created.Updated)
	if err := r.blockRepo.Save(ctx, block); err != nil {
		return err
	}
	result.EventsCreated++
	return nil
}

// deleteOrphans removes managed events whose block no longer exists in the
// plan. Already-gone events count as deleted.
func (r *Reconciler) deleteOrphans(
	ctx context.Context,
	userID uuid.UUID,
	events []Event,
	planned map[uuid.UUID]bool,
	result *ReconcileResult,
) error {
	for _, ev := range events {
		if !ev.IsManaged() || ev.Status == EventStatusCancelled {
			continue
		}
		blockID, ok := ev.BlockID()
		if ok && planned[blockID] {
			continue
		}
		if err := r.gateway.DeleteEvent(ctx, userID, ev.ID); err != nil && !errors.Is(err, ErrEventGone) {
			return err
		}
		result.EventsDeleted++
	}
	return nil
}

func (r *Reconciler) summaryFor(block *plannerdomain.ScheduledBlock, titles map[uuid.UUID]string) string {
	if block.EntityType() == plannerdomain.BlockEntityTransition {
		return transitionSummary
	}
	if title, ok := titles[block.EntityID()]; ok {
		return title
	}
	return "Scheduled work"
}

func (r *Reconciler) draftFor(block *plannerdomain.ScheduledBlock, summary string) EventDraft {
	return EventDraft{
		Summary: summary,
		Start:   block.StartTime(),
		End:     block.EndTime(),
		Private: map[string]string{
			MetaTaskID:  block.EntityID().String(),
			MetaBlockID: block.ID().String(),
			MetaManaged: ManagedValue,
		},
	}
}

// versionDrifted reports whether the event's version differs from the one
// recorded at our last write.
func (r *Reconciler) versionDrifted(block *plannerdomain.ScheduledBlock, ev *Event) bool {
	if block.CalendarEventEtag() == nil {
		return true
	}
	if *block.CalendarEventEtag() != ev.Etag {
		return true
	}
	stored := block.CalendarEventUpdatedAt()
	switch {
	case stored == nil && ev.Updated == nil:
		return false
	case stored == nil || ev.Updated == nil:
		return true
	default:
		return !stored.Equal(*ev.Updated)
	}
}
