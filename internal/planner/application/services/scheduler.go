package services

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

// Granularity is the scheduling grid. Every placed block is exactly one
// Granularity long; runs start on the grid relative to the horizon start
// except where the scan jumped past a reservation, in which case the run
// begins at the reservation's end.
const Granularity = 30 * time.Minute

// DefaultHorizon bounds how far ahead the scheduler plans.
const DefaultHorizon = 7 * 24 * time.Hour

// Interval is a half-open [Start, End) span of reserved time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NormalizeReservations drops empty or inverted intervals and sorts the rest
// by start. Overlapping reservations are left as-is; the placement scan
// treats them as their union.
func NormalizeReservations(reservations []Interval) []Interval {
	out := make([]Interval, 0, len(reservations))
	for _, r := range reservations {
		if r.End.After(r.Start) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].End.Before(out[j].End)
	})
	return out
}

// Schedule is the scheduler's output: the blocks placed on the timeline plus
// the tasks that did not fit within the horizon.
type Schedule struct {
	Blocks   []*domain.ScheduledBlock
	Overflow []*domain.Task
}

// Scheduler greedily places ranked tasks onto a bounded horizon.
//
// The algorithm is deterministic: identical (tasks, reservations, horizon)
// inputs produce identical block sequences including block IDs.
type Scheduler struct {
	logger *slog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// BuildSchedule walks tasks in ranked order and emits consecutive
// Granularity-sized blocks for each, skipping reserved time. Tasks that are
// manually scheduled or already held by a locked block are left alone; the
// caller passes locked blocks so their intervals count as reservations.
func (s *Scheduler) BuildSchedule(
	ranked []*domain.Task,
	horizonStart, horizonEnd time.Time,
	reservations []Interval,
	lockedBlocks []*domain.ScheduledBlock,
) Schedule {
	reserved := NormalizeReservations(reservations)
	lockedByEntity := make(map[uuid.UUID]bool, len(lockedBlocks))
	for _, b := range lockedBlocks {
		lockedByEntity[b.EntityID()] = true
		reserved = append(reserved, Interval{Start: b.StartTime(), End: b.EndTime()})
	}
	reserved = NormalizeReservations(reserved)

	var out Schedule
	cursor := horizonStart

	for _, t := range ranked {
		if t.ManuallyScheduled() || lockedByEntity[t.ID()] {
			continue
		}

		blocksNeeded := (t.EstimatedDurationMin() + int(Granularity.Minutes()) - 1) / int(Granularity.Minutes())
		runLength := time.Duration(blocksNeeded) * Granularity

		start := cursor
		if sa := t.StartAfter(); sa != nil && sa.After(start) {
			start = *sa
		}
		limit := horizonEnd
		if w := t.FlexibilityWindow(); w != nil {
			if w.Start.After(start) {
				start = w.Start
			}
			if w.End.Before(limit) {
				limit = w.End
			}
		}

		placed, ok := findSlot(start, limit, runLength, reserved)
		if !ok {
			s.logger.Debug("task overflows horizon",
				slog.String("task_id", t.ID().String()),
				slog.Int("blocks_needed", blocksNeeded))
			out.Overflow = append(out.Overflow, t)
			continue
		}

		for i := 0; i < blocksNeeded; i++ {
			blockStart := placed.Add(time.Duration(i) * Granularity)
			block, err := domain.NewScheduledBlock(
				domain.DeterministicBlockID(t.ID(), i),
				t.UserID(),
				domain.BlockEntityTask,
				t.ID(),
				blockStart,
				blockStart.Add(Granularity),
				domain.ScheduledBySystem,
			)
			if err != nil {
				// Unreachable: intervals are built Granularity-long.
				continue
			}
			out.Blocks = append(out.Blocks, block)
		}
		cursor = placed.Add(runLength)
	}

	return out
}

// findSlot scans forward from start for a gap of runLength that ends by
// limit and overlaps no reservation. Hitting a reservation jumps the scan to
// the reservation's end; overlapping reservations chain, so the scan lands
// past their union.
func findSlot(start, limit time.Time, runLength time.Duration, reserved []Interval) (time.Time, bool) {
	for {
		end := start.Add(runLength)
		if end.After(limit) {
			return time.Time{}, false
		}

		blocked := false
		for _, r := range reserved {
			if r.Start.Before(end) && start.Before(r.End) {
				start = r.End
				blocked = true
				break
			}
		}
		if !blocked {
			return start, true
		}
	}
}
