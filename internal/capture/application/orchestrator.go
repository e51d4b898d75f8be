// Package application implements the capture entry point: one natural
// language instruction in, one persisted entity out.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	calendarapp "github.com/qnz18/qzwhatnext/internal/calendar/application"
	identityservices "github.com/qnz18/qzwhatnext/internal/identity/application/services"
	plannerdomain "github.com/qnz18/qzwhatnext/internal/planner/domain"
	recurrenceservices "github.com/qnz18/qzwhatnext/internal/recurrence/application/services"
	recurrencedomain "github.com/qnz18/qzwhatnext/internal/recurrence/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/eventbus"
)

// ErrPastTime rejects one-off instructions that resolve behind the clock.
var ErrPastTime = errors.New("resolved time is already in the past")

// Actions and entity kinds reported back to the caller.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"

	EntityTaskSeries = "task_series"
	EntityTimeBlock  = "time_block"
	EntityEvent      = "event"
	EntityTask       = "task"
)

// Result describes what a capture instruction produced.
type Result struct {
	Action          string  `json:"action"`
	EntityKind      string  `json:"entity_kind"`
	EntityID        string  `json:"entity_id"`
	TasksCreated    *int    `json:"tasks_created,omitempty"`
	CalendarEventID *string `json:"calendar_event_id,omitempty"`
}

const defaultEventDuration = 60 * time.Minute

// Dispatch patterns. Recurrence wording always wins; "next week/month"
// without it is a deferred plain task; "next <weekday>", "today" and
// "tomorrow" resolve to a single calendar event.
var (
	recurrenceHintRe = regexp.MustCompile(`\b(?:every|daily|weekly|monthly|yearly|per\s+week|per\s+year|(?:\d+)\s*(?:x|times)\s*(?:per\s+)?week)\b`)
	deferredRe       = regexp.MustCompile(`\b(?:sometime\s+)?next\s+(week|month)\b`)
	oneOffDayRe      = regexp.MustCompile(`\b(?:next\s+(mon|monday|tue|tues|tuesday|wed|weds|wednesday|thu|thur|thurs|thursday|fri|friday|sat|saturday|sun|sunday)|(today|tomorrow))\b`)
	oneOffTimeRe     = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	eventDurationRe  = regexp.MustCompile(`\bfor\s+(\d+(?:\.\d+)?)\s*(min|mins|minute|minutes|hr|hrs|hour|hours)\b`)
)

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "weds": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
	"sun": time.Sunday, "sunday": time.Sunday,
}

// Orchestrator routes one capture instruction to the entity it describes.
// The calendar gateway may be nil; time blocks then stay in the persisted
// state until a later capture after the calendar is connected.
type Orchestrator struct {
	seriesRepo    recurrencedomain.TaskSeriesRepository
	timeBlockRepo recurrencedomain.TimeBlockRepository
	taskRepo      plannerdomain.TaskRepository
	materializer  *recurrenceservices.Materializer
	gateway       calendarapp.Gateway
	clk           clock.Clock
	horizon       time.Duration
	publisher     eventbus.Publisher
	logger        *slog.Logger
}

func NewOrchestrator(
	seriesRepo recurrencedomain.TaskSeriesRepository,
	timeBlockRepo recurrencedomain.TimeBlockRepository,
	taskRepo plannerdomain.TaskRepository,
	materializer *recurrenceservices.Materializer,
	gateway calendarapp.Gateway,
	clk clock.Clock,
	horizon time.Duration,
	publisher eventbus.Publisher,
	logger *slog.Logger,
) *Orchestrator {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if horizon <= 0 {
		horizon = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		seriesRepo:    seriesRepo,
		timeBlockRepo: timeBlockRepo,
		taskRepo:      taskRepo,
		materializer:  materializer,
		gateway:       gateway,
		clk:           clk,
		horizon:       horizon,
		publisher:     publisher,
		logger:        logger,
	}
}

// Capture parses the instruction and persists whatever it describes.
// entityID, when given, targets an existing series or time block for
// update instead of creating a new one.
func (o *Orchestrator) Capture(ctx context.Context, userID uuid.UUID, instruction string, entityID *uuid.UUID) (*Result, error) {
	trimmed := strings.TrimSpace(instruction)
	if trimmed == "" {
		return nil, recurrenceservices.ErrEmptyInstruction
	}

	aiExcluded := strings.HasPrefix(trimmed, ".")
	body := strings.TrimSpace(strings.TrimLeft(trimmed, "."))
	if body == "" {
		return nil, recurrenceservices.ErrEmptyInstruction
	}
	title := strings.Join(strings.Fields(body), " ")
	normalized := strings.ToLower(title)
	now := o.clk.Now()

	switch {
	case recurrenceHintRe.MatchString(normalized):
		return o.captureRecurring(ctx, userID, trimmed, entityID, now)
	case deferredRe.MatchString(normalized):
		return o.captureDeferredTask(ctx, userID, title, normalized, aiExcluded, now)
	case oneOffDayRe.MatchString(normalized):
		return o.captureOneOffEvent(ctx, userID, title, normalized, now)
	default:
		return o.captureRecurring(ctx, userID, trimmed, entityID, now)
	}
}

func (o *Orchestrator) captureRecurring(ctx context.Context, userID uuid.UUID, instruction string, entityID *uuid.UUID, now time.Time) (*Result, error) {
	parsed, err := recurrenceservices.ParseCaptureInstruction(instruction, now)
	if err != nil {
		return nil, err
	}
	if parsed.Kind == recurrenceservices.KindTimeBlock {
		return o.captureTimeBlock(ctx, userID, parsed, entityID, now)
	}
	return o.captureTaskSeries(ctx, userID, parsed, entityID, now)
}

func (o *Orchestrator) captureTaskSeries(ctx context.Context, userID uuid.UUID, parsed *recurrenceservices.ParsedCapture, entityID *uuid.UUID, now time.Time) (*Result, error) {
	action := ActionCreated
	var series *recurrencedomain.TaskSeries
	var err error

	if entityID != nil {
		series, err = o.seriesRepo.FindByID(ctx, userID, *entityID)
		if err != nil {
			return nil, err
		}
		if err := series.SetTitleTemplate(parsed.Title); err != nil {
			return nil, err
		}
		if err := series.SetPreset(parsed.Preset); err != nil {
			return nil, err
		}
		action = ActionUpdated
	} else {
		series, err = recurrencedomain.NewTaskSeries(userID, parsed.Title, parsed.Preset)
		if err != nil {
			return nil, err
		}
	}
	series.SetAIExcluded(parsed.AIExcluded)
	series.SetDurationDefault(parsed.DurationMin)

	if err := o.seriesRepo.Save(ctx, series); err != nil {
		return nil, err
	}

	created, err := o.materializer.Materialize(ctx, userID, now, now.Add(o.horizon))
	if err != nil {
		return nil, fmt.Errorf("failed to materialize series: %w", err)
	}

	eventbus.PublishAudit(ctx, o.publisher, o.logger,
		eventbus.NewAuditEvent(userID, "capture."+action, EntityTaskSeries, series.ID().String()))
	return &Result{
		Action:       action,
		EntityKind:   EntityTaskSeries,
		EntityID:     series.ID().String(),
		TasksCreated: &created,
	}, nil
}

func (o *Orchestrator) captureTimeBlock(ctx context.Context, userID uuid.UUID, parsed *recurrenceservices.ParsedCapture, entityID *uuid.UUID, now time.Time) (*Result, error) {
	action := ActionCreated
	var block *recurrencedomain.TimeBlock
	var err error

	if entityID != nil {
		block, err = o.timeBlockRepo.FindByID(ctx, userID, *entityID)
		if err != nil {
			return nil, err
		}
		if err := block.SetTitle(parsed.Title); err != nil {
			return nil, err
		}
		if err := block.SetPreset(parsed.Preset); err != nil {
			return nil, err
		}
		action = ActionUpdated
	} else {
		block, err = recurrencedomain.NewTimeBlock(userID, parsed.Title, parsed.Preset)
		if err != nil {
			return nil, err
		}
	}

	if err := o.timeBlockRepo.Save(ctx, block); err != nil {
		return nil, err
	}

	if err := o.writeThroughEvent(ctx, userID, block, now); err != nil {
		return nil, err
	}

	result := &Result{
		Action:          action,
		EntityKind:      EntityTimeBlock,
		EntityID:        block.ID().String(),
		CalendarEventID: block.CalendarEventID(),
	}
	eventbus.PublishAudit(ctx, o.publisher, o.logger,
		eventbus.NewAuditEvent(userID, "capture."+action, EntityTimeBlock, block.ID().String()))
	return result, nil
}

// writeThroughEvent mirrors the time block onto the calendar as a single
// recurring event. A missing calendar connection leaves the block persisted
// without an event; the next capture retries.
func (o *Orchestrator) writeThroughEvent(ctx context.Context, userID uuid.UUID, block *recurrencedomain.TimeBlock, now time.Time) error {
	if o.gateway == nil {
		return nil
	}

	draft, ok := o.recurringDraft(block, now)
	if !ok {
		return nil
	}

	var ev *calendarapp.Event
	var err error
	if id := block.CalendarEventID(); id != nil {
		ev, err = o.gateway.PatchEvent(ctx, userID, *id, draft)
		if errors.Is(err, calendarapp.ErrEventGone) {
			ev, err = o.gateway.InsertEvent(ctx, userID, draft)
		}
	} else {
		ev, err = o.gateway.InsertEvent(ctx, userID, draft)
	}
	if errors.Is(err, identityservices.ErrCalendarNotConnected) {
		o.logger.Info("calendar not connected, time block kept local",
			slog.String("time_block_id", block.ID().String()))
		return nil
	}
	if err != nil {
		return err
	}

	block.LinkCalendarEvent(ev.ID)
	return o.timeBlockRepo.Save(ctx, block)
}

// recurringDraft builds the recurring event payload: first matching
// occurrence plus the exported RRULE.
func (o *Orchestrator) recurringDraft(block *recurrencedomain.TimeBlock, now time.Time) (calendarapp.EventDraft, bool) {
	preset := block.Preset()
	if preset.TimeStart == nil {
		return calendarapp.EventDraft{}, false
	}

	day := recurrencedomain.DateOf(now.UTC())
	found := false
	for i := 0; i < 366; i++ {
		if preset.OccursOn(day) {
			found = true
			break
		}
		day = day.AddDays(1)
	}
	if !found {
		return calendarapp.EventDraft{}, false
	}

	start := day.At(*preset.TimeStart)
	var end time.Time
	if preset.TimeEnd != nil {
		end = day.At(*preset.TimeEnd)
	} else {
		end = start.Add(time.Hour)
	}
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}

	return calendarapp.EventDraft{
		Summary:    block.Title(),
		Start:      start,
		End:        end,
		// The events API wants full RFC 5545 property lines, not bare rules.
		Recurrence: []string{"RRULE:" + recurrenceservices.ExportRRule(preset)},
		Private:    map[string]string{calendarapp.MetaTimeBlockID: block.ID().String()},
	}, true
}

// captureDeferredTask creates a plain task whose placement is pushed past
// the named boundary ("sometime next week").
func (o *Orchestrator) captureDeferredTask(ctx context.Context, userID uuid.UUID, title, normalized string, aiExcluded bool, now time.Time) (*Result, error) {
	task, err := plannerdomain.NewTask(userID, title)
	if err != nil {
		return nil, err
	}
	task.SetAIExcluded(aiExcluded)

	startAfter := deferredBoundary(normalized, now)
	task.SetStartAfter(&startAfter)

	if err := o.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	eventbus.PublishAudit(ctx, o.publisher, o.logger,
		eventbus.NewAuditEvent(userID, "capture.created", EntityTask, task.ID().String()))
	return &Result{
		Action:     ActionCreated,
		EntityKind: EntityTask,
		EntityID:   task.ID().String(),
	}, nil
}

// deferredBoundary maps "next week" to the upcoming Monday and
// "next month" to the first of the next month, both UTC midnight.
func deferredBoundary(normalized string, now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if m := deferredRe.FindStringSubmatch(normalized); m != nil && m[1] == "month" {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	}
	daysUntilMonday := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	if daysUntilMonday == 0 {
		daysUntilMonday = 7
	}
	return midnight.AddDate(0, 0, daysUntilMonday)
}

// captureOneOffEvent resolves "next Tue 2:30pm" style phrases to the next
// matching instant and writes a single non-recurring calendar event.
func (o *Orchestrator) captureOneOffEvent(ctx context.Context, userID uuid.UUID, title, normalized string, now time.Time) (*Result, error) {
	start, err := resolveOneOffStart(normalized, now)
	if err != nil {
		return nil, err
	}
	if !start.After(now) {
		return nil, ErrPastTime
	}

	duration := defaultEventDuration
	if m := eventDurationRe.FindStringSubmatch(normalized); m != nil {
		amount, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			if strings.HasPrefix(m[2], "h") {
				amount *= 60
			}
			if mins := int(amount + 0.5); mins >= 1 {
				duration = time.Duration(mins) * time.Minute
			}
		}
	}

	if o.gateway == nil {
		return nil, identityservices.ErrCalendarNotConnected
	}
	ev, err := o.gateway.InsertEvent(ctx, userID, calendarapp.EventDraft{
		Summary: title,
		Start:   start,
		End:     start.Add(duration),
	})
	if err != nil {
		return nil, err
	}

	eventbus.PublishAudit(ctx, o.publisher, o.logger,
		eventbus.NewAuditEvent(userID, "capture.created", EntityEvent, ev.ID))
	return &Result{
		Action:          ActionCreated,
		EntityKind:      EntityEvent,
		EntityID:        ev.ID,
		CalendarEventID: &ev.ID,
	}, nil
}

// resolveOneOffStart picks the day from the phrase and attaches the last
// clock time mentioned, defaulting to 09:00.
func resolveOneOffStart(normalized string, now time.Time) (time.Time, error) {
	m := oneOffDayRe.FindStringSubmatch(normalized)
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch {
	case m[2] == "tomorrow":
		day = day.AddDate(0, 0, 1)
	case m[2] == "today":
		// as-is
	default:
		target := weekdayNames[m[1]]
		ahead := (int(target) - int(now.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		day = day.AddDate(0, 0, ahead)
	}

	hour, minute := 9, 0
	remainder := normalized[oneOffDayRe.FindStringIndex(normalized)[1]:]
	remainder = eventDurationRe.ReplaceAllString(remainder, "")
	if tm := lastTimeMatch(remainder); tm != nil {
		h, _ := strconv.Atoi(tm[1])
		mnt := 0
		if tm[2] != "" {
			mnt, _ = strconv.Atoi(tm[2])
		}
		switch tm[3] {
		case "am":
			if h == 12 {
				h = 0
			}
		case "pm":
			if h != 12 {
				h += 12
			}
		default:
			// Bare small hours after a day word read as afternoon.
			if h >= 1 && h <= 7 {
				h += 12
			}
		}
		if h > 23 || mnt > 59 {
			return time.Time{}, recurrenceservices.ErrInvalidTime
		}
		hour, minute = h, mnt
	}

	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), nil
}

func lastTimeMatch(s string) []string {
	matches := oneOffTimeRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	return matches[len(matches)-1]
}
