package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	plannerdomain "github.com/qnz18/qzwhatnext/internal/planner/domain"
	"github.com/qnz18/qzwhatnext/internal/recurrence/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
)

// Materializer stamps out concrete task occurrences from recurring task
// series inside a planning window. Recurrence is habit-style: at most one
// open occurrence per series, and missed occurrences never pile up.
type Materializer struct {
	seriesRepo domain.TaskSeriesRepository
	taskRepo   plannerdomain.TaskRepository
	clk        clock.Clock
	logger     *slog.Logger
}

func NewMaterializer(
	seriesRepo domain.TaskSeriesRepository,
	taskRepo plannerdomain.TaskRepository,
	clk clock.Clock,
	logger *slog.Logger,
) *Materializer {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{seriesRepo: seriesRepo, taskRepo: taskRepo, clk: clk, logger: logger}
}

// Materialize creates missing occurrences within [windowStart, windowEnd)
// and returns how many tasks it created.
//
// Open occurrences whose slot has already passed are rolled forward: the
// old task is marked missed and the next occurrence takes its place.
func (m *Materializer) Materialize(ctx context.Context, userID uuid.UUID, windowStart, windowEnd time.Time) (int, error) {
	series, err := m.seriesRepo.ListActive(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list series: %w", err)
	}

	open, err := m.taskRepo.FindOpen(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load open tasks: %w", err)
	}

	now := m.clk.Now()
	openSeries := make(map[uuid.UUID]bool)
	for _, t := range open {
		sid := t.RecurrenceSeriesID()
		if sid == nil {
			continue
		}
		if m.occurrencePassed(t, windowStart) {
			if err := t.MarkMissed(now); err != nil {
				continue
			}
			if err := m.taskRepo.Save(ctx, t); err != nil {
				m.logger.Warn("failed to roll occurrence forward",
					slog.String("task_id", t.ID().String()),
					slog.String("error", err.Error()))
			}
			continue
		}
		openSeries[*sid] = true
	}

	startDay := domain.DateOf(windowStart.UTC())
	endDay := domain.DateOf(windowEnd.UTC())

	created := 0
	for _, s := range series {
		if openSeries[s.ID()] {
			continue
		}

		day, ok := m.nextOccurrenceDay(s.Preset(), startDay, endDay)
		if !ok {
			continue
		}

		task, err := m.buildOccurrence(s, day)
		if err != nil {
			m.logger.Warn("failed to build occurrence",
				slog.String("series_id", s.ID().String()),
				slog.String("error", err.Error()))
			continue
		}
		if err := m.taskRepo.Save(ctx, task); err != nil {
			if errors.Is(err, plannerdomain.ErrDuplicateOccurrence) {
				continue
			}
			return created, fmt.Errorf("failed to save occurrence: %w", err)
		}
		created++
	}
	return created, nil
}

// occurrencePassed reports whether an open occurrence's slot is entirely
// before the window start.
func (m *Materializer) occurrencePassed(t *plannerdomain.Task, windowStart time.Time) bool {
	if w := t.FlexibilityWindow(); w != nil {
		return w.End.Before(windowStart)
	}
	if occ := t.RecurrenceOccurrenceStart(); occ != nil {
		return domain.DateOf(occ.UTC()).Before(domain.DateOf(windowStart.UTC()))
	}
	return false
}

// nextOccurrenceDay picks the first day in [startDay, endDay) the preset
// fires on. "N times per week" presets spread their N days evenly over
// each ISO week and take the earliest.
func (m *Materializer) nextOccurrenceDay(p domain.Preset, startDay, endDay domain.Date) (domain.Date, bool) {
	if p.Frequency == domain.FrequencyWeekly && p.CountPerPeriod > 0 {
		return m.nextCountedDay(p, startDay, endDay)
	}
	for day := startDay; day.Before(endDay); day = day.AddDays(1) {
		if p.OccursOn(day) {
			return day, true
		}
	}
	return domain.Date{}, false
}

func (m *Materializer) nextCountedDay(p domain.Preset, startDay, endDay domain.Date) (domain.Date, bool) {
	anchor := startDay
	if p.StartDate != nil {
		anchor = *p.StartDate
	}

	type isoWeek struct{ year, week int }
	weekDays := make(map[isoWeek][]domain.Date)
	var weekOrder []isoWeek
	for day := startDay; day.Before(endDay); day = day.AddDays(1) {
		if p.StartDate != nil && day.Before(*p.StartDate) {
			continue
		}
		if p.UntilDate != nil && day.After(*p.UntilDate) {
			continue
		}
		weekDelta := day.DaysSince(anchor) / 7
		if weekDelta < 0 || weekDelta%p.Interval != 0 {
			continue
		}
		y, w := day.Time().ISOWeek()
		key := isoWeek{y, w}
		if _, seen := weekDays[key]; !seen {
			weekOrder = append(weekOrder, key)
		}
		weekDays[key] = append(weekDays[key], day)
	}

	for _, key := range weekOrder {
		chosen := chooseDaysInWeek(weekDays[key], p.CountPerPeriod)
		if len(chosen) > 0 {
			return chosen[0], true
		}
	}
	return domain.Date{}, false
}

// chooseDaysInWeek picks n days from a sorted week, spread by evenly
// spaced indices. Index collisions scan forward, then backward.
func chooseDaysInWeek(days []domain.Date, n int) []domain.Date {
	if n <= 0 {
		return nil
	}
	if len(days) <= n {
		return days
	}

	step := 0.0
	if n > 1 {
		step = float64(len(days)-1) / float64(n-1)
	}
	used := make(map[domain.Date]bool)
	picks := make([]domain.Date, 0, n)
	for i := 0; i < n; i++ {
		idx := 0
		if n > 1 {
			idx = int(float64(i)*step + 0.5)
		}
		if idx > len(days)-1 {
			idx = len(days) - 1
		}
		d := days[idx]
		if used[d] {
			j := idx
			for j < len(days) && used[days[j]] {
				j++
			}
			if j >= len(days) {
				j = idx
				for j >= 0 && used[days[j]] {
					j--
				}
			}
			if j >= 0 && j < len(days) {
				d = days[j]
			}
		}
		used[d] = true
		picks = append(picks, d)
	}
	for i := 1; i < len(picks); i++ {
		for j := i; j > 0 && picks[j].Before(picks[j-1]); j-- {
			picks[j], picks[j-1] = picks[j-1], picks[j]
		}
	}
	return picks
}

func (m *Materializer) buildOccurrence(s *domain.TaskSeries, day domain.Date) (*plannerdomain.Task, error) {
	task, err := plannerdomain.NewTask(s.UserID(), s.TitleTemplate())
	if err != nil {
		return nil, err
	}

	sourceID := s.ID().String()
	task.SetSource(plannerdomain.SourceRecurrence, &sourceID)
	if notes := s.NotesTemplate(); notes != nil {
		if err := task.SetNotes(notes); err != nil {
			return nil, err
		}
	}
	if err := task.SetCategory(plannerdomain.ParseCategory(s.CategoryDefault())); err != nil {
		return nil, err
	}
	if err := task.SetEstimatedDuration(s.DurationDefault()); err != nil {
		return nil, err
	}
	task.SetAIExcluded(s.AIExcluded())

	if w := s.Preset().TimeOfDayWindow; w != nil {
		start, end := w.Bounds(day)
		window, err := plannerdomain.NewFlexibilityWindow(start, end)
		if err != nil {
			return nil, err
		}
		task.SetFlexibilityWindow(&window)
	}

	task.LinkRecurrence(s.ID(), day.Time())
	return task, nil
}
