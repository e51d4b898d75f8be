// Package domain holds the recurrence model: presets, recurring task
// series, and recurring time blocks. Presets are the canonical internal
// representation; RRULE strings are export-only.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInterval  = errors.New("interval must be at least 1")
	ErrInvalidFrequency = errors.New("invalid recurrence frequency")
	ErrUntilBeforeStart = errors.New("until date must not precede start date")
)

// Frequency is the unit a recurrence repeats on.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Weekday in lowercase two-letter form, matching the stored preset JSON.
type Weekday string

const (
	Monday    Weekday = "mo"
	Tuesday   Weekday = "tu"
	Wednesday Weekday = "we"
	Thursday  Weekday = "th"
	Friday    Weekday = "fr"
	Saturday  Weekday = "sa"
	Sunday    Weekday = "su"
)

// AllWeekdays is the canonical Monday-first ordering.
var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// WeekdayOf maps a calendar day onto the Monday-first enum.
func WeekdayOf(d Date) Weekday {
	idx := (int(d.Time().Weekday()) + 6) % 7
	return AllWeekdays[idx]
}

// Window names a time-of-day band in the user's calendar timezone.
type Window string

const (
	WindowWakeUp    Window = "wake_up"
	WindowMorning   Window = "morning"
	WindowAfternoon Window = "afternoon"
	WindowEvening   Window = "evening"
	WindowNight     Window = "night"
)

var windowBounds = map[Window][2]TimeOfDay{
	WindowWakeUp:    {{5, 0}, {6, 30}},
	WindowMorning:   {{6, 30}, {11, 0}},
	WindowAfternoon: {{11, 0}, {17, 0}},
	WindowEvening:   {{17, 0}, {21, 0}},
	WindowNight:     {{21, 0}, {2, 0}}, // spans midnight
}

// Bounds resolves the window to concrete datetimes on a given day.
// A window whose end is not after its start rolls the end into the next day.
func (w Window) Bounds(day Date) (time.Time, time.Time) {
	b, ok := windowBounds[w]
	if !ok {
		b = windowBounds[WindowMorning]
	}
	start := day.At(b[0])
	end := day.At(b[1])
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return start, end
}

// TimeOfDay is a wall-clock time without a date, serialized as "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time %02d:%02d", hour, minute)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	parsed, err := NewTimeOfDay(h, m)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Date is a calendar day without a time component, serialized as "2006-01-02".
// All date arithmetic treats days as UTC midnights.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// At combines the date with a wall-clock time, in UTC.
func (d Date) At(t TimeOfDay) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date  { return DateOf(d.Time().AddDate(0, 0, n)) }
func (d Date) Before(o Date) bool  { return d.Time().Before(o.Time()) }
func (d Date) After(o Date) bool   { return d.Time().After(o.Time()) }
func (d Date) Equal(o Date) bool   { return d == o }
func (d Date) DaysSince(o Date) int {
	return int(d.Time().Sub(o.Time()) / (24 * time.Hour))
}

func (d Date) String() string { return d.Time().Format("2006-01-02") }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = DateOf(t)
	return nil
}

// Preset is a simple recurrence definition. Times are interpreted in the
// user's calendar timezone for time blocks; for task series the optional
// window translates into a task flexibility window at materialization.
type Preset struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`

	ByWeekday      []Weekday `json:"by_weekday,omitempty"`
	CountPerPeriod int       `json:"count_per_period,omitempty"`

	// Time block bounds; may span midnight when end <= start.
	TimeStart *TimeOfDay `json:"time_start,omitempty"`
	TimeEnd   *TimeOfDay `json:"time_end,omitempty"`

	TimeOfDayWindow *Window `json:"time_of_day_window,omitempty"`

	StartDate *Date `json:"start_date,omitempty"`
	UntilDate *Date `json:"until_date,omitempty"`
}

// Validate normalizes and checks the preset. ByWeekday is deduplicated
// preserving order.
func (p *Preset) Validate() error {
	switch p.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		return ErrInvalidFrequency
	}
	if p.Interval < 1 {
		return ErrInvalidInterval
	}
	if len(p.ByWeekday) > 0 {
		seen := make(map[Weekday]bool, len(p.ByWeekday))
		out := p.ByWeekday[:0]
		for _, d := range p.ByWeekday {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
		p.ByWeekday = out
	}
	if p.UntilDate != nil && p.StartDate != nil && p.UntilDate.Before(*p.StartDate) {
		return ErrUntilBeforeStart
	}
	return nil
}

// OccursOn reports whether the preset generates an occurrence on the day.
// The anchor for interval arithmetic is StartDate when set, otherwise the
// day itself.
func (p Preset) OccursOn(day Date) bool {
	if p.StartDate != nil && day.Before(*p.StartDate) {
		return false
	}
	if p.UntilDate != nil && day.After(*p.UntilDate) {
		return false
	}

	anchor := day
	if p.StartDate != nil {
		anchor = *p.StartDate
	}

	switch p.Frequency {
	case FrequencyDaily:
		delta := day.DaysSince(anchor)
		return delta >= 0 && delta%p.Interval == 0

	case FrequencyWeekly:
		weekDelta := day.DaysSince(anchor) / 7
		if weekDelta < 0 || weekDelta%p.Interval != 0 {
			return false
		}
		if len(p.ByWeekday) == 0 {
			return true
		}
		wd := WeekdayOf(day)
		for _, d := range p.ByWeekday {
			if d == wd {
				return true
			}
		}
		return false

	case FrequencyMonthly:
		if day.Day != anchor.Day {
			return false
		}
		months := (day.Year-anchor.Year)*12 + int(day.Month) - int(anchor.Month)
		return months >= 0 && months%p.Interval == 0

	case FrequencyYearly:
		if day.Month != anchor.Month || day.Day != anchor.Day {
			return false
		}
		years := day.Year - anchor.Year
		return years >= 0 && years%p.Interval == 0
	}
	return false
}
