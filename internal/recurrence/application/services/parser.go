// Package services implements the recurrence engine: the deterministic
// capture-instruction parser, the habit materializer, and RRULE export.
package services

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/qnz18/qzwhatnext/internal/recurrence/domain"
)

var (
	ErrEmptyInstruction = errors.New("capture instruction is empty")
	ErrInvalidTime      = errors.New("invalid time of day")
)

// CaptureKind distinguishes what a parsed instruction describes.
type CaptureKind string

const (
	KindTaskSeries CaptureKind = "task_series"
	KindTimeBlock  CaptureKind = "time_block"
)

// ParsedCapture is the structured result of parsing a capture instruction.
type ParsedCapture struct {
	Kind        CaptureKind
	Title       string
	AIExcluded  bool
	Preset      domain.Preset
	DurationMin int // 0 when the instruction names no duration
}

// Time parsing context. A bare hour like "2" after a weekday almost
// always means afternoon, so hours 1..7 get bumped by 12 there. Range
// sides ("11pm to 7am") are taken literally.
type timeContext int

const (
	ctxRange timeContext = iota
	ctxWeekdayTime
)

var weekdayAliases = []struct {
	re  *regexp.Regexp
	day domain.Weekday
}{
	{regexp.MustCompile(`\b(?:mon|monday)\b`), domain.Monday},
	{regexp.MustCompile(`\b(?:tue|tues|tuesday)\b`), domain.Tuesday},
	{regexp.MustCompile(`\b(?:wed|weds|wednesday)\b`), domain.Wednesday},
	{regexp.MustCompile(`\b(?:thu|thur|thurs|thursday)\b`), domain.Thursday},
	{regexp.MustCompile(`\b(?:fri|friday)\b`), domain.Friday},
	{regexp.MustCompile(`\b(?:sat|saturday)\b`), domain.Saturday},
	{regexp.MustCompile(`\b(?:sun|sunday)\b`), domain.Sunday},
}

var (
	timeRe     = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	rangeRe    = regexp.MustCompile(`^(.+?)\s*(?:to|–|—|-)\s*(.+)$`)
	atRe       = regexp.MustCompile(`\bat\s+(.+)$`)
	durationRe = regexp.MustCompile(`\bfor\s+(\d+(?:\.\d+)?)\s*(min|mins|minute|minutes|hr|hrs|hour|hours)\b`)
	everyNRe   = regexp.MustCompile(`\bevery\s+(\d+)\s+(day|week|month|year)s?\b`)
	dailyRe    = regexp.MustCompile(`\b(?:every\s+day|daily)\b`)
	weeklyRe   = regexp.MustCompile(`\b(?:every\s+week|weekly|per\s+week)\b`)
	monthlyRe  = regexp.MustCompile(`\b(?:every\s+month|monthly)\b`)
	yearlyRe   = regexp.MustCompile(`\b(?:every\s+year|yearly|per\s+year)\b`)
	countRe    = regexp.MustCompile(`\b(\d+)\s*(?:x|times)\s*(?:per\s+)?week\b`)
)

var windowPhrases = []struct {
	re     *regexp.Regexp
	window domain.Window
}{
	{regexp.MustCompile(`\bwake[\s-]?up\b`), domain.WindowWakeUp},
	{regexp.MustCompile(`\bmorning\b`), domain.WindowMorning},
	{regexp.MustCompile(`\bafternoon\b`), domain.WindowAfternoon},
	{regexp.MustCompile(`\bevening\b`), domain.WindowEvening},
	{regexp.MustCompile(`\bnight\b`), domain.WindowNight},
}

// ParseCaptureInstruction turns a short natural-language instruction into
// a recurrence preset, deterministically. Same input, same output; no
// model calls. AI exclusion is signaled by a leading dot.
func ParseCaptureInstruction(raw string, now time.Time) (*ParsedCapture, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrEmptyInstruction
	}

	aiExcluded := strings.HasPrefix(text, ".")
	if aiExcluded {
		text = strings.TrimSpace(strings.TrimLeft(text, "."))
		if text == "" {
			return nil, ErrEmptyInstruction
		}
	}

	title := strings.Join(strings.Fields(text), " ")
	normalized := strings.ToLower(title)

	weekdays := extractWeekdays(normalized)
	timeStart, timeEnd := extractTimeRange(normalized)
	durationMin := extractDuration(normalized)
	window := extractWindow(normalized)

	var weekdayTime *domain.TimeOfDay
	if len(weekdays) > 0 && timeStart == nil {
		wt, err := extractWeekdayTime(normalized)
		if err != nil {
			return nil, err
		}
		weekdayTime = wt
	}

	isTimeBlock := timeStart != nil || (len(weekdays) > 0 && weekdayTime != nil)

	interval := 1
	var freq domain.Frequency
	switch {
	case everyNRe.MatchString(normalized):
		m := everyNRe.FindStringSubmatch(normalized)
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
			interval = n
		}
		switch m[2] {
		case "day":
			freq = domain.FrequencyDaily
		case "week":
			freq = domain.FrequencyWeekly
		case "month":
			freq = domain.FrequencyMonthly
		case "year":
			freq = domain.FrequencyYearly
		}
	case dailyRe.MatchString(normalized):
		freq = domain.FrequencyDaily
	case weeklyRe.MatchString(normalized):
		freq = domain.FrequencyWeekly
	case monthlyRe.MatchString(normalized):
		freq = domain.FrequencyMonthly
	case yearlyRe.MatchString(normalized):
		freq = domain.FrequencyYearly
	case len(weekdays) > 0:
		freq = domain.FrequencyWeekly
	default:
		freq = domain.FrequencyDaily
	}

	countPerPeriod := 0
	if m := countRe.FindStringSubmatch(normalized); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
			countPerPeriod = n
			freq = domain.FrequencyWeekly
		}
	}

	startDate := domain.DateOf(now.UTC())
	preset := domain.Preset{
		Frequency:      freq,
		Interval:       interval,
		CountPerPeriod: countPerPeriod,
		StartDate:      &startDate,
	}
	if freq == domain.FrequencyWeekly && len(weekdays) > 0 && countPerPeriod == 0 {
		preset.ByWeekday = weekdays
	}
	if !isTimeBlock && window != nil {
		preset.TimeOfDayWindow = window
	}

	if isTimeBlock {
		var start domain.TimeOfDay
		switch {
		case timeStart != nil:
			start = *timeStart
		case weekdayTime != nil:
			start = *weekdayTime
		default:
			return nil, domain.ErrMissingTimeStart
		}
		end := timeEnd
		if end == nil {
			e := endAfter(start, durationMin)
			end = &e
		}
		preset.TimeStart = &start
		preset.TimeEnd = end

		if freq == domain.FrequencyWeekly {
			if len(weekdays) == 0 {
				return nil, domain.ErrMissingByWeekday
			}
			preset.ByWeekday = weekdays
		}
	}

	if err := preset.Validate(); err != nil {
		return nil, err
	}

	kind := KindTaskSeries
	if isTimeBlock {
		kind = KindTimeBlock
	}
	return &ParsedCapture{
		Kind:        kind,
		Title:       title,
		AIExcluded:  aiExcluded,
		Preset:      preset,
		DurationMin: durationMin,
	}, nil
}

// extractWeekdays returns mentioned weekdays in Monday-first order.
func extractWeekdays(text string) []domain.Weekday {
	var out []domain.Weekday
	for _, alias := range weekdayAliases {
		if alias.re.MatchString(text) {
			out = append(out, alias.day)
		}
	}
	return out
}

// extractTimeRange splits "11pm to 7am" style ranges. Both sides must
// parse as times; otherwise there is no range.
func extractTimeRange(text string) (*domain.TimeOfDay, *domain.TimeOfDay) {
	m := rangeRe.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}
	start, ok, err := firstTimeIn(m[1], ctxRange)
	if err != nil || !ok {
		return nil, nil
	}
	end, ok, err := firstTimeIn(m[2], ctxRange)
	if err != nil || !ok {
		return nil, nil
	}
	return &start, &end
}

// extractWeekdayTime finds the clock time attached to a weekday mention:
// an explicit "at ..." clause wins, otherwise the last time-like token.
func extractWeekdayTime(text string) (*domain.TimeOfDay, error) {
	if m := atRe.FindStringSubmatch(text); m != nil {
		tod, ok, err := firstTimeIn(m[1], ctxWeekdayTime)
		if err != nil {
			return nil, err
		}
		if ok {
			return &tod, nil
		}
	}
	matches := timeRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}
	tod, err := timeFromMatch(matches[len(matches)-1], ctxWeekdayTime)
	if err != nil {
		return nil, err
	}
	return &tod, nil
}

func firstTimeIn(token string, ctx timeContext) (domain.TimeOfDay, bool, error) {
	m := timeRe.FindStringSubmatch(token)
	if m == nil {
		return domain.TimeOfDay{}, false, nil
	}
	tod, err := timeFromMatch(m, ctx)
	if err != nil {
		return domain.TimeOfDay{}, false, err
	}
	return tod, true, nil
}

func timeFromMatch(m []string, ctx timeContext) (domain.TimeOfDay, error) {
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "am", "pm":
		if hour == 12 {
			hour = 0
		}
		if m[3] == "pm" {
			hour += 12
		}
	default:
		if ctx == ctxWeekdayTime && hour >= 1 && hour <= 7 {
			hour += 12
		}
	}
	if hour > 23 || minute > 59 {
		return domain.TimeOfDay{}, ErrInvalidTime
	}
	return domain.TimeOfDay{Hour: hour, Minute: minute}, nil
}

func extractDuration(text string) int {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if strings.HasPrefix(m[2], "h") {
		value *= 60
	}
	minutes := int(value + 0.5)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func extractWindow(text string) *domain.Window {
	for _, phrase := range windowPhrases {
		if phrase.re.MatchString(text) {
			w := phrase.window
			return &w
		}
	}
	return nil
}

// endAfter computes a block end time: start plus the stated duration, or
// one hour when none was given. Wraps past midnight.
func endAfter(start domain.TimeOfDay, durationMin int) domain.TimeOfDay {
	if durationMin <= 0 {
		return domain.TimeOfDay{Hour: (start.Hour + 1) % 24, Minute: start.Minute}
	}
	total := (start.Hour*60 + start.Minute + durationMin) % (24 * 60)
	return domain.TimeOfDay{Hour: total / 60, Minute: total % 60}
}
