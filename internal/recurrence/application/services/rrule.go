package services

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/qnz18/qzwhatnext/internal/recurrence/domain"
)

var rruleFrequencies = map[domain.Frequency]rrule.Frequency{
	domain.FrequencyDaily:   rrule.DAILY,
	domain.FrequencyWeekly:  rrule.WEEKLY,
	domain.FrequencyMonthly: rrule.MONTHLY,
	domain.FrequencyYearly:  rrule.YEARLY,
}

var rruleWeekdays = map[domain.Weekday]rrule.Weekday{
	domain.Monday:    rrule.MO,
	domain.Tuesday:   rrule.TU,
	domain.Wednesday: rrule.WE,
	domain.Thursday:  rrule.TH,
	domain.Friday:    rrule.FR,
	domain.Saturday:  rrule.SA,
	domain.Sunday:    rrule.SU,
}

// ExportRRule renders a preset as an iCalendar RRULE string without the
// "RRULE:" prefix, suitable for a Google Calendar recurrence field.
// Export-only: presets stay the canonical representation, users never
// see or enter RRULE.
func ExportRRule(p domain.Preset) string {
	opt := rrule.ROption{Freq: rruleFrequencies[p.Frequency]}
	if p.Interval > 1 {
		opt.Interval = p.Interval
	}
	for _, d := range p.ByWeekday {
		opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
	}
	// UNTIL stays date-anchored at end of day UTC to avoid timezone drift.
	if p.UntilDate != nil {
		u := *p.UntilDate
		opt.Until = time.Date(u.Year, u.Month, u.Day, 23, 59, 59, 0, time.UTC)
	}
	return opt.RRuleString()
}
