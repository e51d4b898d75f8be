package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	plannerservices "github.com/qnz18/qzwhatnext/internal/planner/application/services"
)

// EventReservationSource feeds the scheduler the intervals occupied by
// events the system does not manage, including recurring time blocks.
type EventReservationSource struct {
	gateway Gateway
}

func NewEventReservationSource(gateway Gateway) *EventReservationSource {
	return &EventReservationSource{gateway: gateway}
}

func (s *EventReservationSource) ReservedIntervals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]plannerservices.Interval, error) {
	events, err := s.gateway.ListEvents(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	var out []plannerservices.Interval
	for _, ev := range events {
		if ev.Status == EventStatusCancelled || ev.IsManaged() {
			continue
		}
		out = append(out, plannerservices.Interval{Start: ev.Start, End: ev.End})
	}
	return out, nil
}

// CalendarTimezoneSource resolves the user's scheduling timezone from the
// calendar's own setting.
type CalendarTimezoneSource struct {
	gateway Gateway
}

func NewCalendarTimezoneSource(gateway Gateway) *CalendarTimezoneSource {
	return &CalendarTimezoneSource{gateway: gateway}
}

func (s *CalendarTimezoneSource) Timezone(ctx context.Context, userID uuid.UUID) (*time.Location, error) {
	tz, err := s.gateway.Timezone(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}
