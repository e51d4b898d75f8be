package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qnz18/qzwhatnext/internal/shared/domain"
)

var (
	ErrEmptyBlockTitle   = errors.New("time block title cannot be empty")
	ErrMissingTimeStart  = errors.New("time block preset requires a start time")
	ErrMissingByWeekday  = errors.New("weekly time block preset requires weekdays")
)

// TimeBlockState describes how far a recurring time block has propagated.
type TimeBlockState string

const (
	TimeBlockPersisted          TimeBlockState = "persisted"
	TimeBlockPersistedWithEvent TimeBlockState = "persisted_with_event"
	TimeBlockDeleted            TimeBlockState = "deleted"
)

// TimeBlock is a recurring calendar commitment (e.g. "kids practice tues
// and thurs 2:30pm"). It is written through to the calendar as a single
// recurring event and its occurrences act as reservations for the planner.
type TimeBlock struct {
	shareddomain.BaseEntity

	userID          uuid.UUID
	title           string
	preset          Preset
	calendarEventID *string
	deletedAt       *time.Time
}

// NewTimeBlock validates that the preset is usable as a time block:
// a start time is mandatory, weekly blocks need explicit weekdays.
func NewTimeBlock(userID uuid.UUID, title string, preset Preset) (*TimeBlock, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyBlockTitle
	}
	if err := preset.Validate(); err != nil {
		return nil, err
	}
	if preset.TimeStart == nil {
		return nil, ErrMissingTimeStart
	}
	if preset.Frequency == FrequencyWeekly && len(preset.ByWeekday) == 0 {
		return nil, ErrMissingByWeekday
	}
	return &TimeBlock{
		BaseEntity: shareddomain.NewBaseEntity(),
		userID:     userID,
		title:      title,
		preset:     preset,
	}, nil
}

// RehydrateTimeBlockParams carries persisted state back into the entity.
type RehydrateTimeBlockParams struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Title           string
	Preset          Preset
	CalendarEventID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

func RehydrateTimeBlock(p RehydrateTimeBlockParams) *TimeBlock {
	return &TimeBlock{
		BaseEntity:      shareddomain.RehydrateBaseEntity(p.ID, p.CreatedAt, p.UpdatedAt),
		userID:          p.UserID,
		title:           p.Title,
		preset:          p.Preset,
		calendarEventID: p.CalendarEventID,
		deletedAt:       p.DeletedAt,
	}
}

func (b *TimeBlock) UserID() uuid.UUID        { return b.userID }
func (b *TimeBlock) Title() string            { return b.title }
func (b *TimeBlock) Preset() Preset           { return b.preset }
func (b *TimeBlock) CalendarEventID() *string { return b.calendarEventID }
func (b *TimeBlock) DeletedAt() *time.Time    { return b.deletedAt }
func (b *TimeBlock) IsDeleted() bool          { return b.deletedAt != nil }

// State derives the lifecycle position from persisted facts.
func (b *TimeBlock) State() TimeBlockState {
	switch {
	case b.deletedAt != nil:
		return TimeBlockDeleted
	case b.calendarEventID != nil:
		return TimeBlockPersistedWithEvent
	default:
		return TimeBlockPersisted
	}
}

// SetTitle renames the block.
func (b *TimeBlock) SetTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyBlockTitle
	}
	b.title = title
	b.Touch()
	return nil
}

// SetPreset replaces the recurrence, under the same rules as NewTimeBlock.
func (b *TimeBlock) SetPreset(preset Preset) error {
	if err := preset.Validate(); err != nil {
		return err
	}
	if preset.TimeStart == nil {
		return ErrMissingTimeStart
	}
	if preset.Frequency == FrequencyWeekly && len(preset.ByWeekday) == 0 {
		return ErrMissingByWeekday
	}
	b.preset = preset
	b.Touch()
	return nil
}

// LinkCalendarEvent records the recurring event backing this block.
func (b *TimeBlock) LinkCalendarEvent(eventID string) {
	b.calendarEventID = &eventID
	b.Touch()
}

// UnlinkCalendarEvent drops the event reference, e.g. after a revoked
// connection or a deleted event.
func (b *TimeBlock) UnlinkCalendarEvent() {
	b.calendarEventID = nil
	b.Touch()
}

func (b *TimeBlock) SoftDelete(now time.Time) {
	if b.deletedAt != nil {
		return
	}
	at := now.UTC()
	b.deletedAt = &at
	b.TouchAt(now)
}
