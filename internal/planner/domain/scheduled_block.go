package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qnz18/qzwhatnext/internal/shared/domain"
)

var (
	ErrInvalidInterval = errors.New("block end must be after start")
	ErrBlockLocked     = errors.New("block is locked")
)

// BlockEntityType says what a block holds time for.
type BlockEntityType string

const (
	BlockEntityTask       BlockEntityType = "task"
	BlockEntityTransition BlockEntityType = "transition"
)

// ScheduledBy records who placed the block.
type ScheduledBy string

const (
	ScheduledBySystem ScheduledBy = "system"
	ScheduledByUser   ScheduledBy = "user"
)

// blockNamespace seeds deterministic block IDs so repeated rebuilds over
// identical inputs produce identical identity.
var blockNamespace = uuid.MustParse("9f2c1f0e-4b7a-4e44-9a64-d10f5cfe6a21")

// DeterministicBlockID derives a stable block ID from the task and the
// block's position within that task's run.
func DeterministicBlockID(taskID uuid.UUID, occurrenceIndex int) uuid.UUID {
	return uuid.NewSHA1(blockNamespace, []byte(fmt.Sprintf("%s/%d", taskID, occurrenceIndex)))
}

// ScheduledBlock is a half-open interval [start, end) occupied on the
// user's timeline.
type ScheduledBlock struct {
	shareddomain.BaseEntity
	userID      uuid.UUID
	entityType  BlockEntityType
	entityID    uuid.UUID
	startTime   time.Time
	endTime     time.Time
	scheduledBy ScheduledBy
	locked      bool

	calendarEventID        *string
	calendarEventEtag      *string
	calendarEventUpdatedAt *time.Time
}

// NewScheduledBlock creates a block with a caller-chosen ID; the scheduler
// passes DeterministicBlockID output here.
func NewScheduledBlock(id, userID uuid.UUID, entityType BlockEntityType, entityID uuid.UUID, start, end time.Time, scheduledBy ScheduledBy) (*ScheduledBlock, error) {
	if !end.After(start) {
		return nil, ErrInvalidInterval
	}
	return &ScheduledBlock{
		BaseEntity:  shareddomain.NewBaseEntityWithID(id),
		userID:      userID,
		entityType:  entityType,
		entityID:    entityID,
		startTime:   start.UTC(),
		endTime:     end.UTC(),
		scheduledBy: scheduledBy,
	}, nil
}

// RehydrateBlockParams carries the persisted columns of a block row.
type RehydrateBlockParams struct {
	ID                     uuid.UUID
	UserID                 uuid.UUID
	EntityType             BlockEntityType
	EntityID               uuid.UUID
	StartTime              time.Time
	EndTime                time.Time
	ScheduledBy            ScheduledBy
	Locked                 bool
	CalendarEventID        *string
	CalendarEventEtag      *string
	CalendarEventUpdatedAt *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// RehydrateScheduledBlock recreates a block from persisted state.
func RehydrateScheduledBlock(p RehydrateBlockParams) *ScheduledBlock {
	return &ScheduledBlock{
		BaseEntity:             shareddomain.RehydrateBaseEntity(p.ID, p.CreatedAt, p.UpdatedAt),
		userID:                 p.UserID,
		entityType:             p.EntityType,
		entityID:               p.EntityID,
		startTime:              p.StartTime,
		endTime:                p.EndTime,
		scheduledBy:            p.ScheduledBy,
		locked:                 p.Locked,
		calendarEventID:        p.CalendarEventID,
		calendarEventEtag:      p.CalendarEventEtag,
		calendarEventUpdatedAt: p.CalendarEventUpdatedAt,
	}
}

// Getters

func (b *ScheduledBlock) UserID() uuid.UUID                  { return b.userID }
func (b *ScheduledBlock) EntityType() BlockEntityType        { return b.entityType }
func (b *ScheduledBlock) EntityID() uuid.UUID                { return b.entityID }
func (b *ScheduledBlock) StartTime() time.Time               { return b.startTime }
func (b *ScheduledBlock) EndTime() time.Time                 { return b.endTime }
func (b *ScheduledBlock) ScheduledBy() ScheduledBy           { return b.scheduledBy }
func (b *ScheduledBlock) Locked() bool                       { return b.locked }
func (b *ScheduledBlock) CalendarEventID() *string           { return b.calendarEventID }
func (b *ScheduledBlock) CalendarEventEtag() *string         { return b.calendarEventEtag }
func (b *ScheduledBlock) CalendarEventUpdatedAt() *time.Time { return b.calendarEventUpdatedAt }

// Duration returns the interval length.
func (b *ScheduledBlock) Duration() time.Duration { return b.endTime.Sub(b.startTime) }

// Overlaps reports whether two half-open intervals intersect.
func (b *ScheduledBlock) Overlaps(start, end time.Time) bool {
	return b.startTime.Before(end) && start.Before(b.endTime)
}

// Lock freezes the block's times against regeneration.
func (b *ScheduledBlock) Lock() {
	if b.locked {
		return
	}
	b.locked = true
	b.Touch()
}

// Unlock releases the freeze.
func (b *ScheduledBlock) Unlock() {
	if !b.locked {
		return
	}
	b.locked = false
	b.Touch()
}

// Reschedule moves an unlocked block.
func (b *ScheduledBlock) Reschedule(start, end time.Time) error {
	if b.locked {
		return ErrBlockLocked
	}
	if !end.After(start) {
		return ErrInvalidInterval
	}
	b.startTime = start.UTC()
	b.endTime = end.UTC()
	b.Touch()
	return nil
}

// ImportTimes overwrites the interval from a calendar-side edit and locks
// the block so the edit survives future rebuilds.
func (b *ScheduledBlock) ImportTimes(start, end time.Time) error {
	if !end.After(start) {
		return ErrInvalidInterval
	}
	b.startTime = start.UTC()
	b.endTime = end.UTC()
	b.locked = true
	b.scheduledBy = ScheduledByUser
	b.Touch()
	return nil
}

// SetCalendarMetadata records the linked event's identity and version.
func (b *ScheduledBlock) SetCalendarMetadata(eventID, etag string, updatedAt *time.Time) {
	b.calendarEventID = &eventID
	b.calendarEventEtag = &etag
	b.calendarEventUpdatedAt = updatedAt
	b.Touch()
}

// ClearCalendarMetadata detaches the block from its calendar event.
func (b *ScheduledBlock) ClearCalendarMetadata() {
	b.calendarEventID = nil
	b.calendarEventEtag = nil
	b.calendarEventUpdatedAt = nil
	b.Touch()
}
