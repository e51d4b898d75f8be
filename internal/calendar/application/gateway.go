// Package application implements calendar synchronization: the gateway
// abstraction over the provider API and the block/event reconciler.
package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEventGone marks a 404/410: the event no longer exists.
	ErrEventGone = errors.New("calendar event gone")
	// ErrTransient marks a retryable provider failure (5xx, timeout).
	ErrTransient = errors.New("calendar api transient failure")
)

// Private extended-property keys stamped on events we write. Managed
// events (one per scheduled block) carry all three; recurring time-block
// events carry only the time-block key, because they are user-reserved
// time the system must never move.
const (
	MetaTaskID      = "qzwhatnext_task_id"
	MetaBlockID     = "qzwhatnext_block_id"
	MetaManaged     = "qzwhatnext_managed"
	MetaTimeBlockID = "qzwhatnext_time_block_id"

	ManagedValue = "1"

	EventStatusCancelled = "cancelled"
)

// Event is a provider calendar event, trimmed to the fields the
// reconciler needs.
type Event struct {
	ID         string
	Etag       string
	Status     string
	Summary    string
	Start      time.Time
	End        time.Time
	Updated    *time.Time
	Recurrence []string
	Private    map[string]string
}

// IsManaged reports whether this event is one the system created for a
// scheduled block.
func (e Event) IsManaged() bool {
	return e.Private[MetaManaged] == ManagedValue
}

// BlockID returns the scheduled block this event belongs to, when managed.
func (e Event) BlockID() (uuid.UUID, bool) {
	raw, ok := e.Private[MetaBlockID]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// EventDraft is the write payload for insert and patch.
type EventDraft struct {
	Summary    string
	Start      time.Time
	End        time.Time
	Recurrence []string
	Private    map[string]string
}

// BusyInterval is a half-open busy range from the provider.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Gateway is the provider calendar API surface. All operations are
// user-scoped through the stored OAuth grant.
type Gateway interface {
	GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (*Event, error)
	ListEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]Event, error)
	InsertEvent(ctx context.Context, userID uuid.UUID, draft EventDraft) (*Event, error)
	PatchEvent(ctx context.Context, userID uuid.UUID, eventID string, draft EventDraft) (*Event, error)
	DeleteEvent(ctx context.Context, userID uuid.UUID, eventID string) error
	FreeBusy(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]BusyInterval, error)
	Timezone(ctx context.Context, userID uuid.UUID) (string, error)
}
