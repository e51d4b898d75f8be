package application

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plannerdomain "github.com/qnz18/qzwhatnext/internal/planner/domain"
	plannerpersistence "github.com/qnz18/qzwhatnext/internal/planner/infrastructure/persistence"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/database/sqlite"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/migrations"
)

// fakeGateway is an in-memory calendar with version tracking.
type fakeGateway struct {
	events  map[string]*Event
	seq     int
	inserts int
	patches int
	deletes int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{events: map[string]*Event{}}
}

func (g *fakeGateway) bump() (string, *time.Time) {
	g.seq++
	updated := time.Date(2026, 3, 2, 0, 0, 0, g.seq, time.UTC)
	return fmt.Sprintf("etag-%d", g.seq), &updated
}

func (g *fakeGateway) GetEvent(_ context.Context, _ uuid.UUID, eventID string) (*Event, error) {
	ev, ok := g.events[eventID]
	if !ok {
		return nil, ErrEventGone
	}
	copied := *ev
	return &copied, nil
}

func (g *fakeGateway) ListEvents(_ context.Context, _ uuid.UUID, from, to time.Time) ([]Event, error) {
	var out []Event
	for _, ev := range g.events {
		if ev.Start.Before(to) && from.Before(ev.End) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (g *fakeGateway) InsertEvent(_ context.Context, _ uuid.UUID, draft EventDraft) (*Event, error) {
	g.inserts++
	etag, updated := g.bump()
	ev := &Event{
		ID:      fmt.Sprintf("event-%d", g.seq),
		Etag:    etag,
		Status:  "confirmed",
		Summary: draft.Summary,
		Start:   draft.Start,
		End:     draft.End,
		Updated: updated,
		Private: draft.Private,
	}
	g.events[ev.ID] = ev
	return ev, nil
}

func (g *fakeGateway) PatchEvent(_ context.Context, _ uuid.UUID, eventID string, draft EventDraft) (*Event, error) {
	ev, ok := g.events[eventID]
	if !ok {
		return nil, ErrEventGone
	}
	g.patches++
	ev.Summary = draft.Summary
	ev.Start = draft.Start
	ev.End = draft.End
	ev.Etag, ev.Updated = g.bump()
	copied := *ev
	return &copied, nil
}

func (g *fakeGateway) DeleteEvent(_ context.Context, _ uuid.UUID, eventID string) error {
	if _, ok := g.events[eventID]; !ok {
		return ErrEventGone
	}
	g.deletes++
	delete(g.events, eventID)
	return nil
}

func (g *fakeGateway) FreeBusy(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]BusyInterval, error) {
	return nil, nil
}

func (g *fakeGateway) Timezone(context.Context, uuid.UUID) (string, error) {
	return "UTC", nil
}

// externalMove simulates the user dragging an event on the calendar.
func (g *fakeGateway) externalMove(eventID string, start, end time.Time) {
	ev := g.events[eventID]
	ev.Start = start
	ev.End = end
	ev.Etag, ev.Updated = g.bump()
}

type reconcilerFixture struct {
	gateway    *fakeGateway
	reconciler *Reconciler
	taskRepo   plannerdomain.TaskRepository
	blockRepo  plannerdomain.ScheduledBlockRepository
	userID     uuid.UUID
	now        time.Time
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLite(ctx, db))

	userID := uuid.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	insertUser(t, db, userID, now)

	gateway := newFakeGateway()
	taskRepo := plannerpersistence.NewSQLiteTaskRepository(db)
	blockRepo := plannerpersistence.NewSQLiteBlockRepository(db)
	reconciler := NewReconciler(gateway, taskRepo, blockRepo,
		nil, nil, clock.FixedAt(now), 0, nil, nil)

	return &reconcilerFixture{
		gateway:    gateway,
		reconciler: reconciler,
		taskRepo:   taskRepo,
		blockRepo:  blockRepo,
		userID:     userID,
		now:        now,
	}
}

func insertUser(t *testing.T, db *sql.DB, userID uuid.UUID, now time.Time) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO users (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID.String(), userID.String()+"@example.com",
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	require.NoError(t, err)
}

func (f *reconcilerFixture) addTask(t *testing.T, title string) *plannerdomain.Task {
	t.Helper()
	task, err := plannerdomain.NewTask(f.userID, title)
	require.NoError(t, err)
	require.NoError(t, f.taskRepo.Save(context.Background(), task))
	return task
}

func TestReconcilerCreatesEventsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	f.addTask(t, "write report")
	f.addTask(t, "review budget")

	result, err := f.reconciler.Reconcile(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.EventsCreated)
	assert.Len(t, result.EventIDs, 2)
	assert.Zero(t, result.EventsPatched)
	assert.Zero(t, result.EventsDeleted)

	for _, ev := range f.gateway.events {
		assert.Equal(t, ManagedValue, ev.Private[MetaManaged])
		assert.NotEmpty(t, ev.Private[MetaTaskID])
		assert.NotEmpty(t, ev.Private[MetaBlockID])
	}

	second, err := f.reconciler.Reconcile(ctx, f.userID)
	require.NoError(t, err)
	assert.Zero(t, second.EventsCreated)
	assert.Zero(t, second.EventsPatched)
	assert.Zero(t, second.EventsDeleted)
	assert.Zero(t, second.BlocksImported)
	assert.Equal(t, 2, f.gateway.inserts)
	assert.Zero(t, f.gateway.patches)
}

func TestReconcilerImportsExternalMoveAsLockedBlock(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	task := f.addTask(t, "deep work")

	_, err := f.reconciler.Reconcile(ctx, f.userID)
	require.NoError(t, err)

	blockID := plannerdomain.DeterministicBlockID(task.ID(), 0)
	block, err := f.blockRepo.FindByID(ctx, f.userID, blockID)
	require.NoError(t, err)
	require.NotNil(t, block.CalendarEventID())
	eventID := *block.CalendarEventID()

	movedStart := f.now.Add(5 * time.Hour)
	f.gateway.externalMove(eventID, movedStart, movedStart.Add(30*time.Minute))

	result, err := f.reconciler.Reconcile(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BlocksImported)
	assert.Zero(t, result.EventsPatched, "user edit must not be overwritten")

	block, err = f.blockRepo.FindByID(ctx, f.userID, blockID)
	require.NoError(t, err)
	assert.True(t, block.Locked())
	assert.Equal(t, movedStart, block.StartTime())
	assert.Equal(t, plannerdomain.ScheduledByUser, block.ScheduledBy())

	third, err := f.reconciler.Reconcile(ctx, f.userID)
	require.NoError(t, err)
	assert.Zero(t, third.EventsCreated)
	assert.Zero(t, third.EventsPatched)
	assert.Zero(t, third.BlocksImported)
}

func TestReconcilerRecreatesDeletedEvent(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	task := f.addTask(t, "deep work")

	_, err := f.reconciler.Reconcile(ctx, f.userID)
	require.NoError(t, err)

	blockID := plannerdomain.DeterministicBlockID(task.ID(), 0)
	block, err := f.blockRepo.FindByID(ctx, f.userID, blockID)
	require.NoError(t, err)
	firstEventID := *block.CalendarEventID()
	delete(f.gateway.events, firstEventID)

	result, err := f.reconciler.Reconcile(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsCreated)

	block, err = f.blockRepo.FindByID(ctx, f.userID, blockID)
	require.NoError(t, err)
	require.NotNil(t, block.CalendarEventID())
	assert.NotEqual(t, firstEventID, *block.CalendarEventID())
}

func TestReconcilerDeletesOrphanedManagedEvents(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	f.addTask(t, "only task")

	orphanStart := f.now.Add(48 * time.Hour)
	etag, updated := f.gateway.bump()
	f.gateway.events["orphan"] = &Event{
		ID:      "orphan",
		Etag:    etag,
		Status:  "confirmed",
		Summary: "stale block",
		Start:   orphanStart,
		End:     orphanStart.Add(30 * time.Minute),
		Updated: updated,
		Private: map[string]string{
			MetaTaskID:  uuid.NewString(),
			MetaBlockID: uuid.NewString(),
			MetaManaged: ManagedValue,
		},
	}

	result, err := f.reconciler.Reconcile(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsDeleted)
	assert.NotContains(t, f.gateway.events, "orphan")
}

func TestReconcilerAvoidsForeignEvents(t *testing.T) {
	ctx := context.Background()
	f := newReconcilerFixture(t)
	task := f.addTask(t, "morning work")

	busyEnd := f.now.Add(2 * time.Hour)
	etag, updated := f.gateway.bump()
	f.gateway.events["standup"] = &Event{
		ID:      "standup",
		Etag:    etag,
		Status:  "confirmed",
		Summary: "team standup",
		Start:   f.now,
		End:     busyEnd,
		Updated: updated,
	}

	_, err := f.reconciler.Reconcile(ctx, f.userID)
	require.NoError(t, err)

	block, err := f.blockRepo.FindByID(ctx, f.userID, plannerdomain.DeterministicBlockID(task.ID(), 0))
	require.NoError(t, err)
	assert.False(t, block.StartTime().Before(busyEnd), "block must not overlap the foreign event")
	assert.Contains(t, f.gateway.events, "standup", "foreign events are never touched")
}
