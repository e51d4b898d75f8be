package application

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	calendarapp "github.com/qnz18/qzwhatnext/internal/calendar/application"
	plannerdomain "github.com/qnz18/qzwhatnext/internal/planner/domain"
	plannerpersistence "github.com/qnz18/qzwhatnext/internal/planner/infrastructure/persistence"
	recurrenceservices "github.com/qnz18/qzwhatnext/internal/recurrence/application/services"
	recurrencedomain "github.com/qnz18/qzwhatnext/internal/recurrence/domain"
	recurrencepersistence "github.com/qnz18/qzwhatnext/internal/recurrence/infrastructure/persistence"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/database/sqlite"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/migrations"
)

// recordingGateway remembers every write so tests can inspect drafts.
type recordingGateway struct {
	seq     int
	inserts []calendarapp.EventDraft
	patches []calendarapp.EventDraft
	lastID  string
}

func (g *recordingGateway) GetEvent(context.Context, uuid.UUID, string) (*calendarapp.Event, error) {
	return nil, calendarapp.ErrEventGone
}

func (g *recordingGateway) ListEvents(context.Context, uuid.UUID, time.Time, time.Time) ([]calendarapp.Event, error) {
	return nil, nil
}

func (g *recordingGateway) InsertEvent(_ context.Context, _ uuid.UUID, draft calendarapp.EventDraft) (*calendarapp.Event, error) {
	g.seq++
	g.inserts = append(g.inserts, draft)
	g.lastID = fmt.Sprintf("evt-%d", g.seq)
	return &calendarapp.Event{ID: g.lastID, Start: draft.Start, End: draft.End, Summary: draft.Summary}, nil
}

func (g *recordingGateway) PatchEvent(_ context.Context, _ uuid.UUID, eventID string, draft calendarapp.EventDraft) (*calendarapp.Event, error) {
	g.patches = append(g.patches, draft)
	return &calendarapp.Event{ID: eventID, Start: draft.Start, End: draft.End, Summary: draft.Summary}, nil
}

func (g *recordingGateway) DeleteEvent(context.Context, uuid.UUID, string) error { return nil }

func (g *recordingGateway) FreeBusy(context.Context, uuid.UUID, time.Time, time.Time) ([]calendarapp.BusyInterval, error) {
	return nil, nil
}

func (g *recordingGateway) Timezone(context.Context, uuid.UUID) (string, error) { return "UTC", nil }

type captureFixture struct {
	orch      *Orchestrator
	gateway   *recordingGateway
	taskRepo  plannerdomain.TaskRepository
	blockRepo recurrencedomain.TimeBlockRepository
	userID    uuid.UUID
	now       time.Time
}

// Monday morning.
var captureNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newCaptureFixture(t *testing.T) *captureFixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLite(ctx, db))

	userID := uuid.New()
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID.String(), userID.String()+"@example.com",
		captureNow.Format(time.RFC3339Nano), captureNow.Format(time.RFC3339Nano))
	require.NoError(t, err)

	seriesRepo := recurrencepersistence.NewSQLiteSeriesRepository(db)
	blockRepo := recurrencepersistence.NewSQLiteTimeBlockRepository(db)
	taskRepo := plannerpersistence.NewSQLiteTaskRepository(db)
	clk := clock.FixedAt(captureNow)
	materializer := recurrenceservices.NewMaterializer(seriesRepo, taskRepo, clk, nil)
	gateway := &recordingGateway{}

	orch := NewOrchestrator(seriesRepo, blockRepo, taskRepo, materializer,
		gateway, clk, 0, nil, nil)

	return &captureFixture{
		orch:      orch,
		gateway:   gateway,
		taskRepo:  taskRepo,
		blockRepo: blockRepo,
		userID:    userID,
		now:       captureNow,
	}
}

func TestCaptureTaskSeriesMaterializesOccurrence(t *testing.T) {
	ctx := context.Background()
	f := newCaptureFixture(t)

	result, err := f.orch.Capture(ctx, f.userID, "kids vitamins daily", nil)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, result.Action)
	assert.Equal(t, EntityTaskSeries, result.EntityKind)
	require.NotNil(t, result.TasksCreated)
	assert.Equal(t, 1, *result.TasksCreated)

	open, err := f.taskRepo.FindOpen(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "kids vitamins daily", open[0].Title())
	assert.NotNil(t, open[0].RecurrenceSeriesID())

	t.Run("updating the series adds no extra occurrence", func(t *testing.T) {
		entityID, err := uuid.Parse(result.EntityID)
		require.NoError(t, err)
		updated, err := f.orch.Capture(ctx, f.userID, "kids vitamins daily", &entityID)
		require.NoError(t, err)
		assert.Equal(t, ActionUpdated, updated.Action)
		require.NotNil(t, updated.TasksCreated)
		assert.Zero(t, *updated.TasksCreated, "open occurrence already exists")
	})
}

func TestCaptureTimeBlockWritesRecurringEvent(t *testing.T) {
	ctx := context.Background()
	f := newCaptureFixture(t)

	result, err := f.orch.Capture(ctx, f.userID, "kids practice tues and thurs 2:30pm", nil)
	require.NoError(t, err)
	assert.Equal(t, EntityTimeBlock, result.EntityKind)
	require.NotNil(t, result.CalendarEventID)

	require.Len(t, f.gateway.inserts, 1)
	draft := f.gateway.inserts[0]
	assert.Equal(t, "kids practice tues and thurs 2:30pm", draft.Summary)
	require.Len(t, draft.Recurrence, 1)
	assert.True(t, strings.HasPrefix(draft.Recurrence[0], "RRULE:"),
		"recurrence entries are RFC 5545 property lines, got %q", draft.Recurrence[0])
	assert.Contains(t, draft.Recurrence[0], "FREQ=WEEKLY")
	assert.Contains(t, draft.Recurrence[0], "TU")
	assert.Contains(t, draft.Recurrence[0], "TH")
	assert.Equal(t, result.EntityID, draft.Private[calendarapp.MetaTimeBlockID])
	assert.Empty(t, draft.Private[calendarapp.MetaManaged], "time block events are not managed")

	// First matching day after Monday 2026-03-02 is Tuesday 2026-03-03.
	assert.Equal(t, time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC), draft.Start)
	assert.Equal(t, time.Date(2026, 3, 3, 15, 30, 0, 0, time.UTC), draft.End)

	blockID, err := uuid.Parse(result.EntityID)
	require.NoError(t, err)
	block, err := f.blockRepo.FindByID(ctx, f.userID, blockID)
	require.NoError(t, err)
	assert.Equal(t, recurrencedomain.TimeBlockPersistedWithEvent, block.State())

	t.Run("update patches the existing event", func(t *testing.T) {
		updated, err := f.orch.Capture(ctx, f.userID, "kids practice tues and thurs 3pm", &blockID)
		require.NoError(t, err)
		assert.Equal(t, ActionUpdated, updated.Action)
		require.Len(t, f.gateway.patches, 1)
		assert.Equal(t, time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC), f.gateway.patches[0].Start)
	})
}

func TestCaptureOneOffEvent(t *testing.T) {
	ctx := context.Background()
	f := newCaptureFixture(t)

	result, err := f.orch.Capture(ctx, f.userID, "dentist next tue 2:30pm", nil)
	require.NoError(t, err)
	assert.Equal(t, EntityEvent, result.EntityKind)
	require.NotNil(t, result.CalendarEventID)

	require.Len(t, f.gateway.inserts, 1)
	draft := f.gateway.inserts[0]
	assert.Equal(t, "dentist next tue 2:30pm", draft.Summary)
	assert.Equal(t, time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC), draft.Start)
	assert.Equal(t, time.Date(2026, 3, 3, 15, 30, 0, 0, time.UTC), draft.End)
	assert.Empty(t, draft.Recurrence)
	assert.Empty(t, draft.Private, "one-off events carry no marker metadata")
}

func TestCaptureOneOffPastRejected(t *testing.T) {
	f := newCaptureFixture(t)

	// Fixture clock is 09:00; 8am today is already gone.
	_, err := f.orch.Capture(context.Background(), f.userID, "call pharmacy today 8am", nil)
	assert.ErrorIs(t, err, ErrPastTime)
	assert.Empty(t, f.gateway.inserts)
}

func TestCaptureDeferredTask(t *testing.T) {
	ctx := context.Background()
	f := newCaptureFixture(t)

	result, err := f.orch.Capture(ctx, f.userID, "sort the garage sometime next week", nil)
	require.NoError(t, err)
	assert.Equal(t, EntityTask, result.EntityKind)

	taskID, err := uuid.Parse(result.EntityID)
	require.NoError(t, err)
	task, err := f.taskRepo.FindByID(ctx, f.userID, taskID)
	require.NoError(t, err)
	require.NotNil(t, task.StartAfter())
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), *task.StartAfter())
	assert.Nil(t, task.RecurrenceSeriesID())
}

func TestCaptureEmptyInstruction(t *testing.T) {
	f := newCaptureFixture(t)
	for _, instruction := range []string{"", "   ", "..."} {
		_, err := f.orch.Capture(context.Background(), f.userID, instruction, nil)
		assert.ErrorIs(t, err, recurrenceservices.ErrEmptyInstruction,
			"instruction %q", instruction)
	}
}

func TestCaptureDurationOnOneOff(t *testing.T) {
	f := newCaptureFixture(t)

	_, err := f.orch.Capture(context.Background(), f.userID, "haircut tomorrow 10am for 45 min", nil)
	require.NoError(t, err)
	require.Len(t, f.gateway.inserts, 1)
	draft := f.gateway.inserts[0]
	assert.Equal(t, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC), draft.Start)
	assert.Equal(t, 45*time.Minute, draft.End.Sub(draft.Start))
	assert.True(t, strings.HasPrefix(draft.Summary, "haircut"))
}
