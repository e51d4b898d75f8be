package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plannerdomain "github.com/qnz18/qzwhatnext/internal/planner/domain"
	plannerpersistence "github.com/qnz18/qzwhatnext/internal/planner/infrastructure/persistence"
	"github.com/qnz18/qzwhatnext/internal/recurrence/domain"
	"github.com/qnz18/qzwhatnext/internal/recurrence/infrastructure/persistence"
	"github.com/qnz18/qzwhatnext/internal/shared/clock"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/database/sqlite"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/migrations"
)

type materializerFixture struct {
	db         *sql.DB
	userID     uuid.UUID
	seriesRepo *persistence.SQLiteSeriesRepository
	taskRepo   *plannerpersistence.SQLiteTaskRepository
	mat        *Materializer
}

func setupMaterializer(t *testing.T, now time.Time) *materializerFixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLite(ctx, db))

	userID := uuid.New()
	ts := now.UTC().Format(time.RFC3339Nano)
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID.String(), userID.String()+"@example.com", ts, ts)
	require.NoError(t, err)

	seriesRepo := persistence.NewSQLiteSeriesRepository(db)
	taskRepo := plannerpersistence.NewSQLiteTaskRepository(db)
	mat := NewMaterializer(seriesRepo, taskRepo, clock.FixedAt(now), nil)

	return &materializerFixture{
		db: db, userID: userID,
		seriesRepo: seriesRepo, taskRepo: taskRepo, mat: mat,
	}
}

func newDailySeries(t *testing.T, userID uuid.UUID, startDay domain.Date, window *domain.Window) *domain.TaskSeries {
	t.Helper()
	preset := domain.Preset{
		Frequency:       domain.FrequencyDaily,
		Interval:        1,
		TimeOfDayWindow: window,
		StartDate:       &startDay,
	}
	s, err := domain.NewTaskSeries(userID, "morning pages", preset)
	require.NoError(t, err)
	return s
}

func TestMaterializerCreatesSingleOccurrence(t *testing.T) {
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 0, 7)
	f := setupMaterializer(t, windowStart)

	morning := domain.WindowMorning
	s := newDailySeries(t, f.userID, domain.DateOf(windowStart), &morning)
	require.NoError(t, f.seriesRepo.Save(ctx, s))

	created, err := f.mat.Materialize(ctx, f.userID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	open, err := f.taskRepo.FindOpenBySeries(ctx, f.userID, s.ID())
	require.NoError(t, err)
	require.Len(t, open, 1)

	task := open[0]
	assert.Equal(t, "morning pages", task.Title())
	assert.Equal(t, plannerdomain.SourceRecurrence, task.SourceType())
	require.NotNil(t, task.RecurrenceOccurrenceStart())
	assert.True(t, task.RecurrenceOccurrenceStart().Equal(windowStart))
	require.NotNil(t, task.FlexibilityWindow())
	assert.Equal(t, time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC), task.FlexibilityWindow().Start)
	assert.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), task.FlexibilityWindow().End)

	// A second run sees the open occurrence and creates nothing.
	created, err = f.mat.Materialize(ctx, f.userID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestMaterializerRollsMissedOccurrenceForward(t *testing.T) {
	ctx := context.Background()
	day1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	f := setupMaterializer(t, day1)

	morning := domain.WindowMorning
	s := newDailySeries(t, f.userID, domain.DateOf(day1), &morning)
	require.NoError(t, f.seriesRepo.Save(ctx, s))

	created, err := f.mat.Materialize(ctx, f.userID, day1, day1.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Equal(t, 1, created)

	// The next day the untouched occurrence is rolled forward: old one
	// missed, a fresh one materialized. Nothing accumulates.
	created, err = f.mat.Materialize(ctx, f.userID, day2, day2.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	open, err := f.taskRepo.FindOpenBySeries(ctx, f.userID, s.ID())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].RecurrenceOccurrenceStart().Equal(day2))

	all, err := f.taskRepo.FindActive(ctx, f.userID)
	require.NoError(t, err)
	missed := 0
	for _, task := range all {
		if task.Status() == plannerdomain.StatusMissed {
			missed++
		}
	}
	assert.Equal(t, 1, missed)
}

func TestMaterializerCompletedOccurrenceNotRecreated(t *testing.T) {
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 0, 7)
	f := setupMaterializer(t, windowStart)

	s := newDailySeries(t, f.userID, domain.DateOf(windowStart), nil)
	require.NoError(t, f.seriesRepo.Save(ctx, s))

	_, err := f.mat.Materialize(ctx, f.userID, windowStart, windowEnd)
	require.NoError(t, err)

	open, err := f.taskRepo.FindOpenBySeries(ctx, f.userID, s.ID())
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.NoError(t, open[0].Complete(windowStart.Add(8*time.Hour)))
	require.NoError(t, f.taskRepo.Save(ctx, open[0]))

	// The same window would regenerate the same day; the unique
	// occurrence constraint stops it silently.
	created, err := f.mat.Materialize(ctx, f.userID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestMaterializerCountPerWeekPicksSpreadDays(t *testing.T) {
	ctx := context.Background()
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	f := setupMaterializer(t, monday)

	startDay := domain.DateOf(monday)
	preset := domain.Preset{
		Frequency:      domain.FrequencyWeekly,
		Interval:       1,
		CountPerPeriod: 3,
		StartDate:      &startDay,
	}
	s, err := domain.NewTaskSeries(f.userID, "water plants", preset)
	require.NoError(t, err)
	require.NoError(t, f.seriesRepo.Save(ctx, s))

	created, err := f.mat.Materialize(ctx, f.userID, monday, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	open, err := f.taskRepo.FindOpenBySeries(ctx, f.userID, s.ID())
	require.NoError(t, err)
	require.Len(t, open, 1)
	// First of the three spread picks over Mon..Sun is Monday itself.
	assert.True(t, open[0].RecurrenceOccurrenceStart().Equal(monday))
}

func TestChooseDaysInWeek(t *testing.T) {
	monday := domain.DateOf(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	week := make([]domain.Date, 7)
	for i := range week {
		week[i] = monday.AddDays(i)
	}

	picks := chooseDaysInWeek(week, 3)
	require.Len(t, picks, 3)
	assert.Equal(t, monday, picks[0])
	assert.Equal(t, monday.AddDays(3), picks[1])
	assert.Equal(t, monday.AddDays(6), picks[2])

	picks = chooseDaysInWeek(week, 2)
	require.Len(t, picks, 2)
	assert.Equal(t, monday, picks[0])
	assert.Equal(t, monday.AddDays(6), picks[1])

	// Fewer candidate days than requested picks returns them all.
	picks = chooseDaysInWeek(week[:2], 5)
	assert.Len(t, picks, 2)
}
