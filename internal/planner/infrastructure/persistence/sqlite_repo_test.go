package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/database/sqlite"
	"github.com/qnz18/qzwhatnext/internal/shared/infrastructure/migrations"
)

func setupDB(t *testing.T) (*sql.DB, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLite(ctx, db))

	userID := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID.String(), userID.String()+"@example.com", now, now)
	require.NoError(t, err)

	return db, userID
}

func TestSQLiteTaskRepository(t *testing.T) {
	ctx := context.Background()
	db, userID := setupDB(t)
	repo := NewSQLiteTaskRepository(db)

	t.Run("save and reload round-trips fields", func(t *testing.T) {
		task, err := domain.NewTask(userID, "write report")
		require.NoError(t, err)
		deadline := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)
		require.NoError(t, task.SetDeadline(&deadline))
		require.NoError(t, task.SetCategory(domain.CategoryWork))
		require.NoError(t, task.SetEstimatedDuration(45))
		w, err := domain.NewFlexibilityWindow(deadline.Add(-8*time.Hour), deadline)
		require.NoError(t, err)
		task.SetFlexibilityWindow(&w)

		require.NoError(t, repo.Save(ctx, task))

		loaded, err := repo.FindByID(ctx, userID, task.ID())
		require.NoError(t, err)
		assert.Equal(t, task.ID(), loaded.ID())
		assert.Equal(t, "write report", loaded.Title())
		assert.Equal(t, domain.CategoryWork, loaded.Category())
		assert.Equal(t, 45, loaded.EstimatedDurationMin())
		require.NotNil(t, loaded.Deadline())
		assert.True(t, loaded.Deadline().Equal(deadline))
		require.NotNil(t, loaded.FlexibilityWindow())
		assert.True(t, loaded.FlexibilityWindow().End.Equal(deadline))
	})

	t.Run("find by id scoped to owner", func(t *testing.T) {
		task, err := domain.NewTask(userID, "mine")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, task))

		_, err = repo.FindByID(ctx, uuid.New(), task.ID())
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("soft delete hides from listings", func(t *testing.T) {
		task, err := domain.NewTask(userID, "doomed listing")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, task))

		task.SoftDelete(time.Now().UTC())
		require.NoError(t, repo.Save(ctx, task))

		active, err := repo.FindActive(ctx, userID)
		require.NoError(t, err)
		for _, got := range active {
			assert.NotEqual(t, task.ID(), got.ID())
		}

		// Still fetchable directly for restore.
		loaded, err := repo.FindByID(ctx, userID, task.ID())
		require.NoError(t, err)
		assert.True(t, loaded.IsDeleted())
	})

	t.Run("duplicate occurrence insert is rejected", func(t *testing.T) {
		seriesID := uuid.New()
		occurrence := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

		first, err := domain.NewTask(userID, "habit occurrence")
		require.NoError(t, err)
		first.LinkRecurrence(seriesID, occurrence)
		require.NoError(t, repo.Save(ctx, first))

		second, err := domain.NewTask(userID, "habit occurrence again")
		require.NoError(t, err)
		second.LinkRecurrence(seriesID, occurrence)
		assert.ErrorIs(t, repo.Save(ctx, second), domain.ErrDuplicateOccurrence)
	})

	t.Run("purge removes the row", func(t *testing.T) {
		task, err := domain.NewTask(userID, "purge me")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, task))

		require.NoError(t, repo.Purge(ctx, userID, task.ID()))
		_, err = repo.FindByID(ctx, userID, task.ID())
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
		assert.ErrorIs(t, repo.Purge(ctx, userID, task.ID()), domain.ErrTaskNotFound)
	})

	t.Run("legacy category mapped on read", func(t *testing.T) {
		id := uuid.New()
		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, err := db.ExecContext(ctx, `
			INSERT INTO tasks (id, user_id, source_type, title, status, category, energy_intensity,
				estimated_duration_min, duration_confidence, risk_score, impact_score,
				ai_excluded, manual_priority_locked, user_locked, manually_scheduled,
				created_at, updated_at)
			VALUES (?, ?, 'manual', 'old row', 'open', 'social', 'medium', 30, 0.5, 0.3, 0.3, 0, 0, 0, 0, ?, ?)
		`, id.String(), userID.String(), now, now)
		require.NoError(t, err)

		loaded, err := repo.FindByID(ctx, userID, id)
		require.NoError(t, err)
		assert.Equal(t, domain.CategoryFamily, loaded.Category())
	})
}

func TestSQLiteBlockRepository(t *testing.T) {
	ctx := context.Background()
	db, userID := setupDB(t)
	repo := NewSQLiteBlockRepository(db)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	newBlock := func(t *testing.T, taskID uuid.UUID, idx int, at time.Time) *domain.ScheduledBlock {
		t.Helper()
		b, err := domain.NewScheduledBlock(
			domain.DeterministicBlockID(taskID, idx), userID,
			domain.BlockEntityTask, taskID, at, at.Add(30*time.Minute), domain.ScheduledBySystem)
		require.NoError(t, err)
		return b
	}

	t.Run("replace unlocked keeps locked blocks", func(t *testing.T) {
		taskA, taskB := uuid.New(), uuid.New()

		locked := newBlock(t, taskA, 0, start)
		locked.Lock()
		require.NoError(t, repo.Save(ctx, locked))

		stale := newBlock(t, taskB, 0, start.Add(time.Hour))
		require.NoError(t, repo.Save(ctx, stale))

		fresh := newBlock(t, taskB, 1, start.Add(2*time.Hour))
		require.NoError(t, repo.ReplaceUnlocked(ctx, userID, []*domain.ScheduledBlock{fresh}))

		blocks, err := repo.FindByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, blocks, 2)
		assert.Equal(t, locked.ID(), blocks[0].ID())
		assert.Equal(t, fresh.ID(), blocks[1].ID())
	})

	t.Run("ordering by start then id", func(t *testing.T) {
		db2, user2 := setupDB(t)
		repo2 := NewSQLiteBlockRepository(db2)
		taskID := uuid.New()

		later, err := domain.NewScheduledBlock(domain.DeterministicBlockID(taskID, 1), user2,
			domain.BlockEntityTask, taskID, start.Add(time.Hour), start.Add(90*time.Minute), domain.ScheduledBySystem)
		require.NoError(t, err)
		earlier, err := domain.NewScheduledBlock(domain.DeterministicBlockID(taskID, 0), user2,
			domain.BlockEntityTask, taskID, start, start.Add(30*time.Minute), domain.ScheduledBySystem)
		require.NoError(t, err)

		require.NoError(t, repo2.Save(ctx, later))
		require.NoError(t, repo2.Save(ctx, earlier))

		blocks, err := repo2.FindByUser(ctx, user2)
		require.NoError(t, err)
		require.Len(t, blocks, 2)
		assert.True(t, blocks[0].StartTime().Before(blocks[1].StartTime()))
	})

	t.Run("calendar metadata survives save", func(t *testing.T) {
		taskID := uuid.New()
		b := newBlock(t, taskID, 0, start.Add(5*time.Hour))
		updated := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
		b.SetCalendarMetadata("evt_123", `"etag-1"`, &updated)
		require.NoError(t, repo.Save(ctx, b))

		loaded, err := repo.FindByID(ctx, userID, b.ID())
		require.NoError(t, err)
		require.NotNil(t, loaded.CalendarEventID())
		assert.Equal(t, "evt_123", *loaded.CalendarEventID())
		require.NotNil(t, loaded.CalendarEventEtag())
		assert.Equal(t, `"etag-1"`, *loaded.CalendarEventEtag())
		require.NotNil(t, loaded.CalendarEventUpdatedAt())
		assert.True(t, loaded.CalendarEventUpdatedAt().Equal(updated))
	})

	t.Run("delete for entity", func(t *testing.T) {
		taskID := uuid.New()
		require.NoError(t, repo.Save(ctx, newBlock(t, taskID, 0, start.Add(24*time.Hour))))
		require.NoError(t, repo.Save(ctx, newBlock(t, taskID, 1, start.Add(25*time.Hour))))

		require.NoError(t, repo.DeleteForEntity(ctx, userID, taskID))
		blocks, err := repo.FindByUser(ctx, userID)
		require.NoError(t, err)
		for _, b := range blocks {
			assert.NotEqual(t, taskID, b.EntityID())
		}
	})
}
