package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

func TestStackRank(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	t.Run("tier dominates", func(t *testing.T) {
		low := newTestTask(t, "admin chore")
		require.NoError(t, low.SetCategory(domain.CategoryAdmin))
		high := newTestTask(t, "pick up kid")
		require.NoError(t, high.SetCategory(domain.CategoryChild))

		ranked := StackRank([]*domain.Task{low, high}, now, time.UTC)
		assert.Equal(t, []*domain.Task{high, low}, ranked)
	})

	t.Run("deadline urgency beats due_by beats neither", func(t *testing.T) {
		withDeadline := newTestTask(t, "a")
		deadline := now.Add(72 * time.Hour)
		require.NoError(t, withDeadline.SetDeadline(&deadline))

		withDueBy := newTestTask(t, "b")
		due := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
		withDueBy.SetDueBy(&due)

		bare := newTestTask(t, "c")

		ranked := StackRank([]*domain.Task{bare, withDueBy, withDeadline}, now, time.UTC)
		assert.Equal(t, []*domain.Task{withDeadline, withDueBy, bare}, ranked)
	})

	t.Run("earlier deadline first", func(t *testing.T) {
		later := newTestTask(t, "later")
		laterAt := now.Add(96 * time.Hour)
		require.NoError(t, later.SetDeadline(&laterAt))

		sooner := newTestTask(t, "sooner")
		soonerAt := now.Add(48 * time.Hour)
		require.NoError(t, sooner.SetDeadline(&soonerAt))

		ranked := StackRank([]*domain.Task{later, sooner}, now, time.UTC)
		assert.Equal(t, []*domain.Task{sooner, later}, ranked)
	})

	t.Run("due_by keeps its calendar day west of UTC", func(t *testing.T) {
		central := time.FixedZone("CDT", -5*60*60)

		// Stored as a date at midnight UTC; its day is Aug 24 regardless
		// of the user's zone.
		due := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
		end := endOfLocalDay(due, central)
		assert.Equal(t, time.Date(2026, 8, 24, 23, 59, 59, 0, central), end)
		assert.Equal(t, time.Date(2026, 8, 25, 4, 59, 59, 0, time.UTC), end.UTC())

		withDueBy := newTestTask(t, "pay rent")
		withDueBy.SetDueBy(&due)
		key := keyFor(withDueBy, time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC), central)
		assert.Equal(t, float64(end.Unix()), key.urgencyAt)
	})

	t.Run("stable for identical keys", func(t *testing.T) {
		created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		first := rehydrateBare(t, created, "00000000-0000-0000-0000-000000000001")
		second := rehydrateBare(t, created, "00000000-0000-0000-0000-000000000001")

		// Same created_at and id: input order must be preserved.
		ranked := StackRank([]*domain.Task{first, second}, now, time.UTC)
		assert.Same(t, first, ranked[0])
		assert.Same(t, second, ranked[1])
	})

	t.Run("repeated calls agree", func(t *testing.T) {
		tasks := []*domain.Task{newTestTask(t, "a"), newTestTask(t, "b"), newTestTask(t, "c")}
		require.NoError(t, tasks[1].SetCategory(domain.CategoryWork))

		first := StackRank(tasks, now, time.UTC)
		second := StackRank(tasks, now, time.UTC)
		assert.Equal(t, first, second)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		a := newTestTask(t, "a")
		b := newTestTask(t, "b")
		require.NoError(t, b.SetCategory(domain.CategoryChild))
		input := []*domain.Task{a, b}

		StackRank(input, now, time.UTC)
		assert.Equal(t, []*domain.Task{a, b}, input)
	})
}

func rehydrateBare(t *testing.T, createdAt time.Time, id string) *domain.Task {
	t.Helper()
	return domain.RehydrateTask(domain.RehydrateTaskParams{
		ID:                   uuid.MustParse(id),
		UserID:               uuid.New(),
		SourceType:           domain.SourceManual,
		Title:                "x",
		Category:             domain.CategoryUnknown,
		EnergyIntensity:      domain.EnergyMedium,
		EstimatedDurationMin: 30,
		Status:               domain.StatusOpen,
		CreatedAt:            createdAt,
		UpdatedAt:            createdAt,
	})
}
