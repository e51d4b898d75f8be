package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

func newTestTask(t *testing.T, title string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(uuid.New(), title)
	require.NoError(t, err)
	return task
}

func TestAssignTier(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	t.Run("deadline within 24h wins over everything", func(t *testing.T) {
		task := newTestTask(t, "file taxes")
		deadline := now.Add(6 * time.Hour)
		require.NoError(t, task.SetDeadline(&deadline))
		require.NoError(t, task.SetScores(0.9, 0.9))
		require.NoError(t, task.SetCategory(domain.CategoryChild))

		assert.Equal(t, 1, AssignTier(task, now))
	})

	t.Run("passed deadline does not trigger tier 1", func(t *testing.T) {
		task := newTestTask(t, "a")
		deadline := now.Add(-time.Hour)
		require.NoError(t, task.SetDeadline(&deadline))

		assert.Equal(t, 9, AssignTier(task, now))
	})

	t.Run("far deadline does not trigger tier 1", func(t *testing.T) {
		task := newTestTask(t, "a")
		deadline := now.Add(48 * time.Hour)
		require.NoError(t, task.SetDeadline(&deadline))

		assert.Equal(t, 9, AssignTier(task, now))
	})

	t.Run("risk beats impact beats category", func(t *testing.T) {
		task := newTestTask(t, "a")
		require.NoError(t, task.SetScores(0.7, 0.9))
		require.NoError(t, task.SetCategory(domain.CategoryChild))
		assert.Equal(t, 2, AssignTier(task, now))

		require.NoError(t, task.SetScores(0.1, 0.7))
		assert.Equal(t, 3, AssignTier(task, now))

		require.NoError(t, task.SetScores(0.1, 0.1))
		assert.Equal(t, 4, AssignTier(task, now))
	})

	t.Run("category ordering", func(t *testing.T) {
		tiers := map[domain.Category]int{
			domain.CategoryChild:    4,
			domain.CategoryHealth:   5,
			domain.CategoryWork:     6,
			domain.CategoryPersonal: 7,
			domain.CategoryIdeas:    7,
			domain.CategoryFamily:   8,
			domain.CategoryHome:     9,
			domain.CategoryAdmin:    9,
			domain.CategoryUnknown:  9,
		}
		for category, want := range tiers {
			task := newTestTask(t, "a")
			require.NoError(t, task.SetCategory(category))
			assert.Equal(t, want, AssignTier(task, now), category)
		}
	})

	t.Run("total over range", func(t *testing.T) {
		task := newTestTask(t, "a")
		tier := AssignTier(task, now)
		assert.GreaterOrEqual(t, tier, 1)
		assert.LessOrEqual(t, tier, 9)
	})
}

func TestFilterExcluded(t *testing.T) {
	a := newTestTask(t, "keep me")
	b := newTestTask(t, ".skip me")
	c := newTestTask(t, "also keep")
	d := newTestTask(t, "flagged")
	d.SetAIExcluded(true)

	allowed, excluded := FilterExcluded([]*domain.Task{a, b, c, d})

	assert.Equal(t, []*domain.Task{a, c}, allowed)
	assert.Equal(t, []*domain.Task{b, d}, excluded)
}
