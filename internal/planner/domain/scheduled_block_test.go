package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicBlockID(t *testing.T) {
	taskID := uuid.New()

	assert.Equal(t, DeterministicBlockID(taskID, 0), DeterministicBlockID(taskID, 0))
	assert.NotEqual(t, DeterministicBlockID(taskID, 0), DeterministicBlockID(taskID, 1))
	assert.NotEqual(t, DeterministicBlockID(taskID, 0), DeterministicBlockID(uuid.New(), 0))
}

func TestScheduledBlock(t *testing.T) {
	userID := uuid.New()
	taskID := uuid.New()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	t.Run("rejects inverted interval", func(t *testing.T) {
		_, err := NewScheduledBlock(uuid.New(), userID, BlockEntityTask, taskID, end, start, ScheduledBySystem)
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})

	t.Run("locked block cannot be rescheduled", func(t *testing.T) {
		b, err := NewScheduledBlock(uuid.New(), userID, BlockEntityTask, taskID, start, end, ScheduledBySystem)
		require.NoError(t, err)

		b.Lock()
		assert.ErrorIs(t, b.Reschedule(start.Add(time.Hour), end.Add(time.Hour)), ErrBlockLocked)

		b.Unlock()
		require.NoError(t, b.Reschedule(start.Add(time.Hour), end.Add(time.Hour)))
		assert.Equal(t, start.Add(time.Hour), b.StartTime())
	})

	t.Run("import locks and reassigns ownership", func(t *testing.T) {
		b, err := NewScheduledBlock(uuid.New(), userID, BlockEntityTask, taskID, start, end, ScheduledBySystem)
		require.NoError(t, err)

		moved := start.Add(4 * time.Hour)
		require.NoError(t, b.ImportTimes(moved, moved.Add(30*time.Minute)))
		assert.True(t, b.Locked())
		assert.Equal(t, ScheduledByUser, b.ScheduledBy())
		assert.Equal(t, moved, b.StartTime())
	})

	t.Run("overlap is half-open", func(t *testing.T) {
		b, err := NewScheduledBlock(uuid.New(), userID, BlockEntityTask, taskID, start, end, ScheduledBySystem)
		require.NoError(t, err)

		assert.False(t, b.Overlaps(end, end.Add(time.Minute)))
		assert.False(t, b.Overlaps(start.Add(-time.Minute), start))
		assert.True(t, b.Overlaps(start.Add(15*time.Minute), end.Add(time.Hour)))
	})
}
