package commands

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

func TestCreateTaskHandler(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("creates with defaults", func(t *testing.T) {
		repo := new(mockTaskRepo)
		repo.On("Save", ctx, mock.AnythingOfType("*domain.Task")).Return(nil)
		handler := NewCreateTaskHandler(repo, nil, nil)

		result, err := handler.Handle(ctx, CreateTaskCommand{UserID: userID, Title: "buy groceries"})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, result.TaskID)
		assert.False(t, result.AIExcluded)

		saved := repo.Calls[0].Arguments.Get(1).(*domain.Task)
		assert.Equal(t, domain.DefaultDurationMin, saved.EstimatedDurationMin())
		assert.Equal(t, domain.CategoryUnknown, saved.Category())
		repo.AssertExpectations(t)
	})

	t.Run("dot-prefixed title is excluded", func(t *testing.T) {
		repo := new(mockTaskRepo)
		repo.On("Save", ctx, mock.Anything).Return(nil)
		handler := NewCreateTaskHandler(repo, nil, nil)

		result, err := handler.Handle(ctx, CreateTaskCommand{UserID: userID, Title: ".therapy"})
		require.NoError(t, err)
		assert.True(t, result.AIExcluded)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		handler := NewCreateTaskHandler(new(mockTaskRepo), nil, nil)
		_, err := handler.Handle(ctx, CreateTaskCommand{UserID: userID, Title: "  "})
		assert.ErrorIs(t, err, domain.ErrEmptyTitle)
	})

	t.Run("legacy category is mapped on the way in", func(t *testing.T) {
		repo := new(mockTaskRepo)
		repo.On("Save", ctx, mock.Anything).Return(nil)
		handler := NewCreateTaskHandler(repo, nil, nil)

		_, err := handler.Handle(ctx, CreateTaskCommand{UserID: userID, Title: "call grandma", Category: "social"})
		require.NoError(t, err)
		saved := repo.Calls[0].Arguments.Get(1).(*domain.Task)
		assert.Equal(t, domain.CategoryFamily, saved.Category())
	})
}

func TestBulkTasksHandler(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	known, err := domain.NewTask(userID, "known")
	require.NoError(t, err)
	unknownID := uuid.New()

	taskRepo := new(mockTaskRepo)
	blockRepo := new(mockBlockRepo)
	taskRepo.On("FindByID", ctx, userID, known.ID()).Return(known, nil)
	taskRepo.On("FindByID", ctx, userID, unknownID).Return(nil, domain.ErrTaskNotFound)
	taskRepo.On("Save", ctx, known).Return(nil)
	blockRepo.On("DeleteForEntity", ctx, userID, known.ID()).Return(nil)

	handler := NewBulkTasksHandler(taskRepo, blockRepo, nil)
	result, err := handler.Handle(ctx, BulkTasksCommand{
		UserID:  userID,
		TaskIDs: []uuid.UUID{known.ID(), unknownID},
		Op:      BulkDelete,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.AffectedCount)
	assert.Equal(t, []uuid.UUID{unknownID}, result.NotFoundIDs)
	assert.True(t, known.IsDeleted())
}

func TestDeleteTaskCascadesBlocks(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	task, err := domain.NewTask(userID, "doomed")
	require.NoError(t, err)

	taskRepo := new(mockTaskRepo)
	blockRepo := new(mockBlockRepo)
	taskRepo.On("FindByID", ctx, userID, task.ID()).Return(task, nil)
	taskRepo.On("Save", ctx, task).Return(nil)
	blockRepo.On("DeleteForEntity", ctx, userID, task.ID()).Return(nil)

	handler := NewDeleteTaskHandler(taskRepo, blockRepo, nil)
	require.NoError(t, handler.Handle(ctx, DeleteTaskCommand{UserID: userID, TaskID: task.ID()}))

	blockRepo.AssertCalled(t, "DeleteForEntity", ctx, userID, task.ID())
	assert.True(t, task.IsDeleted())
	assert.WithinDuration(t, time.Now().UTC(), *task.DeletedAt(), time.Minute)
}
