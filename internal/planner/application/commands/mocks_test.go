package commands

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

type mockTaskRepo struct {
	mock.Mock
}

func (m *mockTaskRepo) Save(ctx context.Context, t *domain.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockTaskRepo) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.Task, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *mockTaskRepo) FindActive(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Task), args.Error(1)
}

func (m *mockTaskRepo) FindOpen(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Task), args.Error(1)
}

func (m *mockTaskRepo) FindOpenBySeries(ctx context.Context, userID, seriesID uuid.UUID) ([]*domain.Task, error) {
	args := m.Called(ctx, userID, seriesID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Task), args.Error(1)
}

func (m *mockTaskRepo) Purge(ctx context.Context, userID, id uuid.UUID) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

type mockBlockRepo struct {
	mock.Mock
}

func (m *mockBlockRepo) Save(ctx context.Context, b *domain.ScheduledBlock) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *mockBlockRepo) FindByID(ctx context.Context, userID, id uuid.UUID) (*domain.ScheduledBlock, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduledBlock), args.Error(1)
}

func (m *mockBlockRepo) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ScheduledBlock, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledBlock), args.Error(1)
}

func (m *mockBlockRepo) FindLocked(ctx context.Context, userID uuid.UUID) ([]*domain.ScheduledBlock, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledBlock), args.Error(1)
}

func (m *mockBlockRepo) ReplaceUnlocked(ctx context.Context, userID uuid.UUID, blocks []*domain.ScheduledBlock) error {
	args := m.Called(ctx, userID, blocks)
	return args.Error(0)
}

func (m *mockBlockRepo) DeleteForEntity(ctx context.Context, userID, entityID uuid.UUID) error {
	args := m.Called(ctx, userID, entityID)
	return args.Error(0)
}
