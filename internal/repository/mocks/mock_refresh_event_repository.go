package mocks

import (
	"context"

	"credserver/internal/model"
	"credserver/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockRefreshEventRepository struct {
	mock.Mock
}

func (m *MockRefreshEventRepository) Create(ctx context.Context, ev *model.RefreshEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockRefreshEventRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.RefreshEvent], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.RefreshEvent]), args.Error(1)
}
