package mocks

import (
	"context"
	"time"

	"credserver/internal/model"
	"credserver/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockCredentialService struct {
	mock.Mock
}

func (m *MockCredentialService) Get(ctx context.Context) (*model.Credentials, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credentials), args.Error(1)
}

func (m *MockCredentialService) Status(ctx context.Context, now time.Time) (*service.CredentialStatus, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CredentialStatus), args.Error(1)
}

func (m *MockCredentialService) Ready(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockRefreshService struct {
	mock.Mock
}

func (m *MockRefreshService) Initialize(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRefreshService) RefreshOnce(ctx context.Context) (*model.RefreshEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RefreshEvent), args.Error(1)
}

func (m *MockRefreshService) Run(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) List(ctx context.Context, limit, offset int) (*service.RefreshEventListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RefreshEventListResult), args.Error(1)
}
