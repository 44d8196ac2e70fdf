package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/devsim/pkg/jobstore"
	"github.com/dukex/devsim/pkg/models"
)

// MockJobStore is a mock implementation of jobstore.Store.
type MockJobStore struct {
	mock.Mock
}

var _ jobstore.Store = (*MockJobStore)(nil)

func (m *MockJobStore) Jobs(ctx context.Context) ([]*models.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Job), args.Error(1)
}

func (m *MockJobStore) SaveJob(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)

	return args.Error(0)
}

func (m *MockJobStore) DeleteJob(ctx context.Context, key string) error {
	args := m.Called(ctx, key)

	return args.Error(0)
}

func (m *MockJobStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockJobStore) Close() error {
	args := m.Called()

	return args.Error(0)
}
