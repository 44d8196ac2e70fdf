package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence"
)

// MockRecords is a mock implementation of persistence.DeviceStore and
// persistence.TransmissionLog.
type MockRecords struct {
	mock.Mock
}

var (
	_ persistence.DeviceStore     = (*MockRecords)(nil)
	_ persistence.TransmissionLog = (*MockRecords)(nil)
)

func (m *MockRecords) DeviceByID(ctx context.Context, id string) (*models.Device, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockRecords) ConnectionByID(ctx context.Context, id string) (*models.Connection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Connection), args.Error(1)
}

func (m *MockRecords) EnabledDevices(ctx context.Context) ([]*models.Device, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Device), args.Error(1)
}

func (m *MockRecords) ActiveConnections(ctx context.Context) ([]*models.Connection, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Connection), args.Error(1)
}

func (m *MockRecords) UpdateDeviceFields(ctx context.Context, id string, update persistence.DeviceUpdate) error {
	args := m.Called(ctx, id, update)

	return args.Error(0)
}

func (m *MockRecords) AppendTransmission(ctx context.Context, entry *models.TransmissionLogEntry) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockRecords) TransmissionHistory(ctx context.Context, deviceID string, limit int) ([]*models.TransmissionLogEntry, error) {
	args := m.Called(ctx, deviceID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TransmissionLogEntry), args.Error(1)
}
