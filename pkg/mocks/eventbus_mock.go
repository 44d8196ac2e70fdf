package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/devsim/pkg/eventbus"
)

// MockPublisher is a mock implementation of eventbus.EventPublisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}
