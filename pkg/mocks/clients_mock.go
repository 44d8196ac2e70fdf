package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/devsim/pkg/clients"
	"github.com/dukex/devsim/pkg/models"
)

// MockClient is a mock implementation of clients.Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Send(ctx context.Context, payload []byte) (bool, string) {
	args := m.Called(ctx, payload)

	return args.Bool(0), args.String(1)
}

// MockResolver is a mock implementation of clients.Resolver.
type MockResolver struct {
	mock.Mock
}

var _ clients.Resolver = (*MockResolver)(nil)

func (m *MockResolver) ClientFor(conn *models.Connection) (clients.Client, error) {
	args := m.Called(conn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(clients.Client), args.Error(1)
}
