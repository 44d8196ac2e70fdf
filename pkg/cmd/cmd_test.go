package cmd

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/devsim/pkg/jobstore"
)

func TestParsePersistenceProvider(t *testing.T) {
	assert.Equal(t, "file", parsePersistenceProvider("./data"))
	assert.Equal(t, "file", parsePersistenceProvider("file://./data"))
	assert.Equal(t, "postgres", parsePersistenceProvider("postgres://user@localhost/db"))
}

func TestNewPersistence_File(t *testing.T) {
	p, err := NewPersistence(context.Background(), slog.Default(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestNewJobStore_FallsBackToMemory(t *testing.T) {
	store := NewJobStore(context.Background(), slog.Default(), "etcd://localhost")

	_, ok := store.(*jobstore.MemoryStore)
	assert.True(t, ok)
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("gochannel", slog.Default())
	require.NoError(t, err)
	assert.NoError(t, bus.Close())

	_, err = NewEventBus("nats", slog.Default())
	assert.Error(t, err)
}
