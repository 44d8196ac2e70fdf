package jobstore

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/devsim/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newJob(t *testing.T, deviceID, connectionID string) *models.Job {
	t.Helper()

	job, err := models.NewJob(deviceID, connectionID, 5, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	return job
}

func TestParseScheme(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"", "memory"},
		{"memory://", "memory"},
		{"file:///tmp/jobs", "file"},
		{"/tmp/jobs", "file"},
		{"postgres://u:p@h/db", "postgres"},
		{"redis://localhost:6379/0", "redis"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseScheme(tt.url))
		})
	}
}

func TestNew_UnsupportedScheme(t *testing.T) {
	_, err := New(context.Background(), testLogger(), "mysql://localhost")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestNew_File(t *testing.T) {
	store, err := New(context.Background(), testLogger(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
}

func storeContract(t *testing.T, store Store) {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, store.HealthCheck(ctx))

	jobs, err := store.Jobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	first := newJob(t, "dev-1", "c1")
	second := newJob(t, "dev-2", "c1")

	require.NoError(t, store.SaveJob(ctx, second))
	require.NoError(t, store.SaveJob(ctx, first))

	first.Paused = true
	require.NoError(t, store.SaveJob(ctx, first))

	jobs, err = store.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "dev-1:c1", jobs[0].Key)
	assert.True(t, jobs[0].Paused)

	require.NoError(t, store.DeleteJob(ctx, first.Key))
	require.NoError(t, store.DeleteJob(ctx, "unknown:key"))

	jobs, err = store.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "dev-2:c1", jobs[0].Key)

	assert.ErrorIs(t, store.SaveJob(ctx, &models.Job{Key: "bad"}), models.ErrInvalidJob)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	storeContract(t, store)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveJob(ctx, newJob(t, "dev-1", "c1")))
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)

	jobs, err := reopened.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 5, jobs[0].IntervalSeconds)
}
