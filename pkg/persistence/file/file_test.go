package file

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPersistence(t *testing.T) (*Persistence, context.Context) {
	t.Helper()

	p, err := NewPersistence("file://" + t.TempDir())
	require.NoError(t, err)

	return p, context.Background()
}

func sampleDevice(id string, enabled bool) *models.Device {
	return &models.Device{
		ID:               id,
		Reference:        "REF-" + id,
		Category:         models.CategorySequential,
		FrequencySeconds: 5,
		Enabled:          enabled,
		Dataset:          []models.Row{{"temp": 21.5}, {"temp": 22.0}},
	}
}

func TestPersistence_DeviceRoundTrip(t *testing.T) {
	p, ctx := setupPersistence(t)

	require.NoError(t, p.SaveDevice(ctx, sampleDevice("dev-1", true)))

	device, err := p.DeviceByID(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "REF-dev-1", device.Reference)
	assert.Len(t, device.Dataset, 2)
	assert.False(t, device.CreatedAt.IsZero())
}

func TestPersistence_NotFound(t *testing.T) {
	p, ctx := setupPersistence(t)

	_, err := p.DeviceByID(ctx, "missing")
	assert.True(t, persistence.IsDeviceNotFound(err))

	_, err = p.ConnectionByID(ctx, "missing")
	assert.True(t, persistence.IsConnectionNotFound(err))

	err = p.UpdateDeviceFields(ctx, "missing", persistence.DeviceUpdate{Cursor: new(int)})
	assert.True(t, persistence.IsDeviceNotFound(err))
}

func TestPersistence_SaveDevice_Invalid(t *testing.T) {
	p, ctx := setupPersistence(t)

	err := p.SaveDevice(ctx, &models.Device{ID: "dev-1", Category: "OTHER", FrequencySeconds: 1})
	assert.ErrorIs(t, err, models.ErrInvalidDevice)
}

func TestPersistence_NestedIDsDoNotAliasRecords(t *testing.T) {
	p, ctx := setupPersistence(t)

	require.NoError(t, p.SaveDevice(ctx, sampleDevice("a", true)))
	require.NoError(t, p.AppendTransmission(ctx,
		models.NewTransmissionLogEntry("a", "conn-1", models.KindIncrement, true, nil, "ok", time.Now())))

	err := p.SaveDevice(ctx, sampleDevice("x/a", true))
	assert.ErrorIs(t, err, models.ErrInvalidDevice)

	_, err = p.DeviceByID(ctx, "x/a")
	assert.True(t, persistence.IsDeviceNotFound(err))

	err = p.UpdateDeviceFields(ctx, "x/a", persistence.DeviceUpdate{Cursor: new(int)})
	assert.True(t, persistence.IsDeviceNotFound(err))

	history, err := p.TransmissionHistory(ctx, "x/a", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	err = p.AppendTransmission(ctx,
		models.NewTransmissionLogEntry("x/a", "conn-1", models.KindIncrement, true, nil, "ok", time.Now()))
	assert.Error(t, err)

	history, err = p.TransmissionHistory(ctx, "a", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPersistence_EnabledAndActiveFilters(t *testing.T) {
	p, ctx := setupPersistence(t)

	require.NoError(t, p.SaveDevice(ctx, sampleDevice("dev-1", true)))
	require.NoError(t, p.SaveDevice(ctx, sampleDevice("dev-2", false)))
	require.NoError(t, p.SaveConnection(ctx, &models.Connection{ID: "c1", Protocol: models.ProtocolMQTT, Host: "h", Active: true}))
	require.NoError(t, p.SaveConnection(ctx, &models.Connection{ID: "c2", Protocol: models.ProtocolHTTPS, Host: "h"}))

	enabled, err := p.EnabledDevices(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "dev-1", enabled[0].ID)

	active, err := p.ActiveConnections(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "c1", active[0].ID)

	all, err := p.Connections(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPersistence_UpdateDeviceFields_Concurrent(t *testing.T) {
	p, ctx := setupPersistence(t)
	require.NoError(t, p.SaveDevice(ctx, sampleDevice("dev-1", true)))

	var wg sync.WaitGroup

	cursor := 2
	enabled := false
	sent := time.Now()

	wg.Add(2)

	go func() {
		defer wg.Done()
		assert.NoError(t, p.UpdateDeviceFields(ctx, "dev-1", persistence.DeviceUpdate{Cursor: &cursor, LastSentAt: &sent}))
	}()

	go func() {
		defer wg.Done()
		assert.NoError(t, p.UpdateDeviceFields(ctx, "dev-1", persistence.DeviceUpdate{Enabled: &enabled}))
	}()

	wg.Wait()

	device, err := p.DeviceByID(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 2, device.Cursor)
	assert.False(t, device.Enabled)
	require.NotNil(t, device.LastSentAt)
}

func TestPersistence_TransmissionHistory(t *testing.T) {
	p, ctx := setupPersistence(t)

	history, err := p.TransmissionHistory(ctx, "dev-1", 20)
	require.NoError(t, err)
	assert.Empty(t, history)

	base := time.Now()
	for i := range 5 {
		entry := models.NewTransmissionLogEntry("dev-1", "c1", models.KindIncrement, i%2 == 0, nil, "ok", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, p.AppendTransmission(ctx, entry))
	}

	history, err = p.TransmissionHistory(ctx, "dev-1", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].SentAt.After(history[1].SentAt))
	assert.Equal(t, models.StatusSuccess, history[0].Status)
	assert.Equal(t, models.StatusFailed, history[1].Status)
}
