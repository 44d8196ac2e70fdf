package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/devsim/pkg/models"
)

func TestNewTransmissionRecorded(t *testing.T) {
	entry := models.NewTransmissionLogEntry("dev-1", "c1", models.KindBulk, true, json.RawMessage(`[{"a":1}]`), "ok", time.Now())

	event := NewTransmissionRecorded(*entry, true)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, TransmissionRecordedEvent, event.GetType())
	assert.Equal(t, TransmissionRecordedEvent, event.Type)
	assert.Equal(t, "dev-1", event.DeviceID)
	assert.True(t, event.Manual)

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"transmission.recorded"`)
	assert.Contains(t, string(data), `"payload_snapshot":[{"a":1}]`)
}

func TestNewDeviceStateChanged(t *testing.T) {
	event := NewDeviceStateChanged("dev-1", models.StateActive, models.StatePaused, models.ActionPause)

	assert.Equal(t, DeviceStateChangedEvent, event.GetType())
	assert.Equal(t, models.StateActive, event.From)
	assert.Equal(t, models.StatePaused, event.To)
}

func TestNewDeviceCompleted(t *testing.T) {
	event := NewDeviceCompleted("dev-1", 3, true, 2)

	assert.Equal(t, DeviceCompletedEvent, event.GetType())
	assert.Equal(t, 2, event.JobsStopped)
}
