package models

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_Validation_ValidDevice(t *testing.T) {
	device := &Device{
		ID:               "dev-1",
		Category:         CategorySequential,
		FrequencySeconds: 5,
		Dataset:          []Row{{"t": 1}, {"t": 2}},
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	require.NoError(t, validate.Struct(device))
	assert.NoError(t, device.Validate())
}

func TestDevice_Validation_BadCategory(t *testing.T) {
	device := &Device{ID: "dev-1", Category: "OTHER", FrequencySeconds: 5}

	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.Struct(device)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
	assert.Equal(t, "Category", validationErrors[0].Field())
	assert.Equal(t, "oneof", validationErrors[0].Tag())

	assert.ErrorIs(t, device.Validate(), ErrInvalidDevice)
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"dev-1", true},
		{"sensor.A", true},
		{"", false},
		{".", false},
		{"..", false},
		{"x/a", false},
		{`x\a`, false},
		{"dev:1", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidID(tt.id))
		})
	}
}

func TestDevice_Validation_RejectsPathSeparators(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	for _, id := range []string{"x/a", `x\a`} {
		device := &Device{ID: id, Category: CategorySequential, FrequencySeconds: 5}
		conn := &Connection{ID: id, Protocol: ProtocolHTTPS, Host: "example.com"}

		assert.ErrorIs(t, device.Validate(), ErrInvalidDevice)
		assert.ErrorIs(t, conn.Validate(), ErrInvalidConnection)
		assert.Error(t, validate.Struct(device))
		assert.Error(t, validate.Struct(conn))
	}
}

func TestDevice_Validate_CursorPastDataset(t *testing.T) {
	device := &Device{
		ID:               "dev-1",
		Category:         CategorySequential,
		FrequencySeconds: 5,
		Cursor:           3,
		Dataset:          []Row{{"t": 1}},
	}

	assert.ErrorIs(t, device.Validate(), ErrCursorOutOfRange)
}

func TestDevice_Exhausted(t *testing.T) {
	device := &Device{Category: CategorySequential, Dataset: []Row{{"t": 1}}}
	assert.False(t, device.Exhausted())

	device.Cursor = 1
	assert.True(t, device.Exhausted())

	device.Category = CategoryContinuous
	assert.False(t, device.Exhausted())
}

func TestDevice_Clone_IsIndependent(t *testing.T) {
	sent := time.Now()
	conn := "conn-1"
	device := &Device{
		ID:                   "dev-1",
		LastSentAt:           &sent,
		SelectedConnectionID: &conn,
		Dataset:              []Row{{"t": 1}},
	}

	clone := device.Clone()
	clone.Dataset[0]["t"] = 99
	*clone.SelectedConnectionID = "other"

	assert.Equal(t, 1, device.Dataset[0]["t"])
	assert.Equal(t, "conn-1", *device.SelectedConnectionID)
}

func TestConnection_Config(t *testing.T) {
	conn := &Connection{
		ID:       "conn-1",
		Protocol: ProtocolMQTT,
		Host:     "broker",
		Config:   map[string]any{"qos": float64(2), "topic": "t", "ssl": false},
	}

	require.NoError(t, conn.Validate())
	assert.Equal(t, 2, conn.ConfigInt("qos", 1))
	assert.Equal(t, 30, conn.ConfigInt("timeout", 30))
	assert.Equal(t, "t", conn.ConfigString("topic", "x"))
	assert.Equal(t, "x", conn.ConfigString("missing", "x"))
	assert.False(t, conn.ConfigBool("ssl", true))
}

func TestTransmissionLogEntry_Failed(t *testing.T) {
	entry := NewTransmissionLogEntry("dev-1", "conn-1", KindIncrement, false, nil, "boom", time.Now())

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, StatusFailed, entry.Status)
	require.NotNil(t, entry.ErrorDetail)
	assert.Equal(t, "boom", *entry.ErrorDetail)
	assert.Equal(t, KindBulk, KindFor(CategoryContinuous))
}
