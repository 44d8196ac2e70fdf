// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/dukex/devsim/pkg/models"
)

// CreateTestDevice creates an enabled sequential Device that can be overridden.
func CreateTestDevice(overrides ...func(*models.Device)) *models.Device {
	device := &models.Device{
		ID:               "device-" + uuid.NewString()[:8],
		Name:             "Test Device",
		Category:         models.CategorySequential,
		FrequencySeconds: 5,
		Enabled:          true,
		Dataset:          []models.Row{{"value": 1}, {"value": 2}, {"value": 3}},
	}

	for _, override := range overrides {
		override(device)
	}

	return device
}

// WithID sets the device ID.
func WithID(id string) func(*models.Device) {
	return func(d *models.Device) {
		d.ID = id
	}
}

// WithContinuous makes the device send its whole dataset every minute.
func WithContinuous() func(*models.Device) {
	return func(d *models.Device) {
		d.Category = models.CategoryContinuous
		d.FrequencySeconds = 60
	}
}

// WithDisabled clears the enabled flag.
func WithDisabled() func(*models.Device) {
	return func(d *models.Device) {
		d.Enabled = false
	}
}

// WithDataset replaces the device rows.
func WithDataset(rows ...models.Row) func(*models.Device) {
	return func(d *models.Device) {
		d.Dataset = rows
	}
}

// CreateTestConnection creates an active HTTPS Connection that can be overridden.
func CreateTestConnection(overrides ...func(*models.Connection)) *models.Connection {
	conn := &models.Connection{
		ID:       "conn-" + uuid.NewString()[:8],
		Name:     "Test Connection",
		Protocol: models.ProtocolHTTPS,
		Active:   true,
		Host:     "example.com",
	}

	for _, override := range overrides {
		override(conn)
	}

	return conn
}

// WithConnectionID sets the connection ID.
func WithConnectionID(id string) func(*models.Connection) {
	return func(c *models.Connection) {
		c.ID = id
	}
}

// WithInactive clears the active flag.
func WithInactive() func(*models.Connection) {
	return func(c *models.Connection) {
		c.Active = false
	}
}
