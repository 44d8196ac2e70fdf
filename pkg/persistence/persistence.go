// Package persistence provides the storage abstraction for devices, connections
// and the transmission log.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/devsim/pkg/models"
)

// DeviceUpdate carries the partial device fields the transmission core writes.
// Nil fields are left untouched.
type DeviceUpdate struct {
	Cursor     *int
	Enabled    *bool
	LastSentAt *time.Time
}

// IsEmpty reports whether the update changes nothing.
func (u DeviceUpdate) IsEmpty() bool {
	return u.Cursor == nil && u.Enabled == nil && u.LastSentAt == nil
}

// Apply writes the non-nil fields of u onto device.
func (u DeviceUpdate) Apply(device *models.Device) {
	if u.Cursor != nil {
		device.Cursor = *u.Cursor
	}

	if u.Enabled != nil {
		device.Enabled = *u.Enabled
	}

	if u.LastSentAt != nil {
		at := u.LastSentAt.UTC()
		device.LastSentAt = &at
	}
}

// DeviceStore is the read/write surface the scheduler and executor need.
type DeviceStore interface {
	DeviceByID(ctx context.Context, id string) (*models.Device, error)
	ConnectionByID(ctx context.Context, id string) (*models.Connection, error)
	EnabledDevices(ctx context.Context) ([]*models.Device, error)
	ActiveConnections(ctx context.Context) ([]*models.Connection, error)
	UpdateDeviceFields(ctx context.Context, id string, update DeviceUpdate) error
}

// TransmissionLog is the append-only record of transmission attempts.
type TransmissionLog interface {
	AppendTransmission(ctx context.Context, entry *models.TransmissionLogEntry) error
	// TransmissionHistory returns the newest entries first.
	TransmissionHistory(ctx context.Context, deviceID string, limit int) ([]*models.TransmissionLogEntry, error)
}

type Persistence interface {
	DeviceStore
	TransmissionLog

	Devices(ctx context.Context) ([]*models.Device, error)
	Connections(ctx context.Context) ([]*models.Connection, error)
	SaveDevice(ctx context.Context, device *models.Device) error
	SaveConnection(ctx context.Context, connection *models.Connection) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
