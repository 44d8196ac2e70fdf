package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDeviceNotFound indicates a device was not found by the given identifier.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrConnectionNotFound indicates a connection was not found by the given identifier.
	ErrConnectionNotFound = errors.New("connection not found")
)

// DeviceError wraps device-related errors with additional context.
type DeviceError struct {
	Op       string // Operation being performed (e.g., "DeviceByID", "UpdateDeviceFields")
	DeviceID string
	Err      error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s operation failed for device %s: %v", e.Op, e.DeviceID, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for device errors.
func (e *DeviceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDeviceError creates a new device error with context.
func NewDeviceError(op, deviceID string, err error) *DeviceError {
	return &DeviceError{Op: op, DeviceID: deviceID, Err: err}
}

// ConnectionError wraps connection-related errors with additional context.
type ConnectionError struct {
	Op           string
	ConnectionID string
	Err          error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s operation failed for connection %s: %v", e.Op, e.ConnectionID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewConnectionError creates a new connection error with context.
func NewConnectionError(op, connectionID string, err error) *ConnectionError {
	return &ConnectionError{Op: op, ConnectionID: connectionID, Err: err}
}

// IsDeviceNotFound checks if an error indicates a device was not found.
func IsDeviceNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound)
}

// IsConnectionNotFound checks if an error indicates a connection was not found.
func IsConnectionNotFound(err error) bool {
	return errors.Is(err, ErrConnectionNotFound)
}
