package transmission

import (
	"errors"
	"fmt"

	"github.com/dukex/devsim/pkg/models"
)

var (
	// ErrConnectionInactive is returned when scheduling onto an inactive connection.
	ErrConnectionInactive = errors.New("connection is not active")
	// ErrInvalidTransition is returned when an action is not legal in the current state.
	ErrInvalidTransition = errors.New("action not allowed in current state")
	// ErrNotSequential is returned by cursor operations on continuous devices.
	ErrNotSequential = errors.New("only SEQUENTIAL devices have a cursor")
)

// ValidationError is returned before any state change when a request is invalid.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StateConflictError reports an action that the device's current state forbids.
type StateConflictError struct {
	DeviceID string
	State    models.TransmissionState
	Action   models.Action
	Err      error
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s device %s while %s: %v", e.Action, e.DeviceID, e.State, e.Err)
}

func (e *StateConflictError) Unwrap() error {
	return e.Err
}

func newConflict(deviceID string, state models.TransmissionState, action models.Action) *StateConflictError {
	return &StateConflictError{DeviceID: deviceID, State: state, Action: action, Err: ErrInvalidTransition}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}

// IsStateConflict reports whether err is a StateConflictError.
func IsStateConflict(err error) bool {
	var target *StateConflictError

	return errors.As(err, &target)
}
