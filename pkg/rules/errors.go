// Package rules holds the business rules gating scheduling decisions.
package rules

import (
	"errors"
	"fmt"

	"github.com/dukex/devsim/pkg/models"
)

var (
	// ErrFrequencyOutOfRange is returned when a frequency is outside the category bounds.
	ErrFrequencyOutOfRange = errors.New("frequency out of range")
	// ErrUnknownCategory is returned for categories without bounds.
	ErrUnknownCategory = errors.New("unknown device category")
	// ErrCapacityExceeded is returned when the global active transmission cap is reached.
	ErrCapacityExceeded = errors.New("maximum concurrent transmissions reached")
	// ErrAlreadyActive is returned when a device already holds its transmission slot.
	ErrAlreadyActive = errors.New("device already has an active transmission")
)

// FrequencyError reports a rejected frequency with the bounds that apply.
type FrequencyError struct {
	Category  models.DeviceCategory
	Frequency int
	Bounds    Bounds
}

func (e *FrequencyError) Error() string {
	if e.Frequency < e.Bounds.Min {
		return fmt.Sprintf("%s devices must have a frequency of at least %d seconds (got %d)",
			e.Category, e.Bounds.Min, e.Frequency)
	}

	return fmt.Sprintf("%s devices must not exceed a frequency of %d seconds (got %d)",
		e.Category, e.Bounds.Max, e.Frequency)
}

func (e *FrequencyError) Unwrap() error {
	return ErrFrequencyOutOfRange
}

// CapacityError reports the cap that was hit.
type CapacityError struct {
	Active int
	Max    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("maximum concurrent transmissions reached (%d/%d)", e.Active, e.Max)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// IsFrequencyOutOfRange checks if an error is a rejected frequency.
func IsFrequencyOutOfRange(err error) bool {
	return errors.Is(err, ErrFrequencyOutOfRange)
}

// IsCapacityExceeded checks if an error is a global cap rejection.
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}
