package rules

import (
	"fmt"

	"github.com/dukex/devsim/pkg/models"
)

// Bounds is an inclusive range of seconds.
type Bounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether seconds falls inside the bounds.
func (b Bounds) Contains(seconds int) bool {
	return seconds >= b.Min && seconds <= b.Max
}

// FrequencyBounds are the accepted frequency ranges per category.
var FrequencyBounds = map[models.DeviceCategory]Bounds{
	models.CategorySequential: {Min: 1, Max: 3600},
	models.CategoryContinuous: {Min: 60, Max: 86400},
}

// ValidateFrequency reports an out of range frequency. It never clamps.
func ValidateFrequency(category models.DeviceCategory, seconds int) error {
	bounds, ok := FrequencyBounds[category]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	if !bounds.Contains(seconds) {
		return &FrequencyError{Category: category, Frequency: seconds, Bounds: bounds}
	}

	return nil
}
