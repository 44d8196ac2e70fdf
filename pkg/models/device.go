// Package models defines the domain records shared by the transmission core:
// devices, connections, scheduler jobs and transmission log entries.
package models

import (
	"errors"
	"maps"
	"strings"
	"time"
)

// DeviceCategory selects how a device turns its dataset into payloads.
type DeviceCategory string

const (
	// CategoryContinuous devices send their whole dataset on every transmission.
	CategoryContinuous DeviceCategory = "CONTINUOUS"
	// CategorySequential devices send one row per transmission and advance a cursor.
	CategorySequential DeviceCategory = "SEQUENTIAL"
)

// Valid reports whether c is a known category.
func (c DeviceCategory) Valid() bool {
	return c == CategoryContinuous || c == CategorySequential
}

// Row is one record of a device dataset.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return Row{}
	}

	return maps.Clone(r)
}

var (
	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("invalid device")
	// ErrCursorOutOfRange is returned when a cursor points past the dataset.
	ErrCursorOutOfRange = errors.New("cursor exceeds dataset length")
)

// Device is a simulated data emitter. FrequencySeconds is zero until
// configured; scheduling rejects it then.
type Device struct {
	ID                   string         `json:"id"                               validate:"required,excludesall=:/\\"`
	Reference            string         `json:"reference"`
	Name                 string         `json:"name"`
	Category             DeviceCategory `json:"category"                         validate:"required,oneof=CONTINUOUS SEQUENTIAL"`
	FrequencySeconds     int            `json:"frequency_seconds"                validate:"gte=0"`
	Enabled              bool           `json:"enabled"`
	Cursor               int            `json:"cursor"                           validate:"gte=0"`
	LastSentAt           *time.Time     `json:"last_sent_at,omitempty"`
	SelectedConnectionID *string        `json:"selected_connection_id,omitempty"`

	// IncludeReference annotates every outbound row with the device reference.
	IncludeReference bool `json:"include_reference"`

	// AutoReset makes a sequential device loop back to the first row when its
	// dataset is exhausted instead of pausing itself.
	AutoReset bool `json:"auto_reset"`

	Dataset   []Row     `json:"dataset,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DatasetLen returns the number of rows available to send.
func (d *Device) DatasetLen() int {
	return len(d.Dataset)
}

// IsSequential reports whether the device advances a cursor.
func (d *Device) IsSequential() bool {
	return d.Category == CategorySequential
}

// Exhausted reports whether a sequential device has no rows left to send.
// A sequential device without data is considered exhausted.
func (d *Device) Exhausted() bool {
	return d.IsSequential() && d.Cursor >= len(d.Dataset)
}

// ValidID reports whether id can name a device or connection. Ids are job key
// parts and file names, so the key separator, path separators and dot
// segments are refused.
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, JobKeySeparator+`/\`)
}

// Validate checks the structural invariants of a device record.
func (d *Device) Validate() error {
	if !ValidID(d.ID) || !d.Category.Valid() || d.FrequencySeconds < 0 || d.Cursor < 0 {
		return ErrInvalidDevice
	}

	if d.Cursor > len(d.Dataset) {
		return ErrCursorOutOfRange
	}

	return nil
}

// Clone returns a deep enough copy for callers to mutate scalar fields and rows
// without touching the stored record.
func (d *Device) Clone() *Device {
	clone := *d

	if d.LastSentAt != nil {
		at := *d.LastSentAt
		clone.LastSentAt = &at
	}

	if d.SelectedConnectionID != nil {
		id := *d.SelectedConnectionID
		clone.SelectedConnectionID = &id
	}

	if d.Dataset != nil {
		clone.Dataset = make([]Row, len(d.Dataset))
		for i, row := range d.Dataset {
			clone.Dataset[i] = row.Clone()
		}
	}

	return &clone
}
