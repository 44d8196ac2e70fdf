// Package payload turns a device snapshot into the protocol-agnostic body
// that gets transmitted.
package payload

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/devsim/pkg/models"
)

const (
	// TimestampField is added to every sequential row at build time.
	TimestampField = "timestamp"
	// ReferenceField carries the device public reference when annotation is on.
	ReferenceField = "device_id"

	// TimestampLayout is ISO-8601 UTC with microseconds and a trailing Z.
	TimestampLayout = "2006-01-02T15:04:05.000000Z"
)

// Payload is the body handed to a protocol client.
type Payload struct {
	Kind models.TransmissionKind
	// Body is []models.Row for bulk payloads and models.Row for increments.
	Body any
}

// JSON encodes the body as sent over the wire.
func (p *Payload) JSON() ([]byte, error) {
	data, err := json.Marshal(p.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	return data, nil
}

// Builder is a pure device -> payload function. It never mutates the device.
type Builder struct {
	// IncludeReference annotates rows for every device, in addition to devices
	// that opt in individually.
	IncludeReference bool

	Now func() time.Time
}

// NewBuilder returns a builder using the wall clock.
func NewBuilder(includeReference bool) *Builder {
	return &Builder{IncludeReference: includeReference, Now: time.Now}
}

// Build returns nil when there is nothing to send: an empty dataset, or a
// sequential device whose cursor reached the end.
func (b *Builder) Build(device *models.Device) *Payload {
	if device == nil || len(device.Dataset) == 0 {
		return nil
	}

	annotate := b.IncludeReference || device.IncludeReference

	switch device.Category {
	case models.CategoryContinuous:
		rows := make([]models.Row, len(device.Dataset))
		for i, row := range device.Dataset {
			rows[i] = row.Clone()
			if annotate {
				rows[i][ReferenceField] = device.Reference
			}
		}

		return &Payload{Kind: models.KindBulk, Body: rows}
	case models.CategorySequential:
		if device.Cursor < 0 || device.Cursor >= len(device.Dataset) {
			return nil
		}

		row := device.Dataset[device.Cursor].Clone()
		row[TimestampField] = b.now().UTC().Format(TimestampLayout)

		if annotate {
			row[ReferenceField] = device.Reference
		}

		return &Payload{Kind: models.KindIncrement, Body: row}
	default:
		return nil
	}
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}

	return b.Now()
}
