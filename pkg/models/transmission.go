package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransmissionKind distinguishes full dataset sends from single row sends.
type TransmissionKind string

const (
	KindBulk      TransmissionKind = "BULK"
	KindIncrement TransmissionKind = "INCREMENT"
)

// TransmissionStatus is the outcome recorded for a transmission attempt.
type TransmissionStatus string

const (
	StatusSuccess TransmissionStatus = "SUCCESS"
	StatusFailed  TransmissionStatus = "FAILED"
	StatusPending TransmissionStatus = "PENDING"
)

// TransmissionLogEntry is one append-only record of a transmission attempt.
type TransmissionLogEntry struct {
	ID              string             `json:"id"`
	DeviceID        string             `json:"device_id"`
	ConnectionID    string             `json:"connection_id"`
	Kind            TransmissionKind   `json:"kind"`
	Status          TransmissionStatus `json:"status"`
	PayloadSnapshot json.RawMessage    `json:"payload_snapshot,omitempty"`
	ResponseDetail  string             `json:"response_detail,omitempty"`
	ErrorDetail     *string            `json:"error_detail,omitempty"`
	SentAt          time.Time          `json:"sent_at"`
}

// NewTransmissionLogEntry builds an entry with a fresh id. Failed entries carry
// the detail as ErrorDetail as well.
func NewTransmissionLogEntry(
	deviceID, connectionID string,
	kind TransmissionKind,
	success bool,
	payload json.RawMessage,
	detail string,
	sentAt time.Time,
) *TransmissionLogEntry {
	entry := &TransmissionLogEntry{
		ID:              uuid.NewString(),
		DeviceID:        deviceID,
		ConnectionID:    connectionID,
		Kind:            kind,
		Status:          StatusSuccess,
		PayloadSnapshot: payload,
		ResponseDetail:  detail,
		SentAt:          sentAt.UTC(),
	}

	if !success {
		entry.Status = StatusFailed
		errDetail := detail
		entry.ErrorDetail = &errDetail
	}

	return entry
}

// KindFor returns the transmission kind a device category produces.
func KindFor(category DeviceCategory) TransmissionKind {
	if category == CategorySequential {
		return KindIncrement
	}

	return KindBulk
}
