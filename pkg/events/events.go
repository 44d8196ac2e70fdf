// Package events defines the notifications emitted by the transmission core.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukex/devsim/pkg/models"
)

type EventType string

// Topic carries every transmission core event.
const Topic = "devsim.transmissions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TransmissionRecordedEvent EventType = "transmission.recorded"
	DeviceStateChangedEvent   EventType = "device.state.changed"
	DeviceCompletedEvent      EventType = "device.completed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
}

func newBase(eventType EventType, deviceID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
	}
}

// TransmissionRecorded is published after a log entry is appended.
type TransmissionRecorded struct {
	BaseEvent

	Entry  models.TransmissionLogEntry `json:"entry"`
	Manual bool                        `json:"manual"`
}

func NewTransmissionRecorded(entry models.TransmissionLogEntry, manual bool) TransmissionRecorded {
	return TransmissionRecorded{
		BaseEvent: newBase(TransmissionRecordedEvent, entry.DeviceID),
		Entry:     entry,
		Manual:    manual,
	}
}

func (e TransmissionRecorded) GetType() EventType {
	return TransmissionRecordedEvent
}

// DeviceStateChanged is published by state machine transitions.
type DeviceStateChanged struct {
	BaseEvent

	From   models.TransmissionState `json:"from"`
	To     models.TransmissionState `json:"to"`
	Action models.Action            `json:"action"`
}

func NewDeviceStateChanged(deviceID string, from, to models.TransmissionState, action models.Action) DeviceStateChanged {
	return DeviceStateChanged{
		BaseEvent: newBase(DeviceStateChangedEvent, deviceID),
		From:      from,
		To:        to,
		Action:    action,
	}
}

func (e DeviceStateChanged) GetType() EventType {
	return DeviceStateChangedEvent
}

// DeviceCompleted is published when a sequential device exhausts its dataset.
type DeviceCompleted struct {
	BaseEvent

	Rows        int  `json:"rows"`
	AutoPaused  bool `json:"auto_paused"`
	JobsStopped int  `json:"jobs_stopped"`
}

func NewDeviceCompleted(deviceID string, rows int, autoPaused bool, jobsStopped int) DeviceCompleted {
	return DeviceCompleted{
		BaseEvent:   newBase(DeviceCompletedEvent, deviceID),
		Rows:        rows,
		AutoPaused:  autoPaused,
		JobsStopped: jobsStopped,
	}
}

func (e DeviceCompleted) GetType() EventType {
	return DeviceCompletedEvent
}
