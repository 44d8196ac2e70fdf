package models

import "time"

// TransmissionState is the externally visible state of a device.
type TransmissionState string

const (
	StateInactive TransmissionState = "INACTIVE"
	StateActive   TransmissionState = "ACTIVE"
	StatePaused   TransmissionState = "PAUSED"
	StateManual   TransmissionState = "MANUAL"
)

// Action is a user operation that may be permitted in a given state.
type Action string

const (
	ActionTransmitNow Action = "transmit_now"
	ActionStart       Action = "start"
	ActionPause       Action = "pause"
	ActionResume      Action = "resume"
	ActionStop        Action = "stop"
)

// AllActions lists every action in display order.
var AllActions = []Action{ActionTransmitNow, ActionStart, ActionPause, ActionResume, ActionStop}

// ActionAvailability describes how an action is presented for a state.
type ActionAvailability struct {
	Enabled bool `json:"enabled"`
	Visible bool `json:"visible"`
}

// StateView is the aggregated state of a device for presentation.
type StateView struct {
	DeviceID         string                        `json:"device_id"`
	State            TransmissionState             `json:"state"`
	Actions          map[Action]ActionAvailability `json:"actions"`
	LastSentAt       *time.Time                    `json:"last_sent_at,omitempty"`
	LastTransmission *TransmissionLogEntry         `json:"last_transmission,omitempty"`
	NextScheduled    *time.Time                    `json:"next_scheduled,omitempty"`
	Jobs             []Job                         `json:"jobs"`
}
