package web

import "github.com/dukex/devsim/pkg/models"

// DevicePath identifies a device in the URL.
type DevicePath struct {
	DeviceID string `validate:"required,excludes=:"`
}

// TransmissionPath identifies a (device, connection) pair in the URL.
type TransmissionPath struct {
	DeviceID     string `validate:"required,excludes=:"`
	ConnectionID string `validate:"required"`
}

// HistoryQuery holds the history query parameters.
type HistoryQuery struct {
	Limit int `validate:"gte=0,lte=500"`
}

// JobsResponse lists scheduled jobs.
type JobsResponse struct {
	Jobs  []models.Job `json:"jobs"`
	Total int          `json:"total"`
}

// ActionResponse is returned by state transitions.
type ActionResponse struct {
	DeviceID string                   `json:"device_id"`
	State    models.TransmissionState `json:"state"`
	JobKey   string                   `json:"job_key,omitempty"`
	Stopped  int                      `json:"stopped,omitempty"`
}

// TransmitResponse is returned by a manual transmission.
type TransmitResponse struct {
	Success bool                         `json:"success"`
	Detail  string                       `json:"detail"`
	Entry   *models.TransmissionLogEntry `json:"entry"`
}

// ConnectionChangeResponse reports the jobs touched by a connection activation change.
type ConnectionChangeResponse struct {
	ConnectionID string `json:"connection_id"`
	Active       bool   `json:"active"`
	Jobs         int    `json:"jobs"`
}
