package models

import (
	"errors"
	"strings"
	"time"
)

// JobKeySeparator joins device and connection ids in a job key.
const JobKeySeparator = ":"

// ErrInvalidJob is returned when job validation fails.
var ErrInvalidJob = errors.New("invalid job configuration")

// Job is a recurring transmission binding a device to a connection.
// At most one job exists per (device, connection) pair; the key enforces it.
type Job struct {
	Key          string `json:"job_key"       validate:"required"`
	DeviceID     string `json:"device_id"     validate:"required"`
	ConnectionID string `json:"connection_id" validate:"required"`

	IntervalSeconds int `json:"interval_seconds" validate:"gt=0"`

	// NextFireTime is the precomputed next execution time. It is persisted so
	// a restart can honour the misfire grace window.
	NextFireTime time.Time `json:"next_fire_time"`

	// Paused jobs keep their registration but never fire.
	Paused bool `json:"paused"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobKey builds the deterministic key of a (device, connection) pair.
func JobKey(deviceID, connectionID string) string {
	return deviceID + JobKeySeparator + connectionID
}

// NewJob creates a job whose first fire is one interval from now.
func NewJob(deviceID, connectionID string, intervalSeconds int, now time.Time) (*Job, error) {
	now = now.UTC()
	job := &Job{
		Key:             JobKey(deviceID, connectionID),
		DeviceID:        deviceID,
		ConnectionID:    connectionID,
		IntervalSeconds: intervalSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	job.NextFireTime = now.Add(job.Interval())

	return job, nil
}

// Interval returns the firing interval as a duration.
func (j *Job) Interval() time.Duration {
	return time.Duration(j.IntervalSeconds) * time.Second
}

// IsDue checks if this job should fire at the given time.
func (j *Job) IsDue(now time.Time) bool {
	return !j.Paused && !j.NextFireTime.After(now)
}

// NextAfter returns the first fire time on the job's grid strictly after now.
// The grid is anchored on NextFireTime so rolled-forward jobs keep their phase.
func (j *Job) NextAfter(now time.Time) time.Time {
	interval := j.Interval()
	if interval <= 0 {
		return now
	}

	if j.NextFireTime.IsZero() {
		return now.Add(interval)
	}

	if j.NextFireTime.After(now) {
		return j.NextFireTime
	}

	missed := now.Sub(j.NextFireTime)/interval + 1

	return j.NextFireTime.Add(missed * interval)
}

// Validate performs validation on the job fields.
func (j *Job) Validate() error {
	if j.DeviceID == "" || j.ConnectionID == "" || j.IntervalSeconds <= 0 {
		return ErrInvalidJob
	}

	if strings.Contains(j.DeviceID, JobKeySeparator) {
		return ErrInvalidJob
	}

	if j.Key != JobKey(j.DeviceID, j.ConnectionID) {
		return ErrInvalidJob
	}

	return nil
}
