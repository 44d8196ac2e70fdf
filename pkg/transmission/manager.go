// Package transmission is the per-device transmission state machine. It
// gates every user action on the device's derived state and the business
// rules, then drives the scheduler and executor.
package transmission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/devsim/pkg/eventbus"
	"github.com/dukex/devsim/pkg/events"
	"github.com/dukex/devsim/pkg/executor"
	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence"
	"github.com/dukex/devsim/pkg/rules"
	"github.com/dukex/devsim/pkg/scheduler"
)

const (
	// DefaultHistoryLimit is used when a history request names no limit.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit caps history requests.
	MaxHistoryLimit = 500
)

// Runner executes transmissions and can hold off those of one device.
type Runner interface {
	scheduler.Runner
	LockDevice(deviceID string) func()
}

// Manager owns the MANUAL overlay; every other state is derived from the
// scheduler's jobs and the device record.
type Manager struct {
	mu     sync.Mutex
	manual map[string]struct{}

	records   persistence.Persistence
	scheduler *scheduler.Scheduler
	runner    Runner
	capacity  rules.Capacity
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewManager(
	records persistence.Persistence,
	sched *scheduler.Scheduler,
	runner Runner,
	capacity rules.Capacity,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Manager {
	if publisher == nil {
		publisher = eventbus.NopPublisher{}
	}

	return &Manager{
		manual:    make(map[string]struct{}),
		records:   records,
		scheduler: sched,
		runner:    runner,
		capacity:  capacity,
		publisher: publisher,
		logger:    logger.With("module", "transmission"),
	}
}

// State returns the current state of a device. Unknown devices are INACTIVE.
func (m *Manager) State(ctx context.Context, deviceID string) (models.TransmissionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, _, err := m.stateLocked(ctx, deviceID)

	return state, err
}

// Actions returns which actions are legal for a device right now.
func (m *Manager) Actions(ctx context.Context, deviceID string) (map[models.Action]models.ActionAvailability, error) {
	state, err := m.State(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	return AvailableActions(state), nil
}

// stateLocked reads the jobs on both sides of the device read and keeps only
// those present in both, so a job removed meanwhile never counts.
func (m *Manager) stateLocked(ctx context.Context, deviceID string) (models.TransmissionState, *models.Device, error) {
	before := m.scheduler.DeviceJobs(deviceID)

	device, err := m.records.DeviceByID(ctx, deviceID)
	if err != nil && !persistence.IsDeviceNotFound(err) {
		return "", nil, err
	}

	after := m.scheduler.DeviceJobs(deviceID)

	_, manual := m.manual[deviceID]

	return DeriveState(intersectJobs(before, after), device, manual), device, nil
}

// intersectJobs returns the jobs of after whose key also appears in before.
func intersectJobs(before, after []models.Job) []models.Job {
	if len(before) == 0 || len(after) == 0 {
		return nil
	}

	keys := make(map[string]struct{}, len(before))
	for _, job := range before {
		keys[job.Key] = struct{}{}
	}

	jobs := make([]models.Job, 0, len(after))

	for _, job := range after {
		if _, ok := keys[job.Key]; ok {
			jobs = append(jobs, job)
		}
	}

	return jobs
}

// lockDevice waits out in-flight transmissions of deviceID, then takes m.mu.
// The device lock always comes first.
func (m *Manager) lockDevice(deviceID string) func() {
	unlockDevice := m.runner.LockDevice(deviceID)
	m.mu.Lock()

	return func() {
		m.mu.Unlock()
		unlockDevice()
	}
}

// StartAutomatic validates the device and connection, checks capacity and
// schedules the device at its frequency. The device moves to ACTIVE.
func (m *Manager) StartAutomatic(ctx context.Context, deviceID, connectionID string) (string, error) {
	device, err := m.records.DeviceByID(ctx, deviceID)
	if err != nil {
		return "", m.lookupError("device", err)
	}

	if err := rules.ValidateFrequency(device.Category, device.FrequencySeconds); err != nil {
		return "", &ValidationError{Field: "frequency", Err: err}
	}

	conn, err := m.records.ConnectionByID(ctx, connectionID)
	if err != nil {
		return "", m.lookupError("connection", err)
	}

	if !conn.Active {
		return "", &ValidationError{Field: "connection", Err: fmt.Errorf("%w: %s", ErrConnectionInactive, connectionID)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, device, err := m.stateLocked(ctx, deviceID)
	if err != nil {
		return "", err
	}

	if !Allowed(state, models.ActionStart) {
		conflict := newConflict(deviceID, state, models.ActionStart)
		if state == models.StateActive {
			conflict.Err = rules.ErrAlreadyActive
		}

		return "", conflict
	}

	if err := rules.CheckDevice(len(m.scheduler.DeviceJobs(deviceID))); err != nil {
		conflict := newConflict(deviceID, state, models.ActionStart)
		conflict.Err = err

		return "", conflict
	}

	if err := m.capacity.Check(m.scheduler.ActiveDeviceCount(deviceID)); err != nil {
		return "", err
	}

	wasEnabled := device.Enabled
	if err := m.setEnabled(ctx, deviceID, true); err != nil {
		return "", err
	}

	key, err := m.scheduler.Schedule(ctx, deviceID, connectionID, device.FrequencySeconds)
	if err != nil {
		if !wasEnabled {
			if rbErr := m.setEnabled(ctx, deviceID, false); rbErr != nil {
				m.logger.ErrorContext(ctx, "Failed to roll back enabled flag", "device_id", deviceID, "error", rbErr)
			}
		}

		return "", err
	}

	m.transitioned(ctx, deviceID, state, models.StateActive, models.ActionStart)

	return key, nil
}

// Pause stops every job of an ACTIVE device from firing while keeping its
// registration. The device keeps its enabled flag.
func (m *Manager) Pause(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, _, err := m.stateLocked(ctx, deviceID)
	if err != nil {
		return err
	}

	if !Allowed(state, models.ActionPause) {
		return newConflict(deviceID, state, models.ActionPause)
	}

	for _, job := range m.scheduler.DeviceJobs(deviceID) {
		if _, err := m.scheduler.Pause(ctx, job.DeviceID, job.ConnectionID); err != nil {
			return err
		}
	}

	m.transitioned(ctx, deviceID, state, models.StatePaused, models.ActionPause)

	return nil
}

// Resume restarts every job of a PAUSED device on its original interval.
func (m *Manager) Resume(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, device, err := m.stateLocked(ctx, deviceID)
	if err != nil {
		return err
	}

	if !Allowed(state, models.ActionResume) {
		return newConflict(deviceID, state, models.ActionResume)
	}

	if !device.Enabled {
		if err := m.setEnabled(ctx, deviceID, true); err != nil {
			return err
		}
	}

	for _, job := range m.scheduler.DeviceJobs(deviceID) {
		if _, err := m.scheduler.Resume(ctx, job.DeviceID, job.ConnectionID); err != nil {
			return err
		}
	}

	m.transitioned(ctx, deviceID, state, models.StateActive, models.ActionResume)

	return nil
}

// Stop removes every job of the device and disables it. Leaving ACTIVE or
// PAUSED rewinds a sequential device. Stopping an INACTIVE device is a no-op
// that succeeds. Scheduled sends already running finish before the cursor is
// rewound.
func (m *Manager) Stop(ctx context.Context, deviceID string) (int, error) {
	m.mu.Lock()
	_, manual := m.manual[deviceID]
	m.mu.Unlock()

	if manual {
		return 0, newConflict(deviceID, models.StateManual, models.ActionStop)
	}

	unlock := m.lockDevice(deviceID)
	defer unlock()

	state, device, err := m.stateLocked(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	if state == models.StateManual {
		return 0, newConflict(deviceID, state, models.ActionStop)
	}

	if device == nil {
		return 0, m.lookupError("device", persistence.ErrDeviceNotFound)
	}

	stopped := m.scheduler.StopDevice(ctx, deviceID)

	update := persistence.DeviceUpdate{}

	if device.Enabled {
		enabled := false
		update.Enabled = &enabled
	}

	if state != models.StateInactive && device.IsSequential() {
		cursor := 0
		update.Cursor = &cursor
	}

	if !update.IsEmpty() {
		if err := m.records.UpdateDeviceFields(ctx, deviceID, update); err != nil {
			return stopped, err
		}
	}

	if state != models.StateInactive {
		m.transitioned(ctx, deviceID, state, models.StateInactive, models.ActionStop)
	}

	return stopped, nil
}

// ExecuteManual sends one transmission now. It is refused while the device
// transmits automatically or another manual send runs. The device reports
// MANUAL for the duration and its prior state afterwards.
func (m *Manager) ExecuteManual(ctx context.Context, deviceID, connectionID string) (*executor.Outcome, error) {
	m.mu.Lock()

	state, device, err := m.stateLocked(ctx, deviceID)
	if err != nil {
		m.mu.Unlock()

		return nil, err
	}

	if device == nil {
		m.mu.Unlock()

		return nil, m.lookupError("device", persistence.ErrDeviceNotFound)
	}

	if !Allowed(state, models.ActionTransmitNow) {
		m.mu.Unlock()

		return nil, newConflict(deviceID, state, models.ActionTransmitNow)
	}

	m.manual[deviceID] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.manual, deviceID)
		m.mu.Unlock()
	}()

	outcome, err := m.runner.Execute(ctx, deviceID, connectionID, executor.TriggerManual)
	if err != nil {
		if persistence.IsConnectionNotFound(err) || persistence.IsDeviceNotFound(err) {
			return nil, m.lookupError("connection", err)
		}

		return nil, err
	}

	m.logger.InfoContext(ctx, "Manual transmission finished",
		"device_id", deviceID, "connection_id", connectionID, "success", outcome.Success)

	return outcome, nil
}

// ResetCursor rewinds a sequential device to its first row once any running
// transmission of it has finished.
func (m *Manager) ResetCursor(ctx context.Context, deviceID string) error {
	unlock := m.runner.LockDevice(deviceID)
	defer unlock()

	device, err := m.records.DeviceByID(ctx, deviceID)
	if err != nil {
		return m.lookupError("device", err)
	}

	if !device.IsSequential() {
		return &ValidationError{Field: "category", Err: ErrNotSequential}
	}

	cursor := 0

	return m.records.UpdateDeviceFields(ctx, deviceID, persistence.DeviceUpdate{Cursor: &cursor})
}

// StateView aggregates everything a client needs to render a device.
func (m *Manager) StateView(ctx context.Context, deviceID string) (*models.StateView, error) {
	m.mu.Lock()
	state, device, err := m.stateLocked(ctx, deviceID)
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if device == nil {
		return nil, m.lookupError("device", persistence.ErrDeviceNotFound)
	}

	view := &models.StateView{
		DeviceID:   deviceID,
		State:      state,
		Actions:    AvailableActions(state),
		LastSentAt: device.LastSentAt,
		Jobs:       m.scheduler.DeviceJobs(deviceID),
	}

	for _, job := range view.Jobs {
		if job.Paused {
			continue
		}

		if view.NextScheduled == nil || job.NextFireTime.Before(*view.NextScheduled) {
			next := job.NextFireTime
			view.NextScheduled = &next
		}
	}

	latest, err := m.records.TransmissionHistory(ctx, deviceID, 1)
	if err != nil {
		return nil, err
	}

	if len(latest) > 0 {
		view.LastTransmission = latest[0]
	}

	return view, nil
}

// History returns the newest log entries of a device. A non-positive limit
// means DefaultHistoryLimit; limits above MaxHistoryLimit are capped.
func (m *Manager) History(ctx context.Context, deviceID string, limit int) ([]*models.TransmissionLogEntry, error) {
	if _, err := m.records.DeviceByID(ctx, deviceID); err != nil {
		return nil, m.lookupError("device", err)
	}

	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	return m.records.TransmissionHistory(ctx, deviceID, limit)
}

// Jobs lists every scheduled job.
func (m *Manager) Jobs() []models.Job {
	return m.scheduler.Jobs()
}

// OnConnectionActivated marks the connection active and schedules the enabled
// devices that should transmit on it.
func (m *Manager) OnConnectionActivated(ctx context.Context, connectionID string) (int, error) {
	conn, err := m.setConnectionActive(ctx, connectionID, true)
	if err != nil {
		return 0, err
	}

	return m.scheduler.ScheduleConnection(ctx, conn)
}

// OnConnectionDeactivated marks the connection inactive and removes its jobs.
func (m *Manager) OnConnectionDeactivated(ctx context.Context, connectionID string) (int, error) {
	if _, err := m.setConnectionActive(ctx, connectionID, false); err != nil {
		return 0, err
	}

	return m.scheduler.StopConnection(ctx, connectionID), nil
}

func (m *Manager) setConnectionActive(ctx context.Context, connectionID string, active bool) (*models.Connection, error) {
	conn, err := m.records.ConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, m.lookupError("connection", err)
	}

	if conn.Active == active {
		return conn, nil
	}

	conn.Active = active
	if err := m.records.SaveConnection(ctx, conn); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Connection activity changed", "connection_id", connectionID, "active", active)

	return conn, nil
}

func (m *Manager) setEnabled(ctx context.Context, deviceID string, enabled bool) error {
	return m.records.UpdateDeviceFields(ctx, deviceID, persistence.DeviceUpdate{Enabled: &enabled})
}

// lookupError turns a not-found store error into a ValidationError that
// still matches the persistence sentinels.
func (m *Manager) lookupError(field string, err error) error {
	if persistence.IsDeviceNotFound(err) || persistence.IsConnectionNotFound(err) {
		return &ValidationError{Field: field, Err: err}
	}

	return err
}

func (m *Manager) transitioned(ctx context.Context, deviceID string, from, to models.TransmissionState, action models.Action) {
	m.logger.InfoContext(ctx, "Transmission state changed",
		"device_id", deviceID, "from", from, "to", to, "action", action)

	if err := m.publisher.Publish(ctx, deviceID, events.NewDeviceStateChanged(deviceID, from, to, action)); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish state change", "device_id", deviceID, "error", err)
	}
}
