package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/devsim/pkg/models"
)

// Reconcile removes jobs whose device is missing or disabled, or whose
// connection is missing or inactive. It is safe to run repeatedly; jobs whose
// records cannot be read right now are kept. It returns how many jobs were
// removed.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	var (
		removed int
		errs    []error
	)

	for _, job := range s.Jobs() {
		orphan, reason, err := s.isOrphan(ctx, job)
		if err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.Key, err))

			continue
		}

		if !orphan {
			continue
		}

		stopped, err := s.Stop(ctx, job.DeviceID, job.ConnectionID)
		if err != nil {
			errs = append(errs, err)
		}

		if stopped {
			removed++

			s.logger.InfoContext(ctx, "Removed orphaned job", "job_key", job.Key, "reason", reason)
		}
	}

	return removed, errors.Join(errs...)
}

func (s *Scheduler) isOrphan(ctx context.Context, job models.Job) (bool, string, error) {
	device, err := s.records.DeviceByID(ctx, job.DeviceID)
	switch {
	case isNotFound(err):
		return true, "device removed", nil
	case err != nil:
		return false, "", err
	case !device.Enabled:
		return true, "device disabled", nil
	}

	conn, err := s.records.ConnectionByID(ctx, job.ConnectionID)
	switch {
	case isNotFound(err):
		return true, "connection removed", nil
	case err != nil:
		return false, "", err
	case !conn.Active:
		return true, "connection inactive", nil
	}

	return false, "", nil
}

// LoadSchedules creates a job for every enabled device on every active
// connection it should transmit to, skipping pairs that already have one. A
// device with a selected connection only transmits there. It returns how many
// jobs were created.
func (s *Scheduler) LoadSchedules(ctx context.Context) (int, error) {
	devices, err := s.records.EnabledDevices(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list enabled devices: %w", err)
	}

	connections, err := s.records.ActiveConnections(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active connections: %w", err)
	}

	return s.scheduleMissing(ctx, devices, connections)
}

// ScheduleConnection schedules every enabled device that should transmit on a
// newly activated connection.
func (s *Scheduler) ScheduleConnection(ctx context.Context, conn *models.Connection) (int, error) {
	if !conn.Active {
		return 0, nil
	}

	devices, err := s.records.EnabledDevices(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list enabled devices: %w", err)
	}

	return s.scheduleMissing(ctx, devices, []*models.Connection{conn})
}

func (s *Scheduler) scheduleMissing(ctx context.Context, devices []*models.Device, connections []*models.Connection) (int, error) {
	var (
		created int
		errs    []error
	)

	for _, device := range devices {
		for _, conn := range connections {
			if device.SelectedConnectionID != nil && *device.SelectedConnectionID != conn.ID {
				continue
			}

			if _, exists := s.Job(device.ID, conn.ID); exists {
				continue
			}

			if _, err := s.Schedule(ctx, device.ID, conn.ID, device.FrequencySeconds); err != nil {
				errs = append(errs, err)

				continue
			}

			created++
		}
	}

	return created, errors.Join(errs...)
}
