package scheduler

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukex/devsim/pkg/executor"
	"github.com/dukex/devsim/pkg/otelhelper"
	"github.com/dukex/devsim/pkg/persistence"
)

// fire runs on a cron goroutine. It waits for a worker slot, checks the job
// is still wanted against fresh records, executes and persists the next fire
// time. A key never has two fires queued or running at once.
func (s *Scheduler) fire(key string) {
	s.mu.Lock()
	e, ok := s.entries[key]
	runner := s.runner

	if !ok || e.job.Paused || runner == nil {
		s.mu.Unlock()

		return
	}

	if _, busy := s.firing[key]; busy {
		s.mu.Unlock()
		s.logger.Debug("Previous fire still running, skipping", "job_key", key)

		return
	}

	s.firing[key] = struct{}{}
	job := *e.job
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.firing, key)
		s.mu.Unlock()
	}()

	if err := s.pool.Acquire(s.fireCtx, 1); err != nil {
		return
	}
	defer s.pool.Release(1)

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	ctx, span := otelhelper.StartSpan(context.WithoutCancel(s.fireCtx), s.tracer, "scheduler.fire",
		attribute.String(otelhelper.JobKeyKey, key),
		attribute.String(otelhelper.DeviceIDKey, job.DeviceID),
		attribute.String(otelhelper.ConnectionIDKey, job.ConnectionID),
	)
	defer span.End()
	defer recoverPanic(ctx, s.logger, key)

	logger := s.logger.With("job_key", key)

	if !s.stillWanted(ctx, key, job.DeviceID, job.ConnectionID) {
		return
	}

	if _, err := runner.Execute(ctx, job.DeviceID, job.ConnectionID, executor.TriggerScheduled); err != nil {
		if errors.Is(err, executor.ErrDeviceDisabled) {
			s.stopSelf(ctx, key, "device disabled")

			return
		}

		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Scheduled transmission failed", "error", err)

		if persistence.IsDeviceNotFound(err) || persistence.IsConnectionNotFound(err) {
			s.stopSelf(ctx, key, "record removed")
		}

		return
	}

	s.advance(ctx, key)
}

// stillWanted stops the job when its device was disabled or removed, or its
// connection deactivated or removed. Lookup failures keep the job.
func (s *Scheduler) stillWanted(ctx context.Context, key, deviceID, connectionID string) bool {
	device, err := s.records.DeviceByID(ctx, deviceID)
	if err != nil {
		if isNotFound(err) {
			s.stopSelf(ctx, key, "device removed")

			return false
		}

		s.logger.WarnContext(ctx, "Device lookup failed, skipping fire", "job_key", key, "error", err)

		return false
	}

	if !device.Enabled {
		s.stopSelf(ctx, key, "device disabled")

		return false
	}

	conn, err := s.records.ConnectionByID(ctx, connectionID)
	if err != nil {
		if isNotFound(err) {
			s.stopSelf(ctx, key, "connection removed")

			return false
		}

		s.logger.WarnContext(ctx, "Connection lookup failed, skipping fire", "job_key", key, "error", err)

		return false
	}

	if !conn.Active {
		s.stopSelf(ctx, key, "connection inactive")

		return false
	}

	return true
}

func (s *Scheduler) stopSelf(ctx context.Context, key, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.stopLocked(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "Failed to remove job from store", "job_key", key, "error", err)
	}

	s.logger.InfoContext(ctx, "Job stopped itself", "job_key", key, "reason", reason)
}

// advance persists the next grid point after a fire. Jobs removed or replaced
// while the send was in flight are left alone.
func (s *Scheduler) advance(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.job.Paused {
		return
	}

	now := s.now().UTC()
	e.job.NextFireTime = e.job.NextAfter(now)
	e.job.UpdatedAt = now

	if err := s.store.SaveJob(ctx, e.job); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist next fire time", "job_key", key, "error", err)
	}
}
