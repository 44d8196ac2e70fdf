package scheduler

import (
	"context"
	"fmt"

	"github.com/dukex/devsim/pkg/models"
)

// Schedule creates or replaces the job for (deviceID, connectionID). The first
// fire is one interval from now. It returns the job key.
func (s *Scheduler) Schedule(ctx context.Context, deviceID, connectionID string, intervalSeconds int) (string, error) {
	if intervalSeconds <= 0 {
		return "", fmt.Errorf("%w: got %d", ErrInvalidInterval, intervalSeconds)
	}

	job, err := models.NewJob(deviceID, connectionID, intervalSeconds, s.now())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[job.Key]; ok {
		job.CreatedAt = old.job.CreatedAt
	}

	if err := s.store.SaveJob(ctx, job); err != nil {
		return "", &JobError{Op: "schedule", Key: job.Key, Err: err}
	}

	s.registerLocked(job)

	s.logger.InfoContext(ctx, "Job scheduled",
		"job_key", job.Key, "interval_seconds", intervalSeconds, "next_fire_time", job.NextFireTime)

	return job.Key, nil
}

// Pause keeps the job registered but stops it firing. It reports whether the
// job exists.
func (s *Scheduler) Pause(ctx context.Context, deviceID, connectionID string) (bool, error) {
	key := models.JobKey(deviceID, connectionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}

	if e.job.Paused {
		return true, nil
	}

	job := *e.job
	job.Paused = true
	job.UpdatedAt = s.now().UTC()

	if err := s.store.SaveJob(ctx, &job); err != nil {
		return true, &JobError{Op: "pause", Key: key, Err: err}
	}

	s.registerLocked(&job)
	s.logger.InfoContext(ctx, "Job paused", "job_key", key)

	return true, nil
}

// Resume restarts a paused job on its original interval grid. It never fires
// immediately. It reports whether the job exists.
func (s *Scheduler) Resume(ctx context.Context, deviceID, connectionID string) (bool, error) {
	key := models.JobKey(deviceID, connectionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}

	if !e.job.Paused {
		return true, nil
	}

	now := s.now().UTC()
	job := *e.job
	job.Paused = false
	job.NextFireTime = job.NextAfter(now)
	job.UpdatedAt = now

	if err := s.store.SaveJob(ctx, &job); err != nil {
		return true, &JobError{Op: "resume", Key: key, Err: err}
	}

	s.registerLocked(&job)
	s.logger.InfoContext(ctx, "Job resumed", "job_key", key, "next_fire_time", job.NextFireTime)

	return true, nil
}

// Stop removes the job. Pending fires are cancelled; a send already in
// flight completes. It reports false when there was nothing to stop.
func (s *Scheduler) Stop(ctx context.Context, deviceID, connectionID string) (bool, error) {
	key := models.JobKey(deviceID, connectionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopLocked(ctx, key)
}

func (s *Scheduler) stopLocked(ctx context.Context, key string) (bool, error) {
	if !s.unregisterLocked(key) {
		return false, nil
	}

	if err := s.store.DeleteJob(ctx, key); err != nil {
		return true, &JobError{Op: "stop", Key: key, Err: err}
	}

	s.logger.InfoContext(ctx, "Job stopped", "job_key", key)

	return true, nil
}

// StopDevice removes every job of a device and returns how many were removed.
func (s *Scheduler) StopDevice(ctx context.Context, deviceID string) int {
	return s.stopWhere(ctx, func(job *models.Job) bool { return job.DeviceID == deviceID })
}

// StopConnection removes every job bound to a connection.
func (s *Scheduler) StopConnection(ctx context.Context, connectionID string) int {
	return s.stopWhere(ctx, func(job *models.Job) bool { return job.ConnectionID == connectionID })
}

func (s *Scheduler) stopWhere(ctx context.Context, match func(*models.Job) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := 0

	for _, job := range sortedJobs(s.entries, match) {
		removed, err := s.stopLocked(ctx, job.Key)
		if err != nil {
			s.logger.WarnContext(ctx, "Job removed from memory but not from store", "job_key", job.Key, "error", err)
		}

		if removed {
			stopped++
		}
	}

	return stopped
}

// Job returns a copy of the job for (deviceID, connectionID).
func (s *Scheduler) Job(deviceID, connectionID string) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[models.JobKey(deviceID, connectionID)]
	if !ok {
		return models.Job{}, false
	}

	return *e.job, true
}

// Jobs returns a snapshot of every job ordered by key.
func (s *Scheduler) Jobs() []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedJobs(s.entries, nil)
}

// DeviceJobs returns a snapshot of a device's jobs.
func (s *Scheduler) DeviceJobs(deviceID string) []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedJobs(s.entries, func(job *models.Job) bool { return job.DeviceID == deviceID })
}

// ActiveDeviceCount counts devices holding at least one job, paused jobs
// included, ignoring excludeDeviceID.
func (s *Scheduler) ActiveDeviceCount(excludeDeviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := make(map[string]struct{})

	for _, e := range s.entries {
		if e.job.DeviceID != excludeDeviceID {
			devices[e.job.DeviceID] = struct{}{}
		}
	}

	return len(devices)
}
