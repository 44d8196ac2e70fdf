// Package scheduler keeps one recurring transmission job per (device,
// connection) pair. Jobs are persisted in a jobstore.Store, fired by a cron
// engine and executed on a bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/dukex/devsim/pkg/executor"
	"github.com/dukex/devsim/pkg/jobstore"
	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/otelhelper"
	"github.com/dukex/devsim/pkg/persistence"
)

const (
	// DefaultWorkers bounds concurrent sends.
	DefaultWorkers = 20
	// DefaultMisfireGrace is how late a restored job may still fire once.
	DefaultMisfireGrace = 30 * time.Second
)

// Runner executes one transmission. *executor.Executor implements it.
type Runner interface {
	Execute(ctx context.Context, deviceID, connectionID string, trigger executor.Trigger) (*executor.Outcome, error)
}

// Config tunes the scheduler.
type Config struct {
	Workers      int
	MisfireGrace time.Duration
}

// Stats is a point-in-time summary of the scheduler.
type Stats struct {
	InstanceID string `json:"instance_id"`
	Running    bool   `json:"running"`
	TotalJobs  int    `json:"total_jobs"`
	ActiveJobs int    `json:"active_jobs"`
	PausedJobs int    `json:"paused_jobs"`
	InFlight   int64  `json:"in_flight"`
	Workers    int    `json:"workers"`
}

type entry struct {
	job *models.Job
	// id is zero while the job is paused.
	id cron.EntryID
}

// Scheduler is an explicit instance; create one per process with New.
type Scheduler struct {
	mu      sync.Mutex
	id      string
	cron    *cron.Cron
	store   jobstore.Store
	records persistence.DeviceStore
	runner  Runner
	entries map[string]*entry

	// firing holds the keys with a fire queued or running. It outlives cron
	// entries, which are replaced on pause, resume and reschedule.
	firing map[string]struct{}

	pool     *semaphore.Weighted
	workers  int
	grace    time.Duration
	inFlight atomic.Int64
	running  bool

	// fireCtx is cancelled on shutdown so queued fires give up; sends
	// already running use an uncancellable context and finish.
	fireCtx    context.Context
	cancelFire context.CancelFunc

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a stopped scheduler. store may be nil, in which case jobs only
// live in memory.
func New(store jobstore.Store, records persistence.DeviceStore, logger *slog.Logger, cfg Config) *Scheduler {
	if store == nil {
		store = jobstore.NewMemoryStore()
	}

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = DefaultMisfireGrace
	}

	s := &Scheduler{
		id:      uuid.NewString(),
		store:   store,
		records: records,
		entries: make(map[string]*entry),
		firing:  make(map[string]struct{}),
		pool:    semaphore.NewWeighted(int64(cfg.Workers)),
		workers: cfg.Workers,
		grace:   cfg.MisfireGrace,
		tracer:  otelhelper.Tracer("devsim/scheduler"),
		now:     time.Now,
	}
	s.logger = logger.With("module", "scheduler", "instance_id", s.id)

	clog := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	s.fireCtx, s.cancelFire = context.WithCancel(context.Background())

	return s
}

// Start restores persisted jobs, reconciles them against the record store,
// creates missing jobs for enabled devices and starts firing.
//
// A job store that cannot be read is replaced by an in-memory one: the
// scheduler keeps working, it just loses durability.
func (s *Scheduler) Start(ctx context.Context, runner Runner) error {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()

		return ErrAlreadyStarted
	}

	s.runner = runner
	s.mu.Unlock()

	if err := s.Restore(ctx); err != nil {
		s.logger.WarnContext(ctx, "Job store unavailable, falling back to in-memory scheduling", "error", err)

		s.mu.Lock()
		_ = s.store.Close()
		s.store = jobstore.NewMemoryStore()

		// Restore may have registered some jobs before failing.
		for key, e := range s.entries {
			if err := s.store.SaveJob(ctx, e.job); err != nil {
				s.logger.WarnContext(ctx, "Failed to keep restored job", "job_key", key, "error", err)
			}
		}
		s.mu.Unlock()
	}

	removed, err := s.Reconcile(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Startup reconciliation incomplete", "error", err)
	}

	created, err := s.LoadSchedules(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load schedules for enabled devices", "error", err)
	}

	s.mu.Lock()
	s.running = true
	s.cron.Start()
	total := len(s.entries)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Scheduler started",
		"jobs", total, "removed_orphans", removed, "created", created, "workers", s.workers)

	return nil
}

// Shutdown stops firing, cancels queued fires and waits for running sends
// until ctx expires. Jobs stay persisted.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	s.cancelFire()

	if wasRunning {
		done := s.cron.Stop()

		select {
		case <-done.Done():
		case <-ctx.Done():
			s.logger.WarnContext(ctx, "Shutdown deadline reached with transmissions in flight", "in_flight", s.inFlight.Load())
		}
	}

	s.logger.InfoContext(ctx, "Scheduler stopped")

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Close()
}

// Stats reports job counts and pool usage.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		InstanceID: s.id,
		Running:    s.running,
		TotalJobs:  len(s.entries),
		InFlight:   s.inFlight.Load(),
		Workers:    s.workers,
	}

	for _, e := range s.entries {
		if e.job.Paused {
			stats.PausedJobs++
		} else {
			stats.ActiveJobs++
		}
	}

	return stats
}

// HealthCheck probes the job store.
func (s *Scheduler) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()

	return store.HealthCheck(ctx)
}

// Restore registers every persisted job. Jobs that missed their fire time by
// more than the grace window are rolled forward to the next grid point; those
// within the window fire once right away if a runner is attached.
func (s *Scheduler) Restore(ctx context.Context) error {
	jobs, err := s.store.Jobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to read persisted jobs: %w", err)
	}

	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	var catchUp []cron.EntryID

	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			s.logger.WarnContext(ctx, "Dropping invalid persisted job", "job_key", job.Key, "error", err)

			if err := s.store.DeleteJob(ctx, job.Key); err != nil {
				s.logger.WarnContext(ctx, "Failed to delete invalid job", "job_key", job.Key, "error", err)
			}

			continue
		}

		missedBy := now.Sub(job.NextFireTime)
		if !job.Paused && missedBy > s.grace {
			job.NextFireTime = job.NextAfter(now)
			job.UpdatedAt = now

			if err := s.store.SaveJob(ctx, job); err != nil {
				return &JobError{Op: "restore", Key: job.Key, Err: err}
			}

			s.logger.InfoContext(ctx, "Rolled forward missed job", "job_key", job.Key, "next_fire_time", job.NextFireTime)
		}

		e := s.registerLocked(job)

		if job.IsDue(now) && missedBy <= s.grace {
			catchUp = append(catchUp, e.id)
		}
	}

	for _, id := range catchUp {
		go s.cron.Entry(id).WrappedJob.Run()
	}

	s.logger.InfoContext(ctx, "Restored persisted jobs", "count", len(jobs), "catch_up", len(catchUp))

	return nil
}

// registerLocked adds job to the in-memory index and, unless paused, to the
// cron engine. Callers hold s.mu.
func (s *Scheduler) registerLocked(job *models.Job) *entry {
	if old, ok := s.entries[job.Key]; ok && old.id != 0 {
		s.cron.Remove(old.id)
	}

	e := &entry{job: job}

	if !job.Paused {
		key := job.Key
		e.id = s.cron.Schedule(
			intervalSchedule{anchor: job.NextFireTime, interval: job.Interval()},
			jobFunc(func() { s.fire(key) }),
		)
	}

	s.entries[job.Key] = e

	return e
}

func (s *Scheduler) unregisterLocked(key string) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}

	if e.id != 0 {
		s.cron.Remove(e.id)
	}

	delete(s.entries, key)

	return true
}

func sortedJobs(entries map[string]*entry, keep func(*models.Job) bool) []models.Job {
	jobs := make([]models.Job, 0, len(entries))

	for _, e := range entries {
		if keep == nil || keep(e.job) {
			jobs = append(jobs, *e.job)
		}
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Key < jobs[j].Key })

	return jobs
}

func isNotFound(err error) bool {
	return persistence.IsDeviceNotFound(err) || persistence.IsConnectionNotFound(err)
}
