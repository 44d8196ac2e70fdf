package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/devsim/pkg/executor"
	"github.com/dukex/devsim/pkg/jobstore"
	"github.com/dukex/devsim/pkg/mocks"
	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence/file"
)

type countingRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *countingRunner) Execute(_ context.Context, deviceID, connectionID string, _ executor.Trigger) (*executor.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, models.JobKey(deviceID, connectionID))

	return &executor.Outcome{Success: true}, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.calls)
}

type brokenStore struct {
	*jobstore.MemoryStore
}

func (brokenStore) Jobs(context.Context) ([]*models.Job, error) {
	return nil, errors.New("connection refused")
}

type fixture struct {
	records *file.Persistence
	store   *jobstore.MemoryStore
	sched   *Scheduler
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	records, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		records: records,
		store:   jobstore.NewMemoryStore(),
		now:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.sched = New(f.store, records, slog.Default(), Config{Workers: 2})
	f.sched.now = func() time.Time { return f.now }

	return f
}

func (f *fixture) device(t *testing.T, id string, enabled bool) *models.Device {
	t.Helper()

	device := &models.Device{
		ID:               id,
		Category:         models.CategorySequential,
		FrequencySeconds: 5,
		Enabled:          enabled,
		Dataset:          []models.Row{{"v": 1}},
	}
	require.NoError(t, f.records.SaveDevice(context.Background(), device))

	return device
}

func (f *fixture) connection(t *testing.T, id string, active bool) {
	t.Helper()

	require.NoError(t, f.records.SaveConnection(context.Background(), &models.Connection{
		ID:       id,
		Protocol: models.ProtocolHTTPS,
		Active:   active,
		Host:     "example.com",
	}))
}

func TestIntervalSchedule_Next(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := intervalSchedule{anchor: anchor, interval: 10 * time.Second}

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"before anchor", anchor.Add(-time.Minute), anchor},
		{"at anchor", anchor, anchor.Add(10 * time.Second)},
		{"mid interval", anchor.Add(15 * time.Second), anchor.Add(20 * time.Second)},
		{"on grid", anchor.Add(30 * time.Second), anchor.Add(40 * time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Next(tt.at))
		})
	}
}

func TestSchedule_RejectsNonPositiveInterval(t *testing.T) {
	f := newFixture(t)

	for _, interval := range []int{0, -5} {
		_, err := f.sched.Schedule(context.Background(), "dev-1", "conn-1", interval)
		assert.ErrorIs(t, err, ErrInvalidInterval)
	}

	assert.Empty(t, f.sched.Jobs())
}

func TestSchedule_CreateOrReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key, err := f.sched.Schedule(ctx, "dev-1", "conn-1", 5)
	require.NoError(t, err)
	assert.Equal(t, "dev-1:conn-1", key)

	job, ok := f.sched.Job("dev-1", "conn-1")
	require.True(t, ok)
	assert.Equal(t, f.now.Add(5*time.Second), job.NextFireTime)

	_, err = f.sched.Schedule(ctx, "dev-1", "conn-1", 30)
	require.NoError(t, err)

	jobs := f.sched.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 30, jobs[0].IntervalSeconds)

	persisted, err := f.store.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, 30, persisted[0].IntervalSeconds)
}

func TestPauseResumeStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.sched.Pause(ctx, "dev-1", "conn-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.sched.Schedule(ctx, "dev-1", "conn-1", 10)
	require.NoError(t, err)

	ok, err = f.sched.Pause(ctx, "dev-1", "conn-1")
	require.NoError(t, err)
	assert.True(t, ok)

	job, _ := f.sched.Job("dev-1", "conn-1")
	assert.True(t, job.Paused)
	assert.Equal(t, 1, f.sched.Stats().PausedJobs)

	f.now = f.now.Add(35 * time.Second)

	ok, err = f.sched.Resume(ctx, "dev-1", "conn-1")
	require.NoError(t, err)
	assert.True(t, ok)

	job, _ = f.sched.Job("dev-1", "conn-1")
	assert.False(t, job.Paused)
	assert.Equal(t, f.now.Add(5*time.Second), job.NextFireTime, "resume keeps the original grid")
	assert.Equal(t, 10, job.IntervalSeconds)

	ok, err = f.sched.Stop(ctx, "dev-1", "conn-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.sched.Stop(ctx, "dev-1", "conn-1")
	require.NoError(t, err)
	assert.False(t, ok)

	persisted, err := f.store.Jobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestStopDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, conn := range []string{"conn-1", "conn-2"} {
		_, err := f.sched.Schedule(ctx, "dev-1", conn, 5)
		require.NoError(t, err)
	}

	_, err := f.sched.Schedule(ctx, "dev-2", "conn-1", 5)
	require.NoError(t, err)

	assert.Equal(t, 2, f.sched.ActiveDeviceCount(""))
	assert.Equal(t, 1, f.sched.ActiveDeviceCount("dev-1"))

	assert.Equal(t, 2, f.sched.StopDevice(ctx, "dev-1"))
	assert.Empty(t, f.sched.DeviceJobs("dev-1"))
	assert.Len(t, f.sched.Jobs(), 1)

	assert.Equal(t, 1, f.sched.StopConnection(ctx, "conn-1"))
	assert.Empty(t, f.sched.Jobs())
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.device(t, "dev-on", true)
	f.device(t, "dev-off", false)
	f.connection(t, "conn-on", true)
	f.connection(t, "conn-off", false)

	for _, key := range [][2]string{
		{"dev-on", "conn-on"},
		{"dev-on", "conn-off"},
		{"dev-off", "conn-on"},
		{"dev-gone", "conn-on"},
		{"dev-on", "conn-gone"},
	} {
		_, err := f.sched.Schedule(ctx, key[0], key[1], 5)
		require.NoError(t, err)
	}

	removed, err := f.sched.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	jobs := f.sched.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "dev-on:conn-on", jobs[0].Key)

	removed, err = f.sched.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Len(t, f.sched.Jobs(), 1)
}

func TestLoadSchedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.device(t, "dev-1", true)
	f.device(t, "dev-off", false)

	selected := f.device(t, "dev-2", true)
	conn := "conn-b"
	selected.SelectedConnectionID = &conn
	require.NoError(t, f.records.SaveDevice(ctx, selected))

	f.connection(t, "conn-a", true)
	f.connection(t, "conn-b", true)
	f.connection(t, "conn-off", false)

	_, err := f.sched.Schedule(ctx, "dev-1", "conn-a", 99)
	require.NoError(t, err)

	created, err := f.sched.LoadSchedules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	keys := []string{}
	for _, job := range f.sched.Jobs() {
		keys = append(keys, job.Key)
	}

	assert.Equal(t, []string{"dev-1:conn-a", "dev-1:conn-b", "dev-2:conn-b"}, keys)

	existing, _ := f.sched.Job("dev-1", "conn-a")
	assert.Equal(t, 99, existing.IntervalSeconds, "existing jobs are not recreated")

	created, err = f.sched.LoadSchedules(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestRestore_RestartDurability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.device(t, "dev-1", true)
	f.device(t, "dev-2", true)
	f.connection(t, "conn-1", true)

	upcoming, err := models.NewJob("dev-1", "conn-1", 10, f.now.Add(-7*time.Second))
	require.NoError(t, err)
	require.NoError(t, f.store.SaveJob(ctx, upcoming))

	stale, err := models.NewJob("dev-2", "conn-1", 10, f.now.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.store.SaveJob(ctx, stale))

	require.NoError(t, f.sched.Restore(ctx))

	job, ok := f.sched.Job("dev-1", "conn-1")
	require.True(t, ok)
	assert.Equal(t, f.now.Add(3*time.Second), job.NextFireTime, "future fire time is kept")

	job, ok = f.sched.Job("dev-2", "conn-1")
	require.True(t, ok)
	assert.True(t, job.NextFireTime.After(f.now))
	assert.LessOrEqual(t, job.NextFireTime.Sub(f.now), 10*time.Second)

	persisted, err := f.store.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, job.NextFireTime, persisted[1].NextFireTime)
}

func TestFire_StopsWhenDeviceDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runner := &countingRunner{}
	f.sched.runner = runner

	f.device(t, "dev-1", false)
	f.connection(t, "conn-1", true)

	_, err := f.sched.Schedule(ctx, "dev-1", "conn-1", 5)
	require.NoError(t, err)

	f.sched.fire("dev-1:conn-1")

	assert.Zero(t, runner.count())
	assert.Empty(t, f.sched.Jobs())
}

func TestFire_ExecutesAndAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runner := &countingRunner{}
	f.sched.runner = runner

	f.device(t, "dev-1", true)
	f.connection(t, "conn-1", true)

	_, err := f.sched.Schedule(ctx, "dev-1", "conn-1", 5)
	require.NoError(t, err)

	f.now = f.now.Add(5 * time.Second)
	f.sched.fire("dev-1:conn-1")

	assert.Equal(t, 1, runner.count())

	job, ok := f.sched.Job("dev-1", "conn-1")
	require.True(t, ok)
	assert.Equal(t, f.now.Add(5*time.Second), job.NextFireTime)
}

func TestFire_SkipsPausedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runner := &countingRunner{}
	f.sched.runner = runner

	f.device(t, "dev-1", true)
	f.connection(t, "conn-1", true)

	_, err := f.sched.Schedule(ctx, "dev-1", "conn-1", 5)
	require.NoError(t, err)

	_, err = f.sched.Pause(ctx, "dev-1", "conn-1")
	require.NoError(t, err)

	f.sched.fire("dev-1:conn-1")
	assert.Zero(t, runner.count())
}

func TestStart_DegradesToMemoryStore(t *testing.T) {
	records, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	sched := New(brokenStore{jobstore.NewMemoryStore()}, records, slog.Default(), Config{})
	require.NoError(t, sched.Start(context.Background(), &countingRunner{}))

	t.Cleanup(func() { _ = sched.Shutdown(context.Background()) })

	assert.True(t, sched.Stats().Running)

	_, err = sched.Schedule(context.Background(), "dev-1", "conn-1", 5)
	assert.NoError(t, err)
	assert.NoError(t, sched.HealthCheck(context.Background()))
}

func TestStart_FiresOnInterval(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for real cron ticks")
	}

	records, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, records.SaveDevice(ctx, &models.Device{
		ID: "dev-1", Category: models.CategoryContinuous, FrequencySeconds: 1, Enabled: true,
	}))
	require.NoError(t, records.SaveConnection(ctx, &models.Connection{
		ID: "conn-1", Protocol: models.ProtocolMQTT, Active: true, Host: "localhost",
	}))

	runner := &countingRunner{}
	sched := New(jobstore.NewMemoryStore(), records, slog.Default(), Config{Workers: 1})
	require.NoError(t, sched.Start(ctx, runner))

	assert.Len(t, sched.Jobs(), 1, "startup load creates the job")
	assert.Eventually(t, func() bool { return runner.count() >= 2 }, 4*time.Second, 50*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, sched.Shutdown(shutdownCtx))

	stats := sched.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, 1, stats.TotalJobs)
}

func TestSchedule_StoreFailureRegistersNothing(t *testing.T) {
	records, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	store := &mocks.MockJobStore{}
	store.On("SaveJob", mock.Anything, mock.Anything).Return(errors.New("READONLY"))

	sched := New(store, records, slog.Default(), Config{})

	_, err = sched.Schedule(context.Background(), "dev-1", "conn-1", 5)

	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "schedule", jobErr.Op)
	assert.Equal(t, "dev-1:conn-1", jobErr.Key)
	assert.Empty(t, sched.Jobs())
}

type blockingRunner struct {
	mu      sync.Mutex
	calls   int
	running int
	peak    int
	entered chan string
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{entered: make(chan string, 10), release: make(chan struct{}, 10)}
}

func (r *blockingRunner) Execute(_ context.Context, deviceID, connectionID string, _ executor.Trigger) (*executor.Outcome, error) {
	r.mu.Lock()
	r.calls++
	r.running++
	r.peak = max(r.peak, r.running)
	r.mu.Unlock()

	r.entered <- models.JobKey(deviceID, connectionID)
	<-r.release

	r.mu.Lock()
	r.running--
	r.mu.Unlock()

	return &executor.Outcome{Success: true}, nil
}

func (r *blockingRunner) stats() (calls, peak int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls, r.peak
}

func TestFire_NoOverlapAcrossPauseResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runner := newBlockingRunner()
	f.sched.runner = runner

	f.device(t, "dev-1", true)
	f.connection(t, "conn-1", true)

	_, err := f.sched.Schedule(ctx, "dev-1", "conn-1", 1)
	require.NoError(t, err)

	done := make(chan struct{})

	go func() {
		defer close(done)
		f.sched.fire("dev-1:conn-1")
	}()

	<-runner.entered

	_, err = f.sched.Pause(ctx, "dev-1", "conn-1")
	require.NoError(t, err)
	_, err = f.sched.Resume(ctx, "dev-1", "conn-1")
	require.NoError(t, err)
	f.sched.fire("dev-1:conn-1")

	_, err = f.sched.Schedule(ctx, "dev-1", "conn-1", 2)
	require.NoError(t, err)
	f.sched.fire("dev-1:conn-1")

	calls, peak := runner.stats()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, peak)

	runner.release <- struct{}{}
	<-done

	runner.release <- struct{}{}
	f.sched.fire("dev-1:conn-1")

	calls, _ = runner.stats()
	assert.Equal(t, 2, calls, "the key fires again once the previous send finished")
}

func TestFire_WorkerPoolBoundsConcurrency(t *testing.T) {
	f := newFixture(t)
	f.sched = New(f.store, f.records, slog.Default(), Config{Workers: 1})
	f.sched.now = func() time.Time { return f.now }

	ctx := context.Background()
	runner := newBlockingRunner()
	f.sched.runner = runner

	f.device(t, "dev-1", true)
	f.device(t, "dev-2", true)
	f.connection(t, "conn-1", true)

	for _, id := range []string{"dev-1", "dev-2"} {
		_, err := f.sched.Schedule(ctx, id, "conn-1", 5)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup

	for _, key := range []string{"dev-1:conn-1", "dev-2:conn-1"} {
		wg.Add(1)

		go func() {
			defer wg.Done()
			f.sched.fire(key)
		}()
	}

	<-runner.entered

	select {
	case key := <-runner.entered:
		t.Fatalf("%s ran without a free worker", key)
	case <-time.After(100 * time.Millisecond):
	}

	runner.release <- struct{}{}
	<-runner.entered
	runner.release <- struct{}{}
	wg.Wait()

	calls, peak := runner.stats()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, peak)
}

type failingSaveStore struct {
	*jobstore.MemoryStore

	failSave bool
}

func (s *failingSaveStore) SaveJob(ctx context.Context, job *models.Job) error {
	if s.failSave {
		return errors.New("read-only replica")
	}

	return s.MemoryStore.SaveJob(ctx, job)
}

func TestStart_FallbackKeepsRestoredJobs(t *testing.T) {
	records, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, records.SaveDevice(ctx, &models.Device{
		ID: "dev-1", Category: models.CategoryContinuous, FrequencySeconds: 60, Enabled: true,
	}))
	require.NoError(t, records.SaveConnection(ctx, &models.Connection{
		ID: "conn-1", Protocol: models.ProtocolMQTT, Active: true, Host: "localhost",
	}))

	store := &failingSaveStore{MemoryStore: jobstore.NewMemoryStore()}

	upcoming, err := models.NewJob("dev-1", "conn-1", 60, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.SaveJob(ctx, upcoming))

	stale, err := models.NewJob("dev-2", "conn-1", 10, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.SaveJob(ctx, stale))

	store.failSave = true

	sched := New(store, records, slog.Default(), Config{})
	require.NoError(t, sched.Start(ctx, &countingRunner{}))

	t.Cleanup(func() { _ = sched.Shutdown(context.Background()) })

	live := sched.Jobs()
	require.Len(t, live, 1)
	assert.Equal(t, "dev-1:conn-1", live[0].Key)

	sched.mu.Lock()
	fallback := sched.store
	sched.mu.Unlock()

	persisted, err := fallback.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "dev-1:conn-1", persisted[0].Key)
}
