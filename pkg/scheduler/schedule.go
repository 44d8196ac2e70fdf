package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// intervalSchedule fires on a fixed grid anchored at a persisted fire time, so
// a job keeps its phase across pause, resume and restart.
type intervalSchedule struct {
	anchor   time.Time
	interval time.Duration
}

// Next returns the first grid point strictly after t.
func (s intervalSchedule) Next(t time.Time) time.Time {
	if s.anchor.After(t) {
		return s.anchor
	}

	steps := t.Sub(s.anchor)/s.interval + 1

	return s.anchor.Add(steps * s.interval)
}

var _ cron.Schedule = intervalSchedule{}

// cronLogger adapts slog to the cron.Logger interface used by the job chain.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// jobFunc lets a closure satisfy cron.Job.
type jobFunc func()

func (f jobFunc) Run() { f() }

// recoverPanic keeps a panicking fire from tearing down the worker.
func recoverPanic(ctx context.Context, logger *slog.Logger, key string) {
	if r := recover(); r != nil {
		logger.ErrorContext(ctx, "Scheduled transmission panicked", "job_key", key, "error", fmt.Sprint(r))
	}
}
