// Package executor runs a single transmission: build the payload, send it,
// record the outcome and advance the device.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/devsim/pkg/clients"
	"github.com/dukex/devsim/pkg/eventbus"
	"github.com/dukex/devsim/pkg/events"
	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/otelhelper"
	"github.com/dukex/devsim/pkg/payload"
	"github.com/dukex/devsim/pkg/persistence"
	"github.com/dukex/devsim/pkg/rules"
)

// Trigger says who asked for a transmission.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

const (
	DetailNoData              = "No data to send"
	DetailUnsupportedProtocol = "Unsupported connection type"
)

// ErrDeviceDisabled is returned for scheduled transmissions of a device that
// was disabled while the fire waited for its turn.
var ErrDeviceDisabled = errors.New("device is disabled")

// Outcome is the result of one execution.
type Outcome struct {
	Success    bool
	Detail     string
	Entry      *models.TransmissionLogEntry
	Completion rules.CompletionResult
}

// Executor is safe for concurrent use. Executions for the same device are
// serialized so log order matches invocation order and cursor updates never race.
type Executor struct {
	store      persistence.DeviceStore
	txLog      persistence.TransmissionLog
	clients    clients.Resolver
	builder    *payload.Builder
	completion *rules.CompletionPolicy
	publisher  eventbus.EventPublisher
	logger     *slog.Logger
	tracer     trace.Tracer
	locks      *keyedMutex
	now        func() time.Time
}

// New creates an executor. stopper is usually the scheduler and may be nil in tests.
func New(
	store persistence.DeviceStore,
	txLog persistence.TransmissionLog,
	resolver clients.Resolver,
	builder *payload.Builder,
	stopper rules.JobStopper,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Executor {
	if publisher == nil {
		publisher = eventbus.NopPublisher{}
	}

	return &Executor{
		store:      store,
		txLog:      txLog,
		clients:    resolver,
		builder:    builder,
		completion: &rules.CompletionPolicy{Store: store, Stopper: stopper},
		publisher:  publisher,
		logger:     logger.With("module", "executor"),
		tracer:     otelhelper.Tracer("devsim/executor"),
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// LockDevice blocks until no transmission of deviceID runs and keeps new ones
// out until the returned function is called. State changes that rewrite the
// cursor hold it so an in-flight send cannot undo them.
func (e *Executor) LockDevice(deviceID string) func() {
	return e.locks.Lock(deviceID)
}

// Execute performs one transmission. Send failures are not errors: they are
// recorded as FAILED entries. An error means the attempt could not be
// recorded at all (missing records, store failure).
func (e *Executor) Execute(ctx context.Context, deviceID, connectionID string, trigger Trigger) (*Outcome, error) {
	unlock := e.locks.Lock(deviceID)
	defer unlock()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "transmission.execute",
		attribute.String(otelhelper.DeviceIDKey, deviceID),
		attribute.String(otelhelper.ConnectionIDKey, connectionID),
		attribute.String(otelhelper.TriggerKey, string(trigger)),
	)
	defer span.End()

	device, err := e.store.DeviceByID(ctx, deviceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if trigger == TriggerScheduled && !device.Enabled {
		otelhelper.SetFailure(span, ErrDeviceDisabled.Error())

		return nil, fmt.Errorf("%w: %s", ErrDeviceDisabled, deviceID)
	}

	conn, err := e.store.ConnectionByID(ctx, connectionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ProtocolKey, string(conn.Protocol)))

	logger := e.logger.With("device_id", deviceID, "connection_id", connectionID, "trigger", trigger)
	kind := models.KindFor(device.Category)

	p := e.builder.Build(device)
	if p == nil {
		outcome, err := e.record(ctx, device, connectionID, kind, false, nil, DetailNoData, trigger)
		if err != nil {
			return nil, err
		}

		if device.IsSequential() {
			outcome.Completion, err = e.completion.Apply(ctx, device)
			if err != nil {
				logger.ErrorContext(ctx, "Completion policy failed", "error", err)
			}

			e.publishCompletion(ctx, device, outcome.Completion)
		}

		otelhelper.SetFailure(span, DetailNoData)
		logger.InfoContext(ctx, "Nothing to send", "cursor", device.Cursor, "rows", device.DatasetLen())

		return outcome, nil
	}

	body, err := p.JSON()
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	client, err := e.clients.ClientFor(conn)
	if err != nil {
		logger.WarnContext(ctx, "No client for connection", "protocol", conn.Protocol, "error", err)
		otelhelper.SetFailure(span, DetailUnsupportedProtocol)

		return e.record(ctx, device, connectionID, kind, false, body, fmt.Sprintf("%s: %v", DetailUnsupportedProtocol, err), trigger)
	}

	ok, detail := e.send(ctx, client, body)

	update := persistence.DeviceUpdate{}
	sentAt := e.now().UTC()
	update.LastSentAt = &sentAt

	if ok && device.IsSequential() {
		cursor := device.Cursor + 1
		update.Cursor = &cursor
	}

	outcome, err := e.record(ctx, device, connectionID, kind, ok, body, detail, trigger)
	if err != nil {
		return nil, err
	}

	if err := e.store.UpdateDeviceFields(ctx, device.ID, update); err != nil {
		otelhelper.SetError(span, err)

		return outcome, fmt.Errorf("failed to update device after send: %w", err)
	}

	update.Apply(device)

	if ok {
		outcome.Completion, err = e.completion.Apply(ctx, device)
		if err != nil {
			return outcome, err
		}

		e.publishCompletion(ctx, device, outcome.Completion)
	} else {
		otelhelper.SetFailure(span, detail)
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(outcome.Entry.Status)))
	logger.DebugContext(ctx, "Transmission finished", "success", ok, "cursor", device.Cursor)

	return outcome, nil
}

// send shields the caller from panicking clients.
func (e *Executor) send(ctx context.Context, client clients.Client, body []byte) (ok bool, detail string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "Protocol client panicked", "panic", r)

			ok, detail = false, fmt.Sprintf("client panic: %v", r)
		}
	}()

	return client.Send(ctx, body)
}

func (e *Executor) record(
	ctx context.Context,
	device *models.Device,
	connectionID string,
	kind models.TransmissionKind,
	ok bool,
	body []byte,
	detail string,
	trigger Trigger,
) (*Outcome, error) {
	entry := models.NewTransmissionLogEntry(device.ID, connectionID, kind, ok, json.RawMessage(body), detail, e.now())

	if err := e.txLog.AppendTransmission(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append transmission log: %w", err)
	}

	if err := e.publisher.Publish(ctx, device.ID, events.NewTransmissionRecorded(*entry, trigger == TriggerManual)); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish transmission event", "device_id", device.ID, "error", err)
	}

	return &Outcome{Success: ok, Detail: detail, Entry: entry}, nil
}

func (e *Executor) publishCompletion(ctx context.Context, device *models.Device, result rules.CompletionResult) {
	if !result.Completed {
		return
	}

	e.logger.InfoContext(ctx, "Sequential device completed its dataset",
		"device_id", device.ID, "auto_paused", result.AutoPaused, "jobs_stopped", result.JobsStopped)

	event := events.NewDeviceCompleted(device.ID, device.DatasetLen(), result.AutoPaused, result.JobsStopped)
	if err := e.publisher.Publish(ctx, device.ID, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish completion event", "device_id", device.ID, "error", err)
	}
}
