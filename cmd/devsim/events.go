package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/devsim/pkg/eventbus"
	"github.com/dukex/devsim/pkg/events"
)

// subscribeEventLog mirrors transmission core events into the service log.
func subscribeEventLog(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger) error {
	logger = logger.With("component", "events")

	handlers := map[events.EventType]eventbus.EventHandler{
		events.TransmissionRecordedEvent: func(ctx context.Context, event any) error {
			e, ok := event.(*events.TransmissionRecorded)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}

			logger.DebugContext(ctx, "Transmission recorded",
				"device_id", e.DeviceID,
				"connection_id", e.Entry.ConnectionID,
				"status", e.Entry.Status,
				"manual", e.Manual)

			return nil
		},
		events.DeviceStateChangedEvent: func(ctx context.Context, event any) error {
			e, ok := event.(*events.DeviceStateChanged)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}

			logger.InfoContext(ctx, "Device state changed",
				"device_id", e.DeviceID, "from", e.From, "to", e.To, "action", e.Action)

			return nil
		},
		events.DeviceCompletedEvent: func(ctx context.Context, event any) error {
			e, ok := event.(*events.DeviceCompleted)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}

			logger.InfoContext(ctx, "Device completed its dataset",
				"device_id", e.DeviceID, "auto_paused", e.AutoPaused)

			return nil
		},
	}

	for eventType, handler := range handlers {
		if err := bus.Handle(eventType, handler); err != nil {
			return fmt.Errorf("failed to register %s handler: %w", eventType, err)
		}
	}

	if err := bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	return nil
}
