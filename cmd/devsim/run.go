package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/devsim/pkg/clients"
	"github.com/dukex/devsim/pkg/cmd"
	"github.com/dukex/devsim/pkg/executor"
	"github.com/dukex/devsim/pkg/log"
	"github.com/dukex/devsim/pkg/otelhelper"
	"github.com/dukex/devsim/pkg/payload"
	"github.com/dukex/devsim/pkg/rules"
	"github.com/dukex/devsim/pkg/scheduler"
	"github.com/dukex/devsim/pkg/transmission"
)

const (
	defaultPort     = 9092
	shutdownTimeout = 30 * time.Second
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the scheduler and the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "max-active",
				Usage:   "Maximum number of devices transmitting automatically at once",
				Value:   rules.DefaultMaxActive,
				Sources: cli.EnvVars("MAX_ACTIVE_TRANSMISSIONS"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Maximum number of concurrent sends",
				Value:   scheduler.DefaultWorkers,
				Sources: cli.EnvVars("SCHEDULER_WORKERS"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Transmission event bus (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.BoolFlag{
				Name:  "include-reference",
				Usage: "Annotate every payload row with the device reference",
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("devsim")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if command.Bool("tracing") {
				shutdownTracer, err := otelhelper.Setup(ctx, "devsim")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
						logger.Error("Failed to shutdown tracer provider", "error", err)
					}
				}()
			}

			records, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to open record store: %w", err)
			}

			defer func() {
				if err := records.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			if err := subscribeEventLog(ctx, eventBus, logger); err != nil {
				return err
			}

			sched := scheduler.New(
				cmd.NewJobStore(ctx, logger, command.String("scheduler-persistence-url")),
				records,
				logger,
				scheduler.Config{Workers: command.Int("workers")},
			)

			exec := executor.New(
				records,
				records,
				clients.NewFactory(logger),
				payload.NewBuilder(command.Bool("include-reference")),
				sched,
				eventBus,
				logger,
			)

			if err := sched.Start(ctx, exec); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			manager := transmission.NewManager(
				records, sched, exec, rules.NewCapacity(command.Int("max-active")), eventBus, logger,
			)

			api := NewAPI(logger, records, sched, manager)
			app := api.App()

			serverErr := make(chan error, 1)

			go func() {
				serverErr <- api.Start(app, command.Int("port"))
			}()

			var serveErr error

			select {
			case <-ctx.Done():
				logger.Info("Shutting down")
			case serveErr = <-serverErr:
				logger.Error("API server stopped", "error", serveErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			if shutdownErr := app.ShutdownWithContext(shutdownCtx); shutdownErr != nil {
				logger.Error("Failed to shutdown API server", "error", shutdownErr)
			}

			return errors.Join(serveErr, sched.Shutdown(shutdownCtx))
		},
	}
}
