package main

import (
	"context"
	"errors"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/devsim/pkg/cmd"
	"github.com/dukex/devsim/pkg/jobstore"
	"github.com/dukex/devsim/pkg/log"
	"github.com/dukex/devsim/pkg/scheduler"
)

func NewReconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Remove persisted jobs whose device or connection is gone, disabled or inactive",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "load",
				Usage: "Also create missing jobs for enabled devices",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("devsim")

			records, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to open record store: %w", err)
			}

			defer func() {
				if err := records.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			store, err := jobstore.New(ctx, logger, command.String("scheduler-persistence-url"))
			if err != nil {
				return fmt.Errorf("failed to open job store: %w", err)
			}

			sched := scheduler.New(store, records, logger, scheduler.Config{})

			runErr := reconcile(ctx, sched, command.Bool("load"))

			return errors.Join(runErr, sched.Shutdown(ctx))
		},
	}
}

func reconcile(ctx context.Context, sched *scheduler.Scheduler, load bool) error {
	if err := sched.Restore(ctx); err != nil {
		return err
	}

	removed, err := sched.Reconcile(ctx)
	fmt.Printf("Removed orphan jobs: %d\n", removed)

	if err != nil {
		return fmt.Errorf("reconciliation incomplete: %w", err)
	}

	if !load {
		return nil
	}

	created, err := sched.LoadSchedules(ctx)
	fmt.Printf("Created jobs: %d\n", created)

	return err
}
