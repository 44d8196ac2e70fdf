package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/devsim/pkg/jobstore"
	"github.com/dukex/devsim/pkg/log"
)

func NewJobsCommand() *cli.Command {
	return &cli.Command{
		Name:    "jobs",
		Aliases: []string{"ls"},
		Usage:   "List the persisted transmission jobs",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("devsim")

			store, err := jobstore.New(ctx, logger, command.String("scheduler-persistence-url"))
			if err != nil {
				return fmt.Errorf("failed to open job store: %w", err)
			}

			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("Failed to close job store", "error", err)
				}
			}()

			jobs, err := store.Jobs(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch jobs: %w", err)
			}

			sort.Slice(jobs, func(i, j int) bool { return jobs[i].Key < jobs[j].Key })

			fmt.Println("Transmission jobs:")
			fmt.Println("==================")

			paused := 0

			for _, job := range jobs {
				status := "active"
				if job.Paused {
					status = "paused"
					paused++
				}

				fmt.Printf("\nJob: %s (%s)\n", job.Key, status)
				fmt.Printf("  Device:     %s\n", job.DeviceID)
				fmt.Printf("  Connection: %s\n", job.ConnectionID)
				fmt.Printf("  Interval:   %s\n", job.Interval())
				fmt.Printf("  Next fire:  %s\n", job.NextFireTime.Format(time.RFC3339))
			}

			fmt.Printf("\nTotal jobs: %d (%d paused)\n", len(jobs), paused)

			return nil
		},
	}
}
