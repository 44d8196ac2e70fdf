// Command devsim runs the device transmission simulator.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "devsim",
		Usage:                 "Simulate device fleets transmitting to MQTT, HTTPS and Kafka endpoints",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Record store URL (file://path or postgres://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "scheduler-persistence-url",
				Usage:   "Job store URL (memory://, file://path, postgres://..., redis://...)",
				Value:   "file://./data/scheduler",
				Sources: cli.EnvVars("SCHEDULER_PERSISTENCE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewJobsCommand(),
			NewReconcileCommand(),
			NewSeedCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
