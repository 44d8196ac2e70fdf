package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/devsim/pkg/cmd"
	"github.com/dukex/devsim/pkg/config"
	"github.com/dukex/devsim/pkg/log"
)

func NewSeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load devices and connections from a fleet file into the record store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the fleet YAML file",
				Required: true,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("devsim")

			fleet, err := config.LoadFleet(command.String("file"))
			if err != nil {
				return err
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

			summary, err := fleet.Apply(ctx, records)
			if err != nil {
				return err
			}

			fmt.Printf("Seeded %d connections and %d devices\n", summary.Connections, summary.Devices)

			return nil
		},
	}
}
