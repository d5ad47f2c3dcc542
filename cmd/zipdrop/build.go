package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/infracollect/zipdrop/internal/builder"
	"github.com/infracollect/zipdrop/internal/runner"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
)

var buildCommand = &cli.Command{
	Name:  "build",
	Usage: "Build the archive described by a job file and publish it",
	Flags: []cli.Flag{
		allowedEnvFlag(),
		&cli.BoolFlag{
			Name:  "overwrite",
			Usage: "Replace an existing destination archive regardless of the job setting",
		},
	},
	Arguments: []cli.Argument{
		jobArgument(),
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		job, err := loadJob(ctx, command)
		if err != nil {
			return err
		}

		if command.Bool("overwrite") {
			job.Spec.Destination.Overwrite = true
		}

		container := runner.BuildContainer(logger, afero.NewOsFs())

		r, err := runner.New(ctx, container, job)
		if err != nil {
			return fmt.Errorf("failed to create runner: %w", err)
		}

		result, err := r.Run(ctx)
		if err != nil {
			return fmt.Errorf("failed to run job '%s': %w", job.Metadata.Name, err)
		}

		if isInteractive(ctx) {
			printSummary(summaryOutput, result)
		}

		return nil
	},
}

func printSummary(w io.Writer, result builder.Result) {
	fmt.Fprintf(w, "✓ Wrote %s (%d file(s), %s)\n",
		result.Destination, len(result.Entries), humanize.Bytes(uint64(result.Size)))
	for _, entry := range result.Entries {
		fmt.Fprintf(w, "  + %s (%s)\n", entry.Name, humanize.Bytes(uint64(entry.Size)))
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(w, "  - %s (skipped)\n", skipped)
	}
}

