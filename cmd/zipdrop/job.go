package main

import (
	"context"
	"fmt"
	"io"
	"os"

	v1 "github.com/infracollect/zipdrop/apis/v1"
	"github.com/infracollect/zipdrop/internal/runner"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func allowedEnvFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "allowed-env",
		Usage: "Environment variables allowed in job configuration (can be repeated)",
	}
}

func jobArgument() cli.Argument {
	return &cli.StringArg{
		Name:      "job",
		UsageText: "The job file, or - to read it from stdin",
	}
}

// readJobFile reads the job from a file, or from stdin when filename is "-".
func readJobFile(filename string) ([]byte, error) {
	if filename == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filename)
}

// loadJob reads, validates and expands the job named by the command's job argument.
func loadJob(ctx context.Context, command *cli.Command) (v1.BundleJob, error) {
	logger := getLogger(ctx)

	jobFilename := command.StringArg("job")
	if jobFilename == "" {
		return v1.BundleJob{}, fmt.Errorf("no job file provided")
	}

	data, err := readJobFile(jobFilename)
	if err != nil {
		return v1.BundleJob{}, fmt.Errorf("failed to read job file '%s': %w", jobFilename, err)
	}

	job, err := runner.ParseBundleJob(data)
	if err != nil {
		return v1.BundleJob{}, formatValidationError(err)
	}

	variables, err := runner.BuildVariables(job, command.StringSlice("allowed-env"))
	if err != nil {
		return v1.BundleJob{}, fmt.Errorf("failed to build variables: %w", err)
	}

	if err := runner.ExpandTemplates(&job, variables); err != nil {
		return v1.BundleJob{}, fmt.Errorf("failed to expand job: %w", err)
	}

	logger.Debug("job loaded",
		zap.String("job_filename", jobFilename),
		zap.String("job_name", job.Metadata.Name),
		zap.Int("files", len(job.Spec.Files)),
	)

	return job, nil
}
