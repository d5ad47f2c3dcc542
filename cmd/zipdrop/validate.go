package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/infracollect/zipdrop/internal/runner"
	"github.com/urfave/cli/v3"
)

var validateCommand = &cli.Command{
	Name:  "validate",
	Usage: "Validate a job file",
	Flags: []cli.Flag{
		allowedEnvFlag(),
	},
	Arguments: []cli.Argument{
		jobArgument(),
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		job, err := loadJob(ctx, command)
		if err != nil {
			return err
		}

		// compiles the filter and checks compression settings
		if _, err := runner.BuildRequest(job); err != nil {
			return fmt.Errorf("job '%s' is invalid: %w", job.Metadata.Name, err)
		}

		fmt.Fprintf(command.Root().Writer, "✓ Job '%s' is valid\n", job.Metadata.Name)
		return nil
	},
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "job file has %d validation error(s):", len(validationErrs))
	for _, fe := range validationErrs {
		fmt.Fprintf(&sb, "\n  • %s: failed '%s' validation", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			fmt.Fprintf(&sb, " (param: %s)", fe.Param())
		}
	}
	return errors.New(sb.String())
}
