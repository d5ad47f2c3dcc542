package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	v1 "github.com/infracollect/zipdrop/apis/v1"
	"github.com/infracollect/zipdrop/internal/builder"
	"github.com/infracollect/zipdrop/internal/download"
	"github.com/infracollect/zipdrop/internal/runner"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Serve the archive described by a job file, rebuilding it on every download",
	Flags: []cli.Flag{
		allowedEnvFlag(),
		&cli.StringFlag{
			Name:    "addr",
			Value:   ":8080",
			Sources: cli.EnvVars("ZIPDROP_ADDR"),
			Usage:   "Address to listen on",
		},
		&cli.DurationFlag{
			Name:  "shutdown-timeout",
			Value: 10 * time.Second,
			Usage: "How long to wait for in-flight downloads on shutdown",
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

		container := runner.BuildContainer(logger, afero.NewOsFs())

		handler, err := newDownloadHandler(logger, container, job)
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              command.String("addr"),
			Handler:           handler.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", zap.String("addr", server.Addr), zap.String("job_name", job.Metadata.Name))
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), command.Duration("shutdown-timeout"))
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}

		return nil
	},
}

// newDownloadHandler wires the download driver for job. The job's publish
// section is ignored: publishing belongs to build.
func newDownloadHandler(logger *zap.Logger, container do.Injector, job v1.BundleJob) (*download.Handler, error) {
	req, err := runner.BuildRequest(job)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	b, err := do.Invoke[*builder.Builder](container)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve builder: %w", err)
	}

	return download.NewHandler(logger.Named("download"), b, do.MustInvoke[afero.Fs](container), req), nil
}
