package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	v1 "github.com/infracollect/zipdrop/apis/v1"
	"github.com/infracollect/zipdrop/internal/builder"
	"github.com/infracollect/zipdrop/internal/engine"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type Runner struct {
	logger  *zap.Logger
	job     v1.BundleJob
	fs      afero.Fs
	builder *builder.Builder
	request builder.Request
	sink    engine.Sink
	stdout  io.Writer
}

type Option func(*Runner)

// WithSink replaces the publish sink configured in the job.
func WithSink(sink engine.Sink) Option {
	return func(r *Runner) {
		r.sink = sink
	}
}

// WithStdout sets the writer used by the stdout publish sink.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) {
		r.stdout = w
	}
}

var (
	defaultValidator = validator.New(validator.WithRequiredStructEnabled())
)

// ParseBundleJob parses a YAML or JSON job file and validates it against the
// validate tags of v1.BundleJob.
func ParseBundleJob(data []byte) (v1.BundleJob, error) {
	var job v1.BundleJob
	if err := yaml.Unmarshal(data, &job); err != nil {
		return v1.BundleJob{}, fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	if err := defaultValidator.Struct(job); err != nil {
		return v1.BundleJob{}, fmt.Errorf("failed to validate job: %w", err)
	}

	return job, nil
}

// New creates a runner for an already expanded job, resolving its
// dependencies from the injector.
func New(ctx context.Context, i do.Injector, job v1.BundleJob, opts ...Option) (*Runner, error) {
	logger := do.MustInvoke[*zap.Logger](i).Named("runner")
	logger.Info("creating runner", zap.String("job_name", job.Metadata.Name))

	b, err := do.Invoke[*builder.Builder](i)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve builder: %w", err)
	}

	req, err := BuildRequest(job)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	r := &Runner{
		logger:  logger,
		job:     job,
		fs:      do.MustInvoke[afero.Fs](i),
		builder: b,
		request: req,
		stdout:  os.Stdout,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.sink == nil {
		registry := newSinkRegistry(logger.Named("sinks"), r.stdout)
		sink, err := buildSink(ctx, registry, job.Spec.Publish)
		if err != nil {
			return nil, fmt.Errorf("failed to build sink: %w", err)
		}
		r.sink = sink
	}

	return r, nil
}

// Run builds the archive and publishes it when a sink is configured.
func (r *Runner) Run(ctx context.Context) (builder.Result, error) {
	result, err := r.builder.Build(ctx, r.request)
	if err != nil {
		return result, fmt.Errorf("failed to build archive: %w", err)
	}

	if r.sink == nil {
		return result, nil
	}

	if err := r.publish(ctx, result.Destination); err != nil {
		return result, fmt.Errorf("failed to publish archive: %w", err)
	}

	return result, nil
}

func (r *Runner) publish(ctx context.Context, destination string) (err error) {
	f, err := r.fs.Open(destination)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", destination, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	name := filepath.Base(destination)
	if err := r.sink.Write(ctx, name, f); err != nil {
		return fmt.Errorf("failed to write archive to %s: %w", r.sink.Name(), err)
	}

	if err := r.sink.Close(ctx); err != nil {
		return fmt.Errorf("failed to close sink %s: %w", r.sink.Name(), err)
	}

	r.logger.Info("archive published", zap.String("sink", r.sink.Name()), zap.String("name", name))
	return nil
}
