package runner

import (
	"context"
	"fmt"
	"io"

	v1 "github.com/infracollect/zipdrop/apis/v1"
	"github.com/infracollect/zipdrop/internal/engine"
	"github.com/infracollect/zipdrop/internal/engine/sinks"
	"go.uber.org/zap"
)

const (
	stdoutSinkKind     = "stdout"
	filesystemSinkKind = "filesystem"
	s3SinkKind         = "s3"
)

// newSinkRegistry registers every publish sink kind a job can reference.
func newSinkRegistry(logger *zap.Logger, stdout io.Writer) *engine.Registry {
	registry := engine.NewRegistry(logger)

	registry.RegisterSink(stdoutSinkKind, engine.NewSinkFactory(stdoutSinkKind,
		func(_ context.Context, _ *zap.Logger, _ *v1.StdoutSinkSpec) (engine.Sink, error) {
			return sinks.NewStreamSink(stdout), nil
		}))

	registry.RegisterSink(filesystemSinkKind, engine.NewSinkFactory(filesystemSinkKind,
		func(_ context.Context, logger *zap.Logger, spec *v1.FilesystemSinkSpec) (engine.Sink, error) {
			logger.Debug("creating filesystem sink", zap.String("path", spec.Path))
			return sinks.NewFilesystemSinkFromPath(spec.Path)
		}))

	registry.RegisterSink(s3SinkKind, engine.NewSinkFactory(s3SinkKind, buildS3Sink))

	return registry
}

// buildSink creates the publish sink from the job spec.
//
// Default behavior:
//   - No publish spec: no sink, the archive stays at its destination
//   - Stdout: archive bytes are copied to stdout
//   - Filesystem: archive is copied into a directory
//   - S3: archive is uploaded to a bucket
func buildSink(ctx context.Context, registry *engine.Registry, publish *v1.PublishSpec) (engine.Sink, error) {
	if publish == nil {
		return nil, nil
	}

	var (
		kind       string
		spec       any
		configured int
	)
	if publish.Stdout != nil {
		kind, spec = stdoutSinkKind, publish.Stdout
		configured++
	}
	if publish.Filesystem != nil {
		kind, spec = filesystemSinkKind, publish.Filesystem
		configured++
	}
	if publish.S3 != nil {
		kind, spec = s3SinkKind, publish.S3
		configured++
	}
	if configured != 1 {
		return nil, fmt.Errorf("invalid publish configuration: exactly one sink must be set, got %d", configured)
	}

	return registry.CreateSink(ctx, kind, spec)
}

func buildS3Sink(ctx context.Context, logger *zap.Logger, spec *v1.S3SinkSpec) (engine.Sink, error) {
	cfg := sinks.S3Config{
		Bucket:         spec.Bucket,
		ForcePathStyle: spec.ForcePathStyle,
	}

	if spec.Region != nil {
		cfg.Region = *spec.Region
	}

	if spec.Endpoint != nil {
		cfg.Endpoint = *spec.Endpoint
	}

	if spec.Prefix != nil {
		cfg.Prefix = *spec.Prefix
	}

	if spec.Credentials != nil {
		cfg.AccessKeyID = spec.Credentials.AccessKeyID
		cfg.SecretAccessKey = spec.Credentials.SecretAccessKey
	}

	logger.Debug("creating s3 sink", zap.String("bucket", cfg.Bucket), zap.String("prefix", cfg.Prefix))
	return sinks.NewS3Sink(ctx, cfg)
}
