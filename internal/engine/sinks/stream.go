package sinks

import (
	"context"
	"fmt"
	"io"

	"github.com/infracollect/zipdrop/internal/engine"
)

// StreamSink copies archive bytes to a writer such as stdout. The path is ignored.
type StreamSink struct {
	w io.Writer
}

func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: w}
}

var _ engine.Sink = (*StreamSink)(nil)

func (s *StreamSink) Name() string {
	return "stream"
}

func (s *StreamSink) Kind() string {
	return "stream"
}

func (s *StreamSink) Write(ctx context.Context, path string, data io.Reader) error {
	if _, err := io.Copy(s.w, data); err != nil {
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	return nil
}

func (s *StreamSink) Close(ctx context.Context) error {
	return nil
}
