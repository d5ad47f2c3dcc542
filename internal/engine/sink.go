package engine

import (
	"context"
	"io"
)

// Sink is a destination a finished archive can be published to.
type Sink interface {
	Named
	Closer
	Write(ctx context.Context, path string, data io.Reader) error
}
