package engine

import (
	"context"
	"io"
	"io/fs"
	"time"
)

// Archiver collects files into an archive written to an underlying writer.
type Archiver interface {
	// AddFile adds a file to the archive under entry.Name with the given data.
	AddFile(ctx context.Context, entry Entry, data io.Reader) error

	// Close writes the archive trailer. The underlying writer is not closed.
	Close() error

	// Entries returns the number of files added so far.
	Entries() int

	// Extension returns the file extension for this archive type (e.g., ".zip").
	Extension() string
}

// Entry describes a single file stored in an archive.
type Entry struct {
	// Name is the path of the entry inside the archive.
	Name string
	// Modified is the entry timestamp. Zero means now.
	Modified time.Time
	// Mode is the entry permission bits. Zero means 0644.
	Mode fs.FileMode
}
