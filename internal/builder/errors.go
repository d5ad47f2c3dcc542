package builder

import "errors"

var (
	// ErrInvalidDestination is returned when no destination path is given.
	ErrInvalidDestination = errors.New("destination path is required")

	// ErrDestinationExists is returned when the destination exists and overwrite is disabled.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrNoValidFiles is returned when none of the candidates survived filtering.
	ErrNoValidFiles = errors.New("no valid files to archive")

	// ErrOpenDestination is returned when the destination cannot be opened for writing.
	ErrOpenDestination = errors.New("failed to open destination")

	// ErrDestinationMissing is returned when no file exists at the destination after closing.
	ErrDestinationMissing = errors.New("destination missing after close")
)
