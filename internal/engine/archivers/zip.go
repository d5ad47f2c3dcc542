package archivers

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/infracollect/zipdrop/internal/engine"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// CompressionType defines supported ZIP compression methods.
type CompressionType string

const (
	CompressionDeflate CompressionType = "deflate"
	CompressionStore   CompressionType = "store"
	CompressionZstd    CompressionType = "zstd"
)

// ZipArchiver streams a ZIP archive to an io.Writer.
type ZipArchiver struct {
	zipWriter   *zip.Writer
	compression CompressionType
	method      uint16
	entries     int
	closed      bool
}

// ParseCompression validates a compression name and deflate level.
// An empty name defaults to "deflate"; a zero level selects the default level.
func ParseCompression(compression string, level int) (CompressionType, int, error) {
	ct := CompressionType(compression)
	if ct == "" {
		ct = CompressionDeflate
	}

	switch ct {
	case CompressionDeflate:
		if level == 0 {
			level = flate.DefaultCompression
		}
		if level != flate.DefaultCompression && (level < flate.BestSpeed || level > flate.BestCompression) {
			return "", 0, fmt.Errorf("invalid deflate level %d: must be between %d and %d", level, flate.BestSpeed, flate.BestCompression)
		}
	case CompressionStore, CompressionZstd:
		level = 0
	default:
		return "", 0, fmt.Errorf("unsupported compression type: %s", compression)
	}

	return ct, level, nil
}

// NewZipArchiver creates a new ZIP archiver writing to w.
// Supported compression types: "deflate", "store", "zstd".
// If compression is empty, defaults to "deflate". Level only applies to
// deflate; 0 selects the default level.
func NewZipArchiver(w io.Writer, compression string, level int) (engine.Archiver, error) {
	ct, level, err := ParseCompression(compression, level)
	if err != nil {
		return nil, err
	}

	zw := zip.NewWriter(w)
	var method uint16

	switch ct {
	case CompressionDeflate:
		method = zip.Deflate
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	case CompressionStore:
		method = zip.Store
	case CompressionZstd:
		method = zstd.ZipMethodWinZip
		zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
	}

	return &ZipArchiver{
		zipWriter:   zw,
		compression: ct,
		method:      method,
	}, nil
}

// AddFile adds a file to the ZIP archive.
func (a *ZipArchiver) AddFile(ctx context.Context, entry engine.Entry, data io.Reader) error {
	if a.closed {
		return fmt.Errorf("archiver is closed")
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	if entry.Name == "" {
		return fmt.Errorf("entry name is required")
	}

	header := &zip.FileHeader{
		Name:     filepath.ToSlash(entry.Name),
		Method:   a.method,
		Modified: entry.Modified,
	}
	if header.Modified.IsZero() {
		header.Modified = time.Now()
	}

	mode := entry.Mode.Perm()
	if mode == 0 {
		mode = 0o644
	}
	header.SetMode(mode)

	w, err := a.zipWriter.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to write zip header for %s: %w", entry.Name, err)
	}

	if _, err := io.Copy(w, data); err != nil {
		return fmt.Errorf("failed to write zip content for %s: %w", entry.Name, err)
	}

	a.entries++
	return nil
}

// Close writes the central directory. The underlying writer stays open.
func (a *ZipArchiver) Close() error {
	if a.closed {
		return fmt.Errorf("archiver already closed")
	}
	a.closed = true

	if err := a.zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}

	return nil
}

// Entries returns the number of files added so far.
func (a *ZipArchiver) Entries() int {
	return a.entries
}

// Extension returns the file extension for this archive type.
func (a *ZipArchiver) Extension() string {
	return ".zip"
}
