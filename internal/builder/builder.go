// Package builder bundles existing files into a ZIP archive at a destination path.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/infracollect/zipdrop/internal/engine"
	"github.com/infracollect/zipdrop/internal/engine/archivers"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Candidate is a source file and the name it is stored under in the archive.
type Candidate struct {
	Path string
	// Name is the entry name. When empty the raw Path is used verbatim.
	Name string
}

// EntryName returns the name used for the archive entry.
func (c Candidate) EntryName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Path
}

// CandidatesFromPaths returns candidates stored under their own path.
func CandidatesFromPaths(paths []string) []Candidate {
	return lo.Map(paths, func(p string, _ int) Candidate {
		return Candidate{Path: p}
	})
}

// Request describes a single archive build.
type Request struct {
	Candidates  []Candidate
	Destination string
	Overwrite   bool
	Compression string
	Level       int
	Filter      *Filter
}

// AddedEntry is a file that was written to the archive.
type AddedEntry struct {
	Name   string
	Source string
	Size   int64
}

// Result describes a finished archive.
type Result struct {
	Destination string
	Entries     []AddedEntry
	// Skipped holds candidate paths that were missing, not regular files,
	// rejected by the filter or shadowed by a later candidate with the same name.
	Skipped []string
	// Size is the archive size in bytes.
	Size int64
}

// EntryNames returns the names of all entries in archive order.
func (r Result) EntryNames() []string {
	return lo.Map(r.Entries, func(e AddedEntry, _ int) string {
		return e.Name
	})
}

type Builder struct {
	logger *zap.Logger
	fs     afero.Fs
}

func New(logger *zap.Logger, fs afero.Fs) *Builder {
	return &Builder{
		logger: logger,
		fs:     fs,
	}
}

type survivor struct {
	Candidate
	info os.FileInfo
}

// Build creates the archive described by req. It fails without touching the
// filesystem when the destination exists and overwrite is disabled, and it
// never creates an empty archive. Failures can be told apart with errors.Is
// against the package's sentinel errors.
func (b *Builder) Build(ctx context.Context, req Request) (Result, error) {
	if req.Destination == "" {
		return Result{}, ErrInvalidDestination
	}

	logger := b.logger.With(zap.String("destination", req.Destination), zap.Bool("overwrite", req.Overwrite))

	exists, err := afero.Exists(b.fs, req.Destination)
	if err != nil {
		return Result{}, fmt.Errorf("failed to check destination %s: %w", req.Destination, err)
	}
	if exists && !req.Overwrite {
		logger.Debug("destination exists, refusing to overwrite")
		return Result{}, fmt.Errorf("%w: %s", ErrDestinationExists, req.Destination)
	}

	valid, skipped, err := b.selectCandidates(req)
	if err != nil {
		return Result{}, err
	}
	if len(valid) == 0 {
		logger.Info("no valid files to archive", zap.Int("candidates", len(req.Candidates)))
		return Result{Destination: req.Destination, Skipped: skipped}, ErrNoValidFiles
	}

	if _, _, err := archivers.ParseCompression(req.Compression, req.Level); err != nil {
		return Result{}, err
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if req.Overwrite {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := b.fs.OpenFile(req.Destination, flag, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return Result{}, fmt.Errorf("%w: %s", ErrDestinationExists, req.Destination)
		}
		return Result{}, fmt.Errorf("%w %s: %w", ErrOpenDestination, req.Destination, err)
	}

	entries, err := b.writeArchive(ctx, f, req, valid)
	if err = errors.Join(err, f.Close()); err != nil {
		if rmErr := b.fs.Remove(req.Destination); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove partial archive", zap.Error(rmErr))
		}
		return Result{}, err
	}

	info, err := b.fs.Stat(req.Destination)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, fmt.Errorf("%w: %s", ErrDestinationMissing, req.Destination)
		}
		return Result{}, fmt.Errorf("failed to stat destination %s: %w", req.Destination, err)
	}

	logger.Info("archive built",
		zap.Int("entries", len(entries)),
		zap.Int("skipped", len(skipped)),
		zap.String("size", humanize.Bytes(uint64(info.Size()))),
	)

	return Result{
		Destination: req.Destination,
		Entries:     entries,
		Skipped:     skipped,
		Size:        info.Size(),
	}, nil
}

// selectCandidates keeps the candidates that currently exist as regular files
// and pass the filter. Later candidates replace earlier ones with the same
// entry name, keeping the earlier position.
func (b *Builder) selectCandidates(req Request) ([]survivor, []string, error) {
	var valid []survivor
	var skipped []string
	byName := make(map[string]int)

	for _, c := range req.Candidates {
		if c.Path == "" {
			continue
		}

		info, err := b.fs.Stat(c.Path)
		if err != nil {
			b.logger.Debug("skipping missing file", zap.String("path", c.Path), zap.Error(err))
			skipped = append(skipped, c.Path)
			continue
		}
		if !info.Mode().IsRegular() {
			b.logger.Debug("skipping non-regular file", zap.String("path", c.Path), zap.Stringer("mode", info.Mode()))
			skipped = append(skipped, c.Path)
			continue
		}

		if req.Filter != nil {
			keep, err := req.Filter.Match(c, info.Size())
			if err != nil {
				return nil, nil, err
			}
			if !keep {
				b.logger.Debug("skipping filtered file", zap.String("path", c.Path), zap.Stringer("filter", req.Filter))
				skipped = append(skipped, c.Path)
				continue
			}
		}

		s := survivor{Candidate: c, info: info}
		if i, ok := byName[c.EntryName()]; ok {
			b.logger.Debug("replacing duplicate entry", zap.String("entry_name", c.EntryName()), zap.String("replaced", valid[i].Path))
			skipped = append(skipped, valid[i].Path)
			valid[i] = s
			continue
		}
		byName[c.EntryName()] = len(valid)
		valid = append(valid, s)
	}

	return valid, skipped, nil
}

func (b *Builder) writeArchive(ctx context.Context, w io.Writer, req Request, valid []survivor) ([]AddedEntry, error) {
	archiver, err := archivers.NewZipArchiver(w, req.Compression, req.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip archiver: %w", err)
	}

	if ext := filepath.Ext(req.Destination); !strings.EqualFold(ext, archiver.Extension()) {
		b.logger.Warn("destination extension does not match archive type",
			zap.String("destination", req.Destination),
			zap.String("extension", ext),
			zap.String("expected", archiver.Extension()),
		)
	}

	entries := make([]AddedEntry, 0, len(valid))
	for _, s := range valid {
		entry, err := b.addFile(ctx, archiver, s)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := archiver.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	b.logger.Debug("archive finalized", zap.Int("entries", archiver.Entries()))

	return entries, nil
}

func (b *Builder) addFile(ctx context.Context, archiver engine.Archiver, s survivor) (AddedEntry, error) {
	src, err := b.fs.Open(s.Path)
	if err != nil {
		return AddedEntry{}, fmt.Errorf("failed to open %s: %w", s.Path, err)
	}
	defer src.Close()

	counter := &countingReader{r: src}
	err = archiver.AddFile(ctx, engine.Entry{
		Name:     s.EntryName(),
		Modified: s.info.ModTime(),
		Mode:     s.info.Mode(),
	}, counter)
	if err != nil {
		return AddedEntry{}, fmt.Errorf("failed to add %s to archive: %w", s.Path, err)
	}

	b.logger.Debug("added file", zap.String("path", s.Path), zap.String("entry_name", s.EntryName()), zap.Int64("bytes", counter.n))

	return AddedEntry{
		Name:   s.EntryName(),
		Source: s.Path,
		Size:   counter.n,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
