// Package download serves freshly built archives as HTTP attachments.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/infracollect/zipdrop/internal/builder"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ArchiveBuilder builds the archive served by the handler.
type ArchiveBuilder interface {
	Build(ctx context.Context, req builder.Request) (builder.Result, error)
}

type Handler struct {
	logger  *zap.Logger
	builder ArchiveBuilder
	fs      afero.Fs
	request builder.Request

	// mu serializes builds, which all target the same destination.
	mu sync.Mutex
}

func NewHandler(logger *zap.Logger, b ArchiveBuilder, fs afero.Fs, req builder.Request) *Handler {
	logger.Info("download handler created", zap.String("destination", req.Destination))
	return &Handler{
		logger:  logger,
		builder: b,
		fs:      fs,
		request: req,
	}
}

// download builds the archive and streams it back as an attachment. A failed
// build never falls through to reading whatever is left at the destination.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	log := loggerFromContext(r.Context(), h.logger)

	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.builder.Build(r.Context(), h.request)
	if err != nil {
		status := statusFromBuildError(err)
		log.Warn("archive build failed", zap.Int("status", status), zap.Error(err))
		http.Error(w, errorMessage(err, status), status)
		return
	}

	f, err := h.fs.Open(result.Destination)
	if err != nil {
		log.Error("failed to open archive", zap.String("destination", result.Destination), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Error("failed to stat archive", zap.String("destination", result.Destination), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", contentDisposition(result.Destination))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, f)
	if err != nil {
		// headers are already out, the client sees a short body
		log.Warn("failed to stream archive", zap.Int64("written", n), zap.Error(err))
		return
	}

	log.Debug("archive served", zap.Int64("bytes", n), zap.Int("entries", len(result.Entries)))
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok\n")
}

var errorStatusMap = map[error]int{
	builder.ErrNoValidFiles:       http.StatusNotFound,
	builder.ErrDestinationExists:  http.StatusConflict,
	builder.ErrInvalidDestination: http.StatusInternalServerError,
	builder.ErrOpenDestination:    http.StatusInternalServerError,
	builder.ErrDestinationMissing: http.StatusInternalServerError,

	// client went away; nobody reads this status
	context.Canceled: http.StatusServiceUnavailable,
}

func statusFromBuildError(err error) int {
	for target, status := range errorStatusMap {
		if errors.Is(err, target) {
			return status
		}
	}
	return http.StatusInternalServerError
}

// errorMessage keeps server paths out of client-visible errors.
func errorMessage(err error, status int) string {
	for _, sentinel := range []error{builder.ErrNoValidFiles, builder.ErrDestinationExists} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return http.StatusText(status)
}

var dispositionReplacer = strings.NewReplacer(`"`, "", `\`, "", "\r", "", "\n", "")

// contentDisposition returns an attachment header for the archive's base name.
func contentDisposition(destination string) string {
	name := dispositionReplacer.Replace(filepath.Base(destination))
	return fmt.Sprintf(`attachment; filename="%s"`, name)
}
