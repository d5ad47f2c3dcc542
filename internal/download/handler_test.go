package download

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/infracollect/zipdrop/internal/builder"
)

type stubBuilder struct {
	mu     sync.Mutex
	result builder.Result
	err    error
	calls  int
}

func (s *stubBuilder) Build(_ context.Context, _ builder.Request) (builder.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

func newTestServer(t *testing.T, b ArchiveBuilder, fs afero.Fs, req builder.Request) *httptest.Server {
	t.Helper()
	h := NewHandler(zap.NewNop(), b, fs, req)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHandler_Download(t *testing.T) {
	t.Run("serves a freshly built archive", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/data/images.rar", []byte("rar bytes"), 0o644))
		require.NoError(t, afero.WriteFile(fs, "/data/readme.txt", []byte("hello"), 0o644))

		req := builder.Request{
			Candidates: []builder.Candidate{
				{Path: "/data/images.rar", Name: "images.rar"},
				{Path: "/data/readme.txt", Name: "readme.txt"},
			},
			Destination: "/out/Tamj-Thankyou.zip",
			Overwrite:   true,
		}
		srv := newTestServer(t, builder.New(zap.NewNop(), fs), fs, req)

		resp, body := get(t, srv.URL+"/download")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
		assert.Equal(t, `attachment; filename="Tamj-Thankyou.zip"`, resp.Header.Get("Content-Disposition"))
		assert.Equal(t, fmt.Sprint(len(body)), resp.Header.Get("Content-Length"))

		onDisk, err := afero.ReadFile(fs, "/out/Tamj-Thankyou.zip")
		require.NoError(t, err)
		assert.Equal(t, onDisk, body)

		zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
		require.NoError(t, err)
		names := make([]string, 0, len(zr.File))
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		assert.Equal(t, []string{"images.rar", "readme.txt"}, names)
	})

	t.Run("repeated requests rebuild with overwrite", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "a.txt", []byte("first"), 0o644))

		req := builder.Request{
			Candidates:  []builder.Candidate{{Path: "a.txt"}},
			Destination: "out.zip",
			Overwrite:   true,
		}
		srv := newTestServer(t, builder.New(zap.NewNop(), fs), fs, req)

		resp, first := get(t, srv.URL+"/download")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		require.NoError(t, afero.WriteFile(fs, "a.txt", []byte("second and longer"), 0o644))
		resp, second := get(t, srv.URL+"/download")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEqual(t, first, second)
	})

	t.Run("existing destination without overwrite is a conflict", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "a.txt", []byte("alpha"), 0o644))
		require.NoError(t, afero.WriteFile(fs, "out.zip", []byte("stale archive"), 0o644))

		req := builder.Request{
			Candidates:  []builder.Candidate{{Path: "a.txt"}},
			Destination: "out.zip",
		}
		srv := newTestServer(t, builder.New(zap.NewNop(), fs), fs, req)

		resp, body := get(t, srv.URL+"/download")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.NotContains(t, string(body), "stale archive")
		assert.Empty(t, resp.Header.Get("Content-Disposition"))
	})

	t.Run("no valid files is not found", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		req := builder.Request{
			Candidates:  []builder.Candidate{{Path: "missing.txt"}},
			Destination: "out.zip",
			Overwrite:   true,
		}
		srv := newTestServer(t, builder.New(zap.NewNop(), fs), fs, req)

		resp, body := get(t, srv.URL+"/download")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, string(body), builder.ErrNoValidFiles.Error())

		exists, err := afero.Exists(fs, "out.zip")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "invalid destination",
			err:        builder.ErrInvalidDestination,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "destination cannot be opened",
			err:        fmt.Errorf("%w /root/out.zip: permission denied", builder.ErrOpenDestination),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "destination missing after build",
			err:        builder.ErrDestinationMissing,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "wrapped conflict",
			err:        fmt.Errorf("refusing to write: %w", builder.ErrDestinationExists),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "client cancelled",
			err:        fmt.Errorf("failed to add a.txt to archive: %w", context.Canceled),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "unknown error",
			err:        errors.New("disk on fire"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			// a leftover archive must never be served after a failed build
			require.NoError(t, afero.WriteFile(fs, "out.zip", []byte("stale archive"), 0o644))

			b := &stubBuilder{err: tt.err, result: builder.Result{Destination: "out.zip"}}
			srv := newTestServer(t, b, fs, builder.Request{Destination: "out.zip"})

			resp, body := get(t, srv.URL+"/download")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotContains(t, string(body), "stale archive")
			assert.NotContains(t, string(body), "/root/out.zip")
			assert.NotEqual(t, "application/zip", resp.Header.Get("Content-Type"))
			assert.Equal(t, 1, b.calls)
		})
	}

	t.Run("archive vanished between build and open", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		b := &stubBuilder{result: builder.Result{Destination: "gone.zip"}}
		srv := newTestServer(t, b, fs, builder.Request{Destination: "gone.zip"})

		resp, _ := get(t, srv.URL+"/download")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestHandler_Healthz(t *testing.T) {
	b := &stubBuilder{}
	srv := newTestServer(t, b, afero.NewMemMapFs(), builder.Request{})

	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))
	assert.Zero(t, b.calls, "health checks must not build archives")
}

func TestHandler_RequestID(t *testing.T) {
	srv := newTestServer(t, &stubBuilder{}, afero.NewMemMapFs(), builder.Request{})

	t.Run("generated when absent", func(t *testing.T) {
		resp, _ := get(t, srv.URL+"/healthz")
		assert.Len(t, resp.Header.Get(requestIDHeader), 36)
	})

	t.Run("propagated when present", func(t *testing.T) {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/healthz", nil)
		require.NoError(t, err)
		req.Header.Set(requestIDHeader, "abc-123")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))
	})
}

func TestHandler_UnknownRoute(t *testing.T) {
	srv := newTestServer(t, &stubBuilder{}, afero.NewMemMapFs(), builder.Request{})

	resp, _ := get(t, srv.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		destination string
		want        string
	}{
		{"Tamj-Thankyou.zip", `attachment; filename="Tamj-Thankyou.zip"`},
		{"/var/www/downloads/bundle.zip", `attachment; filename="bundle.zip"`},
		{`weird"name.zip`, `attachment; filename="weirdname.zip"`},
	}

	for _, tt := range tests {
		t.Run(tt.destination, func(t *testing.T) {
			assert.Equal(t, tt.want, contentDisposition(tt.destination))
		})
	}
}

// overlapBuilder records how many builds run at the same time.
type overlapBuilder struct {
	inner    ArchiveBuilder
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (o *overlapBuilder) Build(ctx context.Context, req builder.Request) (builder.Result, error) {
	n := o.inFlight.Add(1)
	defer o.inFlight.Add(-1)
	for {
		seen := o.maxSeen.Load()
		if n <= seen || o.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return o.inner.Build(ctx, req)
}

func TestHandler_ConcurrentDownloads(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "a.txt", []byte("alpha"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "b.txt", []byte("bravo"), 0o644))

	req := builder.Request{
		Candidates:  builder.CandidatesFromPaths([]string{"a.txt", "b.txt"}),
		Destination: "out.zip",
		Overwrite:   true,
	}
	b := &overlapBuilder{inner: builder.New(zap.NewNop(), fs)}
	srv := newTestServer(t, b, fs, req)

	const workers = 16
	type response struct {
		status int
		body   []byte
		err    error
	}
	responses := make([]response, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(srv.URL + "/download")
			if err != nil {
				responses[i].err = err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			responses[i] = response{status: resp.StatusCode, body: body, err: err}
		}()
	}
	wg.Wait()

	for i, r := range responses {
		require.NoError(t, r.err, "request %d", i)
		assert.Equal(t, http.StatusOK, r.status, "request %d", i)

		zr, err := zip.NewReader(bytes.NewReader(r.body), int64(len(r.body)))
		require.NoError(t, err, "request %d returned an unreadable archive", i)
		assert.Len(t, zr.File, 2, "request %d", i)
	}

	assert.Equal(t, int32(1), b.maxSeen.Load(), "builds must not overlap")
}
