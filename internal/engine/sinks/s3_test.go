package sinks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUploader struct {
	uploads []mockUpload
	err     error
}

type mockUpload struct {
	bucket             string
	key                string
	body               []byte
	contentType        string
	contentDisposition string
}

func (m *mockUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, _ := io.ReadAll(input.Body)
	upload := mockUpload{
		bucket: *input.Bucket,
		key:    *input.Key,
		body:   body,
	}
	if input.ContentType != nil {
		upload.contentType = *input.ContentType
	}
	if input.ContentDisposition != nil {
		upload.contentDisposition = *input.ContentDisposition
	}
	m.uploads = append(m.uploads, upload)
	return &manager.UploadOutput{}, nil
}

func TestS3Sink_Name(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		prefix   string
		expected string
	}{
		{
			name:     "bucket only",
			bucket:   "my-bucket",
			expected: "s3(my-bucket)",
		},
		{
			name:     "bucket with prefix",
			bucket:   "my-bucket",
			prefix:   "downloads/2024",
			expected: "s3(my-bucket/downloads/2024)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := NewS3SinkWithUploader(tt.bucket, tt.prefix, &mockUploader{})
			assert.Equal(t, tt.expected, sink.Name())
			assert.Equal(t, "s3", sink.Kind())
		})
	}
}

func TestS3Sink_Write(t *testing.T) {
	tests := []struct {
		name        string
		prefix      string
		path        string
		expectedKey string
	}{
		{
			name:        "write without prefix",
			path:        "bundle.zip",
			expectedKey: "bundle.zip",
		},
		{
			name:        "write with prefix",
			prefix:      "exports/2024",
			path:        "bundle.zip",
			expectedKey: "exports/2024/bundle.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &mockUploader{}
			sink := NewS3SinkWithUploader("my-bucket", tt.prefix, uploader)

			err := sink.Write(t.Context(), tt.path, bytes.NewBufferString("PK\x03\x04"))
			require.NoError(t, err)

			require.Len(t, uploader.uploads, 1)
			assert.Equal(t, "my-bucket", uploader.uploads[0].bucket)
			assert.Equal(t, tt.expectedKey, uploader.uploads[0].key)
			assert.Equal(t, "PK\x03\x04", string(uploader.uploads[0].body))
			assert.Equal(t, "application/zip", uploader.uploads[0].contentType)
			assert.Equal(t, `attachment; filename="bundle.zip"`, uploader.uploads[0].contentDisposition)
		})
	}
}

func TestS3Sink_WriteError(t *testing.T) {
	uploader := &mockUploader{err: errors.New("access denied")}
	sink := NewS3SinkWithUploader("my-bucket", "p", uploader)

	err := sink.Write(t.Context(), "bundle.zip", bytes.NewBufferString("data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://my-bucket/p/bundle.zip")
	assert.Contains(t, err.Error(), "access denied")
}

func TestContentTypeFromPath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{path: "bundle.zip", expected: "application/zip"},
		{path: "bundle.tar.zst", expected: "application/zstd"},
		{path: "bundle.tar.gz", expected: "application/gzip"},
		{path: "manifest.json", expected: "application/json"},
		{path: "readme.txt", expected: "text/plain"},
		{path: "data.bin", expected: ""},
		{path: "data", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, contentTypeFromPath(tt.path))
		})
	}
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink(t.Context(), S3Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")
}
