package storage

import (
	"context"
	"io"
)

// Storage persists processed artifacts (staged audio for study-pack
// playback) outside the request lifecycle. GetFile also backs the /files
// route in local mode; S3 mode serves objects by their URL.
type Storage interface {
	UploadFile(ctx context.Context, filename string, content io.Reader, contentType string) (*UploadResult, error)
	GetFile(ctx context.Context, key string) (io.ReadCloser, string, error)
}

type UploadResult struct {
	Key string
	URL string
}
