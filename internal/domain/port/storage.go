package port

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type FrameStorage interface {
	UploadZip(ctx context.Context, objectKey string, reader io.Reader, size int64) error
	UploadFrame(ctx context.Context, objectKey string, filePath string) error
	// PresignedURL fails with ErrObjectNotFound when the object is gone.
	PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}
