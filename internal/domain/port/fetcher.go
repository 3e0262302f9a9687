package port

import (
	"context"
	"errors"
)

var ErrFetchFailed = errors.New("video fetch failed")

// VideoFetcher copies the video behind sourceURL to destPath.
type VideoFetcher interface {
	Fetch(ctx context.Context, sourceURL string, destPath string) error
}
