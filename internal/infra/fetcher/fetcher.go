// Package fetcher resolves a job's video URL to a local file.
//
// Supported sources:
//
//	http(s)://...          downloaded with yt-dlp
//	minio://bucket/key     copied out of an allowed bucket
//	key                    an object in the upload bucket
//
// Anything else, local paths included, is rejected as invalid input.
package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
)

// ObjectDownloader is the slice of the object store the fetcher needs.
type ObjectDownloader interface {
	DownloadObject(ctx context.Context, bucket, objectKey, destPath string) error
}

type Router struct {
	web     port.VideoFetcher
	objects ObjectDownloader
	buckets []string
	logger  *zap.Logger
}

type Option func(*Router)

// WithBuckets limits minio:// URLs to the named buckets. Without it any
// bucket the object store can read is allowed.
func WithBuckets(buckets ...string) Option {
	return func(r *Router) { r.buckets = append(r.buckets, buckets...) }
}

// NewRouter builds a fetcher that dispatches on URL scheme. Either backend may
// be nil, in which case URLs needing it are rejected.
func NewRouter(web port.VideoFetcher, objects ObjectDownloader, logger *zap.Logger, opts ...Option) *Router {
	r := &Router{web: web, objects: objects, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Fetch(ctx context.Context, sourceURL string, destPath string) error {
	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil {
		return fmt.Errorf("%w: parse %q: %v", port.ErrFetchFailed, sourceURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if r.web == nil {
			return fmt.Errorf("%w: web downloads disabled", port.ErrFetchFailed)
		}
		return r.web.Fetch(ctx, u.String(), destPath)
	case "minio", "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return rejected("object url %q needs bucket and key", sourceURL)
		}
		if len(r.buckets) > 0 && !slices.Contains(r.buckets, u.Host) {
			return rejected("bucket %q is not readable", u.Host)
		}
		return r.download(ctx, u.Host, key, destPath)
	case "":
		if u.Path == "" {
			return rejected("empty source")
		}
		return r.download(ctx, "", u.Path, destPath)
	default:
		return rejected("unsupported scheme %q", u.Scheme)
	}
}

func (r *Router) download(ctx context.Context, bucket, key, destPath string) error {
	if r.objects == nil {
		return fmt.Errorf("%w: object storage not configured", port.ErrFetchFailed)
	}
	if err := r.objects.DownloadObject(ctx, bucket, key, destPath); err != nil {
		return fmt.Errorf("%w: %w", port.ErrFetchFailed, err)
	}
	r.logger.Debug("video fetched from object storage", zap.String("bucket", bucket), zap.String("key", key))
	return nil
}

// rejected marks a source that can never be fetched, so the job is not retried.
func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", port.ErrFetchFailed, sampling.ErrInvalidInput, fmt.Sprintf(format, args...))
}
