// Package minio stores source videos, selected frames and frame archives in
// MinIO (or any S3 compatible store).
package minio

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

// Storage reads sources from the upload bucket and writes artifacts to the
// frame bucket.
type Storage struct {
	client       *miniogo.Client
	uploadBucket string
	frameBucket  string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UploadBucket string
	FrameBucket  string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	if cfg.UploadBucket == "" || cfg.FrameBucket == "" {
		return nil, fmt.Errorf("minio storage needs both an upload and a frame bucket")
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Storage{client: client, uploadBucket: cfg.UploadBucket, frameBucket: cfg.FrameBucket}, nil
}

// EnsureBuckets creates missing buckets. Upload and frame bucket may be the same.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	buckets := []string{s.uploadBucket}
	if s.frameBucket != s.uploadBucket {
		buckets = append(buckets, s.frameBucket)
	}
	for _, bucket := range buckets {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// DownloadObject copies bucket/objectKey to destPath. An empty bucket means the
// upload bucket.
func (s *Storage) DownloadObject(ctx context.Context, bucket, objectKey, destPath string) error {
	if bucket == "" {
		bucket = s.uploadBucket
	}
	if err := s.client.FGetObject(ctx, bucket, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s/%s: %w", bucket, objectKey, notFound(err))
	}
	return nil
}

func (s *Storage) UploadZip(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.frameBucket, objectKey, reader, size, miniogo.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return fmt.Errorf("upload zip %s: %w", objectKey, err)
	}
	return nil
}

// UploadFrame stores one selected frame; the content type follows the file
// extension.
func (s *Storage) UploadFrame(ctx context.Context, objectKey string, filePath string) error {
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.FPutObject(ctx, s.frameBucket, objectKey, filePath, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload frame %s: %w", objectKey, err)
	}
	return nil
}

// PresignedURL returns a time-limited GET URL for an object in the frame
// bucket. Presigning is offline, so the object is stat'ed first.
func (s *Storage) PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if _, err := s.client.StatObject(ctx, s.frameBucket, objectKey, miniogo.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("stat %s: %w", objectKey, notFound(err))
	}
	u, err := s.client.PresignedGetObject(ctx, s.frameBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return u.String(), nil
}

func notFound(err error) error {
	switch miniogo.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %v", port.ErrObjectNotFound, err)
	}
	return err
}
