package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

type fakeRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]entity.Job
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: map[uuid.UUID]entity.Job{}}
}

func (r *fakeRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeRepo) Update(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return port.ErrJobNotFound
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, port.ErrJobNotFound
	}
	return &job, nil
}

func (r *fakeRepo) get(t *testing.T, id uuid.UUID) entity.Job {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	require.True(t, ok, "job %s not stored", id)
	return job
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, sourceURL, destPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, sourceURL)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destPath, []byte("video"), 0o644)
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeProber struct {
	duration float64
	err      error
}

func (p fakeProber) ProbeDuration(context.Context, string) (float64, error) {
	return p.duration, p.err
}

// fakeExtractor returns evenly spaced frames named after their offset, like
// the ffmpeg extractor does, unless fn overrides it.
type fakeExtractor struct {
	mu    sync.Mutex
	calls []port.ExtractRequest
	fn    func(dir string, req port.ExtractRequest) ([]port.ExtractedFrame, error)
}

func (e *fakeExtractor) Extract(_ context.Context, _ string, outputDir string, req port.ExtractRequest) ([]port.ExtractedFrame, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	e.mu.Unlock()
	if e.fn != nil {
		return e.fn(outputDir, req)
	}
	return gridFrames(outputDir, req), nil
}

func (e *fakeExtractor) requests() []port.ExtractRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]port.ExtractRequest(nil), e.calls...)
}

func gridFrames(dir string, req port.ExtractRequest) []port.ExtractedFrame {
	if req.Interval <= 0 {
		return nil
	}
	var out []port.ExtractedFrame
	for i := 0; len(out) < req.MaxFrames; i++ {
		t := req.Start + float64(i)*req.Interval
		if t >= req.End {
			break
		}
		out = append(out, frameAt(dir, t))
	}
	return out
}

func frameAt(dir string, offset float64) port.ExtractedFrame {
	name := fmt.Sprintf("frame_%09d.jpg", int64(offset*1000+0.5))
	return port.ExtractedFrame{Path: filepath.Join(dir, name), Offset: offset}
}

type fakeZipper struct {
	mu       sync.Mutex
	paths    []string
	manifest []byte
}

func (z *fakeZipper) CreateZip(_ context.Context, filePaths []string, manifest []byte, outputPath string) error {
	z.mu.Lock()
	z.paths = append([]string(nil), filePaths...)
	z.manifest = manifest
	z.mu.Unlock()
	return os.WriteFile(outputPath, []byte(strings.Join(filePaths, "\n")), 0o644)
}

type fakeStorage struct {
	mu         sync.Mutex
	zips       map[string]int64
	frames     map[string]string
	presignErr map[string]error
	uploadErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		zips:       map[string]int64{},
		frames:     map[string]string{},
		presignErr: map[string]error{},
	}
}

func (s *fakeStorage) UploadZip(_ context.Context, key string, r io.Reader, size int64) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return err
	}
	if n != size {
		return fmt.Errorf("short zip upload: %d != %d", n, size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zips[key] = size
	return nil
}

func (s *fakeStorage) UploadFrame(_ context.Context, key, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[key] = filePath
	return nil
}

func (s *fakeStorage) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.presignErr[key]; err != nil {
		return "", err
	}
	return "https://minio.local/frames/" + key, nil
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]port.CachedArtifact
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]port.CachedArtifact{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (*port.CachedArtifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.entries[key]
	if !ok {
		return nil, port.ErrCacheMiss
	}
	return &a, nil
}

func (c *fakeCache) Put(_ context.Context, key string, a *port.CachedArtifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *a
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.invalidated = append(c.invalidated, key)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (p *fakePublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) PublishJob(ctx context.Context, msg []byte) error {
	return p.PublishStatus(ctx, msg)
}

func (p *fakePublisher) last(t *testing.T) entity.FrameJobStatusMessage {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.msgs)
	var m entity.FrameJobStatusMessage
	require.NoError(t, json.Unmarshal(p.msgs[len(p.msgs)-1], &m))
	return m
}

type fakeDLQ struct {
	mu      sync.Mutex
	reasons []string
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *fakeNotifier) NotifyFailure(_ context.Context, to, jobID, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, to+":"+jobID)
	return nil
}
