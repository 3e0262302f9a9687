package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
)

type harness struct {
	uc        *SampleFramesUseCase
	repo      *fakeRepo
	fetcher   *fakeFetcher
	extractor *fakeExtractor
	zipper    *fakeZipper
	storage   *fakeStorage
	cache     *fakeCache
	status    *fakePublisher
	jobs      *fakePublisher
	dlq       *fakeDLQ
	notifier  *fakeNotifier
}

func newHarness(t *testing.T, maxRetries int) *harness {
	h := &harness{
		repo:      newFakeRepo(),
		fetcher:   &fakeFetcher{},
		extractor: &fakeExtractor{fn: sceneOnly},
		zipper:    &fakeZipper{},
		storage:   newFakeStorage(),
		cache:     newFakeCache(),
		status:    &fakePublisher{},
		jobs:      &fakePublisher{},
		dlq:       &fakeDLQ{},
		notifier:  &fakeNotifier{},
	}
	sampler := NewFrameSampler(fakeProber{duration: 200}, h.extractor, sampling.DefaultConfig(), 2, zap.NewNop())
	h.uc = NewSampleFramesUseCase(Deps{
		Repo:      h.repo,
		Fetcher:   h.fetcher,
		Sampler:   sampler,
		Zipper:    h.zipper,
		Storage:   h.storage,
		Cache:     h.cache,
		Publisher: h.status,
		Jobs:      h.jobs,
		DLQ:       h.dlq,
		Notifier:  h.notifier,
		Tables:    sampling.BuiltinTables(),
	}, zap.NewNop(), SampleFramesConfig{
		TempDir:    t.TempDir(),
		MaxRetries: maxRetries,
	})
	return h
}

func (h *harness) manifest(t *testing.T) entity.FrameManifest {
	t.Helper()
	h.zipper.mu.Lock()
	defer h.zipper.mu.Unlock()
	var m entity.FrameManifest
	require.NoError(t, json.Unmarshal(h.zipper.manifest, &m))
	return m
}

func jobMessage(t *testing.T, id uuid.UUID, videoURL, notify string) []byte {
	data, err := json.Marshal(entity.FrameJobMessage{JobID: id, VideoURL: videoURL, NotifyTo: notify})
	require.NoError(t, err)
	return data
}

func TestRunCompletesJob(t *testing.T) {
	h := newHarness(t, 3)

	res, err := h.uc.Run(context.Background(), SampleRequest{VideoURL: " https://Example.com/v.mp4 "})
	require.NoError(t, err)

	job := res.Job
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, "https://example.com/v.mp4", job.SourceURL)
	assert.Equal(t, 20, job.FrameCount)
	assert.Equal(t, 200.0, job.Duration)
	assert.False(t, job.Cached)
	assert.Equal(t, sampling.DefaultTableVersion, job.PhaseTable)

	zipKey := "jobs/" + job.ID.String() + "/frames.zip"
	assert.Equal(t, zipKey, job.ArtifactKey)
	assert.Equal(t, "https://minio.local/frames/"+zipKey, res.ArtifactURL)
	assert.Contains(t, h.storage.zips, zipKey)
	assert.Len(t, h.storage.frames, 20)
	assert.Equal(t, "jobs/"+job.ID.String()+"/frame_000000000.jpg", job.FrameRefs[0])

	stored := h.repo.get(t, job.ID)
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.Equal(t, job.FrameRefs, stored.FrameRefs)

	cached, err := h.cache.Get(context.Background(), job.CacheKey)
	require.NoError(t, err)
	assert.Equal(t, zipKey, cached.ArtifactKey)
	assert.Equal(t, job.FrameRefs, cached.FrameKeys)

	status := h.status.last(t)
	assert.Equal(t, entity.JobStatusCompleted, status.Status)
	assert.Equal(t, 20, status.FrameCount)
}

func TestRunServesRepeatFromCache(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	first, err := h.uc.Run(ctx, SampleRequest{VideoURL: "https://example.com/v.mp4"})
	require.NoError(t, err)

	second, err := h.uc.Run(ctx, SampleRequest{VideoURL: "HTTPS://EXAMPLE.COM/v.mp4"})
	require.NoError(t, err)

	assert.Equal(t, 1, h.fetcher.count())
	assert.NotEqual(t, first.Job.ID, second.Job.ID)
	assert.True(t, second.Job.Cached)
	assert.Equal(t, entity.JobStatusCompleted, second.Job.Status)
	assert.Equal(t, first.Job.ArtifactKey, second.Job.ArtifactKey)
	assert.Equal(t, first.Job.FrameRefs, second.Job.FrameRefs)
	assert.Empty(t, second.Selection.Frames)
	assert.True(t, h.status.last(t).Cached)
}

func TestRunRecomputesWhenCachedArtifactIsGone(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	key := CacheKey("https://example.com/v.mp4", sampling.DefaultConfig())
	require.NoError(t, h.cache.Put(ctx, key, &port.CachedArtifact{ArtifactKey: "jobs/old/frames.zip"}))
	h.storage.presignErr["jobs/old/frames.zip"] = fmt.Errorf("stat: %w", port.ErrObjectNotFound)

	res, err := h.uc.Run(ctx, SampleRequest{VideoURL: "https://example.com/v.mp4"})
	require.NoError(t, err)

	assert.False(t, res.Job.Cached)
	assert.Equal(t, 1, h.fetcher.count())
	assert.Equal(t, []string{key}, h.cache.invalidated)

	cached, err := h.cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, res.Job.ArtifactKey, cached.ArtifactKey)
}

func TestRunRejectsEmptyURL(t *testing.T) {
	h := newHarness(t, 3)

	_, err := h.uc.Run(context.Background(), SampleRequest{VideoURL: "   "})
	assert.ErrorIs(t, err, sampling.ErrInvalidInput)
	assert.Empty(t, h.repo.jobs)
	assert.Zero(t, h.fetcher.count())
}

func TestRunRejectsLocalFileURL(t *testing.T) {
	h := newHarness(t, 3)

	_, err := h.uc.Run(context.Background(), SampleRequest{VideoURL: "file:///etc/passwd"})
	assert.ErrorIs(t, err, sampling.ErrInvalidInput)
	assert.Empty(t, h.repo.jobs)
	assert.Zero(t, h.fetcher.count())
}

func TestRunNoContentFailsJob(t *testing.T) {
	h := newHarness(t, 3)
	h.extractor.fn = func(string, port.ExtractRequest) ([]port.ExtractedFrame, error) { return nil, nil }

	_, err := h.uc.Run(context.Background(), SampleRequest{VideoURL: "https://example.com/static.mp4"})
	assert.ErrorIs(t, err, sampling.ErrNoContent)

	require.Len(t, h.repo.jobs, 1)
	for _, job := range h.repo.jobs {
		assert.Equal(t, entity.JobStatusFailed, job.Status)
		assert.False(t, job.CanRetry())
		assert.Contains(t, job.ErrorMessage, "no extractable content")
	}
	assert.Empty(t, h.cache.entries)
	assert.Equal(t, entity.JobStatusFailed, h.status.last(t).Status)
}

func TestSubmitQueuesJob(t *testing.T) {
	h := newHarness(t, 3)

	job, err := h.uc.Submit(context.Background(), SampleRequest{VideoURL: "https://example.com/v.mp4", NotifyTo: "me@example.com"})
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.MaxAttempts)

	require.Len(t, h.jobs.msgs, 1)
	var msg entity.FrameJobMessage
	require.NoError(t, json.Unmarshal(h.jobs.msgs[0], &msg))
	assert.Equal(t, job.ID, msg.JobID)
	assert.Equal(t, "me@example.com", msg.NotifyTo)
	assert.Equal(t, sampling.DefaultTableVersion, msg.PhaseTable)

	require.NoError(t, h.uc.Execute(context.Background(), h.jobs.msgs[0]))
	stored := h.repo.get(t, job.ID)
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.Attempt)
}

func tableMessage(t *testing.T, id uuid.UUID, table string) []byte {
	data, err := json.Marshal(entity.FrameJobMessage{JobID: id, VideoURL: "https://example.com/v.mp4", PhaseTable: table})
	require.NoError(t, err)
	return data
}

func TestExecuteUsesSubmittedPhaseTable(t *testing.T) {
	h := newHarness(t, 3)
	id := uuid.New()

	require.NoError(t, h.uc.Execute(context.Background(), tableMessage(t, id, "hook-v1")))

	stored := h.repo.get(t, id)
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.Equal(t, "hook-v1", stored.PhaseTable)

	hookTable, err := sampling.BuiltinTables().Lookup("hook-v1")
	require.NoError(t, err)
	cfg := sampling.DefaultConfig()
	cfg.Table = hookTable
	assert.Equal(t, CacheKey("https://example.com/v.mp4", cfg), stored.CacheKey)

	phases := map[string]bool{}
	for _, r := range h.extractor.requests() {
		phases[r.Phase] = true
	}
	assert.True(t, phases["hook"])
	assert.False(t, phases["final"])
}

func TestExecuteUnknownPhaseTableIsPermanent(t *testing.T) {
	h := newHarness(t, 3)
	id := uuid.New()

	assert.NoError(t, h.uc.Execute(context.Background(), tableMessage(t, id, "v99")))

	stored := h.repo.get(t, id)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.False(t, stored.CanRetry())
	assert.Len(t, h.dlq.reasons, 1)
	assert.Zero(t, h.fetcher.count())
}

func TestExecuteInvalidMessageGoesToDLQ(t *testing.T) {
	h := newHarness(t, 3)

	err := h.uc.Execute(context.Background(), []byte("{not json"))
	assert.NoError(t, err)
	require.Len(t, h.dlq.reasons, 1)
	assert.True(t, strings.HasPrefix(h.dlq.reasons[0], "unmarshal_error"))
}

func TestExecuteRetryableFailure(t *testing.T) {
	h := newHarness(t, 3)
	h.fetcher.err = fmt.Errorf("%w: connection reset", port.ErrFetchFailed)
	id := uuid.New()

	err := h.uc.Execute(context.Background(), jobMessage(t, id, "https://example.com/v.mp4", "me@example.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 1/3")
	var retry *port.RetryError
	require.ErrorAs(t, err, &retry)
	assert.Equal(t, 1, retry.Attempt)

	stored := h.repo.get(t, id)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.True(t, stored.CanRetry())
	assert.Empty(t, h.dlq.reasons)
	assert.Empty(t, h.notifier.sent)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	h := newHarness(t, 2)
	h.fetcher.err = fmt.Errorf("%w: 404", port.ErrFetchFailed)
	id := uuid.New()
	msg := jobMessage(t, id, "https://example.com/v.mp4", "me@example.com")

	require.Error(t, h.uc.Execute(context.Background(), msg))
	require.NoError(t, h.uc.Execute(context.Background(), msg))

	stored := h.repo.get(t, id)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.Equal(t, 2, stored.Attempt)
	assert.Len(t, h.dlq.reasons, 1)
	assert.Equal(t, []string{"me@example.com:" + id.String()}, h.notifier.sent)

	require.NoError(t, h.uc.Execute(context.Background(), msg))
	assert.Equal(t, 2, h.fetcher.count())
}

func TestExecuteNoContentIsPermanent(t *testing.T) {
	h := newHarness(t, 5)
	h.extractor.fn = func(string, port.ExtractRequest) ([]port.ExtractedFrame, error) { return nil, nil }
	id := uuid.New()

	err := h.uc.Execute(context.Background(), jobMessage(t, id, "https://example.com/black.mp4", "me@example.com"))
	assert.NoError(t, err)

	stored := h.repo.get(t, id)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.False(t, stored.CanRetry())
	assert.Len(t, h.dlq.reasons, 1)
	assert.Len(t, h.notifier.sent, 1)
}

func TestRunWritesManifest(t *testing.T) {
	h := newHarness(t, 3)
	res, err := h.uc.Run(context.Background(), SampleRequest{VideoURL: "https://example.com/v.mp4"})
	require.NoError(t, err)

	m := h.manifest(t)
	assert.Equal(t, res.Job.ID, m.JobID)
	assert.Equal(t, 200.0, m.Duration)
	assert.False(t, m.FallbackUsed)
	require.Len(t, m.Frames, 20)
	assert.Equal(t, "001_frame_000000000.jpg", m.Frames[0].Entry)
	assert.Equal(t, res.Job.FrameRefs[0], m.Frames[0].Key)
	assert.Equal(t, "early", m.Frames[0].Phase)
	assert.Equal(t, "final", m.Frames[19].Phase)
	assert.Equal(t, 196.0, m.Frames[19].Offset)
}

func TestRunManifestMarksFallbackFrames(t *testing.T) {
	h := newHarness(t, 3)
	h.extractor.fn = func(dir string, req port.ExtractRequest) ([]port.ExtractedFrame, error) {
		if req.Phase == fallbackPhase {
			return gridFrames(dir, req), nil
		}
		return nil, nil
	}
	_, err := h.uc.Run(context.Background(), SampleRequest{VideoURL: "https://example.com/static.mp4"})
	require.NoError(t, err)

	m := h.manifest(t)
	assert.True(t, m.FallbackUsed)
	require.NotEmpty(t, m.Frames)
	for _, f := range m.Frames {
		assert.Equal(t, fallbackPhase, f.Phase)
	}
}

func TestExecuteMissingSourceIsPermanent(t *testing.T) {
	h := newHarness(t, 5)
	h.fetcher.err = fmt.Errorf("%w: %w", port.ErrFetchFailed, port.ErrObjectNotFound)
	id := uuid.New()

	err := h.uc.Execute(context.Background(), jobMessage(t, id, "minio://uploads/gone.mp4", ""))
	assert.NoError(t, err)

	stored := h.repo.get(t, id)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.False(t, stored.CanRetry())
	assert.Len(t, h.dlq.reasons, 1)
	assert.Equal(t, 1, h.fetcher.count())
}

func TestExecuteSkipsCompletedJob(t *testing.T) {
	h := newHarness(t, 3)
	id := uuid.New()
	msg := jobMessage(t, id, "https://example.com/v.mp4", "")

	require.NoError(t, h.uc.Execute(context.Background(), msg))
	require.NoError(t, h.uc.Execute(context.Background(), msg))
	assert.Equal(t, 1, h.fetcher.count())
}

func TestArtifactURL(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	_, err := h.uc.ArtifactURL(ctx, uuid.New())
	assert.ErrorIs(t, err, port.ErrJobNotFound)

	pending, err := h.uc.Submit(ctx, SampleRequest{VideoURL: "https://example.com/p.mp4"})
	require.NoError(t, err)
	_, err = h.uc.ArtifactURL(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrArtifactNotReady)

	res, err := h.uc.Run(ctx, SampleRequest{VideoURL: "https://example.com/v.mp4"})
	require.NoError(t, err)
	u, err := h.uc.ArtifactURL(ctx, res.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ArtifactURL, u)
}

func TestCacheKey(t *testing.T) {
	cfg := sampling.DefaultConfig()
	k := CacheKey("https://example.com/v.mp4", cfg)
	assert.Len(t, k, 64)
	assert.Equal(t, k, CacheKey("https://example.com/v.mp4", cfg))
	assert.NotEqual(t, k, CacheKey("https://example.com/w.mp4", cfg))

	other := cfg
	other.Budget = 30
	assert.NotEqual(t, k, CacheKey("https://example.com/v.mp4", other))

	hook := cfg
	hook.Table.Version = "hook-v1"
	assert.NotEqual(t, k, CacheKey("https://example.com/v.mp4", hook))
}

func TestNormalizeURL(t *testing.T) {
	got, err := normalizeURL("  HTTPS://Example.COM/Watch?v=AbC ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/Watch?v=AbC", got)

	got, err = normalizeURL("videos/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "videos/clip.mp4", got)

	_, err = normalizeURL("")
	assert.ErrorIs(t, err, sampling.ErrInvalidInput)

	for _, raw := range []string{"file:///etc/passwd", "FILE:///tmp/v.mp4", "ftp://host/v.mp4"} {
		_, err = normalizeURL(raw)
		assert.ErrorIs(t, err, sampling.ErrInvalidInput, raw)
	}
}
