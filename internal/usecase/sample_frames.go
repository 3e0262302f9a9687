package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/metrics"
)

var ErrArtifactNotReady = errors.New("artifact not ready")

// SampleFramesUseCase turns a video URL into a stored, cached frame selection.
type SampleFramesUseCase struct {
	repo      port.JobRepository
	fetcher   port.VideoFetcher
	sampler   *FrameSampler
	zipper    port.Zipper
	storage   port.FrameStorage
	cache     port.ArtifactCache
	publisher port.StatusPublisher
	jobs      port.JobPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	tables    sampling.Tables
	logger    *zap.Logger
	cfg       SampleFramesConfig
}

type SampleFramesConfig struct {
	TempDir        string
	MaxRetries     int
	PresignExpiry  time.Duration
	UploadParallel int
}

// Deps groups the adapters the use case talks to. Cache, Jobs, DLQ and
// Notifier may be nil. Tables resolves the phase table a queued job was
// submitted under; without it only the sampler's own table is accepted.
type Deps struct {
	Repo      port.JobRepository
	Fetcher   port.VideoFetcher
	Sampler   *FrameSampler
	Zipper    port.Zipper
	Storage   port.FrameStorage
	Cache     port.ArtifactCache
	Publisher port.StatusPublisher
	Jobs      port.JobPublisher
	DLQ       port.DLQPublisher
	Notifier  port.FailureNotifier
	Tables    sampling.Tables
}

func NewSampleFramesUseCase(deps Deps, logger *zap.Logger, cfg SampleFramesConfig) *SampleFramesUseCase {
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 24 * time.Hour
	}
	if cfg.UploadParallel <= 0 {
		cfg.UploadParallel = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &SampleFramesUseCase{
		repo:      deps.Repo,
		fetcher:   deps.Fetcher,
		sampler:   deps.Sampler,
		zipper:    deps.Zipper,
		storage:   deps.Storage,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		jobs:      deps.Jobs,
		dlq:       deps.DLQ,
		notifier:  deps.Notifier,
		tables:    deps.Tables,
		logger:    logger,
		cfg:       cfg,
	}
}

type SampleRequest struct {
	VideoURL string
	NotifyTo string
}

// JobResult is a completed job. Selection is empty for cache hits.
type JobResult struct {
	Job         *entity.Job
	ArtifactURL string
	Selection   sampling.Selection
}

// Run samples req synchronously. The job is persisted and its status published
// whatever the outcome; a failed job is not retried.
func (uc *SampleFramesUseCase) Run(ctx context.Context, req SampleRequest) (*JobResult, error) {
	videoURL, err := normalizeURL(req.VideoURL)
	if err != nil {
		return nil, err
	}

	job := entity.NewJob(videoURL, 1)
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	log := uc.logger.With(zap.String("job_id", job.ID.String()), zap.String("video_url", videoURL))

	res, err := uc.process(ctx, job, log)
	if err != nil {
		job.MarkExhausted(err.Error())
		uc.persistFailure(ctx, job, log)
		metrics.JobsProcessedTotal.WithLabelValues(failureLabel(err)).Inc()
		return nil, err
	}
	return res, nil
}

// Submit records a pending job and queues it for the worker.
func (uc *SampleFramesUseCase) Submit(ctx context.Context, req SampleRequest) (*entity.Job, error) {
	if uc.jobs == nil {
		return nil, errors.New("async submission not configured")
	}
	videoURL, err := normalizeURL(req.VideoURL)
	if err != nil {
		return nil, err
	}

	job := entity.NewJob(videoURL, uc.cfg.MaxRetries)
	job.PhaseTable = uc.sampler.Config().Table.Version
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	data, err := json.Marshal(entity.FrameJobMessage{
		JobID:      job.ID,
		VideoURL:   videoURL,
		PhaseTable: job.PhaseTable,
		NotifyTo:   req.NotifyTo,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal job message: %w", err)
	}
	if err := uc.jobs.PublishJob(ctx, data); err != nil {
		return nil, fmt.Errorf("publish job: %w", err)
	}
	return job, nil
}

// Execute is the queue handler. It returns an error only when the message
// should be redelivered.
func (uc *SampleFramesUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "SampleFramesUseCase.Execute")
	defer span.End()

	var msg entity.FrameJobMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		uc.toDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_url", msg.VideoURL),
	)
	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_url", msg.VideoURL))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if errors.Is(err, port.ErrJobNotFound) {
		job = entity.NewJob(strings.TrimSpace(msg.VideoURL), uc.cfg.MaxRetries)
		job.PhaseTable = msg.PhaseTable
		if msg.JobID != uuid.Nil {
			job.ID = msg.JobID
		}
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	} else if err != nil {
		log.Error("failed to load job", zap.Error(err))
		return fmt.Errorf("find job: %w", err)
	}

	if job.Status == entity.JobStatusCompleted {
		log.Info("job already completed, dropping duplicate delivery")
		return nil
	}
	if job.PhaseTable == "" {
		job.PhaseTable = msg.PhaseTable
	}

	if _, err := normalizeURL(job.SourceURL); err != nil {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, err.Error(), log)
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", log)
	}

	if _, err := uc.process(ctx, job, log); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if permanent(err) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, err.Error(), log)
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, err.Error(), log)
	}
	return nil
}

// Job returns the stored job.
func (uc *SampleFramesUseCase) Job(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return uc.repo.FindByID(ctx, id)
}

// ArtifactURL presigns the zip of a completed job.
func (uc *SampleFramesUseCase) ArtifactURL(ctx context.Context, id uuid.UUID) (string, error) {
	job, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != entity.JobStatusCompleted || job.ArtifactKey == "" {
		return "", fmt.Errorf("%w: job is %s", ErrArtifactNotReady, job.Status)
	}
	return uc.storage.PresignedURL(ctx, job.ArtifactKey, uc.cfg.PresignExpiry)
}

// SamplingConfig returns the sampling policy applied to new jobs.
func (uc *SampleFramesUseCase) SamplingConfig() sampling.Config {
	return uc.sampler.Config()
}

// CacheKey derives the artifact cache key from the source and every knob that
// changes the selection.
func CacheKey(videoURL string, cfg sampling.Config) string {
	strategies := make([]string, len(cfg.Strategies))
	for i, s := range cfg.Strategies {
		strategies[i] = string(s)
	}
	parts := []string{
		videoURL,
		cfg.Table.Version,
		strconv.Itoa(cfg.Budget),
		strconv.Itoa(cfg.SoftCap),
		strconv.Itoa(cfg.HardCap),
		strconv.Itoa(cfg.MinAcceptable),
		strconv.FormatFloat(cfg.MinInterval, 'g', -1, 64),
		strconv.FormatFloat(cfg.FallbackInterval, 'g', -1, 64),
		strconv.FormatFloat(cfg.SceneThreshold, 'g', -1, 64),
		strings.Join(strategies, ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// policy is the sampling config for a job recorded under table. An empty table
// means the sampler's own.
func (uc *SampleFramesUseCase) policy(table string) (sampling.Config, error) {
	cfg := uc.sampler.Config()
	if table == "" || table == cfg.Table.Version {
		return cfg, nil
	}
	t, err := uc.tables.Lookup(table)
	if err != nil {
		return sampling.Config{}, err
	}
	cfg.Table = t
	return cfg, nil
}

func (uc *SampleFramesUseCase) process(ctx context.Context, job *entity.Job, log *zap.Logger) (*JobResult, error) {
	cfg, err := uc.policy(job.PhaseTable)
	if err != nil {
		return nil, err
	}
	job.CacheKey = CacheKey(job.SourceURL, cfg)
	job.PhaseTable = cfg.Table.Version

	if res := uc.fromCache(ctx, job, log); res != nil {
		return res, nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return nil, fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	totalStart := time.Now()
	res, err := uc.pipeline(ctx, cfg, job, log)
	if err != nil {
		return nil, err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalStart).Seconds())
	return res, nil
}

func (uc *SampleFramesUseCase) fromCache(ctx context.Context, job *entity.Job, log *zap.Logger) *JobResult {
	if uc.cache == nil {
		return nil
	}

	cached, err := uc.cache.Get(ctx, job.CacheKey)
	if err != nil {
		if !errors.Is(err, port.ErrCacheMiss) {
			log.Warn("artifact cache unavailable", zap.Error(err))
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	}

	artifactURL, err := uc.storage.PresignedURL(ctx, cached.ArtifactKey, uc.cfg.PresignExpiry)
	if err != nil {
		log.Warn("cached artifact unusable, recomputing", zap.Error(err))
		if errors.Is(err, port.ErrObjectNotFound) {
			_ = uc.cache.Invalidate(ctx, job.CacheKey)
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil
	}

	job.Cached = true
	job.MarkCompleted(cached.ArtifactKey, cached.FrameKeys, cached.Duration, cached.FallbackUsed)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Warn("failed to record cached job", zap.Error(err))
	}
	uc.publishStatus(ctx, job, log)

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	metrics.JobsProcessedTotal.WithLabelValues("cached").Inc()
	log.Info("job served from cache", zap.String("artifact_key", cached.ArtifactKey))

	return &JobResult{Job: job, ArtifactURL: artifactURL}
}

func (uc *SampleFramesUseCase) pipeline(ctx context.Context, cfg sampling.Config, job *entity.Job, log *zap.Logger) (*JobResult, error) {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	fetchStart := time.Now()
	ctx2, spanFetch := tracer.Start(ctx, "fetch_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	err := uc.fetcher.Fetch(ctx2, job.SourceURL, videoPath)
	spanFetch.End()
	if err != nil {
		log.Error("failed to fetch video", zap.Error(err))
		return nil, fmt.Errorf("fetch_video: %w", err)
	}
	metrics.StageDuration.WithLabelValues("fetch").Observe(time.Since(fetchStart).Seconds())

	sample, err := uc.sampler.SampleWith(ctx, cfg, videoPath, framesDir)
	if err != nil {
		log.Error("frame sampling failed", zap.Error(err))
		return nil, fmt.Errorf("sample_frames: %w", err)
	}

	prefix := "jobs/" + job.ID.String()
	zipKey := prefix + "/frames.zip"
	paths := make([]string, len(sample.Frames))
	frameKeys := make([]string, len(sample.Frames))
	for i, f := range sample.Frames {
		paths[i] = f.Path
		frameKeys[i] = prefix + "/" + filepath.Base(f.Path)
	}

	manifest, err := json.Marshal(buildManifest(job, sample, frameKeys))
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	zipStart := time.Now()
	ctx3, spanZip := tracer.Start(ctx, "create_zip")
	zipPath := filepath.Join(workDir, "frames.zip")
	err = uc.zipper.CreateZip(ctx3, paths, manifest, zipPath)
	spanZip.End()
	if err != nil {
		log.Error("zip creation failed", zap.Error(err))
		return nil, fmt.Errorf("create_zip: %w", err)
	}
	metrics.StageDuration.WithLabelValues("zip").Observe(time.Since(zipStart).Seconds())

	upStart := time.Now()
	ctx4, spanUp := tracer.Start(ctx, "upload_artifacts")
	err = uc.upload(ctx4, zipKey, zipPath, paths, frameKeys)
	spanUp.End()
	if err != nil {
		log.Error("artifact upload failed", zap.Error(err))
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	artifactURL, err := uc.storage.PresignedURL(ctx, zipKey, uc.cfg.PresignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign_zip: %w", err)
	}

	job.MarkCompleted(zipKey, frameKeys, sample.Duration, sample.Selection.Fallback)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return nil, fmt.Errorf("update job completed: %w", err)
	}

	if uc.cache != nil {
		err := uc.cache.Put(ctx, job.CacheKey, &port.CachedArtifact{
			JobID:        job.ID.String(),
			ArtifactKey:  zipKey,
			FrameKeys:    frameKeys,
			Duration:     sample.Duration,
			FallbackUsed: sample.Selection.Fallback,
			PhaseTable:   job.PhaseTable,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			log.Warn("failed to cache artifact", zap.Error(err))
		}
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("frame_count", job.FrameCount),
		zap.Float64("duration_secs", sample.Duration),
		zap.Bool("fallback_used", sample.Selection.Fallback),
		zap.String("artifact_key", zipKey),
	)

	return &JobResult{Job: job, ArtifactURL: artifactURL, Selection: sample.Selection}, nil
}

// upload stores the zip and every selected frame; keys[i] is the object key
// of paths[i].
func (uc *SampleFramesUseCase) upload(ctx context.Context, zipKey, zipPath string, paths, keys []string) error {
	zipFile, err := os.Open(zipPath)
	if err != nil {
		return fmt.Errorf("open_zip: %w", err)
	}
	defer zipFile.Close()

	info, err := zipFile.Stat()
	if err != nil {
		return fmt.Errorf("stat_zip: %w", err)
	}
	if err := uc.storage.UploadZip(ctx, zipKey, zipFile, info.Size()); err != nil {
		return fmt.Errorf("upload_zip: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.UploadParallel)
	for i, p := range paths {
		g.Go(func() error {
			return uc.storage.UploadFrame(gctx, keys[i], p)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("upload_frames: %w", err)
	}
	return nil
}

// buildManifest attributes every selected frame to the phase that picked it.
func buildManifest(job *entity.Job, sample *SampleResult, keys []string) entity.FrameManifest {
	phaseOf := make(map[sampling.FrameRef]string, len(sample.Frames))
	for _, p := range sample.Selection.Phases {
		for _, ref := range p.Frames {
			phaseOf[ref] = p.Phase
		}
	}

	m := entity.FrameManifest{
		JobID:        job.ID,
		VideoURL:     job.SourceURL,
		PhaseTable:   job.PhaseTable,
		Duration:     sample.Duration,
		FallbackUsed: sample.Selection.Fallback,
		Frames:       make([]entity.ManifestFrame, len(sample.Frames)),
	}
	for i, f := range sample.Frames {
		phase, ok := phaseOf[sampling.FrameRef(f.Path)]
		if !ok {
			phase = fallbackPhase
		}
		m.Frames[i] = entity.ManifestFrame{
			Entry:  port.EntryName(i, f.Path),
			Key:    keys[i],
			Offset: f.Offset,
			Phase:  phase,
		}
	}
	return m
}

func (uc *SampleFramesUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.FrameJobMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return &port.RetryError{Attempt: job.Attempt, MaxAttempts: job.MaxAttempts, Err: errors.New(errMsg)}
}

func (uc *SampleFramesUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.FrameJobMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkExhausted(errMsg)
	uc.persistFailure(ctx, job, log)
	uc.toDLQ(ctx, rawMsg, errMsg)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.NotifyTo != "" && uc.notifier != nil {
		_ = uc.notifier.NotifyFailure(ctx, msg.NotifyTo, job.ID.String(), job.SourceURL, errMsg)
	}
	return nil
}

func (uc *SampleFramesUseCase) persistFailure(ctx context.Context, job *entity.Job, log *zap.Logger) {
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to FAILED", zap.Error(err))
	}
	uc.publishStatus(ctx, job, log)
}

func (uc *SampleFramesUseCase) toDLQ(ctx context.Context, rawMsg []byte, reason string) {
	if uc.dlq == nil {
		return
	}
	if err := uc.dlq.PublishToDLQ(ctx, rawMsg, reason); err != nil {
		uc.logger.Error("failed to publish to DLQ", zap.Error(err))
	}
}

func (uc *SampleFramesUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	if uc.publisher == nil {
		return
	}
	data, _ := json.Marshal(job.StatusMessage())
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

// permanent reports failures that no retry can fix.
func permanent(err error) bool {
	return errors.Is(err, sampling.ErrNoContent) ||
		errors.Is(err, sampling.ErrInvalidInput) ||
		errors.Is(err, port.ErrObjectNotFound)
}

func failureLabel(err error) string {
	if errors.Is(err, sampling.ErrNoContent) {
		return "no_content"
	}
	return "failed"
}

// normalizeURL trims the source and lowercases the scheme and host of absolute
// URLs so equivalent links share a cache entry.
func normalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: video_url is required", sampling.ErrInvalidInput)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid video_url: %v", sampling.ErrInvalidInput, err)
	}
	if u.Scheme == "" {
		return s, nil
	}
	u.Scheme = strings.ToLower(u.Scheme)
	switch u.Scheme {
	case "http", "https", "minio", "s3":
	default:
		return "", fmt.Errorf("%w: unsupported video_url scheme %q", sampling.ErrInvalidInput, u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}
