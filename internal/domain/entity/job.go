package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

type Job struct {
	ID           uuid.UUID
	SourceURL    string
	CacheKey     string
	PhaseTable   string
	Status       JobStatus
	Duration     float64
	FrameCount   int
	FrameRefs    []string
	ArtifactKey  string
	FallbackUsed bool
	Cached       bool
	Attempt      int
	MaxAttempts  int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewJob(sourceURL string, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		SourceURL:   sourceURL,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

// MarkCompleted records the final selection. frameRefs are the stored object
// keys of the selected frames, in selection order.
func (j *Job) MarkCompleted(artifactKey string, frameRefs []string, duration float64, fallbackUsed bool) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ArtifactKey = artifactKey
	j.FrameRefs = frameRefs
	j.FrameCount = len(frameRefs)
	j.Duration = duration
	j.FallbackUsed = fallbackUsed
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

// MarkExhausted fails the job and spends its remaining attempts so it is never retried.
func (j *Job) MarkExhausted(errMsg string) {
	j.MarkFailed(errMsg)
	j.Attempt = j.MaxAttempts
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
