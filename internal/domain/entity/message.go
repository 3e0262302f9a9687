package entity

import "github.com/google/uuid"

// FrameJobMessage is the inbound message from the frames.sampling queue.
type FrameJobMessage struct {
	JobID      uuid.UUID `json:"job_id"`
	VideoURL   string    `json:"video_url"`
	PhaseTable string    `json:"phase_table,omitempty"`
	NotifyTo   string    `json:"notify_to,omitempty"`
}

// FrameJobStatusMessage is the outbound message published to the frames.status queue.
type FrameJobStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	Status       JobStatus `json:"status"`
	VideoURL     string    `json:"video_url"`
	ArtifactKey  string    `json:"artifact_key,omitempty"`
	FrameCount   int       `json:"frame_count,omitempty"`
	Frames       []string  `json:"frames,omitempty"`
	Duration     float64   `json:"duration_seconds,omitempty"`
	FallbackUsed bool      `json:"fallback_used,omitempty"`
	Cached       bool      `json:"cached,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}

// StatusMessage builds the outbound status for j.
func (j *Job) StatusMessage() FrameJobStatusMessage {
	return FrameJobStatusMessage{
		JobID:        j.ID,
		Status:       j.Status,
		VideoURL:     j.SourceURL,
		ArtifactKey:  j.ArtifactKey,
		FrameCount:   j.FrameCount,
		Frames:       j.FrameRefs,
		Duration:     j.Duration,
		FallbackUsed: j.FallbackUsed,
		Cached:       j.Cached,
		ErrorMessage: j.ErrorMessage,
		Attempt:      j.Attempt,
		MaxAttempts:  j.MaxAttempts,
	}
}
