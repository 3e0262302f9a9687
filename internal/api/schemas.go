package api

import (
	"time"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-sampler/internal/domain/sampling"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type CreateJobRequest struct {
	VideoURL string `json:"video_url"`
	Async    bool   `json:"async"`
	NotifyTo string `json:"notify_to,omitempty"`
}

type PhaseFramesResponse struct {
	Phase  string   `json:"phase"`
	Frames []string `json:"frames"`
}

type JobResponse struct {
	JobID        string                `json:"job_id"`
	Status       string                `json:"status"`
	VideoURL     string                `json:"video_url"`
	PhaseTable   string                `json:"phase_table,omitempty"`
	Duration     float64               `json:"duration_seconds"`
	FrameCount   int                   `json:"frame_count"`
	Frames       []string              `json:"frames"`
	Phases       []PhaseFramesResponse `json:"phases,omitempty"`
	ArtifactURL  string                `json:"artifact_url,omitempty"`
	FallbackUsed bool                  `json:"fallback_used"`
	Cached       bool                  `json:"cached"`
	Attempt      int                   `json:"attempt"`
	MaxAttempts  int                   `json:"max_attempts"`
	Error        string                `json:"error,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

func JobToResponse(j *entity.Job) JobResponse {
	frames := j.FrameRefs
	if frames == nil {
		frames = []string{}
	}
	return JobResponse{
		JobID:        j.ID.String(),
		Status:       string(j.Status),
		VideoURL:     j.SourceURL,
		PhaseTable:   j.PhaseTable,
		Duration:     j.Duration,
		FrameCount:   j.FrameCount,
		Frames:       frames,
		FallbackUsed: j.FallbackUsed,
		Cached:       j.Cached,
		Attempt:      j.Attempt,
		MaxAttempts:  j.MaxAttempts,
		Error:        j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		CompletedAt:  j.CompletedAt,
	}
}

// phasesToResponse renders per-phase attribution with the stored key of each
// frame, matched by position in the overall selection.
func phasesToResponse(sel sampling.Selection, keys []string) []PhaseFramesResponse {
	if len(sel.Phases) == 0 || len(keys) != len(sel.Frames) {
		return nil
	}
	keyOf := make(map[sampling.FrameRef]string, len(keys))
	for i, ref := range sel.Frames {
		keyOf[ref] = keys[i]
	}
	out := make([]PhaseFramesResponse, len(sel.Phases))
	for i, p := range sel.Phases {
		frames := make([]string, len(p.Frames))
		for k, ref := range p.Frames {
			frames[k] = keyOf[ref]
		}
		out[i] = PhaseFramesResponse{Phase: p.Phase, Frames: frames}
	}
	return out
}
