package port

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("artifact cache miss")

// CachedArtifact is what a finished job leaves behind in storage.
type CachedArtifact struct {
	JobID        string    `json:"job_id"`
	ArtifactKey  string    `json:"artifact_key"`
	FrameKeys    []string  `json:"frame_keys"`
	Duration     float64   `json:"duration_seconds"`
	FallbackUsed bool      `json:"fallback_used"`
	PhaseTable   string    `json:"phase_table"`
	CreatedAt    time.Time `json:"created_at"`
}

// ArtifactCache maps a content-derived key to a stored artifact. Entries expire
// on their own; Invalidate drops one early.
type ArtifactCache interface {
	Get(ctx context.Context, key string) (*CachedArtifact, error)
	Put(ctx context.Context, key string, artifact *CachedArtifact) error
	Invalidate(ctx context.Context, key string) error
}
