package entity

import "github.com/google/uuid"

// FrameManifest describes a frame archive: where each frame sits in the video
// and which phase selected it.
type FrameManifest struct {
	JobID        uuid.UUID       `json:"job_id"`
	VideoURL     string          `json:"video_url"`
	PhaseTable   string          `json:"phase_table"`
	Duration     float64         `json:"duration_seconds"`
	FallbackUsed bool            `json:"fallback_used"`
	Frames       []ManifestFrame `json:"frames"`
}

// ManifestFrame is one packed frame. Phase is "fallback" for frames added by
// the uniform fallback.
type ManifestFrame struct {
	Entry  string  `json:"entry"`
	Key    string  `json:"key"`
	Offset float64 `json:"offset_seconds"`
	Phase  string  `json:"phase"`
}
