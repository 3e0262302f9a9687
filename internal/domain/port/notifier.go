package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, to string, jobID string, videoURL string, errorMsg string) error
}
