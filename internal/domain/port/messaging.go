package port

import (
	"context"
	"fmt"
)

type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}

// JobPublisher enqueues frame jobs for the worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, msg []byte) error
}

// RetryError asks the transport to redeliver a job message. Attempt is the
// 1-based attempt that just failed and drives the redelivery backoff.
type RetryError struct {
	Attempt     int
	MaxAttempts int
	Err         error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retryable failure (attempt %d/%d): %v", e.Attempt, e.MaxAttempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}
