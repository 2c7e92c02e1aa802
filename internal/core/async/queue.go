package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document to process. JobID is set when ingestion already
// created a QUEUED extract_job; otherwise Path is processed from scratch.
type Job struct {
	JobID       uuid.UUID
	Path        string
	Force       bool // enqueued even though the content hash was seen before
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
