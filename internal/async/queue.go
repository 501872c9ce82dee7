package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/docparse/internal/llm"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document waiting for extraction.
type Job struct {
	Path        string
	Input       pipeline.DocumentInput
	Spec        llm.ExtractionSpec
	SubmittedAt time.Time
	TraceID     string
}

// JobResult is what a worker produced for a Job. Exactly one of Result and Err is set.
type JobResult struct {
	Job     Job
	Result  *pipeline.Result
	Err     error
	Elapsed time.Duration
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context) error
}

// Runner is the part of the pipeline the workers call.
type Runner interface {
	Run(ctx context.Context, in pipeline.DocumentInput, spec llm.ExtractionSpec) (*pipeline.Result, error)
}
