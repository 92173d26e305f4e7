// Package queue drives the pipeline from the durable job queue, so
// documents submitted through the API survive restarts and are retried
// with backoff.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/karsov/docroute/internal/pipeline"
	"github.com/karsov/docroute/internal/storage"
)

// JobTypeProcessDocument is the queue entry for one document run.
const JobTypeProcessDocument = "process_document"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// DocumentProcessor runs one document through the pipeline.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, path string) pipeline.Result
}

// Worker claims process_document jobs one at a time and runs them through
// the pipeline.
type Worker struct {
	store     JobStore
	processor DocumentProcessor
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, processor DocumentProcessor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		processor: processor,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// EnqueueDocument queues a document path for processing and returns the
// job id.
func EnqueueDocument(store JobStore, path string) (string, error) {
	payload, err := json.Marshal(documentPayload{Path: path})
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeProcessDocument,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing document job: %w", err)
	}
	return job.ID, nil
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeProcessDocument})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type documentPayload struct {
	Path string `json:"path"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload documentPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.Path == "" {
		return errors.New("payload missing document path")
	}

	result := w.processor.ProcessDocument(ctx, payload.Path)
	if result.Status != pipeline.StatusSuccess {
		return fmt.Errorf("processing %s: %s", payload.Path, result.Message)
	}

	w.logger.Info("document job completed",
		"job_id", job.ID,
		"thread_id", result.ThreadID,
		"intent", result.Intent,
	)
	return nil
}
