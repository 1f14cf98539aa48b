// Package ingest runs the background index-maintenance worker: style
// index rebuilds after sample appends and feedback index reconciliation
// after partial stores.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/quill/internal/storage"
)

// Job types processed by the worker.
const (
	JobStyleReindex    = "style_reindex"
	JobFeedbackReindex = "feedback_reindex"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// StyleRebuilder rebuilds a profile's style index from its current samples.
type StyleRebuilder interface {
	Rebuild(ctx context.Context, profile string) error
}

// FeedbackReconciler indexes feedback log entries missing from the vector
// index, returning how many were repaired.
type FeedbackReconciler interface {
	Reconcile(ctx context.Context, profile string) (int, error)
}

// Worker processes index-maintenance jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	styles   StyleRebuilder
	feedback FeedbackReconciler
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, styles StyleRebuilder, feedback FeedbackReconciler, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:    store,
		styles:   styles,
		feedback: feedback,
		poll:     pollInterval,
		logger:   logger,
	}
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
	job, err := w.store.ClaimNextJob([]string{JobStyleReindex, JobFeedbackReindex})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
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

type reindexPayload struct {
	Profile string `json:"profile"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload reindexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.Profile == "" {
		return fmt.Errorf("job %s has no profile", job.ID)
	}

	switch job.Type {
	case JobStyleReindex:
		if err := w.styles.Rebuild(ctx, payload.Profile); err != nil {
			return fmt.Errorf("rebuilding style index for %s: %w", payload.Profile, err)
		}
		w.logger.Info("style index rebuilt", "profile", payload.Profile)
	case JobFeedbackReindex:
		n, err := w.feedback.Reconcile(ctx, payload.Profile)
		if err != nil {
			return fmt.Errorf("reconciling feedback index for %s: %w", payload.Profile, err)
		}
		if n > 0 {
			w.logger.Info("feedback index reconciled", "profile", payload.Profile, "repaired", n)
		}
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
	return nil
}

// Enqueue queues an index-maintenance job for the profile.
func Enqueue(store JobStore, jobType, profile string) error {
	payload, err := json.Marshal(reindexPayload{Profile: profile})
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}
	return store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		PayloadJSON: string(payload),
		MaxAttempts: 3,
	})
}
