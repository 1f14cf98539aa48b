package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kalambet/quill/internal/storage"
)

type fakeStyles struct {
	rebuilt []string
	err     error
}

func (f *fakeStyles) Rebuild(_ context.Context, profile string) error {
	f.rebuilt = append(f.rebuilt, profile)
	return f.err
}

type fakeFeedback struct {
	reconciled []string
	repaired   int
	err        error
}

func (f *fakeFeedback) Reconcile(_ context.Context, profile string) (int, error) {
	f.reconciled = append(f.reconciled, profile)
	return f.repaired, f.err
}

func newTestWorker(t *testing.T) (*Worker, *storage.Store, *fakeStyles, *fakeFeedback) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	styles := &fakeStyles{}
	fb := &fakeFeedback{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorker(db, styles, fb, 10*time.Millisecond, logger), db, styles, fb
}

func TestRunOnceNoJobs(t *testing.T) {
	w, _, _, _ := newTestWorker(t)
	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if done {
		t.Fatal("no job should have been processed")
	}
}

func TestRunOnceStyleReindex(t *testing.T) {
	w, db, styles, _ := newTestWorker(t)
	if err := Enqueue(db, JobStyleReindex, "work"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !done {
		t.Fatal("expected a job to be processed")
	}
	if len(styles.rebuilt) != 1 || styles.rebuilt[0] != "work" {
		t.Fatalf("rebuilt = %v, want [work]", styles.rebuilt)
	}

	// Completed job must not be claimed again.
	done, err = w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run once: %v", err)
	}
	if done {
		t.Fatal("completed job was claimed again")
	}
}

func TestRunOnceFeedbackReindex(t *testing.T) {
	w, db, _, fb := newTestWorker(t)
	fb.repaired = 2
	if err := Enqueue(db, JobFeedbackReindex, "casual"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !done {
		t.Fatal("expected a job to be processed")
	}
	if len(fb.reconciled) != 1 || fb.reconciled[0] != "casual" {
		t.Fatalf("reconciled = %v, want [casual]", fb.reconciled)
	}
}

func TestFailedJobIsRetriedLater(t *testing.T) {
	w, db, styles, _ := newTestWorker(t)
	styles.err = errors.New("embedding service down")
	if err := Enqueue(db, JobStyleReindex, "work"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !done {
		t.Fatal("failing job still counts as processed")
	}
	if len(styles.rebuilt) != 1 {
		t.Fatalf("rebuild attempts = %d, want 1", len(styles.rebuilt))
	}

	// The job is rescheduled with backoff, so it is not immediately claimable.
	done, err = w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run once: %v", err)
	}
	if done {
		t.Fatal("failed job should be backed off, not immediately reclaimed")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w, _, _, _ := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
