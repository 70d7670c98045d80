package worker

import (
	"context"
	"log"
	"time"

	"github.com/kudeepakh/farmqueue/internal/job"
	"github.com/kudeepakh/farmqueue/internal/metrics"
	"github.com/kudeepakh/farmqueue/internal/store"
)

// Config bounds a worker run. Zero MaxJobs and MaxTime mean
// unlimited.
type Config struct {
	MaxJobs       int
	MaxTime       time.Duration
	SleepInterval time.Duration
}

const defaultSleepInterval = 3 * time.Second

// Worker is a sequential polling loop over one Queue. It has no
// internal concurrency; run more workers for more throughput and let
// the store's claim exclusivity keep them apart.
type Worker struct {
	id       int
	store    store.Queue
	registry *job.Registry
	metrics  metrics.MetricsFn
	logger   *log.Logger
	cfg      Config

	processed int
}

func New(id int, st store.Queue, registry *job.Registry, m metrics.MetricsFn, logger *log.Logger, cfg Config) *Worker {
	if cfg.SleepInterval <= 0 {
		cfg.SleepInterval = defaultSleepInterval
	}
	return &Worker{
		id:       id,
		store:    st,
		registry: registry,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// Processed reports how many jobs completed successfully during the
// current or last Run.
func (w *Worker) Processed() int { return w.processed }

// Run polls until the context is canceled, MaxJobs jobs have been
// processed, or MaxTime has elapsed. Shutdown is cooperative: a job
// that is executing when the stop arrives always finishes and is
// resolved back to the store.
func (w *Worker) Run(ctx context.Context) {
	w.metrics.IncActiveWorkers()
	defer w.metrics.DecActiveWorkers()

	if w.cfg.MaxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.MaxTime)
		defer cancel()
	}

	w.processed = 0
	start := time.Now()
	w.logger.Printf("worker %d started max_jobs=%d max_time=%s sleep=%s",
		w.id, w.cfg.MaxJobs, w.cfg.MaxTime, w.cfg.SleepInterval)

	for {
		if ctx.Err() != nil {
			break
		}
		if w.cfg.MaxJobs > 0 && w.processed >= w.cfg.MaxJobs {
			break
		}

		found, err := w.RunNext(ctx)
		if err != nil {
			w.logger.Printf("worker %d: pop failed: %v", w.id, err)
			w.idle(ctx)
			continue
		}
		if !found {
			w.idle(ctx)
		}
	}

	w.logger.Printf("worker %d stopped jobs_processed=%d elapsed=%s",
		w.id, w.processed, time.Since(start).Round(time.Millisecond))
}

// RunNext claims and drives at most one job through the
// completed/retrying/failed resolution and reports whether any work
// was found. It shares all retry and failure policy with Run; callers
// use it for manual draining.
func (w *Worker) RunNext(ctx context.Context) (bool, error) {
	rec, err := w.store.Pop(ctx)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	w.metrics.IncInflight()
	defer w.metrics.DecInflight()

	// Resolution must reach the store even when the run context is
	// already canceled, or the record stays claimed until the
	// visibility timeout reaps it.
	resolveCtx := context.WithoutCancel(ctx)

	j, err := w.registry.Decode(rec.Payload)
	if err != nil {
		// Corrupt or unknown blobs can never become valid by
		// retrying. Terminal on first pop.
		w.metrics.IncJobsCorrupt()
		w.logger.Printf("worker %d: record %s undecodable: %v", w.id, rec.ID, err)
		if ferr := w.store.Fail(resolveCtx, rec.ID, rec.Payload, err.Error()); ferr != nil {
			w.logger.Printf("worker %d: fail record %s: %v", w.id, rec.ID, ferr)
		}
		return true, nil
	}

	j.SetAttempts(j.Attempts() + 1)

	handleErr := j.Handle(ctx)
	if handleErr == nil {
		if cerr := w.store.Complete(resolveCtx, rec.ID); cerr != nil {
			w.logger.Printf("worker %d: complete record %s: %v", w.id, rec.ID, cerr)
		}
		w.processed++
		w.metrics.IncJobsProcessed()
		return true, nil
	}

	if j.Attempts() < j.MaxAttempts() {
		w.retry(resolveCtx, rec, j, handleErr)
	} else {
		w.failPermanently(resolveCtx, rec, j, handleErr)
	}
	return true, nil
}

func (w *Worker) retry(ctx context.Context, rec *store.Record, j job.Job, handleErr error) {
	blob, err := job.Encode(j)
	if err != nil {
		// A job that cannot be re-encoded cannot be retried.
		w.failPermanently(ctx, rec, j, err)
		return
	}

	w.logger.Printf("worker %d: job %s (record %s) attempt %d/%d failed, retrying in %s: %v",
		w.id, j.Name(), rec.ID, j.Attempts(), j.MaxAttempts(), j.RetryDelay(), handleErr)

	if err := w.store.Retry(ctx, rec.ID, blob, j.RetryDelay()); err != nil {
		w.logger.Printf("worker %d: retry record %s: %v", w.id, rec.ID, err)
		return
	}
	w.metrics.IncJobsRetried()
}

func (w *Worker) failPermanently(ctx context.Context, rec *store.Record, j job.Job, handleErr error) {
	w.logger.Printf("worker %d: job %s (record %s) permanently failed after %d attempts: %v",
		w.id, j.Name(), rec.ID, j.Attempts(), handleErr)

	w.invokeFailedHook(ctx, j, handleErr)

	blob, err := job.Encode(j)
	if err != nil {
		blob = rec.Payload
	}
	if ferr := w.store.Fail(ctx, rec.ID, blob, handleErr.Error()); ferr != nil {
		w.logger.Printf("worker %d: fail record %s: %v", w.id, rec.ID, ferr)
		return
	}
	w.metrics.IncJobsFailed()
}

// invokeFailedHook runs the job's terminal hook exactly once. The
// hook is best-effort: a panic inside it is logged and swallowed so
// it can neither crash the worker nor undo the terminal mark.
func (w *Worker) invokeFailedHook(ctx context.Context, j job.Job, handleErr error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Printf("worker %d: failed() hook for job %s panicked: %v", w.id, j.Name(), r)
		}
	}()
	j.Failed(ctx, handleErr)
}

// idle is the empty-queue sleep. Fixed interval, woken early by
// shutdown or the MaxTime deadline.
func (w *Worker) idle(ctx context.Context) {
	t := time.NewTimer(w.cfg.SleepInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
