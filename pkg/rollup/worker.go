package rollup

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
)

// DefaultQueueSize is the default job queue capacity.
const DefaultQueueSize = 64

// Job is one queued rollup request. An empty date list means all history.
type Job struct {
	Dates      []time.Time
	EnqueuedAt time.Time
}

// JobResult records the outcome of one processed job so callers can observe
// whether background rollups are completing.
type JobResult struct {
	Dates      int       `json:"dates"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// Worker processes rollup jobs on a single background goroutine. Ingestion
// submits work here and returns immediately; a failed rollup never fails the
// upload that triggered it.
type Worker struct {
	engine *Engine
	logger ectologger.Logger

	jobs      chan Job
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu         sync.RWMutex
	running    bool
	processed  int
	failed     int
	lastResult *JobResult
}

// NewWorker creates a new rollup worker
func NewWorker(engine *Engine, queueSize int, logger ectologger.Logger) *Worker {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	return &Worker{
		engine:    engine,
		logger:    logger,
		jobs:      make(chan Job, queueSize),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// GetName implements startup.StartupDependency
func (w *Worker) GetName() string {
	return "rollup-worker"
}

// DependsOn implements startup.StartupDependency
func (w *Worker) DependsOn() []string {
	return []string{}
}

// Start launches the worker goroutine
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	w.running = true

	go w.loop()
	w.logger.Info("Rollup worker started")
	return nil
}

// Stop drains the in-flight job and shuts the worker down.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	select {
	case <-w.stoppedCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.logger.Info("Rollup worker stopped")
	return nil
}

// Submit enqueues a rollup job without blocking. Returns false when the queue
// is full; the dates will be covered by the next full run instead.
func (w *Worker) Submit(dates []time.Time) bool {
	job := Job{Dates: dates, EnqueuedAt: time.Now().UTC()}
	select {
	case w.jobs <- job:
		return true
	default:
		w.logger.WithFields(map[string]any{"dates": len(dates)}).Warn("Rollup queue full, dropping job")
		return false
	}
}

// LastResult returns the most recent job outcome, nil before the first job.
func (w *Worker) LastResult() *JobResult {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.lastResult == nil {
		return nil
	}
	result := *w.lastResult
	return &result
}

// Stats returns the processed and failed job counts.
func (w *Worker) Stats() (processed, failed int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.processed, w.failed
}

func (w *Worker) loop() {
	defer close(w.stoppedCh)

	for {
		select {
		case <-w.stopCh:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case job := <-w.jobs:
					w.process(job)
				default:
					return
				}
			}
		case job := <-w.jobs:
			w.process(job)
		}
	}
}

// process runs one job on a background context. Request contexts are long gone
// by the time a job runs, so cancellation only comes from shutdown.
func (w *Worker) process(job Job) {
	result := JobResult{
		Dates:     len(job.Dates),
		StartedAt: time.Now().UTC(),
	}

	err := w.engine.Run(context.Background(), job.Dates)
	result.FinishedAt = time.Now().UTC()
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
	}

	w.mu.Lock()
	w.processed++
	if err != nil {
		w.failed++
	}
	w.lastResult = &result
	w.mu.Unlock()

	if err != nil {
		w.logger.WithError(err).WithFields(map[string]any{
			"dates":      len(job.Dates),
			"elapsed_ms": result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		}).Error("Rollup job failed")
		return
	}

	w.logger.WithFields(map[string]any{
		"dates":      len(job.Dates),
		"elapsed_ms": result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}).Debug("Rollup job completed")
}
