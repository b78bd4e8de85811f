package verification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Worker defaults; all of them are tunable through WorkerConfig.
const (
	defaultCycleInterval = 30 * time.Second
	defaultSweepInterval = 5 * time.Minute
	defaultBatchSize     = 10
	defaultPaceInterval  = 500 * time.Millisecond
)

// WorkerConfig configures the periodic verification worker.
type WorkerConfig struct {
	Service       *Service
	Interval      time.Duration
	SweepInterval time.Duration
	BatchSize     int
	PaceInterval  time.Duration
	Logger        *slog.Logger
	Metrics       *Metrics
}

// Worker drives pending verifications to completion on a fixed cadence. The
// main cycle enforces single-flight execution: a tick that fires while a cycle
// is still running is dropped, not queued. Expiry sweeping runs on its own
// independent cadence.
type Worker struct {
	service       *Service
	interval      time.Duration
	sweepInterval time.Duration
	batchSize     int
	limiter       *rate.Limiter
	logger        *slog.Logger
	metrics       *Metrics

	running atomic.Bool
}

// WorkerStatus summarises worker state for administrative endpoints.
type WorkerStatus struct {
	Running   bool `json:"running"`
	BatchSize int  `json:"batchSize"`
}

// NewWorker constructs a worker with sane defaults.
func NewWorker(cfg WorkerConfig) *Worker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultCycleInterval
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	pace := cfg.PaceInterval
	if pace <= 0 {
		pace = defaultPaceInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		service:       cfg.Service,
		interval:      interval,
		sweepInterval: sweepInterval,
		batchSize:     batchSize,
		limiter:       rate.NewLimiter(rate.Every(pace), 1),
		logger:        logger,
		metrics:       cfg.Metrics,
	}
}

// Start runs both periodic loops until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	if w == nil || w.service == nil {
		return
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.cycleLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		w.sweepLoop(ctx)
	}()
	wg.Wait()
}

func (w *Worker) cycleLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

func (w *Worker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunSweep(ctx)
		}
	}
}

// RunCycle executes one reconciliation pass over up to batchSize eligible
// records. Overlapping invocations are dropped.
func (w *Worker) RunCycle(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Debug("verification cycle already running, skipping")
		w.metrics.RecordSkip()
		return
	}
	w.metrics.SetRunning(true)
	defer func() {
		w.running.Store(false)
		w.metrics.SetRunning(false)
	}()

	start := time.Now()
	pending, err := w.service.PendingRetry(ctx)
	if err != nil {
		w.logger.Error("verification cycle aborted", "error", err)
		return
	}
	if len(pending) == 0 {
		w.logger.Debug("no pending verifications to process")
		return
	}
	w.logger.Info("processing pending verifications", "pending", len(pending), "batchSize", w.batchSize)

	processed, verified, failed := 0, 0, 0
	for i := range pending {
		if processed >= w.batchSize {
			w.logger.Info("batch size limit reached, remaining verifications roll to next cycle",
				"remaining", len(pending)-processed)
			break
		}
		// Pacing between ledger calls; Wait returns early on shutdown and the
		// remainder of the batch is abandoned with no record left mid-update.
		if err := w.limiter.Wait(ctx); err != nil {
			w.logger.Warn("verification worker interrupted", "error", err)
			break
		}

		rec := pending[i]
		ok, err := w.service.VerifyOne(ctx, &rec)
		switch {
		case err != nil && errors.Is(err, ErrStale):
			w.logger.Debug("record changed concurrently, skipping", "id", rec.ID)
			w.metrics.RecordAttempt("stale")
		case err != nil:
			w.logger.Error("verification attempt errored", "id", rec.ID, "error", err)
			failed++
			w.metrics.RecordAttempt("error")
		case ok:
			verified++
			w.metrics.RecordAttempt("verified")
		default:
			failed++
			w.metrics.RecordAttempt("failed")
		}
		processed++
	}

	w.metrics.ObserveCycle(time.Since(start))
	w.logger.Info("verification cycle completed", "processed", processed, "verified", verified, "failed", failed)
}

// RunSweep marks exhausted records as EXPIRED.
func (w *Worker) RunSweep(ctx context.Context) {
	expired, err := w.service.SweepExpired(ctx)
	if err != nil {
		w.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if expired > 0 {
		w.metrics.RecordExpired(expired)
		w.logger.Info("expiry sweep completed", "expired", expired)
	}
}

// Status reports the current worker state snapshot.
func (w *Worker) Status() WorkerStatus {
	return WorkerStatus{
		Running:   w.running.Load(),
		BatchSize: w.batchSize,
	}
}
