package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EffectProcessor runs due effect tasks
type EffectProcessor interface {
	ProcessDue(ctx context.Context, limit int) (int, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// EffectWorkerConfig holds configuration for the effect worker
type EffectWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// StaleAfter is how long a task may stay RUNNING before it is assumed
	// abandoned by a crashed process
	StaleAfter time.Duration
}

// DefaultEffectWorkerConfig returns default configuration
func DefaultEffectWorkerConfig() EffectWorkerConfig {
	return EffectWorkerConfig{
		PollInterval: 15 * time.Second,
		BatchSize:    20,
		StaleAfter:   10 * time.Minute,
	}
}

// EffectWorker retries failed effects and runs scheduled ones, such as a
// mutation whose effective date has come
type EffectWorker struct {
	config    EffectWorkerConfig
	processor EffectProcessor
	logger    *zap.Logger

	mu             sync.RWMutex
	cancel         context.CancelFunc
	done           chan struct{}
	isRunning      bool
	lastProcessed  time.Time
	processedCount int
	releasedCount  int64
	lastError      error
}

// NewEffectWorker creates a new effect worker
func NewEffectWorker(config EffectWorkerConfig, processor EffectProcessor, logger *zap.Logger) *EffectWorker {
	def := DefaultEffectWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	return &EffectWorker{
		config:    config,
		processor: processor,
		logger:    logger,
	}
}

// Start begins the worker polling loop
func (w *EffectWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("effect worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("EffectWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the current batch to finish
func (w *EffectWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("EffectWorker stopped",
		zap.Int("processed_count", stats.Processed),
		zap.Int64("released_count", stats.Released))
	return nil
}

// Name returns the worker name for identification
func (w *EffectWorker) Name() string {
	return "EffectWorker"
}

// pollLoop runs one pass immediately, then one per tick
func (w *EffectWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick releases abandoned tasks then processes due ones
func (w *EffectWorker) tick(ctx context.Context) {
	released, err := w.processor.ReleaseStale(ctx, w.config.StaleAfter)
	if err != nil {
		w.recordError(fmt.Errorf("failed to release stale tasks: %w", err))
	} else if released > 0 {
		w.logger.Info("Released stale effect tasks", zap.Int64("count", released))
	}

	processed, err := w.processor.ProcessDue(ctx, w.config.BatchSize)
	if err != nil {
		w.recordError(fmt.Errorf("failed to process due effects: %w", err))
	} else if processed > 0 {
		w.logger.Debug("Processed due effect tasks", zap.Int("count", processed))
	}

	w.mu.Lock()
	w.processedCount += processed
	w.releasedCount += released
	w.lastProcessed = time.Now()
	w.mu.Unlock()
}

func (w *EffectWorker) recordError(err error) {
	w.mu.Lock()
	w.lastError = err
	w.mu.Unlock()
	w.logger.Error("Effect worker pass failed", zap.Error(err))
}

// EffectWorkerStats is a snapshot of the worker counters
type EffectWorkerStats struct {
	Running       bool
	Processed     int
	Released      int64
	LastProcessed time.Time
	LastError     error
}

// Stats returns the worker counters
func (w *EffectWorker) Stats() EffectWorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return EffectWorkerStats{
		Running:       w.isRunning,
		Processed:     w.processedCount,
		Released:      w.releasedCount,
		LastProcessed: w.lastProcessed,
		LastError:     w.lastError,
	}
}
