package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/annotit/core"
)

// Scheduler fans intervals out to an IntervalRunner on a bounded pool.
type Scheduler struct {
	runner   IntervalRunner
	pool     *ants.Pool
	threads  int
	stats    *Stats
	progress io.Writer
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithThreads sets the number of intervals processed concurrently.
// Default is 1.
func WithThreads(n int) Option {
	return func(s *Scheduler) error {
		if n < 1 {
			return fmt.Errorf("%w: threads must be at least 1, got %d", core.ErrConfiguration, n)
		}
		s.threads = n
		return nil
	}
}

// WithStats sets the counters interval outcomes are recorded in.
// Pass the same Stats the runner uses to get a complete summary.
func WithStats(stats *Stats) Option {
	return func(s *Scheduler) error {
		if stats != nil {
			s.stats = stats
		}
		return nil
	}
}

// WithProgress enables progress reporting to w.
func WithProgress(w io.Writer) Option {
	return func(s *Scheduler) error {
		s.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner IntervalRunner, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, ErrRunnerRequired
	}

	s := &Scheduler{
		runner:  runner,
		threads: 1,
		stats:   NewStats(),
		logger:  slog.Default().With("component", "scheduler"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(s.threads)
	if err != nil {
		return nil, fmt.Errorf("%w: creating worker pool: %w", core.ErrConfiguration, err)
	}
	s.pool = pool
	return s, nil
}

// Stats returns the counters the scheduler records into.
func (s *Scheduler) Stats() *Stats {
	return s.stats
}

// Run partitions [start, end) and processes every interval, blocking until
// all have finished. Interval failures are reflected in the summary; an
// error is returned only for invalid arguments or when the pool rejects a
// job, in which case the intervals already submitted are still awaited.
func (s *Scheduler) Run(ctx context.Context, runID string, start, end time.Time, intervalDays int) (*core.RunSummary, error) {
	started := time.Now()
	intervals, err := Partition(start, end, intervalDays)
	if err != nil {
		return nil, err
	}

	logger := s.logger
	if runID != "" {
		logger = logger.With("run_id", runID)
	}
	logger.Info("starting run",
		"start", start.Format(time.RFC3339), "end", end.Format(time.RFC3339),
		"intervals", len(intervals), "threads", s.threads)

	s.stats.IntervalsTotal.Add(int64(len(intervals)))

	var tracker *ProgressTracker
	if s.progress != nil {
		tracker = NewProgressTracker(s.progress, len(intervals), 1)
		tracker.Start()
	}

	var wg sync.WaitGroup
	var submitErr error
	for _, interval := range intervals {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			failed := s.runInterval(ctx, logger, interval)
			if tracker != nil {
				tracker.Record(failed)
			}
		})
		if err != nil {
			wg.Done()
			s.stats.IntervalsFailed.Add(1)
			submitErr = fmt.Errorf("submitting interval %s: %w", interval, err)
			logger.Error("could not submit interval", "interval", interval.String(), "error", err)
			break
		}
	}
	wg.Wait()

	if tracker != nil {
		tracker.Finish()
	}
	summary := s.stats.Summary(runID, started)
	logger.Info("run finished", "summary", summary.String())
	return summary, submitErr
}

// runInterval runs one interval and records its outcome. A panic in the
// runner marks the interval failed.
func (s *Scheduler) runInterval(ctx context.Context, logger *slog.Logger, interval core.DateInterval) (failed bool) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("interval failed", "interval", interval.String(), "error", ErrIntervalPanicked, "panic", p)
			s.stats.IntervalsFailed.Add(1)
			failed = true
		}
	}()

	if err := s.runner.RunInterval(ctx, interval); err != nil {
		logger.Error("interval failed", "interval", interval.String(), "error", err)
		s.stats.IntervalsFailed.Add(1)
		return true
	}
	s.stats.IntervalsCompleted.Add(1)
	return false
}

// Release frees the worker pool. The scheduler must not be used afterwards.
func (s *Scheduler) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}
