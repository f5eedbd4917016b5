// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package annotit assembles the annotation pipeline from a configuration:
// it opens the document stores, builds the NLP client and schema mapper,
// and runs passes over the configured date range once or on a schedule.
package annotit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"github.com/poiesic/annotit/config"
	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/ingestion"
	"github.com/poiesic/annotit/mapping"
	"github.com/poiesic/annotit/metrics"
	"github.com/poiesic/annotit/nlp"
	"github.com/poiesic/annotit/storage"
)

// Ingester owns the clients of a pipeline and runs passes with them.
type Ingester struct {
	cfg       *config.Config
	source    storage.Store
	sink      storage.Store
	annotator nlp.Annotator
	mapper    mapping.Mapper
	collector *metrics.Collector
	progress  io.Writer
	now       func() time.Time
	logger    *slog.Logger

	// closers run in reverse order on Close.
	closers []func() error
}

// Option configures an Ingester.
type Option func(*options)

type options struct {
	source    storage.Store
	sink      storage.Store
	annotator nlp.Annotator
	collector *metrics.Collector
	progress  io.Writer
	now       func() time.Time
}

// WithStores uses already open stores instead of opening them from the
// configuration. The caller keeps ownership.
func WithStores(source, sink storage.Store) Option {
	return func(o *options) {
		o.source = source
		o.sink = sink
	}
}

// WithAnnotator replaces the HTTP annotation client. The caller keeps
// ownership.
func WithAnnotator(a nlp.Annotator) Option {
	return func(o *options) {
		o.annotator = a
	}
}

// WithCollector publishes run counters to c.
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) {
		o.collector = c
	}
}

// WithProgress reports interval progress to w.
func WithProgress(w io.Writer) Option {
	return func(o *options) {
		o.progress = w
	}
}

// WithClock overrides the time source used to resolve "now".
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewIngester validates the mapping settings, then opens the stores and
// the annotation client. Nothing is left open on error.
func NewIngester(ctx context.Context, cfg *config.Config, opts ...Option) (*Ingester, error) {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	mapper, err := mapping.New(cfg.MapperSettings())
	if err != nil {
		return nil, err
	}

	ing := &Ingester{
		cfg:       cfg,
		mapper:    mapper,
		collector: o.collector,
		progress:  o.progress,
		now:       o.now,
		logger:    slog.Default().With("component", "ingester"),
	}

	if o.source != nil && o.sink != nil {
		ing.source, ing.sink = o.source, o.sink
	} else if err := ing.openStores(ctx); err != nil {
		ing.Close()
		return nil, err
	}

	if o.annotator != nil {
		ing.annotator = o.annotator
	} else {
		client, err := nlp.NewClient(cfg.NLPConfig())
		if err != nil {
			ing.Close()
			return nil, err
		}
		ing.annotator = client
		ing.closers = append(ing.closers, client.Close)
	}
	return ing, nil
}

// openStores opens the source store and, unless it can serve as the sink
// too, the sink store.
func (ing *Ingester) openStores(ctx context.Context) error {
	terms := []string{ing.mapper.JoinField()}

	source, err := OpenStore(ctx, ing.cfg.Source, ing.cfg.StoreOptions(terms...))
	if err != nil {
		return fmt.Errorf("opening source store: %w", err)
	}
	ing.source = source
	ing.closers = append(ing.closers, source.Close)

	if ing.mapper.InPlace() || SameStore(ing.cfg.Source, ing.cfg.Sink) {
		ing.sink = source
		return nil
	}

	sink, err := OpenStore(ctx, ing.cfg.Sink, ing.cfg.StoreOptions(terms...))
	if err != nil {
		return fmt.Errorf("opening sink store: %w", err)
	}
	ing.sink = sink
	ing.closers = append(ing.closers, sink.Close)
	return nil
}

// Source returns the store documents are read from.
func (ing *Ingester) Source() storage.Store { return ing.source }

// Sink returns the store annotations are written to.
func (ing *Ingester) Sink() storage.Store { return ing.sink }

func (ing *Ingester) Mapper() mapping.Mapper { return ing.mapper }

// RunOnce makes one pass over the configured date range.
func (ing *Ingester) RunOnce(ctx context.Context) (*core.RunSummary, error) {
	runID := uuid.NewString()
	logger := ing.logger.With("run_id", runID)

	start, end, err := ing.cfg.Range(ing.now())
	if err != nil {
		return nil, err
	}

	stats := ingestion.NewStats()
	if ing.collector != nil {
		ing.collector.Track(stats)
	}

	batch := ing.cfg.Mapping.Source.Batch
	worker, err := ingestion.NewWorker(ing.source, ing.sink, ing.annotator, ing.mapper, ingestion.WorkerConfig{
		SourceIndex:     ing.cfg.Source.IndexName,
		Fields:          ing.cfg.FieldMapping(),
		PageSize:        batch.PageSize,
		UseBulk:         ing.cfg.NLPService.UseBulkIndexing,
		BulkSize:        batch.BulkSize,
		SkipProcessed:   ing.cfg.Mapping.NLP.SkipProcessedDocCheck,
		StoreRetries:    ing.cfg.Store.MaxRetries,
		StoreRetryDelay: ing.cfg.Store.RetryDelay,
		Stats:           stats,
		Logger:          logger.With("component", "worker"),
	})
	if err != nil {
		return nil, err
	}

	schedOpts := []ingestion.Option{
		ingestion.WithThreads(batch.Threads),
		ingestion.WithStats(stats),
		ingestion.WithLogger(logger.With("component", "scheduler")),
	}
	if ing.progress != nil {
		schedOpts = append(schedOpts, ingestion.WithProgress(ing.progress))
	}
	scheduler, err := ingestion.NewScheduler(worker, schedOpts...)
	if err != nil {
		return nil, err
	}
	defer scheduler.Release()

	summary, err := scheduler.Run(ctx, runID, start, end, batch.Interval)
	if summary != nil && ing.collector != nil {
		ing.collector.Observe(summary.Duration, summary.Failed())
	}
	return summary, err
}

// RunPeriodic runs a pass at every time matched by the cron expression
// until ctx is done. Failed passes are logged and do not stop the
// schedule. Passes never overlap; a slot that passes while a run is still
// going is skipped.
func (ing *Ingester) RunPeriodic(ctx context.Context, expression string) error {
	expr, err := cronexpr.Parse(expression)
	if err != nil {
		return fmt.Errorf("%w: schedule.cron: %w", core.ErrConfiguration, err)
	}

	for {
		next := expr.Next(ing.now())
		if next.IsZero() {
			return fmt.Errorf("%w: schedule %q has no future run", core.ErrConfiguration, expression)
		}
		ing.logger.Info("next pass scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		summary, err := ing.RunOnce(ctx)
		switch {
		case err != nil:
			ing.logger.Error("scheduled pass failed", "error", err)
		case summary.Failed():
			ing.logger.Warn("scheduled pass finished with failed intervals", "failed", summary.Intervals.Failed)
		}
		if errors.Is(err, core.ErrConfiguration) {
			return err
		}
	}
}

// Close releases everything the ingester opened.
func (ing *Ingester) Close() error {
	var errs []error
	for i := len(ing.closers) - 1; i >= 0; i-- {
		if err := ing.closers[i](); err != nil {
			ing.logger.Error("error closing pipeline resource", "error", err)
			errs = append(errs, err)
		}
	}
	ing.closers = nil
	return errors.Join(errs...)
}
