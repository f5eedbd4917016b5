package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/mapping"
	"github.com/poiesic/annotit/nlp"
	"github.com/poiesic/annotit/storage"
)

// IntervalRunner processes one date interval.
type IntervalRunner interface {
	RunInterval(ctx context.Context, interval core.DateInterval) error
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// SourceIndex is the index documents are read from.
	SourceIndex string

	// Fields maps stored bodies onto source documents.
	Fields storage.FieldMapping

	// PageSize is the number of documents fetched per page.
	// Default: storage.DefaultPageSize
	PageSize int

	// UseBulk buffers records and writes them with BulkWrite.
	UseBulk bool

	// BulkSize is the number of buffered records that triggers a flush.
	// Default: DefaultBulkSize
	BulkSize int

	// SkipProcessed skips documents whose annotations are already stored.
	SkipProcessed bool

	// StoreRetries and StoreRetryDelay configure retries of store calls.
	StoreRetries    int
	StoreRetryDelay time.Duration

	Stats  *Stats
	Logger *slog.Logger
}

// Worker annotates the documents of one interval at a time. It holds no
// per-interval state and may run several intervals concurrently.
type Worker struct {
	source    storage.SourceStore
	sink      storage.SinkStore
	annotator nlp.Annotator
	mapper    mapping.Mapper
	cfg       WorkerConfig
	stats     *Stats
	logger    *slog.Logger

	pagePolicy  retrypolicy.RetryPolicy[*storage.Page]
	bulkPolicy  retrypolicy.RetryPolicy[*storage.BulkReport]
	writePolicy retrypolicy.RetryPolicy[any]
}

var _ IntervalRunner = (*Worker)(nil)

// NewWorker creates a worker reading from source and writing to sink.
func NewWorker(source storage.SourceStore, sink storage.SinkStore, annotator nlp.Annotator, mapper mapping.Mapper, cfg WorkerConfig) (*Worker, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if sink == nil {
		return nil, ErrSinkRequired
	}
	if annotator == nil {
		return nil, ErrAnnotatorRequired
	}
	if mapper == nil {
		return nil, ErrMapperRequired
	}
	if cfg.SourceIndex == "" {
		return nil, fmt.Errorf("%w: source index name is required", core.ErrConfiguration)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = storage.DefaultPageSize
	}
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = DefaultBulkSize
	}

	w := &Worker{
		source:    source,
		sink:      sink,
		annotator: annotator,
		mapper:    mapper,
		cfg:       cfg,
		stats:     cfg.Stats,
		logger:    cfg.Logger,
	}
	if w.stats == nil {
		w.stats = NewStats()
	}
	if w.logger == nil {
		w.logger = slog.Default().With("component", "worker")
	}
	w.pagePolicy = storePolicy[*storage.Page](cfg.StoreRetries, cfg.StoreRetryDelay, w.logger, "fetch page")
	w.bulkPolicy = storePolicy[*storage.BulkReport](cfg.StoreRetries, cfg.StoreRetryDelay, w.logger, "bulk write")
	w.writePolicy = storePolicy[any](cfg.StoreRetries, cfg.StoreRetryDelay, w.logger, "write")
	return w, nil
}

// Stats returns the counters the worker updates.
func (w *Worker) Stats() *Stats {
	return w.stats
}

// RunInterval annotates every document dated within interval. An empty or
// inverted interval is rejected with core.ErrInvalidInterval. Otherwise it
// returns an error wrapping core.ErrStoreIO only when source pages could not
// be read; records buffered up to that point are still flushed.
func (w *Worker) RunInterval(ctx context.Context, interval core.DateInterval) error {
	if err := core.ValidateInterval(interval); err != nil {
		return err
	}
	logger := w.logger.With("interval", interval.String())
	logger.Debug("starting interval")

	buf := newBulkBuffer(w.cfg.BulkSize)
	source := retryingSource{SourceStore: w.source, policy: w.pagePolicy}
	iter := storage.NewPageIterator(source, storage.RangeQuery{
		Index:    w.cfg.SourceIndex,
		Interval: interval,
		Size:     w.cfg.PageSize,
	})

	err := iter.ForEach(ctx, func(raws []storage.RawDocument) error {
		w.processPage(ctx, logger, raws, buf)
		return nil
	})
	w.flush(ctx, logger, buf)

	if err != nil {
		logger.Error("abandoning interval", "error", err)
		return fmt.Errorf("interval %s: %w", interval, err)
	}
	logger.Debug("finished interval")
	return nil
}

func (w *Worker) processPage(ctx context.Context, logger *slog.Logger, raws []storage.RawDocument, buf *bulkBuffer) {
	w.stats.DocsProcessed.Add(int64(len(raws)))

	docs := make([]*core.SourceDocument, 0, len(raws))
	for _, raw := range raws {
		doc, err := w.cfg.Fields.Extract(raw)
		if err != nil {
			w.stats.DocsRejected.Add(1)
			logger.Info("skipping document", "doc_id", raw.ID, "reason", err)
			continue
		}
		docs = append(docs, doc)
	}

	for _, doc := range w.unprocessed(ctx, logger, docs) {
		w.processDocument(ctx, logger, doc, buf)
	}
}

// unprocessed drops documents whose annotations are already stored. One
// existence lookup is made per page. If it fails the page is processed
// without deduplication.
func (w *Worker) unprocessed(ctx context.Context, logger *slog.Logger, docs []*core.SourceDocument) []*core.SourceDocument {
	if !w.cfg.SkipProcessed || len(docs) == 0 {
		return docs
	}

	var done func(*core.SourceDocument) bool
	if w.mapper.InPlace() {
		done = w.mapper.AlreadyAnnotated
	} else {
		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			ids = append(ids, doc.ID)
		}
		found, err := w.sink.ExistsMany(ctx, w.mapper.ProcessedIndex(), w.mapper.JoinField(), ids)
		if err != nil {
			logger.Warn("processed-document lookup failed, page will not be deduplicated", "error", err)
			return docs
		}
		done = func(doc *core.SourceDocument) bool { return found[doc.ID] }
	}

	out := docs[:0]
	for _, doc := range docs {
		if done(doc) {
			w.stats.DocsSkipped.Add(1)
			logger.Debug("skipping processed document", "doc_id", doc.ID)
			continue
		}
		out = append(out, doc)
	}
	return out
}

func (w *Worker) processDocument(ctx context.Context, logger *slog.Logger, doc *core.SourceDocument, buf *bulkBuffer) {
	result, err := w.annotator.Annotate(ctx, doc.ID, doc.Text)
	if err != nil {
		w.stats.DocsFailed.Add(1)
		logger.Error("annotation failed", "doc_id", doc.ID, "error", err)
		return
	}

	records, err := w.mapper.Map(result, doc)
	if err != nil {
		w.stats.DocsFailed.Add(1)
		logger.Error("mapping failed", "doc_id", doc.ID, "error", err)
		return
	}
	w.stats.DocsAnnotated.Add(1)
	logger.Debug("annotated document", "doc_id", doc.ID, "entries", len(result.Entries), "records", len(records))

	if len(records) == 0 {
		return
	}
	if w.cfg.UseBulk {
		if buf.add(records...) {
			w.flush(ctx, logger, buf)
		}
		return
	}
	for _, record := range records {
		w.write(ctx, logger, doc.ID, record)
	}
}

// write stores a single record. Writes and their retries ignore ctx
// cancellation so an annotated document is not dropped.
func (w *Worker) write(ctx context.Context, logger *slog.Logger, docID string, record *core.SinkRecord) {
	writeCtx := context.WithoutCancel(ctx)
	_, err := failsafe.NewExecutor[any](w.writePolicy).
		WithContext(writeCtx).
		Get(func() (any, error) {
			return nil, w.sink.Write(writeCtx, record)
		})
	if err != nil {
		w.stats.RecordsFailed.Add(1)
		logger.Error("write failed", "doc_id", docID, "index", record.IndexTarget, "record_id", record.ID, "error", err)
		return
	}
	w.stats.RecordsWritten.Add(1)
}

// flush bulk-writes the buffered records. A failed batch counts every
// record as failed; per-record failures are counted individually.
func (w *Worker) flush(ctx context.Context, logger *slog.Logger, buf *bulkBuffer) {
	if buf.len() == 0 {
		return
	}
	records := buf.drain()
	writeCtx := context.WithoutCancel(ctx)

	report, err := failsafe.NewExecutor[*storage.BulkReport](w.bulkPolicy).
		WithContext(writeCtx).
		Get(func() (*storage.BulkReport, error) {
			return w.sink.BulkWrite(writeCtx, records)
		})
	if err != nil {
		w.stats.RecordsFailed.Add(int64(len(records)))
		logger.Error("bulk write failed", "records", len(records), "error", err)
		return
	}

	w.stats.RecordsWritten.Add(int64(report.Succeeded))
	w.stats.RecordsFailed.Add(int64(len(report.Failed)))
	for _, f := range report.Failed {
		logger.Warn("record not written", "index", f.Index, "record_id", f.ID, "error", f.Err)
	}
	logger.Debug("flushed records", "written", report.Succeeded, "failed", len(report.Failed))
}
