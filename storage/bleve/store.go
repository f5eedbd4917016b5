// Package bleve implements storage.Store on top of bleve search indexes.
//
// Every logical index is a separate bleve index, kept in memory or on disk
// under a root directory. Only two synthetic fields are indexed: the parsed
// document date, for range queries, and a keyword field holding
// "field=value" terms for existence lookups. Document bodies are stored as
// internal values next to the index.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/mapping"
	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/storage"
)

const (
	dateFieldName  = "annotit_date"
	termsFieldName = "annotit_terms"
	internalPrefix = "doc:"
	indexSuffix    = ".bleve"
)

// Store is a storage.Store backed by bleve.
type Store struct {
	root     string
	inMemory bool
	opts     storage.Options
	logger   *slog.Logger

	mu      sync.RWMutex
	indexes map[string]bleve.Index
	writeMu sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates a store rooted at dir. Indexes already present under
// dir are opened eagerly so that index patterns can match them.
func Open(dir string, inMemory bool, opts storage.Options) (*Store, error) {
	s := &Store{
		root:     dir,
		inMemory: inMemory,
		opts:     opts,
		logger:   slog.Default().With("component", "bleve"),
		indexes:  make(map[string]bleve.Index),
	}
	if inMemory {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", core.ErrStoreIO, dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", core.ErrStoreIO, dir, err)
	}
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), indexSuffix)
		if !ok || !entry.IsDir() {
			continue
		}
		idx, err := bleve.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: opening index %s: %w", core.ErrStoreIO, name, err)
		}
		s.indexes[name] = idx
	}
	return s, nil
}

// Close closes every open index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, idx := range s.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	s.indexes = make(map[string]bleve.Index)
	return errors.Join(errs...)
}

// newIndexMapping indexes only the synthetic fields.
func newIndexMapping() mapping.IndexMapping {
	dateField := bleve.NewDateTimeFieldMapping()
	dateField.Store = false

	termField := bleve.NewTextFieldMapping()
	termField.Analyzer = keyword.Name
	termField.Store = false
	termField.IncludeInAll = false
	termField.IncludeTermVectors = false

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(dateFieldName, dateField)
	doc.AddFieldMappingsAt(termsFieldName, termField)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.IndexDynamic = false
	im.StoreDynamic = false
	return im
}

// index returns the named index, creating it when create is set.
// A nil index without error means it does not exist.
func (s *Store) index(name string, create bool) (bleve.Index, error) {
	s.mu.RLock()
	idx, ok := s.indexes[name]
	s.mu.RUnlock()
	if ok || !create {
		return idx, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}

	var err error
	if s.inMemory {
		idx, err = bleve.NewMemOnly(newIndexMapping())
	} else {
		idx, err = bleve.New(filepath.Join(s.root, name+indexSuffix), newIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("creating index %s: %w", name, err)
	}
	s.indexes[name] = idx
	return idx, nil
}

// resolve expands an index pattern into existing indexes.
func (s *Store) resolve(pattern string) []bleve.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		if storage.MatchIndex(pattern, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]bleve.Index, len(names))
	for i, name := range names {
		out[i] = s.indexes[name]
	}
	return out
}

// FetchPage implements storage.SourceStore. The cursor is the offset of the
// next page within the sorted result set.
func (s *Store) FetchPage(ctx context.Context, q storage.RangeQuery, cursor storage.Cursor) (*storage.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Size <= 0 {
		return nil, fmt.Errorf("%w: page size %d", storage.ErrInvalidQuery, q.Size)
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(string(cursor))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
		}
		offset = n
	}

	idx, err := s.index(q.Index, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreIO, err)
	}
	if idx == nil {
		return &storage.Page{Done: true}, nil
	}

	inclusive, exclusive := true, false
	rangeQuery := bleve.NewDateRangeInclusiveQuery(q.Interval.Start, q.Interval.End, &inclusive, &exclusive)
	rangeQuery.SetField(dateFieldName)

	req := bleve.NewSearchRequestOptions(rangeQuery, q.Size, offset, false)
	req.SortBy([]string{dateFieldName, "_id"})

	result, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("%w: searching %s: %w", core.ErrStoreIO, q.Index, err)
	}

	page := &storage.Page{Done: true}
	for _, hit := range result.Hits {
		env, err := readEnvelope(idx, hit.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrStoreIO, err)
		}
		if env == nil {
			s.logger.Warn("indexed document has no stored body", "index", q.Index, "id", hit.ID)
			continue
		}
		page.Documents = append(page.Documents, storage.RawDocument{ID: env.ID, Index: q.Index, Body: env.Body})
	}

	next := offset + len(result.Hits)
	if uint64(next) < result.Total {
		page.Done = false
		page.Next = storage.Cursor(strconv.Itoa(next))
	}
	return page, nil
}

// Get returns a single document, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, index, id string) (*storage.RawDocument, error) {
	idx, err := s.index(index, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreIO, err)
	}
	if idx == nil {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, index, id)
	}
	env, err := readEnvelope(idx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreIO, err)
	}
	if env == nil {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, index, id)
	}
	return &storage.RawDocument{ID: env.ID, Index: index, Body: env.Body}, nil
}

// Exists implements storage.SinkStore.
func (s *Store) Exists(ctx context.Context, index, field, value string) (bool, error) {
	found, err := s.ExistsMany(ctx, index, field, []string{value})
	if err != nil {
		return false, err
	}
	return found[value], nil
}

// ExistsMany implements storage.SinkStore. Only fields listed in
// Options.TermFields can be found.
func (s *Store) ExistsMany(ctx context.Context, index, field string, values []string) (map[string]bool, error) {
	found := make(map[string]bool, len(values))
	for _, v := range values {
		found[v] = false
	}
	indexes := s.resolve(index)
	if len(indexes) == 0 || len(values) == 0 {
		return found, nil
	}
	alias := bleve.NewIndexAlias(indexes...)

	for _, value := range values {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		term := bleve.NewTermQuery(termValue(field, value))
		term.SetField(termsFieldName)
		result, err := alias.Search(bleve.NewSearchRequestOptions(term, 0, 0, false))
		if err != nil {
			return nil, fmt.Errorf("%w: existence lookup in %s: %w", core.ErrStoreIO, index, err)
		}
		found[value] = result.Total > 0
	}
	return found, nil
}

// Count implements storage.SinkStore.
func (s *Store) Count(ctx context.Context, index string) (int, error) {
	total := 0
	for _, idx := range s.resolve(index) {
		n, err := idx.DocCount()
		if err != nil {
			return 0, fmt.Errorf("%w: counting %s: %w", core.ErrStoreIO, index, err)
		}
		total += int(n)
	}
	return total, nil
}

// Write implements storage.SinkStore.
func (s *Store) Write(ctx context.Context, record *core.SinkRecord) error {
	report, err := s.BulkWrite(ctx, []*core.SinkRecord{record})
	if err != nil {
		return err
	}
	return report.Error()
}

// BulkWrite implements storage.SinkStore. Records are grouped into one
// bleve batch per target index.
func (s *Store) BulkWrite(ctx context.Context, records []*core.SinkRecord) (*storage.BulkReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	report := &storage.BulkReport{}
	batches := make(map[string]*bleve.Batch)
	counts := make(map[string]int)
	pending := make(map[string]*storage.Envelope)
	var order []string

	for _, record := range records {
		idx, err := s.index(record.IndexTarget, record.IndexTarget != "")
		if err == nil && idx == nil {
			err = fmt.Errorf("%w: record needs an index", storage.ErrInvalidQuery)
		}
		if err != nil {
			report.Failed = append(report.Failed, storage.BulkFailure{Index: record.IndexTarget, ID: record.ID, Err: err})
			continue
		}

		env, doc, err := s.prepare(idx, record, pending)
		if err != nil {
			report.Failed = append(report.Failed, storage.BulkFailure{Index: record.IndexTarget, ID: record.ID, Err: err})
			continue
		}
		value, err := storage.MarshalEnvelope(env)
		if err != nil {
			report.Failed = append(report.Failed, storage.BulkFailure{Index: record.IndexTarget, ID: record.ID, Err: err})
			continue
		}

		batch, ok := batches[record.IndexTarget]
		if !ok {
			batch = idx.NewBatch()
			batches[record.IndexTarget] = batch
			order = append(order, record.IndexTarget)
		}
		if err := batch.Index(record.ID, doc); err != nil {
			report.Failed = append(report.Failed, storage.BulkFailure{Index: record.IndexTarget, ID: record.ID, Err: err})
			continue
		}
		batch.SetInternal([]byte(internalPrefix+record.ID), value)
		pending[record.IndexTarget+"\x00"+record.ID] = env
		counts[record.IndexTarget]++
	}

	for _, name := range order {
		idx, _ := s.index(name, false)
		if err := idx.Batch(batches[name]); err != nil {
			return nil, fmt.Errorf("%w: applying batch to %s: %w", core.ErrStoreIO, name, err)
		}
		report.Succeeded += counts[name]
	}
	return report, nil
}

// prepare computes the stored envelope and the indexed document for record.
func (s *Store) prepare(idx bleve.Index, record *core.SinkRecord, pending map[string]*storage.Envelope) (*storage.Envelope, map[string]any, error) {
	if record.ID == "" {
		return nil, nil, fmt.Errorf("%w: record needs an id", storage.ErrInvalidQuery)
	}

	body := record.Body
	if record.Op == core.OpMerge {
		existing, ok := pending[record.IndexTarget+"\x00"+record.ID]
		if !ok {
			var err error
			existing, err = readEnvelope(idx, record.ID)
			if err != nil {
				return nil, nil, err
			}
		}
		if existing != nil {
			merged, err := storage.MergeBodies(existing.Body, record.Body, record.ListField)
			if err != nil {
				return nil, nil, err
			}
			body = merged
		}
	}
	body, err := storage.NormalizeBody(body)
	if err != nil {
		return nil, nil, err
	}

	env := &storage.Envelope{ID: record.ID, Body: body}
	terms := []string{termValue(storage.IDFieldStoreKey, record.ID)}
	for _, field := range s.opts.TermFields {
		if v, ok := storage.Lookup(body, field); ok && v != nil {
			terms = append(terms, termValue(field, core.FormatValue(v)))
		}
	}
	doc := map[string]any{termsFieldName: terms}

	if s.opts.DateField != "" {
		if date, err := storage.DocumentDate(body, s.opts.DateField, s.opts.DateLayout); err == nil {
			env.Date, env.Dated = date, true
			doc[dateFieldName] = date
		}
	}
	return env, doc, nil
}

func readEnvelope(idx bleve.Index, id string) (*storage.Envelope, error) {
	data, err := idx.GetInternal([]byte(internalPrefix + id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return storage.UnmarshalEnvelope(data)
}

func termValue(field, value string) string {
	return field + "=" + value
}
