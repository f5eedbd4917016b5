package badger

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/storage"
)

// Store is a storage.Store backed by BadgerDB.
//
// Documents are kept as storage.Envelope values. A date index ordered by
// timestamp and id serves range queries, and a hashed term index serves
// existence lookups on the configured term fields.
type Store struct {
	backend *Backend
	owned   bool
	opts    storage.Options
	logger  *slog.Logger
	commit  func(*badger.Txn) error
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a store over an open backend. The caller keeps ownership
// of the backend.
func NewStore(backend *Backend, opts storage.Options) *Store {
	return &Store{
		backend: backend,
		opts:    opts,
		logger:  backend.logger,
		commit:  (*badger.Txn).Commit,
	}
}

// Open opens a backend at path and returns a store that owns it.
func Open(path string, inMemory bool, opts storage.Options) (*Store, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger at %q: %w", core.ErrStoreIO, path, err)
	}
	s := NewStore(backend, opts)
	s.owned = true
	return s, nil
}

// Close closes the backend if the store owns it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.backend.Close()
}

// FetchPage implements storage.SourceStore. The cursor is the hex encoded
// date index key of the last document of the previous page.
func (s *Store) FetchPage(ctx context.Context, q storage.RangeQuery, cursor storage.Cursor) (*storage.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Size <= 0 {
		return nil, fmt.Errorf("%w: page size %d", storage.ErrInvalidQuery, q.Size)
	}
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	seekKey := makePartialDateKey(q.Index, q.Interval.Start)
	var after []byte
	if cursor != "" {
		decoded, err := hex.DecodeString(string(cursor))
		if err != nil || !bytes.HasPrefix(decoded, makeDatePrefix(q.Index)) {
			return nil, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
		}
		seekKey, after = decoded, decoded
	}
	endKey := makePartialDateKey(q.Index, q.Interval.End)

	page := &storage.Page{Done: true}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeDatePrefix(q.Index)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		var lastKey []byte
		for iter.Seek(seekKey); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			if after != nil && bytes.Equal(key, after) {
				continue
			}
			if bytes.Compare(key[:min(len(key), len(endKey))], endKey) >= 0 {
				break
			}
			if len(page.Documents) == q.Size {
				page.Done = false
				page.Next = storage.Cursor(hex.EncodeToString(lastKey))
				break
			}

			id := dateKeyID(q.Index, key)
			env, err := readEnvelope(tx, makeDocKey(q.Index, id))
			if err != nil {
				return err
			}
			if env == nil {
				s.logger.Warn("date index points at missing document", "index", q.Index, "id", id)
				continue
			}
			page.Documents = append(page.Documents, storage.RawDocument{ID: env.ID, Index: q.Index, Body: env.Body})
			lastKey = iter.Item().KeyCopy(nil)
		}
		return nil
	}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreIO, err)
	}
	return page, nil
}

// Get returns a single document, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, index, id string) (*storage.RawDocument, error) {
	var env *storage.Envelope
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		env, err = readEnvelope(tx, makeDocKey(index, id))
		return err
	}, false)
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

// ExistsMany implements storage.SinkStore. Fields without a term index fall
// back to scanning the documents of each index.
func (s *Store) ExistsMany(ctx context.Context, index, field string, values []string) (map[string]bool, error) {
	found := make(map[string]bool, len(values))
	for _, v := range values {
		found[v] = false
	}
	if len(values) == 0 {
		return found, nil
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		indexes, err := resolveIndexes(tx, index)
		if err != nil {
			return err
		}
		for _, name := range indexes {
			if s.isTermField(field) {
				if err := lookupTerms(tx, name, field, found); err != nil {
					return err
				}
				continue
			}
			if err := scanTerms(tx, name, field, found); err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreIO, err)
	}
	return found, nil
}

// Count implements storage.SinkStore.
func (s *Store) Count(ctx context.Context, index string) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		indexes, err := resolveIndexes(tx, index)
		if err != nil {
			return err
		}
		for _, name := range indexes {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = makeDocPrefix(name)
			iter := tx.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				count++
			}
			iter.Close()
		}
		return nil
	}, false)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrStoreIO, err)
	}
	return count, nil
}

// Write implements storage.SinkStore.
func (s *Store) Write(ctx context.Context, record *core.SinkRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.backend.Update(func(tx *badger.Txn) error {
		return s.apply(tx, record)
	})
	if err != nil {
		return fmt.Errorf("%w: writing %s/%s: %w", core.ErrStoreIO, record.IndexTarget, record.ID, err)
	}
	return nil
}

// BulkWrite implements storage.SinkStore. Records are applied in as few
// transactions as badger's size limits allow. When a commit fails after an
// earlier transaction was committed, only the records that were not
// committed are reported as failed.
func (s *Store) BulkWrite(ctx context.Context, records []*core.SinkRecord) (*storage.BulkReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &storage.BulkReport{}
	var pending []*core.SinkRecord

	tx := s.backend.db.NewTransaction(true)
	defer func() { tx.Discard() }()

	uncommitted := func(err error, rest []*core.SinkRecord) (*storage.BulkReport, error) {
		err = fmt.Errorf("%w: committing bulk write: %w", core.ErrStoreIO, err)
		if report.Succeeded == 0 {
			return nil, err
		}
		for _, record := range append(pending, rest...) {
			report.Failed = append(report.Failed, storage.BulkFailure{Index: record.IndexTarget, ID: record.ID, Err: err})
		}
		return report, nil
	}

	for i, record := range records {
		err := s.apply(tx, record)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := s.commit(tx); err != nil {
				return uncommitted(err, records[i:])
			}
			report.Succeeded += len(pending)
			pending = pending[:0]
			tx = s.backend.db.NewTransaction(true)
			err = s.apply(tx, record)
		}
		if err != nil {
			report.Failed = append(report.Failed, storage.BulkFailure{Index: record.IndexTarget, ID: record.ID, Err: err})
			continue
		}
		pending = append(pending, record)
	}

	if err := s.commit(tx); err != nil {
		return uncommitted(err, nil)
	}
	report.Succeeded += len(pending)
	return report, nil
}

// apply writes one record inside tx. Everything that can fail for reasons
// other than transaction size happens before the first mutation.
func (s *Store) apply(tx *badger.Txn, record *core.SinkRecord) error {
	if record.IndexTarget == "" || record.ID == "" {
		return fmt.Errorf("%w: record needs an index and an id", storage.ErrInvalidQuery)
	}
	docKey := makeDocKey(record.IndexTarget, record.ID)
	existing, err := readEnvelope(tx, docKey)
	if err != nil {
		return err
	}

	body := record.Body
	if record.Op == core.OpMerge && existing != nil {
		body, err = storage.MergeBodies(existing.Body, record.Body, record.ListField)
		if err != nil {
			return err
		}
	}
	body, err = storage.NormalizeBody(body)
	if err != nil {
		return err
	}

	env := &storage.Envelope{ID: record.ID, Body: body}
	if s.opts.DateField != "" {
		if date, err := storage.DocumentDate(body, s.opts.DateField, s.opts.DateLayout); err == nil {
			env.Date, env.Dated = date, true
		}
	}
	value, err := storage.MarshalEnvelope(env)
	if err != nil {
		return err
	}

	if existing != nil {
		if existing.Dated {
			if err := tx.Delete(makeDateKey(record.IndexTarget, existing.Date, record.ID)); err != nil {
				return err
			}
		}
		for _, field := range s.opts.TermFields {
			if v, ok := storage.Lookup(existing.Body, field); ok && v != nil {
				if err := tx.Delete(makeTermKey(record.IndexTarget, field, core.FormatValue(v), record.ID)); err != nil {
					return err
				}
			}
		}
	}

	if env.Dated {
		if err := tx.Set(makeDateKey(record.IndexTarget, env.Date, record.ID), nil); err != nil {
			return err
		}
	}
	for _, field := range s.opts.TermFields {
		if v, ok := storage.Lookup(body, field); ok && v != nil {
			term := core.FormatValue(v)
			if err := tx.Set(makeTermKey(record.IndexTarget, field, term, record.ID), []byte(field+separator+term)); err != nil {
				return err
			}
		}
	}
	if err := tx.Set(makeIndexKey(record.IndexTarget), nil); err != nil {
		return err
	}
	return tx.Set(docKey, value)
}

func (s *Store) isTermField(field string) bool {
	for _, f := range s.opts.TermFields {
		if f == field {
			return true
		}
	}
	return false
}

// readEnvelope returns nil without error when key is absent.
func readEnvelope(tx *badger.Txn, key []byte) (*storage.Envelope, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var env *storage.Envelope
	err = item.Value(func(val []byte) error {
		env, err = storage.UnmarshalEnvelope(val)
		return err
	})
	return env, err
}

// resolveIndexes expands a pattern into the names of existing indexes.
func resolveIndexes(tx *badger.Txn, index string) ([]string, error) {
	if !storage.IsPattern(index) {
		return []string{index}, nil
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(indexPrefix + strings.TrimSuffix(index, "*"))
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var names []string
	for iter.Rewind(); iter.Valid(); iter.Next() {
		names = append(names, strings.TrimPrefix(string(iter.Item().Key()), indexPrefix))
	}
	return names, nil
}

func lookupTerms(tx *badger.Txn, index, field string, found map[string]bool) error {
	opts := badger.DefaultIteratorOptions
	for value, ok := range found {
		if ok {
			continue
		}
		want := []byte(field + separator + value)
		opts.Prefix = makeTermPrefix(index, field, value)
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			match := false
			if err := iter.Item().Value(func(val []byte) error {
				match = bytes.Equal(val, want)
				return nil
			}); err != nil {
				iter.Close()
				return err
			}
			if match {
				found[value] = true
				break
			}
		}
		iter.Close()
	}
	return nil
}

func scanTerms(tx *badger.Txn, index, field string, found map[string]bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeDocPrefix(index)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var env *storage.Envelope
		if err := iter.Item().Value(func(val []byte) error {
			var err error
			env, err = storage.UnmarshalEnvelope(val)
			return err
		}); err != nil {
			return err
		}
		if v, ok := storage.Lookup(env.Body, field); ok && v != nil {
			if _, tracked := found[core.FormatValue(v)]; tracked {
				found[core.FormatValue(v)] = true
			}
		}
	}
	return nil
}
