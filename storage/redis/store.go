// Package redis implements storage.Store on a Redis server.
//
// Keys are namespaced by a prefix. For every logical index the store keeps
// the document envelopes as strings, a sorted set of document ids scored by
// epoch milliseconds for range queries, a set of all ids for counting, and
// one set of ids per indexed term value for existence lookups.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces all keys written by the store.
const DefaultPrefix = "annotit"

// Store is a storage.Store backed by Redis.
type Store struct {
	client *redis.Client
	owned  bool
	prefix string
	opts   storage.Options
	logger *slog.Logger

	writeMu sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// Conn connects to addr and verifies the connection with PING.
func Conn(ctx context.Context, addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: timeout,
		Password:    password,
		DB:          db,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: connecting to redis at %s: %w", core.ErrStoreIO, addr, err)
	}
	if pong != "PONG" {
		client.Close()
		return nil, fmt.Errorf("%w: expected PONG, got %s", core.ErrStoreIO, pong)
	}
	return client, nil
}

// NewStore creates a store over client. The caller keeps ownership of the client.
func NewStore(client *redis.Client, prefix string, opts storage.Options) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		opts:   opts,
		logger: slog.Default().With("component", "redis"),
	}
}

// Open connects to addr and returns a store that owns the connection.
// Keys are namespaced under prefix.
func Open(ctx context.Context, addr, password string, db int, prefix string, opts storage.Options) (*Store, error) {
	client, err := Conn(ctx, addr, password, db, 5*time.Second)
	if err != nil {
		return nil, err
	}
	s := NewStore(client, prefix, opts)
	s.owned = true
	return s, nil
}

// Close closes the client if the store owns it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *Store) docKey(index, id string) string {
	return s.prefix + ":" + index + ":doc:" + id
}

func (s *Store) dateKey(index string) string {
	return s.prefix + ":" + index + ":bydate"
}

func (s *Store) idsKey(index string) string {
	return s.prefix + ":" + index + ":ids"
}

func (s *Store) termKey(index, field, value string) string {
	return s.prefix + ":" + index + ":term:" + field + ":" + value
}

func (s *Store) registryKey() string {
	return s.prefix + ":indexes"
}

// FetchPage implements storage.SourceStore. The cursor is the offset of the
// next page within the date-ordered set; ties are ordered by id.
func (s *Store) FetchPage(ctx context.Context, q storage.RangeQuery, cursor storage.Cursor) (*storage.Page, error) {
	if q.Size <= 0 {
		return nil, fmt.Errorf("%w: page size %d", storage.ErrInvalidQuery, q.Size)
	}
	offset := int64(0)
	if cursor != "" {
		n, err := strconv.ParseInt(string(cursor), 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
		}
		offset = n
	}

	// Fetch one extra id to learn whether another page follows.
	ids, err := s.client.ZRangeByScore(ctx, s.dateKey(q.Index), &redis.ZRangeBy{
		Min:    strconv.FormatInt(q.Interval.Start.UnixMilli(), 10),
		Max:    "(" + strconv.FormatInt(q.Interval.End.UnixMilli(), 10),
		Offset: offset,
		Count:  int64(q.Size) + 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: range query on %s: %w", core.ErrStoreIO, q.Index, err)
	}

	page := &storage.Page{Done: true}
	if len(ids) > q.Size {
		ids = ids[:q.Size]
		page.Done = false
		page.Next = storage.Cursor(strconv.FormatInt(offset+int64(q.Size), 10))
	}
	if len(ids) == 0 {
		return page, nil
	}

	envs, err := s.getEnvelopes(ctx, q.Index, ids)
	if err != nil {
		return nil, err
	}
	for i, env := range envs {
		if env == nil {
			s.logger.Warn("date index points at missing document", "index", q.Index, "id", ids[i])
			continue
		}
		page.Documents = append(page.Documents, storage.RawDocument{ID: env.ID, Index: q.Index, Body: env.Body})
	}
	return page, nil
}

// Get returns a single document, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, index, id string) (*storage.RawDocument, error) {
	envs, err := s.getEnvelopes(ctx, index, []string{id})
	if err != nil {
		return nil, err
	}
	if envs[0] == nil {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, index, id)
	}
	return &storage.RawDocument{ID: id, Index: index, Body: envs[0].Body}, nil
}

// getEnvelopes returns one entry per id, nil where the document is missing.
func (s *Store) getEnvelopes(ctx context.Context, index string, ids []string) ([]*storage.Envelope, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(index, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: reading documents from %s: %w", core.ErrStoreIO, index, err)
	}

	envs := make([]*storage.Envelope, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		env, err := storage.UnmarshalEnvelope([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %w", core.ErrStoreIO, index, ids[i], err)
		}
		envs[i] = env
	}
	return envs, nil
}

// resolve expands an index pattern using the index registry.
func (s *Store) resolve(ctx context.Context, pattern string) ([]string, error) {
	if !storage.IsPattern(pattern) {
		return []string{pattern}, nil
	}
	names, err := s.client.SMembers(ctx, s.registryKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: listing indexes: %w", core.ErrStoreIO, err)
	}
	var out []string
	for _, name := range names {
		if storage.MatchIndex(pattern, name) {
			out = append(out, name)
		}
	}
	return out, nil
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
// Options.TermFields can be found. All lookups share one pipeline.
func (s *Store) ExistsMany(ctx context.Context, index, field string, values []string) (map[string]bool, error) {
	found := make(map[string]bool, len(values))
	for _, v := range values {
		found[v] = false
	}
	if len(values) == 0 {
		return found, nil
	}
	indexes, err := s.resolve(ctx, index)
	if err != nil {
		return nil, err
	}
	if len(indexes) == 0 {
		return found, nil
	}

	type lookup struct {
		value string
		cmd   *redis.IntCmd
	}
	var lookups []lookup
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, name := range indexes {
			for _, v := range values {
				lookups = append(lookups, lookup{value: v, cmd: pipe.Exists(ctx, s.termKey(name, field, v))})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: existence lookup in %s: %w", core.ErrStoreIO, index, err)
	}
	for _, l := range lookups {
		if l.cmd.Val() > 0 {
			found[l.value] = true
		}
	}
	return found, nil
}

// Count implements storage.SinkStore.
func (s *Store) Count(ctx context.Context, index string) (int, error) {
	indexes, err := s.resolve(ctx, index)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, name := range indexes {
		n, err := s.client.SCard(ctx, s.idsKey(name)).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: counting %s: %w", core.ErrStoreIO, name, err)
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

// mutation is a prepared write of one record.
type mutation struct {
	record   *core.SinkRecord
	env      *storage.Envelope
	value    []byte
	existing *storage.Envelope
}

// BulkWrite implements storage.SinkStore. Prepared records are applied in a
// single MULTI/EXEC pipeline.
func (s *Store) BulkWrite(ctx context.Context, records []*core.SinkRecord) (*storage.BulkReport, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	report := &storage.BulkReport{}
	pending := make(map[string]*storage.Envelope)
	var muts []mutation

	for _, record := range records {
		m, err := s.prepare(ctx, record, pending)
		if err != nil {
			if errors.Is(err, core.ErrStoreIO) {
				return nil, err
			}
			report.Failed = append(report.Failed, storage.BulkFailure{Index: record.IndexTarget, ID: record.ID, Err: err})
			continue
		}
		pending[record.IndexTarget+"\x00"+record.ID] = m.env
		muts = append(muts, m)
	}
	if len(muts) == 0 {
		return report, nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range muts {
			s.queue(ctx, pipe, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bulk write: %w", core.ErrStoreIO, err)
	}
	report.Succeeded = len(muts)
	return report, nil
}

func (s *Store) prepare(ctx context.Context, record *core.SinkRecord, pending map[string]*storage.Envelope) (mutation, error) {
	if record.IndexTarget == "" || record.ID == "" {
		return mutation{}, fmt.Errorf("%w: record needs an index and an id", storage.ErrInvalidQuery)
	}

	existing, seen := pending[record.IndexTarget+"\x00"+record.ID]
	if !seen {
		envs, err := s.getEnvelopes(ctx, record.IndexTarget, []string{record.ID})
		if err != nil {
			return mutation{}, err
		}
		existing = envs[0]
	}

	body := record.Body
	if record.Op == core.OpMerge && existing != nil {
		merged, err := storage.MergeBodies(existing.Body, record.Body, record.ListField)
		if err != nil {
			return mutation{}, err
		}
		body = merged
	}
	body, err := storage.NormalizeBody(body)
	if err != nil {
		return mutation{}, err
	}

	env := &storage.Envelope{ID: record.ID, Body: body}
	if s.opts.DateField != "" {
		if date, err := storage.DocumentDate(body, s.opts.DateField, s.opts.DateLayout); err == nil {
			env.Date, env.Dated = date, true
		}
	}
	value, err := storage.MarshalEnvelope(env)
	if err != nil {
		return mutation{}, err
	}
	return mutation{record: record, env: env, value: value, existing: existing}, nil
}

func (s *Store) queue(ctx context.Context, pipe redis.Pipeliner, m mutation) {
	index, id := m.record.IndexTarget, m.record.ID

	if m.existing != nil {
		for _, field := range s.opts.TermFields {
			if v, ok := storage.Lookup(m.existing.Body, field); ok && v != nil {
				pipe.SRem(ctx, s.termKey(index, field, core.FormatValue(v)), id)
			}
		}
	}
	if m.env.Dated {
		pipe.ZAdd(ctx, s.dateKey(index), redis.Z{Score: float64(m.env.Date.UnixMilli()), Member: id})
	} else {
		pipe.ZRem(ctx, s.dateKey(index), id)
	}
	for _, field := range s.opts.TermFields {
		if v, ok := storage.Lookup(m.env.Body, field); ok && v != nil {
			pipe.SAdd(ctx, s.termKey(index, field, core.FormatValue(v)), id)
		}
	}
	pipe.SAdd(ctx, s.idsKey(index), id)
	pipe.SAdd(ctx, s.registryKey(), index)
	pipe.Set(ctx, s.docKey(index, id), m.value, 0)
}

// Flush deletes every key under the store's prefix. Intended for tests.
func (s *Store) Flush(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	for len(keys) > 0 {
		n := min(len(keys), 500)
		if err := s.client.Del(ctx, keys[:n]...).Err(); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}
