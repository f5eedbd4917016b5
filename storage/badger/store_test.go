package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewMemoryStore(storage.Options{
		DateField:  "date",
		DateLayout: time.DateOnly,
		TermFields: []string{"meta.docid"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sourceRecord(id, date, text string) *core.SinkRecord {
	return &core.SinkRecord{
		IndexTarget: "documents",
		ID:          id,
		Op:          core.OpIndex,
		Body:        map[string]any{"docid": id, "date": date, "text": text},
	}
}

func interval(start, end string) core.DateInterval {
	s, _ := time.Parse(time.DateOnly, start)
	e, _ := time.Parse(time.DateOnly, end)
	return core.DateInterval{Start: s, End: e}
}

func collect(t *testing.T, store *Store, q storage.RangeQuery) []string {
	t.Helper()
	var ids []string
	err := storage.NewPageIterator(store, q).ForEach(context.Background(), func(docs []storage.RawDocument) error {
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
		return nil
	})
	require.NoError(t, err)
	return ids
}

func TestStore_FetchPage_HalfOpenRange(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, rec := range []*core.SinkRecord{
		sourceRecord("before", "2005-05-31", "too early"),
		sourceRecord("start", "2005-06-01", "on the start day"),
		sourceRecord("inside", "2005-06-15", "inside the range"),
		sourceRecord("end", "2005-07-01", "on the end day"),
	} {
		require.NoError(t, store.Write(ctx, rec))
	}

	ids := collect(t, store, storage.RangeQuery{
		Index:    "documents",
		Interval: interval("2005-06-01", "2005-07-01"),
		Size:     10,
	})
	assert.Equal(t, []string{"start", "inside"}, ids)
}

func TestStore_FetchPage_Pagination(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var records []*core.SinkRecord
	for i := range 25 {
		day := time.Date(2005, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i%5)
		records = append(records, sourceRecord(fmt.Sprintf("doc-%02d", i), day.Format(time.DateOnly), "text body"))
	}
	report, err := store.BulkWrite(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 25, report.Succeeded)
	assert.False(t, report.HasFailures())

	q := storage.RangeQuery{Index: "documents", Interval: interval("2005-06-01", "2005-07-01"), Size: 10}

	first, err := store.FetchPage(ctx, q, "")
	require.NoError(t, err)
	assert.Len(t, first.Documents, 10)
	assert.False(t, first.Done)

	// same cursor returns the same page
	again, err := store.FetchPage(ctx, q, first.Next)
	require.NoError(t, err)
	second, err := store.FetchPage(ctx, q, first.Next)
	require.NoError(t, err)
	assert.Equal(t, again.Documents, second.Documents)

	ids := collect(t, store, q)
	assert.Len(t, ids, 25)
	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestStore_FetchPage_InvalidCursor(t *testing.T) {
	store := setupStore(t)
	q := storage.RangeQuery{Index: "documents", Interval: interval("2005-06-01", "2005-07-01"), Size: 10}

	_, err := store.FetchPage(context.Background(), q, "zz")
	assert.ErrorIs(t, err, storage.ErrInvalidCursor)

	_, err = store.FetchPage(context.Background(), storage.RangeQuery{Index: "documents"}, "")
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestStore_Overwrite_MovesDateIndex(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, sourceRecord("doc", "2005-06-01", "first version")))
	require.NoError(t, store.Write(ctx, sourceRecord("doc", "2010-01-01", "second version")))

	assert.Empty(t, collect(t, store, storage.RangeQuery{Index: "documents", Interval: interval("2005-01-01", "2006-01-01"), Size: 10}))
	assert.Equal(t, []string{"doc"}, collect(t, store, storage.RangeQuery{Index: "documents", Interval: interval("2010-01-01", "2011-01-01"), Size: 10}))

	count, err := store.Count(ctx, "documents")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_ExistsMany(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, rec := range []*core.SinkRecord{
		{IndexTarget: "annotations_disease", ID: "doc-1-ann-a1", Body: map[string]any{"meta.docid": "1", "nlp.type": "disease"}},
		{IndexTarget: "annotations_drug", ID: "doc-2-ann-a1", Body: map[string]any{"meta.docid": float64(2), "nlp.type": "drug"}},
		{IndexTarget: "other", ID: "doc-3-ann-a1", Body: map[string]any{"meta.docid": "3"}},
	} {
		require.NoError(t, store.Write(ctx, rec))
	}

	found, err := store.ExistsMany(ctx, "annotations*", "meta.docid", []string{"1", "2", "3", "4"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": true, "2": true, "3": false, "4": false}, found)

	ok, err := store.Exists(ctx, "annotations_disease", "meta.docid", "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "annotations_disease", "meta.docid", "2")
	require.NoError(t, err)
	assert.False(t, ok)

	// fields without a term index are scanned
	ok, err = store.Exists(ctx, "annotations*", "nlp.type", "drug")
	require.NoError(t, err)
	assert.True(t, ok)

	empty, err := store.ExistsMany(ctx, "annotations*", "meta.docid", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_Exists_AfterOverwrite(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, &core.SinkRecord{IndexTarget: "a", ID: "r", Body: map[string]any{"meta.docid": "1"}}))
	require.NoError(t, store.Write(ctx, &core.SinkRecord{IndexTarget: "a", ID: "r", Body: map[string]any{"meta.docid": "2"}}))

	found, err := store.ExistsMany(ctx, "a", "meta.docid", []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": false, "2": true}, found)
}

func TestStore_MergeWrite(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first := &core.SinkRecord{
		IndexTarget: "annotations",
		ID:          "doc_1_annotations",
		Op:          core.OpMerge,
		ListField:   "annotations",
		Body: map[string]any{
			"meta.docid":  "1",
			"annotations": []any{map[string]any{"id": "a1"}},
		},
	}
	second := &core.SinkRecord{
		IndexTarget: "annotations",
		ID:          "doc_1_annotations",
		Op:          core.OpMerge,
		ListField:   "annotations",
		Body: map[string]any{
			"meta.docid":  "1",
			"annotations": []any{map[string]any{"id": "a1"}, map[string]any{"id": "a2"}},
		},
	}
	require.NoError(t, store.Write(ctx, first))
	require.NoError(t, store.Write(ctx, second))

	doc, err := store.Get(ctx, "annotations", "doc_1_annotations")
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": "a1"}, map[string]any{"id": "a2"}}, doc.Body["annotations"])
}

func TestStore_MergeWrite_KeepsSourceFields(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, sourceRecord("1", "2005-06-01", "patient has fever")))
	require.NoError(t, store.Write(ctx, &core.SinkRecord{
		IndexTarget: "documents",
		ID:          "1",
		Op:          core.OpMerge,
		ListField:   "annotations",
		Body:        map[string]any{"annotations": []any{map[string]any{"id": "a1"}}},
	}))

	doc, err := store.Get(ctx, "documents", "1")
	require.NoError(t, err)
	assert.Equal(t, "patient has fever", doc.Body["text"])
	assert.Len(t, doc.Body["annotations"], 1)

	// still reachable through the date index
	assert.Equal(t, []string{"1"}, collect(t, store, storage.RangeQuery{Index: "documents", Interval: interval("2005-06-01", "2005-06-02"), Size: 5}))
}

func TestStore_BulkWrite_PerRecordFailures(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	report, err := store.BulkWrite(ctx, []*core.SinkRecord{
		{IndexTarget: "annotations", ID: "ok-1", Body: map[string]any{"a": 1}},
		{IndexTarget: "annotations", ID: "", Body: map[string]any{"a": 2}},
		{IndexTarget: "annotations", ID: "bad", Body: map[string]any{"ch": make(chan int)}},
		{IndexTarget: "annotations", ID: "ok-2", Body: map[string]any{"a": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, "", report.Failed[0].ID)
	assert.Equal(t, "bad", report.Failed[1].ID)
	assert.ErrorIs(t, report.Error(), core.ErrStoreIO)

	count, err := store.Count(ctx, "annotations")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_BulkWrite_FailedCommitReportsOnlyUncommittedRecords(t *testing.T) {
	// A small memtable forces the batch over several transactions.
	backend, err := openBackend(badger.DefaultOptions("").WithInMemory(true).WithMemTableSize(8 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	store := NewStore(backend, storage.Options{})

	commits := 0
	store.commit = func(tx *badger.Txn) error {
		commits++
		if commits > 1 {
			tx.Discard()
			return errors.New("disk full")
		}
		return tx.Commit()
	}

	filler := strings.Repeat("x", 8<<10)
	records := make([]*core.SinkRecord, 300)
	for i := range records {
		records[i] = &core.SinkRecord{IndexTarget: "annotations", ID: fmt.Sprintf("rec-%03d", i), Body: map[string]any{"text": filler}}
	}

	ctx := context.Background()
	report, err := store.BulkWrite(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 2, commits)
	assert.Positive(t, report.Succeeded)
	require.NotEmpty(t, report.Failed)
	assert.Equal(t, len(records), report.Succeeded+len(report.Failed))
	assert.ErrorIs(t, report.Failed[0].Err, core.ErrStoreIO)

	count, err := store.Count(ctx, "annotations")
	require.NoError(t, err)
	assert.Equal(t, report.Succeeded, count)
	for _, f := range report.Failed {
		_, err := store.Get(ctx, "annotations", f.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound, "record %s was committed but reported failed", f.ID)
	}
}

func TestStore_BulkWrite_FailedFirstCommitFailsRequest(t *testing.T) {
	store := setupStore(t)
	store.commit = func(tx *badger.Txn) error {
		tx.Discard()
		return errors.New("disk full")
	}

	report, err := store.BulkWrite(context.Background(), []*core.SinkRecord{
		{IndexTarget: "annotations", ID: "a", Body: map[string]any{"a": 1}},
	})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, core.ErrStoreIO)
}

func TestStore_Get_NotFound(t *testing.T) {
	store := setupStore(t)
	_, err := store.Get(context.Background(), "documents", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_PreEpochDatesSortFirst(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, sourceRecord("old", "1960-01-01", "pre-epoch note")))
	require.NoError(t, store.Write(ctx, sourceRecord("new", "1999-01-01", "recent note")))

	ids := collect(t, store, storage.RangeQuery{Index: "documents", Interval: interval("1950-01-01", "2000-01-01"), Size: 10})
	assert.Equal(t, []string{"old", "new"}, ids)
}

func TestStore_CloseOwnership(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	store := NewStore(backend, storage.Options{})
	require.NoError(t, store.Close())
	assert.False(t, backend.IsClosed())
}
