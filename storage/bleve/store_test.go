package bleve

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOptions = storage.Options{
	DateField:  "date",
	DateLayout: time.DateOnly,
	TermFields: []string{"meta.docid"},
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("", true, testOptions)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func doc(id, date string) *core.SinkRecord {
	return &core.SinkRecord{
		IndexTarget: "documents",
		ID:          id,
		Body:        map[string]any{"date": date, "text": "note " + id},
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

func TestStore_RangeQueryIsHalfOpen(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	report, err := store.BulkWrite(ctx, []*core.SinkRecord{
		doc("before", "2005-05-31"),
		doc("start", "2005-06-01"),
		doc("inside", "2005-06-20"),
		doc("end", "2005-07-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Succeeded)

	ids := collect(t, store, storage.RangeQuery{Index: "documents", Interval: interval("2005-06-01", "2005-07-01"), Size: 10})
	assert.Equal(t, []string{"start", "inside"}, ids)
}

func TestStore_Pagination(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var records []*core.SinkRecord
	for i := range 23 {
		day := time.Date(2010, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		records = append(records, doc(fmt.Sprintf("doc-%02d", i), day.Format(time.DateOnly)))
	}
	_, err := store.BulkWrite(ctx, records)
	require.NoError(t, err)

	q := storage.RangeQuery{Index: "documents", Interval: interval("2010-01-01", "2011-01-01"), Size: 10}
	first, err := store.FetchPage(ctx, q, "")
	require.NoError(t, err)
	require.Len(t, first.Documents, 10)
	assert.Equal(t, "doc-00", first.Documents[0].ID)
	assert.Equal(t, storage.Cursor("10"), first.Next)

	ids := collect(t, store, q)
	require.Len(t, ids, 23)
	assert.Equal(t, "doc-22", ids[22])
}

func TestStore_UnknownIndex(t *testing.T) {
	store := setupStore(t)

	page, err := store.FetchPage(context.Background(), storage.RangeQuery{Index: "nope", Interval: interval("2010-01-01", "2011-01-01"), Size: 10}, "")
	require.NoError(t, err)
	assert.True(t, page.Done)
	assert.Empty(t, page.Documents)

	count, err := store.Count(context.Background(), "nope")
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.FetchPage(context.Background(), storage.RangeQuery{Index: "nope", Size: 10}, "abc")
	assert.ErrorIs(t, err, storage.ErrInvalidCursor)
}

func TestStore_ExistsManyAcrossPattern(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.BulkWrite(ctx, []*core.SinkRecord{
		{IndexTarget: "annotations_disease", ID: "doc-1-ann-a1", Body: map[string]any{"meta.docid": "1"}},
		{IndexTarget: "annotations_drug", ID: "doc-2-ann-a1", Body: map[string]any{"meta.docid": float64(2)}},
		{IndexTarget: "unrelated", ID: "doc-3-ann-a1", Body: map[string]any{"meta.docid": "3"}},
	})
	require.NoError(t, err)

	found, err := store.ExistsMany(ctx, "annotations*", "meta.docid", []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": true, "2": true, "3": false}, found)

	ok, err := store.Exists(ctx, "unrelated", "meta.docid", "3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "missing*", "meta.docid", "3")
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := store.Count(ctx, "annotations*")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_MergeWithinAndAcrossBatches(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	merge := func(ids ...string) *core.SinkRecord {
		list := make([]any, len(ids))
		for i, id := range ids {
			list[i] = map[string]any{"id": id}
		}
		return &core.SinkRecord{
			IndexTarget: "annotations",
			ID:          "doc_1_annotations",
			Op:          core.OpMerge,
			ListField:   "annotations",
			Body:        map[string]any{"meta.docid": "1", "annotations": list},
		}
	}

	_, err := store.BulkWrite(ctx, []*core.SinkRecord{merge("a1"), merge("a2")})
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, merge("a1", "a3")))

	got, err := store.Get(ctx, "annotations", "doc_1_annotations")
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"id": "a1"},
		map[string]any{"id": "a2"},
		map[string]any{"id": "a3"},
	}, got.Body["annotations"])

	count, err := store.Count(ctx, "annotations")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_BulkWrite_PerRecordFailures(t *testing.T) {
	store := setupStore(t)

	report, err := store.BulkWrite(context.Background(), []*core.SinkRecord{
		{IndexTarget: "annotations", ID: "ok", Body: map[string]any{"a": 1}},
		{IndexTarget: "", ID: "no-index", Body: map[string]any{"a": 1}},
		{IndexTarget: "annotations", ID: "bad", Body: map[string]any{"fn": func() {}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Failed, 2)
	assert.Equal(t, "no-index", report.Failed[0].ID)
	assert.Equal(t, "bad", report.Failed[1].ID)
}

func TestStore_ReopenFromDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir, false, testOptions)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, doc("persisted", "2001-02-03")))
	require.NoError(t, store.Close())

	reopened, err := Open(dir, false, testOptions)
	require.NoError(t, err)
	defer reopened.Close()

	ids := collect(t, reopened, storage.RangeQuery{Index: "documents", Interval: interval("2001-01-01", "2002-01-01"), Size: 5})
	assert.Equal(t, []string{"persisted"}, ids)
}
