package ingestion

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/nlp/mock"
	"github.com/poiesic/annotit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records the intervals it is given.
type fakeRunner struct {
	mu        sync.Mutex
	seen      []core.DateInterval
	running   atomic.Int32
	maxActive atomic.Int32
	delay     time.Duration
	fn        func(core.DateInterval) error
}

func (r *fakeRunner) RunInterval(ctx context.Context, interval core.DateInterval) error {
	active := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		cur := r.maxActive.Load()
		if active <= cur || r.maxActive.CompareAndSwap(cur, active) {
			break
		}
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	r.seen = append(r.seen, interval)
	r.mu.Unlock()

	if r.fn != nil {
		return r.fn(interval)
	}
	return nil
}

func TestScheduler_RunsEveryIntervalOnce(t *testing.T) {
	runner := &fakeRunner{delay: 5 * time.Millisecond}
	s, err := NewScheduler(runner, WithThreads(3))
	require.NoError(t, err)
	defer s.Release()

	summary, err := s.Run(context.Background(), "run-1", day(2020, 1, 1), day(2020, 4, 1), 10)
	require.NoError(t, err)

	assert.Len(t, runner.seen, 10)
	seen := make(map[time.Time]bool)
	for _, iv := range runner.seen {
		assert.False(t, seen[iv.Start], "interval %s ran twice", iv)
		seen[iv.Start] = true
	}
	assert.LessOrEqual(t, runner.maxActive.Load(), int32(3))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, int64(10), summary.Intervals.Total)
	assert.Equal(t, int64(10), summary.Intervals.Completed)
	assert.False(t, summary.Failed())
}

func TestScheduler_FailedIntervalDoesNotStopSiblings(t *testing.T) {
	bad := day(2020, 1, 11)
	runner := &fakeRunner{fn: func(iv core.DateInterval) error {
		if iv.Start.Equal(bad) {
			return core.ErrStoreIO
		}
		return nil
	}}
	s, err := NewScheduler(runner, WithThreads(2))
	require.NoError(t, err)
	defer s.Release()

	summary, err := s.Run(context.Background(), "", day(2020, 1, 1), day(2020, 2, 1), 10)
	require.NoError(t, err)
	assert.Len(t, runner.seen, 4)
	assert.Equal(t, int64(3), summary.Intervals.Completed)
	assert.Equal(t, int64(1), summary.Intervals.Failed)
	assert.True(t, summary.Failed())
}

func TestScheduler_PanickingIntervalIsMarkedFailed(t *testing.T) {
	runner := &fakeRunner{fn: func(iv core.DateInterval) error {
		if iv.Start.Equal(day(2020, 1, 1)) {
			panic("boom")
		}
		return nil
	}}
	s, err := NewScheduler(runner, WithThreads(2))
	require.NoError(t, err)
	defer s.Release()

	summary, err := s.Run(context.Background(), "", day(2020, 1, 1), day(2020, 1, 21), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Intervals.Failed)
	assert.Equal(t, int64(1), summary.Intervals.Completed)
}

func TestScheduler_SharedStatsAndProgress(t *testing.T) {
	stats := NewStats()
	var progress bytes.Buffer
	runner := &fakeRunner{fn: func(core.DateInterval) error {
		stats.DocsProcessed.Add(2)
		return nil
	}}
	s, err := NewScheduler(runner, WithStats(stats), WithProgress(&progress))
	require.NoError(t, err)
	defer s.Release()

	summary, err := s.Run(context.Background(), "", day(2020, 1, 1), day(2020, 1, 4), 1)
	require.NoError(t, err)
	assert.Same(t, stats, s.Stats())
	assert.Equal(t, int64(6), summary.Documents.Processed)
	assert.Contains(t, progress.String(), "Intervals: 3/3 (100.0%), 0 failed")
}

func TestScheduler_InvalidArguments(t *testing.T) {
	_, err := NewScheduler(nil)
	assert.ErrorIs(t, err, ErrRunnerRequired)

	_, err = NewScheduler(&fakeRunner{}, WithThreads(0))
	assert.ErrorIs(t, err, core.ErrConfiguration)

	s, err := NewScheduler(&fakeRunner{})
	require.NoError(t, err)
	defer s.Release()

	_, err = s.Run(context.Background(), "", day(2020, 1, 1), day(2020, 1, 1), 1)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	_, err = s.Run(context.Background(), "", day(2020, 1, 1), day(2020, 2, 1), 0)
	assert.True(t, errors.Is(err, core.ErrConfiguration))
}

type intervalKey struct{}

// taggingRunner carries the interval in the context so sink writes can be
// attributed to it.
type taggingRunner struct {
	inner IntervalRunner
	mu    sync.Mutex
	ran   []core.DateInterval
}

func (r *taggingRunner) RunInterval(ctx context.Context, interval core.DateInterval) error {
	r.mu.Lock()
	r.ran = append(r.ran, interval)
	r.mu.Unlock()
	return r.inner.RunInterval(context.WithValue(ctx, intervalKey{}, interval.String()), interval)
}

// perIntervalSink counts the records written on behalf of each interval.
type perIntervalSink struct {
	storage.SinkStore
	mu      sync.Mutex
	written map[string]int
}

func (s *perIntervalSink) add(ctx context.Context, n int) {
	key, _ := ctx.Value(intervalKey{}).(string)
	s.mu.Lock()
	s.written[key] += n
	s.mu.Unlock()
}

func (s *perIntervalSink) Write(ctx context.Context, record *core.SinkRecord) error {
	if err := s.SinkStore.Write(ctx, record); err != nil {
		return err
	}
	s.add(ctx, 1)
	return nil
}

func (s *perIntervalSink) BulkWrite(ctx context.Context, records []*core.SinkRecord) (*storage.BulkReport, error) {
	report, err := s.SinkStore.BulkWrite(ctx, records)
	if err == nil {
		s.add(ctx, report.Succeeded)
	}
	return report, err
}

func TestScheduler_SingleNoteOverTwoDecadesWritesFromOneInterval(t *testing.T) {
	source := newStore(t)
	seed(t, source, note("n1", "2005-06-01", "patient has fever"))
	sink := &perIntervalSink{SinkStore: newStore(t), written: make(map[string]int)}

	annotator := mock.NewAnnotator().WithAnnotateFunc(func(ctx context.Context, docID, text string) (*core.AnnotationResult, error) {
		return &core.AnnotationResult{
			SourceDocID: docID,
			Entries:     []core.AnnotationEntry{{"id": "a1", "label": "fever"}},
		}, nil
	})
	stats := NewStats()
	worker := newWorker(t, source, sink, annotator, separateMapper(t), WorkerConfig{SkipProcessed: true, Stats: stats})
	runner := &taggingRunner{inner: worker}

	s, err := NewScheduler(runner, WithThreads(4), WithStats(stats))
	require.NoError(t, err)
	defer s.Release()

	summary, err := s.Run(context.Background(), "", day(1999, 1, 1), day(2021, 2, 1), 30)
	require.NoError(t, err)

	assert.False(t, summary.Failed())
	assert.Equal(t, int64(269), summary.Intervals.Total)
	assert.Equal(t, int64(269), summary.Intervals.Completed)
	assert.Len(t, runner.ran, 269)
	assert.Equal(t, int64(1), summary.Records.Written)
	assert.Equal(t, []string{"n1"}, annotator.Calls())

	var writers []string
	for key, n := range sink.written {
		if n > 0 {
			writers = append(writers, key)
		}
	}
	require.Equal(t, []string{"[2005-05-29, 2005-06-28)"}, writers)
	assert.Equal(t, 1, sink.written[writers[0]])
	for _, iv := range runner.ran {
		if iv.String() == writers[0] {
			assert.True(t, iv.Contains(day(2005, 6, 1)))
		}
	}

	count, err := sink.Count(context.Background(), "annotations")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
