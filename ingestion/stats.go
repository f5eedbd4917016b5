package ingestion

import (
	"sync/atomic"
	"time"

	"github.com/poiesic/annotit/core"
)

// Stats holds the counters of one run. All fields are safe for concurrent use.
type Stats struct {
	IntervalsTotal     atomic.Int64
	IntervalsCompleted atomic.Int64
	IntervalsFailed    atomic.Int64

	DocsProcessed atomic.Int64
	DocsAnnotated atomic.Int64
	DocsSkipped   atomic.Int64
	DocsRejected  atomic.Int64
	DocsFailed    atomic.Int64

	RecordsWritten atomic.Int64
	RecordsFailed  atomic.Int64
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// Summary snapshots the counters into a RunSummary.
func (s *Stats) Summary(runID string, started time.Time) *core.RunSummary {
	return &core.RunSummary{
		RunID:    runID,
		Started:  started,
		Duration: time.Since(started),
		Intervals: core.IntervalCounts{
			Total:     s.IntervalsTotal.Load(),
			Completed: s.IntervalsCompleted.Load(),
			Failed:    s.IntervalsFailed.Load(),
		},
		Documents: core.DocumentCounts{
			Processed: s.DocsProcessed.Load(),
			Annotated: s.DocsAnnotated.Load(),
			Skipped:   s.DocsSkipped.Load(),
			Rejected:  s.DocsRejected.Load(),
			Failed:    s.DocsFailed.Load(),
		},
		Records: core.RecordCounts{
			Written: s.RecordsWritten.Load(),
			Failed:  s.RecordsFailed.Load(),
		},
	}
}
