package core

import (
	"fmt"
	"time"
)

// IntervalCounts tallies interval outcomes for a run.
type IntervalCounts struct {
	Total     int64
	Completed int64
	Failed    int64
}

// DocumentCounts tallies per-document outcomes for a run.
type DocumentCounts struct {
	Processed int64 // Documents read from the source, valid or not
	Annotated int64 // Documents annotated and mapped to sink records
	Skipped   int64 // Documents skipped because they were already annotated
	Rejected  int64 // Documents that failed extraction
	Failed    int64 // Documents whose annotation or mapping failed
}

// RecordCounts tallies sink writes for a run.
type RecordCounts struct {
	Written int64
	Failed  int64
}

// RunSummary is reported at the end of an ingestion run.
type RunSummary struct {
	RunID     string
	Started   time.Time
	Duration  time.Duration
	Intervals IntervalCounts
	Documents DocumentCounts
	Records   RecordCounts
}

// Failed reports whether any interval was abandoned.
func (s *RunSummary) Failed() bool {
	return s.Intervals.Failed > 0
}

func (s *RunSummary) String() string {
	return fmt.Sprintf(
		"intervals: %d total, %d completed, %d failed; documents: %d processed, %d annotated, %d skipped, %d rejected, %d failed; records: %d written, %d failed; took %s",
		s.Intervals.Total, s.Intervals.Completed, s.Intervals.Failed,
		s.Documents.Processed, s.Documents.Annotated, s.Documents.Skipped, s.Documents.Rejected, s.Documents.Failed,
		s.Records.Written, s.Records.Failed,
		s.Duration.Round(time.Millisecond),
	)
}
