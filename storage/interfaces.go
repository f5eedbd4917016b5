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


package storage

import (
	"context"
	"fmt"

	"github.com/poiesic/annotit/core"
)

// Cursor marks a position in a paginated read. The zero value is the first page.
type Cursor string

// RawDocument is a stored document as returned by a source read.
type RawDocument struct {
	ID    string
	Index string
	Body  map[string]any
}

// RangeQuery selects documents from Index whose date falls within Interval.
type RangeQuery struct {
	Index    string
	Interval core.DateInterval
	Size     int // Page size
}

// Page is one page of a range query.
type Page struct {
	Documents []RawDocument
	Next      Cursor // Cursor of the following page
	Done      bool   // True when no further pages exist
}

// BulkFailure describes one record rejected by a bulk write.
type BulkFailure struct {
	Index string
	ID    string
	Err   error
}

// BulkReport is the per-record outcome of a bulk write.
type BulkReport struct {
	Succeeded int
	Failed    []BulkFailure
}

// HasFailures reports whether any record in the bulk write failed.
func (r *BulkReport) HasFailures() bool {
	return len(r.Failed) > 0
}

// Error summarises the failures, or returns nil if there were none.
func (r *BulkReport) Error() error {
	if !r.HasFailures() {
		return nil
	}
	first := r.Failed[0]
	return fmt.Errorf("%w: %d of %d records failed, first %s/%s: %w",
		core.ErrStoreIO, len(r.Failed), len(r.Failed)+r.Succeeded, first.Index, first.ID, first.Err)
}

// SourceStore is the read side of the document store gateway.
type SourceStore interface {
	// FetchPage returns the page of documents at cursor for q.
	// Documents are ordered by date and then by id. Fetching the same cursor
	// twice returns the same page as long as the store was not modified, so a
	// failed page can be retried. Cursors are opaque and store specific.
	FetchPage(ctx context.Context, q RangeQuery, cursor Cursor) (*Page, error)
}

// SinkStore is the write side of the document store gateway.
//
// Index arguments to the lookup methods may end in '*' to match every index
// sharing that prefix.
type SinkStore interface {
	// Exists reports whether a document in index has field equal to value.
	// Only fields listed in Options.TermFields are indexed for lookup.
	Exists(ctx context.Context, index, field, value string) (bool, error)

	// ExistsMany performs Exists for several values at once.
	// The returned map contains an entry for every value.
	ExistsMany(ctx context.Context, index, field string, values []string) (map[string]bool, error)

	// Write applies a single record.
	Write(ctx context.Context, record *core.SinkRecord) error

	// BulkWrite applies records and reports per-record outcomes.
	// A non-nil error means the request as a whole failed and no report is available.
	BulkWrite(ctx context.Context, records []*core.SinkRecord) (*BulkReport, error)

	// Count returns the number of documents in index.
	Count(ctx context.Context, index string) (int, error)
}

// Store is a document store usable as both source and sink.
type Store interface {
	SourceStore
	SinkStore

	// Close releases the store's resources.
	Close() error
}

// Options configure how a driver indexes the documents it stores.
type Options struct {
	// DateField is the body field used for date range queries.
	DateField string
	// DateLayout is the Go time layout of DateField string values.
	// Numeric values are read as epoch milliseconds.
	DateLayout string
	// TermFields are body fields indexed for exact-match existence lookups.
	TermFields []string
}
