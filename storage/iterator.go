package storage

import (
	"context"
	"fmt"

	"github.com/poiesic/annotit/core"
)

const (
	// DefaultPageSize is the default number of documents fetched per page
	DefaultPageSize = 100
)

// PageIterator lazily walks the pages of a range query.
// Only one page is held in memory at a time.
type PageIterator struct {
	source SourceStore
	query  RangeQuery
}

// NewPageIterator creates an iterator over q. A non-positive page size is
// replaced by DefaultPageSize.
func NewPageIterator(source SourceStore, q RangeQuery) *PageIterator {
	if q.Size <= 0 {
		q.Size = DefaultPageSize
	}
	return &PageIterator{
		source: source,
		query:  q,
	}
}

// ForEach fetches pages in order and calls fn for each non-empty page.
// Iteration stops on the first error from the store or fn.
// Context cancellation is checked between pages.
func (it *PageIterator) ForEach(ctx context.Context, fn func([]RawDocument) error) error {
	var cursor Cursor
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		page, err := it.source.FetchPage(ctx, it.query, cursor)
		if err != nil {
			return fmt.Errorf("%w: fetching page of %s %s: %w", core.ErrStoreIO, it.query.Index, it.query.Interval, err)
		}

		if len(page.Documents) > 0 {
			if err := fn(page.Documents); err != nil {
				return err
			}
		}

		if page.Done || page.Next == "" {
			return nil
		}
		if page.Next == cursor {
			return fmt.Errorf("%w: store returned the same cursor twice", ErrInvalidCursor)
		}
		cursor = page.Next
	}
}
