package ingestion

import "github.com/poiesic/annotit/core"

// DefaultBulkSize is the number of records buffered before a bulk write.
const DefaultBulkSize = 1000

// bulkBuffer collects sink records for one interval. It is not safe for
// concurrent use; every interval owns its own buffer.
type bulkBuffer struct {
	size    int
	records []*core.SinkRecord
}

func newBulkBuffer(size int) *bulkBuffer {
	if size <= 0 {
		size = DefaultBulkSize
	}
	return &bulkBuffer{size: size}
}

// add appends records and reports whether the buffer is due for a flush.
func (b *bulkBuffer) add(records ...*core.SinkRecord) bool {
	b.records = append(b.records, records...)
	return len(b.records) >= b.size
}

// drain returns the buffered records and empties the buffer.
func (b *bulkBuffer) drain() []*core.SinkRecord {
	out := b.records
	b.records = nil
	return out
}

func (b *bulkBuffer) len() int {
	return len(b.records)
}
