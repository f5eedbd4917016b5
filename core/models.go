package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a compact identifier used for store-internal keys.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// SourceDocument is a document read from the source store, reduced to the
// fields the pipeline needs.
type SourceDocument struct {
	ID            string
	Key           string // Store id of the document the fields were read from
	Text          string
	Date          time.Time
	PersistFields map[string]any // Source fields copied onto every sink record
	Source        map[string]any // Raw stored body, consulted by same-index ingest
}

// DateInterval is a half-open date range [Start, End).
type DateInterval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the interval.
func (i DateInterval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

func (i DateInterval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.DateOnly), i.End.Format(time.DateOnly))
}

// AnnotationEntry is a single annotation as returned by the NLP vendor.
// Its shape is vendor specific.
type AnnotationEntry map[string]any

// ID returns the entry's identifier under key, formatted as a string.
// The second return value is false when the key is missing or null.
func (e AnnotationEntry) ID(key string) (string, bool) {
	v, ok := e[key]
	if !ok || v == nil {
		return "", false
	}
	return FormatValue(v), true
}

// AnnotationResult holds the annotations produced for one source document.
type AnnotationResult struct {
	SourceDocID string
	Entries     []AnnotationEntry
}

// WriteOp selects how a sink record is applied to the store.
type WriteOp int

const (
	// OpIndex replaces any existing document with the record body.
	OpIndex WriteOp = iota
	// OpMerge merges the record body into an existing document. Scalar
	// fields are overwritten; the record's ListField is unioned.
	OpMerge
)

func (op WriteOp) String() string {
	switch op {
	case OpIndex:
		return "index"
	case OpMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// SinkRecord is a write request produced by the schema mapper.
type SinkRecord struct {
	IndexTarget string
	ID          string
	Op          WriteOp
	Body        map[string]any
	ListField   string // Only meaningful for OpMerge
}

// FormatValue renders a scalar JSON value as a string. Whole-number floats
// are printed without a fractional part so that decoded JSON numbers
// round-trip to the same identifier.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return FormatValue(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
