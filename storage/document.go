package storage

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/poiesic/annotit/core"
)

// IDFieldStoreKey makes Extract use the store's own document id.
const IDFieldStoreKey = "_id"

// FieldMapping describes where the pipeline finds its fields in a stored body.
type FieldMapping struct {
	TextField     string
	IDField       string // Empty or "_id" selects the store id
	DateField     string
	DateLayout    string
	PersistFields []string
	MinTextLength int
}

// Extract converts a raw document into a core.SourceDocument.
// All failures wrap ErrInvalidDocument.
func (m FieldMapping) Extract(raw RawDocument) (*core.SourceDocument, error) {
	doc := &core.SourceDocument{
		ID:     raw.ID,
		Key:    raw.ID,
		Source: raw.Body,
	}

	if m.IDField != "" && m.IDField != IDFieldStoreKey {
		v, ok := Lookup(raw.Body, m.IDField)
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s: missing id field %q", ErrInvalidDocument, raw.ID, m.IDField)
		}
		doc.ID = core.FormatValue(v)
	}

	if v, ok := Lookup(raw.Body, m.TextField); ok {
		if s, isString := v.(string); isString {
			doc.Text = s
		}
	}

	date, err := DocumentDate(raw.Body, m.DateField, m.DateLayout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDocument, doc.ID, err)
	}
	doc.Date = date

	if err := core.ValidateSourceDocument(doc, m.MinTextLength); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDocument, doc.ID, err)
	}

	if len(m.PersistFields) > 0 {
		doc.PersistFields = make(map[string]any, len(m.PersistFields))
		for _, field := range m.PersistFields {
			if v, ok := Lookup(raw.Body, field); ok {
				doc.PersistFields[field] = v
			}
		}
	}

	return doc, nil
}

// Lookup finds a field in a document body. An exact key match wins;
// otherwise a dotted path is walked through nested objects.
func Lookup(body map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	if v, ok := body[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	child, ok := body[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return Lookup(child, rest)
}

// DocumentDate reads the date field of a body. String values are parsed with
// layout; numeric values are epoch milliseconds. Dates are returned in UTC.
func DocumentDate(body map[string]any, field, layout string) (time.Time, error) {
	v, ok := Lookup(body, field)
	if !ok || v == nil {
		return time.Time{}, fmt.Errorf("%w: field %q", core.ErrMissingDate, field)
	}
	return ParseDate(v, layout)
}

// ParseDate converts a stored date value to a time.
func ParseDate(v any, layout string) (time.Time, error) {
	switch val := v.(type) {
	case string:
		if layout == "" {
			layout = time.RFC3339
		}
		t, err := time.Parse(layout, val)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing date %q: %w", val, err)
		}
		return t.UTC(), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return time.Time{}, fmt.Errorf("invalid epoch value %v", val)
		}
		return time.UnixMilli(int64(val)).UTC(), nil
	case int64:
		return time.UnixMilli(val).UTC(), nil
	case int:
		return time.UnixMilli(int64(val)).UTC(), nil
	case time.Time:
		return val.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported date value of type %T", v)
	}
}
