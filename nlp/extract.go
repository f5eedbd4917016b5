package nlp

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/poiesic/annotit/core"
)

// decoration holds request-side values attached to gate-nlp entries.
type decoration struct {
	text        string
	pipelineURL string
	timestamp   string
	firstID     int // Id of the first generated gate-nlp entry
}

// Extract decodes a response body and returns its annotation entries in
// response order. A missing or null entry collection yields no entries.
func (d Dialect) Extract(body []byte, deco decoration) ([]core.AnnotationEntry, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: response is not an object", ErrMalformedResponse)
	}

	outer, err := d.outer(doc)
	if err != nil {
		return nil, err
	}
	if outer == nil {
		return nil, nil
	}

	inner, ok := lookupPath(outer, d.ResultKey)
	if !ok || inner == nil {
		return nil, nil
	}

	switch d.Kind {
	case DialectGate:
		if text, ok := doc["text"].(string); ok {
			deco.text = text
		}
		return flattenGate(inner, deco)
	default:
		entries, err := orderedEntries(inner)
		if err != nil {
			return nil, err
		}
		enrichMedcat(entries, doc, outer)
		return entries, nil
	}
}

// outer resolves the result object, decoding it first when the service
// returned it as a JSON string.
func (d Dialect) outer(doc map[string]any) (map[string]any, error) {
	if d.OuterKey == "" {
		return doc, nil
	}
	v, ok := lookupPath(doc, d.OuterKey)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedResponse, d.OuterKey)
	}
	switch outer := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return outer, nil
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(outer), &decoded); err != nil {
			return nil, fmt.Errorf("%w: %q is not a JSON object: %w", ErrMalformedResponse, d.OuterKey, err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: %q has type %T", ErrMalformedResponse, d.OuterKey, v)
	}
}

// orderedEntries accepts a list of entries or a map keyed by position.
// Numeric keys are ordered numerically, any others follow in lexical order.
func orderedEntries(v any) ([]core.AnnotationEntry, error) {
	var raw []any
	switch coll := v.(type) {
	case []any:
		raw = coll
	case map[string]any:
		keys := make([]string, 0, len(coll))
		for k := range coll {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, aErr := strconv.Atoi(keys[i])
			b, bErr := strconv.Atoi(keys[j])
			switch {
			case aErr == nil && bErr == nil:
				return a < b
			case aErr == nil:
				return true
			case bErr == nil:
				return false
			default:
				return keys[i] < keys[j]
			}
		})
		for _, k := range keys {
			raw = append(raw, coll[k])
		}
	default:
		return nil, fmt.Errorf("%w: entities have type %T", ErrMalformedResponse, v)
	}

	entries := make([]core.AnnotationEntry, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: entity has type %T", ErrMalformedResponse, item)
		}
		entries = append(entries, core.AnnotationEntry(m))
	}
	return entries, nil
}

func enrichMedcat(entries []core.AnnotationEntry, doc, outer map[string]any) {
	info, _ := doc["medcat_info"].(map[string]any)
	ts, hasTS := outer["timestamp"]
	if info == nil {
		return
	}
	for _, e := range entries {
		for k, v := range info {
			e[k] = v
		}
		if hasTS {
			e["timestamp"] = ts
		}
	}
}

// flattenGate turns a map of annotation type to entry list into one
// sequence with generated ids. Types are visited in sorted order.
func flattenGate(v any, deco decoration) ([]core.AnnotationEntry, error) {
	byType, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: entities have type %T", ErrMalformedResponse, v)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	slices.Sort(types)

	text := []rune(deco.text)
	var entries []core.AnnotationEntry
	for _, typ := range types {
		list, ok := byType[typ].([]any)
		if !ok {
			if byType[typ] == nil {
				continue
			}
			return nil, fmt.Errorf("%w: entities of type %q have type %T", ErrMalformedResponse, typ, byType[typ])
		}
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: entity has type %T", ErrMalformedResponse, item)
			}
			m["type"] = typ
			m["id"] = deco.firstID + len(entries)
			m["pipeline_url"] = deco.pipelineURL
			m["timestamp"] = deco.timestamp
			if span, ok := spanOf(m["indices"]); ok {
				m["source_value"] = sliceRunes(text, span[0], span[1])
			}
			entries = append(entries, core.AnnotationEntry(m))
		}
	}
	return entries, nil
}

func spanOf(v any) ([2]int, bool) {
	list, ok := v.([]any)
	if !ok || len(list) < 2 {
		return [2]int{}, false
	}
	var span [2]int
	for i := range 2 {
		n, ok := toInt(list[i])
		if !ok {
			return [2]int{}, false
		}
		span[i] = n
	}
	return span, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func sliceRunes(text []rune, start, end int) string {
	start = max(0, min(start, len(text)))
	end = max(start, min(end, len(text)))
	return string(text[start:end])
}

// lookupPath resolves an exact key first, then a dot-separated path.
func lookupPath(m map[string]any, path string) (any, bool) {
	if path == "" {
		return m, true
	}
	if v, ok := m[path]; ok {
		return v, true
	}
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
