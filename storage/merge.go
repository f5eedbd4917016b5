package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"dario.cat/mergo"
)

// MergeBodies merges incoming into a copy of existing. Fields of incoming
// override those of existing. When listField is set, the lists held under it
// in both bodies are concatenated and duplicates removed, keeping first
// occurrence order.
func MergeBodies(existing, incoming map[string]any, listField string) (map[string]any, error) {
	merged := cloneBody(existing)

	var combined []any
	if listField != "" {
		combined = UnionLists(asList(existing[listField]), asList(incoming[listField]))
	}

	if err := mergo.Merge(&merged, incoming, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("%w: merging bodies: %w", ErrSerializationFailed, err)
	}

	if listField != "" {
		merged[listField] = combined
	}
	return merged, nil
}

// UnionLists concatenates lists and drops elements whose JSON encoding was
// already seen.
func UnionLists(lists ...[]any) []any {
	seen := make(map[string]struct{})
	out := make([]any, 0)
	for _, list := range lists {
		for _, item := range list {
			key, err := json.Marshal(item)
			if err != nil {
				out = append(out, item)
				continue
			}
			if _, dup := seen[string(key)]; dup {
				continue
			}
			seen[string(key)] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// cloneBody deep-copies the maps and slices of a decoded JSON body so that
// merging never mutates the caller's document.
func cloneBody(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneBody(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

func asList(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = m
		}
		return out
	case nil:
		return nil
	default:
		return []any{val}
	}
}

// MatchIndex reports whether name is selected by pattern. A pattern ending in
// '*' matches by prefix; anything else must match exactly.
func MatchIndex(pattern, name string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return pattern == name
}

// IsPattern reports whether index selects more than one index.
func IsPattern(index string) bool {
	return strings.HasSuffix(index, "*")
}
