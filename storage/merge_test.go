package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeBodies(t *testing.T) {
	existing := map[string]any{
		"meta.docid":  "1",
		"meta.author": "old",
		"annotations": []any{
			map[string]any{"id": "a1", "label": "fever"},
		},
	}
	incoming := map[string]any{
		"meta.author": "new",
		"annotations": []any{
			map[string]any{"id": "a1", "label": "fever"},
			map[string]any{"id": "a2", "label": "cough"},
		},
	}

	merged, err := MergeBodies(existing, incoming, "annotations")
	require.NoError(t, err)

	assert.Equal(t, "1", merged["meta.docid"])
	assert.Equal(t, "new", merged["meta.author"])
	assert.Equal(t, []any{
		map[string]any{"id": "a1", "label": "fever"},
		map[string]any{"id": "a2", "label": "cough"},
	}, merged["annotations"])

	// existing is left untouched
	assert.Equal(t, "old", existing["meta.author"])
	assert.Len(t, existing["annotations"], 1)
}

func TestMergeBodies_NoExisting(t *testing.T) {
	merged, err := MergeBodies(nil, map[string]any{"annotations": []any{"x"}, "k": "v"}, "annotations")
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, merged["annotations"])
	assert.Equal(t, "v", merged["k"])
}

func TestMergeBodies_WithoutListField(t *testing.T) {
	merged, err := MergeBodies(map[string]any{"a": "1", "b": "2"}, map[string]any{"b": "3"}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "3"}, merged)
}

func TestUnionLists(t *testing.T) {
	got := UnionLists(
		[]any{"a", map[string]any{"k": 1, "j": 2}},
		[]any{map[string]any{"j": 2, "k": 1}, "b", "a"},
	)
	assert.Equal(t, []any{"a", map[string]any{"k": 1, "j": 2}, "b"}, got)
	assert.Empty(t, UnionLists())
}

func TestMatchIndex(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"annotations", "annotations", true},
		{"annotations", "annotations_disease", false},
		{"annotations*", "annotations_disease", true},
		{"annotations*", "annotations", true},
		{"annotations*", "documents", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchIndex(tt.pattern, tt.name), "%s ~ %s", tt.pattern, tt.name)
	}
	assert.True(t, IsPattern("x*"))
	assert.False(t, IsPattern("x"))
}
