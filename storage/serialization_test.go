package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalEnvelope(t *testing.T) {
	tests := []struct {
		name string
		env  *Envelope
	}{
		{
			name: "dated document",
			env: &Envelope{
				ID:    "doc-1",
				Dated: true,
				Date:  time.Date(2005, 6, 1, 12, 30, 0, 0, time.UTC),
				Body:  map[string]any{"text": "patient has fever", "date": "2005-06-01"},
			},
		},
		{
			name: "undated annotation record",
			env: &Envelope{
				ID:   "doc-1-ann-a1",
				Body: map[string]any{"nlp.label": "fever", "meta.id": "1"},
			},
		},
		{
			name: "nested body",
			env: &Envelope{
				ID:    "doc_1_annotations",
				Dated: true,
				Date:  time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
				Body: map[string]any{
					"annotations": []any{map[string]any{"id": "a1"}, map[string]any{"id": "a2"}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalEnvelope(tt.env)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalEnvelope(data)
			require.NoError(t, err)
			assert.Equal(t, tt.env.ID, decoded.ID)
			assert.Equal(t, tt.env.Dated, decoded.Dated)
			if tt.env.Dated {
				assert.True(t, tt.env.Date.Equal(decoded.Date))
			} else {
				assert.True(t, decoded.Date.IsZero())
			}

			want, err := NormalizeBody(tt.env.Body)
			require.NoError(t, err)
			assert.Equal(t, want, decoded.Body)
		})
	}
}

func TestUnmarshalEnvelope_Invalid(t *testing.T) {
	valid, err := MarshalEnvelope(&Envelope{ID: "doc-1", Body: map[string]any{"a": "b"}})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"truncated body", valid[:len(valid)-2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalEnvelope(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestMarshalEnvelope_Unencodable(t *testing.T) {
	_, err := MarshalEnvelope(&Envelope{ID: "bad", Body: map[string]any{"ch": make(chan int)}})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestNormalizeBody(t *testing.T) {
	body, err := NormalizeBody(map[string]any{"n": 3, "list": []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, float64(3), body["n"])
	assert.Equal(t, []any{"a"}, body["list"])
}
