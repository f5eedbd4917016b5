package mock

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/nlp"
)

// Annotator is a test double for nlp.Annotator. It is safe for concurrent use.
type Annotator struct {
	// AnnotateFunc is called by Annotate if set.
	AnnotateFunc func(ctx context.Context, docID, text string) (*core.AnnotationResult, error)

	mu     sync.Mutex
	calls  []string
	closed bool
}

var _ nlp.Annotator = (*Annotator)(nil)

// NewAnnotator creates a mock annotator with default deterministic behavior.
func NewAnnotator() *Annotator {
	return &Annotator{}
}

// WithAnnotateFunc sets custom behavior and returns the annotator.
func (m *Annotator) WithAnnotateFunc(fn func(ctx context.Context, docID, text string) (*core.AnnotationResult, error)) *Annotator {
	m.AnnotateFunc = fn
	return m
}

// Annotate records the call and returns the custom or default result.
func (m *Annotator) Annotate(ctx context.Context, docID, text string) (*core.AnnotationResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, docID)
	fn := m.AnnotateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, docID, text)
	}
	return WordEntries(docID, text), nil
}

// Close marks the annotator closed.
func (m *Annotator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CallCount returns the number of Annotate calls.
func (m *Annotator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns the document ids passed to Annotate, sorted.
func (m *Annotator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.calls)
	slices.Sort(out)
	return out
}

// Closed reports whether Close was called.
func (m *Annotator) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset clears recorded calls and custom behavior.
func (m *Annotator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.closed = false
	m.AnnotateFunc = nil
}

// WordEntries builds one entry per distinct lowercased word of text.
func WordEntries(docID, text string) *core.AnnotationResult {
	seen := make(map[string]bool)
	result := &core.AnnotationResult{SourceDocID: docID, Entries: []core.AnnotationEntry{}}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		result.Entries = append(result.Entries, core.AnnotationEntry{
			"id":          fmt.Sprintf("%d", len(result.Entries)),
			"pretty_name": word,
			"type":        "concept",
		})
	}
	return result
}
