package core

import (
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same ID", content: "test content"},
		{name: "empty string", content: ""},
		{name: "index key", content: "annotations/doc-42-ann-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)
			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	if IDFromContent("content1") == IDFromContent("content2") {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestDateInterval_Contains(t *testing.T) {
	iv := DateInterval{
		Start: time.Date(2005, 5, 20, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2005, 6, 19, 0, 0, 0, 0, time.UTC),
	}

	if !iv.Contains(iv.Start) {
		t.Errorf("start should be contained")
	}
	if iv.Contains(iv.End) {
		t.Errorf("end should be excluded")
	}
	if !iv.Contains(time.Date(2005, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("inner date should be contained")
	}
	if iv.Contains(iv.Start.Add(-time.Nanosecond)) {
		t.Errorf("date before start should be excluded")
	}
	if got := iv.String(); got != "[2005-05-20, 2005-06-19)" {
		t.Errorf("String() = %q", got)
	}
}

func TestAnnotationEntry_ID(t *testing.T) {
	entry := AnnotationEntry{"id": float64(12), "cui": "C0015967", "missing": nil}

	id, ok := entry.ID("id")
	if !ok || id != "12" {
		t.Errorf("ID(id) = %q, %v", id, ok)
	}
	if _, ok := entry.ID("missing"); ok {
		t.Errorf("null value should be reported missing")
	}
	if _, ok := entry.ID("absent"); ok {
		t.Errorf("absent key should be reported missing")
	}
	if id, _ := entry.ID("cui"); id != "C0015967" {
		t.Errorf("ID(cui) = %q", id)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"abc", "abc"},
		{float64(3), "3"},
		{float64(2.5), "2.5"},
		{int64(-4), "-4"},
		{7, "7"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunSummary_Failed(t *testing.T) {
	s := &RunSummary{Intervals: IntervalCounts{Total: 3, Completed: 3}}
	if s.Failed() {
		t.Errorf("summary without failed intervals reported failure")
	}
	s.Intervals.Failed = 1
	if !s.Failed() {
		t.Errorf("summary with failed interval reported success")
	}
}
