package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/annotit/ingestion"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_TracksRunStats(t *testing.T) {
	c := NewCollector()
	stats := ingestion.NewStats()
	stats.IntervalsTotal.Add(268)
	stats.IntervalsCompleted.Add(267)
	stats.IntervalsFailed.Add(1)
	stats.DocsAnnotated.Add(40)
	stats.RecordsWritten.Add(120)
	c.Track(stats)
	c.Observe(3*time.Second, true)

	expected := `
# HELP annotit_intervals_failed_total Intervals that failed.
# TYPE annotit_intervals_failed_total counter
annotit_intervals_failed_total 1
# HELP annotit_intervals_scheduled Intervals scheduled in the current run.
# TYPE annotit_intervals_scheduled gauge
annotit_intervals_scheduled 268
# HELP annotit_records_written_total Sink records written.
# TYPE annotit_records_written_total counter
annotit_records_written_total 120
# HELP annotit_runs_failed_total Annotation runs with failed intervals.
# TYPE annotit_runs_failed_total counter
annotit_runs_failed_total 1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"annotit_intervals_failed_total",
		"annotit_intervals_scheduled",
		"annotit_records_written_total",
		"annotit_runs_failed_total",
	))

	// a new run starts from zero
	c.Track(ingestion.NewStats())
	expected = `
# HELP annotit_records_written_total Sink records written.
# TYPE annotit_records_written_total counter
annotit_records_written_total 0
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "annotit_records_written_total"))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "annotit_documents_processed_total 0")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCollector_ServeStopsWithContext(t *testing.T) {
	c := NewCollector()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
