package metrics

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tokligence/streamledger/internal/relay"
)

func TestCollectorStreamLifecycle(t *testing.T) {
	c := NewCollector()
	c.StreamStarted()
	c.StreamStarted()
	c.FragmentRelayed(5)
	c.FragmentRelayed(7)
	c.StreamFinished(relay.StateCompleted, 20*time.Millisecond)
	c.PersistenceFailed()
	c.RecordUpstreamFailure("openai", 0, errors.New("boom"))
	c.RecordUpstreamFailure("openai", 1, errors.New("boom"))
	c.RecordRateLimitHit()
	c.RecordRequest("/stream", 200, 30*time.Millisecond)

	snap := c.GetSnapshot()
	if snap.StreamsInFlight != 1 {
		t.Fatalf("in flight = %d", snap.StreamsInFlight)
	}
	if snap.FragmentsRelayed != 2 || snap.BytesRelayed != 12 {
		t.Fatalf("fragments = %d bytes = %d", snap.FragmentsRelayed, snap.BytesRelayed)
	}
	if snap.StreamsByOutcome["completed"] != 1 || snap.PersistenceFailures != 1 {
		t.Fatalf("unexpected outcome counters %+v", snap)
	}
	if snap.UpstreamFailures["openai"] != 2 || snap.RateLimitHits != 1 {
		t.Fatalf("unexpected upstream/rate counters %+v", snap)
	}
	if snap.Requests["/stream 200"] != 1 || snap.RequestDurationMs["/stream"] != 30 {
		t.Fatalf("unexpected request counters %+v", snap.Requests)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("/health", 200, time.Millisecond)
	snap := c.GetSnapshot()
	snap.Requests["/health 200"] = 99
	if c.GetSnapshot().Requests["/health 200"] != 1 {
		t.Fatalf("snapshot aliases collector state")
	}
}

func TestCollectorConcurrentUpdates(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.StreamStarted()
			c.FragmentRelayed(1)
			c.StreamFinished(relay.StateFailed, time.Millisecond)
		}()
	}
	wg.Wait()
	snap := c.GetSnapshot()
	if snap.StreamsInFlight != 0 || snap.StreamsByOutcome["failed"] != 50 || snap.FragmentsRelayed != 50 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestFormatPrometheus(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("/history", 422, time.Millisecond)
	c.StreamStarted()
	c.StreamFinished(relay.StateCompleted, time.Millisecond)
	c.RecordUpstreamFailure("openai", 0, nil)

	out := FormatPrometheus(c.GetSnapshot())
	for _, want := range []string{
		"# TYPE streamledger_streams_total counter",
		`streamledger_http_requests_total{route="/history",status="422"} 1`,
		`streamledger_streams_total{outcome="completed"} 1`,
		`streamledger_upstream_open_failures_total{provider="openai"} 1`,
		"streamledger_streams_in_flight 0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
