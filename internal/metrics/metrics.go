package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/tokligence/streamledger/internal/relay"
)

// Ensure Collector can observe the relay.
var _ relay.Recorder = (*Collector)(nil)

// Collector collects counters for Prometheus text exposition.
type Collector struct {
	mu sync.RWMutex

	// HTTP
	requests        map[string]int64 // by "route status"
	requestDuration map[string]int64 // total ms by route

	// Streams
	streamsInFlight    int64
	streamsByOutcome   map[string]int64
	streamDurationMs   int64
	fragmentsRelayed   int64
	bytesRelayed       int64
	persistenceFailure int64

	// Upstream
	upstreamFailures map[string]int64 // by provider

	rateLimitHits int64

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		requests:         make(map[string]int64),
		requestDuration:  make(map[string]int64),
		streamsByOutcome: make(map[string]int64),
		upstreamFailures: make(map[string]int64),
		startTime:        time.Now(),
	}
}

// RecordRequest records a completed HTTP request.
func (c *Collector) RecordRequest(route string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[route+" "+strconv.Itoa(status)]++
	c.requestDuration[route] += duration.Milliseconds()
}

// RecordRateLimitHit records a rate limit rejection.
func (c *Collector) RecordRateLimitHit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rateLimitHits++
}

// RecordUpstreamFailure records a failed attempt to open an upstream stream.
func (c *Collector) RecordUpstreamFailure(provider string, _ int, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.upstreamFailures[provider]++
}

func (c *Collector) StreamStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.streamsInFlight++
}

func (c *Collector) FragmentRelayed(bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fragmentsRelayed++
	c.bytesRelayed += int64(bytes)
}

func (c *Collector) StreamFinished(state relay.State, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.streamsInFlight--
	c.streamsByOutcome[state.String()]++
	c.streamDurationMs += elapsed.Milliseconds()
}

func (c *Collector) PersistenceFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.persistenceFailure++
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Uptime              int64
	Requests            map[string]int64
	RequestDurationMs   map[string]int64
	StreamsInFlight     int64
	StreamsByOutcome    map[string]int64
	StreamDurationMs    int64
	FragmentsRelayed    int64
	BytesRelayed        int64
	PersistenceFailures int64
	UpstreamFailures    map[string]int64
	RateLimitHits       int64
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Uptime:              int64(time.Since(c.startTime).Seconds()),
		Requests:            copyMap(c.requests),
		RequestDurationMs:   copyMap(c.requestDuration),
		StreamsInFlight:     c.streamsInFlight,
		StreamsByOutcome:    copyMap(c.streamsByOutcome),
		StreamDurationMs:    c.streamDurationMs,
		FragmentsRelayed:    c.fragmentsRelayed,
		BytesRelayed:        c.bytesRelayed,
		PersistenceFailures: c.persistenceFailure,
		UpstreamFailures:    copyMap(c.upstreamFailures),
		RateLimitHits:       c.rateLimitHits,
	}
}

func copyMap(m map[string]int64) map[string]int64 {
	result := make(map[string]int64, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
