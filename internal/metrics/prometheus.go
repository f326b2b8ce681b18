package metrics

import (
	"fmt"
	"sort"
	"strings"
)

const namespace = "streamledger"

// FormatPrometheus formats metrics in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	writeHeader(&sb, "uptime_seconds", "gauge", "Time since the process started")
	fmt.Fprintf(&sb, "%s_uptime_seconds %d\n\n", namespace, snap.Uptime)

	writeHeader(&sb, "http_requests_total", "counter", "HTTP requests by route and status")
	for _, key := range sortedKeys(snap.Requests) {
		route, status, _ := strings.Cut(key, " ")
		fmt.Fprintf(&sb, "%s_http_requests_total{route=%q,status=%q} %d\n", namespace, route, status, snap.Requests[key])
	}
	sb.WriteString("\n")

	writeHeader(&sb, "http_request_duration_ms_total", "counter", "Total request duration in milliseconds by route")
	for _, route := range sortedKeys(snap.RequestDurationMs) {
		fmt.Fprintf(&sb, "%s_http_request_duration_ms_total{route=%q} %d\n", namespace, route, snap.RequestDurationMs[route])
	}
	sb.WriteString("\n")

	writeHeader(&sb, "streams_in_flight", "gauge", "Streams currently being relayed")
	fmt.Fprintf(&sb, "%s_streams_in_flight %d\n\n", namespace, snap.StreamsInFlight)

	writeHeader(&sb, "streams_total", "counter", "Finished streams by outcome")
	for _, outcome := range sortedKeys(snap.StreamsByOutcome) {
		fmt.Fprintf(&sb, "%s_streams_total{outcome=%q} %d\n", namespace, outcome, snap.StreamsByOutcome[outcome])
	}
	sb.WriteString("\n")

	writeHeader(&sb, "stream_duration_ms_total", "counter", "Total stream duration in milliseconds")
	fmt.Fprintf(&sb, "%s_stream_duration_ms_total %d\n\n", namespace, snap.StreamDurationMs)

	writeHeader(&sb, "fragments_relayed_total", "counter", "Fragments delivered to clients")
	fmt.Fprintf(&sb, "%s_fragments_relayed_total %d\n\n", namespace, snap.FragmentsRelayed)

	writeHeader(&sb, "bytes_relayed_total", "counter", "Fragment bytes delivered to clients")
	fmt.Fprintf(&sb, "%s_bytes_relayed_total %d\n\n", namespace, snap.BytesRelayed)

	writeHeader(&sb, "persistence_failures_total", "counter", "Conversations that could not be saved")
	fmt.Fprintf(&sb, "%s_persistence_failures_total %d\n\n", namespace, snap.PersistenceFailures)

	writeHeader(&sb, "upstream_open_failures_total", "counter", "Failed attempts to open an upstream stream by provider")
	for _, provider := range sortedKeys(snap.UpstreamFailures) {
		fmt.Fprintf(&sb, "%s_upstream_open_failures_total{provider=%q} %d\n", namespace, provider, snap.UpstreamFailures[provider])
	}
	sb.WriteString("\n")

	writeHeader(&sb, "rate_limit_hits_total", "counter", "Requests rejected by the rate limiter")
	fmt.Fprintf(&sb, "%s_rate_limit_hits_total %d\n", namespace, snap.RateLimitHits)

	return sb.String()
}

func writeHeader(sb *strings.Builder, name, kind, help string) {
	fmt.Fprintf(sb, "# HELP %s_%s %s\n", namespace, name, help)
	fmt.Fprintf(sb, "# TYPE %s_%s %s\n", namespace, name, kind)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
