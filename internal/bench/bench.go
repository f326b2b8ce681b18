// Package bench drives concurrent POST /stream requests and reports
// time-to-first-fragment and full-stream latency.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Streamer is the part of the API client the benchmark needs.
type Streamer interface {
	Stream(ctx context.Context, prompt, format string, onFragment func(string) error) error
}

// Config controls one benchmark run. A run ends after Duration or Requests,
// whichever comes first; zero disables that bound.
type Config struct {
	Concurrency int
	Duration    time.Duration
	Requests    int
	RPS         int
	Prompt      string
	Format      string
}

// Report summarises a run.
type Report struct {
	Requests   int64
	Failures   int64
	Fragments  int64
	Elapsed    time.Duration
	FirstByte  Latencies
	Total      Latencies
	FirstError string
}

// Latencies holds a latency distribution.
type Latencies struct {
	Min, P50, P95, P99, Max, Mean time.Duration
}

// Run executes the benchmark against s.
func Run(ctx context.Context, s Streamer, cfg Config) (Report, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Duration <= 0 && cfg.Requests <= 0 {
		return Report{}, errors.New("bench: duration or request count required")
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		cfg.Prompt = "Hello"
	}
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	var pace <-chan time.Time
	if cfg.RPS > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
		defer ticker.Stop()
		pace = ticker.C
	}

	// Each request takes one token; nil means unbounded.
	var budget chan struct{}
	if cfg.Requests > 0 {
		budget = make(chan struct{}, cfg.Requests)
		for i := 0; i < cfg.Requests; i++ {
			budget <- struct{}{}
		}
		close(budget)
	}

	var (
		mu        sync.Mutex
		report    Report
		firstByte []time.Duration
		total     []time.Duration
		wg        sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if budget != nil {
					if _, ok := <-budget; !ok {
						return
					}
				}
				if pace != nil {
					select {
					case <-ctx.Done():
						return
					case <-pace:
					}
				}
				if ctx.Err() != nil {
					return
				}

				reqStart := time.Now()
				var ttfb time.Duration
				var fragments int64
				err := s.Stream(ctx, cfg.Prompt, cfg.Format, func(string) error {
					if fragments == 0 {
						ttfb = time.Since(reqStart)
					}
					fragments++
					return nil
				})
				elapsed := time.Since(reqStart)
				if err != nil && ctx.Err() != nil {
					// Cut off by the run deadline; not a server failure.
					return
				}

				mu.Lock()
				report.Requests++
				report.Fragments += fragments
				if err != nil {
					report.Failures++
					if report.FirstError == "" {
						report.FirstError = err.Error()
					}
				} else {
					total = append(total, elapsed)
					if fragments > 0 {
						firstByte = append(firstByte, ttfb)
					}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	report.Elapsed = time.Since(start)
	report.FirstByte = summarise(firstByte)
	report.Total = summarise(total)
	return report, nil
}

func summarise(samples []time.Duration) Latencies {
	if len(samples) == 0 {
		return Latencies{}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}
	return Latencies{
		Min:  samples[0],
		P50:  percentile(samples, 0.50),
		P95:  percentile(samples, 0.95),
		P99:  percentile(samples, 0.99),
		Max:  samples[len(samples)-1],
		Mean: sum / time.Duration(len(samples)),
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// RequestsPerSecond is the completed request rate over the run.
func (r Report) RequestsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Requests) / r.Elapsed.Seconds()
}

// ErrorRate is the failed share of requests in percent.
func (r Report) ErrorRate() float64 {
	if r.Requests == 0 {
		return 0
	}
	return float64(r.Failures) / float64(r.Requests) * 100
}

// Write prints the report in a fixed-width layout.
func (r Report) Write(w io.Writer) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "Benchmark Results")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Total Requests:     %d\n", r.Requests)
	fmt.Fprintf(w, "Total Failures:     %d\n", r.Failures)
	fmt.Fprintf(w, "Fragments:          %d\n", r.Fragments)
	fmt.Fprintf(w, "Duration:           %.2f seconds\n", r.Elapsed.Seconds())
	fmt.Fprintf(w, "Requests/sec:       %.2f\n", r.RequestsPerSecond())
	for _, section := range []struct {
		name string
		l    Latencies
	}{{"First Fragment", r.FirstByte}, {"Full Stream", r.Total}} {
		fmt.Fprintln(w, strings.Repeat("-", 60))
		fmt.Fprintf(w, "%s\n", section.name)
		fmt.Fprintf(w, "  Min:   %s\n  P50:   %s\n  Mean:  %s\n  P95:   %s\n  P99:   %s\n  Max:   %s\n",
			ms(section.l.Min), ms(section.l.P50), ms(section.l.Mean), ms(section.l.P95), ms(section.l.P99), ms(section.l.Max))
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Error Rate:         %.2f%%\n", r.ErrorRate())
	if r.FirstError != "" {
		fmt.Fprintf(w, "First Error:        %s\n", r.FirstError)
	}
	fmt.Fprintln(w, line)
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2f ms", float64(d.Microseconds())/1000)
}
