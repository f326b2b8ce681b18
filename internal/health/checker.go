package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Pinger is anything that can report reachability, such as the history store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// CheckResult is the outcome of probing one target.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component pairs a target with its latest result.
type Component struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Critical bool   `json:"critical"`
	CheckResult
}

// Target registers a component with the checker.
type Target struct {
	Name string
	Type string // database, http, ...
	// Critical targets make the overall status unhealthy when they fail.
	Critical bool
	Pinger   Pinger
}

// Checker probes registered targets on demand.
type Checker struct {
	targets []Target

	mu   sync.RWMutex
	last []Component

	timeout    time.Duration
	maxLatency time.Duration
}

type Config struct {
	Targets    []Target
	Timeout    time.Duration
	MaxLatency time.Duration
}

// New returns a Checker. Zero timeouts take defaults of 2s per ping and
// 100ms before a reachable target counts as degraded.
func New(cfg Config) *Checker {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxLatency == 0 {
		cfg.MaxLatency = 100 * time.Millisecond
	}
	return &Checker{
		targets:    cfg.Targets,
		timeout:    cfg.Timeout,
		maxLatency: cfg.MaxLatency,
	}
}

// Check runs every target concurrently and returns the overall status.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	components := make([]Component, len(c.targets))
	var wg sync.WaitGroup
	for i, target := range c.targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			components[i] = c.check(ctx, target)
		}(i, target)
	}
	wg.Wait()

	c.mu.Lock()
	c.last = components
	c.mu.Unlock()

	return summarize(components)
}

func (c *Checker) check(ctx context.Context, target Target) Component {
	comp := Component{
		Name:        target.Name,
		Type:        target.Type,
		Critical:    target.Critical,
		CheckResult: CheckResult{Timestamp: time.Now()},
	}

	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := target.Pinger.Ping(pingCtx)
	comp.Latency = time.Since(start)

	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "unreachable"
		return comp
	}
	if comp.Latency > c.maxLatency {
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("slow ping: %v", comp.Latency)
	} else {
		comp.Status = StatusHealthy
		comp.Message = "connected"
	}
	return comp
}

// summarize folds component results into one status. Any failure degrades
// the service; a failed critical component makes it unhealthy.
func summarize(components []Component) HealthStatus {
	out := HealthStatus{Status: StatusHealthy, Timestamp: time.Now().UTC(), Components: components}
	for _, comp := range components {
		if comp.Status == StatusHealthy {
			continue
		}
		if comp.Status == StatusUnhealthy && comp.Critical {
			out.Status = StatusUnhealthy
			break
		}
		out.Status = StatusDegraded
	}
	return out
}

// HealthStatus is the aggregate result of one Check.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// Component looks up a component result by name.
func (h HealthStatus) Component(name string) (Component, bool) {
	for _, comp := range h.Components {
		if comp.Name == name {
			return comp, true
		}
	}
	return Component{}, false
}

// Last returns the result of the most recent Check without probing again.
func (c *Checker) Last() HealthStatus {
	c.mu.RLock()
	last := c.last
	c.mu.RUnlock()
	return summarize(last)
}
