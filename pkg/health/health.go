// Package health reports whether polyd can serve traffic. Each backing
// service is registered as a Dependency naming the feature it powers, so a
// readiness report says both what is failing and what the engine can no
// longer do.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// severity orders statuses from best to worst.
func (s Status) severity() int {
	switch s {
	case StatusDown:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Dependency describes a backing service. A failing required dependency
// takes the whole service down; a failing optional one only switches its
// Feature off. A nil Ping means the dependency was never configured.
type Dependency struct {
	Name     string
	Required bool
	Feature  string
	Ping     func(ctx context.Context) error
}

// ComponentHealth holds the result of a single dependency check.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Feature string `json:"feature,omitempty"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregated result of all dependency checks. Unavailable
// lists the features switched off by failing dependencies, sorted.
type Report struct {
	Status      Status                     `json:"status"`
	Components  map[string]ComponentHealth `json:"components"`
	Unavailable []string                   `json:"unavailable,omitempty"`
	Timestamp   string                     `json:"timestamp"`
}

// Checker holds the registered dependencies.
type Checker struct {
	mu      sync.RWMutex
	deps    map[string]Dependency
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates an empty Checker whose probes each get at most two
// seconds.
func NewChecker() *Checker {
	return &Checker{
		deps:    make(map[string]Dependency),
		timeout: 2 * time.Second,
		logger:  slog.Default().With("component", "health"),
	}
}

// Add registers d, replacing any dependency with the same name.
func (c *Checker) Add(d Dependency) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps[d.Name] = d
}

func (c *Checker) probe(ctx context.Context, d Dependency) ComponentHealth {
	failed := StatusDegraded
	if d.Required {
		failed = StatusDown
	}
	if d.Ping == nil {
		return ComponentHealth{Status: failed, Feature: d.Feature, Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	err := d.Ping(ctx)
	latency := time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		return ComponentHealth{Status: failed, Feature: d.Feature, Message: err.Error(), Latency: latency}
	}
	return ComponentHealth{Status: StatusUp, Feature: d.Feature, Latency: latency}
}

// Run probes every dependency concurrently. The overall status is the worst
// component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	deps := make([]Dependency, 0, len(c.deps))
	for _, d := range c.deps {
		deps = append(deps, d)
	}
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(deps))
	var wg sync.WaitGroup
	for i, d := range deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.probe(ctx, d)
		}()
	}
	wg.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(deps)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, d := range deps {
		res := results[i]
		report.Components[d.Name] = res
		if res.Status.severity() > report.Status.severity() {
			report.Status = res.Status
		}
		if res.Status != StatusUp && d.Feature != "" {
			report.Unavailable = append(report.Unavailable, d.Feature)
		}
	}
	sort.Strings(report.Unavailable)
	return report
}

// LiveHandler answers liveness probes. It never touches dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes. Degraded still counts as ready:
// inline operands compute without any backing service.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		if err := json.NewEncoder(w).Encode(report); err != nil {
			c.logger.Error("failed to write readiness report", "error", err)
		}
	}
}
