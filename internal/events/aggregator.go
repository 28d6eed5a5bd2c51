package events

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

// AggregatedStats summarises every event seen since the aggregator started.
type AggregatedStats struct {
	TotalComputations     int64                     `json:"total_computations"`
	CacheHits             int64                     `json:"cache_hits"`
	CacheMisses           int64                     `json:"cache_misses"`
	Operations            map[string]OperationStats `json:"operations"`
	AvgLatencyMs          float64                   `json:"avg_latency_ms"`
	P50LatencyMs          float64                   `json:"p50_latency_ms"`
	P95LatencyMs          float64                   `json:"p95_latency_ms"`
	P99LatencyMs          float64                   `json:"p99_latency_ms"`
	ComputationsPerMinute float64                   `json:"computations_per_minute"`
	RestoredComputations  int64                     `json:"restored_computations,omitempty"`
}

// OperationStats summarises one operation.
type OperationStats struct {
	Count           int64   `json:"count"`
	AvgResultTerms  float64 `json:"avg_result_terms"`
	MaxResultDegree int     `json:"max_result_degree"`
}

type opTotals struct {
	count       int64
	resultTerms int64
	maxDegree   int
}

// Aggregator folds computation events into running statistics.
type Aggregator struct {
	mu          sync.RWMutex
	total       int64
	cacheHits   int64
	cacheMisses int64
	restored    int64
	ops         map[string]*opTotals
	latencies   []float64
	next        int
	startTime   time.Time
	now         func() time.Time
	logger      *slog.Logger
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		ops:       make(map[string]*opTotals),
		latencies: make([]float64, 0, 1024),
		startTime: time.Now(),
		now:       time.Now,
		logger:    slog.Default().With("component", "event-aggregator"),
	}
}

// HandleMessage is a kafka.MessageHandler for the computations topic.
// Undecodable and foreign messages are logged and skipped so they are still
// committed.
func (a *Aggregator) HandleMessage(ctx context.Context, msg kafka.Message) error {
	if msg.EventType != "" && msg.EventType != string(EventComputation) {
		return nil
	}
	event, err := kafka.DecodeJSON[ComputationEvent](msg.Value)
	if err != nil {
		a.logger.Error("failed to decode computation event", "error", err)
		return nil
	}
	a.Record(event)
	return nil
}

// Record folds one event into the statistics.
func (a *Aggregator) Record(event ComputationEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}

	op, ok := a.ops[event.Operation]
	if !ok {
		op = &opTotals{maxDegree: -1}
		a.ops[event.Operation] = op
	}
	op.count++
	op.resultTerms += int64(event.ResultTerms)
	if event.ResultDegree > op.maxDegree {
		op.maxDegree = event.ResultDegree
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

// Restore seeds the counters from a snapshot taken by an earlier process, so
// totals survive a restart. Latency percentiles are not restored and the
// per-minute rate counts only events recorded since startup. Restore is meant
// to run once, before any event is recorded.
func (a *Aggregator) Restore(prev AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total += prev.TotalComputations
	a.restored += prev.TotalComputations
	a.cacheHits += prev.CacheHits
	a.cacheMisses += prev.CacheMisses
	for name, ps := range prev.Operations {
		if ps.Count <= 0 {
			continue
		}
		op, ok := a.ops[name]
		if !ok {
			op = &opTotals{maxDegree: -1}
			a.ops[name] = op
		}
		op.count += ps.Count
		op.resultTerms += int64(math.Round(ps.AvgResultTerms * float64(ps.Count)))
		if ps.MaxResultDegree > op.maxDegree {
			op.maxDegree = ps.MaxResultDegree
		}
	}
}

// Stats returns a snapshot of the current statistics.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalComputations:    a.total,
		CacheHits:            a.cacheHits,
		CacheMisses:          a.cacheMisses,
		RestoredComputations: a.restored,
		Operations:           make(map[string]OperationStats, len(a.ops)),
	}
	for name, op := range a.ops {
		stats.Operations[name] = OperationStats{
			Count:           op.count,
			AvgResultTerms:  float64(op.resultTerms) / float64(op.count),
			MaxResultDegree: op.maxDegree,
		}
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.ComputationsPerMinute = float64(a.total-a.restored) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
