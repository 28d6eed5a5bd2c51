// Package events carries computation events from the calculator to Kafka and
// aggregates them back into operational statistics.
package events

import "time"

// EventType names the kind of event on the computations topic.
type EventType string

const EventComputation EventType = "computation"

// ComputationEvent records one completed polynomial operation.
type ComputationEvent struct {
	Type         EventType `json:"type"`
	Operation    string    `json:"operation"`
	OperandTerms []int     `json:"operand_terms"`
	ResultTerms  int       `json:"result_terms"`
	ResultDegree int       `json:"result_degree"`
	LatencyMs    float64   `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}
