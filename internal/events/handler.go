package events

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/cache"
)

// StatsResponse is the body of GET /api/v1/stats: the event aggregates,
// plus the live result cache counters when a cache is configured. The event
// counters cover every replica publishing to the topic; the cache counters
// are this process only.
type StatsResponse struct {
	AggregatedStats
	Cache *cache.Stats `json:"cache,omitempty"`
}

// Handler serves computation statistics.
type Handler struct {
	aggregator *Aggregator
	cache      *cache.Cache
	logger     *slog.Logger
}

// NewHandler serves agg's statistics. c may be nil.
func NewHandler(agg *Aggregator, c *cache.Cache) *Handler {
	return &Handler{aggregator: agg, cache: c, logger: slog.Default().With("component", "stats-handler")}
}

// Stats answers GET /api/v1/stats. ?operation=multiply narrows the
// per-operation table to one entry and answers 404 if that operation has
// never run.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{AggregatedStats: h.aggregator.Stats()}
	if op := r.URL.Query().Get("operation"); op != "" {
		opStats, ok := resp.Operations[op]
		if !ok {
			h.write(w, http.StatusNotFound, map[string]string{"error": "no computations recorded for operation " + op})
			return
		}
		resp.Operations = map[string]OperationStats{op: opStats}
	}
	if h.cache != nil {
		cs := h.cache.Stats()
		resp.Cache = &cs
	}
	h.write(w, http.StatusOK, resp)
}

func (h *Handler) write(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("encoding stats", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
