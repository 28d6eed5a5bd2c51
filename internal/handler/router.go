package handler

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/events"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/ratelimit"
)

// RouterConfig carries the optional pieces of the middleware chain. Nil
// fields switch the corresponding middleware off.
type RouterConfig struct {
	Health            *health.Checker
	Stats             *events.Handler
	Metrics           *metrics.Metrics
	Limiter           *ratelimit.Limiter
	RequestsPerMinute int
	Timeout           time.Duration
	CORS              *middleware.CORSConfig
}

// NewRouter builds the HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST   /api/v1/add                  add two operands
//	POST   /api/v1/multiply             multiply two operands
//	POST   /api/v1/evaluate             evaluate an operand at x
//	POST   /api/v1/render               render an operand
//	POST   /api/v1/polynomials          create a named polynomial
//	GET    /api/v1/polynomials          list named polynomials
//	GET    /api/v1/polynomials/{name}   fetch one
//	PUT    /api/v1/polynomials/{name}   create or replace one
//	DELETE /api/v1/polynomials/{name}   delete one
//	GET    /api/v1/cache/stats          result cache statistics
//	POST   /api/v1/cache/invalidate     drop all cached results
//	GET    /api/v1/stats                aggregated computation statistics
//	GET    /health/live, /health/ready  probes
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → RateLimit → Timeout → mux
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/add", h.Add)
	mux.HandleFunc("POST /api/v1/multiply", h.Multiply)
	mux.HandleFunc("POST /api/v1/evaluate", h.Evaluate)
	mux.HandleFunc("POST /api/v1/render", h.Render)

	mux.HandleFunc("POST /api/v1/polynomials", h.CreatePolynomial)
	mux.HandleFunc("GET /api/v1/polynomials", h.ListPolynomials)
	mux.HandleFunc("GET /api/v1/polynomials/{name}", h.GetPolynomial)
	mux.HandleFunc("PUT /api/v1/polynomials/{name}", h.PutPolynomial)
	mux.HandleFunc("DELETE /api/v1/polynomials/{name}", h.DeletePolynomial)

	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	if cfg.Stats != nil {
		mux.HandleFunc("GET /api/v1/stats", cfg.Stats.Stats)
	}
	if cfg.Health != nil {
		mux.HandleFunc("GET /health/live", cfg.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	if cfg.Timeout > 0 {
		chain = middleware.Timeout(cfg.Timeout)(chain)
	}
	if cfg.Limiter != nil {
		chain = middleware.RateLimit(cfg.Limiter, cfg.RequestsPerMinute)(chain)
	}
	if cfg.CORS != nil {
		chain = middleware.CORS(*cfg.CORS)(chain)
	}
	if cfg.Metrics != nil {
		chain = middleware.Metrics(cfg.Metrics, mux)(chain)
	}
	chain = middleware.RequestID(chain)
	return chain
}
