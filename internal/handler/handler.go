// Package handler exposes the calculator over HTTP and RPC.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/polynomial"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/logger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Handler implements the polynomial HTTP endpoints.
type Handler struct {
	svc          *calculator.Service
	cache        *cache.Cache
	validator    *validator.Validator
	maxBodyBytes int64
	logger       *slog.Logger
}

// New creates a Handler. resultCache may be nil when caching is disabled.
// Request bodies are capped at room for two operands of maxTextBytes each.
func New(svc *calculator.Service, resultCache *cache.Cache, maxTextBytes int) *Handler {
	return &Handler{
		svc:          svc,
		cache:        resultCache,
		validator:    validator.New(maxTextBytes),
		maxBodyBytes: int64(2*maxTextBytes) + 64<<10,
		logger:       slog.Default().With("component", "polynomial-handler"),
	}
}

// Add handles POST /api/v1/add.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	var req calculator.BinaryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.Binary(&req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.svc.Add(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Multiply handles POST /api/v1/multiply.
func (h *Handler) Multiply(w http.ResponseWriter, r *http.Request) {
	var req calculator.BinaryRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.Binary(&req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.svc.Multiply(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Evaluate handles POST /api/v1/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req calculator.EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.Evaluate(&req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.svc.Evaluate(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Render handles POST /api/v1/render.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req calculator.RenderRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.Render(&req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.svc.Render(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// PutPolynomial handles PUT /api/v1/polynomials/{name}, creating or
// replacing the named polynomial.
func (h *Handler) PutPolynomial(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req calculator.SaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.Save(name, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.svc.Save(r.Context(), name, req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// CreatePolynomial handles POST /api/v1/polynomials. The name travels in the
// body and must not already exist.
func (h *Handler) CreatePolynomial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		calculator.SaveRequest
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.Save(req.Name, &req.SaveRequest); err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.svc.Create(r.Context(), req.Name, req.SaveRequest)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/polynomials/"+req.Name)
	h.writeJSON(w, http.StatusCreated, res)
}

// GetPolynomial handles GET /api/v1/polynomials/{name}. With
// ?format=text the body is returned in the line format.
func (h *Handler) GetPolynomial(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.validator.Name(name); err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.svc.Get(r.Context(), name)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := res.Terms.Encode(w); err != nil {
			h.logger.Error("failed to write polynomial", "name", name, "error", err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// DeletePolynomial handles DELETE /api/v1/polynomials/{name}.
func (h *Handler) DeletePolynomial(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.validator.Name(name); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), name); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPolynomials handles GET /api/v1/polynomials?limit=&offset=.
func (h *Handler) ListPolynomials(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxListLimit)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	summaries, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"polynomials": summaries,
		"count":       len(summaries),
		"limit":       limit,
		"offset":      offset,
	})
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeErr maps service and validation errors to JSON error responses.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": ve.Fields,
		})
		return
	}
	var pe *polynomial.ParseError
	if errors.As(err, &pe) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": err.Error(),
			"line":  pe.Line,
		})
		return
	}
	status, msg := apperrors.Public(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeError(w, status, msg)
}

// writeJSON encodes data before committing the status, so an unencodable
// value becomes a 500 rather than a success with an empty body.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode response", "status", status, "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
