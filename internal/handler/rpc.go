package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/calculator"
	apperrors "github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/rpc"
)

// RPC method names served by RegisterRPC.
const (
	MethodAdd      = "Polynomial.Add"
	MethodMultiply = "Polynomial.Multiply"
	MethodEvaluate = "Polynomial.Evaluate"
	MethodRender   = "Polynomial.Render"
)

// RegisterRPC exposes the computation operations on an RPC server. Requests
// and responses use the same JSON shapes as the HTTP API.
func (h *Handler) RegisterRPC(s *rpc.Server) {
	s.Register(MethodAdd, h.rpcMethod(func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req calculator.BinaryRequest
		if err := decodeParams(raw, &req); err != nil {
			return nil, err
		}
		if err := h.validator.Binary(&req); err != nil {
			return nil, err
		}
		return h.svc.Add(ctx, req)
	}))
	s.Register(MethodMultiply, h.rpcMethod(func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req calculator.BinaryRequest
		if err := decodeParams(raw, &req); err != nil {
			return nil, err
		}
		if err := h.validator.Binary(&req); err != nil {
			return nil, err
		}
		return h.svc.Multiply(ctx, req)
	}))
	s.Register(MethodEvaluate, h.rpcMethod(func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req calculator.EvaluateRequest
		if err := decodeParams(raw, &req); err != nil {
			return nil, err
		}
		if err := h.validator.Evaluate(&req); err != nil {
			return nil, err
		}
		return h.svc.Evaluate(ctx, req)
	}))
	s.Register(MethodRender, h.rpcMethod(func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req calculator.RenderRequest
		if err := decodeParams(raw, &req); err != nil {
			return nil, err
		}
		if err := h.validator.Render(&req); err != nil {
			return nil, err
		}
		return h.svc.Render(ctx, req)
	}))
}

// rpcMethod applies the HTTP surface's error policy to an RPC handler:
// server-side failures are logged and reported as "internal error".
func (h *Handler) rpcMethod(fn rpc.HandlerFunc) rpc.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		res, err := fn(ctx, raw)
		if err == nil {
			return res, nil
		}
		status, msg := apperrors.Public(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("rpc call failed", "status", status, "error", err)
		}
		if msg != err.Error() {
			return nil, errors.New(msg)
		}
		return nil, err
	}
}

func decodeParams(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
