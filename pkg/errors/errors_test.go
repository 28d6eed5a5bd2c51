package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/polynomial"
)

func TestHTTPStatusCode(t *testing.T) {
	_, parseErr := polynomial.Parse("4 x\n")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInvalidInput, http.StatusTeapot, "custom"), http.StatusTeapot},
		{"wrapped not found", fmt.Errorf("loading: %w", ErrPolynomialNotFound), http.StatusNotFound},
		{"exists", ErrPolynomialExists, http.StatusConflict},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"parse error", fmt.Errorf("operand a: %w", parseErr), http.StatusBadRequest},
		{"too many terms", Newf(ErrTooManyTerms, http.StatusRequestEntityTooLarge, "%d > %d", 5, 4), http.StatusRequestEntityTooLarge},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrPolynomialNotFound, http.StatusNotFound, "name %q", "p")
	if err.Error() != `polynomial not found: name "p"` {
		t.Errorf("unexpected message %q", err.Error())
	}
	if err.Unwrap() != ErrPolynomialNotFound {
		t.Errorf("expected sentinel from Unwrap")
	}
}

func TestPublicHidesInternalDetail(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"driver error", fmt.Errorf("saving p: %w", fmt.Errorf("pq: connection reset")), http.StatusInternalServerError, "internal error"},
		{"timeout kept", fmt.Errorf("resolving operands: %w", ErrTimeout), http.StatusServiceUnavailable, "resolving operands: operation timed out"},
		{"client error kept", Newf(ErrPolynomialNotFound, http.StatusNotFound, "%q", "p"), http.StatusNotFound, `polynomial not found: "p"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := Public(tt.err)
			if status != tt.wantStatus || msg != tt.wantMsg {
				t.Errorf("got (%d, %q), want (%d, %q)", status, msg, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}
