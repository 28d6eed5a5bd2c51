// Package errors defines the sentinel errors shared by the calculator, the
// store and both API surfaces, and maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/polynomial"
)

var (
	ErrPolynomialNotFound = errors.New("polynomial not found")
	ErrPolynomialExists   = errors.New("polynomial already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidPolynomial  = errors.New("invalid polynomial")
	ErrTooManyTerms       = errors.New("too many terms")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
)

// statusBySentinel is checked in order; the first match wins.
var statusBySentinel = []struct {
	err    error
	status int
}{
	{ErrPolynomialNotFound, http.StatusNotFound},
	{ErrPolynomialExists, http.StatusConflict},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrInvalidPolynomial, http.StatusBadRequest},
	{ErrTooManyTerms, http.StatusRequestEntityTooLarge},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrTimeout, http.StatusServiceUnavailable},
}

// AppError pins an explicit status and detail message to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(sentinel error, status int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: status}
}

func Newf(sentinel error, status int, format string, args ...any) *AppError {
	return New(sentinel, status, fmt.Sprintf(format, args...))
}

// HTTPStatusCode picks a status for err: an AppError's own code, 400 for a
// polynomial parse error, the sentinel table, and 500 for anything else.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	var parseErr *polynomial.ParseError
	if errors.As(err, &parseErr) {
		return http.StatusBadRequest
	}
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// Public returns the status for err and the message safe to show a client.
// Server-side failures other than timeouts collapse to ErrInternal so
// database and driver details stay in the logs.
func Public(err error) (status int, message string) {
	status = HTTPStatusCode(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, ErrTimeout) {
		return status, ErrInternal.Error()
	}
	return status, err.Error()
}
