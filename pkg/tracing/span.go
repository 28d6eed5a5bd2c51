// Package tracing times the stages of a single computation. A root span is
// opened per request and each stage (operand resolution, cache lookup,
// arithmetic) hangs a child off it; the finished tree is emitted as one
// structured log record.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

// Span is one timed stage. The zero value is not usable; use StartSpan.
type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	elapsed  time.Duration
	ended    bool
	attrs    []slog.Attr
	children []*Span
}

// Stage is a flattened view of a finished span, used for reporting.
type Stage struct {
	Path    string
	Elapsed time.Duration
}

// StartSpan opens a root span carrying traceID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, start: time.Now()}
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan opens a span under the one in ctx. With no parent the
// span is a detached root with an empty trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return StartSpan(ctx, name, "")
	}
	child := &Span{name: name, traceID: parent.traceID, start: time.Now()}
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

// SpanFromContext returns the innermost span in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

func (s *Span) Name() string    { return s.name }
func (s *Span) TraceID() string { return s.traceID }

// End stops the clock. Later calls are no-ops.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.elapsed = time.Since(s.start)
}

// Elapsed reports the span's duration, or the time so far if still open.
func (s *Span) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		return time.Since(s.start)
	}
	return s.elapsed
}

// SetAttr records an attribute. Setting the same key twice keeps the last
// value.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attrs {
		if s.attrs[i].Key == key {
			s.attrs[i].Value = slog.AnyValue(value)
			return
		}
	}
	s.attrs = append(s.attrs, slog.Any(key, value))
}

// Stages flattens the tree depth-first. Child paths are joined with "/".
func (s *Span) Stages() []Stage {
	var out []Stage
	s.collect("", &out)
	return out
}

func (s *Span) collect(prefix string, out *[]Stage) {
	path := s.name
	if prefix != "" {
		path = prefix + "/" + s.name
	}
	*out = append(*out, Stage{Path: path, Elapsed: s.Elapsed()})
	s.mu.Lock()
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()
	for _, c := range children {
		c.collect(path, out)
	}
}

// Log writes the whole tree as a single debug record: the root's attributes
// at top level and a "stages" group with per-stage microseconds.
func (s *Span) Log(logger *slog.Logger) {
	stages := s.Stages()
	timings := make([]any, 0, len(stages))
	for _, st := range stages {
		timings = append(timings, slog.Int64(st.Path, st.Elapsed.Microseconds()))
	}

	s.mu.Lock()
	args := make([]any, 0, len(s.attrs)+3)
	args = append(args, slog.String("trace_id", s.traceID), slog.String("span", s.name))
	for _, a := range s.attrs {
		args = append(args, a)
	}
	s.mu.Unlock()
	args = append(args, slog.Group("stages_us", timings...))

	logger.Debug("trace", args...)
}
