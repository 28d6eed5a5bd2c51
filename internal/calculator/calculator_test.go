package calculator

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/events"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/polynomial"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/metrics"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

const sample = "4 5\n-2 3\n2 1\n3 0\n"

type memStore struct {
	mu    sync.Mutex
	polys map[string]polynomial.Polynomial
	block chan struct{}
}

func newMemStore() *memStore {
	return &memStore{polys: make(map[string]polynomial.Polynomial)}
}

func (m *memStore) Save(ctx context.Context, name string, p polynomial.Polynomial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polys[name] = p
	return nil
}

func (m *memStore) Create(ctx context.Context, name string, p polynomial.Polynomial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polys[name]; ok {
		return apperrors.ErrPolynomialExists
	}
	m.polys[name] = p
	return nil
}

func (m *memStore) Get(ctx context.Context, name string) (polynomial.Polynomial, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return polynomial.Polynomial{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polys[name]
	if !ok {
		return polynomial.Polynomial{}, apperrors.ErrPolynomialNotFound
	}
	return p, nil
}

func (m *memStore) List(ctx context.Context, limit, offset int) ([]store.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Summary, 0, len(m.polys))
	for name, p := range m.polys {
		out = append(out, store.Summary{Name: name, Terms: p.Len(), Degree: p.Degree()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polys[name]; !ok {
		return apperrors.ErrPolynomialNotFound
	}
	delete(m.polys, name)
	return nil
}

func (m *memStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.polys), nil
}

type memBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func (b *memBackend) Get(ctx context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (b *memBackend) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = string(value.([]byte))
	return nil
}

func (b *memBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return 0, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, evs []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func newService(t *testing.T, st Store) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	return New(Config{MaxTerms: 100, ResolveTimeout: time.Second}, st, nil, nil, m), m
}

func inline(text string) Operand { return Operand{Text: text} }

func TestAdd(t *testing.T) {
	svc, m := newService(t, nil)
	res, err := svc.Add(context.Background(), BinaryRequest{A: inline(sample), B: inline("-4 5\n")})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.Rendered != "-2x^3 + 2x + 3" {
		t.Errorf("unexpected result %q", res.Rendered)
	}
	if res.Degree != 3 || res.TermCount != 3 || res.CacheHit {
		t.Errorf("unexpected result metadata %+v", res)
	}
	if v := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("add", "ok")); v != 1 {
		t.Errorf("expected 1 ok add, got %v", v)
	}
}

func TestMultiplyNamedOperands(t *testing.T) {
	st := newMemStore()
	st.polys["p"] = polynomial.New(polynomial.Term{Coefficient: 1, Degree: 1}, polynomial.Term{Coefficient: 1, Degree: 0})
	st.polys["q"] = polynomial.New(polynomial.Term{Coefficient: 1, Degree: 1}, polynomial.Term{Coefficient: -1, Degree: 0})
	svc, _ := newService(t, st)

	res, err := svc.Multiply(context.Background(), BinaryRequest{A: Operand{Name: "p"}, B: Operand{Name: "q"}})
	if err != nil {
		t.Fatalf("Multiply: %v", err)
	}
	want := []polynomial.Term{{Coefficient: -1, Degree: 0}, {Coefficient: 1, Degree: 2}}
	if diff := cmp.Diff(want, res.Terms.Terms()); diff != "" {
		t.Errorf("terms mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate(t *testing.T) {
	svc, _ := newService(t, nil)
	res, err := svc.Evaluate(context.Background(), EvaluateRequest{P: inline(sample), X: 2})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Value != 119 {
		t.Errorf("expected 119, got %v", res.Value)
	}
	if res.Polynomial != "4x^5 + -2x^3 + 2x + 3" {
		t.Errorf("unexpected rendering %q", res.Polynomial)
	}

	zero, err := svc.Evaluate(context.Background(), EvaluateRequest{P: inline(""), X: 5})
	if err != nil || zero.Value != 0 {
		t.Errorf("zero polynomial: got %v, %v", zero.Value, err)
	}
}

func TestRenderNamed(t *testing.T) {
	st := newMemStore()
	st.polys["quad"] = polynomial.New(polynomial.Term{Coefficient: 5, Degree: 2})
	svc, _ := newService(t, st)
	res, err := svc.Render(context.Background(), RenderRequest{P: Operand{Name: "quad"}})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Rendered != "5x^2" || res.Name != "quad" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestOperandErrors(t *testing.T) {
	svc, m := newService(t, newMemStore())
	noStore, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Add(ctx, BinaryRequest{A: inline(sample), B: inline("1 2\n4 x\n")})
	var parseErr *polynomial.ParseError
	if !errors.As(err, &parseErr) || parseErr.Line != 2 {
		t.Fatalf("expected parse error on line 2, got %v", err)
	}
	if apperrors.HTTPStatusCode(err) != http.StatusBadRequest {
		t.Errorf("expected 400 for parse error")
	}

	_, err = svc.Multiply(ctx, BinaryRequest{A: Operand{Name: "missing"}, B: inline(sample)})
	if !errors.Is(err, apperrors.ErrPolynomialNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	_, err = noStore.Render(ctx, RenderRequest{P: Operand{Name: "p"}})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected invalid input without a store, got %v", err)
	}

	if v := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("add", "error")); v != 1 {
		t.Errorf("expected 1 failed add, got %v", v)
	}
}

func TestMaxTerms(t *testing.T) {
	svc := New(Config{MaxTerms: 2}, nil, nil, nil, nil)
	_, err := svc.Render(context.Background(), RenderRequest{P: inline("1 2\n1 1\n1 0\n")})
	if !errors.Is(err, apperrors.ErrTooManyTerms) {
		t.Fatalf("expected ErrTooManyTerms, got %v", err)
	}
	if apperrors.HTTPStatusCode(err) != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413")
	}
}

func TestResolveTimeout(t *testing.T) {
	st := newMemStore()
	st.block = make(chan struct{})
	defer close(st.block)
	svc := New(Config{ResolveTimeout: 20 * time.Millisecond}, st, nil, nil, nil)

	_, err := svc.Add(context.Background(), BinaryRequest{A: Operand{Name: "slow"}, B: inline("1 0\n")})
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCachedResults(t *testing.T) {
	c := cache.New(&memBackend{data: make(map[string]string)}, time.Minute, nil)
	st := newMemStore()
	st.polys["p"] = polynomial.New(polynomial.Term{Coefficient: 2, Degree: 1})
	svc := New(Config{}, st, c, nil, nil)
	ctx := context.Background()

	first, err := svc.Multiply(ctx, BinaryRequest{A: Operand{Name: "p"}, B: inline("3 2\n")})
	if err != nil || first.CacheHit {
		t.Fatalf("first: %+v %v", first, err)
	}
	// The same polynomial sent inline shares the cache entry.
	second, err := svc.Multiply(ctx, BinaryRequest{A: inline("2 1\n"), B: inline("3 2\n")})
	if err != nil || !second.CacheHit {
		t.Fatalf("second: %+v %v", second, err)
	}
	if !second.Terms.Equal(first.Terms) || second.Rendered != "6x^3" {
		t.Errorf("cached result differs: %+v vs %+v", second, first)
	}

	ev1, _ := svc.Evaluate(ctx, EvaluateRequest{P: inline("2 1\n"), X: 1.5})
	ev2, _ := svc.Evaluate(ctx, EvaluateRequest{P: inline("2 1\n"), X: 1.5})
	if ev1.CacheHit || !ev2.CacheHit || ev2.Value != 3 {
		t.Errorf("unexpected evaluate caching %+v %+v", ev1, ev2)
	}
}

func TestEventsEmitted(t *testing.T) {
	pub := &recordingPublisher{}
	collector := events.NewCollector(pub, events.CollectorConfig{}, nil)
	collector.Start(context.Background())
	svc := New(Config{}, nil, nil, collector, nil)

	ctx := logger.WithRequestID(context.Background(), "req-1")
	if _, err := svc.Multiply(ctx, BinaryRequest{A: inline(sample), B: inline("1 1\n")}); err != nil {
		t.Fatal(err)
	}
	collector.Close()

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0].Value.(events.ComputationEvent)
	if ev.Operation != "multiply" || ev.RequestID != "req-1" || ev.ResultTerms != 4 || ev.ResultDegree != 6 {
		t.Errorf("unexpected event %+v", ev)
	}
	if diff := cmp.Diff([]int{4, 1}, ev.OperandTerms); diff != "" {
		t.Errorf("operand terms (-want +got):\n%s", diff)
	}
}

func TestSaveGetListDelete(t *testing.T) {
	st := newMemStore()
	svc, m := newService(t, st)
	ctx := context.Background()

	if _, err := svc.Save(ctx, "p", SaveRequest{Text: sample}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	res, err := svc.Create(ctx, "q", SaveRequest{Terms: []polynomial.Term{{Coefficient: 1, Degree: 3}, {Coefficient: 2, Degree: 3}}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Rendered != "3x^3" {
		t.Errorf("expected combined terms, got %q", res.Rendered)
	}
	if _, err := svc.Create(ctx, "q", SaveRequest{Text: "1 0\n"}); !errors.Is(err, apperrors.ErrPolynomialExists) {
		t.Errorf("expected ErrPolynomialExists, got %v", err)
	}
	if _, err := svc.Save(ctx, "bad", SaveRequest{Terms: []polynomial.Term{{Coefficient: 1, Degree: -2}}}); !errors.Is(err, polynomial.ErrNegativeDegree) {
		t.Errorf("expected ErrNegativeDegree, got %v", err)
	} else if apperrors.HTTPStatusCode(err) != http.StatusBadRequest {
		t.Errorf("expected 400 for negative degree, got %d", apperrors.HTTPStatusCode(err))
	}
	nan := float32(math.NaN())
	if _, err := svc.Save(ctx, "nan", SaveRequest{Terms: []polynomial.Term{{Coefficient: nan, Degree: 1}}}); !errors.Is(err, apperrors.ErrInvalidPolynomial) {
		t.Errorf("expected ErrInvalidPolynomial for NaN coefficient, got %v", err)
	}
	if _, err := svc.Save(ctx, "inf", SaveRequest{Text: "+Inf 1\n"}); !errors.Is(err, apperrors.ErrInvalidPolynomial) {
		t.Errorf("expected ErrInvalidPolynomial for infinite text coefficient, got %v", err)
	}
	huge := []polynomial.Term{{Coefficient: 1, Degree: polynomial.MaxDegree + 1}}
	if _, err := svc.Save(ctx, "huge", SaveRequest{Terms: huge}); !errors.Is(err, polynomial.ErrDegreeTooLarge) {
		t.Errorf("expected ErrDegreeTooLarge, got %v", err)
	} else if apperrors.HTTPStatusCode(err) != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized degree, got %d", apperrors.HTTPStatusCode(err))
	}
	if v := testutil.ToFloat64(m.PolynomialsStored); v != 2 {
		t.Errorf("expected gauge 2, got %v", v)
	}

	got, err := svc.Get(ctx, "p")
	if err != nil || got.Rendered != "4x^5 + -2x^3 + 2x + 3" {
		t.Errorf("Get: %+v %v", got, err)
	}
	list, err := svc.List(ctx, 10, 0)
	if err != nil || len(list) != 2 || list[0].Name != "p" {
		t.Errorf("List: %+v %v", list, err)
	}
	if err := svc.Delete(ctx, "p"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, "p"); !errors.Is(err, apperrors.ErrPolynomialNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestValueJSON(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{119, "119"},
		{0.5, "0.5"},
		{Value(math.Inf(1)), `"+Inf"`},
		{Value(math.Inf(-1)), `"-Inf"`},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", tt.v, err)
		}
		if string(data) != tt.want {
			t.Errorf("expected %s, got %s", tt.want, data)
		}
		var back Value
		if err := json.Unmarshal(data, &back); err != nil || back != tt.v {
			t.Errorf("round trip of %s: %v %v", data, back, err)
		}
	}
}
