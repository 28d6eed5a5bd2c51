// Package benchmark contains Go benchmarks for the polynomial core, the
// cached calculator path and the RPC transport, measuring throughput and
// allocation behaviour.
package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/polynomial"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/rpc"
	"github.com/redis/go-redis/v9"
)

func randomPolynomial(rng *rand.Rand, terms, maxDegree int) polynomial.Polynomial {
	ts := make([]polynomial.Term, terms)
	for i := range ts {
		ts[i] = polynomial.Term{
			Coefficient: float32(rng.Intn(199) - 99),
			Degree:      rng.Intn(maxDegree + 1),
		}
	}
	return polynomial.New(ts...)
}

var sizes = []int{10, 100, 1000}

// BenchmarkAdd measures the linear merge across operand sizes.
func BenchmarkAdd(b *testing.B) {
	for _, n := range sizes {
		rng := rand.New(rand.NewSource(1))
		p := randomPolynomial(rng, n, n*4)
		q := randomPolynomial(rng, n, n*4)
		b.Run(fmt.Sprintf("terms=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = polynomial.Add(p, q)
			}
		})
	}
}

// BenchmarkMultiply measures the term-by-term product across operand sizes.
func BenchmarkMultiply(b *testing.B) {
	for _, n := range sizes[:2] {
		rng := rand.New(rand.NewSource(2))
		p := randomPolynomial(rng, n, n*4)
		q := randomPolynomial(rng, n, n*4)
		b.Run(fmt.Sprintf("terms=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = polynomial.Multiply(p, q)
			}
		})
	}
}

// BenchmarkEvaluate measures evaluation of a 1000-term polynomial.
func BenchmarkEvaluate(b *testing.B) {
	p := randomPolynomial(rand.New(rand.NewSource(3)), 1000, 4000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Evaluate(0.999)
	}
}

// BenchmarkParse measures reading the line format.
func BenchmarkParse(b *testing.B) {
	text := randomPolynomial(rand.New(rand.NewSource(4)), 1000, 4000).Text()
	b.SetBytes(int64(len(text)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := polynomial.Parse(text); err != nil {
			b.Fatal(err)
		}
	}
}

type mapBackend struct {
	mu   sync.RWMutex
	data map[string]string
}

func (m *mapBackend) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *mapBackend) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *mapBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func multiplyRequest(terms int) calculator.BinaryRequest {
	rng := rand.New(rand.NewSource(5))
	return calculator.BinaryRequest{
		A: calculator.Operand{Text: randomPolynomial(rng, terms, terms*4).Text()},
		B: calculator.Operand{Text: randomPolynomial(rng, terms, terms*4).Text()},
	}
}

// BenchmarkCalculatorMultiply compares a cold computation with a cached one.
func BenchmarkCalculatorMultiply(b *testing.B) {
	req := multiplyRequest(100)
	ctx := context.Background()

	b.Run("uncached", func(b *testing.B) {
		svc := calculator.New(calculator.Config{MaxTerms: 1 << 20}, nil, nil, nil, nil)
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := svc.Multiply(ctx, req); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("cached", func(b *testing.B) {
		c := cache.New(&mapBackend{data: make(map[string]string)}, time.Minute, nil)
		svc := calculator.New(calculator.Config{MaxTerms: 1 << 20}, nil, c, nil, nil)
		if _, err := svc.Multiply(ctx, req); err != nil {
			b.Fatal(err)
		}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := svc.Multiply(ctx, req); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkRPCMultiply measures a multiply round trip over the RPC transport.
func BenchmarkRPCMultiply(b *testing.B) {
	svc := calculator.New(calculator.Config{MaxTerms: 1 << 20}, nil, nil, nil, nil)
	srv := rpc.NewServer()
	handler.New(svc, nil, 1<<20).RegisterRPC(srv)
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		b.Fatal(err)
	}
	go srv.Serve(context.Background())
	defer srv.Stop()

	client, err := rpc.Dial(srv.Addr().String(), 5*time.Second)
	if err != nil {
		b.Fatal(err)
	}
	defer client.Close()

	req := multiplyRequest(20)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var res calculator.Result
		if err := client.Call(handler.MethodMultiply, req, &res); err != nil {
			b.Fatal(err)
		}
	}
}
