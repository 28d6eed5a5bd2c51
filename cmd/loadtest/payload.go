package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/polynomial"
)

type payload struct {
	op   string
	body []byte
}

// generator produces random operands with small integer coefficients so
// results stay exactly representable.
type generator struct {
	rng       *rand.Rand
	terms     int
	maxDegree int
}

func (g generator) polynomial() polynomial.Polynomial {
	ts := make([]polynomial.Term, g.terms)
	for i := range ts {
		ts[i] = polynomial.Term{
			Coefficient: float32(g.rng.Intn(199) - 99),
			Degree:      g.rng.Intn(g.maxDegree + 1),
		}
	}
	return polynomial.New(ts...)
}

// payloads builds distinct request bodies per operation. Every operation
// shares the same operand pairs.
func (g generator) payloads(ops []string, distinct int) ([]payload, error) {
	if distinct <= 0 {
		return nil, fmt.Errorf("distinct must be positive, got %d", distinct)
	}
	for _, op := range ops {
		if op != "add" && op != "multiply" && op != "evaluate" {
			return nil, fmt.Errorf("unknown operation %q", op)
		}
	}
	out := make([]payload, 0, distinct*len(ops))
	for i := 0; i < distinct; i++ {
		a := calculator.Operand{Text: g.polynomial().Text()}
		b := calculator.Operand{Text: g.polynomial().Text()}
		for _, op := range ops {
			var req any = calculator.BinaryRequest{A: a, B: b}
			if op == "evaluate" {
				req = calculator.EvaluateRequest{P: a, X: float32(g.rng.Intn(5)) / 4}
			}
			body, err := json.Marshal(req)
			if err != nil {
				return nil, err
			}
			out = append(out, payload{op: op, body: body})
		}
	}
	return out, nil
}

// send posts one request and reports whether the server answered from cache.
func send(ctx context.Context, client *http.Client, url string, body []byte) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var out struct {
		CacheHit bool `json:"cache_hit"`
	}
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, out.CacheHit, nil
}
