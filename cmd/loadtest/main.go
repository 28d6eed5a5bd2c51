// Command loadtest drives a polyd instance with concurrent add, multiply and
// evaluate requests and reports throughput, per-operation latency
// percentiles, cache hit rate and status code counts.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

type runConfig struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	ops         []string
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the polyd service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	ops := flag.String("ops", "add,multiply,evaluate", "comma-separated operations to exercise")
	distinct := flag.Int("distinct", 20, "distinct operand pairs per operation (lower means more cache hits)")
	terms := flag.Int("terms", 50, "terms per generated polynomial")
	maxDegree := flag.Int("max-degree", 200, "highest degree in generated polynomials")
	seed := flag.Int64("seed", 1, "random seed for generated operands")
	flag.Parse()

	cfg := runConfig{
		baseURL:     strings.TrimRight(*baseURL, "/"),
		concurrency: *concurrency,
		duration:    *duration,
		ops:         strings.Split(*ops, ","),
	}
	gen := generator{rng: rand.New(rand.NewSource(*seed)), terms: *terms, maxDegree: *maxDegree}
	payloads, err := gen.payloads(cfg.ops, *distinct)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("polyd load test: %s, %d workers for %s\n", cfg.baseURL, cfg.concurrency, cfg.duration)
	fmt.Printf("%d payloads over %s (%d terms, degree <= %d)\n\n",
		len(payloads), strings.Join(cfg.ops, ","), *terms, *maxDegree)

	res := run(cfg, payloads)
	res.write(os.Stdout, cfg.duration)
	if res.total() == 0 {
		fmt.Fprintln(os.Stderr, "no requests completed; is polyd running?")
		os.Exit(1)
	}
}

func run(cfg runConfig, payloads []payload) *results {
	res := newResults(cfg.ops)
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: cfg.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.concurrency; w++ {
		g.Go(func() error {
			// Workers start at different offsets so they do not move in lockstep.
			for i := w; ctx.Err() == nil; i++ {
				p := payloads[i%len(payloads)]
				start := time.Now()
				status, hit, err := send(ctx, client, cfg.baseURL+"/api/v1/"+p.op, p.body)
				if ctx.Err() != nil {
					return nil
				}
				res.record(p.op, time.Since(start), status, hit, err)
			}
			return nil
		})
	}
	g.Wait()
	return res
}
