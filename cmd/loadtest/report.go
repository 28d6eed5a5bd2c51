package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"text/tabwriter"
	"time"
)

type opResult struct {
	latencies []time.Duration
	ok        int
	failed    int
	hits      int
}

type results struct {
	mu     sync.Mutex
	ops    []string
	byOp   map[string]*opResult
	status map[int]int
	netErr int
}

func newResults(ops []string) *results {
	r := &results{ops: ops, byOp: make(map[string]*opResult, len(ops)), status: make(map[int]int)}
	for _, op := range ops {
		r.byOp[op] = &opResult{}
	}
	return r
}

func (r *results) record(op string, d time.Duration, status int, hit bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.byOp[op]
	if err != nil {
		r.netErr++
		o.failed++
		return
	}
	r.status[status]++
	o.latencies = append(o.latencies, d)
	if status < 200 || status >= 300 {
		o.failed++
		return
	}
	o.ok++
	if hit {
		o.hits++
	}
}

func (r *results) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.byOp {
		n += o.ok + o.failed
	}
	return n
}

func (r *results) write(w io.Writer, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "op\trequests\terrors\trps\thit%\tp50\tp95\tp99\tmax\t")
	var all []time.Duration
	for _, op := range r.ops {
		o := r.byOp[op]
		n := o.ok + o.failed
		slices.Sort(o.latencies)
		all = append(all, o.latencies...)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%.1f\t%s\t%s\t%s\t%s\t\n",
			op, n, o.failed,
			float64(n)/elapsed.Seconds(),
			ratio(o.hits, o.ok),
			percentile(o.latencies, 50), percentile(o.latencies, 95),
			percentile(o.latencies, 99), percentile(o.latencies, 100),
		)
	}
	tw.Flush()

	slices.Sort(all)
	mean, stddev := meanStddev(all)
	fmt.Fprintf(w, "\noverall: mean %s, stddev %s, p99 %s\n", mean, stddev, percentile(all, 99))
	if r.netErr > 0 {
		fmt.Fprintf(w, "transport errors: %d\n", r.netErr)
	}
	codes := make([]int, 0, len(r.status))
	for c := range r.status {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	for _, c := range codes {
		fmt.Fprintf(w, "  HTTP %d: %d\n", c, r.status[c])
	}
}

func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// percentile uses nearest rank over an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

func meanStddev(ds []time.Duration) (time.Duration, time.Duration) {
	if len(ds) == 0 {
		return 0, 0
	}
	var sum float64
	for _, d := range ds {
		sum += float64(d)
	}
	mean := sum / float64(len(ds))
	var sq float64
	for _, d := range ds {
		sq += (float64(d) - mean) * (float64(d) - mean)
	}
	return time.Duration(mean), time.Duration(math.Sqrt(sq / float64(len(ds))))
}
