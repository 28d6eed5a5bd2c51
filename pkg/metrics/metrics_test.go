package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OperationsTotal.WithLabelValues("add", "ok").Inc()
	m.OperationsTotal.WithLabelValues("add", "ok").Inc()
	m.CacheHitsTotal.Inc()

	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("add", "ok")); got != 2 {
		t.Errorf("expected 2 add operations, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheHitsTotal); got != 1 {
		t.Errorf("expected 1 cache hit, got %v", got)
	}

	count, err := testutil.GatherAndCount(reg, "polynomial_operations_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 series, got %d", count)
	}
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

func TestServerExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.OperationsTotal.WithLabelValues("multiply", "ok").Inc()

	srv, err := StartServer(0, reg)
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	_, port, _ := net.SplitHostPort(srv.Addr().String())
	resp, err := http.Get("http://127.0.0.1:" + port + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `polynomial_operations_total{operation="multiply",status="ok"} 1`) {
		t.Errorf("scrape is missing the multiply counter:\n%s", body)
	}
}
