// Command polyd runs the polynomial engine service.
//
// It serves the HTTP API and, when enabled, the JSON-over-TCP RPC API. Named
// polynomials live in PostgreSQL, results are cached in Redis and every
// computation is published to Kafka and folded into /api/v1/stats. Each
// backing service is optional: without PostgreSQL only inline operands work,
// without Redis nothing is cached, and without Kafka brokers events are
// aggregated in process.
//
// Usage:
//
//	go run ./cmd/polyd [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/events"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

const snapshotInterval = time.Minute

// Features reported by /health/ready when their backing service is down.
const (
	featureNamed = "named polynomials"
	featureCache = "result cache"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting polynomial engine", "port", cfg.Server.Port, "max_terms", cfg.Engine.MaxTerms)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		metricsServer, err := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer metricsServer.Shutdown(context.Background())
	}

	checker := health.NewChecker()

	// PostgreSQL: named polynomials and stats snapshots.
	var st calculator.Store
	var snapshots *events.SnapshotStore
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, named polynomials disabled", "error", err)
		checker.Add(health.Dependency{Name: "postgres", Feature: featureNamed})
	} else {
		defer db.Close()
		polyStore := store.New(db)
		if err := polyStore.Migrate(ctx); err != nil {
			slog.Error("failed to migrate schema", "error", err)
			os.Exit(1)
		}
		st = polyStore
		snapshots = events.NewSnapshotStore(db)
		checker.Add(health.Dependency{Name: "postgres", Feature: featureNamed, Ping: db.Ping})
		if n, err := polyStore.Count(ctx); err == nil {
			m.PolynomialsStored.Set(float64(n))
		}
		slog.Info("polynomial store ready", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	// Redis: result cache.
	var resultCache *cache.Cache
	redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, result caching disabled", "error", err)
		checker.Add(health.Dependency{Name: "redis", Feature: featureCache})
	} else {
		defer redisClient.Close()
		resultCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		checker.Add(health.Dependency{Name: "redis", Feature: featureCache, Ping: redisClient.Ping})
		slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	// Kafka: computation events, aggregated back into /api/v1/stats.
	aggregator := events.NewAggregator()
	if snapshots != nil {
		if last, err := snapshots.LatestSnapshot(ctx); err != nil {
			slog.Warn("failed to load last stats snapshot", "error", err)
		} else if last != nil {
			aggregator.Restore(*last)
			slog.Info("restored stats snapshot", "total_computations", last.TotalComputations)
		}
	}
	var publisher events.Publisher = events.LocalPublisher{Aggregator: aggregator}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Computations)
		defer producer.Close()
		publisher = producer

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Computations, aggregator.HandleMessage)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("computation consumer error", "error", err)
			}
		}()
		slog.Info("computation events enabled", "topic", cfg.Kafka.Topics.Computations, "brokers", cfg.Kafka.Brokers)
	} else {
		slog.Info("no kafka brokers configured, aggregating events in process")
	}
	collector := events.NewCollector(publisher, events.CollectorConfig{}, m)
	collector.Start(ctx)
	defer collector.Close()
	if snapshots != nil {
		snapshots.StartPeriodicSave(ctx, aggregator, snapshotInterval)
	}

	svc := calculator.New(calculator.Config{
		MaxTerms:       cfg.Engine.MaxTerms,
		ResolveTimeout: cfg.Engine.ResolveTimeout,
		Tracing:        cfg.Tracing.Enabled,
	}, st, resultCache, collector, m)
	h := handler.New(svc, resultCache, cfg.Engine.MaxTextBytes)

	routerCfg := handler.RouterConfig{
		Health:  checker,
		Stats:   events.NewHandler(aggregator, resultCache),
		Metrics: m,
		Timeout: cfg.Server.WriteTimeout,
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(time.Minute)
		defer limiter.Stop()
		routerCfg.Limiter = limiter
		routerCfg.RequestsPerMinute = cfg.RateLimit.RequestsPerMinute
	}
	cors := middleware.DefaultCORSConfig()
	routerCfg.CORS = &cors

	if cfg.RPC.Enabled {
		rpcServer := rpc.NewServer()
		h.RegisterRPC(rpcServer)
		if err := rpcServer.Listen(fmt.Sprintf(":%d", cfg.RPC.Port)); err != nil {
			slog.Error("failed to start rpc server", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := rpcServer.Serve(ctx); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
		defer rpcServer.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.NewRouter(h, routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("polynomial engine listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("polynomial engine stopped")
}
