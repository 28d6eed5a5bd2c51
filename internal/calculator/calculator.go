// Package calculator resolves operands, runs polynomial operations and
// records their cost. It ties the pure polynomial package to the store,
// the result cache, metrics, tracing and the event stream; each of those is
// optional.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/events"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/polynomial"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// Store is the polynomial repository used to resolve named operands.
type Store interface {
	Save(ctx context.Context, name string, p polynomial.Polynomial) error
	Create(ctx context.Context, name string, p polynomial.Polynomial) error
	Get(ctx context.Context, name string) (polynomial.Polynomial, error)
	List(ctx context.Context, limit, offset int) ([]store.Summary, error)
	Delete(ctx context.Context, name string) error
	Count(ctx context.Context) (int, error)
}

// Config bounds operand size and resolution time.
type Config struct {
	MaxTerms       int
	ResolveTimeout time.Duration
	Tracing        bool
}

// Service runs polynomial operations.
type Service struct {
	cfg     Config
	store   Store
	cache   *cache.Cache
	events  *events.Collector
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Service. store, c, collector and m may all be nil.
func New(cfg Config, st Store, c *cache.Cache, collector *events.Collector, m *metrics.Metrics) *Service {
	return &Service{
		cfg:     cfg,
		store:   st,
		cache:   c,
		events:  collector,
		metrics: m,
		logger:  logger.WithComponent("calculator"),
	}
}

// Add returns a + b.
func (s *Service) Add(ctx context.Context, req BinaryRequest) (Result, error) {
	return s.binary(ctx, "add", req, polynomial.Add)
}

// Multiply returns a · b.
func (s *Service) Multiply(ctx context.Context, req BinaryRequest) (Result, error) {
	return s.binary(ctx, "multiply", req, polynomial.Multiply)
}

func (s *Service) binary(ctx context.Context, op string, req BinaryRequest, fn func(a, b polynomial.Polynomial) polynomial.Polynomial) (Result, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "calculator."+op, logger.RequestID(ctx))
	defer s.finishSpan(ctx, span)

	a, b, err := s.resolvePair(ctx, req.A, req.B)
	if err != nil {
		s.observe(op, start, err)
		return Result{}, err
	}

	_, compute := tracing.StartChildSpan(ctx, "compute")
	res, hit, err := cache.GetOrCompute(ctx, s.cache, cache.Key(op, a.Text(), b.Text()),
		func(ctx context.Context) (Result, error) {
			return newResult(fn(a, b)), nil
		})
	compute.SetAttr("cache_hit", hit)
	compute.End()
	if err != nil {
		s.observe(op, start, err)
		return Result{}, err
	}
	res.CacheHit = hit

	span.SetAttr("result_terms", res.TermCount)
	s.observe(op, start, nil)
	s.emit(ctx, op, start, hit, res.TermCount, res.Degree, a.Len(), b.Len())
	return res, nil
}

// Evaluate returns p(x).
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResult, error) {
	const op = "evaluate"
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "calculator."+op, logger.RequestID(ctx))
	defer s.finishSpan(ctx, span)

	p, err := s.resolveOne(ctx, req.P)
	if err != nil {
		s.observe(op, start, err)
		return EvaluateResult{}, err
	}

	x := strconv.FormatFloat(float64(req.X), 'g', -1, 32)
	res, hit, err := cache.GetOrCompute(ctx, s.cache, cache.Key(op, p.Text(), x),
		func(ctx context.Context) (EvaluateResult, error) {
			return EvaluateResult{
				X:          req.X,
				Value:      Value(p.Evaluate(req.X)),
				Polynomial: p.String(),
			}, nil
		})
	if err != nil {
		s.observe(op, start, err)
		return EvaluateResult{}, err
	}
	res.CacheHit = hit

	s.observe(op, start, nil)
	s.emit(ctx, op, start, hit, 0, -1, p.Len())
	return res, nil
}

// Render returns p in human-readable form.
func (s *Service) Render(ctx context.Context, req RenderRequest) (Result, error) {
	const op = "render"
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "calculator."+op, logger.RequestID(ctx))
	defer s.finishSpan(ctx, span)

	p, err := s.resolveOne(ctx, req.P)
	if err != nil {
		s.observe(op, start, err)
		return Result{}, err
	}
	res := newResult(p)
	res.Name = req.P.Name
	s.observe(op, start, nil)
	s.emit(ctx, op, start, false, res.TermCount, res.Degree, p.Len())
	return res, nil
}

// Save stores a polynomial under name, replacing any previous value.
func (s *Service) Save(ctx context.Context, name string, req SaveRequest) (Result, error) {
	return s.persist(ctx, name, req, true)
}

// Create stores a polynomial under a new name.
func (s *Service) Create(ctx context.Context, name string, req SaveRequest) (Result, error) {
	return s.persist(ctx, name, req, false)
}

func (s *Service) persist(ctx context.Context, name string, req SaveRequest, overwrite bool) (Result, error) {
	if s.store == nil {
		return Result{}, errNoStore
	}
	p, err := s.build(req)
	if err != nil {
		return Result{}, err
	}
	if overwrite {
		err = s.store.Save(ctx, name, p)
	} else {
		err = s.store.Create(ctx, name, p)
	}
	if err != nil {
		return Result{}, err
	}
	s.refreshStoredGauge(ctx)
	logger.FromContext(ctx).Info("polynomial stored", "name", name, "terms", p.Len(), "degree", p.Degree())
	res := newResult(p)
	res.Name = name
	return res, nil
}

// Get loads a stored polynomial.
func (s *Service) Get(ctx context.Context, name string) (Result, error) {
	if s.store == nil {
		return Result{}, errNoStore
	}
	p, err := s.store.Get(ctx, name)
	if err != nil {
		return Result{}, err
	}
	res := newResult(p)
	res.Name = name
	return res, nil
}

// List returns stored polynomial summaries.
func (s *Service) List(ctx context.Context, limit, offset int) ([]store.Summary, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	return s.store.List(ctx, limit, offset)
}

// Delete removes a stored polynomial.
func (s *Service) Delete(ctx context.Context, name string) error {
	if s.store == nil {
		return errNoStore
	}
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	s.refreshStoredGauge(ctx)
	return nil
}

var errNoStore = apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "named polynomials are not available: no store configured")

func (s *Service) build(req SaveRequest) (polynomial.Polynomial, error) {
	var p polynomial.Polynomial
	if req.Text != "" {
		parsed, err := polynomial.Parse(req.Text)
		if err != nil {
			return polynomial.Polynomial{}, err
		}
		p = parsed
	} else {
		for i, t := range req.Terms {
			switch {
			case t.Degree < 0:
				return polynomial.Polynomial{}, fmt.Errorf("%w: term %d: %w", apperrors.ErrInvalidPolynomial, i, polynomial.ErrNegativeDegree)
			case t.Degree > polynomial.MaxDegree:
				return polynomial.Polynomial{}, fmt.Errorf("%w: term %d: %w", apperrors.ErrInvalidPolynomial, i, polynomial.ErrDegreeTooLarge)
			}
		}
		p = polynomial.New(req.Terms...)
	}
	// Stored polynomials stay finite even though computed results may not be.
	for _, t := range p.Terms() {
		if c := float64(t.Coefficient); math.IsNaN(c) || math.IsInf(c, 0) {
			return polynomial.Polynomial{}, fmt.Errorf("%w: degree %d: coefficient is not finite", apperrors.ErrInvalidPolynomial, t.Degree)
		}
	}
	if err := s.checkSize(p); err != nil {
		return polynomial.Polynomial{}, err
	}
	return p, nil
}

func (s *Service) resolveOne(ctx context.Context, op Operand) (polynomial.Polynomial, error) {
	p, err := resilience.Call(ctx, s.cfg.ResolveTimeout, "resolve operand", func(ctx context.Context) (polynomial.Polynomial, error) {
		return s.resolve(ctx, "p", op)
	})
	return p, s.timeoutErr(err)
}

type operandPair struct {
	a, b polynomial.Polynomial
}

// resolvePair resolves both operands concurrently; the first failure cancels
// the other.
func (s *Service) resolvePair(ctx context.Context, opA, opB Operand) (polynomial.Polynomial, polynomial.Polynomial, error) {
	pair, err := resilience.Call(ctx, s.cfg.ResolveTimeout, "resolve operands", func(ctx context.Context) (operandPair, error) {
		_, span := tracing.StartChildSpan(ctx, "resolve")
		defer span.End()
		var pair operandPair
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			pair.a, err = s.resolve(gctx, "a", opA)
			return err
		})
		g.Go(func() error {
			var err error
			pair.b, err = s.resolve(gctx, "b", opB)
			return err
		})
		if err := g.Wait(); err != nil {
			return operandPair{}, err
		}
		return pair, nil
	})
	if err != nil {
		return polynomial.Polynomial{}, polynomial.Polynomial{}, s.timeoutErr(err)
	}
	return pair.a, pair.b, nil
}

func (s *Service) timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Newf(apperrors.ErrTimeout, http.StatusServiceUnavailable, "operands not resolved within %v", s.cfg.ResolveTimeout)
	}
	return err
}

func (s *Service) resolve(ctx context.Context, label string, op Operand) (polynomial.Polynomial, error) {
	var p polynomial.Polynomial
	if op.Name != "" {
		if s.store == nil {
			return p, errNoStore
		}
		loaded, err := s.store.Get(ctx, op.Name)
		if err != nil {
			return p, fmt.Errorf("operand %s (%s): %w", label, op.Name, err)
		}
		p = loaded
	} else {
		parsed, err := polynomial.Parse(op.Text)
		if err != nil {
			return p, fmt.Errorf("operand %s: %w", label, err)
		}
		p = parsed
	}
	if err := s.checkSize(p); err != nil {
		return polynomial.Polynomial{}, fmt.Errorf("operand %s: %w", label, err)
	}
	return p, nil
}

func (s *Service) checkSize(p polynomial.Polynomial) error {
	if s.cfg.MaxTerms > 0 && p.Len() > s.cfg.MaxTerms {
		return apperrors.Newf(apperrors.ErrTooManyTerms, http.StatusRequestEntityTooLarge,
			"%d terms exceeds the limit of %d", p.Len(), s.cfg.MaxTerms)
	}
	return nil
}

func (s *Service) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.OperationsTotal.WithLabelValues(op, status).Inc()
	s.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *Service) emit(ctx context.Context, op string, start time.Time, hit bool, resultTerms, resultDegree int, operandTerms ...int) {
	if s.metrics != nil && op != "evaluate" {
		s.metrics.ResultTerms.WithLabelValues(op).Observe(float64(resultTerms))
	}
	s.events.Track(events.ComputationEvent{
		Type:         events.EventComputation,
		Operation:    op,
		OperandTerms: operandTerms,
		ResultTerms:  resultTerms,
		ResultDegree: resultDegree,
		LatencyMs:    float64(time.Since(start).Microseconds()) / 1000,
		CacheHit:     hit,
		Timestamp:    time.Now().UTC(),
		RequestID:    logger.RequestID(ctx),
	})
}

func (s *Service) finishSpan(ctx context.Context, span *tracing.Span) {
	span.End()
	if s.cfg.Tracing {
		span.Log(logger.FromContext(ctx))
	}
}

func (s *Service) refreshStoredGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Warn("failed to count stored polynomials", "error", err)
		return
	}
	s.metrics.PolynomialsStored.Set(float64(n))
}
