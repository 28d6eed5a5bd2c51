// Package store persists named polynomials in PostgreSQL. Bodies are stored
// in the line format understood by polynomial.Read, alongside the term count
// and degree so listings never need to parse them.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/polynomial"
	apperrors "github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/resilience"
	"github.com/lib/pq"
)

//go:embed migrations/001_create_polynomials.sql
var schema string

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// Summary describes a stored polynomial without its body.
type Summary struct {
	Name      string    `json:"name"`
	Terms     int       `json:"terms"`
	Degree    int       `json:"degree"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the PostgreSQL-backed polynomial repository.
type Store struct {
	db     *postgres.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// New creates a Store on an open connection pool.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, AttemptTimeout: 5 * time.Second},
		logger: slog.Default().With("component", "polynomial-store"),
	}
}

// Migrate creates the tables the store and the snapshot writer need.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.Migrate(ctx, schema); err != nil {
		return fmt.Errorf("migrating polynomial schema: %w", err)
	}
	return nil
}

// Save inserts or replaces the polynomial stored under name.
func (s *Store) Save(ctx context.Context, name string, p polynomial.Polynomial) error {
	err := resilience.Retry(ctx, "store-save", s.retry, func(ctx context.Context) error {
		_, err := s.db.DB.ExecContext(ctx,
			`INSERT INTO polynomials (name, body, term_count, degree)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (name) DO UPDATE
			 SET body = EXCLUDED.body, term_count = EXCLUDED.term_count,
			     degree = EXCLUDED.degree, updated_at = NOW()`,
			name, p.Text(), p.Len(), p.Degree(),
		)
		return classify(err)
	})
	if err != nil {
		return fmt.Errorf("saving polynomial %q: %w", name, err)
	}
	s.logger.Debug("polynomial saved", "name", name, "terms", p.Len())
	return nil
}

// Create stores p under name, failing with ErrPolynomialExists if the name is
// taken.
func (s *Store) Create(ctx context.Context, name string, p polynomial.Polynomial) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO polynomials (name, body, term_count, degree) VALUES ($1, $2, $3, $4)`,
		name, p.Text(), p.Len(), p.Degree(),
	)
	if isUniqueViolation(err) {
		return apperrors.ErrPolynomialExists
	}
	if err != nil {
		return fmt.Errorf("creating polynomial %q: %w", name, err)
	}
	s.logger.Info("polynomial created", "name", name, "terms", p.Len())
	return nil
}

// Get loads the polynomial stored under name.
func (s *Store) Get(ctx context.Context, name string) (polynomial.Polynomial, error) {
	var body string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT body FROM polynomials WHERE name = $1`, name,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return polynomial.Polynomial{}, apperrors.ErrPolynomialNotFound
	}
	if err != nil {
		return polynomial.Polynomial{}, fmt.Errorf("loading polynomial %q: %w", name, err)
	}
	p, err := polynomial.Parse(body)
	if err != nil {
		return polynomial.Polynomial{}, fmt.Errorf("decoding stored polynomial %q: %w", name, err)
	}
	return p, nil
}

// List returns summaries ordered by name.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Summary, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT name, term_count, degree, created_at, updated_at
		 FROM polynomials ORDER BY name LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing polynomials: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0, limit)
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Name, &sum.Terms, &sum.Degree, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning polynomial row: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Delete removes the polynomial stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	result, err := s.db.DB.ExecContext(ctx, `DELETE FROM polynomials WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting polynomial %q: %w", name, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.ErrPolynomialNotFound
	}
	s.logger.Info("polynomial deleted", "name", name)
	return nil
}

// Count returns the number of stored polynomials.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM polynomials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting polynomials: %w", err)
	}
	return n, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// classify marks errors that retrying cannot fix.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Permanent(err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() != "08" && pqErr.Code.Class() != "40" {
		// Only connection exceptions and transaction rollbacks are transient.
		return resilience.Permanent(err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
