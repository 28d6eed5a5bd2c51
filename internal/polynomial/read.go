package polynomial

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrMissingToken   = errors.New("expected coefficient and degree")
	ErrExtraToken     = errors.New("unexpected token after degree")
	ErrBadCoefficient = errors.New("coefficient is not a number")
	ErrBadDegree      = errors.New("degree is not an integer")
	ErrNegativeDegree = errors.New("degree must not be negative")
	ErrDegreeTooLarge = errors.New("degree exceeds the maximum")
)

// MaxDegree is the largest degree accepted from input. The sum of two such
// degrees, as formed by Multiply, still fits in a 32-bit int.
const MaxDegree = 1<<30 - 1

// ParseError reports the first malformed line of polynomial input.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d %q: %s", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Read parses one "<coefficient> <degree>" term per line until EOF. Input is
// conventionally in descending degree order, but any order is accepted and
// normalized. Blank lines are skipped. Degrees must lie in [0, MaxDegree]. An empty input yields the zero
// polynomial.
func Read(r io.Reader) (Polynomial, error) {
	sc := bufio.NewScanner(r)
	var terms []Term
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		t, err := parseTerm(text)
		if err != nil {
			return Polynomial{}, &ParseError{Line: line, Text: text, Err: err}
		}
		terms = append(terms, t)
	}
	if err := sc.Err(); err != nil {
		return Polynomial{}, fmt.Errorf("reading polynomial: %w", err)
	}
	return New(terms...), nil
}

// Parse is Read over a string.
func Parse(s string) (Polynomial, error) {
	return Read(strings.NewReader(s))
}

func parseTerm(text string) (Term, error) {
	fields := strings.Fields(text)
	switch {
	case len(fields) < 2:
		return Term{}, ErrMissingToken
	case len(fields) > 2:
		return Term{}, ErrExtraToken
	}
	// ParseFloat also takes "+Inf", "-Inf" and "NaN", which is how Encode
	// writes coefficients that overflowed.
	c, err := parseCoefficient(fields[0])
	if err != nil {
		return Term{}, ErrBadCoefficient
	}
	d, err := strconv.Atoi(fields[1])
	if err != nil {
		return Term{}, ErrBadDegree
	}
	if err := checkDegree(d); err != nil {
		return Term{}, err
	}
	return Term{Coefficient: c, Degree: d}, nil
}

// Encode writes p in the format accepted by Read, highest degree first.
func (p Polynomial) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i := len(p.terms) - 1; i >= 0; i-- {
		t := p.terms[i]
		if _, err := fmt.Fprintf(bw, "%s %d\n", strconv.FormatFloat(float64(t.Coefficient), 'g', -1, 32), t.Degree); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Text returns the Encode form of p as a string.
func (p Polynomial) Text() string {
	var sb strings.Builder
	_ = p.Encode(&sb)
	return sb.String()
}

func parseCoefficient(s string) (float32, error) {
	c, err := strconv.ParseFloat(s, 32)
	if err != nil {
		// Out-of-range literals come back as ±Inf with ErrRange; only
		// syntax errors are rejected.
		if ne, ok := err.(*strconv.NumError); ok && errors.Is(ne.Err, strconv.ErrRange) {
			return float32(c), nil
		}
		return 0, err
	}
	return float32(c), nil
}

// checkDegree reports whether d may appear in an input polynomial.
func checkDegree(d int) error {
	switch {
	case d < 0:
		return ErrNegativeDegree
	case d > MaxDegree:
		return ErrDegreeTooLarge
	}
	return nil
}
