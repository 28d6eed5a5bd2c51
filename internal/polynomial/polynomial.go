// Package polynomial implements sparse single-variable polynomials with
// float32 coefficients. A Polynomial is an ordered list of terms sorted by
// ascending degree with no repeated degrees and no zero coefficients. Values
// are immutable once constructed and safe to share between goroutines.
package polynomial

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Term is a single monomial Coefficient·x^Degree.
type Term struct {
	Coefficient float32 `json:"coefficient"`
	Degree      int     `json:"degree"`
}

// String renders the monomial: "c" for degree 0, "cx" for degree 1 and
// "cx^d" otherwise.
func (t Term) String() string {
	c := strconv.FormatFloat(float64(t.Coefficient), 'g', -1, 32)
	switch t.Degree {
	case 0:
		return c
	case 1:
		return c + "x"
	default:
		return c + "x^" + strconv.Itoa(t.Degree)
	}
}

// Polynomial is a sparse polynomial. The zero value is the zero polynomial.
type Polynomial struct {
	terms []Term
}

// New builds a Polynomial from terms in any order. Terms sharing a degree are
// combined and zero coefficients are dropped. New panics on a negative degree;
// use Read or Parse for untrusted input.
func New(terms ...Term) Polynomial {
	if len(terms) == 0 {
		return Polynomial{}
	}
	sorted := make([]Term, len(terms))
	copy(sorted, terms)
	for _, t := range sorted {
		if t.Degree < 0 {
			panic(fmt.Sprintf("polynomial: negative degree %d", t.Degree))
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Degree < sorted[j].Degree
	})
	return Polynomial{terms: combine(sorted)}
}

// combine folds adjacent equal degrees of an ascending slice and elides zero
// sums.
func combine(sorted []Term) []Term {
	out := make([]Term, 0, len(sorted))
	for i := 0; i < len(sorted); {
		t := sorted[i]
		j := i + 1
		for ; j < len(sorted) && sorted[j].Degree == t.Degree; j++ {
			t.Coefficient += sorted[j].Coefficient
		}
		out = appendTerm(out, t)
		i = j
	}
	return out
}

// appendTerm appends t unless its coefficient is zero.
func appendTerm(dst []Term, t Term) []Term {
	if t.Coefficient == 0 {
		return dst
	}
	return append(dst, t)
}

// Terms returns a copy of the terms in ascending degree order.
func (p Polynomial) Terms() []Term {
	out := make([]Term, len(p.terms))
	copy(out, p.terms)
	return out
}

// Len returns the number of non-zero terms.
func (p Polynomial) Len() int { return len(p.terms) }

// IsZero reports whether p is the zero polynomial.
func (p Polynomial) IsZero() bool { return len(p.terms) == 0 }

// Degree returns the highest degree in p, or -1 for the zero polynomial.
func (p Polynomial) Degree() int {
	if len(p.terms) == 0 {
		return -1
	}
	return p.terms[len(p.terms)-1].Degree
}

// Coefficient returns the coefficient of x^degree, which is 0 when p has no
// such term.
func (p Polynomial) Coefficient(degree int) float32 {
	i := sort.Search(len(p.terms), func(i int) bool {
		return p.terms[i].Degree >= degree
	})
	if i < len(p.terms) && p.terms[i].Degree == degree {
		return p.terms[i].Coefficient
	}
	return 0
}

// Equal reports whether p and q have identical terms.
func (p Polynomial) Equal(q Polynomial) bool {
	if len(p.terms) != len(q.terms) {
		return false
	}
	for i := range p.terms {
		if p.terms[i] != q.terms[i] {
			return false
		}
	}
	return true
}

// String renders p from highest to lowest degree joined by " + ". The zero
// polynomial renders as "0".
func (p Polynomial) String() string {
	if len(p.terms) == 0 {
		return "0"
	}
	parts := make([]string, 0, len(p.terms))
	for i := len(p.terms) - 1; i >= 0; i-- {
		parts = append(parts, p.terms[i].String())
	}
	return strings.Join(parts, " + ")
}

// MarshalJSON encodes p as an array of terms in ascending degree order.
func (p Polynomial) MarshalJSON() ([]byte, error) {
	if p.terms == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.terms)
}

// UnmarshalJSON decodes an array of terms, normalizing order, duplicates and
// zero coefficients. Degrees outside [0, MaxDegree] are rejected.
func (p *Polynomial) UnmarshalJSON(data []byte) error {
	var terms []Term
	if err := json.Unmarshal(data, &terms); err != nil {
		return fmt.Errorf("decoding polynomial terms: %w", err)
	}
	for i, t := range terms {
		if err := checkDegree(t.Degree); err != nil {
			return fmt.Errorf("term %d: %w", i, err)
		}
	}
	*p = New(terms...)
	return nil
}

// termJSON is the wire shape of a Term. Coefficient is a JSON number, or
// one of the strings "+Inf", "-Inf" and "NaN" when arithmetic overflowed.
type termJSON struct {
	Coefficient json.RawMessage `json:"coefficient"`
	Degree      int             `json:"degree"`
}

func (t Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(termJSON{Coefficient: formatCoefficientJSON(t.Coefficient), Degree: t.Degree})
}

func (t *Term) UnmarshalJSON(data []byte) error {
	var raw termJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c, err := parseCoefficientJSON(raw.Coefficient)
	if err != nil {
		return fmt.Errorf("coefficient %s: %w", raw.Coefficient, err)
	}
	*t = Term{Coefficient: c, Degree: raw.Degree}
	return nil
}

func formatCoefficientJSON(c float32) json.RawMessage {
	f := float64(c)
	switch {
	case math.IsInf(f, 1):
		return json.RawMessage(`"+Inf"`)
	case math.IsInf(f, -1):
		return json.RawMessage(`"-Inf"`)
	case math.IsNaN(f):
		return json.RawMessage(`"NaN"`)
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 32)
}

func parseCoefficientJSON(raw json.RawMessage) (float32, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "+Inf", "-Inf", "NaN":
			return parseCoefficient(s)
		}
		return 0, ErrBadCoefficient
	}
	var c float32
	if err := json.Unmarshal(raw, &c); err != nil {
		return 0, ErrBadCoefficient
	}
	return c, nil
}
