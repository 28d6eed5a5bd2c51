package calculator

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/polynomial"
)

// Operand names a stored polynomial or carries one inline in the line
// format. Exactly one of Name and Text is set.
type Operand struct {
	Name string `json:"name,omitempty"`
	Text string `json:"text,omitempty"`
}

// BinaryRequest is the body of add and multiply.
type BinaryRequest struct {
	A Operand `json:"a"`
	B Operand `json:"b"`
}

// EvaluateRequest is the body of evaluate.
type EvaluateRequest struct {
	P Operand `json:"p"`
	X float32 `json:"x"`
}

// RenderRequest is the body of render.
type RenderRequest struct {
	P Operand `json:"p"`
}

// SaveRequest is the body of a polynomial upload: either line-format text or
// an explicit term list.
type SaveRequest struct {
	Text  string            `json:"text,omitempty"`
	Terms []polynomial.Term `json:"terms,omitempty"`
}

// Result describes a polynomial produced or loaded by the service.
type Result struct {
	Name      string                `json:"name,omitempty"`
	Rendered  string                `json:"polynomial"`
	Terms     polynomial.Polynomial `json:"terms"`
	Degree    int                   `json:"degree"`
	TermCount int                   `json:"term_count"`
	CacheHit  bool                  `json:"cache_hit"`
}

func newResult(p polynomial.Polynomial) Result {
	return Result{
		Rendered:  p.String(),
		Terms:     p,
		Degree:    p.Degree(),
		TermCount: p.Len(),
	}
}

// EvaluateResult is the value of a polynomial at X.
type EvaluateResult struct {
	X          float32 `json:"x"`
	Value      Value   `json:"value"`
	Polynomial string  `json:"polynomial"`
	CacheHit   bool    `json:"cache_hit"`
}

// Value is a float32 whose JSON form spells out infinities and NaN as
// strings, since overflow during evaluation is a legitimate result.
type Value float32

func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 32), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return err
		}
		*v = Value(f)
		return nil
	}
	var f float32
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Value(f)
	return nil
}
