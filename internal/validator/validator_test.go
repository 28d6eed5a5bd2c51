package validator

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/polynomial"
)

func fields(t *testing.T, err error) map[string]string {
	t.Helper()
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Fields
}

func TestName(t *testing.T) {
	v := New(1024)
	valid := []string{"p", "P1", "quad_2", "a-b", "a" + strings.Repeat("x", 63)}
	for _, name := range valid {
		if err := v.Name(name); err != nil {
			t.Errorf("%q: unexpected error %v", name, err)
		}
	}
	invalid := []string{"", "1p", "_p", "p q", "p/q", "a" + strings.Repeat("x", 64)}
	for _, name := range invalid {
		if err := v.Name(name); err == nil {
			t.Errorf("%q: expected error", name)
		}
	}
}

func TestBinary(t *testing.T) {
	v := New(16)
	tests := []struct {
		name string
		req  calculator.BinaryRequest
		want []string
	}{
		{"inline both", calculator.BinaryRequest{A: calculator.Operand{Text: "1 2\n"}, B: calculator.Operand{Text: "3 0\n"}}, nil},
		{"named and zero", calculator.BinaryRequest{A: calculator.Operand{Name: "p"}, B: calculator.Operand{}}, nil},
		{"both set", calculator.BinaryRequest{A: calculator.Operand{Name: "p", Text: "1 0"}, B: calculator.Operand{Name: "q"}}, []string{"a"}},
		{"bad name", calculator.BinaryRequest{A: calculator.Operand{Name: "p"}, B: calculator.Operand{Name: "9q"}}, []string{"b.name"}},
		{"too long", calculator.BinaryRequest{A: calculator.Operand{Text: strings.Repeat("1 0\n", 5)}, B: calculator.Operand{Name: "bad name"}}, []string{"a.text", "b.name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fields(t, v.Binary(&tt.req))
			if len(got) != len(tt.want) {
				t.Fatalf("expected fields %v, got %v", tt.want, got)
			}
			for _, f := range tt.want {
				if _, ok := got[f]; !ok {
					t.Errorf("missing field %q in %v", f, got)
				}
			}
		})
	}
}

func TestEvaluateRejectsNonFiniteX(t *testing.T) {
	v := New(1024)
	for _, x := range []float32{float32(math.Inf(1)), float32(math.Inf(-1)), float32(math.NaN())} {
		got := fields(t, v.Evaluate(&calculator.EvaluateRequest{P: calculator.Operand{Text: "1 0\n"}, X: x}))
		if _, ok := got["x"]; !ok {
			t.Errorf("x=%v: expected x error, got %v", x, got)
		}
	}
	if err := v.Evaluate(&calculator.EvaluateRequest{P: calculator.Operand{Text: "1 0\n"}, X: -2.5}); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestSave(t *testing.T) {
	v := New(1024)
	if err := v.Save("p", &calculator.SaveRequest{Text: "4 5\n"}); err != nil {
		t.Errorf("text upload: %v", err)
	}
	if err := v.Save("p", &calculator.SaveRequest{Terms: []polynomial.Term{{Coefficient: 1, Degree: 2}}}); err != nil {
		t.Errorf("terms upload: %v", err)
	}
	if err := v.Save("p", &calculator.SaveRequest{}); err != nil {
		t.Errorf("zero polynomial upload: %v", err)
	}

	got := fields(t, v.Save("9", &calculator.SaveRequest{
		Terms: []polynomial.Term{{Coefficient: 1, Degree: -1}, {Coefficient: float32(math.Inf(1)), Degree: 0}},
	}))
	for _, f := range []string{"name", "terms[0].degree", "terms[1].coefficient"} {
		if _, ok := got[f]; !ok {
			t.Errorf("missing field %q in %v", f, got)
		}
	}

	got = fields(t, v.Save("p", &calculator.SaveRequest{Text: "1 0", Terms: []polynomial.Term{{Coefficient: 1}}}))
	if _, ok := got["body"]; !ok {
		t.Errorf("expected body error, got %v", got)
	}
}

func TestValidationErrorIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "two", "a": "one"}}
	if err.Error() != "a: one; b: two" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
