// Package validator checks calculator requests before they reach the service
// and reports every offending field at once.
package validator

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/calculator"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// Validator enforces request size limits.
type Validator struct {
	maxTextBytes int
}

func New(maxTextBytes int) *Validator {
	return &Validator{maxTextBytes: maxTextBytes}
}

// Name checks a polynomial name.
func (v *Validator) Name(name string) error {
	errs := make(map[string]string)
	checkName(errs, "name", name)
	return result(errs)
}

func (v *Validator) Binary(req *calculator.BinaryRequest) error {
	errs := make(map[string]string)
	v.checkOperand(errs, "a", req.A)
	v.checkOperand(errs, "b", req.B)
	return result(errs)
}

func (v *Validator) Evaluate(req *calculator.EvaluateRequest) error {
	errs := make(map[string]string)
	v.checkOperand(errs, "p", req.P)
	if math.IsNaN(float64(req.X)) || math.IsInf(float64(req.X), 0) {
		errs["x"] = "x must be a finite number"
	}
	return result(errs)
}

func (v *Validator) Render(req *calculator.RenderRequest) error {
	errs := make(map[string]string)
	v.checkOperand(errs, "p", req.P)
	return result(errs)
}

// Save checks an upload: a valid name and exactly one of text or terms.
func (v *Validator) Save(name string, req *calculator.SaveRequest) error {
	errs := make(map[string]string)
	checkName(errs, "name", name)
	switch {
	case req.Text != "" && len(req.Terms) > 0:
		errs["body"] = "set either text or terms, not both"
	case req.Text != "":
		v.checkText(errs, "text", req.Text)
	default:
		for i, t := range req.Terms {
			if t.Degree < 0 {
				errs[fmt.Sprintf("terms[%d].degree", i)] = "degree must not be negative"
			}
			c := float64(t.Coefficient)
			if math.IsNaN(c) || math.IsInf(c, 0) {
				errs[fmt.Sprintf("terms[%d].coefficient", i)] = "coefficient must be a finite number"
			}
		}
	}
	return result(errs)
}

func (v *Validator) checkOperand(errs map[string]string, field string, op calculator.Operand) {
	switch {
	case op.Name != "" && op.Text != "":
		errs[field] = "set either name or text, not both"
	case op.Name != "":
		checkName(errs, field+".name", op.Name)
	default:
		// Empty text is the zero polynomial.
		v.checkText(errs, field+".text", op.Text)
	}
}

func (v *Validator) checkText(errs map[string]string, field, text string) {
	if v.maxTextBytes > 0 && len(text) > v.maxTextBytes {
		errs[field] = fmt.Sprintf("text must be at most %d bytes", v.maxTextBytes)
	}
}

func checkName(errs map[string]string, field, name string) {
	if !namePattern.MatchString(name) {
		errs[field] = "name must start with a letter and contain at most 64 letters, digits, '_' or '-'"
	}
}

func result(errs map[string]string) error {
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
