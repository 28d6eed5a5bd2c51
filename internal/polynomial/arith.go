package polynomial

import "math"

// Add returns a+b. Neither input is modified and the result shares no
// storage with them. Degrees whose coefficients cancel are absent from the
// result.
func Add(a, b Polynomial) Polynomial {
	out := make([]Term, 0, len(a.terms)+len(b.terms))
	i, j := 0, 0
	for i < len(a.terms) && j < len(b.terms) {
		ta, tb := a.terms[i], b.terms[j]
		switch {
		case ta.Degree < tb.Degree:
			out = appendTerm(out, ta)
			i++
		case tb.Degree < ta.Degree:
			out = appendTerm(out, tb)
			j++
		default:
			out = appendTerm(out, Term{Coefficient: ta.Coefficient + tb.Coefficient, Degree: ta.Degree})
			i++
			j++
		}
	}
	for ; i < len(a.terms); i++ {
		out = appendTerm(out, a.terms[i])
	}
	for ; j < len(b.terms); j++ {
		out = appendTerm(out, b.terms[j])
	}
	if len(out) == 0 {
		return Polynomial{}
	}
	return Polynomial{terms: out}
}

// Multiply returns a·b. Each term of b scales a into a partial product which
// is accumulated with Add, so repeated degrees merge and cancelled or
// underflowed coefficients drop out.
func Multiply(a, b Polynomial) Polynomial {
	if a.IsZero() || b.IsZero() {
		return Polynomial{}
	}
	var product Polynomial
	for _, tb := range b.terms {
		product = Add(product, partialProduct(a, tb))
	}
	return product
}

// partialProduct multiplies every term of p by t. Degrees keep p's order.
// With both degrees at most MaxDegree the sum cannot overflow.
func partialProduct(p Polynomial, t Term) Polynomial {
	terms := make([]Term, len(p.terms))
	for i, tp := range p.terms {
		terms[i] = Term{
			Coefficient: tp.Coefficient * t.Coefficient,
			Degree:      tp.Degree + t.Degree,
		}
	}
	return Polynomial{terms: terms}
}

// Evaluate returns p(x). Terms are summed in ascending degree order; each
// step adds in float64 and narrows the running sum to float32.
func (p Polynomial) Evaluate(x float32) float32 {
	var value float32
	for _, t := range p.terms {
		value = float32(float64(value) + float64(t.Coefficient)*math.Pow(float64(x), float64(t.Degree)))
	}
	return value
}
