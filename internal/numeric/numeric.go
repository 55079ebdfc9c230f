// Package numeric provides the scalar arithmetic capability set that the
// batched interpreter is parameterized over, plus the non-finite
// sanitization pass applied to evaluation output.
package numeric

import "math"

// Scalar is the arithmetic capability set the batched interpreter needs:
// the four binary arithmetic operators, the elementary transcendentals used
// by unary nodes, and a way to test finiteness and to lift a plain float
// back into the same representation. float64 (via F64) and Dual both
// satisfy it, so the interpreter can be written once and instantiated for
// either plain evaluation or forward-mode automatic differentiation.
type Scalar[T any] interface {
	Add(T) T
	Sub(T) T
	Mul(T) T
	Div(T) T
	Log() T
	Exp() T
	Sin() T
	Cos() T
	Tan() T
	Sqrt() T
	Cbrt() T
	Square() T

	// Float returns the underlying value, ignoring any carried derivative.
	Float() float64
	// Finite reports whether the underlying value is neither NaN nor ±Inf.
	Finite() bool
	// Lift returns a scalar of the same shape as the receiver (same
	// Jacobian width for Dual, nothing to preserve for F64) carrying v as
	// its value and no derivative information. Used to replace sanitized
	// entries with a neutral constant.
	Lift(v float64) T
}

// F64 is the plain-evaluation scalar: a defined float64 type implementing
// Scalar so the same Evaluate body serves both evaluation modes.
type F64 float64

func (f F64) Add(o F64) F64 { return f + o }
func (f F64) Sub(o F64) F64 { return f - o }
func (f F64) Mul(o F64) F64 { return f * o }
func (f F64) Div(o F64) F64 { return f / o }

func (f F64) Log() F64    { return F64(math.Log(float64(f))) }
func (f F64) Exp() F64    { return F64(math.Exp(float64(f))) }
func (f F64) Sin() F64    { return F64(math.Sin(float64(f))) }
func (f F64) Cos() F64    { return F64(math.Cos(float64(f))) }
func (f F64) Tan() F64    { return F64(math.Tan(float64(f))) }
func (f F64) Sqrt() F64   { return F64(math.Sqrt(float64(f))) }
func (f F64) Cbrt() F64   { return F64(Cbrt(float64(f))) }
func (f F64) Square() F64 { return f * f }

func (f F64) Float() float64     { return float64(f) }
func (f F64) Finite() bool       { return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0) }
func (f F64) Lift(v float64) F64 { return F64(v) }

// Cbrt is the signed cube root primitive required by spec: unlike
// math.Pow(x, 1.0/3.0), it must return a real value for negative x.
// math.Cbrt already does this (it is not implemented in terms of Pow), so
// this is a thin named wrapper giving the primitive its own identity at the
// call sites that need it (and a place to hang the derivative convention
// used by Dual.Cbrt alongside it).
func Cbrt(x float64) float64 {
	return math.Cbrt(x)
}

// Sanitize applies the min-max midpoint replacement described in spec.md
// §4.1 in place: any non-finite entry is replaced by the midpoint of the
// finite entries' range, and all finite entries are clamped to that range
// (a no-op in practice, since the range is derived from them, but kept
// explicit to match the contract literally). If no entry is finite, every
// entry becomes (MaxFloat64 + -MaxFloat64) / 2, which is exactly 0 and
// involves no overflow.
func Sanitize[T Scalar[T]](vals []T) {
	haveFinite := false
	var lo, hi float64
	for _, v := range vals {
		if !v.Finite() {
			continue
		}
		f := v.Float()
		if !haveFinite {
			lo, hi = f, f
			haveFinite = true
			continue
		}
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	if !haveFinite {
		mid := (math.MaxFloat64 + -math.MaxFloat64) / 2
		for i := range vals {
			vals[i] = vals[i].Lift(mid)
		}
		return
	}
	mid := (lo + hi) / 2
	for i, v := range vals {
		if !v.Finite() {
			vals[i] = v.Lift(mid)
			continue
		}
		f := v.Float()
		clamped := f
		if clamped < lo {
			clamped = lo
		}
		if clamped > hi {
			clamped = hi
		}
		if clamped != f {
			vals[i] = v.Lift(clamped)
		}
	}
}
