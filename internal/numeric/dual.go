package numeric

import "math"

// Dual is a forward-mode dual number carrying a value and its partial
// derivatives with respect to every entry of a fixed parameter vector
// (Deriv[j] = ∂Val/∂param_j). Seeding one Dual per parameter with a
// one-hot Deriv and propagating them through Evaluate in a single pass
// yields the full Jacobian row for every output, which is what
// internal/fit's autodiff path relies on.
type Dual struct {
	Val   float64
	Deriv []float64
}

// NewDual returns a constant (zero-derivative) dual with n parameter slots.
func NewDual(val float64, n int) Dual {
	if n == 0 {
		return Dual{Val: val}
	}
	return Dual{Val: val, Deriv: make([]float64, n)}
}

// Seed returns a dual representing parameter idx out of n: value val, and a
// one-hot derivative vector with a 1 in slot idx.
func Seed(val float64, n, idx int) Dual {
	d := NewDual(val, n)
	if idx >= 0 && idx < len(d.Deriv) {
		d.Deriv[idx] = 1
	}
	return d
}

func zerosLike(a []float64) []float64 {
	if len(a) == 0 {
		return nil
	}
	return make([]float64, len(a))
}

func combine(a, b []float64, f func(x, y float64) float64) []float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		out[i] = f(x, y)
	}
	return out
}

func scale(a []float64, s float64) []float64 {
	if len(a) == 0 {
		return nil
	}
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = v * s
	}
	return out
}

func (d Dual) Add(o Dual) Dual {
	return Dual{Val: d.Val + o.Val, Deriv: combine(d.Deriv, o.Deriv, func(x, y float64) float64 { return x + y })}
}

func (d Dual) Sub(o Dual) Dual {
	return Dual{Val: d.Val - o.Val, Deriv: combine(d.Deriv, o.Deriv, func(x, y float64) float64 { return x - y })}
}

func (d Dual) Mul(o Dual) Dual {
	return Dual{
		Val:   d.Val * o.Val,
		Deriv: combine(scale(d.Deriv, o.Val), scale(o.Deriv, d.Val), func(x, y float64) float64 { return x + y }),
	}
}

func (d Dual) Div(o Dual) Dual {
	num := combine(scale(d.Deriv, o.Val), scale(o.Deriv, d.Val), func(x, y float64) float64 { return x - y })
	return Dual{Val: d.Val / o.Val, Deriv: scale(num, 1/(o.Val*o.Val))}
}

func (d Dual) Log() Dual {
	return Dual{Val: math.Log(d.Val), Deriv: scale(d.Deriv, 1/d.Val)}
}

func (d Dual) Exp() Dual {
	v := math.Exp(d.Val)
	return Dual{Val: v, Deriv: scale(d.Deriv, v)}
}

func (d Dual) Sin() Dual {
	return Dual{Val: math.Sin(d.Val), Deriv: scale(d.Deriv, math.Cos(d.Val))}
}

func (d Dual) Cos() Dual {
	return Dual{Val: math.Cos(d.Val), Deriv: scale(d.Deriv, -math.Sin(d.Val))}
}

func (d Dual) Tan() Dual {
	c := math.Cos(d.Val)
	return Dual{Val: math.Tan(d.Val), Deriv: scale(d.Deriv, 1/(c*c))}
}

func (d Dual) Sqrt() Dual {
	v := math.Sqrt(d.Val)
	if v == 0 {
		return Dual{Val: v, Deriv: zerosLike(d.Deriv)}
	}
	return Dual{Val: v, Deriv: scale(d.Deriv, 1/(2*v))}
}

func (d Dual) Cbrt() Dual {
	v := Cbrt(d.Val)
	if v == 0 {
		return Dual{Val: v, Deriv: zerosLike(d.Deriv)}
	}
	return Dual{Val: v, Deriv: scale(d.Deriv, 1/(3*v*v))}
}

func (d Dual) Square() Dual {
	return Dual{Val: d.Val * d.Val, Deriv: scale(d.Deriv, 2*d.Val)}
}

func (d Dual) Float() float64 { return d.Val }

func (d Dual) Finite() bool {
	return !math.IsNaN(d.Val) && !math.IsInf(d.Val, 0)
}

func (d Dual) Lift(v float64) Dual {
	return Dual{Val: v, Deriv: zerosLike(d.Deriv)}
}
