package numeric

import (
	"math"
	"testing"
)

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestCbrtNegative(t *testing.T) {
	testCases := []struct {
		name string
		in   float64
		want float64
	}{
		{"positive", 27, 3},
		{"negative", -27, -3},
		{"zero", 0, 0},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			got := Cbrt(test.in)
			if !approxEqual(got, test.want, 1e-9) {
				t.Errorf("Cbrt(%v) = %v, want %v", test.in, got, test.want)
			}
			if math.IsNaN(got) {
				t.Errorf("Cbrt(%v) produced NaN", test.in)
			}
		})
	}
}

func TestSanitizeAllFinite(t *testing.T) {
	vals := []F64{1, 2, 3}
	Sanitize(vals)
	want := []F64{1, 2, 3}
	for i := range vals {
		if vals[i] != want[i] {
			t.Errorf("vals[%d] = %v, want %v", i, vals[i], want[i])
		}
	}
}

func TestSanitizeReplacesNonFinite(t *testing.T) {
	vals := []F64{F64(1), F64(math.Inf(1)), F64(-1), F64(math.NaN())}
	Sanitize(vals)
	for i, v := range vals {
		if !v.Finite() {
			t.Errorf("vals[%d] = %v, still non-finite", i, v)
		}
	}
	// midrange of finite values {1, -1} is 0
	if vals[1] != 0 {
		t.Errorf("vals[1] = %v, want 0", vals[1])
	}
	if vals[3] != 0 {
		t.Errorf("vals[3] = %v, want 0", vals[3])
	}
}

func TestSanitizeAllNonFinite(t *testing.T) {
	vals := []F64{F64(math.NaN()), F64(math.Inf(1)), F64(math.Inf(-1))}
	Sanitize(vals)
	for i, v := range vals {
		if !v.Finite() {
			t.Errorf("vals[%d] still non-finite", i)
		}
		if v != 0 {
			t.Errorf("vals[%d] = %v, want 0", i, v)
		}
	}
}

func TestDualMatchesScalarValue(t *testing.T) {
	testCases := []struct {
		name string
		fn   func(d Dual) Dual
		fnF  func(f float64) float64
		at   float64
	}{
		{"log", Dual.Log, math.Log, 2.5},
		{"exp", Dual.Exp, math.Exp, 0.7},
		{"sin", Dual.Sin, math.Sin, 1.2},
		{"cos", Dual.Cos, math.Cos, 1.2},
		{"sqrt", Dual.Sqrt, math.Sqrt, 9},
		{"cbrt", Dual.Cbrt, Cbrt, -8},
		{"square", Dual.Square, func(f float64) float64 { return f * f }, 3},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			d := Seed(test.at, 1, 0)
			got := test.fn(d)
			want := test.fnF(test.at)
			if !approxEqual(got.Val, want, 1e-9) {
				t.Errorf("%s(%v) = %v, want %v", test.name, test.at, got.Val, want)
			}
		})
	}
}

func TestDualDerivativeMatchesFiniteDifference(t *testing.T) {
	const h = 1e-6
	testCases := []struct {
		name string
		fn   func(d Dual) Dual
		fnF  func(f float64) float64
		at   float64
	}{
		{"log", Dual.Log, math.Log, 2.5},
		{"exp", Dual.Exp, math.Exp, 0.7},
		{"sin", Dual.Sin, math.Sin, 1.2},
		{"square", Dual.Square, func(f float64) float64 { return f * f }, 3},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			d := Seed(test.at, 1, 0)
			got := test.fn(d).Deriv[0]
			fd := (test.fnF(test.at+h) - test.fnF(test.at-h)) / (2 * h)
			if !approxEqual(got, fd, 1e-3) {
				t.Errorf("%s'(%v) = %v, want ~%v", test.name, test.at, got, fd)
			}
		})
	}
}

func TestDualMulProductRule(t *testing.T) {
	a := Seed(3, 2, 0)
	b := Seed(4, 2, 1)
	p := a.Mul(b)
	if p.Val != 12 {
		t.Fatalf("p.Val = %v, want 12", p.Val)
	}
	// d/da (a*b) = b = 4; d/db (a*b) = a = 3
	if !approxEqual(p.Deriv[0], 4, 1e-12) || !approxEqual(p.Deriv[1], 3, 1e-12) {
		t.Errorf("p.Deriv = %v, want [4 3]", p.Deriv)
	}
}
