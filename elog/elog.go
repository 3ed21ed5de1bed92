// Package elog implements logarithm arithmetic that is extended to
// represent log(0).  Probabilities along a long sequence underflow
// quickly, so the HMM code keeps every probability on the log scale
// and combines them only through Sum and Product.
//
// The approach follows T. Mann, "Numerically Stable Hidden Markov
// Model Implementation".  Instead of using NaN to mark log(0), a Value
// carries an explicit flag, so an undefined log can never leak into
// ordinary floating point arithmetic.
package elog

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ErrDomain is matched (with errors.Is) by the error returned from Log
// when it is given a negative number.
var ErrDomain = errors.New("elog: negative input")

// DomainError reports a negative argument to Log.  This is a contract
// violation by the caller and is not recoverable.
type DomainError struct {
	X float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("elog: log of negative number %g", e.X)
}

// Is makes errors.Is(err, ErrDomain) succeed.
func (e *DomainError) Is(target error) bool {
	return target == ErrDomain
}

// Value is the natural logarithm of a non-negative number.  The zero
// Value is log(0).
type Value struct {
	v   float64
	def bool
}

var (
	// Zero is log(0), the undefined value.
	Zero = Value{}

	// One is log(1).
	One = Value{def: true}
)

// Of returns the Value holding the finite logarithm lx.  Infinite
// arguments are mapped so that -Inf becomes Zero.
func Of(lx float64) Value {
	if math.IsInf(lx, -1) {
		return Zero
	}
	if math.IsNaN(lx) {
		panic("elog: NaN log value")
	}
	return Value{v: lx, def: true}
}

// Log returns the extended logarithm of x.  Log(0) is Zero, and a
// negative x gives a *DomainError.
func Log(x float64) (Value, error) {

	switch {
	case x == 0:
		return Zero, nil
	case x > 0:
		return Value{v: math.Log(x), def: true}, nil
	default:
		return Zero, &DomainError{X: x}
	}
}

// MustLog is like Log but panics on a negative argument.  It is meant
// for constants that are known to be valid.
func MustLog(x float64) Value {
	v, err := Log(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Defined returns false if v is log(0).
func (v Value) Defined() bool {
	return v.def
}

// Float returns the underlying logarithm.  The second return value is
// false for Zero, in which case the first is -Inf.
func (v Value) Float() (float64, bool) {
	if !v.def {
		return math.Inf(-1), false
	}
	return v.v, true
}

// Exp returns e^v, which is 0 for Zero.
func (v Value) Exp() float64 {
	if !v.def {
		return 0
	}
	return math.Exp(v.v)
}

// Log2 returns the value converted to base 2, -Inf for Zero.
func (v Value) Log2() float64 {
	if !v.def {
		return math.Inf(-1)
	}
	return v.v / math.Ln2
}

// Neg returns -v, the log of the reciprocal.  Zero stays Zero, so
// that dividing by an empty total produces a zero probability.
func (v Value) Neg() Value {
	if !v.def {
		return Zero
	}
	return Value{v: -v.v, def: true}
}

// Less orders values by the number they represent.  Zero is below
// every defined value.
func (v Value) Less(w Value) bool {

	switch {
	case !w.def:
		return false
	case !v.def:
		return true
	default:
		return v.v < w.v
	}
}

// Equal reports whether v and w represent the same number.
func (v Value) Equal(w Value) bool {
	return v.def == w.def && (!v.def || v.v == w.v)
}

func (v Value) String() string {
	if !v.def {
		return "LOGZERO"
	}
	return fmt.Sprintf("%g", v.v)
}

// Sum returns log(e^x + e^y).
func Sum(x, y Value) Value {

	if !x.def {
		return y
	}
	if !y.def {
		return x
	}

	// Shift by the maximum so that the exponential cannot overflow.
	if x.v > y.v {
		return Value{v: x.v + math.Log1p(math.Exp(y.v-x.v)), def: true}
	}
	return Value{v: y.v + math.Log1p(math.Exp(x.v-y.v)), def: true}
}

// SumAll folds Sum over vs.  The empty sum is Zero.
func SumAll(vs ...Value) Value {
	s := Zero
	for _, v := range vs {
		s = Sum(s, v)
	}
	return s
}

// Product returns log(e^x * e^y).
func Product(x, y Value) Value {
	if !x.def || !y.def {
		return Zero
	}
	return Value{v: x.v + y.v, def: true}
}

// Quotient returns log(e^x / e^y), using Neg for the denominator.
func Quotient(x, y Value) Value {
	return Product(x, y.Neg())
}
