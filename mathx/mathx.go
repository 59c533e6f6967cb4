// Package mathx provides rounding helpers for instrument readings
package mathx

import "math"

// RoundSig rounds x to n significant digits.  Zero, NaN, and Inf are returned
// unchanged, as is x when n < 1.
func RoundSig(x float64, n int) float64 {
	if x == 0 || n < 1 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	mag := int(math.Floor(math.Log10(math.Abs(x))))
	exp := n - 1 - mag
	// scale by an exact power of ten in whichever direction keeps it >= 1,
	// dividing by 1e-k would reintroduce the error of the inexact 1e-k
	if exp >= 0 {
		s := math.Pow(10, float64(exp))
		return math.Round(x*s) / s
	}
	s := math.Pow(10, float64(-exp))
	return math.Round(x/s) * s
}
