// SPDX-License-Identifier: MIT

// Package analysis reduces a complex spectrum to a short vector of perceptual
// loudness bins.
package analysis

// SpectrumProcessor turns one cycle's coefficients into bin values. The
// scheduler depends on this interface rather than on Binner so alternative
// reductions can be swapped in.
type SpectrumProcessor interface {
	// Process writes the reduced spectrum into bins and returns it. It is called
	// once per cycle from the scheduler goroutine and must not allocate when
	// bins already has the right length.
	Process(coeffs []complex128, bins []float64) []float64
	// Bins returns the length of the vector Process produces.
	Bins() int
}
