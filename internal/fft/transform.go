// SPDX-License-Identifier: MIT

// Package fft turns one analysis window of interleaved samples into its
// complex spectrum.
package fft

import (
	"fmt"

	"spectrum/internal/errs"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Transform is a pre-planned complex DFT over a fixed number of samples. The
// plan, the window coefficients and both work buffers are allocated once in
// NewTransform; Coefficients is allocation free.
//
// A Transform is not safe for concurrent use. The scheduler owns it.
type Transform struct {
	size   int
	plan   *fourier.CmplxFFT
	window WindowFunc
	coeffs []float64 // nil for Rectangular

	input  []complex128
	output []complex128
}

// NewTransform plans a transform of size samples, where size is
// channels x frames_per_window. Any positive size is accepted.
func NewTransform(size int, w WindowFunc) (*Transform, error) {
	if size <= 0 {
		return nil, fmt.Errorf("fft: transform size must be positive, got %d: %w", size, errs.ErrConfigInvalid)
	}
	t := &Transform{
		size:   size,
		plan:   fourier.NewCmplxFFT(size),
		window: w,
		input:  make([]complex128, size),
		output: make([]complex128, size),
	}
	if w != Rectangular {
		coeffs, err := windowCoefficients(size, w)
		if err != nil {
			return nil, err
		}
		t.coeffs = coeffs
	}
	return t, nil
}

// Size returns the number of samples (and coefficients) per transform.
func (t *Transform) Size() int { return t.size }

// Window returns the analysis window applied before transforming.
func (t *Transform) Window() WindowFunc { return t.window }

// Coefficients computes X[k] = sum_n x[n]*e^(-2*pi*i*k*n/W) for every k in
// [0, W). Samples beyond len(samples) are treated as silence and extra samples
// are ignored. Non-finite inputs propagate into the output.
//
// The returned slice is owned by the Transform and is overwritten by the next
// call.
func (t *Transform) Coefficients(samples []float64) []complex128 {
	n := min(len(samples), t.size)
	if t.coeffs == nil {
		for i, s := range samples[:n] {
			t.input[i] = complex(s, 0)
		}
	} else {
		for i, s := range samples[:n] {
			t.input[i] = complex(s*t.coeffs[i], 0)
		}
	}
	for i := n; i < t.size; i++ {
		t.input[i] = 0
	}
	return t.plan.Coefficients(t.output, t.input)
}
