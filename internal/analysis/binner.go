// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	"spectrum/internal/errs"
)

// Defaults for BinnerOptions.
const (
	DefaultSmoothing   = 0.8
	DefaultNoiseOffset = 50.0
)

// BinnerOptions configures a Binner. The zero value is not valid; Bins must be
// positive.
type BinnerOptions struct {
	Bins             int     // N, the number of output bins.
	Smoothing        float64 // Alpha in [0, 1]. 1 disables smoothing, 0 copies bin 0 everywhere.
	NoiseOffset      float64 // Added to every non-zero accumulated bin.
	IncludeImaginary bool    // Accumulate real(c)+imag(c) instead of real(c) alone.
}

// DefaultBinnerOptions returns options for n bins with the default alpha and
// noise offset, accumulating both parts of each coefficient.
func DefaultBinnerOptions(n int) BinnerOptions {
	return BinnerOptions{
		Bins:             n,
		Smoothing:        DefaultSmoothing,
		NoiseOffset:      DefaultNoiseOffset,
		IncludeImaginary: true,
	}
}

// Binner implements the accumulate, offset, compress and smooth stages. It
// keeps no state between cycles other than its options; the caller owns the
// bin vector.
type Binner struct {
	opts BinnerOptions
}

var _ SpectrumProcessor = (*Binner)(nil)

// NewBinner validates opts. Errors wrap errs.ErrConfigInvalid.
func NewBinner(opts BinnerOptions) (*Binner, error) {
	if opts.Bins <= 0 {
		return nil, fmt.Errorf("analysis: bin count must be positive, got %d: %w", opts.Bins, errs.ErrConfigInvalid)
	}
	if opts.Smoothing < 0 || opts.Smoothing > 1 || math.IsNaN(opts.Smoothing) {
		return nil, fmt.Errorf("analysis: smoothing must be in [0, 1], got %g: %w", opts.Smoothing, errs.ErrConfigInvalid)
	}
	if math.IsNaN(opts.NoiseOffset) || math.IsInf(opts.NoiseOffset, 0) {
		return nil, fmt.Errorf("analysis: noise offset must be finite, got %g: %w", opts.NoiseOffset, errs.ErrConfigInvalid)
	}
	return &Binner{opts: opts}, nil
}

// Bins returns N.
func (b *Binner) Bins() int { return b.opts.Bins }

// Options returns the validated options.
func (b *Binner) Options() BinnerOptions { return b.opts }

// NewVector returns a zeroed bin vector of length N.
func (b *Binner) NewVector() []float64 { return make([]float64, b.opts.Bins) }

// Process reduces coeffs to N bins in place and returns the vector. A vector
// of the wrong length is replaced by one of length N, so the result always
// has exactly N entries.
//
// Stages, in order:
//  1. zero the vector, then add real(c[i]) (and imag(c[i]) when enabled) into
//     bins[i*N/W] for i in [1, W). Coefficient 0, the DC term, is skipped.
//  2. add the noise offset to every non-zero bin.
//  3. replace v with 10*log10(v*v); zero stays zero and non-finite results
//     are clamped to zero.
//  4. for i in [1, N): bins[i] = alpha*bins[i] + (1-alpha)*bins[i-1], using
//     the already smoothed bins[i-1]. Bin 0 is never smoothed.
func (b *Binner) Process(coeffs []complex128, bins []float64) []float64 {
	n := b.opts.Bins
	if len(bins) != n {
		if cap(bins) >= n {
			bins = bins[:n]
		} else {
			bins = make([]float64, n)
		}
	}
	b.accumulate(coeffs, bins)
	b.offset(bins)
	compress(bins)
	b.smooth(bins)
	return bins
}

func (b *Binner) accumulate(coeffs []complex128, bins []float64) {
	for i := range bins {
		bins[i] = 0
	}
	w := len(coeffs)
	n := len(bins)
	for i := 1; i < w; i++ {
		v := real(coeffs[i])
		if b.opts.IncludeImaginary {
			v += imag(coeffs[i])
		}
		bins[i*n/w] += v
	}
}

func (b *Binner) offset(bins []float64) {
	for i, v := range bins {
		if v != 0 {
			bins[i] = v + b.opts.NoiseOffset
		}
	}
}

func compress(bins []float64) {
	for i, v := range bins {
		if v == 0 {
			continue
		}
		db := 10 * math.Log10(v*v)
		if math.IsNaN(db) || math.IsInf(db, 0) {
			db = 0
		}
		bins[i] = db
	}
}

func (b *Binner) smooth(bins []float64) {
	alpha := b.opts.Smoothing
	for i := 1; i < len(bins); i++ {
		bins[i] = alpha*bins[i] + (1-alpha)*bins[i-1]
	}
}
