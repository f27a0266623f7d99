// SPDX-License-Identifier: MIT
package fft

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"spectrum/internal/errs"
	"spectrum/pkg/utils"
)

const (
	testWindowSize = 1600 // 2 channels x 800 frames, not a power of two
	testSampleRate = 8000
)

// naiveDFT is the O(W^2) reference the planned transform must agree with.
func naiveDFT(x []float64) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	for k := range n {
		var sum complex128
		for j, v := range x {
			angle := -2 * math.Pi * float64(k) * float64(j) / float64(n)
			sum += complex(v, 0) * cmplx.Rect(1, angle)
		}
		out[k] = sum
	}
	return out
}

func sineWindow(n int, hz float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		tm := float64(i) / testSampleRate
		x[i] = 0.5*math.Sin(2*math.Pi*hz*tm) + 0.25*math.Cos(2*math.Pi*3*hz*tm)
	}
	return x
}

func TestNewTransformRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -16} {
		if _, err := NewTransform(size, Rectangular); !errors.Is(err, errs.ErrConfigInvalid) {
			t.Errorf("NewTransform(%d) error = %v, want ErrConfigInvalid", size, err)
		}
	}
}

func TestCoefficientsMatchNaiveDFT(t *testing.T) {
	sizes := []int{1, 7, 64, 250}
	for _, size := range sizes {
		tr, err := NewTransform(size, Rectangular)
		if err != nil {
			t.Fatal(err)
		}
		x := sineWindow(size, 440)
		got := tr.Coefficients(x)
		want := naiveDFT(x)
		if len(got) != size {
			t.Fatalf("size %d: got %d coefficients", size, len(got))
		}
		for k := range want {
			if cmplx.Abs(got[k]-want[k]) > 1e-9*float64(size) {
				t.Fatalf("size %d: X[%d] = %v, want %v", size, k, got[k], want[k])
			}
		}
	}
}

func TestSilenceTransformsToZero(t *testing.T) {
	tr, _ := NewTransform(testWindowSize, Rectangular)
	for k, c := range tr.Coefficients(make([]float64, testWindowSize)) {
		if c != 0 {
			t.Fatalf("X[%d] = %v for silent input, want 0", k, c)
		}
	}
}

func TestShortInputIsZeroPadded(t *testing.T) {
	tr, _ := NewTransform(32, Rectangular)
	x := sineWindow(20, 440)
	padded := make([]float64, 32)
	copy(padded, x)

	want := naiveDFT(padded)
	got := tr.Coefficients(x)
	for k := range want {
		if cmplx.Abs(got[k]-want[k]) > 1e-9 {
			t.Fatalf("X[%d] = %v, want %v", k, got[k], want[k])
		}
	}
}

func TestCoefficientsDeterministic(t *testing.T) {
	tr, _ := NewTransform(testWindowSize, Hann)
	x := sineWindow(testWindowSize, 1000)

	first := append([]complex128(nil), tr.Coefficients(x)...)
	second := tr.Coefficients(x)
	for k := range first {
		if first[k] != second[k] {
			t.Fatalf("X[%d] differs between identical calls: %v vs %v", k, first[k], second[k])
		}
	}
}

func TestNonFiniteInputPropagates(t *testing.T) {
	tr, _ := NewTransform(8, Rectangular)
	x := make([]float64, 8)
	x[3] = math.NaN()
	if c := tr.Coefficients(x)[1]; !cmplx.IsNaN(c) {
		t.Errorf("X[1] = %v, want NaN", c)
	}
}

func TestWindowIsApplied(t *testing.T) {
	tr, _ := NewTransform(16, Hann)
	ones := make([]float64, 16)
	for i := range ones {
		ones[i] = 1
	}
	// The Hann window is zero at both ends, so X[0] is the window sum, which is
	// strictly less than the rectangular sum of 16.
	dc := real(tr.Coefficients(ones)[0])
	if dc <= 0 || dc >= 16 {
		t.Errorf("X[0] = %v with Hann window, want in (0, 16)", dc)
	}
}

func TestToneLandsOnItsBin(t *testing.T) {
	const frames = 800
	tests := []struct {
		name    string
		samples []float32
		window  WindowFunc
		want    int
	}{
		// 1000 Hz is exactly 100 periods of the window.
		{"sine rectangular", utils.GenerateSineWave(frames, 1, testSampleRate, 1000), Rectangular, 100},
		{"sine hann", utils.GenerateSineWave(frames, 1, testSampleRate, 1000), Hann, 100},
		// The 440 Hz fundamental dominates its harmonics.
		{"complex wave", utils.GenerateComplexWave(frames, 1, testSampleRate), Hann, 44},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransform(frames, tt.window)
			if err != nil {
				t.Fatal(err)
			}
			samples := make([]float64, frames)
			for i, v := range tt.samples {
				samples[i] = float64(v)
			}
			coeffs := tr.Coefficients(samples)

			mags := make([]float64, frames/2)
			for i := range mags {
				mags[i] = cmplx.Abs(coeffs[i])
			}
			if got := utils.FindPeakBin(mags, 1, len(mags)-1); got != tt.want {
				t.Errorf("peak bin = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"", Rectangular, false},
		{"Rectangular", Rectangular, false},
		{"hanning", Hann, false},
		{"HAMMING", Hamming, false},
		{" blackmannuttall ", BlackmanNuttall, false},
		{"BartlettHann", BartlettHann, false},
		{"kaiser", Rectangular, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWindowFunc(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errs.ErrConfigInvalid) {
				t.Errorf("error %v does not wrap ErrConfigInvalid", err)
			}
			if got != tt.want {
				t.Errorf("ParseWindowFunc(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestCoefficientsHotPath(t *testing.T) {
	tr, _ := NewTransform(testWindowSize, Hann)
	x := sineWindow(testWindowSize, 440)

	tr.Coefficients(x)
	allocs := testing.AllocsPerRun(100, func() {
		tr.Coefficients(x)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Coefficients hot path, got %.1f", allocs)
	}
}

func BenchmarkCoefficients(b *testing.B) {
	tr, _ := NewTransform(testWindowSize, Rectangular)
	x := sineWindow(testWindowSize, 440)

	b.ReportAllocs()
	for b.Loop() {
		tr.Coefficients(x)
	}
}
