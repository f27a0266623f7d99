// SPDX-License-Identifier: MIT

// Package payload renders a bin vector as the delimited text message sent to
// subscribers.
package payload

import (
	"strconv"
)

// Defaults match the subscriber contract: six decimals, comma separated.
const (
	DefaultPrecision = 6
	DefaultSeparator = ','
)

// Encoder formats bins as fixed-precision decimals joined by a single
// separator byte, e.g. "12.500000,-3.250000,0.000000,45.125000". There is no
// trailing separator and no enclosing brackets.
type Encoder struct {
	Precision int
	Separator byte
}

// NewEncoder returns an Encoder with the default format.
func NewEncoder() Encoder {
	return Encoder{Precision: DefaultPrecision, Separator: DefaultSeparator}
}

// Encode returns a freshly allocated payload. The caller may hand it to other
// goroutines; the encoder keeps no reference to it. An empty vector encodes to
// an empty payload.
func (e Encoder) Encode(bins []float64) []byte {
	return e.AppendEncode(make([]byte, 0, e.sizeHint(len(bins))), bins)
}

// AppendEncode appends the encoding of bins to dst and returns the extended
// slice.
func (e Encoder) AppendEncode(dst []byte, bins []float64) []byte {
	for i, v := range bins {
		if i > 0 {
			dst = append(dst, e.Separator)
		}
		dst = strconv.AppendFloat(dst, v, 'f', e.Precision, 64)
	}
	return dst
}

// sizeHint covers "-dddd.pppppp" plus a separator for typical dB values.
func (e Encoder) sizeHint(n int) int {
	return n * (e.Precision + 7)
}
