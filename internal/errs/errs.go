// SPDX-License-Identifier: MIT

// Package errs holds the error kinds the pipeline distinguishes. Only
// ErrDeviceFatal and ErrConfigInvalid stop the pipeline; ErrPublishTransient
// is absorbed where it happens. Callers wrap them with fmt.Errorf and %w and
// test with errors.Is.
package errs

import "errors"

var (
	// ErrDeviceFatal reports an audio source that could not be opened or
	// started, or that failed irrecoverably while streaming.
	ErrDeviceFatal = errors.New("audio device failure")

	// ErrConfigInvalid reports a configuration rejected before the cycle loop starts.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrPublishTransient reports an outbound hand-off that failed. The payload
	// for that cycle is dropped.
	ErrPublishTransient = errors.New("publish failed")
)

// IsFatal reports whether err must stop the pipeline.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceFatal) || errors.Is(err, ErrConfigInvalid)
}
