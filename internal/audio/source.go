// SPDX-License-Identifier: MIT
/*
Package audio implements the capture backends that feed the analysis window:
  - PortAudio and miniaudio (malgo) device capture
  - WAV file replay paced at the file's sample rate
  - A synthetic tone generator

Every backend delivers interleaved float32 frames to a Sink from its own
callback context. Sinks must never block; *capture.Buffer is the production
sink.

Thread Safety:
  - Start and Stop are called from the owning goroutine
  - Sink.Write is called from one callback context at a time
  - Fatal device errors are reported on Errors() without blocking the callback
*/
package audio

import (
	"fmt"
	"strings"

	"spectrum/internal/errs"
)

// Sink receives interleaved float32 frames. It reports how many frames it
// kept and whether it is full.
type Sink interface {
	Write(chunk []float32) (frames int, complete bool)
}

// Source is a capture backend.
type Source interface {
	// Start opens the device and begins asynchronous delivery to sink. Errors
	// wrap errs.ErrDeviceFatal.
	Start(sink Sink) error
	// Stop halts delivery and releases the device. It is safe to call more
	// than once.
	Stop() error
	// Errors delivers fatal mid-stream failures, each wrapping
	// errs.ErrDeviceFatal. The channel is never closed.
	Errors() <-chan error
}

// Backend names accepted by NewSource.
const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
	BackendWAV       = "wav"
	BackendTone      = "tone"
)

// Options describes the stream every backend must produce.
type Options struct {
	SampleRate      float64
	Channels        int
	FramesPerBuffer int

	DeviceID   int  // PortAudio device index, -1 for the default input.
	LowLatency bool // Use the device's low input latency.

	File string // WAV file to replay.
	Loop bool   // Rewind the WAV file at EOF.

	ToneHz float64 // Tone frequency.
}

func (o Options) validate() error {
	if o.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %g: %w", o.SampleRate, errs.ErrConfigInvalid)
	}
	if o.Channels <= 0 {
		return fmt.Errorf("audio: channels must be positive, got %d: %w", o.Channels, errs.ErrConfigInvalid)
	}
	if o.FramesPerBuffer <= 0 {
		return fmt.Errorf("audio: frames per buffer must be positive, got %d: %w", o.FramesPerBuffer, errs.ErrConfigInvalid)
	}
	return nil
}

// NewSource builds the backend named by backend.
func NewSource(backend string, opts Options) (Source, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(backend) {
	case BackendPortAudio:
		return NewPortAudioSource(opts), nil
	case BackendMalgo:
		return NewMalgoSource(opts), nil
	case BackendWAV:
		return NewWAVSource(opts)
	case BackendTone:
		return NewToneSource(opts)
	default:
		return nil, fmt.Errorf("audio: unknown source %q: %w", backend, errs.ErrConfigInvalid)
	}
}

// errorChannel carries fatal errors out of callback contexts.
type errorChannel chan error

func newErrorChannel() errorChannel { return make(errorChannel, 1) }

// report delivers err if nobody has been told yet; it never blocks.
func (c errorChannel) report(err error) {
	select {
	case c <- err:
	default:
	}
}

func fatal(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errs.ErrDeviceFatal)
}
