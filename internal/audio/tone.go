// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"spectrum/internal/errs"
)

// DefaultToneAmplitude keeps the tone clear of full scale.
const DefaultToneAmplitude = 0.5

// ToneSource synthesises a sine wave on every channel, paced like a device.
// It is useful for demos and for running the pipeline without hardware.
type ToneSource struct {
	opts  Options
	errs  errorChannel
	phase float64

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewToneSource checks that the tone is representable at the sample rate.
func NewToneSource(opts Options) (*ToneSource, error) {
	if opts.ToneHz <= 0 || opts.ToneHz >= opts.SampleRate/2 {
		return nil, fmt.Errorf("audio: tone %g Hz must be in (0, %g): %w", opts.ToneHz, opts.SampleRate/2, errs.ErrConfigInvalid)
	}
	return &ToneSource{opts: opts, errs: newErrorChannel()}, nil
}

// Start begins delivering one FramesPerBuffer chunk per buffer period.
func (s *ToneSource) Start(sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	period := time.Duration(float64(s.opts.FramesPerBuffer) / s.opts.SampleRate * float64(time.Second))

	s.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer s.wg.Done()
		chunk := make([]float32, s.opts.FramesPerBuffer*s.opts.Channels)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.fill(chunk)
				sink.Write(chunk)
			}
		}
	}(s.stop)
	return nil
}

// fill writes the next chunk of the tone, keeping phase continuous across
// chunks.
func (s *ToneSource) fill(chunk []float32) {
	step := 2 * math.Pi * s.opts.ToneHz / s.opts.SampleRate
	channels := s.opts.Channels
	for f := range len(chunk) / channels {
		v := float32(DefaultToneAmplitude * math.Sin(s.phase))
		for c := range channels {
			chunk[f*channels+c] = v
		}
		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
}

// Stop halts the generator.
func (s *ToneSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.wg.Wait()
	s.stop = nil
	return nil
}

// Errors never fires; the generator cannot fail.
func (s *ToneSource) Errors() <-chan error { return s.errs }

var _ Source = (*ToneSource)(nil)
