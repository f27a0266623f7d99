// SPDX-License-Identifier: MIT
/*
Package scheduler drives the analysis cycle:

	Capturing -> Transforming -> Binning -> Publishing -> Capturing ...

Each cycle resets the capture window, waits exactly one window duration while
the audio callback fills it, then transforms whatever arrived, reduces it to
bins and hands the encoded payload to the dispatcher without waiting for
delivery. Cancelling the context stops the loop at the next cycle boundary; a
fatal device error ends it immediately with an error.
*/
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"spectrum/internal/analysis"
	"spectrum/internal/capture"
	"spectrum/internal/errs"
	"spectrum/internal/fft"
	applog "spectrum/internal/log"
	"spectrum/internal/metrics"
	"spectrum/internal/payload"
)

// PayloadSink accepts encoded payloads without blocking. *transport.Dispatcher
// satisfies it.
type PayloadSink interface {
	Submit(payload []byte)
}

// WindowRecorder receives every analysed window. *recording.Recorder
// satisfies it.
type WindowRecorder interface {
	WriteWindow(window []float64, filled int) error
}

// Options wires the pipeline stages together.
type Options struct {
	Buffer    *capture.Buffer
	Transform *fft.Transform
	Processor analysis.SpectrumProcessor
	Encoder   payload.Encoder
	Sink      PayloadSink

	// WindowDuration is the capture phase length, normally
	// frames_per_window / sample_rate.
	WindowDuration time.Duration

	// DeviceErrors carries fatal source errors. Optional.
	DeviceErrors <-chan error
	// Recorder is optional.
	Recorder WindowRecorder
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Scheduler runs the cycle on the goroutine that calls Run.
type Scheduler struct {
	opts   Options
	logger *applog.Logger

	window []float64
	bins   []float64

	state  atomic.Uint32
	cycles atomic.Uint64
}

// New validates opts. Errors wrap errs.ErrConfigInvalid.
func New(opts Options) (*Scheduler, error) {
	switch {
	case opts.Buffer == nil:
		return nil, fmt.Errorf("scheduler: capture buffer is required: %w", errs.ErrConfigInvalid)
	case opts.Transform == nil:
		return nil, fmt.Errorf("scheduler: transform is required: %w", errs.ErrConfigInvalid)
	case opts.Processor == nil:
		return nil, fmt.Errorf("scheduler: spectrum processor is required: %w", errs.ErrConfigInvalid)
	case opts.Sink == nil:
		return nil, fmt.Errorf("scheduler: payload sink is required: %w", errs.ErrConfigInvalid)
	case opts.WindowDuration <= 0:
		return nil, fmt.Errorf("scheduler: window duration must be positive, got %s: %w", opts.WindowDuration, errs.ErrConfigInvalid)
	}
	if opts.Transform.Size() != opts.Buffer.Len() {
		return nil, fmt.Errorf("scheduler: transform size %d does not match window length %d: %w",
			opts.Transform.Size(), opts.Buffer.Len(), errs.ErrConfigInvalid)
	}
	if opts.Processor.Bins() <= 0 {
		return nil, fmt.Errorf("scheduler: processor must produce at least one bin: %w", errs.ErrConfigInvalid)
	}

	return &Scheduler{
		opts:   opts,
		logger: applog.Named("scheduler"),
		window: make([]float64, opts.Buffer.Len()),
		bins:   make([]float64, opts.Processor.Bins()),
	}, nil
}

// State returns the current phase.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Cycles returns the number of payloads handed to the sink.
func (s *Scheduler) Cycles() uint64 { return s.cycles.Load() }

func (s *Scheduler) setState(st State) { s.state.Store(uint32(st)) }

// Run loops until ctx is cancelled, returning nil, or a fatal device error
// arrives, returning it wrapped. A window already being captured when ctx is
// cancelled is still analysed and published before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Infof("running: %d samples per window, %d bins, cycle %s",
		len(s.window), len(s.bins), s.opts.WindowDuration)
	defer s.setState(Stopped)

	timer := time.NewTimer(s.opts.WindowDuration)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Infof("stopped after %d cycles", s.Cycles())
			return nil
		}

		s.setState(Capturing)
		s.opts.Buffer.Reset()
		timer.Reset(s.opts.WindowDuration)
		// Cancellation is only observed at the cycle boundary above.
		select {
		case err := <-s.opts.DeviceErrors:
			s.logger.Errorf("device failed: %v", err)
			return fmt.Errorf("scheduler: %w", err)
		case <-timer.C:
		}

		s.cycle()
	}
}

// cycle runs one Transforming, Binning and Publishing pass over the window.
func (s *Scheduler) cycle() {
	start := time.Now()

	s.setState(Transforming)
	filled := s.opts.Buffer.Snapshot(s.window)
	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.WriteWindow(s.window, filled); err != nil {
			s.logger.Warnf("%v", err)
		}
	}
	coeffs := s.opts.Transform.Coefficients(s.window)

	s.setState(Binning)
	s.bins = s.opts.Processor.Process(coeffs, s.bins)

	s.setState(Publishing)
	s.opts.Sink.Submit(s.opts.Encoder.Encode(s.bins))
	s.cycles.Add(1)

	s.opts.Metrics.ObserveCycle(time.Since(start), filled, s.opts.Buffer.Frames())
	s.opts.Metrics.ObserveBins(s.bins)
}

// Bins returns a copy of the latest bin vector. It must not race with Run.
func (s *Scheduler) Bins() []float64 {
	return append([]float64(nil), s.bins...)
}
