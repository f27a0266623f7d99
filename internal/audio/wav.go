// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"spectrum/internal/errs"
	applog "spectrum/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource replays a PCM WAV file in real time, one FramesPerBuffer chunk per
// tick, as if it were arriving from a device.
type WAVSource struct {
	opts   Options
	errs   errorChannel
	logger *applog.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewWAVSource checks the options; the file itself is opened by Start.
func NewWAVSource(opts Options) (*WAVSource, error) {
	if opts.File == "" {
		return nil, fmt.Errorf("audio: wav source needs a file: %w", errs.ErrConfigInvalid)
	}
	return &WAVSource{
		opts:   opts,
		errs:   newErrorChannel(),
		logger: applog.Named("wav"),
	}, nil
}

// WAVE_FORMAT_PCM; IEEE float and compressed formats are rejected.
const wavFormatPCM = 1

// Start opens and validates the file, then begins paced delivery. The file's
// sample rate must match the configured rate; its channels are mapped onto
// the configured channel count.
func (s *WAVSource) Start(sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	f, err := os.Open(s.opts.File)
	if err != nil {
		return fatal("wav: failed to open %s: %v", s.opts.File, err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return fatal("wav: %s is not a valid WAV file", s.opts.File)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		f.Close()
		return fatal("wav: %s uses audio format %d, only integer PCM is supported", s.opts.File, dec.WavAudioFormat)
	}
	if float64(dec.SampleRate) != s.opts.SampleRate {
		f.Close()
		return fatal("wav: %s is %d Hz, want %g Hz", s.opts.File, dec.SampleRate, s.opts.SampleRate)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return fatal("wav: %s has no PCM data: %v", s.opts.File, err)
	}

	r := &wavReader{
		dec:      dec,
		fileCh:   int(dec.NumChans),
		outCh:    s.opts.Channels,
		scale:    fullScale(int(dec.BitDepth)),
		unsigned: dec.BitDepth == 8,
		pcm:      &audio.IntBuffer{Data: make([]int, s.opts.FramesPerBuffer*int(dec.NumChans))},
		out:      make([]float32, s.opts.FramesPerBuffer*s.opts.Channels),
	}
	s.logger.Infof("replaying %s: %d ch, %d bit, %d Hz, loop=%v", s.opts.File, dec.NumChans, dec.BitDepth, dec.SampleRate, s.opts.Loop)

	s.stop = make(chan struct{})
	period := time.Duration(float64(s.opts.FramesPerBuffer) / s.opts.SampleRate * float64(time.Second))
	s.wg.Add(1)
	go s.run(f, r, sink, period, s.stop)
	return nil
}

func (s *WAVSource) run(f *os.File, r *wavReader, sink Sink, period time.Duration, stop <-chan struct{}) {
	defer s.wg.Done()
	defer f.Close()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	exhausted := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if exhausted {
			continue
		}

		chunk, err := r.next()
		if err != nil {
			s.errs.report(fatal("wav: read failed: %v", err))
			return
		}
		if len(chunk) == 0 {
			if !s.opts.Loop {
				s.logger.Infof("end of %s", s.opts.File)
				exhausted = true
				continue
			}
			if err := r.dec.Rewind(); err != nil {
				s.errs.report(fatal("wav: rewind failed: %v", err))
				return
			}
			if chunk, err = r.next(); err != nil || len(chunk) == 0 {
				s.errs.report(fatal("wav: no audio after rewind: %v", err))
				return
			}
		}
		sink.Write(chunk)
	}
}

// Stop ends replay and closes the file.
func (s *WAVSource) Stop() error {
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

// Errors reports read failures during replay.
func (s *WAVSource) Errors() <-chan error { return s.errs }

// wavReader turns decoder output into interleaved float32 frames.
type wavReader struct {
	dec      *wav.Decoder
	fileCh   int
	outCh    int
	scale    float32
	unsigned bool
	pcm      *audio.IntBuffer
	out      []float32
}

// next returns the next chunk of whole frames, or an empty slice at EOF.
func (r *wavReader) next() ([]float32, error) {
	n, err := r.dec.PCMBuffer(r.pcm)
	if err != nil {
		return nil, err
	}
	frames := n / r.fileCh
	convertFrames(r.out, r.pcm.Data[:frames*r.fileCh], r.fileCh, r.outCh, r.scale, r.unsigned)
	return r.out[:frames*r.outCh], nil
}

// convertFrames maps integer PCM frames with inCh channels onto outCh
// channels in [-1, 1). Output channel c reads input channel c mod inCh.
func convertFrames(dst []float32, src []int, inCh, outCh int, scale float32, unsigned bool) {
	frames := len(src) / inCh
	for f := range frames {
		for c := range outCh {
			v := src[f*inCh+c%inCh]
			if unsigned {
				v -= 128
			}
			dst[f*outCh+c] = float32(v) / scale
		}
	}
}

// fullScale is the magnitude of the most negative sample at bitDepth.
func fullScale(bitDepth int) float32 {
	return float32(uint64(1) << (bitDepth - 1))
}

var _ Source = (*WAVSource)(nil)
