// SPDX-License-Identifier: MIT
// Package recording writes every analysed window to a WAV file, so a run can
// be replayed later through the wav source.
package recording

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"spectrum/internal/errs"
	applog "spectrum/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// Options configures a Recorder.
type Options struct {
	Dir        string
	SampleRate int
	Channels   int
	BitDepth   int // 16 or 32.
}

// Recorder appends analysed windows to one WAV file per run.
type Recorder struct {
	opts   Options
	logger *applog.Logger

	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
	frames  int
}

// New checks the options. Nothing is created on disk until Start.
func New(opts Options) (*Recorder, error) {
	if opts.BitDepth != 16 && opts.BitDepth != 32 {
		return nil, fmt.Errorf("recording: bit depth must be 16 or 32, got %d: %w", opts.BitDepth, errs.ErrConfigInvalid)
	}
	if opts.SampleRate <= 0 || opts.Channels <= 0 {
		return nil, fmt.Errorf("recording: invalid stream %d Hz x %d ch: %w", opts.SampleRate, opts.Channels, errs.ErrConfigInvalid)
	}
	return &Recorder{opts: opts, logger: applog.Named("recording")}, nil
}

// Start creates a timestamped file in the output directory and returns its
// path.
func (r *Recorder) Start() (string, error) {
	name := fmt.Sprintf("spectrum-%s.wav", time.Now().Format("20060102-150405"))
	return r.StartFile(filepath.Join(r.opts.Dir, name))
}

// StartFile begins recording to filename.
func (r *Recorder) StartFile(filename string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return "", fmt.Errorf("recording: already recording to %s", r.file.Name())
	}

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("recording: failed to create %s: %w", dir, err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("recording: %w", err)
	}

	r.file = file
	r.encoder = wav.NewEncoder(file, r.opts.SampleRate, r.opts.BitDepth, r.opts.Channels, wavFormatPCM)
	r.buf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: r.opts.Channels,
			SampleRate:  r.opts.SampleRate,
		},
		SourceBitDepth: r.opts.BitDepth,
	}
	r.frames = 0
	r.logger.Infof("recording to %s", filename)
	return filename, nil
}

// Recording reports whether a file is open.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file != nil
}

// Frames returns how many frames have been written to the current file.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// WriteWindow appends the first filled frames of an interleaved window.
// Samples are clipped to [-1, 1]. It is a no-op when not recording.
func (r *Recorder) WriteWindow(window []float64, filled int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil || filled <= 0 {
		return nil
	}

	n := min(filled*r.opts.Channels, len(window))
	n -= n % r.opts.Channels
	if cap(r.buf.Data) < n {
		r.buf.Data = make([]int, n)
	}
	r.buf.Data = r.buf.Data[:n]

	scale := float64(int64(1)<<(r.opts.BitDepth-1) - 1)
	for i, s := range window[:n] {
		if math.IsNaN(s) {
			s = 0
		}
		r.buf.Data[i] = int(math.Round(max(-1, min(1, s)) * scale))
	}

	if err := r.encoder.Write(r.buf); err != nil {
		return fmt.Errorf("recording: write failed: %w", err)
	}
	r.frames += n / r.opts.Channels
	return nil
}

// Stop finalises the WAV header and closes the file. It is safe to call when
// not recording.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}

	var encErr error
	if r.encoder != nil {
		encErr = r.encoder.Close()
		r.encoder = nil
	}
	closeErr := r.file.Close()
	r.logger.Infof("recorded %d frames to %s", r.frames, r.file.Name())
	r.file = nil

	if encErr != nil {
		return fmt.Errorf("recording: failed to finalise: %w", encErr)
	}
	if closeErr != nil {
		return fmt.Errorf("recording: %w", closeErr)
	}
	return nil
}
