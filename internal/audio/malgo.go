// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	applog "spectrum/internal/log"

	"github.com/gen2brain/malgo"
)

// MalgoSource captures through miniaudio. It needs no system library beyond
// the platform audio stack, which makes it the fallback when PortAudio is not
// installed.
type MalgoSource struct {
	opts   Options
	errs   errorChannel
	logger *applog.Logger

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	sink     Sink
	scratch  []float32
	stopping atomic.Bool
}

// NewMalgoSource creates a stopped source.
func NewMalgoSource(opts Options) *MalgoSource {
	return &MalgoSource{
		opts:    opts,
		errs:    newErrorChannel(),
		logger:  applog.Named("malgo"),
		scratch: make([]float32, opts.FramesPerBuffer*opts.Channels),
	}
}

// Start initialises a miniaudio context and a float32 capture device.
func (s *MalgoSource) Start(sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return fatal("malgo: failed to initialise context: %v", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(s.opts.Channels)
	cfg.SampleRate = uint32(s.opts.SampleRate)
	cfg.PeriodSizeInFrames = uint32(s.opts.FramesPerBuffer)
	cfg.Alsa.NoMMap = 1
	if s.opts.LowLatency {
		cfg.PerformanceProfile = malgo.LowLatency
	}

	if s.opts.DeviceID >= 0 {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			_ = ctx.Uninit()
			ctx.Free()
			return fatal("malgo: failed to enumerate capture devices: %v", err)
		}
		if s.opts.DeviceID >= len(infos) {
			_ = ctx.Uninit()
			ctx.Free()
			return fatal("malgo: invalid capture device ID: %d", s.opts.DeviceID)
		}
		cfg.Capture.DeviceID = infos[s.opts.DeviceID].ID.Pointer()
		s.logger.Infof("using capture device %q", infos[s.opts.DeviceID].Name())
	}

	s.sink = sink
	s.stopping.Store(false)
	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fatal("malgo: failed to initialise capture device: %v", err)
	}
	if device.CaptureFormat() != malgo.FormatF32 {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fatal("malgo: device refused float32 capture")
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fatal("malgo: failed to start capture device: %v", err)
	}

	s.ctx = ctx
	s.device = device
	s.logger.Infof("capturing %d ch @ %d Hz", device.CaptureChannels(), device.SampleRate())
	return nil
}

// onData runs on the miniaudio thread.
//
// Performance Critical (Hot Path):
//   - No allocations, no locks, no logging
func (s *MalgoSource) onData(_, in []byte, _ uint32) {
	for len(in) > 0 {
		n := decodeFloat32LE(s.scratch, in)
		if n == 0 {
			return
		}
		s.sink.Write(s.scratch[:n])
		in = in[n*4:]
	}
}

// onStop fires for both requested and unexpected stops.
func (s *MalgoSource) onStop() {
	if s.stopping.Load() {
		return
	}
	s.errs.report(fatal("malgo: capture device stopped unexpectedly"))
}

// Stop stops the device and releases the context.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}
	s.stopping.Store(true)

	err := s.device.Stop()
	s.device.Uninit()
	s.device = nil
	_ = s.ctx.Uninit()
	s.ctx.Free()
	s.ctx = nil

	if err != nil {
		return fatal("malgo: failed to stop capture device: %v", err)
	}
	return nil
}

// Errors reports unexpected device stops.
func (s *MalgoSource) Errors() <-chan error { return s.errs }

// decodeFloat32LE converts little-endian float32 bytes from src into dst and
// returns the number of samples written.
func decodeFloat32LE(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/4)
	for i := range n {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return n
}

func backend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

var _ Source = (*MalgoSource)(nil)
