// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"spectrum/internal/errs"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink keeps copies of every chunk it receives.
type recordingSink struct {
	mu     sync.Mutex
	chunks [][]float32
	notify chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 1024)}
}

func (s *recordingSink) Write(chunk []float32) (int, bool) {
	s.mu.Lock()
	s.chunks = append(s.chunks, append([]float32(nil), chunk...))
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return len(chunk), false
}

func (s *recordingSink) Chunks() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]float32(nil), s.chunks...)
}

// waitChunks blocks until at least n chunks arrived.
func (s *recordingSink) waitChunks(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for len(s.Chunks()) < n {
		select {
		case <-s.notify:
		case <-deadline:
			t.Fatalf("received %d chunks, want %d", len(s.Chunks()), n)
		}
	}
}

func toneOptions() Options {
	return Options{SampleRate: 8000, Channels: 2, FramesPerBuffer: 80, DeviceID: DefaultDeviceID, ToneHz: 1000}
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		mutate  func(o *Options)
		wantErr error
	}{
		{"portaudio", BackendPortAudio, nil, nil},
		{"malgo", BackendMalgo, nil, nil},
		{"tone", "TONE", nil, nil},
		{"wav", BackendWAV, func(o *Options) { o.File = "in.wav" }, nil},
		{"wav without file", BackendWAV, nil, errs.ErrConfigInvalid},
		{"unknown", "jack", nil, errs.ErrConfigInvalid},
		{"zero rate", BackendTone, func(o *Options) { o.SampleRate = 0 }, errs.ErrConfigInvalid},
		{"zero channels", BackendTone, func(o *Options) { o.Channels = 0 }, errs.ErrConfigInvalid},
		{"zero buffer", BackendTone, func(o *Options) { o.FramesPerBuffer = 0 }, errs.ErrConfigInvalid},
		{"tone at nyquist", BackendTone, func(o *Options) { o.ToneHz = 4000 }, errs.ErrConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := toneOptions()
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			src, err := NewSource(tt.backend, opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, src)
		})
	}
}

func TestToneSourceDeliversContinuousSine(t *testing.T) {
	src, err := NewToneSource(toneOptions())
	require.NoError(t, err)

	sink := newRecordingSink()
	require.NoError(t, src.Start(sink))
	require.NoError(t, src.Start(sink), "second Start is a no-op")
	sink.waitChunks(t, 2)
	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())

	chunks := sink.Chunks()
	require.GreaterOrEqual(t, len(chunks), 2)
	require.Len(t, chunks[0], 160)

	// 1 kHz at 8 kHz is 8 samples per period; frame 2 is a quarter period.
	assert.InDelta(t, 0, chunks[0][0], 1e-6)
	assert.InDelta(t, DefaultToneAmplitude, chunks[0][4], 1e-6)
	assert.Equal(t, chunks[0][4], chunks[0][5], "channels carry the same sample")

	// Phase continues across chunks: 80 frames is exactly 10 periods.
	assert.InDelta(t, chunks[0][4], chunks[1][4], 1e-5)
}

func TestToneSourceErrorsNeverFires(t *testing.T) {
	src, err := NewToneSource(toneOptions())
	require.NoError(t, err)
	select {
	case err := <-src.Errors():
		t.Fatalf("unexpected error %v", err)
	default:
	}
}

// writeWAV writes frames of mono or multichannel 16-bit PCM.
func writeWAV(t *testing.T, sampleRate, bitDepth, channels int, data []int) string {
	t.Helper()
	return writeWAVFormat(t, sampleRate, bitDepth, channels, wavFormatPCM, data)
}

func writeWAVFormat(t *testing.T, sampleRate, bitDepth, channels, format int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, format)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

func constantPCM(samples, value int) []int {
	data := make([]int, samples)
	for i := range data {
		data[i] = value
	}
	return data
}

func wavOptions(path string, loop bool) Options {
	return Options{SampleRate: 8000, Channels: 2, FramesPerBuffer: 80, File: path, Loop: loop}
}

func TestWAVSourceReplaysAndMapsChannels(t *testing.T) {
	path := writeWAV(t, 8000, 16, 1, constantPCM(160, 16384))

	src, err := NewWAVSource(wavOptions(path, false))
	require.NoError(t, err)

	sink := newRecordingSink()
	require.NoError(t, src.Start(sink))
	sink.waitChunks(t, 2)
	// Let the source run past EOF; without looping it goes quiet.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, src.Stop())

	chunks := sink.Chunks()
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		require.Len(t, chunk, 160, "mono file mapped onto two channels")
		for _, v := range chunk {
			require.InDelta(t, 0.5, v, 1e-6)
		}
	}
}

func TestWAVSourceLoops(t *testing.T) {
	path := writeWAV(t, 8000, 16, 2, constantPCM(160, -8192))

	src, err := NewWAVSource(wavOptions(path, true))
	require.NoError(t, err)

	sink := newRecordingSink()
	require.NoError(t, src.Start(sink))
	sink.waitChunks(t, 4)
	require.NoError(t, src.Stop())

	for _, chunk := range sink.Chunks() {
		require.Len(t, chunk, 160)
		assert.InDelta(t, -0.25, chunk[0], 1e-6)
	}
}

func TestWAVSourceStartFailures(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not RIFF"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.wav")},
		{"not a wav", garbage},
		{"sample rate mismatch", writeWAV(t, 16000, 16, 1, constantPCM(160, 0))},
		{"ieee float", writeWAVFormat(t, 8000, 32, 1, 3, constantPCM(160, 0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewWAVSource(wavOptions(tt.path, false))
			require.NoError(t, err)
			err = src.Start(newRecordingSink())
			require.ErrorIs(t, err, errs.ErrDeviceFatal)
			require.NoError(t, src.Stop())
		})
	}
}

func TestConvertFrames(t *testing.T) {
	tests := []struct {
		name     string
		src      []int
		inCh     int
		outCh    int
		bitDepth int
		unsigned bool
		want     []float32
	}{
		{"16 bit mono to stereo", []int{16384, -32768}, 1, 2, 16, false, []float32{0.5, 0.5, -1, -1}},
		{"stereo to mono keeps left", []int{16384, -16384}, 2, 1, 16, false, []float32{0.5}},
		{"8 bit unsigned", []int{128, 192, 0}, 1, 1, 8, true, []float32{0, 0.5, -1}},
		{"24 bit", []int{4194304}, 1, 1, 24, false, []float32{0.5}},
		{"32 bit", []int{-1073741824}, 1, 1, 32, false, []float32{-0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := len(tt.src) / tt.inCh
			dst := make([]float32, frames*tt.outCh)
			convertFrames(dst, tt.src, tt.inCh, tt.outCh, fullScale(tt.bitDepth), tt.unsigned)
			assert.Equal(t, tt.want, dst)
		})
	}
}

func TestDecodeFloat32LE(t *testing.T) {
	want := []float32{0, 0.5, -1, 0.25}
	src := make([]byte, 4*len(want)+3) // trailing partial sample is ignored
	for i, v := range want {
		binary.LittleEndian.PutUint32(src[i*4:], math.Float32bits(v))
	}

	dst := make([]float32, 8)
	n := decodeFloat32LE(dst, src)
	require.Equal(t, 4, n)
	assert.Equal(t, want, dst[:n])

	short := make([]float32, 2)
	assert.Equal(t, 2, decodeFloat32LE(short, src))
	assert.Equal(t, want[:2], short)
}

func TestDecodeFloat32LENoAllocs(t *testing.T) {
	src := make([]byte, 640)
	dst := make([]float32, 160)
	allocs := testing.AllocsPerRun(100, func() {
		decodeFloat32LE(dst, src)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations, got %.1f", allocs)
	}
}
