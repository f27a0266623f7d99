// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the spectrum pipeline.
const (
	DefaultSource          = SourcePortAudio
	DefaultDeviceID        = MinDeviceID // System default input device
	DefaultSampleRate      = 8000        // Hz
	DefaultChannels        = 2           // Interleaved stereo
	DefaultFramesPerWindow = 800         // 100ms at 8kHz
	DefaultFramesPerBuffer = 80          // 10ms driver chunks
	DefaultLowLatency      = false
	DefaultToneHz          = 440.0

	DefaultBins             = 4
	DefaultSmoothing        = 0.8
	DefaultNoiseOffset      = 50.0
	DefaultIncludeImaginary = true
	DefaultFFTWindow        = "Rectangular"

	DefaultPrecision = 6
	DefaultSeparator = ","

	DefaultMQTTBroker         = "tcp://localhost:1883"
	DefaultMQTTTopic          = "spectrum"
	DefaultMQTTConnectTimeout = 10 * time.Second

	DefaultWebSocketAddress = ":8080"
	DefaultWebSocketPath    = "/spectrum"
	DefaultMetricsAddress   = ":9100"
	DefaultUDPTarget        = "127.0.0.1:9090"

	DefaultRecordingDir      = "./recordings"
	DefaultRecordingBitDepth = 16

	// Hardware and processing limits
	MinDeviceID   = -1     // -1 represents system default device
	MinSampleRate = 8000   // Hz
	MaxSampleRate = 192000 // Hz
	MaxChannels   = 32
	MaxPrecision  = 17
)

// Audio source backends.
const (
	SourcePortAudio = "portaudio"
	SourceMalgo     = "malgo"
	SourceWAV       = "wav"
	SourceTone      = "tone"
)

// Config is the root configuration loaded from YAML, then overridden from the
// environment and the command line.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level"`
	Audio     AudioConfig     `yaml:"audio"`
	Spectrum  SpectrumConfig  `yaml:"spectrum"`
	Encoding  EncodingConfig  `yaml:"encoding"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	UDP       UDPConfig       `yaml:"udp"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Recording RecordingConfig `yaml:"recording"`
}

// AudioConfig selects the capture backend and fixes the analysis window.
// The window (channels x frames_per_window) never changes at runtime.
type AudioConfig struct {
	Source          string  `yaml:"source"`            // portaudio, malgo, wav or tone.
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Hz.
	Channels        int     `yaml:"channels"`          // Interleaved input channels.
	FramesPerWindow int     `yaml:"frames_per_window"` // Frames analysed per cycle.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per driver callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	File            string  `yaml:"file"`              // WAV file for the wav source.
	Loop            bool    `yaml:"loop"`              // Rewind the WAV file at EOF.
	ToneHz          float64 `yaml:"tone_hz"`           // Frequency for the tone source.
}

// SpectrumConfig drives the binning and scaling engine.
type SpectrumConfig struct {
	Bins             int     `yaml:"bins"`
	Smoothing        float64 `yaml:"smoothing"`         // Alpha in [0, 1].
	NoiseOffset      float64 `yaml:"noise_offset"`      // Added to every non-zero bin before compression.
	IncludeImaginary bool    `yaml:"include_imaginary"` // Accumulate imag(c) as well as real(c).
	FFTWindow        string  `yaml:"fft_window"`        // Analysis window name, see fft.ParseWindowFunc.
}

// EncodingConfig controls the text payload.
type EncodingConfig struct {
	Precision int    `yaml:"precision"`
	Separator string `yaml:"separator"`
}

// MQTTConfig points the publisher at a broker topic.
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Broker         string        `yaml:"broker"`
	Topic          string        `yaml:"topic"`
	ClientID       string        `yaml:"client_id"` // Generated when empty.
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	Retain         bool          `yaml:"retain"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// WebSocketConfig exposes payloads to browser clients.
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// UDPConfig sends each payload as one datagram.
type UDPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	TargetAddress string `yaml:"target_address"`
}

// MetricsConfig serves Prometheus metrics over HTTP.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// RecordingConfig writes every analysed window to a WAV file.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"`
}

// NewConfig returns a Config populated with defaults. It is the base that a
// YAML file, the environment and command line flags are layered on.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Source:          DefaultSource,
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			Channels:        DefaultChannels,
			FramesPerWindow: DefaultFramesPerWindow,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			Loop:            true,
			ToneHz:          DefaultToneHz,
		},
		Spectrum: SpectrumConfig{
			Bins:             DefaultBins,
			Smoothing:        DefaultSmoothing,
			NoiseOffset:      DefaultNoiseOffset,
			IncludeImaginary: DefaultIncludeImaginary,
			FFTWindow:        DefaultFFTWindow,
		},
		Encoding: EncodingConfig{
			Precision: DefaultPrecision,
			Separator: DefaultSeparator,
		},
		MQTT: MQTTConfig{
			Enabled:        true,
			Broker:         DefaultMQTTBroker,
			Topic:          DefaultMQTTTopic,
			ConnectTimeout: DefaultMQTTConnectTimeout,
		},
		WebSocket: WebSocketConfig{
			Address: DefaultWebSocketAddress,
			Path:    DefaultWebSocketPath,
		},
		UDP: UDPConfig{
			TargetAddress: DefaultUDPTarget,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultRecordingBitDepth,
		},
	}
}

// WindowSamples is the length of the interleaved analysis window.
func (c *Config) WindowSamples() int {
	return c.Audio.Channels * c.Audio.FramesPerWindow
}

// WindowDuration is how long the scheduler waits for one window to fill.
func (c *Config) WindowDuration() time.Duration {
	if c.Audio.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.Audio.FramesPerWindow) / c.Audio.SampleRate * float64(time.Second))
}
