// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"spectrum/internal/errs"
	"spectrum/internal/fft"
	applog "spectrum/internal/log"

	"gopkg.in/yaml.v3"
)

// Candidates searched, in order, when LoadConfig is given an empty path.
var defaultPaths = []string{
	"spectrum.yaml",
	"config.yaml",
}

// LoadConfig loads configuration with Load and validates the result;
// validation failures wrap errs.ErrConfigInvalid.
func LoadConfig(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from the YAML file at path without validating it.
// If path is empty it searches the default locations and falls back to
// built-in defaults when none exist. Environment overrides are applied after
// the file. Callers that layer further overrides must call Validate.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		for _, candidate := range defaultPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with. It must pass
// before the cycle loop is entered.
func (c *Config) Validate() error {
	a := c.Audio
	switch a.Source {
	case SourcePortAudio, SourceMalgo, SourceTone:
	case SourceWAV:
		if a.File == "" {
			return invalid("audio.file must be set for the wav source")
		}
	default:
		return invalid("audio.source %q is not one of portaudio, malgo, wav, tone", a.Source)
	}
	if a.InputDevice < MinDeviceID {
		return invalid("audio.input_device %d is below %d", a.InputDevice, MinDeviceID)
	}
	if a.SampleRate <= 0 {
		return invalid("audio.sample_rate must be positive, got %g", a.SampleRate)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return invalid("audio.sample_rate %g outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.Channels <= 0 || a.Channels > MaxChannels {
		return invalid("audio.channels must be in [1, %d], got %d", MaxChannels, a.Channels)
	}
	if a.FramesPerWindow <= 0 {
		return invalid("audio.frames_per_window must be positive, got %d", a.FramesPerWindow)
	}
	if a.FramesPerBuffer <= 0 {
		return invalid("audio.frames_per_buffer must be positive, got %d", a.FramesPerBuffer)
	}
	if a.FramesPerBuffer > a.FramesPerWindow {
		return invalid("audio.frames_per_buffer %d exceeds frames_per_window %d", a.FramesPerBuffer, a.FramesPerWindow)
	}
	if a.Source == SourceTone && (a.ToneHz <= 0 || a.ToneHz >= a.SampleRate/2) {
		return invalid("audio.tone_hz must be in (0, %g), got %g", a.SampleRate/2, a.ToneHz)
	}

	s := c.Spectrum
	if s.Bins <= 0 {
		return invalid("spectrum.bins must be positive, got %d", s.Bins)
	}
	if s.Bins > c.WindowSamples() {
		return invalid("spectrum.bins %d exceeds window length %d", s.Bins, c.WindowSamples())
	}
	if s.Smoothing < 0 || s.Smoothing > 1 {
		return invalid("spectrum.smoothing must be in [0, 1], got %g", s.Smoothing)
	}
	if _, err := fft.ParseWindowFunc(s.FFTWindow); err != nil {
		return fmt.Errorf("spectrum.fft_window: %w", err)
	}

	e := c.Encoding
	if e.Precision < 0 || e.Precision > MaxPrecision {
		return invalid("encoding.precision must be in [0, %d], got %d", MaxPrecision, e.Precision)
	}
	if len(e.Separator) != 1 {
		return invalid("encoding.separator must be a single character, got %q", e.Separator)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return invalid("mqtt.broker must be set when mqtt is enabled")
		}
		if c.MQTT.Topic == "" || strings.ContainsAny(c.MQTT.Topic, "+#") {
			return invalid("mqtt.topic %q must be a non-empty topic without wildcards", c.MQTT.Topic)
		}
		if c.MQTT.QoS > 2 {
			return invalid("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	}
	if c.WebSocket.Enabled && !strings.HasPrefix(c.WebSocket.Path, "/") {
		return invalid("websocket.path %q must start with /", c.WebSocket.Path)
	}
	if c.UDP.Enabled && !strings.Contains(c.UDP.TargetAddress, ":") {
		return invalid("udp.target_address %q appears invalid (missing port?)", c.UDP.TargetAddress)
	}
	if c.Recording.Enabled && c.Recording.BitDepth != 16 && c.Recording.BitDepth != 32 {
		return invalid("recording.bit_depth must be 16 or 32, got %d", c.Recording.BitDepth)
	}
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return invalid("log_level %q is not recognised", c.LogLevel)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errs.ErrConfigInvalid)
}

// applyEnvOverrides layers ENV_* variables over the file values. Malformed
// values are ignored so a typo in the environment cannot mask the file.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
			applog.Debugf("configuration: overriding debug from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Debugf("configuration: overriding log_level from env: %s", val)
	}

	// ENV_AUDIO_{...}
	if val, ok := os.LookupEnv("ENV_AUDIO_SOURCE"); ok {
		c.Audio.Source = strings.ToLower(val)
		applog.Debugf("configuration: overriding audio.source from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_AUDIO_DEVICE"); ok {
		if id, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = id
			applog.Debugf("configuration: overriding audio.input_device from env: %d", id)
		}
	}

	// ENV_MQTT_{...}
	if val, ok := os.LookupEnv("ENV_MQTT_BROKER"); ok {
		c.MQTT.Broker = val
		applog.Debugf("configuration: overriding mqtt.broker from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_MQTT_TOPIC"); ok {
		c.MQTT.Topic = val
		applog.Debugf("configuration: overriding mqtt.topic from env: %s", val)
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.UDP.Enabled = b
			applog.Debugf("configuration: overriding udp.enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.UDP.TargetAddress = val
		applog.Debugf("configuration: overriding udp.target_address from env: %s", val)
	}

	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.WebSocket.Enabled = b
			applog.Debugf("configuration: overriding websocket.enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_METRICS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Metrics.Enabled = b
			applog.Debugf("configuration: overriding metrics.enabled from env: %v", b)
		}
	}
}
