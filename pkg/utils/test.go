// SPDX-License-Identifier: MIT

// Package utils holds signal generators and fakes shared by the package tests.
package utils

import (
	"context"
	"math"
	"sync"
)

// MockPublisher records every payload it is asked to publish. Err, when set,
// is returned from Publish after the payload is recorded.
type MockPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool

	Err error
	// Block, when non-nil, makes Publish wait until it is closed or the
	// context ends.
	Block chan struct{}
	// Published, when non-nil, receives a signal after every Publish.
	Published chan struct{}
}

// Publish stores a copy of payload.
func (m *MockPublisher) Publish(ctx context.Context, payload []byte) error {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	m.payloads = append(m.payloads, append([]byte(nil), payload...))
	err := m.Err
	m.mu.Unlock()

	if m.Published != nil {
		select {
		case m.Published <- struct{}{}:
		default:
		}
	}
	return err
}

// Close marks the publisher closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Payloads returns the recorded payloads as strings, oldest first.
func (m *MockPublisher) Payloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.payloads))
	for i, p := range m.payloads {
		out[i] = string(p)
	}
	return out
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateComplexWave returns frames of interleaved float32 samples holding a
// 440Hz fundamental plus two harmonics on every channel.
func GenerateComplexWave(frames, channels int, sampleRate float64) []float32 {
	buffer := make([]float32, frames*channels)
	for i := range frames {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2 // 440Hz fundamental + harmonics
		for ch := range channels {
			buffer[i*channels+ch] = float32(signal * 0.9)
		}
	}
	return buffer
}

// GenerateSineWave returns frames of interleaved float32 samples of a pure
// tone at 0.9 full scale on every channel.
func GenerateSineWave(frames, channels int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, frames*channels)
	for i := range frames {
		t := float64(i) / sampleRate
		v := float32(math.Sin(2*math.Pi*frequency*t) * 0.9)
		for ch := range channels {
			buffer[i*channels+ch] = v
		}
	}
	return buffer
}

// FindPeakBin returns the index of the largest value in values[startBin:endBin+1].
func FindPeakBin(values []float64, startBin, endBin int) int {
	if len(values) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(values) {
		endBin = len(values) - 1
	}

	peakBin := startBin
	peakValue := values[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if values[bin] > peakValue {
			peakValue = values[bin]
			peakBin = bin
		}
	}

	return peakBin
}
