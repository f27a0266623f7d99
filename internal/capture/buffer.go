// SPDX-License-Identifier: MIT
/*
Package capture owns the analysis window shared between the audio callback and
the cycle scheduler.

Thread Safety:
  - Every sample slot is an atomic word holding float32 bits, so a read never
    observes a torn sample.
  - The write cursor is one atomic word packing a generation counter (high 32
    bits) and a frame position (low 32 bits). Reset bumps the generation and
    holds the cursor at capacity until the slots are cleared, so audio that
    arrives during a Reset is dropped rather than counted and then erased.
  - Write is called from a single audio callback context at a time and never
    blocks or allocates. Reset and Snapshot are called from the scheduler.

Handoff is time based: the scheduler resets the window, sleeps one window
duration and snapshots whatever is there. Frames that never arrived read as
Silence.
*/
package capture

import (
	"fmt"
	"math"
	"sync/atomic"

	"spectrum/internal/errs"
)

// Silence is the value of every slot that has not been written this cycle.
const Silence float32 = 0

const posMask = 1<<32 - 1

// Buffer is a fixed-capacity frame buffer for one analysis window.
type Buffer struct {
	channels int
	frames   int

	slots  []atomic.Uint32
	cursor atomic.Uint64 // generation<<32 | frame position
}

// NewBuffer allocates the window once; it is reused for the process lifetime.
func NewBuffer(channels, framesPerWindow int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("capture: channels must be positive, got %d: %w", channels, errs.ErrConfigInvalid)
	}
	if framesPerWindow <= 0 {
		return nil, fmt.Errorf("capture: frames per window must be positive, got %d: %w", framesPerWindow, errs.ErrConfigInvalid)
	}
	if uint64(framesPerWindow) > posMask {
		return nil, fmt.Errorf("capture: frames per window %d too large: %w", framesPerWindow, errs.ErrConfigInvalid)
	}
	return &Buffer{
		channels: channels,
		frames:   framesPerWindow,
		slots:    make([]atomic.Uint32, channels*framesPerWindow),
	}, nil
}

// Channels returns the number of interleaved channels per frame.
func (b *Buffer) Channels() int { return b.channels }

// Frames returns the window capacity in frames.
func (b *Buffer) Frames() int { return b.frames }

// Len returns the window length in samples (channels x frames).
func (b *Buffer) Len() int { return len(b.slots) }

// Filled returns the number of frames written since the last Reset.
func (b *Buffer) Filled() int {
	return int(b.cursor.Load() & posMask)
}

// Write copies whole interleaved frames from chunk into the window at the
// cursor and reports how many frames were consumed. Frames beyond capacity are
// dropped. complete is true once the window is full, which a driver can use as
// its "stop requesting callbacks" signal.
//
// Performance Critical (Hot Path):
//   - No allocations, no locks, no logging
func (b *Buffer) Write(chunk []float32) (frames int, complete bool) {
	want := len(chunk) / b.channels

	for {
		state := b.cursor.Load()
		gen, pos := state>>32, int(state&posMask)
		if pos >= b.frames {
			return 0, true
		}
		n := min(want, b.frames-pos)
		if n == 0 {
			return 0, false
		}
		// Reserve [pos, pos+n) for this generation before touching the slots.
		if !b.cursor.CompareAndSwap(state, gen<<32|uint64(pos+n)) {
			continue
		}

		start := pos * b.channels
		for i, s := range chunk[:n*b.channels] {
			b.slots[start+i].Store(math.Float32bits(s))
		}

		// A Reset landed while we were copying: what we wrote belongs to the
		// previous cycle. Reset may already have cleared these slots, but it
		// may also have cleared them before our stores, so clear them again.
		if b.cursor.Load()>>32 != gen {
			silence := math.Float32bits(Silence)
			for i := range n * b.channels {
				b.slots[start+i].Store(silence)
			}
			return 0, false
		}
		return n, pos+n >= b.frames
	}
}

// Reset rewinds the cursor and clears every slot to Silence, so a cycle in
// which the device delivers nothing analyses silence rather than stale data.
// The new generation starts closed: Writes that arrive while the slots are
// being cleared are dropped, so Filled never counts a frame Reset wiped.
func (b *Buffer) Reset() {
	var gen uint64
	for {
		state := b.cursor.Load()
		gen = state>>32 + 1
		if b.cursor.CompareAndSwap(state, gen<<32|uint64(b.frames)) {
			break
		}
	}
	silence := math.Float32bits(Silence)
	for i := range b.slots {
		b.slots[i].Store(silence)
	}
	// Write never moves a full cursor, so nothing can have changed it.
	b.cursor.Store(gen << 32)
}

// Snapshot copies the window into dst as float64 and returns the number of
// frames written this cycle. dst must hold at least Len() samples.
func (b *Buffer) Snapshot(dst []float64) int {
	filled := b.Filled()
	for i := range b.slots {
		dst[i] = float64(math.Float32frombits(b.slots[i].Load()))
	}
	return filled
}
