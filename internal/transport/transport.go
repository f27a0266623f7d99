// SPDX-License-Identifier: MIT

// Package transport delivers encoded payloads to subscribers.
//
// Delivery is at-most-once: a publisher sends each payload once, never
// retries and never waits for an acknowledgment. Failures are reported to the
// caller, which logs and drops them.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spectrum/internal/errs"
)

// Publisher sends one payload to one logical sink. Implementations must be
// safe for use by a single dispatcher goroutine concurrently with Close.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// Observer is notified about delivery outcomes. *metrics.Metrics satisfies it.
type Observer interface {
	PayloadPublished(size int, latency time.Duration)
	PublishFailed()
	PayloadDropped()
}

type noopObserver struct{}

func (noopObserver) PayloadPublished(int, time.Duration) {}
func (noopObserver) PublishFailed()                      {}
func (noopObserver) PayloadDropped()                     {}

// Fanout publishes every payload to each of its publishers in order. One
// failing publisher does not stop the others.
type Fanout []Publisher

var _ Publisher = (Fanout)(nil)

// Publish returns the joined errors of every publisher that failed, each
// tagged with its position.
func (f Fanout) Publish(ctx context.Context, payload []byte) error {
	var failed []error
	for i, p := range f {
		if err := p.Publish(ctx, payload); err != nil {
			failed = append(failed, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(failed...)
}

// Close closes every publisher and returns the joined errors.
func (f Fanout) Close() error {
	var failed []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

// transient marks err as a dropped-and-forgotten delivery failure.
func transient(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errs.ErrPublishTransient)
}
