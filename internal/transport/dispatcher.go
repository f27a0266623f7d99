// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"spectrum/internal/errs"
	applog "spectrum/internal/log"
)

// DefaultPublishTimeout bounds a single Publish call.
const DefaultPublishTimeout = time.Second

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	PublishTimeout time.Duration // Defaults to DefaultPublishTimeout.
	Observer       Observer      // Optional.
}

// DispatcherStats is a snapshot of the dispatcher counters.
type DispatcherStats struct {
	Submitted uint64
	Published uint64
	Failed    uint64
	Dropped   uint64
}

// Dispatcher hands payloads from the scheduler to a Publisher without making
// the scheduler wait. It holds at most one pending payload: a newer payload
// replaces an unsent older one, and the replaced payload is counted as
// dropped. A single goroutine, managed by Start and Stop, publishes.
//
// Submit must be called from one goroutine at a time.
type Dispatcher struct {
	publisher Publisher
	timeout   time.Duration
	observer  Observer
	logger    *applog.Logger

	mailbox chan []byte

	cancel   context.CancelFunc
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publish goroutine to finish during Stop.
	mu       sync.Mutex     // Protects cancel and running during Start/Stop.
	running  bool

	submitted atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher creates a stopped Dispatcher for publisher.
func NewDispatcher(publisher Publisher, opts DispatcherOptions) (*Dispatcher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("dispatcher: publisher cannot be nil: %w", errs.ErrConfigInvalid)
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	return &Dispatcher{
		publisher: publisher,
		timeout:   opts.PublishTimeout,
		observer:  opts.Observer,
		logger:    applog.Named("dispatcher"),
		mailbox:   make(chan []byte, 1),
	}, nil
}

// Submit queues payload for publishing and returns immediately. The payload
// must not be modified afterwards.
//
// Performance Critical (Hot Path):
//   - Never blocks, no allocations
func (d *Dispatcher) Submit(payload []byte) {
	d.submitted.Add(1)
	select {
	case d.mailbox <- payload:
		return
	default:
	}
	// Mailbox full: replace the stale payload with the newer one.
	select {
	case <-d.mailbox:
		d.drop()
	default:
	}
	select {
	case d.mailbox <- payload:
	default:
		d.drop()
	}
}

func (d *Dispatcher) drop() {
	d.dropped.Add(1)
	d.observer.PayloadDropped()
}

// Start launches the publish goroutine. It is safe to call Start multiple
// times; subsequent calls are no-ops while running.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		d.logger.Warnf("start called but already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true
	d.stopOnce = sync.Once{}
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.logger.Debugf("publish goroutine started (timeout %s)", d.timeout)
		for {
			select {
			case payload := <-d.mailbox:
				d.publish(ctx, payload)
			case <-ctx.Done():
				d.logger.Debugf("publish goroutine received stop signal")
				return
			}
		}
	}()
}

func (d *Dispatcher) publish(ctx context.Context, payload []byte) {
	pctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.publisher.Publish(pctx, payload)
	if err != nil {
		d.failed.Add(1)
		d.observer.PublishFailed()
		if !errors.Is(err, errs.ErrPublishTransient) {
			err = fmt.Errorf("%w: %w", errs.ErrPublishTransient, err)
		}
		d.logger.Warnf("payload dropped: %v", err)
		return
	}
	d.published.Add(1)
	d.observer.PayloadPublished(len(payload), time.Since(start))
}

// Stop signals the publish goroutine to exit and waits for it. An in-flight
// publish is cancelled; a pending payload is discarded. It is safe to call
// Stop multiple times.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.stopOnce.Do(func() {
		d.cancel()
		d.running = false
	})
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Debugf("publish goroutine finished")
	return nil
}

// Close stops the dispatcher and closes its publisher.
func (d *Dispatcher) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	return d.publisher.Close()
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Submitted: d.submitted.Load(),
		Published: d.published.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}
