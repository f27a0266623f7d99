// SPDX-License-Identifier: MIT

// Package udp publishes payloads as UDP datagrams, one datagram per payload.
package udp

import (
	"context"
	"fmt"
	"sync/atomic"

	"spectrum/internal/errs"
)

// MaxPayload is the largest payload that fits one IPv4 UDP datagram.
const MaxPayload = 65507

// Publisher sends each payload unchanged as one datagram.
type Publisher struct {
	sender      *Sender
	sequenceNum atomic.Uint32 // Count of datagrams sent, for debug logging.
}

// NewPublisher creates a Publisher for targetAddress.
func NewPublisher(targetAddress string) (*Publisher, error) {
	sender, err := NewSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return &Publisher{sender: sender}, nil
}

// Publish sends payload. The context is only checked before sending; a
// datagram write does not block.
func (p *Publisher) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("udp: %w: %w", errs.ErrPublishTransient, err)
	}
	if len(payload) > MaxPayload {
		return fmt.Errorf("udp: payload of %d bytes exceeds %d: %w", len(payload), MaxPayload, errs.ErrPublishTransient)
	}
	if err := p.sender.Send(payload); err != nil {
		return err
	}
	seq := p.sequenceNum.Add(1)
	logger.Debugf("sent packet %d (%d bytes)", seq, len(payload))
	return nil
}

// Close closes the underlying socket.
func (p *Publisher) Close() error {
	logger.Debugf("close called, closing sender")
	return p.sender.Close()
}
