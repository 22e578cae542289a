// Package bus is the in-process message bus between channel adapters,
// the gateway, and the agent engine. It is the boundary the agent engine
// plugs into; the gateway never calls the engine directly.
package bus

import (
	"context"
	"sync"
)

const defaultQueueSize = 100

type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	done     chan struct{}
	once     sync.Once
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultQueueSize),
		outbound: make(chan OutboundMessage, defaultQueueSize),
		done:     make(chan struct{}),
	}
}

// PublishInbound queues msg for the agent engine. It blocks while the
// queue is full and becomes a no-op once the bus closes, so a stalled
// publisher can never wedge shutdown.
func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case <-mb.done:
		return
	default:
	}
	select {
	case mb.inbound <- msg:
	case <-mb.done:
	}
}

// ConsumeInbound returns the next inbound message and whether the read
// succeeded. The bool is false when the context is cancelled or the bus
// is closed.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-mb.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-mb.done:
		return InboundMessage{}, false
	}
}

// PublishOutbound queues msg for a channel adapter or the gateway. Same
// blocking and close semantics as PublishInbound.
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case <-mb.done:
		return
	default:
	}
	select {
	case mb.outbound <- msg:
	case <-mb.done:
	}
}

// SubscribeOutbound returns the next outbound message and whether the
// read succeeded. The bool is false when the context is cancelled or the
// bus is closed.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-mb.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	case <-mb.done:
		return OutboundMessage{}, false
	}
}

// Close releases every blocked publisher and consumer. Idempotent. The
// queue channels stay open so a racing send can never panic.
func (mb *MessageBus) Close() {
	mb.once.Do(func() { close(mb.done) })
}
