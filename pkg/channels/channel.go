// Package channels hosts the messaging-platform adapter layer.
// Concrete adapters register factories; the layer itself handles
// allow-lists, pairing interception, and outbound dispatch.
package channels

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nestor-bot/nestor/pkg/bus"
	"github.com/nestor-bot/nestor/pkg/chat"
	"github.com/nestor-bot/nestor/pkg/logger"
	"github.com/nestor-bot/nestor/pkg/pairing"
	"github.com/nestor-bot/nestor/pkg/ratelimit"
)

// Channel is one platform adapter.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// MessageLengthProvider is implemented by adapters whose platform caps
// outbound message length; longer messages are split at dispatch.
type MessageLengthProvider interface {
	MaxMessageLength() int
}

// BaseChannel carries the behavior every adapter shares: allow-list
// checks, pairing interception for unknown senders, and inbound
// publishing.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowList []string
	pairings  *pairing.Store
	limiter   *ratelimit.Limiter
	running   atomic.Bool
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string, pairings *pairing.Store) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
		pairings:  pairings,
	}
}

func (c *BaseChannel) Name() string { return c.name }

// SetRateLimiter installs the inbound rate limiter. Must be called
// before the channel starts; nil disables the check.
func (c *BaseChannel) SetRateLimiter(l *ratelimit.Limiter) { c.limiter = l }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

func (c *BaseChannel) setRunning(running bool) { c.running.Store(running) }

// IsAllowed checks the sender against the allow-list. Senders may be
// compound "id|username" strings; an entry matches either part, and a
// legacy compound entry matches its id part. "*" opens the channel.
// An empty list denies everyone, which is what routes new identities
// into the pairing flow.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	senderParts := strings.SplitN(senderID, "|", 2)
	for _, entry := range c.allowList {
		if entry == "*" || entry == senderID {
			return true
		}
		entryID := strings.SplitN(entry, "|", 2)[0]
		if entryID == senderID || entryID == senderParts[0] {
			return true
		}
		for _, part := range senderParts {
			if entry == part || entry == "@"+part {
				return true
			}
		}
	}
	return false
}

// HandleMessage is the single inbound entry point for adapters. An
// unknown sender never reaches the bus: it gets a pairing code and
// the fixed reply template instead.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, attachments []chat.Attachment, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		c.interceptUnpaired(senderID, chatID)
		return
	}

	if c.limiter != nil && !c.limiter.Allow(c.name+":"+senderID) {
		logger.WarnCF(c.name, "Rate limit exceeded, dropping inbound message", map[string]interface{}{
			"sender_id": senderID,
		})
		return
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:     c.name,
		SenderID:    senderID,
		ChatID:      chatID,
		Content:     content,
		Attachments: attachments,
		SessionKey:  fmt.Sprintf("%s:%s", c.name, chatID),
		Metadata:    metadata,
	})
}

// interceptUnpaired upserts a pending pairing request and replies with
// the fixed template. The reply is identical regardless of why access
// was missing.
func (c *BaseChannel) interceptUnpaired(senderID, chatID string) {
	req, created, err := c.pairings.UpsertPending(c.name, senderID)
	if err != nil {
		logger.ErrorCF(c.name, "Pairing upsert failed", map[string]interface{}{
			"sender_id": senderID,
			"error":     err.Error(),
		})
		return
	}

	if created {
		logger.InfoCF(c.name, "Pairing code issued", map[string]interface{}{
			"sender_id": senderID,
		})
	}

	idLine := fmt.Sprintf("%s id: %s", capitalize(c.name), senderID)
	c.bus.PublishOutbound(bus.OutboundMessage{
		Channel: c.name,
		ChatID:  chatID,
		Content: pairing.BuildReply(c.name, idLine, req.Code),
	})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
