package channels

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nestor-bot/nestor/pkg/bus"
	"github.com/nestor-bot/nestor/pkg/chat"
	"github.com/nestor-bot/nestor/pkg/pairing"
	"github.com/nestor-bot/nestor/pkg/ratelimit"
)

func TestBaseChannelIsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		senderID  string
		want      bool
	}{
		{
			name:      "empty allowlist denies everyone",
			allowList: nil,
			senderID:  "anyone",
			want:      false,
		},
		{
			name:      "wildcard opens the channel",
			allowList: []string{"*"},
			senderID:  "anyone",
			want:      true,
		},
		{
			name:      "exact match",
			allowList: []string{"123456"},
			senderID:  "123456",
			want:      true,
		},
		{
			name:      "compound sender matches numeric allowlist",
			allowList: []string{"123456"},
			senderID:  "123456|alice",
			want:      true,
		},
		{
			name:      "compound sender matches username allowlist",
			allowList: []string{"@alice"},
			senderID:  "123456|alice",
			want:      true,
		},
		{
			name:      "numeric sender matches legacy compound allowlist",
			allowList: []string{"123456|alice"},
			senderID:  "123456",
			want:      true,
		},
		{
			name:      "non matching sender is denied",
			allowList: []string{"123456"},
			senderID:  "654321|bob",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := NewBaseChannel("test", nil, tt.allowList, nil)
			if got := ch.IsAllowed(tt.senderID); got != tt.want {
				t.Fatalf("IsAllowed(%q) = %v, want %v", tt.senderID, got, tt.want)
			}
		})
	}
}

func TestHandleMessagePublishesAllowedSender(t *testing.T) {
	msgBus := bus.NewMessageBus()
	defer msgBus.Close()
	ch := NewBaseChannel("discord", msgBus, []string{"allowed"}, pairing.NewStore(time.Hour))

	ch.HandleMessage("allowed", "chat-1", "hi there", []chat.Attachment{{Kind: "image/png", Ref: "r1"}}, map[string]string{"k": "v"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected allowed sender message on the bus")
	}
	if msg.Channel != "discord" || msg.SenderID != "allowed" || msg.Content != "hi there" {
		t.Fatalf("unexpected inbound message: %+v", msg)
	}
	if msg.SessionKey != "discord:chat-1" {
		t.Fatalf("session key = %q", msg.SessionKey)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Ref != "r1" {
		t.Fatalf("attachments lost: %+v", msg.Attachments)
	}
	if msg.Metadata["k"] != "v" {
		t.Fatalf("metadata lost: %+v", msg.Metadata)
	}
}

func TestHandleMessageInterceptsUnpairedSender(t *testing.T) {
	msgBus := bus.NewMessageBus()
	defer msgBus.Close()
	store := pairing.NewStore(time.Hour)
	ch := NewBaseChannel("discord", msgBus, []string{"someone-else"}, store)

	ch.HandleMessage("user#1234", "chat-1", "let me in", nil, nil)

	// Nothing reaches the agent.
	inCtx, inCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer inCancel()
	if msg, ok := msgBus.ConsumeInbound(inCtx); ok {
		t.Fatalf("unpaired sender reached the bus: %+v", msg)
	}

	// The sender gets the fixed pairing reply instead.
	outCtx, outCancel := context.WithTimeout(context.Background(), time.Second)
	defer outCancel()
	reply, ok := msgBus.SubscribeOutbound(outCtx)
	if !ok {
		t.Fatal("expected a pairing reply")
	}
	if reply.Channel != "discord" || reply.ChatID != "chat-1" {
		t.Fatalf("reply misrouted: %+v", reply)
	}

	pending := store.List("discord")
	if len(pending) != 1 || pending[0].Identity != "user#1234" {
		t.Fatalf("pending requests = %+v", pending)
	}
	code := pending[0].Code
	if !strings.Contains(reply.Content, "Pairing code: "+code) {
		t.Fatalf("reply does not carry the code:\n%s", reply.Content)
	}
	if !strings.Contains(reply.Content, "Discord id: user#1234") {
		t.Fatalf("reply does not carry the identity line:\n%s", reply.Content)
	}
	if !strings.Contains(reply.Content, "nestor pairing approve discord "+code) {
		t.Fatalf("reply does not carry the approve command:\n%s", reply.Content)
	}

	// A repeat contact reuses the code rather than minting a new one.
	ch.HandleMessage("user#1234", "chat-1", "hello?", nil, nil)
	again, ok := msgBus.SubscribeOutbound(outCtx)
	if !ok {
		t.Fatal("expected a second pairing reply")
	}
	if !strings.Contains(again.Content, "Pairing code: "+code) {
		t.Fatal("repeat contact changed the pairing code")
	}
}

func TestHandleMessageDropsOverBudgetSender(t *testing.T) {
	msgBus := bus.NewMessageBus()
	defer msgBus.Close()
	ch := NewBaseChannel("discord", msgBus, []string{"allowed"}, pairing.NewStore(time.Hour))
	ch.SetRateLimiter(ratelimit.NewLimiter(1))

	ch.HandleMessage("allowed", "chat-1", "first", nil, nil)
	ch.HandleMessage("allowed", "chat-1", "second", nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok || msg.Content != "first" {
		t.Fatalf("first message missing: %+v, ok=%v", msg, ok)
	}

	overCtx, overCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer overCancel()
	if msg, ok := msgBus.ConsumeInbound(overCtx); ok {
		t.Fatalf("over-budget message reached the bus: %+v", msg)
	}
}
