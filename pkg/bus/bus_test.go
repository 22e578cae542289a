package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishConsumeRoundTrip(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	mb.PublishInbound(InboundMessage{Channel: "discord", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	if !ok || msg.Channel != "discord" || msg.Content != "hi" {
		t.Fatalf("ConsumeInbound = %+v, ok=%v", msg, ok)
	}
}

func TestCloseReleasesBlockedPublishers(t *testing.T) {
	mb := NewMessageBus()

	// Fill the outbound queue with nothing draining it, then block a
	// publisher behind it.
	for i := 0; i < defaultQueueSize; i++ {
		mb.PublishOutbound(OutboundMessage{Channel: "discord"})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mb.PublishOutbound(OutboundMessage{Channel: "discord"})
	}()

	closed := make(chan struct{})
	go func() {
		mb.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind a full queue")
	}

	released := make(chan struct{})
	go func() {
		wg.Wait()
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher stayed blocked after Close")
	}
}

func TestClosedBusDropsPublishesAndFailsReads(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close()

	// Neither direction may block or panic after close.
	mb.PublishInbound(InboundMessage{Content: "late"})
	mb.PublishOutbound(OutboundMessage{Content: "late"})

	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatal("inbound read succeeded on a closed bus")
	}
	if _, ok := mb.SubscribeOutbound(context.Background()); ok {
		t.Fatal("outbound read succeeded on a closed bus")
	}
}

func TestConsumeInboundHonorsContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatal("read succeeded on an empty bus")
	}
}
