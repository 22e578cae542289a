package session

import (
	"reflect"
	"testing"

	"github.com/nestor-bot/nestor/pkg/chat"
)

func TestGetOrCreateAssignsDurableID(t *testing.T) {
	r := NewRegistry("")

	first, err := r.GetOrCreate("main")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == "" {
		t.Fatal("session created without ID")
	}

	second, err := r.GetOrCreate("main")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("session ID changed: %q vs %q", second.ID, first.ID)
	}
}

func TestHistoryIsIdempotent(t *testing.T) {
	r := NewRegistry("")

	if _, err := r.Append("main", chat.RoleUser, "hello", nil); err != nil {
		t.Fatal(err)
	}

	first, err := r.History("main")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.History("main")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("history payloads differ with no intervening writes:\n%+v\n%+v", first, second)
	}
}

func TestAppendAssignsMonotonicSeq(t *testing.T) {
	r := NewRegistry("")

	for i := 0; i < 3; i++ {
		if _, err := r.Append("main", chat.RoleUser, "msg", nil); err != nil {
			t.Fatal(err)
		}
	}

	sess, err := r.History("main")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages) != 3 {
		t.Fatalf("message count = %d", len(sess.Messages))
	}
	for i, msg := range sess.Messages {
		if msg.Seq != uint64(i) {
			t.Fatalf("message %d has seq %d", i, msg.Seq)
		}
		if msg.ID == "" {
			t.Fatalf("message %d has no ID", i)
		}
	}
}

func TestSetActiveIsIdempotent(t *testing.T) {
	r := NewRegistry("")

	if got := r.ActiveKey(); got != chat.DefaultSessionKey {
		t.Fatalf("initial active = %q", got)
	}

	if err := r.SetActive("work"); err != nil {
		t.Fatal(err)
	}
	if err := r.SetActive("work"); err != nil {
		t.Fatal(err)
	}
	if got := r.ActiveKey(); got != "work" {
		t.Fatalf("active = %q, want work", got)
	}
}

func TestListOrdersAndMarksActive(t *testing.T) {
	r := NewRegistry("")

	if _, err := r.Append("old", chat.RoleUser, "a", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Append("new", chat.RoleUser, "b", nil); err != nil {
		t.Fatal(err)
	}
	if err := r.SetActive("new"); err != nil {
		t.Fatal(err)
	}

	metas := r.List(0)
	if len(metas) != 2 {
		t.Fatalf("List returned %d sessions", len(metas))
	}
	if metas[0].SessionKey != "new" || !metas[0].Active {
		t.Fatalf("newest-first ordering broken: %+v", metas)
	}

	if got := r.List(1); len(got) != 1 {
		t.Fatalf("limit ignored: %v", got)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	r := NewRegistry(dir)
	if _, err := r.Append("discord:123", chat.RoleUser, "hello", []chat.Attachment{{Kind: "image/png", Ref: "/tmp/a.png"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Append("discord:123", chat.RoleAssistant, "hi there", nil); err != nil {
		t.Fatal(err)
	}
	if err := r.SetThinking("discord:123", chat.ThinkingHigh); err != nil {
		t.Fatal(err)
	}
	if err := r.SetActive("discord:123"); err != nil {
		t.Fatal(err)
	}
	before, err := r.History("discord:123")
	if err != nil {
		t.Fatal(err)
	}

	reloaded := NewRegistry(dir)
	after, err := reloaded.History("discord:123")
	if err != nil {
		t.Fatal(err)
	}

	if after.ID != before.ID {
		t.Fatalf("session ID not durable: %q vs %q", after.ID, before.ID)
	}
	if after.Thinking != chat.ThinkingHigh {
		t.Fatalf("thinking level lost: %q", after.Thinking)
	}
	if len(after.Messages) != 2 {
		t.Fatalf("messages lost: %d", len(after.Messages))
	}
	if reloaded.ActiveKey() != "discord:123" {
		t.Fatalf("active key lost: %q", reloaded.ActiveKey())
	}

	// A further append continues the sequence rather than restarting it.
	msg, err := reloaded.Append("discord:123", chat.RoleUser, "again", nil)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Seq != 2 {
		t.Fatalf("seq after reload = %d, want 2", msg.Seq)
	}
}

func TestValidateKey(t *testing.T) {
	if err := ValidateKey("discord:123"); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
	if err := ValidateKey("../escape"); err == nil {
		t.Fatal("path-escaping key accepted")
	}
}
