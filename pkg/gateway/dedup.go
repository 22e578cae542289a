package gateway

import (
	"sync"
	"time"

	"github.com/nestor-bot/nestor/pkg/transport"
)

type dedupKey struct {
	sessionKey     string
	idempotencyKey string
}

type dedupEntry struct {
	resp    transport.SendResponse
	expires time.Time
}

// dedupWindow is the server-side idempotency authority: a retried
// (sessionKey, idempotencyKey) within the window returns the original
// accepted run instead of starting a duplicate. Expiry is lazy, at
// lookup and store time.
type dedupWindow struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[dedupKey]dedupEntry
	now     func() time.Time
}

func newDedupWindow(window time.Duration) *dedupWindow {
	return &dedupWindow{
		window:  window,
		entries: make(map[dedupKey]dedupEntry),
		now:     time.Now,
	}
}

func (d *dedupWindow) lookup(sessionKey, idempotencyKey string) (transport.SendResponse, bool) {
	if idempotencyKey == "" || d.window <= 0 {
		return transport.SendResponse{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey{sessionKey: sessionKey, idempotencyKey: idempotencyKey}
	entry, ok := d.entries[key]
	if !ok {
		return transport.SendResponse{}, false
	}
	if d.now().After(entry.expires) {
		delete(d.entries, key)
		return transport.SendResponse{}, false
	}
	return entry.resp, true
}

func (d *dedupWindow) store(sessionKey, idempotencyKey string, resp transport.SendResponse) {
	if idempotencyKey == "" || d.window <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, entry := range d.entries {
		if now.After(entry.expires) {
			delete(d.entries, key)
		}
	}
	d.entries[dedupKey{sessionKey: sessionKey, idempotencyKey: idempotencyKey}] = dedupEntry{
		resp:    resp,
		expires: now.Add(d.window),
	}
}
