package transport

import (
	"context"
	"sync"
)

type inflightKey struct {
	sessionKey     string
	idempotencyKey string
}

type inflightCall struct {
	done chan struct{}
	resp SendResponse
	err  error
}

// IdempotencyTracker deduplicates concurrent send retries. A second
// call observing an existing in-flight entry for the same
// (sessionKey, idempotencyKey) attaches to that call's result rather
// than issuing a new downstream request. Entries are removed when the
// call settles and never outlive the process; once settled, a
// repeated key goes back downstream where the server applies its own
// dedup window.
type IdempotencyTracker struct {
	mu       sync.Mutex
	inflight map[inflightKey]*inflightCall
}

func NewIdempotencyTracker() *IdempotencyTracker {
	return &IdempotencyTracker{
		inflight: make(map[inflightKey]*inflightCall),
	}
}

// Do runs fn, collapsing concurrent duplicates onto the first call.
// An empty idempotency key disables tracking.
func (t *IdempotencyTracker) Do(ctx context.Context, sessionKey, idempotencyKey string, fn func() (SendResponse, error)) (SendResponse, error) {
	if idempotencyKey == "" {
		return fn()
	}

	key := inflightKey{sessionKey: sessionKey, idempotencyKey: idempotencyKey}

	t.mu.Lock()
	if call, ok := t.inflight[key]; ok {
		t.mu.Unlock()
		select {
		case <-call.done:
			return call.resp, call.err
		case <-ctx.Done():
			return SendResponse{}, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	t.inflight[key] = call
	t.mu.Unlock()

	call.resp, call.err = fn()

	t.mu.Lock()
	delete(t.inflight, key)
	t.mu.Unlock()
	close(call.done)

	return call.resp, call.err
}

// Inflight reports the number of unsettled entries.
func (t *IdempotencyTracker) Inflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}
