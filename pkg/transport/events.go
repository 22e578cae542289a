package transport

// seqTracker watches the per-connection event sequence and detects
// discontinuities. The server numbers events from 1; a skip means
// frames were lost and the consumer's local state is stale.
type seqTracker struct {
	next uint64
}

func newSeqTracker() *seqTracker {
	return &seqTracker{next: 1}
}

// observe records an incoming sequence number and reports whether a
// gap precedes it. Duplicates and rewinds are not gaps; tracking
// resumes from the observed value either way.
func (t *seqTracker) observe(seq uint64) bool {
	gap := seq > t.next
	t.next = seq + 1
	return gap
}

// reset rewinds expectations to a fresh connection. The caller is
// responsible for signaling the discontinuity itself; the sequence on
// the new connection restarts from 1.
func (t *seqTracker) reset() {
	t.next = 1
}
