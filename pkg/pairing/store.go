// Package pairing implements the access-pairing flow: an unrecognized
// sender on a channel is parked behind a short human-relayable code until
// the bot owner approves or rejects it.
package pairing

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnknownCode means no pending request carries the given code.
	ErrUnknownCode = errors.New("pairing: unknown code")

	// ErrCodeExpired means the code matched a pending request whose TTL
	// has elapsed. Reported distinctly so the operator knows to ask the
	// sender to message again rather than retype the code.
	ErrCodeExpired = errors.New("pairing: code expired")
)

// codeAlphabet avoids ambiguous characters (0/O, 1/I/L) since codes are
// relayed by humans.
const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 8
)

// Request is a pending access-pairing request.
type Request struct {
	Channel   string    `json:"channel"`
	Identity  string    `json:"identity"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r Request) expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

type identityKey struct {
	channel  string
	identity string
}

type codeKey struct {
	channel string
	code    string
}

// Store tracks pending pairing requests. Expiry is lazy: entries past
// their TTL are treated as absent at read time, no background sweep.
// One Store lives per gateway process; pass it to handlers explicitly.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu         sync.Mutex
	byIdentity map[identityKey]*Request
	byCode     map[codeKey]*Request
	locks      map[identityKey]*sync.Mutex
}

// NewStore creates a pairing store whose codes expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:        ttl,
		now:        time.Now,
		byIdentity: make(map[identityKey]*Request),
		byCode:     make(map[codeKey]*Request),
		locks:      make(map[identityKey]*sync.Mutex),
	}
}

// identityLock serializes operations touching one (channel, identity)
// pair, so concurrent inbound contacts and approvals cannot race the
// single-pending invariant.
func (s *Store) identityLock(key identityKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// UpsertPending records an inbound contact from an unpaired identity.
// While a non-expired request exists its code is reused, so repeated
// messages cannot cycle codes. Returns the request and whether a new
// code was minted.
func (s *Store) UpsertPending(channel, identity string) (Request, bool, error) {
	key := identityKey{channel: channel, identity: identity}
	lock := s.identityLock(key)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()

	s.mu.Lock()
	existing, ok := s.byIdentity[key]
	s.mu.Unlock()

	if ok && !existing.expired(now) {
		return *existing, false, nil
	}

	code, err := generateCode()
	if err != nil {
		return Request{}, false, err
	}

	req := &Request{
		Channel:   channel,
		Identity:  identity,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	if existing != nil {
		delete(s.byCode, codeKey{channel: channel, code: existing.Code})
	}
	s.byIdentity[key] = req
	s.byCode[codeKey{channel: channel, code: code}] = req
	s.mu.Unlock()

	return *req, true, nil
}

// Approve resolves a pending request by (channel, code) and removes it.
// The caller persists the resulting access grant. Approval is looked up
// by code, not identity, so the operator never needs the raw identity
// string.
func (s *Store) Approve(channel, code string) (Request, error) {
	return s.take(channel, code)
}

// Reject removes a pending request by (channel, code) without granting
// access.
func (s *Store) Reject(channel, code string) error {
	_, err := s.take(channel, code)
	return err
}

func (s *Store) take(channel, code string) (Request, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	s.mu.Lock()
	req, ok := s.byCode[codeKey{channel: channel, code: code}]
	s.mu.Unlock()
	if !ok {
		return Request{}, ErrUnknownCode
	}

	key := identityKey{channel: req.Channel, identity: req.Identity}
	lock := s.identityLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the identity lock; a concurrent approval may have
	// consumed the entry.
	req, ok = s.byCode[codeKey{channel: channel, code: code}]
	if !ok {
		return Request{}, ErrUnknownCode
	}

	delete(s.byCode, codeKey{channel: channel, code: code})
	delete(s.byIdentity, key)
	delete(s.locks, key)

	if req.expired(s.now()) {
		return Request{}, ErrCodeExpired
	}
	return *req, nil
}

// List returns the pending requests for a channel (all channels when
// empty), pruning expired entries as it reads.
func (s *Store) List(channel string) []Request {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Request, 0, len(s.byIdentity))
	for key, req := range s.byIdentity {
		if req.expired(now) {
			delete(s.byIdentity, key)
			delete(s.byCode, codeKey{channel: req.Channel, code: req.Code})
			delete(s.locks, key)
			continue
		}
		if channel != "" && req.Channel != channel {
			continue
		}
		out = append(out, *req)
	}
	return out
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
