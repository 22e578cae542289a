// Package transport implements the session protocol between a
// front-end and the gateway: request/response calls plus a multiplexed
// event stream with sequence tracking and gap recovery.
package transport

import (
	"context"
	"time"
)

// Transport is the capability set a front-end programs against.
// RequestHistory, SendMessage, RequestHealth, and Events are required;
// AbortRun, ListSessions, and SetActiveSessionKey are optional and a
// transport lacking them must fail with a CapabilityError rather than
// a generic failure. Embed BaseTransport to get the documented
// defaults for the optional members.
type Transport interface {
	// RequestHistory replays the full state of a session. Side
	// effect free beyond lazy session creation; the mandated
	// recovery action after a seqGap event.
	RequestHistory(ctx context.Context, sessionKey string) (HistoryPayload, error)

	// SendMessage starts an agent run. Concurrent calls sharing the
	// same (sessionKey, idempotencyKey) attach to the first call's
	// in-flight result instead of issuing a second request.
	SendMessage(ctx context.Context, req SendRequest) (SendResponse, error)

	// RequestHealth reports gateway liveness. Never blocks past
	// timeout; a timeout reads as false, not an error.
	RequestHealth(ctx context.Context, timeout time.Duration) bool

	// Events returns the single event subscription for this
	// transport. Per-session ordering follows the server; cross
	// session interleaving is unspecified. The channel closes only
	// when the transport is closed.
	Events() <-chan Event

	// AbortRun asks the server to stop a run. Advisory. Optional
	// capability.
	AbortRun(ctx context.Context, sessionKey, runID string) error

	// ListSessions lists known sessions. Optional capability.
	ListSessions(ctx context.Context, limit int) (SessionsListResponse, error)

	// SetActiveSessionKey switches the default target session.
	// Idempotent. Optional capability; the default is a no-op
	// success, not an error.
	SetActiveSessionKey(ctx context.Context, sessionKey string) error

	Close() error
}

// BaseTransport supplies the documented defaults for the optional
// capabilities. Concrete transports embed it and override what they
// support.
type BaseTransport struct{}

func (BaseTransport) AbortRun(ctx context.Context, sessionKey, runID string) error {
	return &CapabilityError{Capability: MethodChatAbort}
}

func (BaseTransport) ListSessions(ctx context.Context, limit int) (SessionsListResponse, error) {
	return SessionsListResponse{}, &CapabilityError{Capability: MethodSessionsList}
}

func (BaseTransport) SetActiveSessionKey(ctx context.Context, sessionKey string) error {
	return nil
}
