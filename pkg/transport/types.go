package transport

import (
	"encoding/json"

	"github.com/nestor-bot/nestor/pkg/chat"
	"github.com/nestor-bot/nestor/pkg/session"
)

// EventType tags the members of the event union.
type EventType string

const (
	EventHealth EventType = "health"
	EventTick   EventType = "tick"
	EventChat   EventType = "chat"
	EventAgent  EventType = "agent"
	EventSeqGap EventType = "seqGap"
)

// Event is one entry of the multiplexed stream. Health events carry OK;
// chat events are bound to a session key, agent events to a run ID.
// SeqGap events are synthesized locally and never arrive from the wire.
type Event struct {
	Type       EventType       `json:"type"`
	OK         bool            `json:"ok,omitempty"`
	SessionKey string          `json:"session_key,omitempty"`
	RunID      string          `json:"run_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// HistoryPayload is the full replayable state of one session.
type HistoryPayload struct {
	SessionKey string             `json:"session_key"`
	SessionID  string             `json:"session_id,omitempty"`
	Messages   []chat.Message     `json:"messages"`
	Thinking   chat.ThinkingLevel `json:"thinking_level"`
}

// SendRequest starts an agent run. IdempotencyKey is caller-supplied
// and must be unique per logical user intent.
type SendRequest struct {
	SessionKey     string             `json:"session_key"`
	Text           string             `json:"text"`
	Thinking       chat.ThinkingLevel `json:"thinking,omitempty"`
	IdempotencyKey string             `json:"idempotency_key"`
	Attachments    []chat.Attachment  `json:"attachments,omitempty"`
}

// SendResponse acknowledges an accepted run.
type SendResponse struct {
	RunID  string         `json:"run_id"`
	Status chat.RunStatus `json:"status"`
}

// SessionsListResponse lists known sessions, most recently updated
// first.
type SessionsListResponse struct {
	Sessions []session.Meta `json:"sessions"`
}

// PairingEntry is one pending pairing request as reported to operators.
type PairingEntry struct {
	Channel   string `json:"channel"`
	Identity  string `json:"identity"`
	Code      string `json:"code"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// PairingListResponse lists pending pairing requests.
type PairingListResponse struct {
	Requests []PairingEntry `json:"requests"`
}
