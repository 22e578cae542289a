package transport

import "encoding/json"

// Wire protocol between front-ends and the gateway: JSON frames over a
// WebSocket. Requests carry a client-assigned ID echoed by the
// response; events carry a per-connection monotonic sequence starting
// at 1.

const (
	FrameReq   = "req"
	FrameRes   = "res"
	FrameEvent = "event"
)

// Methods understood by the gateway.
const (
	MethodChatHistory       = "chat.history"
	MethodChatSend          = "chat.send"
	MethodChatAbort         = "chat.abort"
	MethodSessionsList      = "sessions.list"
	MethodSessionsSetActive = "sessions.setActive"
	MethodHealth            = "health"
	MethodPairingList       = "pairing.list"
	MethodPairingApprove    = "pairing.approve"
	MethodPairingReject     = "pairing.reject"
)

// Error codes carried on failed responses.
const (
	ErrCodeInvalid     = "invalid"
	ErrCodeUnsupported = "unsupported"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeUnknown     = "unknown_code"
	ErrCodeExpired     = "code_expired"
	ErrCodeInternal    = "internal"
)

// Frame is the single wire envelope for requests, responses, and
// events.
type Frame struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ErrCode string          `json:"error_code,omitempty"`
	Error   string          `json:"error,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Event   *Event          `json:"event,omitempty"`
}

// HistoryParams selects the session to replay.
type HistoryParams struct {
	SessionKey string `json:"session_key"`
}

// AbortParams names the run to stop. Advisory; the run may have
// already completed.
type AbortParams struct {
	SessionKey string `json:"session_key"`
	RunID      string `json:"run_id"`
}

// ListParams bounds a sessions.list call. Limit 0 means no limit.
type ListParams struct {
	Limit int `json:"limit,omitempty"`
}

// SetActiveParams switches the gateway's active session.
type SetActiveParams struct {
	SessionKey string `json:"session_key"`
}

// PairingActionParams approves or rejects a pending code.
type PairingActionParams struct {
	Channel string `json:"channel"`
	Code    string `json:"code"`
}

// PairingListParams filters pairing.list by channel. Empty means all.
type PairingListParams struct {
	Channel string `json:"channel,omitempty"`
}
