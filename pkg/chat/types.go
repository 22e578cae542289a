// Package chat holds the shared data model for gateway chat sessions:
// messages, attachments, thinking levels, and run status values.
package chat

import "time"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ThinkingLevel controls how much reasoning effort the agent spends on a run.
type ThinkingLevel string

const (
	ThinkingOff    ThinkingLevel = "off"
	ThinkingLow    ThinkingLevel = "low"
	ThinkingMedium ThinkingLevel = "medium"
	ThinkingHigh   ThinkingLevel = "high"
)

// ValidThinkingLevel reports whether level is one of the known levels.
// The empty string is accepted and treated as ThinkingOff.
func ValidThinkingLevel(level ThinkingLevel) bool {
	switch level {
	case "", ThinkingOff, ThinkingLow, ThinkingMedium, ThinkingHigh:
		return true
	}
	return false
}

// Attachment is a content reference carried alongside a message.
// Ref is either a local path, a URL, or a data URL; Kind is MIME-like
// (e.g. "image/png", "audio/ogg").
type Attachment struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
	Name string `json:"name,omitempty"`
}

// Message is one entry in a session history. Messages are immutable once
// appended; Seq is the monotonic per-session sequence number assigned by
// the registry.
type Message struct {
	ID          string       `json:"id"`
	Seq         uint64       `json:"seq"`
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// RunStatus reports the lifecycle state of an agent run.
type RunStatus string

const (
	RunStatusOK       RunStatus = "ok"
	RunStatusAccepted RunStatus = "accepted"
	RunStatusError    RunStatus = "error"
)

// DefaultSessionKey is used when a caller does not name a session.
const DefaultSessionKey = "main"
