package bus

import "github.com/nestor-bot/nestor/pkg/chat"

// InboundMessage travels from a channel adapter or the gateway toward the
// agent engine. RunID is set by the gateway when the message starts a run.
type InboundMessage struct {
	Channel     string            `json:"channel"`
	SenderID    string            `json:"sender_id"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	Attachments []chat.Attachment `json:"attachments,omitempty"`
	SessionKey  string            `json:"session_key"`
	RunID       string            `json:"run_id,omitempty"`
	Thinking    string            `json:"thinking,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage travels from the agent engine back toward a channel or
// the gateway. RunID correlates it with the run that produced it.
type OutboundMessage struct {
	Channel     string            `json:"channel"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	Attachments []chat.Attachment `json:"attachments,omitempty"`
	SessionKey  string            `json:"session_key,omitempty"`
	RunID       string            `json:"run_id,omitempty"`
}
