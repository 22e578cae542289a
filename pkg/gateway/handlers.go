package gateway

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nestor-bot/nestor/pkg/chat"
	"github.com/nestor-bot/nestor/pkg/config"
	"github.com/nestor-bot/nestor/pkg/logger"
	"github.com/nestor-bot/nestor/pkg/pairing"
	"github.com/nestor-bot/nestor/pkg/session"
	"github.com/nestor-bot/nestor/pkg/transport"
)

func (s *Server) dispatch(cli *client, frame transport.Frame) transport.Frame {
	payload, errCode, errMsg := s.handle(cli, frame.Method, frame.Params)
	res := transport.Frame{Type: transport.FrameRes, ID: frame.ID}
	if errCode != "" {
		res.ErrCode = errCode
		res.Error = errMsg
		return res
	}

	res.OK = true
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			res.OK = false
			res.ErrCode = transport.ErrCodeInternal
			res.Error = err.Error()
			return res
		}
		res.Payload = data
	}
	return res
}

func (s *Server) handle(cli *client, method string, params json.RawMessage) (interface{}, string, string) {
	switch method {
	case transport.MethodHealth:
		return map[string]bool{"ok": true}, "", ""
	case transport.MethodChatHistory:
		return s.handleHistory(params)
	case transport.MethodChatSend:
		return s.handleSend(cli, params)
	case transport.MethodChatAbort:
		return s.handleAbort(params)
	case transport.MethodSessionsList:
		return s.handleSessionsList(params)
	case transport.MethodSessionsSetActive:
		return s.handleSetActive(params)
	case transport.MethodPairingList:
		return s.handlePairingList(params)
	case transport.MethodPairingApprove:
		return s.handlePairingAction(params, true)
	case transport.MethodPairingReject:
		return s.handlePairingAction(params, false)
	default:
		return nil, transport.ErrCodeUnsupported, "unknown method " + method
	}
}

func (s *Server) handleHistory(params json.RawMessage) (interface{}, string, string) {
	var p transport.HistoryParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, transport.ErrCodeInvalid, err.Error()
	}
	if err := session.ValidateKey(p.SessionKey); err != nil {
		return nil, transport.ErrCodeInvalid, err.Error()
	}

	sess, err := s.registry.History(p.SessionKey)
	if err != nil {
		return nil, transport.ErrCodeInternal, err.Error()
	}
	return transport.HistoryPayload{
		SessionKey: sess.Key,
		SessionID:  sess.ID,
		Messages:   sess.Messages,
		Thinking:   sess.Thinking,
	}, "", ""
}

func (s *Server) handleSend(cli *client, params json.RawMessage) (interface{}, string, string) {
	var req transport.SendRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, transport.ErrCodeInvalid, err.Error()
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return nil, transport.ErrCodeInvalid, "message is empty and has no attachments"
	}
	if !chat.ValidThinkingLevel(req.Thinking) {
		return nil, transport.ErrCodeInvalid, "unknown thinking level " + string(req.Thinking)
	}
	if err := session.ValidateKey(req.SessionKey); err != nil {
		return nil, transport.ErrCodeInvalid, err.Error()
	}

	// The server is the dedup authority: a retried key inside the
	// window returns the original run instead of starting a new one.
	if resp, ok := s.dedup.lookup(req.SessionKey, req.IdempotencyKey); ok {
		return resp, "", ""
	}

	if !s.limiter.Allow(cli.id) {
		return nil, transport.ErrCodeRateLimited, "too many sends, slow down"
	}

	if req.Thinking != "" {
		if err := s.registry.SetThinking(req.SessionKey, req.Thinking); err != nil {
			return nil, transport.ErrCodeInternal, err.Error()
		}
	}

	msg, err := s.registry.Append(req.SessionKey, chat.RoleUser, req.Text, req.Attachments)
	if err != nil {
		return nil, transport.ErrCodeInternal, err.Error()
	}

	runID := s.runs.begin(req.SessionKey)
	if err := s.runner.StartRun(RunInput{
		SessionKey:  req.SessionKey,
		RunID:       runID,
		Text:        req.Text,
		Thinking:    req.Thinking,
		Attachments: req.Attachments,
	}); err != nil {
		s.runs.finish(runID)
		return nil, transport.ErrCodeInternal, err.Error()
	}

	resp := transport.SendResponse{RunID: runID, Status: chat.RunStatusAccepted}
	s.dedup.store(req.SessionKey, req.IdempotencyKey, resp)

	if data, err := json.Marshal(msg); err == nil {
		s.PublishChat(req.SessionKey, data)
	}

	logger.InfoCF("gateway", "Run accepted", map[string]interface{}{
		"session_key": req.SessionKey,
		"run_id":      runID,
	})
	return resp, "", ""
}

func (s *Server) handleAbort(params json.RawMessage) (interface{}, string, string) {
	var p transport.AbortParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, transport.ErrCodeInvalid, err.Error()
	}

	// Advisory: the run may have settled already, which is not an
	// error from the caller's point of view.
	aborted := s.runs.abort(p.SessionKey, p.RunID)
	return map[string]bool{"aborted": aborted}, "", ""
}

func (s *Server) handleSessionsList(params json.RawMessage) (interface{}, string, string) {
	var p transport.ListParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, transport.ErrCodeInvalid, err.Error()
		}
	}
	return transport.SessionsListResponse{Sessions: s.registry.List(p.Limit)}, "", ""
}

func (s *Server) handleSetActive(params json.RawMessage) (interface{}, string, string) {
	var p transport.SetActiveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, transport.ErrCodeInvalid, err.Error()
	}
	if err := session.ValidateKey(p.SessionKey); err != nil {
		return nil, transport.ErrCodeInvalid, err.Error()
	}
	if err := s.registry.SetActive(p.SessionKey); err != nil {
		return nil, transport.ErrCodeInternal, err.Error()
	}
	return nil, "", ""
}

func (s *Server) handlePairingList(params json.RawMessage) (interface{}, string, string) {
	var p transport.PairingListParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, transport.ErrCodeInvalid, err.Error()
		}
	}

	pending := s.pairings.List(p.Channel)
	entries := make([]transport.PairingEntry, 0, len(pending))
	for _, req := range pending {
		entries = append(entries, transport.PairingEntry{
			Channel:   req.Channel,
			Identity:  req.Identity,
			Code:      req.Code,
			CreatedAt: req.CreatedAt.Format(time.RFC3339),
			ExpiresAt: req.ExpiresAt.Format(time.RFC3339),
		})
	}
	return transport.PairingListResponse{Requests: entries}, "", ""
}

func (s *Server) handlePairingAction(params json.RawMessage, approve bool) (interface{}, string, string) {
	var p transport.PairingActionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, transport.ErrCodeInvalid, err.Error()
	}
	if p.Channel == "" || p.Code == "" {
		return nil, transport.ErrCodeInvalid, "channel and code are required"
	}

	if !approve {
		if err := s.pairings.Reject(p.Channel, p.Code); err != nil {
			return nil, pairingErrCode(err), err.Error()
		}
		logger.InfoCF("gateway", "Pairing rejected", map[string]interface{}{"channel": p.Channel})
		return nil, "", ""
	}

	req, err := s.pairings.Approve(p.Channel, p.Code)
	if err != nil {
		return nil, pairingErrCode(err), err.Error()
	}

	s.cfg.GrantAccess(req.Channel, req.Identity)
	if err := config.SaveConfig(s.configPath, s.cfg); err != nil {
		return nil, transport.ErrCodeInternal, "access granted but config save failed: " + err.Error()
	}

	logger.InfoCF("gateway", "Pairing approved", map[string]interface{}{
		"channel":  req.Channel,
		"identity": req.Identity,
	})
	return map[string]string{"channel": req.Channel, "identity": req.Identity}, "", ""
}

func pairingErrCode(err error) string {
	switch {
	case errors.Is(err, pairing.ErrCodeExpired):
		return transport.ErrCodeExpired
	case errors.Is(err, pairing.ErrUnknownCode):
		return transport.ErrCodeUnknown
	default:
		return transport.ErrCodeInternal
	}
}
