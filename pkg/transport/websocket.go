package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nestor-bot/nestor/pkg/chat"
	"github.com/nestor-bot/nestor/pkg/logger"
	"github.com/nestor-bot/nestor/pkg/pairing"
	"github.com/nestor-bot/nestor/pkg/session"
)

const (
	reconnectMinDelay = 500 * time.Millisecond
	reconnectMaxDelay = 15 * time.Second
	eventBuffer       = 64
)

// WebSocketTransport speaks the gateway wire protocol over a single
// WebSocket connection. Request/response calls are correlated by
// frame ID and may be issued concurrently with event-stream
// consumption. The event pump reconnects on its own: a drop emits
// health(false), recovery emits health(true) followed by one
// synthetic seqGap, because the server's event sequence restarts per
// connection and any frames produced while disconnected are gone.
type WebSocketTransport struct {
	url    string
	apiKey string

	writeMu sync.Mutex
	connMu  sync.RWMutex
	conn    *websocket.Conn

	nextID  atomic.Uint64
	pendMu  sync.Mutex
	pending map[uint64]chan Frame

	tracker *IdempotencyTracker
	seq     *seqTracker
	events  chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Transport = (*WebSocketTransport)(nil)

// Dial connects to the gateway and starts the event pump.
func Dial(ctx context.Context, rawURL, apiKey string) (*WebSocketTransport, error) {
	conn, err := dialConn(ctx, rawURL, apiKey)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t := &WebSocketTransport{
		url:     rawURL,
		apiKey:  apiKey,
		conn:    conn,
		pending: make(map[uint64]chan Frame),
		tracker: NewIdempotencyTracker(),
		seq:     newSeqTracker(),
		events:  make(chan Event, eventBuffer),
		ctx:     runCtx,
		cancel:  cancel,
	}

	t.wg.Add(1)
	go t.readLoop()

	return t, nil
}

func dialConn(ctx context.Context, rawURL, apiKey string) (*websocket.Conn, error) {
	header := http.Header{}
	if apiKey != "" {
		header.Set("Authorization", "Bearer "+apiKey)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// Events returns the single event subscription for this transport.
func (t *WebSocketTransport) Events() <-chan Event {
	return t.events
}

// RequestHistory replays the named session's state.
func (t *WebSocketTransport) RequestHistory(ctx context.Context, sessionKey string) (HistoryPayload, error) {
	if err := session.ValidateKey(sessionKey); err != nil {
		return HistoryPayload{}, &ValidationError{Reason: err.Error()}
	}

	var payload HistoryPayload
	if err := t.call(ctx, MethodChatHistory, HistoryParams{SessionKey: sessionKey}, &payload); err != nil {
		return HistoryPayload{}, err
	}
	return payload, nil
}

// SendMessage starts a run. Validation happens before any network IO;
// concurrent retries sharing an idempotency key collapse onto the
// first in-flight call.
func (t *WebSocketTransport) SendMessage(ctx context.Context, req SendRequest) (SendResponse, error) {
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return SendResponse{}, &ValidationError{Reason: "message is empty and has no attachments"}
	}
	if !chat.ValidThinkingLevel(req.Thinking) {
		return SendResponse{}, &ValidationError{Reason: "unknown thinking level " + string(req.Thinking)}
	}
	if err := session.ValidateKey(req.SessionKey); err != nil {
		return SendResponse{}, &ValidationError{Reason: err.Error()}
	}

	return t.tracker.Do(ctx, req.SessionKey, req.IdempotencyKey, func() (SendResponse, error) {
		var resp SendResponse
		if err := t.call(ctx, MethodChatSend, req, &resp); err != nil {
			return SendResponse{}, err
		}
		return resp, nil
	})
}

// AbortRun asks the server to stop a run. Advisory.
func (t *WebSocketTransport) AbortRun(ctx context.Context, sessionKey, runID string) error {
	return t.call(ctx, MethodChatAbort, AbortParams{SessionKey: sessionKey, RunID: runID}, nil)
}

// ListSessions lists known sessions, most recently updated first.
func (t *WebSocketTransport) ListSessions(ctx context.Context, limit int) (SessionsListResponse, error) {
	var resp SessionsListResponse
	if err := t.call(ctx, MethodSessionsList, ListParams{Limit: limit}, &resp); err != nil {
		return SessionsListResponse{}, err
	}
	return resp, nil
}

// SetActiveSessionKey switches the gateway's active session.
func (t *WebSocketTransport) SetActiveSessionKey(ctx context.Context, sessionKey string) error {
	if err := session.ValidateKey(sessionKey); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	return t.call(ctx, MethodSessionsSetActive, SetActiveParams{SessionKey: sessionKey}, nil)
}

// RequestHealth reports gateway liveness. A timeout or any failure
// reads as false.
func (t *WebSocketTransport) RequestHealth(ctx context.Context, timeout time.Duration) bool {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.call(callCtx, MethodHealth, nil, nil) == nil
}

// PairingList returns pending pairing requests, optionally filtered
// by channel.
func (t *WebSocketTransport) PairingList(ctx context.Context, channel string) (PairingListResponse, error) {
	var resp PairingListResponse
	if err := t.call(ctx, MethodPairingList, PairingListParams{Channel: channel}, &resp); err != nil {
		return PairingListResponse{}, err
	}
	return resp, nil
}

// PairingApprove grants access to the identity behind a pending code.
func (t *WebSocketTransport) PairingApprove(ctx context.Context, channel, code string) error {
	return t.call(ctx, MethodPairingApprove, PairingActionParams{Channel: channel, Code: code}, nil)
}

// PairingReject discards a pending code without granting access.
func (t *WebSocketTransport) PairingReject(ctx context.Context, channel, code string) error {
	return t.call(ctx, MethodPairingReject, PairingActionParams{Channel: channel, Code: code}, nil)
}

// Close tears down the connection and ends the event stream.
func (t *WebSocketTransport) Close() error {
	t.cancel()

	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()
	if conn != nil {
		conn.Close()
	}

	t.wg.Wait()
	return nil
}

func (t *WebSocketTransport) call(ctx context.Context, method string, params, result interface{}) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return &TransportError{Op: method, Err: err}
		}
		raw = data
	}

	id := t.nextID.Add(1)
	ch := make(chan Frame, 1)

	t.pendMu.Lock()
	t.pending[id] = ch
	t.pendMu.Unlock()
	defer func() {
		t.pendMu.Lock()
		delete(t.pending, id)
		t.pendMu.Unlock()
	}()

	if err := t.writeFrame(Frame{Type: FrameReq, ID: id, Method: method, Params: raw}); err != nil {
		return &TransportError{Op: method, Err: err}
	}

	select {
	case frame := <-ch:
		if !frame.OK {
			return decodeError(method, frame)
		}
		if result != nil && len(frame.Payload) > 0 {
			if err := json.Unmarshal(frame.Payload, result); err != nil {
				return &TransportError{Op: method, Err: err}
			}
		}
		return nil
	case <-ctx.Done():
		return &TransportError{Op: method, Err: ctx.Err()}
	case <-t.ctx.Done():
		return &TransportError{Op: method, Err: errors.New("transport closed")}
	}
}

func decodeError(method string, frame Frame) error {
	switch frame.ErrCode {
	case ErrCodeUnsupported:
		return &CapabilityError{Capability: method}
	case ErrCodeInvalid:
		return &ValidationError{Reason: frame.Error}
	case ErrCodeExpired:
		return pairing.ErrCodeExpired
	case ErrCodeUnknown:
		return pairing.ErrUnknownCode
	default:
		return &TransportError{Op: method, Err: errors.New(frame.Error)}
	}
}

func (t *WebSocketTransport) writeFrame(frame Frame) error {
	t.connMu.RLock()
	conn := t.conn
	t.connMu.RUnlock()
	if conn == nil {
		return errors.New("not connected")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (t *WebSocketTransport) readLoop() {
	defer t.wg.Done()
	defer close(t.events)

	for {
		t.connMu.RLock()
		conn := t.conn
		t.connMu.RUnlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.failPending(err)

			if t.ctx.Err() != nil {
				return
			}

			logger.WarnCF("transport", "Connection lost", map[string]interface{}{
				"error": err.Error(),
			})
			t.emit(Event{Type: EventHealth, OK: false})

			if !t.reconnect() {
				return
			}

			// Anything the server emitted while we were away is
			// gone, and its sequence restarts on the new
			// connection. Force a history re-seed.
			t.emit(Event{Type: EventHealth, OK: true})
			t.emit(Event{Type: EventSeqGap})
			t.seq.reset()
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.DebugCF("transport", "Discarding malformed frame", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		switch frame.Type {
		case FrameRes:
			t.pendMu.Lock()
			ch, ok := t.pending[frame.ID]
			if ok {
				delete(t.pending, frame.ID)
			}
			t.pendMu.Unlock()
			if ok {
				ch <- frame
			}
		case FrameEvent:
			if frame.Event == nil {
				continue
			}
			if t.seq.observe(frame.Seq) {
				t.emit(Event{Type: EventSeqGap})
			}
			t.emit(*frame.Event)
		}
	}
}

// failPending settles every outstanding call with a transport error.
func (t *WebSocketTransport) failPending(err error) {
	t.pendMu.Lock()
	defer t.pendMu.Unlock()
	for id, ch := range t.pending {
		ch <- Frame{Type: FrameRes, ID: id, OK: false, ErrCode: ErrCodeInternal, Error: err.Error()}
		delete(t.pending, id)
	}
}

// reconnect redials with capped exponential backoff until it succeeds
// or the transport is closed. Returns false only on close.
func (t *WebSocketTransport) reconnect() bool {
	delay := reconnectMinDelay
	for {
		select {
		case <-t.ctx.Done():
			return false
		case <-time.After(delay):
		}

		conn, err := dialConn(t.ctx, t.url, t.apiKey)
		if err == nil {
			t.connMu.Lock()
			t.conn = conn
			t.connMu.Unlock()
			logger.InfoC("transport", "Reconnected to gateway")
			return true
		}

		logger.DebugCF("transport", "Reconnect attempt failed", map[string]interface{}{
			"error": err.Error(),
			"delay": delay.String(),
		})
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (t *WebSocketTransport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.ctx.Done():
	}
}
