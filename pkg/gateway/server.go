// Package gateway is the daemon side of the session protocol: a
// WebSocket endpoint multiplexing request/response calls and a
// per-connection event stream over JSON frames.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nestor-bot/nestor/pkg/chat"
	"github.com/nestor-bot/nestor/pkg/config"
	"github.com/nestor-bot/nestor/pkg/logger"
	"github.com/nestor-bot/nestor/pkg/pairing"
	"github.com/nestor-bot/nestor/pkg/ratelimit"
	"github.com/nestor-bot/nestor/pkg/session"
	"github.com/nestor-bot/nestor/pkg/transport"
)

const (
	limiterCleanupEvery = 10 * time.Minute
	limiterIdleAge      = 30 * time.Minute
)

// Server owns the protocol endpoint and the state behind it. It is the
// single writer for session, run, and pairing state in its state
// directory.
type Server struct {
	cfg        *config.Config
	configPath string
	registry   *session.Registry
	pairings   *pairing.Store
	runs       *runRegistry
	runner     Runner
	dedup      *dedupWindow
	limiter    *ratelimit.Limiter

	upgrader websocket.Upgrader
	server   *http.Server

	mu            sync.RWMutex
	clients       map[*client]struct{}
	cleanupCancel context.CancelFunc
}

// NewServer wires the protocol endpoint. configPath is where pairing
// approvals persist access grants.
func NewServer(cfg *config.Config, configPath string, registry *session.Registry, pairings *pairing.Store, runner Runner) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		registry:   registry,
		pairings:   pairings,
		runs:       newRunRegistry(),
		runner:     runner,
		dedup:      newDedupWindow(cfg.Gateway.IdempotencyWindow()),
		limiter:    ratelimit.NewLimiter(cfg.RateLimits.MaxSendsPerMinute),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Start begins listening on the configured host:port.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	host := s.cfg.Gateway.Host
	if host == "" {
		host = "127.0.0.1"
	}
	addr := fmt.Sprintf("%s:%d", host, s.cfg.Gateway.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cleanupCancel = cancel
	s.mu.Unlock()
	go s.limiter.RunCleanup(cleanupCtx, limiterCleanupEvery, limiterIdleAge)

	go func() {
		logger.InfoCF("gateway", "Gateway listening", map[string]interface{}{"addr": addr})
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("gateway", "Gateway server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	return nil
}

// Stop shuts down the endpoint and drops all client connections.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cleanupCancel != nil {
		s.cleanupCancel()
		s.cleanupCancel = nil
	}
	for cli := range s.clients {
		cli.conn.Close()
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// client is one front-end connection. Events carry a per-connection
// monotonic sequence starting at 1; writes are serialized per
// connection.
type client struct {
	conn *websocket.Conn
	id   string

	mu  sync.Mutex
	seq uint64
}

func (c *client) writeFrame(frame transport.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(frame)
}

func (c *client) sendEvent(ev transport.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.conn.WriteJSON(transport.Frame{
		Type:  transport.FrameEvent,
		Seq:   c.seq,
		Event: &ev,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorCF("gateway", "Upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	cli := &client{conn: conn, id: r.RemoteAddr}
	s.mu.Lock()
	s.clients[cli] = struct{}{}
	s.mu.Unlock()

	logger.InfoCF("gateway", "Client connected", map[string]interface{}{"remote_addr": r.RemoteAddr})
	go s.readPump(cli)
}

// authorized checks the Bearer header or api_key query parameter.
// Auth is skipped when no API key is configured.
func (s *Server) authorized(r *http.Request) bool {
	apiKey := s.cfg.Gateway.APIKey
	if apiKey == "" {
		return true
	}

	token := r.URL.Query().Get("api_key")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1
}

func (s *Server) readPump(cli *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, cli)
		s.mu.Unlock()
		cli.conn.Close()
		logger.InfoCF("gateway", "Client disconnected", map[string]interface{}{"remote_addr": cli.id})
	}()

	for {
		var frame transport.Frame
		if err := cli.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.DebugCF("gateway", "Read error", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		if frame.Type != transport.FrameReq {
			continue
		}

		res := s.dispatch(cli, frame)
		if err := cli.writeFrame(res); err != nil {
			return
		}
	}
}

// broadcast fans an event out to every connected client, each under
// its own sequence.
func (s *Server) broadcast(ev transport.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for cli := range s.clients {
		if err := cli.sendEvent(ev); err != nil {
			logger.DebugCF("gateway", "Event delivery failed", map[string]interface{}{
				"remote_addr": cli.id,
				"error":       err.Error(),
			})
		}
	}
}

// PublishTick emits a tick event to all clients.
func (s *Server) PublishTick() {
	s.broadcast(transport.Event{Type: transport.EventTick})
}

// PublishChat emits a chat event bound to a session.
func (s *Server) PublishChat(sessionKey string, payload []byte) {
	s.broadcast(transport.Event{Type: transport.EventChat, SessionKey: sessionKey, Payload: payload})
}

// PublishAgent emits an agent event bound to a run.
func (s *Server) PublishAgent(runID string, payload []byte) {
	s.broadcast(transport.Event{Type: transport.EventAgent, RunID: runID, Payload: payload})
}

// DeliverAssistant appends an assistant reply to the session and fans
// it out. When runID is set the run settles: late aborts become
// no-ops and an agent event reports the final status.
func (s *Server) DeliverAssistant(sessionKey, runID, text string, attachments []chat.Attachment) error {
	msg, err := s.registry.Append(sessionKey, chat.RoleAssistant, text, attachments)
	if err != nil {
		return err
	}

	if data, err := json.Marshal(msg); err == nil {
		s.PublishChat(sessionKey, data)
	}

	if runID != "" {
		s.runs.finish(runID)
		status, _ := json.Marshal(map[string]interface{}{
			"run_id": runID,
			"status": chat.RunStatusOK,
		})
		s.PublishAgent(runID, status)
	}
	return nil
}

// RunAborted reports whether an abort was requested for a still-active
// run, for engines that check between steps.
func (s *Server) RunAborted(runID string) bool {
	return s.runs.isAborted(runID)
}
