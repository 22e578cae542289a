package gateway

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nestor-bot/nestor/pkg/bus"
	"github.com/nestor-bot/nestor/pkg/chat"
	"github.com/nestor-bot/nestor/pkg/logger"
)

// RunInput is everything the agent engine needs to start one run.
type RunInput struct {
	SessionKey  string
	RunID       string
	Text        string
	Thinking    chat.ThinkingLevel
	Attachments []chat.Attachment
}

// Runner hands accepted runs to the agent engine. The engine itself
// is an external collaborator; the gateway only brokers.
type Runner interface {
	StartRun(in RunInput) error
}

// BusRunner is the default Runner: it publishes runs onto the message
// bus for whatever engine is consuming the inbound side.
type BusRunner struct {
	bus *bus.MessageBus
}

func NewBusRunner(b *bus.MessageBus) *BusRunner {
	return &BusRunner{bus: b}
}

func (r *BusRunner) StartRun(in RunInput) error {
	r.bus.PublishInbound(bus.InboundMessage{
		Channel:     "gateway",
		SenderID:    "gateway",
		ChatID:      in.SessionKey,
		Content:     in.Text,
		Attachments: in.Attachments,
		SessionKey:  in.SessionKey,
		RunID:       in.RunID,
		Thinking:    string(in.Thinking),
	})
	return nil
}

type activeRun struct {
	sessionKey string
	aborted    bool
}

// runRegistry tracks runs between acceptance and settlement so abort
// requests have something to land on.
type runRegistry struct {
	mu     sync.Mutex
	active map[string]*activeRun
}

func newRunRegistry() *runRegistry {
	return &runRegistry{active: make(map[string]*activeRun)}
}

// begin registers a new run and returns its server-generated ID.
func (r *runRegistry) begin(sessionKey string) string {
	runID := uuid.New().String()
	r.mu.Lock()
	r.active[runID] = &activeRun{sessionKey: sessionKey}
	r.mu.Unlock()
	return runID
}

// finish settles a run. Unknown IDs are ignored so late completions
// after an abort are harmless.
func (r *runRegistry) finish(runID string) {
	r.mu.Lock()
	delete(r.active, runID)
	r.mu.Unlock()
}

// abort flags a run for cancellation. Advisory: returns false when
// the run is unknown or already settled, or belongs to a different
// session.
func (r *runRegistry) abort(sessionKey, runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.active[runID]
	if !ok || run.sessionKey != sessionKey {
		return false
	}
	if !run.aborted {
		run.aborted = true
		logger.InfoCF("gateway", "Run abort requested", map[string]interface{}{
			"session_key": sessionKey,
			"run_id":      runID,
		})
	}
	return true
}

// isAborted reports whether an abort was requested for the run.
func (r *runRegistry) isAborted(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.active[runID]
	return ok && run.aborted
}
