package channels

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nestor-bot/nestor/pkg/bus"
	"github.com/nestor-bot/nestor/pkg/config"
	"github.com/nestor-bot/nestor/pkg/logger"
	"github.com/nestor-bot/nestor/pkg/pairing"
	"github.com/nestor-bot/nestor/pkg/ratelimit"
)

const defaultChannelQueueSize = 100

const (
	limiterCleanupEvery = 10 * time.Minute
	limiterIdleAge      = 30 * time.Minute
)

// gatewayChannel is the internal pseudo-channel consumed by the
// gateway itself; the dispatcher never routes it to an adapter.
const gatewayChannel = "gateway"

// Factory builds an adapter from its config block. Concrete platform
// adapters register themselves at init time.
type Factory func(name string, cfg *config.ChannelConfig, msgBus *bus.MessageBus, pairings *pairing.Store) (Channel, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory plugs a platform adapter into the manager.
func RegisterFactory(name string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = f
}

func getFactory(name string) (Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

type channelWorker struct {
	ch    Channel
	queue chan bus.OutboundMessage
	done  chan struct{}
}

// Manager owns the adapter lifecycle and fans outbound bus messages to
// per-channel workers.
type Manager struct {
	channels     map[string]Channel
	workers      map[string]*channelWorker
	bus          *bus.MessageBus
	cfg          *config.Config
	pairings     *pairing.Store
	limiter      *ratelimit.Limiter
	gatewayFn    func(bus.OutboundMessage)
	cancel       context.CancelFunc
	dispatchDone chan struct{}
	mu           sync.RWMutex
}

func NewManager(cfg *config.Config, msgBus *bus.MessageBus, pairings *pairing.Store) *Manager {
	m := &Manager{
		channels: make(map[string]Channel),
		workers:  make(map[string]*channelWorker),
		bus:      msgBus,
		cfg:      cfg,
		pairings: pairings,
		limiter:  ratelimit.NewLimiter(cfg.RateLimits.MaxSendsPerMinute),
	}
	m.initChannels()
	return m
}

func (m *Manager) initChannels() {
	logger.InfoC("channels", "Initializing channel manager")

	for name, chCfg := range m.cfg.Channels {
		if !chCfg.Enabled {
			continue
		}
		f, ok := getFactory(name)
		if !ok {
			logger.WarnCF("channels", "No adapter registered for channel", map[string]interface{}{
				"channel": name,
			})
			continue
		}
		ch, err := f(name, chCfg, m.bus, m.pairings)
		if err != nil {
			logger.ErrorCF("channels", "Failed to initialize channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
			continue
		}
		if rl, ok := ch.(interface{ SetRateLimiter(*ratelimit.Limiter) }); ok {
			rl.SetRateLimiter(m.limiter)
		}
		m.channels[name] = ch
		m.workers[name] = &channelWorker{
			ch:    ch,
			queue: make(chan bus.OutboundMessage, defaultChannelQueueSize),
			done:  make(chan struct{}),
		}
		logger.InfoCF("channels", "Channel enabled", map[string]interface{}{"channel": name})
	}

	logger.InfoCF("channels", "Channel initialization completed", map[string]interface{}{
		"enabled_channels": len(m.channels),
	})
}

// SetGatewayHandler installs the consumer for outbound messages
// addressed to the gateway pseudo-channel. Without one they are
// dropped.
func (m *Manager) SetGatewayHandler(fn func(bus.OutboundMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gatewayFn = fn
}

// Active returns the names of initialized channels, sorted.
func (m *Manager) Active() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for name, channel := range m.channels {
		logger.InfoCF("channels", "Starting channel", map[string]interface{}{"channel": name})
		if err := channel.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	for name, w := range m.workers {
		go m.runWorker(dispatchCtx, name, w)
	}

	done := make(chan struct{})
	m.dispatchDone = done
	go func() {
		defer close(done)
		m.dispatchOutbound(dispatchCtx)
	}()
	go m.limiter.RunCleanup(dispatchCtx, limiterCleanupEvery, limiterIdleAge)

	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	dispatchDone := m.dispatchDone
	m.dispatchDone = nil
	m.mu.Unlock()

	if cancel == nil && dispatchDone == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	// The dispatcher must be parked before the queues close, or it
	// could send on a closed queue.
	if dispatchDone != nil {
		<-dispatchDone
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.workers {
		close(w.queue)
	}
	for _, w := range m.workers {
		<-w.done
	}

	for name, channel := range m.channels {
		if err := channel.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	logger.InfoC("channels", "All channels stopped")
	return nil
}

// runWorker drains one channel's outbound queue, splitting messages
// that exceed the platform's length cap.
func (m *Manager) runWorker(ctx context.Context, name string, w *channelWorker) {
	defer close(w.done)
	for {
		select {
		case msg, ok := <-w.queue:
			if !ok {
				return
			}
			maxLen := 0
			if mlp, ok := w.ch.(MessageLengthProvider); ok {
				maxLen = mlp.MaxMessageLength()
			}
			for _, chunk := range splitMessage(msg.Content, maxLen) {
				chunkMsg := msg
				chunkMsg.Content = chunk
				if err := w.ch.Send(ctx, chunkMsg); err != nil {
					logger.ErrorCF("channels", "Error sending message", map[string]interface{}{
						"channel": name,
						"error":   err.Error(),
					})
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if msg.Channel == gatewayChannel {
			m.mu.RLock()
			fn := m.gatewayFn
			m.mu.RUnlock()
			if fn != nil {
				fn(msg)
			}
			continue
		}

		m.mu.RLock()
		w, exists := m.workers[msg.Channel]
		m.mu.RUnlock()

		if !exists {
			logger.WarnCF("channels", "Unknown channel for outbound message", map[string]interface{}{
				"channel": msg.Channel,
			})
			continue
		}

		select {
		case w.queue <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// splitMessage breaks content into rune-safe chunks of at most maxLen.
// maxLen <= 0 means no cap.
func splitMessage(content string, maxLen int) []string {
	if maxLen <= 0 || len([]rune(content)) <= maxLen {
		return []string{content}
	}

	runes := []rune(content)
	chunks := make([]string, 0, len(runes)/maxLen+1)
	for len(runes) > maxLen {
		chunks = append(chunks, string(runes[:maxLen]))
		runes = runes[maxLen:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
