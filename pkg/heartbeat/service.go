// Package heartbeat fires gateway tick events on a cron schedule.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nestor-bot/nestor/pkg/config"
	"github.com/nestor-bot/nestor/pkg/logger"
)

const defaultCron = "* * * * *"

// Service invokes onTick whenever the configured cron expression is
// due, at most once per minute slot.
type Service struct {
	cfg        config.HeartbeatConfig
	onTick     func()
	parser     *gronx.Gronx
	checkEvery time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	lastDue time.Time
}

func NewService(cfg config.HeartbeatConfig, onTick func()) *Service {
	return &Service{
		cfg:        cfg,
		onTick:     onTick,
		parser:     gronx.New(),
		checkEvery: 20 * time.Second,
	}
}

// Start begins the schedule loop. Disabled services start as a no-op.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		logger.InfoC("heartbeat", "Heartbeat disabled")
		return nil
	}

	expr := s.cfg.Cron
	if expr == "" {
		expr = defaultCron
	}
	if !s.parser.IsValid(expr) {
		return fmt.Errorf("invalid heartbeat cron expression %q", expr)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	logger.InfoCF("heartbeat", "Heartbeat started", map[string]interface{}{"cron": expr})
	go s.loop(runCtx, expr)
	return nil
}

// Stop ends the schedule loop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = false
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) loop(ctx context.Context, expr string) {
	ticker := time.NewTicker(s.checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.maybeTick(expr, now)
		}
	}
}

// maybeTick fires at most once per due minute, however often the
// check loop polls.
func (s *Service) maybeTick(expr string, now time.Time) {
	minute := now.Truncate(time.Minute)

	s.mu.Lock()
	if s.lastDue.Equal(minute) {
		s.mu.Unlock()
		return
	}
	due, err := s.parser.IsDue(expr, now)
	if err != nil || !due {
		s.mu.Unlock()
		return
	}
	s.lastDue = minute
	s.mu.Unlock()

	logger.DebugC("heartbeat", "Tick")
	s.onTick()
}
