package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/nestor-bot/nestor/pkg/config"
)

func TestDisabledServiceDoesNotStart(t *testing.T) {
	s := NewService(config.HeartbeatConfig{Enabled: false}, func() {
		t.Error("tick fired on a disabled service")
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.IsRunning() {
		t.Fatal("disabled service reported running")
	}
}

func TestInvalidCronRejected(t *testing.T) {
	s := NewService(config.HeartbeatConfig{Enabled: true, Cron: "not a cron"}, func() {})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("invalid cron expression accepted")
	}
}

func TestStartStop(t *testing.T) {
	s := NewService(config.HeartbeatConfig{Enabled: true, Cron: "* * * * *"}, func() {})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.IsRunning() {
		t.Fatal("service not running after Start")
	}

	s.Stop()
	if s.IsRunning() {
		t.Fatal("service still running after Stop")
	}
}

func TestMaybeTickFiresOncePerMinute(t *testing.T) {
	ticks := 0
	s := NewService(config.HeartbeatConfig{Enabled: true}, func() { ticks++ })

	now := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	s.maybeTick("* * * * *", now)
	s.maybeTick("* * * * *", now.Add(20*time.Second))
	s.maybeTick("* * * * *", now.Add(40*time.Second))

	if ticks != 1 {
		t.Fatalf("ticks in one minute slot = %d, want 1", ticks)
	}

	s.maybeTick("* * * * *", now.Add(time.Minute))
	if ticks != 2 {
		t.Fatalf("ticks after minute rollover = %d, want 2", ticks)
	}
}

func TestMaybeTickHonorsSchedule(t *testing.T) {
	ticks := 0
	s := NewService(config.HeartbeatConfig{Enabled: true}, func() { ticks++ })

	// Due only at minute 30 of each hour.
	s.maybeTick("30 * * * *", time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC))
	if ticks != 0 {
		t.Fatal("tick fired off schedule")
	}
	s.maybeTick("30 * * * *", time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	if ticks != 1 {
		t.Fatal("tick did not fire when due")
	}
}
