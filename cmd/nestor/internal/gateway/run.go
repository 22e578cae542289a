package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nestor-bot/nestor/cmd/nestor/internal"
	"github.com/nestor-bot/nestor/pkg/bus"
	"github.com/nestor-bot/nestor/pkg/channels"
	"github.com/nestor-bot/nestor/pkg/gateway"
	"github.com/nestor-bot/nestor/pkg/heartbeat"
	"github.com/nestor-bot/nestor/pkg/logger"
	"github.com/nestor-bot/nestor/pkg/pairing"
	"github.com/nestor-bot/nestor/pkg/session"
)

const shutdownTimeout = 10 * time.Second

// runGateway runs the gateway in the foreground until SIGINT or
// SIGTERM.
func runGateway(debug bool) error {
	cfg, paths, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := internal.SetupLogging(cfg, debug); err != nil {
		return err
	}
	defer logger.DisableFileLogging()

	stateDir := cfg.EffectiveStateDir(paths)
	registry := session.NewRegistry(filepath.Join(stateDir, "sessions"))
	pairings := pairing.NewStore(cfg.Pairing.TTL())
	msgBus := bus.NewMessageBus()

	srv := gateway.NewServer(cfg, paths.ConfigPath, registry, pairings, gateway.NewBusRunner(msgBus))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := channels.NewManager(cfg, msgBus, pairings)
	manager.SetGatewayHandler(func(msg bus.OutboundMessage) {
		if err := srv.DeliverAssistant(msg.SessionKey, msg.RunID, msg.Content, msg.Attachments); err != nil {
			logger.ErrorCF("gateway", "Failed to deliver assistant message", map[string]interface{}{
				"session_key": msg.SessionKey,
				"error":       err.Error(),
			})
		}
	})
	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}

	hb := heartbeat.NewService(cfg.Heartbeat, srv.PublishTick)
	if err := hb.Start(ctx); err != nil {
		return fmt.Errorf("failed to start heartbeat: %w", err)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	logger.InfoCF("gateway", "Gateway running", map[string]interface{}{
		"url":      cfg.Gateway.URL(),
		"channels": manager.Active(),
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.InfoC("gateway", "Shutting down")
	cancel()
	hb.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := manager.StopAll(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Error stopping channels", map[string]interface{}{"error": err.Error()})
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Error stopping gateway", map[string]interface{}{"error": err.Error()})
	}
	msgBus.Close()
	return nil
}
