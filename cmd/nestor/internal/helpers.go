// Package internal carries the plumbing shared by nestor's CLI
// commands: config loading, logging setup, and build metadata.
package internal

import (
	"context"
	"fmt"
	"runtime"

	"github.com/nestor-bot/nestor/pkg/config"
	"github.com/nestor-bot/nestor/pkg/logger"
	"github.com/nestor-bot/nestor/pkg/redaction"
	"github.com/nestor-bot/nestor/pkg/transport"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// LoadConfig resolves the runtime paths and loads the config document,
// applying environment overrides.
func LoadConfig() (*config.Config, config.RuntimePaths, error) {
	paths := config.ResolveRuntimePaths()
	cfg, err := config.LoadConfig(paths.ConfigPath)
	if err != nil {
		return nil, paths, err
	}
	return cfg, paths, nil
}

// SetupLogging applies the logging section of the config. A debug flag
// on the command line wins over the configured level.
func SetupLogging(cfg *config.Config, debug bool) error {
	logger.SetLevel(parseLevel(cfg.Logging.Level, debug))
	if cfg.Logging.Redact != nil {
		logger.SetRedactionEnabled(*cfg.Logging.Redact)
	}
	if len(cfg.Logging.RedactPatterns) > 0 {
		rc := redaction.DefaultConfig()
		rc.CustomPatterns = cfg.Logging.RedactPatterns
		redaction.SetGlobalConfig(rc)
	}
	if cfg.Logging.File != "" {
		if err := logger.EnableFileLogging(cfg.Logging.File); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}
	return nil
}

func parseLevel(level string, debug bool) logger.LogLevel {
	if debug {
		return logger.DEBUG
	}
	switch level {
	case "debug":
		return logger.DEBUG
	case "warn", "warning":
		return logger.WARN
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}

// DialGateway connects to the configured gateway with its API key.
func DialGateway(ctx context.Context) (*transport.WebSocketTransport, error) {
	cfg, _, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	tr, err := transport.Dial(ctx, cfg.Gateway.URL(), cfg.Gateway.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway at %s, is it running? (%w)", cfg.Gateway.URL(), err)
	}
	return tr, nil
}

// FormatVersion returns the version string with optional git commit.
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info.
func FormatBuildInfo() (string, string) {
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return buildTime, goVer
}

// GetVersion returns the bare version string.
func GetVersion() string {
	return version
}
