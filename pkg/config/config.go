package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// GatewayConfig is the gateway connection descriptor. RemoteURL, when
// set, overrides the host/port pair for clients dialing in.
type GatewayConfig struct {
	Host      string `json:"host" env:"NESTOR_GATEWAY_HOST"`
	Port      int    `json:"port" env:"NESTOR_GATEWAY_PORT"`
	APIKey    string `json:"api_key" env:"NESTOR_GATEWAY_API_KEY"`
	RemoteURL string `json:"remote_url,omitempty" env:"NESTOR_GATEWAY_URL"`

	// IdempotencyWindowSecs is the server-side chat.send dedup window.
	// A deployment parameter, not a protocol constant.
	IdempotencyWindowSecs int `json:"idempotency_window_secs,omitempty" env:"NESTOR_GATEWAY_IDEMPOTENCY_WINDOW_SECS"`
}

// IdempotencyWindow returns the server-side chat.send dedup window.
func (g GatewayConfig) IdempotencyWindow() time.Duration {
	return time.Duration(g.IdempotencyWindowSecs) * time.Second
}

// URL returns the WebSocket URL clients should dial.
func (g GatewayConfig) URL() string {
	if g.RemoteURL != "" {
		return g.RemoteURL
	}
	host := g.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s:%d/ws", host, g.Port)
}

// ChannelConfig is the per-channel adapter configuration. Settings is
// opaque pass-through owned by the adapter.
type ChannelConfig struct {
	Enabled   bool                `json:"enabled"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
	Settings  map[string]any      `json:"settings,omitempty"`
}

// PairingConfig tunes the access-pairing flow.
type PairingConfig struct {
	// TTLMinutes is how long a pairing code stays valid. A deployment
	// parameter, not a protocol constant.
	TTLMinutes int `json:"ttl_minutes,omitempty" env:"NESTOR_PAIRING_TTL_MINUTES"`
}

// TTL returns the pairing code lifetime.
func (p PairingConfig) TTL() time.Duration {
	return time.Duration(p.TTLMinutes) * time.Minute
}

// HeartbeatConfig schedules gateway tick events.
type HeartbeatConfig struct {
	Enabled bool   `json:"enabled"`
	Cron    string `json:"cron,omitempty" env:"NESTOR_HEARTBEAT_CRON"`
}

// RateLimitsConfig bounds inbound traffic. Zero means unlimited.
type RateLimitsConfig struct {
	MaxSendsPerMinute int `json:"max_sends_per_minute,omitempty" env:"NESTOR_RATE_LIMITS_MAX_SENDS_PER_MINUTE"`
}

type LoggingConfig struct {
	Level  string `json:"level,omitempty" env:"NESTOR_LOG_LEVEL"`
	File   string `json:"file,omitempty" env:"NESTOR_LOG_FILE"`
	Redact *bool  `json:"redact,omitempty"`

	// RedactPatterns are extra regexes scrubbed from log output on top
	// of the built-in credential patterns.
	RedactPatterns []string `json:"redact_patterns,omitempty"`
}

type Config struct {
	Gateway    GatewayConfig             `json:"gateway"`
	Channels   map[string]*ChannelConfig `json:"channels,omitempty"`
	Pairing    PairingConfig             `json:"pairing"`
	Heartbeat  HeartbeatConfig           `json:"heartbeat"`
	RateLimits RateLimitsConfig          `json:"rate_limits"`
	Logging    LoggingConfig             `json:"logging"`

	// StateDir overrides the resolved state directory for runtime state
	// (sessions, pidfile). Does not affect config path resolution.
	StateDir string `json:"state_dir,omitempty"`

	// raw is the full document as loaded; unknown fields are preserved
	// across saves since other components own parts of this file.
	raw map[string]any
	mu  sync.Mutex
}

// Channel returns the config block for a channel, creating an empty one
// if absent.
func (c *Config) Channel(name string) *ChannelConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Channels == nil {
		c.Channels = make(map[string]*ChannelConfig)
	}
	ch, ok := c.Channels[name]
	if !ok {
		ch = &ChannelConfig{}
		c.Channels[name] = ch
	}
	return ch
}

// GrantAccess appends an identity to a channel's allow-list. Idempotent.
func (c *Config) GrantAccess(channel, identity string) {
	ch := c.Channel(channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range ch.AllowFrom {
		if existing == identity {
			return
		}
	}
	ch.AllowFrom = append(ch.AllowFrom, identity)
}

// EffectiveStateDir prefers the config-file override over the resolved
// state directory.
func (c *Config) EffectiveStateDir(paths RuntimePaths) string {
	if c.StateDir != "" {
		return expandHome(c.StateDir)
	}
	return paths.StateDir
}

// LoadConfig reads the config document at path, falling back to defaults
// when the file does not exist, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run; created on first save.
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg.raw); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config document atomically, merging the known
// fields over the originally loaded document so fields owned by other
// components survive the round-trip.
func SaveConfig(path string, cfg *Config) error {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	known, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var knownMap map[string]any
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return err
	}

	doc := mergeMaps(cfg.raw, knownMap)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, "config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(append(data, '\n')); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0o600); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// mergeMaps overlays known onto base recursively. Values present in known
// win; unknown keys in base are preserved.
func mergeMaps(base, known map[string]any) map[string]any {
	if base == nil {
		return known
	}
	out := make(map[string]any, len(base)+len(known))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range known {
		if sub, ok := v.(map[string]any); ok {
			if baseSub, ok := out[k].(map[string]any); ok {
				out[k] = mergeMaps(baseSub, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}
