package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nestor.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 18789 {
		t.Fatalf("default port = %d", cfg.Gateway.Port)
	}
	if cfg.Pairing.TTLMinutes != 60 {
		t.Fatalf("default pairing ttl = %d", cfg.Pairing.TTLMinutes)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("NESTOR_GATEWAY_PORT", "19099")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nestor.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 19099 {
		t.Fatalf("port = %d, want env override 19099", cfg.Gateway.Port)
	}
}

func TestSaveConfigPreservesUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nestor.json")

	doc := `{
  "gateway": {"port": 19001},
  "agents": {"defaults": {"model": "big-brain"}}
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.GrantAccess("discord", "user#1234")

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var saved map[string]any
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}

	agents, ok := saved["agents"].(map[string]any)
	if !ok {
		t.Fatalf("opaque agents section dropped: %v", saved)
	}
	defaults := agents["defaults"].(map[string]any)
	if defaults["model"] != "big-brain" {
		t.Fatalf("opaque field mangled: %v", defaults)
	}

	channels := saved["channels"].(map[string]any)
	discord := channels["discord"].(map[string]any)
	allow := discord["allow_from"].([]any)
	if len(allow) != 1 || allow[0] != "user#1234" {
		t.Fatalf("granted identity missing: %v", allow)
	}
}

func TestGrantAccessIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GrantAccess("telegram", "42")
	cfg.GrantAccess("telegram", "42")

	if got := len(cfg.Channel("telegram").AllowFrom); got != 1 {
		t.Fatalf("allow_from has %d entries, want 1", got)
	}
}

func TestFlexibleStringSliceAcceptsNumbers(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`["abc", 123]`), &f); err != nil {
		t.Fatal(err)
	}
	if len(f) != 2 || f[0] != "abc" || f[1] != "123" {
		t.Fatalf("unexpected slice: %v", f)
	}
}

func TestGatewayURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  GatewayConfig
		want string
	}{
		{
			name: "host and port",
			cfg:  GatewayConfig{Host: "127.0.0.1", Port: 18789},
			want: "ws://127.0.0.1:18789/ws",
		},
		{
			name: "wildcard host dials loopback",
			cfg:  GatewayConfig{Host: "0.0.0.0", Port: 18789},
			want: "ws://127.0.0.1:18789/ws",
		},
		{
			name: "remote url wins",
			cfg:  GatewayConfig{Host: "127.0.0.1", Port: 18789, RemoteURL: "wss://gw.example.com/ws"},
			want: "wss://gw.example.com/ws",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.URL(); got != tt.want {
				t.Fatalf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}
