package config

// DefaultConfig returns the configuration used when no config file
// exists yet. Tunable windows here are deployment parameters.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:                  "127.0.0.1",
			Port:                  18789,
			IdempotencyWindowSecs: 600,
		},
		Pairing: PairingConfig{
			TTLMinutes: 60,
		},
		Heartbeat: HeartbeatConfig{
			Enabled: false,
			Cron:    "* * * * *",
		},
		RateLimits: RateLimitsConfig{
			MaxSendsPerMinute: 0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
