package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestor-bot/nestor/pkg/config"
	"github.com/nestor-bot/nestor/pkg/logger"
	"github.com/nestor-bot/nestor/pkg/redaction"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logger.DEBUG, parseLevel("debug", false))
	assert.Equal(t, logger.INFO, parseLevel("info", false))
	assert.Equal(t, logger.WARN, parseLevel("warn", false))
	assert.Equal(t, logger.WARN, parseLevel("warning", false))
	assert.Equal(t, logger.ERROR, parseLevel("error", false))
	assert.Equal(t, logger.INFO, parseLevel("", false))
	assert.Equal(t, logger.INFO, parseLevel("nonsense", false))

	// The debug flag beats the configured level.
	assert.Equal(t, logger.DEBUG, parseLevel("error", true))
}

func TestSetupLoggingAppliesConfig(t *testing.T) {
	t.Cleanup(func() {
		logger.SetLevel(logger.INFO)
		redaction.SetGlobalConfig(redaction.DefaultConfig())
	})

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.RedactPatterns = []string{`order-[0-9]+`}
	require.NoError(t, SetupLogging(cfg, false))

	assert.Equal(t, logger.WARN, logger.GetLevel())
	assert.Equal(t, "ref [REDACTED]", redaction.Redact("ref order-1234"))
}

func TestLoadConfigHonorsConfigPathOverride(t *testing.T) {
	t.Setenv("NESTOR_CONFIG_PATH", t.TempDir()+"/nestor.json")

	cfg, paths, err := LoadConfig()
	assert.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.NotEmpty(t, paths.ConfigPath)
}
