package observability

import (
	"testing"

	"github.com/smallbiznis/kost/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DB_STATS_INTERVAL_SECONDS", "")

	cfg := LoadConfig(config.Config{Environment: "production"})
	assert.Equal(t, "kost", cfg.ServiceName)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, uint32(15), cfg.DBStatsInterval)
	assert.False(t, cfg.Debug())
}

func TestDebugInDevelopment(t *testing.T) {
	assert.True(t, Config{Environment: "development"}.Debug())
	assert.True(t, Config{Environment: "production", LogLevel: "debug"}.Debug())
}

func TestGetenvBool(t *testing.T) {
	t.Setenv("KOST_FLAG", "yes")
	assert.True(t, getenvBool("KOST_FLAG", false))
	t.Setenv("KOST_FLAG", "garbage")
	assert.True(t, getenvBool("KOST_FLAG", true))
}
