package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-3-pro", cfg.GoogleModel)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.Equal(t, 30*time.Second, cfg.ProcessInterval)
	assert.Equal(t, 25, cfg.BatchLimit)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GOOGLE_MODEL", "gemini-3-flash")
	t.Setenv("TICK_INTERVAL", "15s")
	t.Setenv("BOT_COUNT", "12")
	t.Setenv("USE_PLANNER", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-3-flash", cfg.GoogleModel)
	assert.Equal(t, 15*time.Second, cfg.TickInterval)
	assert.Equal(t, 12, cfg.BotCount)
	assert.False(t, cfg.UsePlanner)
}
