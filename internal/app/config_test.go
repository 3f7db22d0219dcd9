package app

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/opale-crm/opale-crm/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "development", cfg.AppEnv)
	require.False(t, cfg.IsProduction())
	require.EqualValues(t, 4, cfg.RenderConcurrency)
	require.Equal(t, "0 8 * * *", cfg.ReminderCron)
	require.Equal(t, "documents", cfg.StorageBucket)
}

func TestLoadConfigRejectsZeroRenderConcurrency(t *testing.T) {
	t.Setenv("RENDER_CONCURRENCY", "0")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_ADDR", ":9999")
	t.Setenv("RENDER_CONCURRENCY", "8")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, ":9999", cfg.AppAddr)
	require.EqualValues(t, 8, cfg.RenderConcurrency)
}

func TestNewLoggerFormatByEnvironment(t *testing.T) {
	prod := NewLogger(&Config{AppEnv: "production", LogFormat: "pretty"})
	_, ok := prod.Handler().(*slog.JSONHandler)
	require.True(t, ok)

	dev := NewLogger(&Config{AppEnv: "development", LogFormat: "pretty"})
	_, ok = dev.Handler().(*slog.TextHandler)
	require.True(t, ok)

	require.NotNil(t, NewLogger(nil))
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv("OPALE_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv("OPALE_TEST_MODE", "")
	RefreshTestMode()
	require.False(t, InTestMode())

	t.Setenv("OPALE_TEST_MODE", "1")
	RefreshTestMode()
}
