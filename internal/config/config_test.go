package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"CONFIG_FILE", "APP_ENV", "LISTEN_ADDR", "DATABASE_URL", "LOG_LEVEL", "SCAN_WORKERS", "SCAN_TIMEOUT",
	"DOH_ENDPOINT", "HOSTINTEL_BASE_URL", "HOSTINTEL_RPS", "USER_AGENT", "ANALYZER_URL", "ANALYZER_TOKEN",
	"ANALYZER_TIMEOUT", "OTEL_EXPORTER_OTLP_ENDPOINT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 4, cfg.ScanWorkers)
	assert.Zero(t, cfg.ScanTimeout)
	assert.Equal(t, 60*time.Second, cfg.AnalyzerTimeout)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.Production())
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cloudauditor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: production
listenAddr: ":9000"
scanWorkers: 8
scanTimeout: 5m
hostIntelRps: 0.5
analyzerUrl: https://analyzer.internal/v1/analyze
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SCAN_WORKERS", "2")
	t.Setenv("ANALYZER_TIMEOUT", "90")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Production())
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 2, cfg.ScanWorkers)
	assert.Equal(t, 5*time.Minute, cfg.ScanTimeout)
	assert.Equal(t, 0.5, cfg.HostIntelRPS)
	assert.Equal(t, "https://analyzer.internal/v1/analyze", cfg.AnalyzerURL)
	assert.Equal(t, 90*time.Second, cfg.AnalyzerTimeout)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoadReportsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCAN_WORKERS", "many")
	t.Setenv("SCAN_TIMEOUT", "soon")
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCAN_WORKERS")
	assert.Contains(t, err.Error(), "SCAN_TIMEOUT")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
