package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AGENTCORE_HOME", t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 500, cfg.PollIntervalMS)
	require.Equal(t, 15, cfg.HeartbeatIntervalS)
	require.Equal(t, 3600, cfg.WatcherMaxWaitS)
	require.Equal(t, []int{100, 200, 400}, cfg.WriterRetryScheduleMS)
	require.Equal(t, 1024, cfg.WriterFallbackCapacity)
	require.Equal(t, 24, cfg.RegistryGCMaxAgeH)
	require.Equal(t, 0, cfg.MessageEventsTTLS)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("AGENTCORE_HOME", home)
	yamlContent := "poll_interval_ms: 250\nheartbeat_interval_s: 5\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 250, cfg.PollIntervalMS)
	require.Equal(t, 5, cfg.HeartbeatIntervalS)
	// Untouched fields keep defaults.
	require.Equal(t, 3600, cfg.WatcherMaxWaitS)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("AGENTCORE_HOME", home)
	t.Setenv("AGENTCORE_POLL_INTERVAL_MS", "999")
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("poll_interval_ms: 250\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 999, cfg.PollIntervalMS)
}

func TestFingerprint_StableForSameSettings(t *testing.T) {
	a := defaultConfig()
	b := defaultConfig()
	require.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.BindAddr = "0.0.0.0:9999"
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestRetrySchedule(t *testing.T) {
	cfg := defaultConfig()
	durs := cfg.RetrySchedule()
	require.Len(t, durs, 3)
	require.Equal(t, "100ms", durs[0].String())
}
