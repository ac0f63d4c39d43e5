package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/config"
	"github.com/warp/timesheet-engine/generic"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timesheet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "America/New_York", cfg.Sync.Timezone)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "local", cfg.Sync.Lock)
	assert.Equal(t, 10*time.Minute, cfg.Redis.LockTTL)

	periods, err := cfg.PayPeriods()
	require.NoError(t, err)
	assert.Equal(t, generic.DefaultPayPeriods().Anchor.String(), periods.Anchor.String())
	assert.Equal(t, 14, periods.Length)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	// GIVEN: A file setting the port and timezone
	// WHEN: The environment overrides the timezone
	// THEN: The environment wins, the file value for port stays
	path := writeConfig(t, `
server:
  port: 9090
sync:
  timezone: America/Denver
  source: http
  api:
    base_url: https://api.example.test/v2
`)
	t.Setenv("TIMESHEET_SYNC_TIMEZONE", "America/Chicago")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "America/Chicago", cfg.Sync.Timezone)
	assert.Equal(t, "https://api.example.test/v2", cfg.Sync.API.BaseURL)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"anchor not a sunday", "sync:\n  anchor_date: \"2025-12-08\"\n"},
		{"bad timezone", "sync:\n  timezone: Mars/Olympus\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"http source without url", "sync:\n  source: http\n"},
		{"unknown lock", "sync:\n  lock: zookeeper\n"},
		{"short jwt secret", "auth:\n  enabled: true\n  jwt_secret: short\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
