package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, cfg.Source)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30.0, cfg.Radar.ThresholdCM)
	assert.Equal(t, 15*time.Second, cfg.Radar.HeartbeatTimeout)
	assert.Equal(t, "radar_01", cfg.Radar.DefaultDeviceID)
	assert.Equal(t, "high", cfg.Radar.DefaultSeverity)
	assert.Equal(t, 60*time.Second, cfg.Notify.Cooldown)
	assert.False(t, cfg.Notify.Enabled())
	assert.Equal(t, "radar/+/live", cfg.MQTT.TopicLive)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 200*time.Millisecond, cfg.Redis.OpTimeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
radar:
  threshold_cm: 45
  heartbeat_timeout: 20s
notify:
  cooldown: 2m
  bot_token: file-token
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("GEOFENCE_NOTIFY_CHAT_ID", "-100")
	t.Setenv("GEOFENCE_RADAR_DEFAULT_DEVICE_ID", "radar_north")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.Source)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45.0, cfg.Radar.ThresholdCM)
	assert.Equal(t, 20*time.Second, cfg.Radar.HeartbeatTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Notify.Cooldown)
	assert.Equal(t, "radar_north", cfg.Radar.DefaultDeviceID)
	assert.True(t, cfg.Notify.Enabled())
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	yaml := `
radar:
  threshold_cm: -1
  default_severity: urgent
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold_cm")
	assert.Contains(t, err.Error(), "default_severity")
}
