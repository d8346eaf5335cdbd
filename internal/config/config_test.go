package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8888, cfg.DevicePort)
	assert.Equal(t, "/control", cfg.ControlPath)
	assert.Equal(t, "/video", cfg.VideoPath)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, time.Second, cfg.UptimeInterval)
	require.NoError(t, cfg.Validate())
}

func TestEndpoints(t *testing.T) {
	cases := []struct {
		name    string
		origin  string
		control string
		video   string
	}{
		{"empty origin falls back to localhost", "", "ws://localhost:8888/control", "ws://localhost:8888/video"},
		{"file origin has no host", "file:///index.html", "ws://localhost:8888/control", "ws://localhost:8888/video"},
		{"http origin", "http://cam.local:8080", "ws://cam.local:8888/control", "ws://cam.local:8888/video"},
		{"https upgrades to wss", "https://cam.local", "wss://cam.local:8888/control", "wss://cam.local:8888/video"},
		{"ipv6 host", "http://[::1]:8080", "ws://[::1]:8888/control", "ws://[::1]:8888/video"},
		{"bare ip is an http origin", "192.168.4.1", "ws://192.168.4.1:8888/control", "ws://192.168.4.1:8888/video"},
		{"bare host with port", "cam.local:8080", "ws://cam.local:8888/control", "ws://cam.local:8888/video"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Origin = tc.origin
			control, video := cfg.Endpoints()
			assert.Equal(t, tc.control, control)
			assert.Equal(t, tc.video, video)
		})
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("LIVEVIEW_ORIGIN", "https://camera.example")
	t.Setenv("LIVEVIEW_DEVICE_PORT", "9000")
	t.Setenv("LIVEVIEW_RECONNECT_DELAY", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://camera.example", cfg.Origin)
	assert.Equal(t, 9000, cfg.DevicePort)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
	// Untouched values keep their defaults.
	assert.Equal(t, "/video", cfg.VideoPath)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DevicePort = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ReconnectDelay = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SnapshotQuality = 101
	assert.Error(t, cfg.Validate())

	for _, origin := range []string{"http://", "https://:443"} {
		cfg = DefaultConfig()
		cfg.Origin = origin
		assert.Error(t, cfg.Validate(), "origin %q", origin)
	}

	for _, origin := range []string{"", "192.168.4.1", "https://cam.local", "file:///index.html"} {
		cfg = DefaultConfig()
		cfg.Origin = origin
		assert.NoError(t, cfg.Validate(), "origin %q", origin)
	}
}
