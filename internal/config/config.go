package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for environment overrides (LIVEVIEW_ORIGIN, ...).
const EnvPrefix = "liveview"

// Config defines the runtime configuration for the live-view client.
type Config struct {
	// Origin is the page origin the device endpoints are derived from.
	// An empty origin or one without a host falls back to localhost.
	Origin      string `envconfig:"ORIGIN"`
	DevicePort  int    `envconfig:"DEVICE_PORT"`
	ControlPath string `envconfig:"CONTROL_PATH"`
	VideoPath   string `envconfig:"VIDEO_PATH"`

	ReconnectDelay   time.Duration `envconfig:"RECONNECT_DELAY"`
	UptimeInterval   time.Duration `envconfig:"UPTIME_INTERVAL"`
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT"`
	WriteTimeout     time.Duration `envconfig:"WRITE_TIMEOUT"`

	Addr           string        `envconfig:"HTTP_ADDR"`
	AssetsDir      string        `envconfig:"ASSETS_DIR"`
	StatusInterval time.Duration `envconfig:"STATUS_INTERVAL"`
	MJPEGKeepalive time.Duration `envconfig:"MJPEG_KEEPALIVE"`

	PrefsPath       string `envconfig:"PREFS_PATH"`
	SnapshotQuality int    `envconfig:"SNAPSHOT_QUALITY"`

	LogLevel string `envconfig:"LOG_LEVEL"`
	LogColor bool   `envconfig:"LOG_COLOR"`
}

// DefaultConfig returns a config aligned with the device firmware defaults.
func DefaultConfig() Config {
	return Config{
		Origin:           "",
		DevicePort:       8888,
		ControlPath:      "/control",
		VideoPath:        "/video",
		ReconnectDelay:   5 * time.Second,
		UptimeInterval:   time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     2 * time.Second,
		Addr:             ":8080",
		AssetsDir:        filepath.Clean("./web_assets"),
		StatusInterval:   2 * time.Second,
		MJPEGKeepalive:   5 * time.Second,
		PrefsPath:        filepath.Clean("./prefs.yaml"),
		SnapshotQuality:  92,
		LogLevel:         "info",
		LogColor:         true,
	}
}

// Load returns the defaults with LIVEVIEW_* environment overrides applied.
func Load() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (c Config) Validate() error {
	if c.DevicePort <= 0 || c.DevicePort > 65535 {
		return fmt.Errorf("device port %d out of range", c.DevicePort)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive, got %s", c.ReconnectDelay)
	}
	if c.UptimeInterval <= 0 {
		return fmt.Errorf("uptime interval must be positive, got %s", c.UptimeInterval)
	}
	if c.SnapshotQuality < 1 || c.SnapshotQuality > 100 {
		return fmt.Errorf("snapshot quality %d out of range 1-100", c.SnapshotQuality)
	}
	u, err := originURL(c.Origin)
	if err != nil {
		return fmt.Errorf("origin %q: %w", c.Origin, err)
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() == "" {
		return fmt.Errorf("origin %q has no host", c.Origin)
	}
	return nil
}

// originURL parses origin, reading a bare host such as 192.168.4.1 or
// cam.local:8080 as an http origin.
func originURL(origin string) (*url.URL, error) {
	if origin != "" && !strings.Contains(origin, "://") {
		origin = "http://" + origin
	}
	return url.Parse(origin)
}

// Endpoints returns the control and video WebSocket URLs. The scheme is wss
// when the origin is served over https.
func (c Config) Endpoints() (control string, video string) {
	scheme := "ws"
	host := "localhost"

	if u, err := originURL(c.Origin); err == nil {
		if u.Scheme == "https" {
			scheme = "wss"
		}
		if h := u.Hostname(); h != "" {
			host = h
		}
	}

	hostPort := net.JoinHostPort(host, strconv.Itoa(c.DevicePort))
	control = (&url.URL{Scheme: scheme, Host: hostPort, Path: c.ControlPath}).String()
	video = (&url.URL{Scheme: scheme, Host: hostPort, Path: c.VideoPath}).String()
	return control, video
}
