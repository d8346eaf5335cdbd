package dashboard

import (
	"fmt"
	"strconv"
	"time"
)

// View is the display projection of a Model: what the page renders.
type View struct {
	Status           string `json:"status"`
	StatusClass      string `json:"status_class"`
	ControlConnected bool   `json:"control_connected"`
	VideoConnected   bool   `json:"video_connected"`

	Loading           bool `json:"loading"`
	SnapshotEnabled   bool `json:"snapshot_enabled"`
	FullscreenEnabled bool `json:"fullscreen_enabled"`
	Fullscreen        bool `json:"fullscreen"`

	FPS        string `json:"fps"`
	Detections string `json:"detections"`
	Resolution string `json:"resolution"`
	Uptime     string `json:"uptime"`

	AIModel             string `json:"ai_model"`
	ConfidenceThreshold string `json:"confidence_threshold"`
	DisplayFPS          bool   `json:"display_fps"`

	FramesDisplayed uint64 `json:"frames_displayed"`
}

// Project renders m into display strings and flags.
func Project(m Model) View {
	v := View{
		Status:            "Disconnected",
		StatusClass:       "status-offline",
		ControlConnected:  m.Conn.ControlConnected,
		VideoConnected:    m.Conn.VideoConnected,
		Loading:           m.Loading,
		SnapshotEnabled:   m.SnapshotEnabled,
		FullscreenEnabled: m.FullscreenEnabled,
		Fullscreen:        m.Fullscreen,

		FPS:        formatNumber(m.Stats.FPS),
		Detections: strconv.Itoa(m.Stats.DetectionCount),
		Resolution: "-",
		Uptime:     FormatUptime(m.Uptime),

		AIModel:             m.Settings.AIModel,
		ConfidenceThreshold: formatNumber(m.Settings.ConfidenceThreshold),
		DisplayFPS:          m.Settings.DisplayFPS,

		FramesDisplayed: m.FramesDisplayed,
	}

	if m.Connected {
		v.Status = "Connected"
		v.StatusClass = "status-online"
	}
	if m.Resolution.Width > 0 && m.Resolution.Height > 0 {
		v.Resolution = fmt.Sprintf("%d × %d", m.Resolution.Width, m.Resolution.Height)
	}
	return v
}

// FormatUptime renders d as HH:MM:SS. Hours are not wrapped at 24.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d%time.Hour) / int(time.Minute)
	seconds := int(d%time.Minute) / int(time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// formatNumber prints the shortest decimal form: 0.6, 30, 12.5.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
