// Package dashboard holds the live-view model and the pure transitions that
// move it from one state to the next. Nothing here performs I/O; the session
// feeds events in and the web layer projects the result.
package dashboard

import "time"

// ConnectionState tracks the socket lifecycle of both channels.
type ConnectionState struct {
	ControlConnected bool
	VideoConnected   bool
}

// IsConnected is true only while the control channel is open.
func (c ConnectionState) IsConnected() bool {
	return c.ControlConnected
}

// DeviceSettings mirrors the settings last reported by the device, or last
// pushed by the user.
type DeviceSettings struct {
	AIModel             string
	ConfidenceThreshold float64
	DisplayFPS          bool
}

// Stats is overwritten on every stats/detections message.
type Stats struct {
	FPS            float64
	DetectionCount int
}

// Resolution is the natural size of the displayed frame.
type Resolution struct {
	Width  int
	Height int
}

// Model is everything the dashboard displays.
type Model struct {
	Conn ConnectionState

	// Connected is the displayed status. It is driven by status messages,
	// the first video frame and disconnection, not by the control socket.
	Connected         bool
	Loading           bool
	SnapshotEnabled   bool
	FullscreenEnabled bool
	Fullscreen        bool

	Settings   DeviceSettings
	Stats      Stats
	Resolution Resolution
	Uptime     time.Duration

	FramesDisplayed uint64
}

// DefaultSettings matches the device firmware defaults shown before the first
// settings reply arrives.
func DefaultSettings() DeviceSettings {
	return DeviceSettings{
		AIModel:             "yolov4",
		ConfidenceThreshold: 0.5,
		DisplayFPS:          true,
	}
}

// New returns the model of a freshly loaded dashboard: disconnected, with the
// loading overlay showing.
func New() Model {
	return Model{
		Loading:  true,
		Settings: DefaultSettings(),
	}
}

// Connecting is applied each time both channels are (re)dialed.
func Connecting(m Model) Model {
	m.Loading = true
	return m
}

// ControlOpened marks the control socket open.
func ControlOpened(m Model) Model {
	m.Conn.ControlConnected = true
	return m
}

// ControlLost handles a control channel close or error: the display drops to
// disconnected, frame-dependent controls are disabled and stats are cleared.
func ControlLost(m Model) Model {
	m.Conn.ControlConnected = false
	m.Connected = false
	m.Loading = true
	m.SnapshotEnabled = false
	m.FullscreenEnabled = false
	m.Fullscreen = false
	m.Stats = Stats{}
	return m
}

// VideoOpened marks the video socket open.
func VideoOpened(m Model) Model {
	m.Conn.VideoConnected = true
	return m
}

// VideoClosed marks the video socket closed. The display is left alone.
func VideoClosed(m Model) Model {
	m.Conn.VideoConnected = false
	return m
}

// FrameDisplayed records a newly displayed frame. The first frame seen while
// the loading overlay is up hides it, enables the frame-dependent controls and
// marks the stream as connected; unlocked reports whether that happened.
func FrameDisplayed(m Model, width, height int) (next Model, unlocked bool) {
	m.FramesDisplayed++
	m.Resolution = Resolution{Width: width, Height: height}

	if m.Loading {
		m.Loading = false
		m.SnapshotEnabled = true
		m.FullscreenEnabled = true
		m.Connected = true
		unlocked = true
	}
	return m, unlocked
}

// ApplyLocalSettings reflects a user push before the device confirms it.
func ApplyLocalSettings(m Model, s DeviceSettings) Model {
	m.Settings = s
	return m
}

// Tick updates the uptime readout.
func Tick(m Model, uptime time.Duration) Model {
	m.Uptime = uptime
	return m
}

// ToggleFullscreen flips fullscreen while it is available.
func ToggleFullscreen(m Model) (Model, bool) {
	if !m.FullscreenEnabled {
		return m, false
	}
	m.Fullscreen = !m.Fullscreen
	return m, true
}

// Reset returns the model to its initial state, keeping the uptime clock.
func Reset(m Model) Model {
	next := New()
	next.Uptime = m.Uptime
	return next
}
