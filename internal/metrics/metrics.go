package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/frame"
)

const namespace = "liveview"

// PoolSource reports frame handle usage.
type PoolSource interface {
	Stats() frame.PoolStats
}

// Metrics holds all client metrics
type Metrics struct {
	// Video channel
	FramesReceived    atomic.Uint64
	FramesDisplayed   atomic.Uint64
	FramesUndecodable atomic.Uint64

	// Control channel
	ControlMessages  atomic.Uint64
	ControlMalformed atomic.Uint64
	DeviceErrors     atomic.Uint64

	// Connection lifecycle
	ReconnectsScheduled atomic.Uint64
	ReconnectsAttempted atomic.Uint64
	ControlConnected    atomic.Uint64 // 0 = closed, 1 = open
	VideoConnected      atomic.Uint64 // 0 = closed, 1 = open

	// User actions
	SettingsSent      atomic.Uint64
	SettingsDropped   atomic.Uint64
	SnapshotsCaptured atomic.Uint64

	// Dashboard clients
	SSEClients   atomic.Int64
	MJPEGClients atomic.Int64

	poolMu sync.RWMutex
	pool   PoolSource

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

// SetPool attaches the frame handle pool whose counters are exported.
func (m *Metrics) SetPool(p PoolSource) {
	m.poolMu.Lock()
	defer m.poolMu.Unlock()
	m.pool = p
}

func (m *Metrics) poolStats() frame.PoolStats {
	m.poolMu.RLock()
	defer m.poolMu.RUnlock()
	if m.pool == nil {
		return frame.PoolStats{}
	}
	return m.pool.Stats()
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) gauge(name, help string, f func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		f,
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Frame metrics
	m.counter("frames_received_total", "Binary frames received on the video channel", &m.FramesReceived)
	m.counter("frames_displayed_total", "Frames that became the displayed frame", &m.FramesDisplayed)
	m.counter("frames_undecodable_total", "Frames dropped because they did not decode", &m.FramesUndecodable)

	// Handle metrics
	m.gauge("frame_handles_allocated_total", "Frame handles allocated", func() float64 {
		return float64(m.poolStats().Allocated)
	})
	m.gauge("frame_handles_released_total", "Frame handles released", func() float64 {
		return float64(m.poolStats().Released)
	})
	m.gauge("frame_handles_live", "Frame handles currently held", func() float64 {
		return float64(m.poolStats().Live)
	})

	// Control metrics
	m.counter("control_messages_total", "Control messages routed", &m.ControlMessages)
	m.counter("control_malformed_total", "Control messages discarded as malformed", &m.ControlMalformed)
	m.counter("device_errors_total", "Error messages reported by the device", &m.DeviceErrors)

	// Connection metrics
	m.counter("reconnects_scheduled_total", "Reconnect timers scheduled", &m.ReconnectsScheduled)
	m.counter("reconnects_attempted_total", "Reconnect timers that redialed", &m.ReconnectsAttempted)
	m.gauge("control_connected", "Control channel open (0=closed, 1=open)", func() float64 {
		return float64(m.ControlConnected.Load())
	})
	m.gauge("video_connected", "Video channel open (0=closed, 1=open)", func() float64 {
		return float64(m.VideoConnected.Load())
	})

	// User action metrics
	m.counter("settings_sent_total", "update_settings commands sent", &m.SettingsSent)
	m.counter("settings_dropped_total", "Settings pushes dropped while disconnected", &m.SettingsDropped)
	m.counter("snapshots_captured_total", "Snapshots added to the gallery", &m.SnapshotsCaptured)

	// Dashboard client metrics
	m.gauge("sse_clients", "Connected status stream clients", func() float64 {
		return float64(m.SSEClients.Load())
	})
	m.gauge("mjpeg_clients", "Connected MJPEG stream clients", func() float64 {
		return float64(m.MJPEGClients.Load())
	})
}

// SetControlConnected records the control socket state.
func (m *Metrics) SetControlConnected(open bool) {
	m.ControlConnected.Store(boolGauge(open))
}

// SetVideoConnected records the video socket state.
func (m *Metrics) SetVideoConnected(open bool) {
	m.VideoConnected.Store(boolGauge(open))
}

func boolGauge(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the registry for tests and embedding.
func (m *Metrics) Gather() prometheus.Gatherer {
	return m.registry
}
