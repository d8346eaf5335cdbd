package testutil

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/config"
)

// Device is a fake camera: /control speaks the JSON protocol and /video
// accepts a socket that frames can be pushed to.
type Device struct {
	Server *httptest.Server

	// Commands receives every JSON command sent on the control channel.
	Commands chan map[string]any

	// RejectControl makes the /control upgrade fail with 503.
	RejectControl atomic.Bool

	upgrader websocket.Upgrader

	mu             sync.Mutex
	writeMu        sync.Mutex
	control        *websocket.Conn
	video          *websocket.Conn
	controlAccepts int
	videoAccepts   int
	controlDials   int
	settings       map[string]any
}

// NewDevice starts a fake device. It is closed when the test ends.
func NewDevice(t testing.TB) *Device {
	t.Helper()
	d := &Device{
		Commands: make(chan map[string]any, 64),
		settings: map[string]any{
			"type":                 "settings",
			"ai_model":             "yolov4",
			"confidence_threshold": 0.5,
			"display_fps":          true,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/control", d.handleControl)
	mux.HandleFunc("/video", d.handleVideo)
	d.Server = httptest.NewServer(mux)
	t.Cleanup(d.Close)
	return d
}

// Config points cfg at the device.
func (d *Device) Config(cfg config.Config) config.Config {
	u, _ := url.Parse(d.Server.URL)
	host, port, _ := net.SplitHostPort(u.Host)
	cfg.Origin = "http://" + host
	cfg.DevicePort, _ = strconv.Atoi(port)
	return cfg
}

// SetSettings changes the settings reply to get_settings.
func (d *Device) SetSettings(model string, threshold float64, displayFPS bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = map[string]any{
		"type":                 "settings",
		"ai_model":             model,
		"confidence_threshold": threshold,
		"display_fps":          displayFPS,
	}
}

// Counts returns how many control dials were seen and how many control and
// video sockets were accepted.
func (d *Device) Counts() (controlDials, controlAccepts, videoAccepts int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controlDials, d.controlAccepts, d.videoAccepts
}

// SendControl writes v as JSON on the current control socket.
func (d *Device) SendControl(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.SendControlRaw(data)
}

// SendControlRaw writes a raw text frame on the current control socket.
func (d *Device) SendControlRaw(data []byte) error {
	conn := d.await(func() *websocket.Conn { return d.control })
	if conn == nil {
		return websocket.ErrCloseSent
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SendFrame writes one binary frame on the current video socket.
func (d *Device) SendFrame(data []byte) error {
	conn := d.await(func() *websocket.Conn { return d.video })
	if conn == nil {
		return websocket.ErrCloseSent
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// await polls briefly for a socket: the client can observe its side of the
// handshake before the handler has stored the connection.
func (d *Device) await(get func() *websocket.Conn) *websocket.Conn {
	deadline := time.Now().Add(time.Second)
	for {
		d.mu.Lock()
		conn := get()
		d.mu.Unlock()
		if conn != nil || time.Now().After(deadline) {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// DropControl closes the control socket from the device side.
func (d *Device) DropControl() {
	d.mu.Lock()
	conn := d.control
	d.control = nil
	d.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// DropVideo closes the video socket from the device side.
func (d *Device) DropVideo() {
	d.mu.Lock()
	conn := d.video
	d.video = nil
	d.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close drops both sockets and stops the server.
func (d *Device) Close() {
	d.DropControl()
	d.DropVideo()
	d.Server.Close()
}

func (d *Device) handleControl(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.controlDials++
	d.mu.Unlock()

	if d.RejectControl.Load() {
		http.Error(w, "device busy", http.StatusServiceUnavailable)
		return
	}

	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	d.mu.Lock()
	d.control = conn
	d.controlAccepts++
	d.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd map[string]any
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		select {
		case d.Commands <- cmd:
		default:
		}

		if cmd["command"] == "get_settings" {
			d.mu.Lock()
			reply := d.settings
			d.mu.Unlock()
			_ = d.SendControl(reply)
		}
	}
}

func (d *Device) handleVideo(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	d.mu.Lock()
	d.video = conn
	d.videoAccepts++
	d.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
