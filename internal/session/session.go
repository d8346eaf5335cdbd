// Package session owns the connection to one camera device. A single event
// loop serializes socket events, timers and user actions; every model change
// goes through the pure transitions in package dashboard.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/config"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/dashboard"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/frame"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/logger"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/metrics"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/snapshot"
	"github.com/dj-oyu/ai-wifi-cam/liveview/pkg/types"
)

var (
	// ErrNotConnected is returned when a settings push is dropped because the
	// control channel is not open.
	ErrNotConnected = errors.New("control channel not connected")
	// ErrInvalidThreshold is returned when the confidence threshold does not
	// parse to a number in [0, 1].
	ErrInvalidThreshold = errors.New("invalid confidence threshold")
	// ErrStopped is returned by actions once Run has returned.
	ErrStopped = errors.New("session stopped")
)

// Observer is notified on the loop goroutine and must not block.
type Observer interface {
	ViewChanged(v dashboard.View)
	FrameDisplayed(d frame.Displayed)
}

// SettingsForm is the settings form as the user submitted it.
type SettingsForm struct {
	AIModel             string `json:"ai_model"`
	ConfidenceThreshold string `json:"confidence_threshold"`
	DisplayFPS          bool   `json:"display_fps"`
}

// Options configures a Session. Zero values get real implementations.
type Options struct {
	Dialer  Dialer
	Clock   clockwork.Clock
	Metrics *metrics.Metrics
	Pool    *frame.Pool
}

// Session is one live-view client.
type Session struct {
	ID string

	cfg        config.Config
	controlURL string
	videoURL   string
	dialer     Dialer
	clk        clockwork.Clock
	metrics    *metrics.Metrics
	pool       *frame.Pool
	gallery    *snapshot.Gallery
	log        logger.Module

	events  chan event
	stopped chan struct{}
	running atomic.Bool
	readers sync.WaitGroup

	state atomic.Pointer[dashboard.Model]

	obsMu     sync.RWMutex
	observers []Observer

	// Owned by the loop.
	model     dashboard.Model
	renderer  *frame.Renderer
	gen       uint64
	control   Conn
	video     Conn
	reconnect clockwork.Timer
	started   time.Time
	seq       uint64
}

// New creates a session for the device described by cfg.
func New(cfg config.Config, opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = NewWebSocketDialer(cfg.HandshakeTimeout)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Pool == nil {
		opts.Pool = frame.NewPool()
	}
	opts.Metrics.SetPool(opts.Pool)

	controlURL, videoURL := cfg.Endpoints()
	s := &Session{
		ID:         uuid.NewString(),
		cfg:        cfg,
		controlURL: controlURL,
		videoURL:   videoURL,
		dialer:     opts.Dialer,
		clk:        opts.Clock,
		metrics:    opts.Metrics,
		pool:       opts.Pool,
		gallery:    snapshot.NewGallery(cfg.SnapshotQuality, opts.Clock.Now),
		log:        logger.For("Session"),
		events:     make(chan event),
		stopped:    make(chan struct{}),
		model:      dashboard.New(),
		renderer:   frame.NewRenderer(opts.Pool),
	}
	s.publish()
	return s
}

// Observe registers o for view and frame updates.
func (s *Session) Observe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Model returns the latest model. Safe from any goroutine.
func (s *Session) Model() dashboard.Model {
	return *s.state.Load()
}

// View returns the latest display projection. Safe from any goroutine.
func (s *Session) View() dashboard.View {
	return dashboard.Project(s.Model())
}

// Gallery returns the snapshot gallery.
func (s *Session) Gallery() *snapshot.Gallery {
	return s.gallery
}

// Endpoints returns the control and video URLs being dialed.
func (s *Session) Endpoints() (control, video string) {
	return s.controlURL, s.videoURL
}

// Run dials the device and processes events until ctx is cancelled. On return
// both sockets are closed, timers are stopped and the displayed frame is
// released.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	defer close(s.stopped)

	s.started = s.clk.Now()
	ticker := s.clk.NewTicker(s.cfg.UptimeInterval)
	defer ticker.Stop()

	s.log.Info("Session %s starting (control=%s video=%s)", s.ID, s.controlURL, s.videoURL)
	s.connect(ctx)

	for {
		select {
		case <-ctx.Done():
			s.teardown()
			s.log.Info("Session %s stopped", s.ID)
			return nil
		case ev := <-s.events:
			s.handle(ctx, ev)
		case <-ticker.Chan():
			s.setModel(dashboard.Tick(s.model, s.clk.Now().Sub(s.started)))
		}
	}
}

// connect starts a new connection generation and dials both channels.
func (s *Session) connect(ctx context.Context) {
	s.gen++
	s.closeSockets()
	s.setModel(dashboard.Connecting(s.model))

	s.log.Debug("Dialing generation %d", s.gen)
	s.startReader(ctx, s.gen, channelControl, s.controlURL)
	s.startReader(ctx, s.gen, channelVideo, s.videoURL)
}

func (s *Session) startReader(ctx context.Context, gen uint64, ch channel, url string) {
	s.readers.Add(1)
	go func() {
		defer s.readers.Done()
		s.read(ctx, gen, ch, url)
	}()
}

// read dials one channel and forwards its messages to the loop until the
// socket fails.
func (s *Session) read(ctx context.Context, gen uint64, ch channel, url string) {
	conn, err := s.dialer.Dial(ctx, url)
	if err != nil {
		s.post(ctx, closedEvent{ch: ch, gen: gen, err: err})
		return
	}
	if !s.post(ctx, openedEvent{ch: ch, gen: gen, conn: conn}) {
		conn.Close()
		return
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			s.post(ctx, closedEvent{ch: ch, gen: gen, err: err})
			return
		}

		var ev event
		switch {
		case ch == channelControl && mt == websocket.TextMessage:
			ev = textEvent{gen: gen, data: data}
		case ch == channelVideo && mt == websocket.BinaryMessage:
			ev = frameEvent{gen: gen, data: data, at: s.clk.Now()}
		default:
			s.log.Debug("Ignoring message type %d on %s channel", mt, ch)
			continue
		}
		if !s.post(ctx, ev) {
			return
		}
	}
}

func (s *Session) post(ctx context.Context, ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case openedEvent:
		s.handleOpened(ev)
	case closedEvent:
		s.handleClosed(ctx, ev)
	case textEvent:
		if ev.gen == s.gen {
			s.handleControlMessage(ev.data)
		}
	case frameEvent:
		if ev.gen == s.gen {
			s.handleFrame(ev)
		}
	case reconnectEvent:
		s.handleReconnect(ctx)
	case actionEvent:
		ev.fn()
	}
}

func (s *Session) handleOpened(ev openedEvent) {
	if ev.gen != s.gen {
		ev.conn.Close()
		return
	}

	switch ev.ch {
	case channelControl:
		s.control = ev.conn
		s.metrics.SetControlConnected(true)
		s.setModel(dashboard.ControlOpened(s.model))
		s.log.Info("Control channel connected")
		if err := s.send(types.NewGetSettings()); err != nil {
			s.log.Warn("Failed to request settings: %v", err)
		}
	case channelVideo:
		s.video = ev.conn
		s.metrics.SetVideoConnected(true)
		s.setModel(dashboard.VideoOpened(s.model))
		s.log.Info("Video channel connected")
	}
}

func (s *Session) handleClosed(ctx context.Context, ev closedEvent) {
	if ev.gen != s.gen {
		return
	}

	switch ev.ch {
	case channelControl:
		if s.control != nil {
			s.control.Close()
			s.control = nil
		}
		s.metrics.SetControlConnected(false)
		s.setModel(dashboard.ControlLost(s.model))
		s.log.Warn("Control channel closed: %v", ev.err)
		s.scheduleReconnect(ctx)
	case channelVideo:
		if s.video != nil {
			s.video.Close()
			s.video = nil
		}
		s.metrics.SetVideoConnected(false)
		s.setModel(dashboard.VideoClosed(s.model))
		s.log.Info("Video channel closed: %v", ev.err)
	}
}

// scheduleReconnect arms the reconnect timer unless one is already pending.
func (s *Session) scheduleReconnect(ctx context.Context) {
	if s.reconnect != nil {
		return
	}
	s.metrics.ReconnectsScheduled.Add(1)
	s.log.Info("Reconnecting in %v", s.cfg.ReconnectDelay)
	s.reconnect = s.clk.AfterFunc(s.cfg.ReconnectDelay, func() {
		// Never block the clock that fired us.
		go s.post(ctx, reconnectEvent{})
	})
}

func (s *Session) handleReconnect(ctx context.Context) {
	s.reconnect = nil
	if s.model.Conn.ControlConnected {
		return
	}
	s.metrics.ReconnectsAttempted.Add(1)
	s.connect(ctx)
}

func (s *Session) handleControlMessage(data []byte) {
	s.metrics.ControlMessages.Add(1)

	next, routed, err := dashboard.Route(s.model, data)
	if err != nil {
		s.metrics.ControlMalformed.Add(1)
		s.log.Warn("Discarding control message: %v", err)
		return
	}

	switch routed.Type {
	case types.MessageError:
		s.metrics.DeviceErrors.Add(1)
		s.log.Error("Device error: %s", routed.DeviceError)
	case types.MessageStatus, types.MessageSettings, types.MessageStats, types.MessageDetections:
	default:
		s.log.Debug("Ignoring control message type %q", routed.Type)
	}

	if routed.Applied {
		s.setModel(next)
	}
}

func (s *Session) handleFrame(ev frameEvent) {
	s.metrics.FramesReceived.Add(1)
	s.seq++

	d, err := s.renderer.Present(types.Frame{Data: ev.data, ReceivedAt: ev.at, Seq: s.seq})
	if err != nil {
		s.metrics.FramesUndecodable.Add(1)
		s.log.Warn("Dropping frame: %v", err)
		return
	}
	s.metrics.FramesDisplayed.Add(1)

	next, unlocked := dashboard.FrameDisplayed(s.model, d.Width, d.Height)
	if unlocked {
		s.log.Info("Stream live (%dx%d %s)", d.Width, d.Height, d.Format)
	}
	s.setModel(next)

	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	for _, o := range s.observers {
		o.FrameDisplayed(d)
	}
}

// send writes v as JSON on the control channel.
func (s *Session) send(v any) error {
	if s.control == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if s.cfg.WriteTimeout > 0 {
		// Socket deadlines are wall-clock even under a fake clock.
		_ = s.control.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := s.control.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

func (s *Session) setModel(m dashboard.Model) {
	s.model = m
	s.publish()
}

func (s *Session) publish() {
	m := s.model
	s.state.Store(&m)

	v := dashboard.Project(m)
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	for _, o := range s.observers {
		o.ViewChanged(v)
	}
}

func (s *Session) closeSockets() {
	if s.control != nil {
		s.control.Close()
		s.control = nil
	}
	if s.video != nil {
		s.video.Close()
		s.video = nil
	}
	s.metrics.SetControlConnected(false)
	s.metrics.SetVideoConnected(false)
}

func (s *Session) teardown() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.gen++
	s.closeSockets()
	s.readers.Wait()
	s.renderer.Close()
	s.setModel(dashboard.Reset(s.model))
}

// do runs fn on the loop and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	ev := actionEvent{fn: func() {
		fn()
		close(done)
	}}

	select {
	case s.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// ParseThreshold coerces the form value to a number in [0, 1].
func ParseThreshold(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || f < 0 || f > 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidThreshold, v)
	}
	return f, nil
}

// ApplySettings pushes the form to the device and applies it locally. While
// the control channel is closed the push is dropped with ErrNotConnected.
func (s *Session) ApplySettings(ctx context.Context, form SettingsForm) error {
	threshold, err := ParseThreshold(form.ConfidenceThreshold)
	if err != nil {
		s.log.Warn("Not sending settings: %v", err)
		return err
	}

	var result error
	err = s.do(ctx, func() {
		if !s.model.Conn.IsConnected() || s.control == nil {
			s.metrics.SettingsDropped.Add(1)
			s.log.Warn("Control channel not connected, dropping settings update")
			result = ErrNotConnected
			return
		}

		cmd := types.NewUpdateSettings(form.AIModel, threshold, form.DisplayFPS)
		if err := s.send(cmd); err != nil {
			s.log.Warn("Failed to send settings: %v", err)
			result = err
			return
		}
		s.metrics.SettingsSent.Add(1)
		s.setModel(dashboard.ApplyLocalSettings(s.model, dashboard.DeviceSettings{
			AIModel:             form.AIModel,
			ConfidenceThreshold: threshold,
			DisplayFPS:          form.DisplayFPS,
		}))
		s.log.Info("Settings sent: model=%s threshold=%v display_fps=%t", form.AIModel, threshold, form.DisplayFPS)
	})
	if err != nil {
		return err
	}
	return result
}

// TakeSnapshot captures the displayed frame. ok is false when the display is
// not connected or no frame is displayed.
func (s *Session) TakeSnapshot(ctx context.Context) (snapshot.Snapshot, bool, error) {
	var (
		d    frame.Displayed
		live bool
	)
	if err := s.do(ctx, func() {
		if s.model.Connected {
			d, live = s.renderer.Current()
		}
	}); err != nil {
		return snapshot.Snapshot{}, false, err
	}
	if !live {
		return snapshot.Snapshot{}, false, nil
	}

	// Rasterized off the loop; d.Image is immutable once presented.
	snap, err := s.gallery.Capture(d)
	if err != nil {
		s.log.Warn("Snapshot failed: %v", err)
		return snapshot.Snapshot{}, false, err
	}
	s.metrics.SnapshotsCaptured.Add(1)
	s.log.Info("Snapshot %d captured (%dx%d)", snap.Ordinal, snap.Width, snap.Height)
	return snap, true, nil
}

// ToggleFullscreen flips fullscreen. changed is false while the stream is not
// live.
func (s *Session) ToggleFullscreen(ctx context.Context) (changed bool, err error) {
	err = s.do(ctx, func() {
		var next dashboard.Model
		next, changed = dashboard.ToggleFullscreen(s.model)
		if changed {
			s.setModel(next)
		}
	})
	return changed, err
}
