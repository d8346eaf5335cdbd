// Package webmonitor serves the local dashboard: the page itself, an SSE feed
// of the dashboard view, an MJPEG stream of the displayed frame and the JSON
// endpoints behind the page's buttons.
package webmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"

	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/config"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/dashboard"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/frame"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/logger"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/metrics"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/prefs"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/session"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/snapshot"
)

// Controller is the session surface the dashboard drives.
type Controller interface {
	View() dashboard.View
	Gallery() *snapshot.Gallery
	ApplySettings(ctx context.Context, form session.SettingsForm) error
	TakeSnapshot(ctx context.Context) (snapshot.Snapshot, bool, error)
	ToggleFullscreen(ctx context.Context) (bool, error)
}

// Server serves the dashboard endpoints. It also observes the session and
// fans its updates out to connected clients.
type Server struct {
	cfg     config.Config
	ctrl    Controller
	prefs   *prefs.Store
	metrics *metrics.Metrics
	frames  *FrameBroadcaster
	status  *StatusBroadcaster
	blank   []byte
	log     logger.Module
}

// NewServer returns a configured dashboard server.
func NewServer(cfg config.Config, ctrl Controller, store *prefs.Store, m *metrics.Metrics) (*Server, error) {
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = config.DefaultConfig().StatusInterval
	}
	if cfg.MJPEGKeepalive == 0 {
		cfg.MJPEGKeepalive = config.DefaultConfig().MJPEGKeepalive
	}
	if m == nil {
		m = metrics.New()
	}
	blank, err := blankJPEG()
	if err != nil {
		return nil, fmt.Errorf("render keepalive frame: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		prefs:   store,
		metrics: m,
		frames:  NewFrameBroadcaster(cfg.SnapshotQuality),
		status:  NewStatusBroadcaster(cfg.StatusInterval),
		blank:   blank,
		log:     logger.For("WebMonitor"),
	}
	s.status.Publish(ctrl.View())
	s.status.Start()
	return s, nil
}

// Close stops the periodic status resend.
func (s *Server) Close() {
	s.status.Stop()
}

// ViewChanged implements session.Observer.
func (s *Server) ViewChanged(v dashboard.View) {
	s.status.Publish(v)
}

// FrameDisplayed implements session.Observer.
func (s *Server) FrameDisplayed(d frame.Displayed) {
	s.frames.Publish(d)
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, s.requestLog)

	r.Get("/", s.handleIndex)
	r.Method(http.MethodGet, "/assets/{name}", newAssetHandler(s.cfg.AssetsDir))
	r.Get("/stream", s.handleStream)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/status/stream", s.handleStatusStream)
		r.Post("/settings", s.handleSettings)
		r.Post("/fullscreen", s.handleFullscreen)

		r.Post("/snapshots", s.handleSnapshotCapture)
		r.Get("/snapshots", s.handleSnapshotList)
		r.Get("/snapshots/{ordinal}", s.handleSnapshotImage)

		r.Get("/modal", s.handleModal)
		r.Post("/modal/{ordinal}", s.handleModalOpen)
		r.Delete("/modal", s.handleModalClose)
		r.Get("/modal/download", s.handleModalDownload)

		r.Get("/preferences", s.handlePreferences)
		r.Put("/preferences", s.handlePreferencesUpdate)
	})

	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("%s %s -> %d (%v)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.frames.Subscribe()
	defer s.frames.Unsubscribe(id)

	s.metrics.MJPEGClients.Add(1)
	defer s.metrics.MJPEGClients.Add(-1)

	streamMJPEGFromChannel(r.Context(), w, frameCh, s.blank, s.cfg.MJPEGKeepalive)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ctrl.View())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.status.Subscribe()
	defer s.status.Unsubscribe(id)

	s.metrics.SSEClients.Add(1)
	defer s.metrics.SSEClients.Add(-1)

	accept := r.Header.Get("Accept")
	useProtobuf := strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")

	streamStatusEventsFromChannel(r.Context(), w, eventCh, useProtobuf)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var form session.SettingsForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeJSONWithStatus(w, map[string]any{"sent": false, "error": "invalid settings payload"}, http.StatusBadRequest)
		return
	}

	err := s.ctrl.ApplySettings(r.Context(), form)
	switch {
	case err == nil:
		writeJSON(w, SettingsResult{Sent: true})
	case errors.Is(err, session.ErrNotConnected):
		writeJSON(w, SettingsResult{Sent: false, Reason: "not connected"})
	case errors.Is(err, session.ErrInvalidThreshold):
		writeJSONWithStatus(w, SettingsResult{Sent: false, Reason: err.Error()}, http.StatusBadRequest)
	default:
		writeJSONWithStatus(w, SettingsResult{Sent: false, Reason: err.Error()}, http.StatusServiceUnavailable)
	}
}

func (s *Server) handleFullscreen(w http.ResponseWriter, r *http.Request) {
	changed, err := s.ctrl.ToggleFullscreen(r.Context())
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, FullscreenResult{Changed: changed, Fullscreen: s.ctrl.View().Fullscreen})
}

func (s *Server) handleSnapshotCapture(w http.ResponseWriter, r *http.Request) {
	snap, ok, err := s.ctrl.TakeSnapshot(r.Context())
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSONWithStatus(w, summarize(snap, 0), http.StatusCreated)
}

func (s *Server) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, lo.Map(s.ctrl.Gallery().List(), summarize))
}

func (s *Server) handleSnapshotImage(w http.ResponseWriter, r *http.Request) {
	ordinal, err := strconv.Atoi(chi.URLParam(r, "ordinal"))
	if err != nil {
		http.Error(w, "invalid ordinal", http.StatusBadRequest)
		return
	}
	snap, ok := s.ctrl.Gallery().Get(ordinal)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.JPEG())))
	_, _ = w.Write(snap.JPEG())
}

func (s *Server) handleModal(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.ctrl.Gallery().Modal()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, detail(snap))
}

func (s *Server) handleModalOpen(w http.ResponseWriter, r *http.Request) {
	ordinal, err := strconv.Atoi(chi.URLParam(r, "ordinal"))
	if err != nil {
		http.Error(w, "invalid ordinal", http.StatusBadRequest)
		return
	}
	snap, ok := s.ctrl.Gallery().Open(ordinal)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, detail(snap))
}

func (s *Server) handleModalClose(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Gallery().Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleModalDownload(w http.ResponseWriter, r *http.Request) {
	name, data, ok := s.ctrl.Gallery().Download()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.prefs.Get())
}

func (s *Server) handlePreferencesUpdate(w http.ResponseWriter, r *http.Request) {
	var p prefs.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "invalid preferences payload"}, http.StatusBadRequest)
		return
	}
	if err := s.prefs.Save(p); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, prefs.ErrInvalid) {
			status = http.StatusBadRequest
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}
	writeJSON(w, p)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
