package webmonitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/config"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/dashboard"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/frame"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/metrics"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/prefs"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/session"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/snapshot"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/testutil"
	"github.com/dj-oyu/ai-wifi-cam/liveview/pkg/types"
)

type fakeController struct {
	mu          sync.Mutex
	model       dashboard.Model
	gallery     *snapshot.Gallery
	renderer    *frame.Renderer
	settingsErr error
	forms       []session.SettingsForm
}

func newFakeController() *fakeController {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeController{
		model:    dashboard.New(),
		gallery:  snapshot.NewGallery(snapshot.DefaultQuality, func() time.Time { return at }),
		renderer: frame.NewRenderer(frame.NewPool()),
	}
}

// present displays a frame the way the session would.
func (f *fakeController) present(t *testing.T, data []byte) frame.Displayed {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.renderer.Present(types.Frame{Data: data, Seq: 1})
	require.NoError(t, err)
	f.model, _ = dashboard.FrameDisplayed(f.model, d.Width, d.Height)
	return d
}

func (f *fakeController) View() dashboard.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return dashboard.Project(f.model)
}

func (f *fakeController) Gallery() *snapshot.Gallery { return f.gallery }

func (f *fakeController) ApplySettings(_ context.Context, form session.SettingsForm) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := session.ParseThreshold(form.ConfidenceThreshold); err != nil {
		return err
	}
	f.forms = append(f.forms, form)
	return f.settingsErr
}

func (f *fakeController) TakeSnapshot(context.Context) (snapshot.Snapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.renderer.Current()
	if !f.model.Connected || !ok {
		return snapshot.Snapshot{}, false, nil
	}
	s, err := f.gallery.Capture(d)
	return s, err == nil, err
}

func (f *fakeController) ToggleFullscreen(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var changed bool
	f.model, changed = dashboard.ToggleFullscreen(f.model)
	return changed, nil
}

type fixture struct {
	ctrl    *fakeController
	store   *prefs.Store
	metrics *metrics.Metrics
	srv     *Server
	http    *httptest.Server
	client  *testClient
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.AssetsDir = t.TempDir()
	cfg.PrefsPath = filepath.Join(t.TempDir(), "prefs.yaml")
	cfg.MJPEGKeepalive = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		ctrl:    newFakeController(),
		store:   prefs.NewStore(cfg.PrefsPath),
		metrics: metrics.New(),
	}
	srv, err := NewServer(cfg, f.ctrl, f.store, f.metrics)
	require.NoError(t, err)
	f.srv = srv
	f.http = httptest.NewServer(srv.Handler())
	f.client = newTestClient(f.http.URL)
	t.Cleanup(func() {
		f.http.Close()
		srv.Close()
	})
	return f
}

func TestIndexServesDashboard(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.client.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "/api/status/stream")
	assert.Contains(t, string(body), "function applyFullscreen")
}

func TestAssetsPreferOverrideDirectory(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.client.get(t, "/assets/dashboard.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), ".status-online")

	override := f.srv.cfg.AssetsDir
	require.NoError(t, os.WriteFile(filepath.Join(override, "dashboard.css"), []byte("body{}"), 0o644))
	_, body = f.client.get(t, "/assets/dashboard.css")
	assert.Equal(t, "body{}", string(body))

	resp, _ = f.client.get(t, "/assets/missing.js")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusReturnsView(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.client.get(t, "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeJSONMap(t, body)
	assertViewPayload(t, payload)
	assert.Equal(t, "Disconnected", payload["status"])
	assert.Equal(t, "-", payload["resolution"])
	assert.Equal(t, true, payload["loading"])
}

func TestStatusStreamJSON(t *testing.T) {
	f := newFixture(t, nil)

	m, _ := dashboard.FrameDisplayed(dashboard.New(), 640, 480)
	f.srv.ViewChanged(dashboard.Project(m))

	event, headers, err := readSSEEvent(f.http.URL+"/api/status/stream", "", defaultRequestTimeout)
	require.NoError(t, err)
	assert.Contains(t, headers.Get("Content-Type"), "text/event-stream")
	assert.Equal(t, "application/json", headers.Get("X-Content-Format"))

	payload := decodeJSONMap(t, []byte(sseData(t, event)))
	assertViewPayload(t, payload)
	assert.Equal(t, "Connected", payload["status"])
	assert.Equal(t, "640 × 480", payload["resolution"])
}

func TestStatusStreamProtobuf(t *testing.T) {
	f := newFixture(t, nil)

	event, headers, err := readSSEEvent(f.http.URL+"/api/status/stream", "application/protobuf", defaultRequestTimeout)
	require.NoError(t, err)
	assert.Equal(t, "application/protobuf", headers.Get("X-Content-Format"))

	raw, err := base64.StdEncoding.DecodeString(sseData(t, event))
	require.NoError(t, err)

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(raw, &st))
	assert.Equal(t, "Disconnected", st.Fields["status"].GetStringValue())
	assert.Equal(t, "00:00:00", st.Fields["uptime"].GetStringValue())
	assert.True(t, st.Fields["loading"].GetBoolValue())
}

func TestSettingsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.client.postJSON(t, "/api/settings", map[string]any{
		"ai_model":             "mediapipe_pose",
		"confidence_threshold": "0.75",
		"display_fps":          true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeJSONMap(t, body)["sent"])
	require.Len(t, f.ctrl.forms, 1)
	assert.Equal(t, "0.75", f.ctrl.forms[0].ConfidenceThreshold)

	f.ctrl.settingsErr = session.ErrNotConnected
	resp, body = f.client.postJSON(t, "/api/settings", map[string]any{"ai_model": "yolov4", "confidence_threshold": "0.5"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeJSONMap(t, body)
	assert.Equal(t, false, payload["sent"])
	assert.Equal(t, "not connected", payload["reason"])

	resp, _ = f.client.postJSON(t, "/api/settings", map[string]any{"ai_model": "yolov4", "confidence_threshold": "abc"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.client.postRaw(t, "/api/settings", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSnapshotLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.client.postJSON(t, "/api/snapshots", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "capture without a live stream")

	f.ctrl.present(t, testutil.JPEG(t, 80, 60))

	resp, body := f.client.postJSON(t, "/api/snapshots", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSONMap(t, body)
	assert.Equal(t, float64(1), created["ordinal"])
	assert.Equal(t, "snapshot_2024-01-01T00-00-00.000Z.jpg", created["filename"])

	f.client.postJSON(t, "/api/snapshots", nil)
	_, body = f.client.get(t, "/api/snapshots")
	list := decodeJSONSlice(t, body)
	require.Len(t, list, 2)
	assert.Equal(t, float64(2), list[0]["ordinal"], "newest first")
	assert.Equal(t, "/api/snapshots/1", list[1]["url"])

	resp, body = f.client.get(t, "/api/snapshots/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Width)

	resp, _ = f.client.get(t, "/api/snapshots/9")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.client.get(t, "/api/snapshots/first")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModalAndDownload(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.client.get(t, "/api/modal/download")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "download with empty modal")

	f.ctrl.present(t, testutil.JPEG(t, 32, 32))
	f.client.postJSON(t, "/api/snapshots", nil)

	resp, _ = f.client.postJSON(t, "/api/modal/5", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := f.client.postJSON(t, "/api/modal/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	opened := decodeJSONMap(t, body)
	assert.True(t, strings.HasPrefix(requireString(t, opened["image_data_url"], "image_data_url"), "data:image/jpeg;base64,"))

	resp, body = f.client.get(t, "/api/modal/download")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	disposition := resp.Header.Get("Content-Disposition")
	assert.Contains(t, disposition, "attachment")
	assert.Contains(t, disposition, "snapshot_2024-01-01T00-00-00.000Z.jpg")
	assert.NotEmpty(t, body)

	resp, _ = f.client.do(t, http.MethodDelete, "/api/modal", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = f.client.get(t, "/api/modal")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestFullscreenEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	_, body := f.client.postJSON(t, "/api/fullscreen", nil)
	assert.Equal(t, false, decodeJSONMap(t, body)["changed"])

	f.ctrl.present(t, testutil.JPEG(t, 8, 8))
	_, body = f.client.postJSON(t, "/api/fullscreen", nil)
	payload := decodeJSONMap(t, body)
	assert.Equal(t, true, payload["changed"])
	assert.Equal(t, true, payload["fullscreen"])
}

func TestPreferencesEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	_, body := f.client.get(t, "/api/preferences")
	payload := decodeJSONMap(t, body)
	assert.Equal(t, "light", payload["theme"])
	assert.Equal(t, "live", payload["activeTab"])

	resp, _ := f.client.do(t, http.MethodPut, "/api/preferences", map[string]any{"theme": "dark", "activeTab": "gallery"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, prefs.Preferences{Theme: "dark", ActiveTab: "gallery"}, f.store.Get())

	reloaded, err := prefs.NewStore(f.srv.cfg.PrefsPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "dark", reloaded.Theme)

	resp, _ = f.client.do(t, http.MethodPut, "/api/preferences", map[string]any{"theme": "blue", "activeTab": "live"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.client.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "liveview_sse_clients")
	assert.Contains(t, string(body), "liveview_frames_received_total")
}

// readPart reads one multipart frame body from an MJPEG stream.
func readPart(t *testing.T, r *bufio.Reader) []byte {
	t.Helper()
	length := -1
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" && length >= 0 {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			length, err = strconv.Atoi(v)
			require.NoError(t, err)
		}
	}
	data := make([]byte, length)
	_, err := io.ReadFull(r, data)
	require.NoError(t, err)
	return data
}

func TestMJPEGStreamFansOutFrames(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.http.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Contains(t, resp.Header.Get("Content-Type"), "multipart/x-mixed-replace")
	assert.Contains(t, resp.Header.Get("Content-Type"), "boundary=frame")
	require.Eventually(t, func() bool { return f.srv.frames.Clients() == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, f.metrics.MJPEGClients.Load())

	jpegFrame := testutil.JPEG(t, 24, 24)
	f.srv.FrameDisplayed(f.ctrl.present(t, jpegFrame))

	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, jpegFrame, readPart(t, reader))

	// Non-JPEG frames are re-encoded.
	f.srv.FrameDisplayed(f.ctrl.present(t, testutil.PNG(t, 12, 10)))
	part := readPart(t, reader)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(part))
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
}

func TestMJPEGKeepaliveSendsColourBars(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.MJPEGKeepalive = 20 * time.Millisecond })

	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.http.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	part := readPart(t, bufio.NewReader(resp.Body))
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(part))
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
}

func TestStatusBroadcasterSkipsSlowClients(t *testing.T) {
	sb := NewStatusBroadcaster(0)
	id, ch := sb.Subscribe()
	defer sb.Unsubscribe(id)

	for i := 0; i < 20; i++ {
		m := dashboard.Tick(dashboard.New(), time.Duration(i)*time.Second)
		sb.Publish(dashboard.Project(m))
	}
	assert.LessOrEqual(t, len(ch), cap(ch))

	// A late subscriber sees the latest view first.
	id2, ch2 := sb.Subscribe()
	defer sb.Unsubscribe(id2)
	event := <-ch2
	assert.Contains(t, string(event.JSONData), `"uptime":"00:00:19"`)
}
