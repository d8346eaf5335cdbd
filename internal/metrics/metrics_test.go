package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/frame"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCountersAreExported(t *testing.T) {
	m := New()
	m.FramesReceived.Add(3)
	m.FramesDisplayed.Add(2)
	m.ReconnectsScheduled.Add(1)
	m.SetControlConnected(true)

	out := scrape(t, m)
	assert.Contains(t, out, "liveview_frames_received_total 3")
	assert.Contains(t, out, "liveview_frames_displayed_total 2")
	assert.Contains(t, out, "liveview_reconnects_scheduled_total 1")
	assert.Contains(t, out, "liveview_control_connected 1")
	assert.Contains(t, out, "liveview_video_connected 0")
}

func TestPoolStatsAreExported(t *testing.T) {
	m := New()
	assert.Contains(t, scrape(t, m), "liveview_frame_handles_live 0")

	p := frame.NewPool()
	h1 := p.Allocate([]byte{1})
	p.Allocate([]byte{2})
	p.Release(h1)
	m.SetPool(p)

	out := scrape(t, m)
	assert.Contains(t, out, "liveview_frame_handles_allocated_total 2")
	assert.Contains(t, out, "liveview_frame_handles_released_total 1")
	assert.Contains(t, out, "liveview_frame_handles_live 1")
}

func TestGatherListsEveryFamily(t *testing.T) {
	families, err := New().Gather().Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{
		"liveview_control_malformed_total",
		"liveview_settings_dropped_total",
		"liveview_snapshots_captured_total",
		"liveview_sse_clients",
		"liveview_mjpeg_clients",
	} {
		assert.Contains(t, joined, want)
	}
}
