package webmonitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

const defaultRequestTimeout = 3 * time.Second

type testClient struct {
	baseURL string
	client  *http.Client
}

func newTestClient(baseURL string) *testClient {
	return &testClient{baseURL: baseURL, client: &http.Client{Timeout: defaultRequestTimeout}}
}

func (c *testClient) do(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, data
}

func (c *testClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	return c.do(t, http.MethodGet, path, nil)
}

func (c *testClient) postJSON(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	return c.do(t, http.MethodPost, path, payload)
}

func (c *testClient) postRaw(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := c.client.Post(c.baseURL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, data
}

func readSSEEvent(url, accept string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var event strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, fmt.Errorf("read sse: %w", err)
		}
		if line == "\n" {
			if event.Len() == 0 {
				continue
			}
			return strings.TrimRight(event.String(), "\n"), resp.Header, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		event.WriteString(line)
	}
}

func sseData(t *testing.T, event string) string {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				t.Fatalf("empty sse data line")
			}
			return payload
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return ""
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func decodeJSONSlice(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var payload []map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireString(t *testing.T, value any, field string) string {
	t.Helper()
	str, ok := value.(string)
	if !ok {
		t.Fatalf("expected %s to be string, got %T", field, value)
	}
	return str
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func assertViewPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	requireString(t, payload["status"], "status")
	requireString(t, payload["status_class"], "status_class")
	requireString(t, payload["fps"], "fps")
	requireString(t, payload["detections"], "detections")
	requireString(t, payload["resolution"], "resolution")
	requireString(t, payload["uptime"], "uptime")
	requireString(t, payload["confidence_threshold"], "confidence_threshold")
	requireNumber(t, payload["frames_displayed"], "frames_displayed")
}
