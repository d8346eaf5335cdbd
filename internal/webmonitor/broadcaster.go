package webmonitor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/jpeg"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/dashboard"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/frame"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/logger"
	"github.com/dj-oyu/ai-wifi-cam/liveview/pkg/types"
)

// FrameBroadcaster manages fanout of displayed frames to MJPEG clients.
type FrameBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
	quality int
}

// NewFrameBroadcaster creates a broadcaster. Frames that are not JPEG are
// re-encoded at quality before being sent.
func NewFrameBroadcaster(quality int) *FrameBroadcaster {
	return &FrameBroadcaster{
		clients: make(map[int]chan []byte),
		quality: quality,
	}
}

// Subscribe adds a new client and returns a channel for receiving frames.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := fb.nextID
	fb.nextID++
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	fb.clients[id] = ch

	logger.Debug("FrameBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(fb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if ch, ok := fb.clients[id]; ok {
		close(ch)
		delete(fb.clients, id)
		logger.Debug("FrameBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(fb.clients))
	}
}

// Clients returns the number of subscribers.
func (fb *FrameBroadcaster) Clients() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.clients)
}

// Publish sends d to every client. Nothing is encoded when nobody watches.
func (fb *FrameBroadcaster) Publish(d frame.Displayed) {
	if fb.Clients() == 0 {
		return
	}

	data := d.Data
	if d.Format != types.FormatJPEG {
		img, err := frame.Decode(d)
		if err != nil {
			logger.Warn("FrameBroadcaster", "Cannot re-encode frame %d: %v", d.Seq, err)
			return
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: fb.quality}); err != nil {
			logger.Warn("FrameBroadcaster", "Cannot re-encode frame %d: %v", d.Seq, err)
			return
		}
		data = buf.Bytes()
	}
	fb.broadcast(data)
}

func (fb *FrameBroadcaster) broadcast(data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	for _, ch := range fb.clients {
		select {
		case ch <- data:
		default:
			// Client too slow, skip this frame for this client
		}
	}
}

// SerializedEvent holds pre-serialized data in both formats.
type SerializedEvent struct {
	JSONData     []byte
	ProtobufData []byte // base64 for SSE
}

// StatusBroadcaster fans dashboard views out to SSE clients. A view is
// published on every model change and the latest one is resent on a timer so
// idle clients still see uptime move.
type StatusBroadcaster struct {
	mu       sync.Mutex
	clients  map[int]chan *SerializedEvent
	nextID   int
	latest   *SerializedEvent
	stop     chan struct{}
	stopped  bool
	interval time.Duration
}

// NewStatusBroadcaster creates a broadcaster that resends every interval.
func NewStatusBroadcaster(interval time.Duration) *StatusBroadcaster {
	return &StatusBroadcaster{
		clients:  make(map[int]chan *SerializedEvent),
		stop:     make(chan struct{}),
		interval: interval,
	}
}

// Subscribe adds a new client. The latest view, if any, is queued at once.
func (sb *StatusBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	id := sb.nextID
	sb.nextID++
	ch := make(chan *SerializedEvent, 4)
	if sb.latest != nil {
		ch <- sb.latest
	}
	sb.clients[id] = ch

	logger.Debug("StatusBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(sb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (sb *StatusBroadcaster) Unsubscribe(id int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if ch, ok := sb.clients[id]; ok {
		close(ch)
		delete(sb.clients, id)
		logger.Debug("StatusBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(sb.clients))
	}
}

// Start begins the periodic resend loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the broadcaster.
func (sb *StatusBroadcaster) Stop() {
	sb.mu.Lock()
	if !sb.stopped {
		close(sb.stop)
		sb.stopped = true
	}
	sb.mu.Unlock()
}

func (sb *StatusBroadcaster) run() {
	if sb.interval <= 0 {
		return
	}
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.stop:
			return
		case <-ticker.C:
			sb.mu.Lock()
			event := sb.latest
			sb.mu.Unlock()
			if event != nil {
				sb.broadcast(event)
			}
		}
	}
}

// Publish serializes v once and sends it to every client.
func (sb *StatusBroadcaster) Publish(v dashboard.View) {
	event, err := serializeView(v)
	if err != nil {
		logger.Error("StatusBroadcaster", "Serialize error: %v", err)
		return
	}

	sb.mu.Lock()
	sb.latest = event
	sb.mu.Unlock()

	sb.broadcast(event)
}

func (sb *StatusBroadcaster) broadcast(event *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for _, ch := range sb.clients {
		select {
		case ch <- event:
		default:
			// Client too slow, skip this event for this client
		}
	}
}

// serializeView renders v as JSON and as a base64 protobuf Struct with the
// same field names.
func serializeView(v dashboard.View) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	pbData, err := proto.Marshal(st)
	if err != nil {
		return nil, err
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}
