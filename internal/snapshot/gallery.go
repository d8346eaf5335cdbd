package snapshot

import (
	"fmt"
	"sync"
	"time"

	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/frame"
)

// Gallery holds captured snapshots newest first, plus the one open in the
// modal. There is no eviction.
type Gallery struct {
	mu      sync.RWMutex
	items   []Snapshot
	last    int
	modal   *Snapshot
	quality int
	now     func() time.Time
}

// NewGallery creates an empty gallery. now supplies capture timestamps.
func NewGallery(quality int, now func() time.Time) *Gallery {
	if quality <= 0 {
		quality = DefaultQuality
	}
	if now == nil {
		now = time.Now
	}
	return &Gallery{quality: quality, now: now}
}

// Capture rasterizes d and prepends it to the gallery.
func (g *Gallery) Capture(d frame.Displayed) (Snapshot, error) {
	img, err := frame.Decode(d)
	if err != nil {
		return Snapshot{}, err
	}
	data, err := Rasterize(img, g.quality)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot of frame %d: %w", d.Seq, err)
	}

	capturedAt := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.last++
	s := Snapshot{
		Ordinal:      g.last,
		ImageDataURL: DataURL(data),
		Timestamp:    capturedAt.Format("15:04:05"),
		CapturedAt:   capturedAt,
		Width:        img.Bounds().Dx(),
		Height:       img.Bounds().Dy(),
		jpeg:         data,
	}
	g.items = append([]Snapshot{s}, g.items...)
	return s, nil
}

// List returns the snapshots, newest first.
func (g *Gallery) List() []Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Snapshot, len(g.items))
	copy(out, g.items)
	return out
}

// Len is the number of snapshots taken.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.items)
}

// Get finds a snapshot by ordinal.
func (g *Gallery) Get(ordinal int) (Snapshot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.getLocked(ordinal)
}

func (g *Gallery) getLocked(ordinal int) (Snapshot, bool) {
	// Newest first and ordinals are dense, so the index is computable.
	idx := g.last - ordinal
	if idx < 0 || idx >= len(g.items) {
		return Snapshot{}, false
	}
	return g.items[idx], true
}

// Open shows a snapshot in the modal.
func (g *Gallery) Open(ordinal int) (Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.getLocked(ordinal)
	if !ok {
		return Snapshot{}, false
	}
	g.modal = &s
	return s, true
}

// Close hides the modal.
func (g *Gallery) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modal = nil
}

// Modal returns the snapshot open in the modal.
func (g *Gallery) Modal() (Snapshot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.modal == nil {
		return Snapshot{}, false
	}
	return *g.modal, true
}

// Download returns the modal image and its file name. ok is false when the
// modal is empty.
func (g *Gallery) Download() (name string, data []byte, ok bool) {
	s, ok := g.Modal()
	if !ok {
		return "", nil, false
	}
	return s.Filename(), s.JPEG(), true
}
