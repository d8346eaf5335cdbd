// Package snapshot captures the displayed frame into an in-memory gallery.
// Nothing is written to disk; the gallery lives as long as the session.
package snapshot

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// DefaultQuality matches the browser default for canvas JPEG export.
const DefaultQuality = 92

// Snapshot is one captured frame.
type Snapshot struct {
	Ordinal      int
	ImageDataURL string
	Timestamp    string // wall-clock time of day shown under the thumbnail
	CapturedAt   time.Time
	Width        int
	Height       int

	jpeg []byte
}

// JPEG returns the encoded image.
func (s Snapshot) JPEG() []byte { return s.jpeg }

// Filename is the download name for this snapshot.
func (s Snapshot) Filename() string { return Filename(s.CapturedAt) }

// Filename builds snapshot_<UTC ISO-8601 with millis>.jpg with every ':'
// replaced by '-' so the name is valid on every filesystem.
func Filename(capturedAt time.Time) string {
	iso := capturedAt.UTC().Format("2006-01-02T15:04:05.000Z")
	return "snapshot_" + strings.ReplaceAll(iso, ":", "-") + ".jpg"
}

// Rasterize flattens img at its natural size into an RGBA canvas and encodes
// it as JPEG.
func Rasterize(img image.Image, quality int) ([]byte, error) {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(canvas, image.Point{}, img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL wraps JPEG bytes in a data: URL.
func DataURL(jpegData []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)
}
