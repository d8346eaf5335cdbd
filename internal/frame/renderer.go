// Package frame turns video-channel messages into the displayed frame and
// keeps exactly one frame handle alive at a time.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/dj-oyu/ai-wifi-cam/liveview/pkg/types"
)

// ErrNoFrame is returned when nothing has been displayed yet.
var ErrNoFrame = errors.New("no frame displayed")

// Displayed is the frame currently on screen.
type Displayed struct {
	Handle     Handle
	Data       []byte
	Width      int
	Height     int
	Format     types.ImageFormat
	Seq        uint64
	ReceivedAt time.Time

	// Image is the fully decoded frame. It is never mutated after Present.
	Image image.Image
}

// Renderer swaps the displayed frame. It is owned by the session loop and is
// not safe for concurrent use.
type Renderer struct {
	alloc       Allocator
	current     *Displayed
	presented   uint64
	undecodable uint64
}

// NewRenderer creates a renderer that takes handles from alloc.
func NewRenderer(alloc Allocator) *Renderer {
	return &Renderer{alloc: alloc}
}

// Present makes f the displayed frame. The previous handle is released only
// after the new frame has fully decoded and become current. A frame that does
// not decode, including one truncated after a valid header, is released
// immediately and the previous frame stays on screen.
func (r *Renderer) Present(f types.Frame) (Displayed, error) {
	h := r.alloc.Allocate(f.Data)

	img, format, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		r.alloc.Release(h)
		r.undecodable++
		return Displayed{}, fmt.Errorf("decode frame %d (%d bytes): %w", f.Seq, len(f.Data), err)
	}

	prev := r.current
	r.current = &Displayed{
		Handle:     h,
		Data:       f.Data,
		Width:      img.Bounds().Dx(),
		Height:     img.Bounds().Dy(),
		Format:     types.ImageFormat(format),
		Seq:        f.Seq,
		ReceivedAt: f.ReceivedAt,
		Image:      img,
	}
	r.presented++

	if prev != nil {
		r.alloc.Release(prev.Handle)
	}
	return *r.current, nil
}

// Current returns the displayed frame.
func (r *Renderer) Current() (Displayed, bool) {
	if r.current == nil {
		return Displayed{}, false
	}
	return *r.current, true
}

// Presented is the number of frames that became current.
func (r *Renderer) Presented() uint64 { return r.presented }

// Undecodable is the number of frames dropped because they did not decode.
func (r *Renderer) Undecodable() uint64 { return r.undecodable }

// Close releases the displayed frame.
func (r *Renderer) Close() {
	if r.current != nil {
		r.alloc.Release(r.current.Handle)
		r.current = nil
	}
}

// Decode returns the decoded image of a displayed frame, decoding Data only
// when Present did not already.
func Decode(d Displayed) (image.Image, error) {
	if d.Image != nil {
		return d.Image, nil
	}
	if len(d.Data) == 0 {
		return nil, ErrNoFrame
	}
	img, _, err := image.Decode(bytes.NewReader(d.Data))
	if err != nil {
		return nil, fmt.Errorf("decode frame %d: %w", d.Seq, err)
	}
	return img, nil
}
