package types

import "time"

// Frame is one encoded image (JPEG in practice) received on the video channel.
// The device sends no sequence metadata; Seq is assigned on receipt.
type Frame struct {
	Data       []byte    // Encoded image bytes, exactly as received
	ReceivedAt time.Time // Wall-clock receipt time
	Seq        uint64    // Receipt order within the session, starting at 1
}

// ImageFormat names the decoders registered for video frames.
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatGIF  ImageFormat = "gif"
	FormatWebP ImageFormat = "webp"
)
