// Package capture drives the frame-acquisition loop: it decides, frame by
// frame, whether to invoke the detector and whether a detection is persisted
// as a captured image. Frame sources and detectors are injected behind small
// interfaces so the loop itself owns only policy: threshold, debounce,
// padding and cancellation.
package capture

import (
	"context"
	"image"

	"odescreen/geometry"
)

// Frame is a single acquired camera frame. Implementations own native pixel
// data; the controller only ever asks for encoded views of it. Close releases
// the underlying buffer and must be called once per grabbed frame.
type Frame interface {
	// Bounds returns the native-resolution pixel bounds.
	Bounds() image.Rectangle

	// EncodeScaled encodes the frame downscaled to the given working
	// resolution. The detector consumes this, never the native frame.
	EncodeScaled(width, height int) ([]byte, error)

	// EncodeRegion encodes a native-resolution sub-rectangle.
	EncodeRegion(r image.Rectangle) ([]byte, error)

	// Encode encodes the full native-resolution frame verbatim.
	Encode() ([]byte, error)

	Close()
}

// FrameSource produces frames on demand from a live camera or other stream.
type FrameSource interface {
	Grab(ctx context.Context) (Frame, error)
}

// Detection is a single detector result: confidence score plus the
// normalized bounding box of the located optic disc.
type Detection struct {
	Score float64
	Box   geometry.Box
}

// Detector runs object detection over one encoded working-resolution frame.
// The second return value is false when the model produced no usable result
// for the frame; that is not an error.
type Detector interface {
	Detect(ctx context.Context, frame []byte) (Detection, bool, error)
}
