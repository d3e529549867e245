// Package camera provides the live frame source backed by a video capture
// device. Frames are handed out as JPEG-encodable snapshots so the capture
// pipeline never holds a reference into the device buffer.
package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"odescreen/capture"
	"odescreen/logging"
)

// Source reads frames from one capture device. It implements
// capture.FrameSource.
type Source struct {
	mu     sync.Mutex
	device int
	cap    *gocv.VideoCapture
	buf    gocv.Mat
}

// Open connects to the capture device at the given index and requests the
// working resolution. Devices that ignore the request still work; frames are
// scaled later in the pipeline.
func Open(device, width, height int) (*Source, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("cannot open capture device %d: %v", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture device %d is not opened", device)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))

	return &Source{
		device: device,
		cap:    vc,
		buf:    gocv.NewMat(),
	}, nil
}

// Device returns the index of the currently open device.
func (s *Source) Device() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Switch closes the current device and opens another one, keeping the
// working resolution. The old device stays open if the new one fails.
func (s *Source) Switch(device, width, height int) error {
	next, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("cannot open capture device %d: %v", device, err)
	}
	if !next.IsOpened() {
		next.Close()
		return fmt.Errorf("capture device %d is not opened", device)
	}
	next.Set(gocv.VideoCaptureFrameWidth, float64(width))
	next.Set(gocv.VideoCaptureFrameHeight, float64(height))

	s.mu.Lock()
	old := s.cap
	s.cap = next
	s.device = device
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// SetTorch asks the device to toggle its illumination. OpenCV exposes no
// portable torch property, so this reports unsupported; the caller warns
// the operator and carries on without the torch.
func (s *Source) SetTorch(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Errorf("device %d does not support torch control", s.device)
}

// Grab reads the next frame and returns an independent snapshot of it.
func (s *Source) Grab(ctx context.Context) (capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cap.Read(&s.buf) {
		return nil, fmt.Errorf("cannot read frame from device %d", s.device)
	}
	if s.buf.Empty() {
		return nil, fmt.Errorf("empty frame from device %d", s.device)
	}

	// Clone so the frame survives the next Read into the shared buffer.
	return &matFrame{mat: s.buf.Clone()}, nil
}

// Close releases the device and the read buffer.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Close()
	if s.cap != nil {
		if err := s.cap.Close(); err != nil {
			return fmt.Errorf("cannot close capture device %d: %v", s.device, err)
		}
		s.cap = nil
	}
	return nil
}

// matFrame is one captured frame. It owns its Mat and must be closed.
type matFrame struct {
	mat gocv.Mat
}

func (f *matFrame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.mat.Cols(), f.mat.Rows())
}

// Encode returns the frame as JPEG at native resolution.
func (f *matFrame) Encode() ([]byte, error) {
	return encodeMat(f.mat)
}

// EncodeScaled returns the frame as JPEG resized to the given dimensions.
func (f *matFrame) EncodeScaled(width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid scale target %dx%d", width, height)
	}
	if width == f.mat.Cols() && height == f.mat.Rows() {
		return encodeMat(f.mat)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(f.mat, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	return encodeMat(resized)
}

// EncodeRegion returns the given sub-rectangle as JPEG. The rectangle must
// lie inside the frame bounds.
func (f *matFrame) EncodeRegion(r image.Rectangle) ([]byte, error) {
	if !r.In(f.Bounds()) {
		return nil, fmt.Errorf("region %v outside frame bounds %v", r, f.Bounds())
	}

	roi := f.mat.Region(r)
	defer roi.Close()

	// Region shares storage with the parent Mat; encode from a copy.
	crop := roi.Clone()
	defer crop.Close()
	return encodeMat(crop)
}

func (f *matFrame) Close() {
	if err := f.mat.Close(); err != nil {
		logging.LogStageEvent("CAPTURE", "release frame", err)
	}
}

func encodeMat(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, m)
	if err != nil {
		return nil, fmt.Errorf("cannot encode frame: %v", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
