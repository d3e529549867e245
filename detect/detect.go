// Package detect runs the optic-disc detection network over encoded frames.
// The network follows the SSD detection output convention: one row per
// candidate with a confidence and a normalized bounding box.
package detect

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"odescreen/capture"
	"odescreen/geometry"
)

// inputSize is the square side length the detection network was trained on.
const inputSize = 320

// Detector wraps the detection network. It implements capture.Detector.
// Forward passes are serialized; DNN nets are not safe for concurrent use.
type Detector struct {
	mu  sync.Mutex
	net gocv.Net
}

// New loads the detection network from the given weights file. ONNX and
// frozen-graph formats are detected from the file extension.
func New(modelPath string) (*Detector, error) {
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("cannot load detection model from %s", modelPath)
	}
	return &Detector{net: net}, nil
}

// Detect decodes one frame and returns the highest-confidence candidate.
// The second return is false when the network produced no candidate at all;
// low-confidence candidates are still returned and thresholded by the caller.
func (d *Detector) Detect(ctx context.Context, frame []byte) (capture.Detection, bool, error) {
	if err := ctx.Err(); err != nil {
		return capture.Detection{}, false, err
	}

	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return capture.Detection{}, false, fmt.Errorf("cannot decode frame: %v", err)
	}
	defer img.Close()
	if img.Empty() {
		return capture.Detection{}, false, fmt.Errorf("decoded frame is empty")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(inputSize, inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	return bestCandidate(&out)
}

// bestCandidate scans the SSD output rows [id, label, conf, x1, y1, x2, y2]
// and keeps the highest-confidence box, clamped to the normalized frame.
func bestCandidate(out *gocv.Mat) (capture.Detection, bool, error) {
	var best capture.Detection
	found := false

	for i := 0; i+7 <= out.Total(); i += 7 {
		conf := float64(out.GetFloatAt(0, i+2))
		if !found || conf > best.Score {
			best = capture.Detection{
				Score: conf,
				Box: geometry.Box{
					XMin: clamp01(float64(out.GetFloatAt(0, i+3))),
					YMin: clamp01(float64(out.GetFloatAt(0, i+4))),
					XMax: clamp01(float64(out.GetFloatAt(0, i+5))),
					YMax: clamp01(float64(out.GetFloatAt(0, i+6))),
				},
			}
			found = true
		}
	}

	return best, found, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
