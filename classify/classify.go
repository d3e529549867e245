// Package classify runs the binary optic-disc-edema classifier over cropped
// disc images. The network takes a square RGB input scaled to [0,1] and
// emits a single sigmoid probability for the not-edema class.
package classify

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Classifier wraps the classification network. It implements the analysis
// stage's Classifier interface. Forward passes are serialized; DNN nets are
// not safe for concurrent use.
type Classifier struct {
	mu        sync.Mutex
	net       gocv.Net
	inputSize int
}

// New loads the classification network from the given weights file.
func New(modelPath string, inputSize int) (*Classifier, error) {
	if inputSize <= 0 {
		return nil, fmt.Errorf("invalid classifier input size %d", inputSize)
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("cannot load classification model from %s", modelPath)
	}
	return &Classifier{net: net, inputSize: inputSize}, nil
}

// Classify decodes one cropped image and returns the not-edema probability.
func (c *Classifier) Classify(ctx context.Context, img []byte) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return 0, fmt.Errorf("cannot decode image: %v", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return 0, fmt.Errorf("decoded image is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(c.inputSize, c.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	c.mu.Lock()
	c.net.SetInput(blob, "")
	out := c.net.Forward("")
	c.mu.Unlock()
	defer out.Close()

	if out.Total() < 1 {
		return 0, fmt.Errorf("classifier produced no output")
	}

	p := float64(out.GetFloatAt(0, 0))
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("classifier output %v outside [0,1]", p)
	}
	return p, nil
}

// Close releases the network.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}
