package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"odescreen/geometry"
	"odescreen/logging"
	"odescreen/store"
	"odescreen/types"
)

// ErrNotActive is returned by commands that require the capture stage to be
// running.
var ErrNotActive = errors.New("capture controller is not active")

// ErrDetectionDisabled is returned when auto-capture is armed while the
// detection loop is off.
var ErrDetectionDisabled = errors.New("auto-capture requires detection to be enabled")

// Options holds the capture policy knobs.
type Options struct {
	DetectionThreshold float64
	Debounce           time.Duration
	PadRatio           float64
	WorkingWidth       int
	WorkingHeight      int
	// FlipDisplay reflects the indicator box on both axes for camera
	// mountings that render upside down. The capture crop never flips.
	FlipDisplay bool
	// FrameInterval is the loop cadence, aligned to the display refresh.
	FrameInterval time.Duration
}

// DefaultOptions mirrors the deployed capture policy.
func DefaultOptions() Options {
	return Options{
		DetectionThreshold: 0.80,
		Debounce:           300 * time.Millisecond,
		PadRatio:           0.10,
		WorkingWidth:       640,
		WorkingHeight:      480,
		FrameInterval:      33 * time.Millisecond,
	}
}

// Controller owns the detection loop and the manual-capture path. It is the
// only writer appending to the image store.
//
// detectionEnabled gates whether the loop runs at all; when disabled the
// loop goroutine is cancelled outright rather than spinning on early
// returns. autoCaptureArmed additionally gates persistence: detections are
// visualized but not stored until armed. An epoch counter closes the race
// where an in-flight detector call settles after the loop was cancelled:
// stale results are discarded before they can touch the store or the
// indicator.
type Controller struct {
	opts     Options
	source   FrameSource
	detector Detector
	images   *store.Store

	mu          sync.Mutex
	active      bool
	enabled     bool
	armed       bool
	eye         types.Eye
	epoch       uint64
	lastCapture time.Time
	indicator   *geometry.Box
	onIndicator func(*geometry.Box)

	parent   context.Context
	loopStop context.CancelFunc
	loopDone chan struct{}

	now func() time.Time
}

// NewController wires a controller to its frame source, detector and store.
func NewController(source FrameSource, detector Detector, images *store.Store, opts Options) *Controller {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultOptions().FrameInterval
	}
	return &Controller{
		opts:     opts,
		source:   source,
		detector: detector,
		images:   images,
		eye:      types.EyeRight,
		now:      time.Now,
	}
}

// Start activates the capture stage. The detection loop itself is not
// started until detection is enabled.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return nil
	}
	c.active = true
	c.parent = ctx
	return nil
}

// Stop deactivates the capture stage: the loop is cancelled, auto-capture
// disarmed, and any pending indicator cleared. It blocks until the loop
// goroutine has exited, so no late detection cycle can fire after the stage
// is left.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.armed = false
	c.enabled = false
	c.epoch++
	stop := c.loopStop
	done := c.loopDone
	c.loopStop = nil
	c.loopDone = nil
	c.setIndicatorLocked(nil)
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// Eye returns the eye side new captures are tagged with.
func (c *Controller) Eye() types.Eye {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eye
}

// SetEye switches the eye side for subsequent captures.
func (c *Controller) SetEye(eye types.Eye) error {
	if !eye.Valid() {
		return fmt.Errorf("invalid eye %q", eye)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eye = eye
	return nil
}

// DetectionEnabled reports whether the detection loop is running.
func (c *Controller) DetectionEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetDetectionEnabled starts or cancels the detection loop. Disabling is
// synchronous: the loop goroutine is cancelled and awaited, the indicator is
// cleared, and the epoch is bumped so any in-flight inference result is
// discarded when it settles.
func (c *Controller) SetDetectionEnabled(on bool) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotActive
	}
	if on == c.enabled {
		c.mu.Unlock()
		return nil
	}

	if on {
		c.enabled = true
		c.epoch++
		loopCtx, cancel := context.WithCancel(c.parent)
		c.loopStop = cancel
		c.loopDone = make(chan struct{})
		go c.runLoop(loopCtx, c.epoch, c.loopDone)
		c.mu.Unlock()
		return nil
	}

	c.enabled = false
	c.armed = false
	c.epoch++
	stop := c.loopStop
	done := c.loopDone
	c.loopStop = nil
	c.loopDone = nil
	c.setIndicatorLocked(nil)
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	return nil
}

// AutoCaptureArmed reports whether qualifying detections are persisted.
func (c *Controller) AutoCaptureArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// SetAutoCapture arms or disarms persistence of qualifying detections.
// Arming requires the detection loop to be enabled.
func (c *Controller) SetAutoCapture(armed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if armed && !c.enabled {
		return ErrDetectionDisabled
	}
	c.armed = armed
	return nil
}

// Indicator returns the currently visualized detection box, or nil.
func (c *Controller) Indicator() *geometry.Box {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indicator
}

// OnIndicator registers a render callback invoked whenever the indicator
// changes, including the nil clear. The callback must not call back into the
// controller.
func (c *Controller) OnIndicator(fn func(*geometry.Box)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onIndicator = fn
}

// CaptureManual persists the current native-resolution frame verbatim, with
// no detector gating, under the (eye, MANUAL) sequence counter.
func (c *Controller) CaptureManual(ctx context.Context) (*types.CapturedImage, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	eye := c.eye
	c.mu.Unlock()

	frame, err := c.source.Grab(ctx)
	if err != nil {
		return nil, fmt.Errorf("manual capture: cannot grab frame: %v", err)
	}
	defer frame.Close()

	data, err := frame.Encode()
	if err != nil {
		return nil, fmt.Errorf("manual capture: cannot encode frame: %v", err)
	}

	return c.images.Append(eye, types.ModeManual, 0, data)
}

// runLoop is the detection loop goroutine. One detector invocation completes
// or fails before the next is issued; no cycles overlap.
func (c *Controller) runLoop(ctx context.Context, epoch uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cycle(ctx, epoch)
		}
	}
}

// cycle runs one detection iteration. Any error is logged and swallowed; the
// loop self-resumes on the next tick.
func (c *Controller) cycle(ctx context.Context, epoch uint64) {
	frame, err := c.source.Grab(ctx)
	if err != nil {
		logging.LogStageEvent("CAPTURE", "grab frame", err)
		return
	}
	defer frame.Close()

	working, err := frame.EncodeScaled(c.opts.WorkingWidth, c.opts.WorkingHeight)
	if err != nil {
		logging.LogStageEvent("CAPTURE", "downscale frame", err)
		return
	}

	det, found, err := c.detector.Detect(ctx, working)
	if err != nil {
		logging.LogStageEvent("CAPTURE", "detector inference", err)
		return
	}

	c.mu.Lock()
	if epoch != c.epoch {
		// The loop was cancelled while the inference was in flight; the
		// result must not touch the store or the indicator.
		c.mu.Unlock()
		return
	}

	if !found || det.Score <= c.opts.DetectionThreshold {
		c.setIndicatorLocked(nil)
		c.mu.Unlock()
		return
	}

	indicator := det.Box
	if c.opts.FlipDisplay {
		indicator = indicator.Flip()
	}
	c.setIndicatorLocked(&indicator)

	if !c.armed {
		c.mu.Unlock()
		return
	}

	now := c.now()
	if now.Sub(c.lastCapture) < c.opts.Debounce {
		// Within the debounce window: keep visualizing, skip persistence.
		c.mu.Unlock()
		return
	}
	c.lastCapture = now
	eye := c.eye
	c.mu.Unlock()

	// The crop uses the unflipped padded box against the native frame.
	padded := det.Box.Pad(c.opts.PadRatio)
	rect, err := padded.ToRect(frame.Bounds().Dx(), frame.Bounds().Dy())
	if err != nil {
		logging.LogStageEvent("CAPTURE", "crop rectangle", err)
		return
	}
	data, err := frame.EncodeRegion(rect)
	if err != nil {
		logging.LogStageEvent("CAPTURE", "encode crop", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	if _, err := c.images.Append(eye, types.ModeAuto, det.Score, data); err != nil {
		logging.LogStageEvent("CAPTURE", "store append", err)
	}
}

// setIndicatorLocked updates the indicator state and notifies the render
// callback. Caller holds c.mu.
func (c *Controller) setIndicatorLocked(box *geometry.Box) {
	c.indicator = box
	if c.onIndicator != nil {
		c.onIndicator(box)
	}
}
