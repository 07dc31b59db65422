package pose

import (
	"errors"
	"fmt"
	"math"
)

const (
	// ModelLandmarks is the number of points emitted by the landmark model:
	// the public set followed by the auxiliary alignment points.
	ModelLandmarks = 39
	// LandmarkStride is the number of values per point: x, y, z, visibility, presence.
	LandmarkStride = 5

	alignCenter = 33
	alignScale  = 34
	roiScale    = 1.25

	// VisibilityThreshold is the minimum visibility and presence for a point to be drawn.
	VisibilityThreshold = 0.5
)

var (
	ErrInvalidOutput = errors.New("invalid landmark model output")
	// ErrNonFinite marks an output whose shape is right but whose values are
	// unusable for this frame.
	ErrNonFinite = fmt.Errorf("%w: non-finite values", ErrInvalidOutput)
)

// Point is a landmark position normalized to the frame size. X and Y are
// relative to width and height and are not clamped to [0,1].
type Point struct {
	X          float64
	Y          float64
	Z          float64
	Visibility float64
	Presence   float64
}

// Pose is one detected person.
type Pose struct {
	Landmarks [NumLandmarks]Point
}

func (p *Pose) At(l Landmark) Point {
	return p.Landmarks[l]
}

// Drawable reports whether the point is confident enough to be rendered.
func (p Point) Drawable() bool {
	return p.Visibility >= VisibilityThreshold && p.Presence >= VisibilityThreshold
}

// Pixel maps the point onto a width×height frame. Points outside the frame
// are reported as not ok.
func (p Point) Pixel(width, height int) (x, y int, ok bool) {
	if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
		return 0, 0, false
	}
	x = int(math.Min(math.Floor(p.X*float64(width)), float64(width-1)))
	y = int(math.Min(math.Floor(p.Y*float64(height)), float64(height-1)))
	return x, y, true
}

// ROI is the square region of the frame fed to the landmark model, in pixels.
// Rotation is in radians, clockwise in image coordinates; the model sees the
// region turned so that the body axis points up.
type ROI struct {
	CenterX  float64
	CenterY  float64
	Side     float64
	Rotation float64
}

// FullFrame returns the square ROI centered on the frame that covers it entirely.
func FullFrame(width, height int) ROI {
	return ROI{
		CenterX: float64(width) / 2,
		CenterY: float64(height) / 2,
		Side:    math.Max(float64(width), float64(height)),
	}
}

func (r ROI) valid() bool {
	return r.Side > 0 && !math.IsNaN(r.Side) && !math.IsInf(r.Side, 0) &&
		finite(r.CenterX) && finite(r.CenterY) && finite(r.Rotation)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Affine returns the row-major 2x3 matrix mapping frame pixels inside the ROI
// onto an inputSize×inputSize model input.
func (r ROI) Affine(inputSize int) [6]float64 {
	s := float64(inputSize) / r.Side
	half := float64(inputSize) / 2
	sin, cos := math.Sincos(r.Rotation)
	return [6]float64{
		s * cos, s * sin, half - s*(cos*r.CenterX+sin*r.CenterY),
		-s * sin, s * cos, half - s*(-sin*r.CenterX+cos*r.CenterY),
	}
}

// toFrame maps model input pixel coordinates back to frame pixels. It is the
// inverse of Affine.
func (r ROI) toFrame(x, y float64, inputSize int) (float64, float64) {
	scale := r.Side / float64(inputSize)
	half := float64(inputSize) / 2
	dx, dy := (x-half)*scale, (y-half)*scale
	sin, cos := math.Sincos(r.Rotation)
	return r.CenterX + cos*dx - sin*dy, r.CenterY + sin*dx + cos*dy
}

// rotationOf returns the ROI rotation that turns the center→scale vector
// straight up.
func rotationOf(cx, cy, sx, sy float64) float64 {
	return normalizeRadians(math.Pi/2 - math.Atan2(-(sy-cy), sx-cx))
}

func normalizeRadians(a float64) float64 {
	return a - 2*math.Pi*math.Floor((a+math.Pi)/(2*math.Pi))
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// Decode converts a raw landmark tensor computed on roi into a Pose normalized
// to the width×height frame, and derives the ROI to use on the next frame.
func Decode(raw []float32, roi ROI, inputSize, width, height int) (*Pose, ROI, error) {
	if len(raw) < (alignScale+1)*LandmarkStride {
		return nil, ROI{}, fmt.Errorf("%w: %d values", ErrInvalidOutput, len(raw))
	}

	point := func(i int) (float64, float64) {
		off := i * LandmarkStride
		return roi.toFrame(float64(raw[off]), float64(raw[off+1]), inputSize)
	}

	p := &Pose{}
	for i := 0; i < NumLandmarks; i++ {
		off := i * LandmarkStride
		px, py := point(i)
		x := px / float64(width)
		y := py / float64(height)
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, ROI{}, fmt.Errorf("%w: landmark %s", ErrNonFinite, Landmark(i))
		}
		p.Landmarks[i] = Point{
			X:          x,
			Y:          y,
			Z:          float64(raw[off+2]) / float64(inputSize),
			Visibility: sigmoid(float64(raw[off+3])),
			Presence:   sigmoid(float64(raw[off+4])),
		}
	}

	cx, cy := point(alignCenter)
	sx, sy := point(alignScale)
	next := ROI{
		CenterX:  cx,
		CenterY:  cy,
		Side:     2 * math.Hypot(sx-cx, sy-cy) * roiScale,
		Rotation: rotationOf(cx, cy, sx, sy),
	}

	return p, next, nil
}

// Tracker carries the temporal state of one pose session: while a person is
// tracked the next frame is cropped around the previous detection, otherwise
// the whole frame is searched.
type Tracker struct {
	MinDetectionConfidence float64
	MinTrackingConfidence  float64

	roi      ROI
	tracking bool
}

func NewTracker(minDetection, minTracking float64) *Tracker {
	return &Tracker{
		MinDetectionConfidence: minDetection,
		MinTrackingConfidence:  minTracking,
	}
}

// ROI returns the region to run the landmark model on for a width×height frame.
func (t *Tracker) ROI(width, height int) ROI {
	if t.tracking {
		return t.roi
	}
	return FullFrame(width, height)
}

// Tracking reports whether the previous frame produced a pose.
func (t *Tracker) Tracking() bool {
	return t.tracking
}

// Update consumes the model outputs for a frame processed on roi and returns
// the detected pose, or nil when the pose flag is below the active threshold.
// A frame whose landmarks are not finite counts as having no detection.
func (t *Tracker) Update(flagLogit float32, raw []float32, roi ROI, inputSize, width, height int) (*Pose, error) {
	threshold := t.MinDetectionConfidence
	if t.tracking {
		threshold = t.MinTrackingConfidence
	}

	if sigmoid(float64(flagLogit)) < threshold {
		t.tracking = false
		return nil, nil
	}

	p, next, err := Decode(raw, roi, inputSize, width, height)
	if errors.Is(err, ErrNonFinite) {
		t.Reset()
		return nil, nil
	}
	if err != nil {
		t.tracking = false
		return nil, err
	}

	t.roi = next
	t.tracking = next.valid()
	return p, nil
}

// Reset drops the tracked region.
func (t *Tracker) Reset() {
	t.tracking = false
	t.roi = ROI{}
}
