package video

import (
	"movement-analysis/pkg/pose"
)

type Size struct {
	Width  int
	Height int
}

// Rotated returns the size of a frame turned by 90 degrees.
func (s Size) Rotated() Size {
	return Size{Width: s.Height, Height: s.Width}
}

// Info holds the intrinsic properties reported by the container. Values may
// be zero when the container does not carry them.
type Info struct {
	Size       Size
	FPS        float64
	FrameCount int
}

// Frame is a decoded image owned by the caller until Close.
type Frame interface {
	Close() error
}

type Reader interface {
	Info() Info
	// Read returns the next frame in decode order, or io.EOF once the stream
	// is exhausted.
	Read() (Frame, error)
	Close() error
}

type Writer interface {
	Write(frame Frame) error
	// Close finalizes the container.
	Close() error
}

type SessionOptions struct {
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
}

// PoseSession is a stateful estimator that tracks one person across
// consecutive frames of the same video.
type PoseSession interface {
	// Process returns the detected pose, or nil if no person was found.
	Process(frame Frame) (*pose.Pose, error)
	Close() error
}

// Backend opens the per-run resources used by an analysis.
type Backend interface {
	OpenReader(path string) (Reader, error)
	OpenWriter(path string, size Size, fps float64) (Writer, error)
	NewPoseSession(opts SessionOptions) (PoseSession, error)
	// Annotate draws the skeleton of p onto frame in place.
	Annotate(frame Frame, p *pose.Pose) error
	// RotateClockwise returns a new frame turned by 90 degrees clockwise.
	RotateClockwise(frame Frame) (Frame, error)
}
