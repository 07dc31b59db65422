package cv

import (
	"errors"
	"fmt"
	"gocv.io/x/gocv"
	"image"
	"image/color"
	"io"
	"movement-analysis/pkg/pose"
	"movement-analysis/pkg/video"
	"os"
)

var (
	landmarkColor   = color.RGBA{G: 255, A: 255}
	connectionColor = color.RGBA{B: 255, A: 255}
)

const (
	lineThickness   = 2
	circleRadius    = 2
	circleThickness = 2
)

var (
	ErrForeignFrame = errors.New("frame was not produced by the opencv backend")
	ErrEmptyFrame   = errors.New("frame has no pixels")
)

type ModelConfig struct {
	InputSize       int
	LandmarksOutput string
	FlagOutput      string
}

// Backend implements video.Backend on top of OpenCV. The pose model is read
// once; every session builds its own network from the cached bytes.
type Backend struct {
	model []byte
	cfg   ModelConfig
	codec string
}

func NewBackend(modelPath string, cfg ModelConfig, codec string) (*Backend, error) {
	model, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read pose model: %w", err)
	}
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("invalid model input size %d", cfg.InputSize)
	}
	return &Backend{model: model, cfg: cfg, codec: codec}, nil
}

type frame struct {
	mat gocv.Mat
}

func (f *frame) Close() error {
	return f.mat.Close()
}

func matOf(f video.Frame) (*gocv.Mat, error) {
	fr, ok := f.(*frame)
	if !ok {
		return nil, ErrForeignFrame
	}
	if fr.mat.Empty() {
		return nil, ErrEmptyFrame
	}
	return &fr.mat, nil
}

type reader struct {
	capture *gocv.VideoCapture
	info    video.Info
}

func (b *Backend) OpenReader(path string) (video.Reader, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("capture %s is not opened", path)
	}

	return &reader{
		capture: capture,
		info: video.Info{
			Size: video.Size{
				Width:  int(capture.Get(gocv.VideoCaptureFrameWidth)),
				Height: int(capture.Get(gocv.VideoCaptureFrameHeight)),
			},
			FPS:        capture.Get(gocv.VideoCaptureFPS),
			FrameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
		},
	}, nil
}

func (r *reader) Info() video.Info {
	return r.info
}

func (r *reader) Read() (video.Frame, error) {
	mat := gocv.NewMat()
	if ok := r.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, io.EOF
	}
	return &frame{mat: mat}, nil
}

func (r *reader) Close() error {
	return r.capture.Close()
}

type writer struct {
	out *gocv.VideoWriter
}

func (b *Backend) OpenWriter(path string, size video.Size, fps float64) (video.Writer, error) {
	out, err := gocv.VideoWriterFile(path, b.codec, fps, size.Width, size.Height, true)
	if err != nil {
		return nil, fmt.Errorf("open video writer: %w", err)
	}
	if !out.IsOpened() {
		out.Close()
		return nil, fmt.Errorf("video writer %s is not opened", path)
	}
	return &writer{out: out}, nil
}

func (w *writer) Write(f video.Frame) error {
	mat, err := matOf(f)
	if err != nil {
		return err
	}
	return w.out.Write(*mat)
}

func (w *writer) Close() error {
	return w.out.Close()
}

type session struct {
	net     gocv.Net
	cfg     ModelConfig
	tracker *pose.Tracker
}

func (b *Backend) NewPoseSession(opts video.SessionOptions) (video.PoseSession, error) {
	net, err := gocv.ReadNetFromONNXBytes(b.model)
	if err != nil {
		return nil, fmt.Errorf("load pose model: %w", err)
	}
	if net.Empty() {
		net.Close()
		return nil, errors.New("pose model produced an empty network")
	}

	return &session{
		net:     net,
		cfg:     b.cfg,
		tracker: pose.NewTracker(opts.MinDetectionConfidence, opts.MinTrackingConfidence),
	}, nil
}

func (s *session) Process(f video.Frame) (*pose.Pose, error) {
	mat, err := matOf(f)
	if err != nil {
		return nil, err
	}

	width, height := mat.Cols(), mat.Rows()
	size := s.cfg.InputSize
	roi := s.tracker.ROI(width, height)

	affine := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer affine.Close()
	for i, v := range roi.Affine(size) {
		affine.SetDoubleAt(i/3, i%3, v)
	}

	crop := gocv.NewMat()
	defer crop.Close()
	err = gocv.WarpAffineWithParams(*mat, &crop, affine, image.Pt(size, size),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	if err != nil {
		return nil, fmt.Errorf("warp roi: %w", err)
	}
	if crop.Empty() {
		return nil, errors.New("warp roi: empty crop")
	}

	// Frames are BGR; the model expects RGB scaled to [0,1].
	blob := gocv.BlobFromImage(crop, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	outputs := s.net.ForwardLayers([]string{s.cfg.LandmarksOutput, s.cfg.FlagOutput})
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()
	if len(outputs) != 2 {
		return nil, fmt.Errorf("pose model returned %d outputs", len(outputs))
	}

	raw, err := outputs[0].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read landmarks output: %w", err)
	}
	flag, err := outputs[1].DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read pose flag output: %w", err)
	}
	if len(flag) == 0 {
		return nil, errors.New("pose flag output is empty")
	}

	// DataPtrFloat32 aliases the output Mat, which is closed on return.
	landmarks := make([]float32, len(raw))
	copy(landmarks, raw)

	return s.tracker.Update(flag[0], landmarks, roi, size, width, height)
}

func (s *session) Close() error {
	s.tracker.Reset()
	return s.net.Close()
}

func (b *Backend) Annotate(f video.Frame, p *pose.Pose) error {
	mat, err := matOf(f)
	if err != nil {
		return err
	}

	width, height := mat.Cols(), mat.Rows()
	point := func(l pose.Landmark) (image.Point, bool) {
		lm := p.At(l)
		if !lm.Drawable() {
			return image.Point{}, false
		}
		x, y, ok := lm.Pixel(width, height)
		return image.Pt(x, y), ok
	}

	for _, c := range pose.Connections {
		from, ok1 := point(c.From)
		to, ok2 := point(c.To)
		if !ok1 || !ok2 {
			continue
		}
		if err := gocv.Line(mat, from, to, connectionColor, lineThickness); err != nil {
			return fmt.Errorf("draw %s-%s: %w", c.From, c.To, err)
		}
	}

	for i := 0; i < pose.NumLandmarks; i++ {
		pt, ok := point(pose.Landmark(i))
		if !ok {
			continue
		}
		if err := gocv.Circle(mat, pt, circleRadius, landmarkColor, circleThickness); err != nil {
			return fmt.Errorf("draw %s: %w", pose.Landmark(i), err)
		}
	}

	return nil
}

func (b *Backend) RotateClockwise(f video.Frame) (video.Frame, error) {
	mat, err := matOf(f)
	if err != nil {
		return nil, err
	}
	rotated := gocv.NewMat()
	if err := gocv.Rotate(*mat, &rotated, gocv.Rotate90Clockwise); err != nil {
		rotated.Close()
		return nil, fmt.Errorf("rotate: %w", err)
	}
	if rotated.Empty() {
		rotated.Close()
		return nil, errors.New("rotation produced an empty frame")
	}
	return &frame{mat: rotated}, nil
}
