package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"io"
	"math"
	"movement-analysis/config"
	"movement-analysis/pkg/metrics"
	"movement-analysis/pkg/pose"
	"movement-analysis/pkg/storage"
	"movement-analysis/pkg/video"
	"path/filepath"
)

const (
	defaultWidth      = 640
	defaultHeight     = 480
	defaultFPS        = 30.0
	defaultMaxSamples = 3
)

type AnalyzerConfig struct {
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
	MaxSamples             int
}

func AnalyzerConfigFrom(cfg *config.Config) AnalyzerConfig {
	return AnalyzerConfig{
		MinDetectionConfidence: cfg.Pose.MinDetectionConfidence,
		MinTrackingConfidence:  cfg.Pose.MinTrackingConfidence,
		MaxSamples:             cfg.Analysis.MaxSamples,
	}
}

// Sample is a pose captured for the response.
type Sample struct {
	FrameIndex int
	Pose       *pose.Pose
}

type Result struct {
	// Annotated is the file name of the annotated video, without directory.
	Annotated  string
	Samples    []Sample
	FrameCount int
	// Size is the size of the annotated frames.
	Size video.Size
	FPS  float64
}

// Progress receives frame-level progress of a single analysis.
type Progress interface {
	Start(total int)
	Advance()
	Finish()
}

type AnalyzeOption func(*analyzeOptions)

type analyzeOptions struct {
	progress Progress
}

func WithProgress(p Progress) AnalyzeOption {
	return func(o *analyzeOptions) {
		o.progress = p
	}
}

type Analyzer interface {
	Analyze(ctx context.Context, path string, opts ...AnalyzeOption) (*Result, error)
}

type analyzer struct {
	backend video.Backend
	cfg     AnalyzerConfig
}

func NewAnalyzer(backend video.Backend, cfg AnalyzerConfig) Analyzer {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = defaultMaxSamples
	}
	return &analyzer{
		backend: backend,
		cfg:     cfg,
	}
}

// SampleInterval is the number of frames between keypoint captures.
func SampleInterval(fps float64) int {
	return max(int(math.Round(fps)), 1)
}

func normalizeInfo(info video.Info) (video.Size, float64) {
	size := info.Size
	if size.Width <= 0 {
		size.Width = defaultWidth
	}
	if size.Height <= 0 {
		size.Height = defaultHeight
	}
	fps := info.FPS
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = defaultFPS
	}
	return size, fps
}

// keypointSampler decides which detections end up in the response. A slot
// whose frame has no detection is lost; it is not filled by a later frame.
type keypointSampler struct {
	interval int
	limit    int
	samples  []Sample
}

func newKeypointSampler(interval, limit int) *keypointSampler {
	return &keypointSampler{
		interval: interval,
		limit:    limit,
		samples:  make([]Sample, 0, limit),
	}
}

func (s *keypointSampler) offer(index int, p *pose.Pose) bool {
	if p == nil || index%s.interval != 0 || len(s.samples) >= s.limit {
		return false
	}
	s.samples = append(s.samples, Sample{FrameIndex: index, Pose: p})
	return true
}

func (a *analyzer) Analyze(ctx context.Context, path string, opts ...AnalyzeOption) (result *Result, err error) {
	var o analyzeOptions
	for _, opt := range opts {
		opt(&o)
	}
	log := zerolog.Ctx(ctx).With().Str("video", filepath.Base(path)).Logger()

	reader, err := a.backend.OpenReader(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to open video")
		return nil, openFailure(path, err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to release video reader")
		}
	}()

	info := reader.Info()
	size, fps := normalizeInfo(info)
	interval := SampleInterval(fps)
	outSize := size.Rotated()

	annotated := storage.AnnotatedName(filepath.Base(path))
	annotatedPath := filepath.Join(filepath.Dir(path), annotated)

	log.Info().
		Int("width", size.Width).
		Int("height", size.Height).
		Float64("fps", fps).
		Int("sample_interval", interval).
		Str("annotated", annotated).
		Msg("analyzing video")

	writer, err := a.backend.OpenWriter(annotatedPath, outSize, fps)
	if err != nil {
		log.Error().Err(err).Msg("failed to open annotated video")
		return nil, analysisFailure(path, err)
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to finalize annotated video")
			if err == nil {
				result = nil
				err = analysisFailure(path, fmt.Errorf("finalize annotated video: %w", closeErr))
			}
		}
	}()

	session, err := a.backend.NewPoseSession(video.SessionOptions{
		MinDetectionConfidence: a.cfg.MinDetectionConfidence,
		MinTrackingConfidence:  a.cfg.MinTrackingConfidence,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to start pose session")
		return nil, analysisFailure(path, err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to release pose session")
		}
	}()

	if o.progress != nil {
		o.progress.Start(info.FrameCount)
		defer o.progress.Finish()
	}

	sampler := newKeypointSampler(interval, a.cfg.MaxSamples)
	index := 0
	for {
		frame, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			log.Error().Err(readErr).Int("frame", index).Msg("failed to read frame")
			return nil, analysisFailure(path, fmt.Errorf("read frame %d: %w", index, readErr))
		}

		detected, frameErr := a.processFrame(frame, session, writer, index)
		if frameErr != nil {
			log.Error().Err(frameErr).Int("frame", index).Msg("failed to process frame")
			return nil, analysisFailure(path, frameErr)
		}

		if sampler.offer(index, detected) {
			log.Debug().Int("frame", index).Int("sample", len(sampler.samples)).Msg("captured keypoint sample")
		}

		index++
		if o.progress != nil {
			o.progress.Advance()
		}
	}

	metrics.FramesProcessedTotal.Add(float64(index))
	log.Info().Int("frames", index).Int("samples", len(sampler.samples)).Msg("video analyzed")

	return &Result{
		Annotated:  annotated,
		Samples:    sampler.samples,
		FrameCount: index,
		Size:       outSize,
		FPS:        fps,
	}, nil
}

// processFrame runs estimation and annotation on frame, then writes it
// rotated. frame is released before returning.
func (a *analyzer) processFrame(frame video.Frame, session video.PoseSession, writer video.Writer, index int) (*pose.Pose, error) {
	defer frame.Close()

	detected, err := session.Process(frame)
	if err != nil {
		return nil, fmt.Errorf("estimate pose on frame %d: %w", index, err)
	}

	if detected != nil {
		if err := a.backend.Annotate(frame, detected); err != nil {
			return nil, fmt.Errorf("annotate frame %d: %w", index, err)
		}
	}

	rotated, err := a.backend.RotateClockwise(frame)
	if err != nil {
		return nil, fmt.Errorf("rotate frame %d: %w", index, err)
	}
	defer rotated.Close()

	if err := writer.Write(rotated); err != nil {
		return nil, fmt.Errorf("write frame %d: %w", index, err)
	}

	return detected, nil
}
