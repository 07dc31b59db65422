package service

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"io"
	"movement-analysis/constant"
	"movement-analysis/dto"
	"movement-analysis/entities"
	"movement-analysis/pkg/metrics"
	"movement-analysis/pkg/pose"
	"movement-analysis/pkg/rabbitmq"
	"movement-analysis/pkg/storage"
	"movement-analysis/repository"
	"time"
)

type Service interface {
	// Upload stores content, analyzes it and assembles the response payload.
	// Analysis errors are *AnalysisError; storage errors match ErrStoreUpload.
	Upload(ctx context.Context, originalName string, content io.Reader) (*dto.UploadResponse, error)
}

// Store is where uploads are written before analysis.
type Store interface {
	Save(originalName string, content io.Reader) (*storage.StoredFile, error)
	Path(name string) string
}

// Dependencies are optional sinks notified after every upload. Nil fields
// are skipped.
type Dependencies struct {
	Repo      repository.AnalysisRepository
	Mirror    storage.Mirror
	Publisher rabbitmq.Publisher
}

type service struct {
	store    Store
	analyzer Analyzer
	deps     Dependencies
}

func NewService(store Store, analyzer Analyzer, deps Dependencies) Service {
	return &service{
		store:    store,
		analyzer: analyzer,
		deps:     deps,
	}
}

func (s *service) Upload(ctx context.Context, originalName string, content io.Reader) (*dto.UploadResponse, error) {
	stored, err := s.store.Save(originalName, content)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("original_name", originalName).Msg("failed to store upload")
		metrics.AnalysesTotal.WithLabelValues(metrics.ResultUploadFailure).Inc()
		return nil, errors.Join(ErrStoreUpload, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("filename", stored.Name).
		Int64("size_bytes", stored.Size).
		Msg("upload stored")

	start := time.Now()
	result, err := s.analyzer.Analyze(ctx, stored.Path)
	elapsed := time.Since(start)
	metrics.AnalysisDuration.Observe(elapsed.Seconds())

	s.record(ctx, stored, result, err, elapsed)
	if err != nil {
		return nil, err
	}

	return NewUploadResponse(stored.Name, result), nil
}

// NewUploadResponse assembles the success payload.
func NewUploadResponse(filename string, result *Result) *dto.UploadResponse {
	return &dto.UploadResponse{
		Message:   constant.MessageAnalysisSucceeded,
		Filename:  filename,
		Annotated: result.Annotated,
		Keypoints: Keypoints(result.Samples),
	}
}

// Keypoints converts samples to their wire form, landmarks in canonical order.
func Keypoints(samples []Sample) [][]dto.Keypoint {
	out := make([][]dto.Keypoint, 0, len(samples))
	for _, sample := range samples {
		points := make([]dto.Keypoint, 0, len(sample.Pose.Landmarks))
		for i, lm := range sample.Pose.Landmarks {
			points = append(points, dto.Keypoint{
				Name:       pose.Landmark(i).String(),
				X:          lm.X,
				Y:          lm.Y,
				Visibility: lm.Visibility,
			})
		}
		out = append(out, points)
	}
	return out
}

// record updates metrics and notifies the optional sinks. Failures here are
// logged and never change the response.
func (s *service) record(ctx context.Context, stored *storage.StoredFile, result *Result, analysisErr error, elapsed time.Duration) {
	log := zerolog.Ctx(ctx).With().Str("filename", stored.Name).Logger()

	analysis := &entities.Analysis{
		ID:           uuid.New(),
		Filename:     stored.Name,
		OriginalName: stored.OriginalName,
		Status:       constant.AnalysisStatusCompleted,
		SizeBytes:    stored.Size,
		DurationMs:   elapsed.Milliseconds(),
	}
	routingKey := constant.RoutingKeyAnalysisCompleted

	if analysisErr != nil {
		kind := KindOf(analysisErr)
		if kind == 0 {
			kind = AnalysisFailure
		}
		kindName := kind.String()
		analysis.Status = constant.AnalysisStatusFailed
		analysis.FailureKind = &kindName
		routingKey = constant.RoutingKeyAnalysisFailed
		metrics.AnalysesTotal.WithLabelValues(resultLabel(kind)).Inc()
	} else {
		analysis.Annotated = &result.Annotated
		analysis.FrameCount = result.FrameCount
		analysis.SampleCount = len(result.Samples)
		metrics.AnalysesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		metrics.KeypointSamplesTotal.Add(float64(len(result.Samples)))
	}

	if s.deps.Mirror != nil && analysisErr == nil {
		for _, name := range []string{stored.Name, result.Annotated} {
			if err := s.deps.Mirror.Put(ctx, s.store.Path(name)); err != nil {
				log.Warn().Err(err).Str("object", name).Msg("failed to mirror file")
			}
		}
	}

	if s.deps.Repo != nil {
		if err := s.deps.Repo.Create(ctx, analysis); err != nil {
			log.Warn().Err(err).Msg("failed to write analysis log")
		}
	}

	if s.deps.Publisher != nil {
		msg := dto.AnalysisMessage{
			AnalysisId:  analysis.ID,
			Filename:    analysis.Filename,
			Status:      analysis.Status,
			FrameCount:  analysis.FrameCount,
			SampleCount: analysis.SampleCount,
		}
		if analysis.Annotated != nil {
			msg.Annotated = *analysis.Annotated
		}
		if err := s.deps.Publisher.Publish(ctx, routingKey, msg); err != nil {
			log.Warn().Err(err).Str("routing_key", routingKey).Msg("failed to publish analysis event")
		}
	}
}

func resultLabel(kind FailureKind) string {
	if kind == OpenFailure {
		return metrics.ResultOpenFailure
	}
	return metrics.ResultAnalysisFailure
}
