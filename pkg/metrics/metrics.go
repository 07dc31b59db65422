package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess         = "success"
	ResultOpenFailure     = "open_failure"
	ResultAnalysisFailure = "analysis_failure"
	ResultUploadFailure   = "upload_failure"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "movement_analyses_total",
		Help: "Total number of uploads handled, by result",
	}, []string{"result"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "movement_analysis_duration_seconds",
		Help:    "Duration of the frame analysis loop",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	})

	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "movement_frames_processed_total",
		Help: "Total number of frames annotated across all analyses",
	})

	KeypointSamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "movement_keypoint_samples_total",
		Help: "Total number of keypoint samples returned",
	})
)
