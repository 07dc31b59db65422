package dto

import (
	"github.com/google/uuid"
	"movement-analysis/constant"
)

type Keypoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

type UploadResponse struct {
	Message   string       `json:"message"`
	Filename  string       `json:"filename"`
	Annotated string       `json:"annotated"`
	Keypoints [][]Keypoint `json:"keypoints"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// AnalysisMessage is published once per upload after the analysis finished.
type AnalysisMessage struct {
	AnalysisId  uuid.UUID               `json:"analysisId"`
	Filename    string                  `json:"filename"`
	Annotated   string                  `json:"annotated,omitempty"`
	Status      constant.AnalysisStatus `json:"status"`
	FrameCount  int                     `json:"frameCount"`
	SampleCount int                     `json:"sampleCount"`
}
