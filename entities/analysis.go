package entities

import (
	"github.com/google/uuid"
	"movement-analysis/constant"
	"time"
)

// Analysis is the log row written for every upload.
type Analysis struct {
	ID           uuid.UUID               `json:"id" gorm:"type:uuid;primary_key"`
	Filename     string                  `json:"filename" gorm:"type:varchar(500);not null;uniqueIndex:idx_analyses_filename"`
	OriginalName string                  `json:"original_name" gorm:"type:varchar(500);not null"`
	Annotated    *string                 `json:"annotated" gorm:"type:varchar(500)"`
	Status       constant.AnalysisStatus `json:"status" gorm:"type:varchar(20);not null;index:idx_analyses_status"`
	FailureKind  *string                 `json:"failure_kind" gorm:"type:varchar(32)"`
	FrameCount   int                     `json:"frame_count" gorm:"type:integer;default:0"`
	SampleCount  int                     `json:"sample_count" gorm:"type:integer;default:0"`
	SizeBytes    int64                   `json:"size_bytes" gorm:"type:bigint"`
	DurationMs   int64                   `json:"duration_ms" gorm:"type:bigint"`
	CreatedAt    time.Time               `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Analysis) TableName() string {
	return "analyses"
}
