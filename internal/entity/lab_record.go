package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labscan/internal/core/record"
)

// LabRecord is a persisted structured record plus the administrative fields
// and the optional classifier verdict.
type LabRecord struct {
	ID          uuid.UUID          `json:"id"`
	JobID       uuid.UUID          `json:"job_id"`
	SourcePath  string             `json:"source_path"`
	ContentHash string             `json:"content_hash"`
	Patient     record.PatientInfo `json:"patient"`
	Record      record.Record      `json:"features"`
	Defaults    []record.Default   `json:"defaults,omitempty"`
	Prediction  *Prediction        `json:"prediction,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}
