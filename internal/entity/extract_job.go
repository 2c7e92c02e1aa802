package entity

import (
	"time"

	"github.com/google/uuid"
)

// ExtractJob tracks one attempt at turning a source document into a lab record.
type ExtractJob struct {
	ID           uuid.UUID  `json:"id"`
	SourcePath   string     `json:"source_path"`
	ContentHash  string     `json:"content_hash"`
	Format       string     `json:"format"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	OCRText      *string    `json:"ocr_text,omitempty"`
	OCRMethod    *string    `json:"ocr_method,omitempty"`
	Pages        int        `json:"pages"`
	RecordID     *uuid.UUID `json:"record_id,omitempty"`
}
