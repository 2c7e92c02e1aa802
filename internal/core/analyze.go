package core

import (
	"strings"

	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/core/fields"
	"github.com/joseph-ayodele/labscan/internal/core/ocr"
	"github.com/joseph-ayodele/labscan/internal/core/record"
)

// Analysis is the output of the pure text pipeline.
type Analysis struct {
	Normalized string
	Raw        fields.RawMap
	Record     record.Record
	Patient    record.PatientInfo
}

// Analyze runs normalize, extract and schema normalization over raw OCR text.
// Text that is blank after normalization yields common.ErrNoText.
func Analyze(raw string) (Analysis, error) {
	norm := ocr.Normalize(raw)
	if strings.TrimSpace(norm) == "" {
		return Analysis{Normalized: norm}, common.NewAppError("NO_TEXT", "document text is blank", common.ErrNoText)
	}
	m := fields.Extract(norm, fields.Rules())
	return Analysis{
		Normalized: norm,
		Raw:        m,
		Record:     record.FromRaw(m),
		Patient:    record.PatientFrom(m),
	}, nil
}
