package core

import (
	"context"

	"github.com/joseph-ayodele/labscan/internal/core/record"
)

// Prediction is a classifier verdict. Probability is a percentage.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Classifier scores a single-row frame built from a record.
type Classifier interface {
	Predict(ctx context.Context, frame record.Frame) (Prediction, error)
}
