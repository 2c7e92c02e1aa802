// Package classify talks to an external model server that scores lab records.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/labscan/internal/core"
	"github.com/joseph-ayodele/labscan/internal/core/record"
)

const (
	LabelGallstone   = "Gallstone Detected"
	LabelNoGallstone = "No Gallstone Detected"
)

var ErrBadReply = errors.New("classifier reply rejected")

type Config struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// HTTPClient posts a record.Frame to Config.URL and expects
// {"prediction": 0|1, "probabilities": [p0, p1]} back.
type HTTPClient struct {
	cfg    Config
	http   *http.Client
	schema *jsonschema.Schema
	logger *slog.Logger
}

var _ core.Classifier = (*HTTPClient)(nil)

func NewHTTPClient(cfg Config, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		return nil, errors.New("classifier url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	s, err := compileSchema("classifier_reply.json", replySchema())
	if err != nil {
		return nil, fmt.Errorf("compile reply schema: %w", err)
	}
	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		schema: s,
		logger: logger,
	}, nil
}

type reply struct {
	Prediction    int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
}

// Predict returns the label of the predicted class and its probability as a
// percentage rounded to two decimals.
func (c *HTTPClient) Predict(ctx context.Context, frame record.Frame) (core.Prediction, error) {
	raw, _, err := sendJSON(ctx, c.http, c.cfg.URL, frame, c.cfg.Headers, c.logger)
	if err != nil {
		return core.Prediction{}, fmt.Errorf("classifier request: %w", err)
	}
	if err := validate(c.schema, raw); err != nil {
		c.logger.Warn("classifier reply failed validation", "error", err)
		return core.Prediction{}, fmt.Errorf("%w: %v", ErrBadReply, err)
	}
	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return core.Prediction{}, fmt.Errorf("%w: %v", ErrBadReply, err)
	}

	label := LabelGallstone
	if r.Prediction == 1 {
		label = LabelNoGallstone
	}
	p := math.Round(r.Probabilities[r.Prediction]*100*100) / 100
	return core.Prediction{Label: label, Probability: p}, nil
}
