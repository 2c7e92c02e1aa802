//go:build ocr

package ocr

import (
	"context"

	"github.com/otiai10/gosseract/v2"
)

// gosseractRecognizer runs Tesseract in-process through cgo.
type gosseractRecognizer struct {
	cfg Config
}

func newGosseract(cfg Config) (PageRecognizer, error) {
	return &gosseractRecognizer{cfg: cfg}, nil
}

func (g *gosseractRecognizer) Name() string { return "gosseract" }

// Recognize uses a fresh client per page; gosseract clients are not safe for
// concurrent use and the queue runs several workers.
func (g *gosseractRecognizer) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := gosseract.NewClient()
	defer func(c *gosseract.Client) {
		_ = c.Close()
	}(c)

	if g.cfg.TessdataDir != "" {
		if err := c.SetTessdataPrefix(g.cfg.TessdataDir); err != nil {
			return "", err
		}
	}
	if err := c.SetLanguage(g.cfg.TesseractLang); err != nil {
		return "", err
	}
	if g.cfg.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(g.cfg.PSM)); err != nil {
			return "", err
		}
	}
	if err := c.SetImage(imagePath); err != nil {
		return "", err
	}
	return c.Text()
}
