//go:build !ocr

package ocr

import "errors"

// ErrGosseractNotEnabled is returned when OCR_ENGINE=gosseract is selected in
// a binary built without the "ocr" tag.
var ErrGosseractNotEnabled = errors.New("gosseract engine not compiled in; rebuild with -tags ocr")

func newGosseract(Config) (PageRecognizer, error) {
	return nil, ErrGosseractNotEnabled
}
