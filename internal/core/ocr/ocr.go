package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/common"
)

// PageSeparator joins the text of consecutive pages. Normalize folds it into
// a plain line break.
const PageSeparator = "\n\f\n"

type Config struct {
	Engine    string // "exec" (default) | "gosseract"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string
	DPI           int // rasterization DPI for PDFs, default 300
	MaxPages      int // 0 = no limit
	PSM           int // tesseract page segmentation mode; 0 = engine default
}

// ConfigFrom maps the environment-driven OCR settings onto Config.
func ConfigFrom(c common.OCRConfig) Config {
	return Config{
		Engine:        c.Engine,
		Pdftoppm:      c.Pdftoppm,
		Tesseract:     c.Tesseract,
		TesseractLang: c.TesseractLang,
		TessdataDir:   c.TessdataDir,
		DPI:           c.DPI,
		MaxPages:      c.MaxPages,
	}
}

type ExtractionResult struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE | constants.TXT
	Method     string // "pdf-ocr" | "image-ocr" | "text"
	Language   string
	Duration   time.Duration
	Warnings   []string
}

// PageRecognizer turns one page image into text.
type PageRecognizer interface {
	Name() string
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Extractor is the rasterize+OCR collaborator: (path, dpi) -> page texts.
type Extractor struct {
	cfg        Config
	runner     Runner
	recognizer PageRecognizer
	logger     *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the subprocess runner (tests, sandboxes).
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithRecognizer replaces the page recognizer selected by cfg.Engine.
func WithRecognizer(p PageRecognizer) Option {
	return func(e *Extractor) {
		if p != nil {
			e.recognizer = p
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Engine == "" {
		cfg.Engine = "exec"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}

	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	if e.recognizer == nil {
		switch cfg.Engine {
		case "exec":
			e.recognizer = tesseractCLI{cfg: cfg, runner: e.runner}
		case "gosseract":
			r, err := newGosseract(cfg)
			if err != nil {
				return nil, err
			}
			e.recognizer = r
		default:
			return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
		}
	}
	return e, nil
}

// Extract picks a strategy based on file extension. Any failure to obtain
// page text is reported as common.ErrMalformedDocument.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("starting ocr extraction", "path", path, "ext", ext, "engine", e.recognizer.Name(), "dpi", e.cfg.DPI)

	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return ExtractionResult{}, common.NewAppError("OCR_INPUT", fmt.Sprintf("unreadable file %q", path), common.ErrMalformedDocument)
	}

	var (
		res ExtractionResult
		err error
	)
	switch format := constants.MapExtToFormat(ext); format {
	case constants.PDF:
		res, err = e.extractPDF(ctx, path)
	case constants.IMAGE:
		res, err = e.extractImage(ctx, path)
	case constants.TXT:
		res, err = e.readText(path)
	default:
		e.logger.Error("unsupported ocr extension", "extension", ext)
		err = common.NewAppError("OCR_INPUT", fmt.Sprintf("unsupported extension %q", ext), common.ErrMalformedDocument)
	}
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}
	if res.Pages == 0 {
		return res, common.NewAppError("OCR_INPUT", "document has no pages", common.ErrMalformedDocument)
	}
	e.logger.Info("ocr extraction done",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"bytes", len(res.Text),
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.IMAGE, Method: "image-ocr", Language: e.cfg.TesseractLang}
	txt, err := e.recognizer.Recognize(ctx, path)
	if err != nil {
		return res, common.NewAppError("OCR_FAILED", "image recognition failed", fmt.Errorf("%w: %v", common.ErrMalformedDocument, err))
	}
	res.Text = txt
	res.Pages = 1
	return res, nil
}

func (e *Extractor) readText(path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.TXT, Method: "text"}
	b, err := os.ReadFile(path)
	if err != nil {
		return res, common.NewAppError("OCR_INPUT", "read text file", fmt.Errorf("%w: %v", common.ErrMalformedDocument, err))
	}
	res.Text = string(b)
	res.Pages = 1 + strings.Count(res.Text, "\f")
	return res, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.PDF, Method: "pdf-ocr", Language: e.cfg.TesseractLang}

	tmpDir, err := os.MkdirTemp("", "labscan-pp-*")
	if err != nil {
		return res, err
	}
	defer func(dir string) {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("failed to remove temp dir", "dir", dir, "error", err)
		}
	}(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		res.Warnings = append(res.Warnings, truncate(string(errb), 512))
		return res, common.NewAppError("OCR_RASTERIZE", "pdftoppm failed", fmt.Errorf("%w: %v", common.ErrMalformedDocument, err))
	}

	pages, _ := filepath.Glob(prefix + "-*.png")
	sortPages(pages)
	if e.cfg.MaxPages > 0 && len(pages) > e.cfg.MaxPages {
		res.Warnings = append(res.Warnings, fmt.Sprintf("truncated to %d of %d pages", e.cfg.MaxPages, len(pages)))
		pages = pages[:e.cfg.MaxPages]
	}
	if len(pages) == 0 {
		return res, common.NewAppError("OCR_RASTERIZE", "pdftoppm produced no images", common.ErrMalformedDocument)
	}

	var b strings.Builder
	recognized := 0
	for _, img := range pages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		txt, err := e.recognizer.Recognize(ctx, img)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", filepath.Base(img), err))
			continue
		}
		if recognized > 0 {
			b.WriteString(PageSeparator)
		}
		b.WriteString(txt)
		recognized++
	}
	if recognized == 0 {
		return res, common.NewAppError("OCR_FAILED", "no page could be recognized", common.ErrMalformedDocument)
	}
	res.Text = b.String()
	res.Pages = recognized
	return res, nil
}

// sortPages orders page-2.png before page-10.png regardless of zero padding.
func sortPages(pages []string) {
	sort.Slice(pages, func(i, j int) bool {
		if len(pages[i]) != len(pages[j]) {
			return len(pages[i]) < len(pages[j])
		}
		return pages[i] < pages[j]
	})
}

// tesseractCLI recognizes a page by shelling out to the tesseract binary.
type tesseractCLI struct {
	cfg    Config
	runner Runner
}

func (t tesseractCLI) Name() string { return "tesseract-cli" }

func (t tesseractCLI) Recognize(ctx context.Context, imagePath string) (string, error) {
	// tesseract <file> stdout -l <lang>
	args := []string{imagePath, "stdout", "-l", t.cfg.TesseractLang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", t.cfg.PSM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 256))
	}
	return string(out), nil
}
