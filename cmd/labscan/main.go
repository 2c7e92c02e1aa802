package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labscan/internal/classify"
	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/core"
	"github.com/joseph-ayodele/labscan/internal/core/ocr"
	"github.com/joseph-ayodele/labscan/internal/entity"
	"github.com/joseph-ayodele/labscan/internal/export"
	"github.com/joseph-ayodele/labscan/internal/ingest"
	"github.com/joseph-ayodele/labscan/internal/report"
	repo "github.com/joseph-ayodele/labscan/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		file       = flag.String("file", "", "single lab report to process")
		dir        = flag.String("dir", "", "directory of lab reports to process")
		out        = flag.String("xlsx", "", "write all records to this XLSX file")
		reportDir  = flag.String("report", "", "write one Markdown report per predicted document into this directory")
		asHTML     = flag.Bool("html", false, "write reports as HTML instead of Markdown")
		asJSON     = flag.Bool("json", false, "print each record as a JSON line on stdout")
		dpi        = flag.Int("dpi", 0, "PDF rasterization DPI (overrides OCR_DPI)")
		classifier = flag.String("classifier", "", "classifier endpoint URL (overrides CLASSIFIER_URL)")
		force      = flag.Bool("force", false, "reprocess documents whose content was already seen")
	)
	flag.Parse()

	if (*file == "") == (*dir == "") {
		printError("Error: exactly one of --file or --dir is required\n")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if *dpi > 0 {
		cfg.OCR.DPI = *dpi
	}
	if *classifier != "" {
		cfg.Classifier.URL = *classifier
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Database), logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	jobsRepo := repo.NewExtractJobRepository(db, logger)
	recordsRepo := repo.NewLabRecordRepository(db, logger)

	extractor, err := ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), logger)
	if err != nil {
		logger.Error("failed to set up OCR", "error", err)
		os.Exit(1)
	}

	var clf core.Classifier
	if cfg.Classifier.URL != "" {
		c, err := classify.NewHTTPClient(classify.Config{URL: cfg.Classifier.URL, Timeout: cfg.Classifier.Timeout}, logger)
		if err != nil {
			logger.Error("invalid classifier configuration", "error", err)
			os.Exit(1)
		}
		clf = c
		logger.Info("classifier enabled", "url", cfg.Classifier.URL)
	} else {
		logger.Warn("classifier URL not configured, predictions will be skipped")
	}

	processor := core.NewProcessor(logger, extractor, jobsRepo, recordsRepo, clf)
	// no queue: jobs are registered QUEUED and run inline below
	ingestor := ingest.NewFSIngestor(jobsRepo, nil, logger)

	var results []ingest.IngestionResult
	if *file != "" {
		r, err := ingestor.IngestPath(ctx, *file, *force)
		if err != nil {
			logger.Error("failed to ingest file", "path", *file, "error", err)
			os.Exit(1)
		}
		results = append(results, r)
	} else {
		rs, stats, err := ingestor.IngestDirectory(ctx, *dir, true, *force)
		if err != nil {
			logger.Error("failed to ingest directory", "error", err)
			os.Exit(1)
		}
		results = rs
		logger.Info("ingestion complete",
			"scanned", stats.Scanned,
			"matched", stats.Matched,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"deduplicated", stats.Deduplicated)
	}

	processed, failures := 0, 0
	var stored []*entity.LabRecord
	enc := json.NewEncoder(os.Stdout)
	for _, r := range results {
		if r.Err != "" || r.Deduplicated {
			continue
		}
		jobID, err := uuid.Parse(r.JobID)
		if err != nil {
			logger.Error("failed to parse job ID", "job_id", r.JobID, "error", err)
			failures++
			continue
		}
		start := time.Now()
		outcome, err := processor.ProcessJob(ctx, jobID)
		if err != nil {
			logger.Error("failed to process document", "path", r.SourcePath, "job_id", jobID, "error", err)
			failures++
			continue
		}
		processed++
		stored = append(stored, outcome.Record)
		logger.Info("document processed",
			"path", r.SourcePath,
			"record_id", outcome.Record.ID,
			"defaults", len(outcome.Record.Defaults),
			"duration_ms", time.Since(start).Milliseconds())

		if *asJSON {
			if err := enc.Encode(outcome.Record); err != nil {
				logger.Error("failed to write JSON", "error", err)
			}
		}
		if *reportDir != "" {
			if err := writeReport(*reportDir, outcome.Record, *asHTML); err != nil {
				logger.Error("failed to write report", "path", r.SourcePath, "error", err)
			}
		}
	}

	if *out != "" {
		xlsxBytes, err := export.WriteXLSX(stored)
		if err != nil {
			logger.Error("failed to build workbook", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, xlsxBytes, 0o644); err != nil {
			logger.Error("failed to write output file", "error", err)
			os.Exit(1)
		}
		logger.Info("workbook written", "output", *out, "records", len(stored))
	}

	logger.Info("batch processing complete", "processed", processed, "failures", failures)
	if failures > 0 {
		os.Exit(2)
	}
}

// writeReport renders rec next to its siblings as <source-name>.md or .html.
// Records without a prediction have nothing to report and are skipped.
func writeReport(dir string, rec *entity.LabRecord, asHTML bool) error {
	if rec.Prediction == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(rec.SourcePath), filepath.Ext(rec.SourcePath))
	ext, render := ".md", report.Render
	if asHTML {
		ext, render = ".html", report.RenderHTML
	}
	f, err := os.Create(filepath.Join(dir, base+ext))
	if err != nil {
		return err
	}
	in := report.Input{
		Patient:    rec.Patient,
		Prediction: core.Prediction{Label: rec.Prediction.Label, Probability: rec.Prediction.Probability},
		Record:     &rec.Record,
	}
	if err := render(f, in); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
