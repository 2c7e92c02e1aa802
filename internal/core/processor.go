package core

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/core/ocr"
	"github.com/joseph-ayodele/labscan/internal/core/record"
	"github.com/joseph-ayodele/labscan/internal/entity"
	"github.com/joseph-ayodele/labscan/internal/repository"
)

// TextSource produces raw OCR text for a document on disk.
type TextSource interface {
	Extract(ctx context.Context, path string) (ocr.ExtractionResult, error)
}

// Outcome summarizes one processed document.
type Outcome struct {
	JobID    uuid.UUID
	OCR      ocr.ExtractionResult
	Analysis Analysis
	Record   *entity.LabRecord
}

// Processor coordinates OCR, the extraction pipeline, classification and
// persistence for one document, tracking progress on an extract_job row.
type Processor struct {
	logger     *slog.Logger
	text       TextSource
	jobs       repository.ExtractJobRepository
	records    repository.LabRecordRepository
	classifier Classifier
}

// NewProcessor wires the processor. classifier may be nil.
func NewProcessor(
	logger *slog.Logger,
	text TextSource,
	jobs repository.ExtractJobRepository,
	records repository.LabRecordRepository,
	classifier Classifier,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:     logger,
		text:       text,
		jobs:       jobs,
		records:    records,
		classifier: classifier,
	}
}

// ProcessFile hashes path, opens a RUNNING job for it and runs it to completion.
func (p *Processor) ProcessFile(ctx context.Context, path string) (Outcome, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Outcome{}, common.NewAppError("BAD_PATH", "resolve path", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	format := constants.MapExtToFormat(filepath.Ext(abs))
	if format == "" {
		return Outcome{}, common.NewAppError("BAD_PATH", fmt.Sprintf("unsupported extension %q", filepath.Ext(abs)), common.ErrInvalidInput)
	}
	hash, err := common.HashFile(abs)
	if err != nil {
		return Outcome{}, common.NewAppError("BAD_PATH", "read file", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}

	job, err := p.jobs.Start(ctx, abs, hash, format, constants.JobStatusRunning)
	if err != nil {
		return Outcome{}, err
	}
	return p.run(ctx, job)
}

// ProcessJob runs a job created in QUEUED state by ingestion.
func (p *Processor) ProcessJob(ctx context.Context, jobID uuid.UUID) (Outcome, error) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return Outcome{JobID: jobID}, err
	}
	if job.Status != string(constants.JobStatusQueued) {
		return Outcome{JobID: jobID}, common.NewAppError("JOB_STATE", fmt.Sprintf("job %s is %s, not QUEUED", jobID, job.Status), common.ErrInvalidInput)
	}
	if err := p.jobs.MarkRunning(ctx, jobID); err != nil {
		return Outcome{JobID: jobID}, err
	}
	return p.run(ctx, job)
}

func (p *Processor) run(ctx context.Context, job *entity.ExtractJob) (Outcome, error) {
	out := Outcome{JobID: job.ID}
	log := p.logger.With("job_id", job.ID, "path", job.SourcePath)
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		log = log.With("request_id", rid)
	}

	// 1) OCR
	res, err := p.text.Extract(ctx, job.SourcePath)
	out.OCR = res
	if err != nil {
		log.Error("processor ocr failed", "error", err)
		p.fail(ctx, job.ID, err)
		return out, err
	}
	if err := p.jobs.FinishOCR(ctx, job.ID, repository.OCROutcome{
		OCRText: res.Text,
		Method:  res.Method,
		Pages:   res.Pages,
	}); err != nil {
		log.Error("failed to store ocr outcome", "error", err)
		p.fail(ctx, job.ID, err)
		return out, err
	}
	log.Debug("processor ocr success", "method", res.Method, "pages", res.Pages, "warnings", len(res.Warnings))

	// 2) text -> record
	an, err := Analyze(res.Text)
	out.Analysis = an
	if err != nil {
		log.Warn("processor found no text", "error", err)
		p.fail(ctx, job.ID, err)
		return out, err
	}
	if err := record.Validate(an.Record); err != nil {
		log.Error("record failed schema validation", "error", err)
		p.fail(ctx, job.ID, err)
		return out, err
	}

	rec := &entity.LabRecord{
		JobID:       job.ID,
		SourcePath:  job.SourcePath,
		ContentHash: job.ContentHash,
		Patient:     an.Patient,
		Record:      an.Record,
		Defaults:    an.Record.Defaults,
	}

	// 3) optional classification
	if pred, err := p.Classify(ctx, an.Record); err != nil {
		log.Warn("classifier failed; storing record without prediction", "error", err)
	} else if pred != nil {
		rec.Prediction = &entity.Prediction{Label: pred.Label, Probability: pred.Probability}
	}

	// 4) persist
	if err := p.records.Insert(ctx, rec); err != nil {
		p.fail(ctx, job.ID, err)
		return out, err
	}
	out.Record = rec
	if err := p.jobs.FinishSuccess(ctx, job.ID, rec.ID); err != nil {
		log.Error("failed to finish job", "record_id", rec.ID, "error", err)
		p.fail(ctx, job.ID, err)
		return out, err
	}

	log.Info("document processed",
		"record_id", rec.ID,
		"matched", len(an.Raw),
		"defaulted", len(rec.Defaults),
		"predicted", rec.Prediction != nil,
	)
	return out, nil
}

// Classify runs the configured classifier, returning nil when none is set.
func (p *Processor) Classify(ctx context.Context, r record.Record) (*Prediction, error) {
	if p.classifier == nil {
		return nil, nil
	}
	pred, err := p.classifier.Predict(ctx, r.Frame())
	if err != nil {
		return nil, err
	}
	return &pred, nil
}

func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, cause error) {
	// the job row must reach FAILED even if the caller's deadline expired
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := p.jobs.FinishFailure(ctx, jobID, cause.Error()); err != nil {
		p.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
}
