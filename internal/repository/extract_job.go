package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/entity"
)

const extractJobTable = "extract_job"

var extractJobColumns = []string{
	"id", "source_path", "content_hash", "format", "status", "started_at",
	"finished_at", "error_message", "ocr_text", "ocr_method", "pages", "record_id",
}

// OCROutcome is what the OCR stage reports back to the job row. A non-empty
// ErrorMessage marks the job FAILED.
type OCROutcome struct {
	OCRText      string
	Method       string
	Pages        int
	ErrorMessage string
}

type ExtractJobRepository interface {
	Start(ctx context.Context, sourcePath, contentHash, format string, status constants.JobStatus) (*entity.ExtractJob, error)
	MarkRunning(ctx context.Context, jobID uuid.UUID) error
	FinishOCR(ctx context.Context, jobID uuid.UUID, out OCROutcome) error
	FinishSuccess(ctx context.Context, jobID, recordID uuid.UUID) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error)
	// FindByHash returns the most recent job for a content hash.
	FindByHash(ctx context.Context, contentHash string) (*entity.ExtractJob, error)
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewExtractJobRepository(db *DB, log *slog.Logger) ExtractJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractJobRepo{db: db, log: log}
}

func (r *extractJobRepo) Start(ctx context.Context, sourcePath, contentHash, format string, status constants.JobStatus) (*entity.ExtractJob, error) {
	job := &entity.ExtractJob{
		ID:          uuid.New(),
		SourcePath:  sourcePath,
		ContentHash: contentHash,
		Format:      format,
		Status:      string(status),
		StartedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	q, args := r.db.builder().Insert(extractJobTable).
		Columns("id", "source_path", "content_hash", "format", "status", "started_at", "pages").
		Values(job.ID.String(), job.SourcePath, job.ContentHash, job.Format, job.Status, formatTime(job.StartedAt), 0).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("extract_job start failed", "path", sourcePath, "error", err)
		return nil, common.WrapError(fmt.Errorf("%w: %v", common.ErrDatabase, err), "start extract job")
	}
	r.log.Info("extract_job started", "job_id", job.ID, "path", sourcePath, "format", format, "status", job.Status)
	return job, nil
}

func (r *extractJobRepo) MarkRunning(ctx context.Context, jobID uuid.UUID) error {
	return r.update(ctx, jobID, map[string]any{"status": string(constants.JobStatusRunning)})
}

func (r *extractJobRepo) FinishOCR(ctx context.Context, jobID uuid.UUID, out OCROutcome) error {
	if out.ErrorMessage != "" {
		return r.FinishFailure(ctx, jobID, out.ErrorMessage)
	}
	err := r.update(ctx, jobID, map[string]any{
		"status":     string(constants.JobStatusOCROK),
		"ocr_text":   out.OCRText,
		"ocr_method": out.Method,
		"pages":      out.Pages,
	})
	if err != nil {
		r.log.Error("extract_job finish(OCR_OK) failed", "job_id", jobID, "error", err)
		return err
	}
	r.log.Info("extract_job ocr done", "job_id", jobID, "method", out.Method, "pages", out.Pages)
	return nil
}

func (r *extractJobRepo) FinishSuccess(ctx context.Context, jobID, recordID uuid.UUID) error {
	err := r.update(ctx, jobID, map[string]any{
		"status":      string(constants.JobStatusExtracted),
		"record_id":   recordID.String(),
		"finished_at": formatTime(time.Now()),
	})
	if err != nil {
		r.log.Error("extract_job finish(EXTRACTED) failed", "job_id", jobID, "error", err)
		return err
	}
	r.log.Info("extract_job finished (EXTRACTED)", "job_id", jobID, "record_id", recordID)
	return nil
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	err := r.update(ctx, jobID, map[string]any{
		"status":        string(constants.JobStatusFailed),
		"error_message": message,
		"finished_at":   formatTime(time.Now()),
	})
	if err != nil {
		r.log.Error("extract_job finish(FAILED) failed", "job_id", jobID, "error", err)
		return err
	}
	r.log.Warn("extract_job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

// update sets cols on one job and reports ErrNotFound when no row matched.
func (r *extractJobRepo) update(ctx context.Context, jobID uuid.UUID, cols map[string]any) error {
	u := r.db.builder().Update(extractJobTable)
	for _, c := range extractJobColumns {
		if v, ok := cols[c]; ok {
			u.Set(c, v)
		}
	}
	q, args := u.Where(entsql.EQ("id", jobID.String())).Query()
	var res sql.Result
	if err := r.db.drv.Exec(ctx, q, args, &res); err != nil {
		return fmt.Errorf("%w: update extract_job: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", common.ErrDatabase, err)
	}
	if n == 0 {
		return common.NewAppError("JOB_NOT_FOUND", fmt.Sprintf("extract job %s", jobID), common.ErrNotFound)
	}
	return nil
}

func (r *extractJobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error) {
	b := r.db.builder()
	q, args := b.Select(extractJobColumns...).
		From(b.Table(extractJobTable)).
		Where(entsql.EQ("id", jobID.String())).
		Query()
	jobs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, common.NewAppError("JOB_NOT_FOUND", fmt.Sprintf("extract job %s", jobID), common.ErrNotFound)
	}
	return jobs[0], nil
}

func (r *extractJobRepo) FindByHash(ctx context.Context, contentHash string) (*entity.ExtractJob, error) {
	b := r.db.builder()
	q, args := b.Select(extractJobColumns...).
		From(b.Table(extractJobTable)).
		Where(entsql.EQ("content_hash", contentHash)).
		OrderBy(entsql.Desc("started_at")).
		Limit(1).
		Query()
	jobs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, common.NewAppError("JOB_NOT_FOUND", "no job for content hash", common.ErrNotFound)
	}
	return jobs[0], nil
}

func (r *extractJobRepo) query(ctx context.Context, q string, args []any) ([]*entity.ExtractJob, error) {
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: query extract_job: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.ExtractJob
	for rows.Next() {
		var (
			job                                      entity.ExtractJob
			id, started                              string
			finished, errMsg, ocrText, method, recID sql.NullString
		)
		if err := rows.Scan(&id, &job.SourcePath, &job.ContentHash, &job.Format, &job.Status, &started,
			&finished, &errMsg, &ocrText, &method, &job.Pages, &recID); err != nil {
			return nil, fmt.Errorf("%w: scan extract_job: %v", common.ErrDatabase, err)
		}
		var err error
		if job.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: bad job id %q", common.ErrDatabase, id)
		}
		if job.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("%w: bad started_at %q", common.ErrDatabase, started)
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, fmt.Errorf("%w: bad finished_at %q", common.ErrDatabase, finished.String)
			}
			job.FinishedAt = &t
		}
		job.ErrorMessage = nullString(errMsg)
		job.OCRText = nullString(ocrText)
		job.OCRMethod = nullString(method)
		if recID.Valid {
			rid, err := uuid.Parse(recID.String)
			if err != nil {
				return nil, fmt.Errorf("%w: bad record id %q", common.ErrDatabase, recID.String)
			}
			job.RecordID = &rid
		}
		out = append(out, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate extract_job: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
