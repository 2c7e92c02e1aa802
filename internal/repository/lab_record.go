package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/entity"
)

const labRecordTable = "lab_record"

var labRecordColumns = []string{
	"id", "job_id", "source_path", "content_hash",
	"patient_name", "hospital_name", "lab_name", "lab_date",
	"features", "defaults", "prediction_label", "prediction_probability", "created_at",
}

// ListFilter bounds a List call. Zero times are open bounds; Limit <= 0 means 100.
type ListFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

type LabRecordRepository interface {
	Insert(ctx context.Context, rec *entity.LabRecord) error
	Get(ctx context.Context, id uuid.UUID) (*entity.LabRecord, error)
	List(ctx context.Context, f ListFilter) ([]*entity.LabRecord, error)
}

type labRecordRepo struct {
	db  *DB
	log *slog.Logger
}

func NewLabRecordRepository(db *DB, log *slog.Logger) LabRecordRepository {
	if log == nil {
		log = slog.Default()
	}
	return &labRecordRepo{db: db, log: log}
}

// Insert stores rec, assigning ID and CreatedAt when unset.
func (r *labRecordRepo) Insert(ctx context.Context, rec *entity.LabRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	features, err := json.Marshal(rec.Record)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	defaults, err := json.Marshal(rec.Defaults)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var (
		label any
		prob  any
	)
	if rec.Prediction != nil {
		label, prob = rec.Prediction.Label, rec.Prediction.Probability
	}

	q, args := r.db.builder().Insert(labRecordTable).
		Columns(labRecordColumns...).
		Values(
			rec.ID.String(), rec.JobID.String(), rec.SourcePath, rec.ContentHash,
			rec.Patient.Name, rec.Patient.Hospital, rec.Patient.Lab, rec.Patient.Date,
			string(features), string(defaults), label, prob, formatTime(rec.CreatedAt),
		).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("lab_record insert failed", "job_id", rec.JobID, "error", err)
		return fmt.Errorf("%w: insert lab_record: %v", common.ErrDatabase, err)
	}
	r.log.Info("lab_record stored", "record_id", rec.ID, "job_id", rec.JobID, "defaulted", len(rec.Defaults))
	return nil
}

func (r *labRecordRepo) Get(ctx context.Context, id uuid.UUID) (*entity.LabRecord, error) {
	b := r.db.builder()
	q, args := b.Select(labRecordColumns...).
		From(b.Table(labRecordTable)).
		Where(entsql.EQ("id", id.String())).
		Query()
	recs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, common.NewAppError("RECORD_NOT_FOUND", fmt.Sprintf("lab record %s", id), common.ErrNotFound)
	}
	return recs[0], nil
}

// List returns records newest first.
func (r *labRecordRepo) List(ctx context.Context, f ListFilter) ([]*entity.LabRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	b := r.db.builder()
	sel := b.Select(labRecordColumns...).From(b.Table(labRecordTable))
	var preds []*entsql.Predicate
	if !f.From.IsZero() {
		preds = append(preds, entsql.GTE("created_at", formatTime(f.From)))
	}
	if !f.To.IsZero() {
		preds = append(preds, entsql.LT("created_at", formatTime(f.To)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	q, args := sel.OrderBy(entsql.Desc("created_at")).Limit(limit).Query()
	return r.query(ctx, q, args)
}

func (r *labRecordRepo) query(ctx context.Context, q string, args []any) ([]*entity.LabRecord, error) {
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: query lab_record: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.LabRecord
	for rows.Next() {
		var (
			rec                                entity.LabRecord
			id, jobID, features, defaults, cAt string
			label                              sql.NullString
			prob                               sql.NullFloat64
		)
		if err := rows.Scan(&id, &jobID, &rec.SourcePath, &rec.ContentHash,
			&rec.Patient.Name, &rec.Patient.Hospital, &rec.Patient.Lab, &rec.Patient.Date,
			&features, &defaults, &label, &prob, &cAt); err != nil {
			return nil, fmt.Errorf("%w: scan lab_record: %v", common.ErrDatabase, err)
		}
		var err error
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: bad record id %q", common.ErrDatabase, id)
		}
		if rec.JobID, err = uuid.Parse(jobID); err != nil {
			return nil, fmt.Errorf("%w: bad job id %q", common.ErrDatabase, jobID)
		}
		if rec.CreatedAt, err = parseTime(cAt); err != nil {
			return nil, fmt.Errorf("%w: bad created_at %q", common.ErrDatabase, cAt)
		}
		if err := json.Unmarshal([]byte(features), &rec.Record); err != nil {
			return nil, fmt.Errorf("%w: decode features: %v", common.ErrDatabase, err)
		}
		if err := json.Unmarshal([]byte(defaults), &rec.Defaults); err != nil {
			return nil, fmt.Errorf("%w: decode defaults: %v", common.ErrDatabase, err)
		}
		rec.Record.Defaults = rec.Defaults
		if label.Valid {
			rec.Prediction = &entity.Prediction{Label: label.String, Probability: prob.Float64}
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate lab_record: %v", common.ErrDatabase, err)
	}
	return out, nil
}
