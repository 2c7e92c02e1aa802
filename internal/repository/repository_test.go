package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/core/fields"
	"github.com/joseph-ayodele/labscan/internal/core/record"
	"github.com/joseph-ayodele/labscan/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestOpenPicksDialect(t *testing.T) {
	db := openTestDB(t)
	if db.Dialect() != "sqlite3" {
		t.Errorf("dialect = %q", db.Dialect())
	}
	if err := db.HealthCheck(context.Background(), time.Second); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if !isPostgres("postgres://u@h/db") || isPostgres("file:x.db") {
		t.Error("isPostgres misclassified a DSN")
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestExtractJobLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewExtractJobRepository(openTestDB(t), nil)

	job, err := repo.Start(ctx, "/in/a.pdf", "abc", constants.PDF, constants.JobStatusQueued)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := repo.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := repo.FinishOCR(ctx, job.ID, OCROutcome{OCRText: "Glucose: 95", Method: "pdf-ocr", Pages: 2}); err != nil {
		t.Fatalf("FinishOCR: %v", err)
	}
	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != string(constants.JobStatusOCROK) || got.Pages != 2 || got.OCRText == nil || *got.OCRText != "Glucose: 95" {
		t.Errorf("after OCR: %+v", got)
	}
	if got.FinishedAt != nil {
		t.Error("finished_at set before the job finished")
	}
	if !got.StartedAt.Equal(job.StartedAt) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, job.StartedAt)
	}

	recID := uuid.New()
	if err := repo.FinishSuccess(ctx, job.ID, recID); err != nil {
		t.Fatalf("FinishSuccess: %v", err)
	}
	got, _ = repo.Get(ctx, job.ID)
	if got.Status != string(constants.JobStatusExtracted) || got.RecordID == nil || *got.RecordID != recID || got.FinishedAt == nil {
		t.Errorf("after success: %+v", got)
	}
}

func TestExtractJobFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewExtractJobRepository(openTestDB(t), nil)
	job, _ := repo.Start(ctx, "/in/b.png", "def", constants.IMAGE, constants.JobStatusRunning)

	if err := repo.FinishOCR(ctx, job.ID, OCROutcome{ErrorMessage: "no pages"}); err != nil {
		t.Fatalf("FinishOCR: %v", err)
	}
	got, _ := repo.Get(ctx, job.ID)
	if got.Status != string(constants.JobStatusFailed) || got.ErrorMessage == nil || *got.ErrorMessage != "no pages" {
		t.Errorf("got %+v", got)
	}
}

func TestExtractJobNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewExtractJobRepository(openTestDB(t), nil)
	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Get: %v", err)
	}
	if err := repo.FinishFailure(ctx, uuid.New(), "x"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("FinishFailure: %v", err)
	}
	if _, err := repo.FindByHash(ctx, "nope"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("FindByHash: %v", err)
	}
}

func TestFindByHashReturnsLatest(t *testing.T) {
	ctx := context.Background()
	repo := NewExtractJobRepository(openTestDB(t), nil)
	first, _ := repo.Start(ctx, "/in/a.pdf", "same", constants.PDF, constants.JobStatusRunning)
	_ = repo.FinishFailure(ctx, first.ID, "boom")
	time.Sleep(2 * time.Millisecond)
	second, _ := repo.Start(ctx, "/in/a-copy.pdf", "same", constants.PDF, constants.JobStatusQueued)

	got, err := repo.FindByHash(ctx, "same")
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("FindByHash returned %s, want %s", got.ID, second.ID)
	}
}

func sampleRecord(t *testing.T) *entity.LabRecord {
	t.Helper()
	raw := fields.RawMap{
		constants.PatientName: "Jane Doe",
		constants.LabName:     "Central",
		constants.Gender:      "Male",
		constants.BMI:         "24.7",
		constants.Glucose:     "95",
	}
	rec := record.FromRaw(raw)
	return &entity.LabRecord{
		JobID:       uuid.New(),
		SourcePath:  "/in/a.pdf",
		ContentHash: "abc",
		Patient:     record.PatientFrom(raw),
		Record:      rec,
		Defaults:    rec.Defaults,
	}
}

func TestLabRecordInsertGet(t *testing.T) {
	ctx := context.Background()
	repo := NewLabRecordRepository(openTestDB(t), nil)

	in := sampleRecord(t)
	in.Prediction = &entity.Prediction{Label: "No Gallstone Detected", Probability: 81.25}
	if err := repo.Insert(ctx, in); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if in.ID == uuid.Nil || in.CreatedAt.IsZero() {
		t.Fatal("Insert did not assign id/created_at")
	}

	got, err := repo.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
	if got.Record.Float(constants.BMI) != 24.7 || got.Record.Int(constants.Gender) != 1 {
		t.Errorf("values lost: bmi=%v gender=%d", got.Record.Float(constants.BMI), got.Record.Int(constants.Gender))
	}
}

func TestLabRecordWithoutPrediction(t *testing.T) {
	ctx := context.Background()
	repo := NewLabRecordRepository(openTestDB(t), nil)
	in := sampleRecord(t)
	if err := repo.Insert(ctx, in); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.Get(ctx, in.ID)
	if got.Prediction != nil {
		t.Errorf("prediction = %+v, want nil", got.Prediction)
	}
	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Get(missing) = %v", err)
	}
}

func TestLabRecordList(t *testing.T) {
	ctx := context.Background()
	repo := NewLabRecordRepository(openTestDB(t), nil)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		r := sampleRecord(t)
		r.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := repo.Insert(ctx, r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}

	all, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != ids[2] {
		t.Fatalf("List order wrong: %d records", len(all))
	}

	window, err := repo.List(ctx, ListFilter{From: base.Add(30 * time.Minute), To: base.Add(2 * time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 1 || window[0].ID != ids[1] {
		t.Errorf("window = %d records", len(window))
	}

	limited, _ := repo.List(ctx, ListFilter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("limit: got %d", len(limited))
	}
}
