package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/core/async"
	"github.com/joseph-ayodele/labscan/internal/repository"
)

// FSIngestor reads from the local filesystem. Each new document gets a
// QUEUED extract_job and is handed to Queue.
type FSIngestor struct {
	Jobs   repository.ExtractJobRepository
	Queue  async.Queue
	Logger *slog.Logger
}

func NewFSIngestor(jobs repository.ExtractJobRepository, q async.Queue, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{Jobs: jobs, Queue: q, Logger: logger}
}

// IngestPath skips content already seen (any job not FAILED) unless force is set.
func (i *FSIngestor) IngestPath(ctx context.Context, path string, force bool) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		i.Logger.Error("abs path error", "path", path, "error", err)
		return out, err
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		i.Logger.Warn("unsupported or missing extension", "path", abs, "ext", ext)
		return out, common.NewAppError("INGEST", fmt.Sprintf("unsupported or missing extension %q", ext), common.ErrInvalidInput)
	}
	out.Format = constants.MapExtToFormat(ext)

	hash, err := common.HashFile(abs)
	if err != nil {
		i.Logger.Error("hash error", "path", abs, "error", err)
		return out, err
	}
	out.HashHex = hash

	if !force {
		prev, err := i.Jobs.FindByHash(ctx, hash)
		switch {
		case err == nil && prev.Status != string(constants.JobStatusFailed):
			out.JobID = prev.ID.String()
			out.Deduplicated = true
			i.Logger.Info("document already ingested", "path", abs, "job_id", prev.ID, "status", prev.Status)
			return out, nil
		case err != nil && !errors.Is(err, common.ErrNotFound):
			return out, err
		}
	}

	job, err := i.Jobs.Start(ctx, abs, hash, out.Format, constants.JobStatusQueued)
	if err != nil {
		return out, err
	}
	out.JobID = job.ID.String()

	if i.Queue != nil {
		ctx, traceID := common.EnsureRequestID(ctx)
		qj := async.Job{JobID: job.ID, Path: abs, Force: force, SubmittedAt: time.Now(), TraceID: traceID}
		if err := i.Queue.Enqueue(ctx, qj); err != nil {
			_ = i.Jobs.FinishFailure(context.WithoutCancel(ctx), job.ID, "enqueue: "+err.Error())
			return out, fmt.Errorf("enqueue: %w", err)
		}
	}
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested,
// and calls IngestPath for each file. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden, force bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.NewAppError("INGEST", "root path is required", common.ErrInvalidInput)
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path, force)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.Logger.Info("directory ingested", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched, "succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, nil
}
