package server

import (
	"context"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/ingest"
)

type ingestView struct {
	SourcePath   string `json:"source_path"`
	JobID        string `json:"job_id,omitempty"`
	Deduplicated bool   `json:"deduplicated"`
	ContentHash  string `json:"content_hash,omitempty"`
	Format       string `json:"format,omitempty"`
	Error        string `json:"error,omitempty"`
}

func viewFromResult(r ingest.IngestionResult) ingestView {
	return ingestView{
		SourcePath:   r.SourcePath,
		JobID:        r.JobID,
		Deduplicated: r.Deduplicated,
		ContentHash:  r.HashHex,
		Format:       r.Format,
		Error:        r.Err,
	}
}

// IngestPath registers one document and queues it; processing is asynchronous.
func (s *ExtractionService) IngestPath(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path := strings.TrimSpace(stringField(req, "path"))
	if path == "" {
		s.logger.Error("ingest request missing path")
		return nil, common.InvalidArgumentError("path is required")
	}
	force := boolField(req, "force")

	s.logger.Info("starting file ingest", "path", path, "force", force)
	r, err := s.ingestor.IngestPath(ctx, path, force)
	if err != nil {
		s.logger.Error("file ingest failed", "path", path, "error", err)
		return nil, common.ToStatus(err)
	}
	s.logger.Info("file ingest succeeded", "path", r.SourcePath, "job_id", r.JobID, "deduplicated", r.Deduplicated)
	return toStruct(viewFromResult(r))
}

func (s *ExtractionService) IngestDirectory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	root := strings.TrimSpace(stringField(req, "root_path"))
	if root == "" {
		s.logger.Error("ingest directory request missing root_path")
		return nil, common.InvalidArgumentError("root_path is required")
	}
	// skip_hidden defaults to true when absent
	skipHidden := true
	if v, ok := req.GetFields()["skip_hidden"]; ok {
		skipHidden = v.GetBoolValue()
	}
	force := boolField(req, "force")

	s.logger.Info("starting directory ingest", "root", root, "skip_hidden", skipHidden, "force", force)
	results, stats, err := s.ingestor.IngestDirectory(ctx, root, skipHidden, force)
	if err != nil {
		return nil, common.ToStatus(err)
	}

	items := make([]ingestView, 0, len(results))
	for _, r := range results {
		items = append(items, viewFromResult(r))
	}
	return toStruct(map[string]any{
		"scanned":      stats.Scanned,
		"matched":      stats.Matched,
		"succeeded":    stats.Succeeded,
		"deduplicated": stats.Deduplicated,
		"failed":       stats.Failed,
		"results":      items,
	})
}
