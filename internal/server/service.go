package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labscan/internal/common"
	"github.com/joseph-ayodele/labscan/internal/core"
	"github.com/joseph-ayodele/labscan/internal/core/record"
	"github.com/joseph-ayodele/labscan/internal/entity"
	"github.com/joseph-ayodele/labscan/internal/export"
	"github.com/joseph-ayodele/labscan/internal/ingest"
	"github.com/joseph-ayodele/labscan/internal/repository"
)

const (
	ServiceName  = "labscan.v1.ExtractionService"
	maxTextBytes = 4 << 20
)

// ExtractionServer is the RPC surface. Requests and responses are JSON-shaped
// google.protobuf.Struct messages.
type ExtractionServer interface {
	ExtractText(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessFile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IngestPath(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IngestDirectory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type ExtractionService struct {
	processor *core.Processor
	ingestor  ingest.Ingestor
	jobs      repository.ExtractJobRepository
	records   repository.LabRecordRepository
	exporter  *export.Service
	logger    *slog.Logger
}

var _ ExtractionServer = (*ExtractionService)(nil)

func NewExtractionService(
	proc *core.Processor,
	ing ingest.Ingestor,
	jobs repository.ExtractJobRepository,
	records repository.LabRecordRepository,
	exporter *export.Service,
	logger *slog.Logger,
) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{
		processor: proc,
		ingestor:  ing,
		jobs:      jobs,
		records:   records,
		exporter:  exporter,
		logger:    logger,
	}
}

// recordView is the response shape shared by the record-returning methods.
type recordView struct {
	RecordID   string             `json:"record_id,omitempty"`
	JobID      string             `json:"job_id,omitempty"`
	SourcePath string             `json:"source_path,omitempty"`
	Patient    record.PatientInfo `json:"patient"`
	Features   record.Record      `json:"features"`
	Defaults   []record.Default   `json:"defaults"`
	Matched    int                `json:"matched_fields,omitempty"`
	Prediction *core.Prediction   `json:"prediction,omitempty"`
	CreatedAt  string             `json:"created_at,omitempty"`
}

func viewFromEntity(r *entity.LabRecord) recordView {
	v := recordView{
		RecordID:   r.ID.String(),
		JobID:      r.JobID.String(),
		SourcePath: r.SourcePath,
		Patient:    r.Patient,
		Features:   r.Record,
		Defaults:   r.Defaults,
		CreatedAt:  r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if r.Prediction != nil {
		v.Prediction = &core.Prediction{Label: r.Prediction.Label, Probability: r.Prediction.Probability}
	}
	if v.Defaults == nil {
		v.Defaults = []record.Default{}
	}
	return v
}

// ExtractText runs the text pipeline on caller-supplied OCR text. Nothing is persisted.
func (s *ExtractionService) ExtractText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	text := stringField(req, "text")
	v := common.NewValidator().Field("text", text, common.Required, common.MaxBytes(maxTextBytes))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}

	an, err := core.Analyze(text)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	out := recordView{
		Patient:  an.Patient,
		Features: an.Record,
		Defaults: an.Record.Defaults,
		Matched:  len(an.Raw),
	}
	if out.Defaults == nil {
		out.Defaults = []record.Default{}
	}
	if boolField(req, "classify") {
		pred, err := s.processor.Classify(ctx, an.Record)
		if err != nil {
			s.logger.Warn("classification failed", "error", err)
			return nil, common.InternalErrorf("classify: %v", err)
		}
		out.Prediction = pred
	}
	return toStruct(out)
}

// ProcessFile runs a document on the server's filesystem through the full pipeline synchronously.
func (s *ExtractionService) ProcessFile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path := strings.TrimSpace(stringField(req, "path"))
	if err := common.ValidateAndReturnError(common.NewValidator().Field("path", path, common.Required)); err != nil {
		return nil, err
	}
	s.logger.Info("processing file", "path", path)
	out, err := s.processor.ProcessFile(ctx, path)
	if err != nil {
		s.logger.Error("process file failed", "path", path, "job_id", out.JobID, "error", err)
		return nil, common.ToStatus(err)
	}
	return toStruct(viewFromEntity(out.Record))
}

func (s *ExtractionService) GetJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := uuidField(req, "id")
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	// OCR text can be large; callers fetch the record instead.
	job.OCRText = nil
	return toStruct(job)
}

func (s *ExtractionService) GetRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := uuidField(req, "id")
	if err != nil {
		return nil, err
	}
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(viewFromEntity(rec))
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func uuidField(s *structpb.Struct, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(stringField(s, key))
	v := common.NewValidator().Field(key, raw, common.Required, common.UUID)
	if err := common.ValidateAndReturnError(v); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(raw), nil
}

// toStruct converts any JSON-marshalable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return out, nil
}

// Register attaches the service to s.
func Register(s grpc.ServiceRegistrar, srv ExtractionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(ExtractionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := fmt.Sprintf("/%s/%s", ServiceName, name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ExtractionServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ExtractionServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes labscan.v1.ExtractionService for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		method("ExtractText", ExtractionServer.ExtractText),
		method("ProcessFile", ExtractionServer.ProcessFile),
		method("IngestPath", ExtractionServer.IngestPath),
		method("IngestDirectory", ExtractionServer.IngestDirectory),
		method("GetJob", ExtractionServer.GetJob),
		method("GetRecord", ExtractionServer.GetRecord),
		method("ExportRecords", ExtractionServer.ExportRecords),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "labscan/v1/extraction.proto",
}
