package server

import (
	"context"
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/core"
	"github.com/joseph-ayodele/labscan/internal/core/ocr"
	"github.com/joseph-ayodele/labscan/internal/export"
	"github.com/joseph-ayodele/labscan/internal/ingest"
	"github.com/joseph-ayodele/labscan/internal/repository"
)

type fileText struct{}

// Extract treats every document as already-OCR'd text.
func (fileText) Extract(_ context.Context, path string) (ocr.ExtractionResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ocr.ExtractionResult{}, err
	}
	return ocr.ExtractionResult{Text: string(b), Pages: 1, Method: "text"}, nil
}

func newService(t *testing.T) *ExtractionService {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	jobs := repository.NewExtractJobRepository(db, nil)
	records := repository.NewLabRecordRepository(db, nil)
	proc := core.NewProcessor(nil, fileText{}, jobs, records, nil)
	ing := ingest.NewFSIngestor(jobs, nil, nil)
	return NewExtractionService(proc, ing, jobs, records, export.NewService(records, nil), nil)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestExtractText(t *testing.T) {
	svc := newService(t)
	resp, err := svc.ExtractText(context.Background(), mustStruct(t, map[string]any{
		"text": "Name: Jane Doe\nGender: Female\nGlucose: 95 Creatinine: 1.1",
	}))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	m := resp.AsMap()
	features := m["features"].(map[string]any)
	if features[constants.Glucose] != 95.0 || features[constants.Creatinine] != 1.1 || features[constants.Gender] != 0.0 {
		t.Errorf("features = %v", features)
	}
	if len(features) != len(constants.ModelFeatures()) {
		t.Errorf("features has %d keys", len(features))
	}
	if m["patient"].(map[string]any)["patient_name"] != "Jane Doe" {
		t.Errorf("patient = %v", m["patient"])
	}
	if _, ok := m["prediction"]; ok {
		t.Error("prediction present without a classifier")
	}
}

func TestExtractTextErrors(t *testing.T) {
	svc := newService(t)
	tests := []struct {
		name string
		req  map[string]any
		code codes.Code
	}{
		{"missing text", map[string]any{}, codes.InvalidArgument},
		{"whitespace only", map[string]any{"text": " \t\r\n"}, codes.InvalidArgument},
		{"blank after normalization", map[string]any{"text": "\x01\x02\x7f"}, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ExtractText(context.Background(), mustStruct(t, tt.req))
			if status.Code(err) != tt.code {
				t.Errorf("code = %v, want %v (err=%v)", status.Code(err), tt.code, err)
			}
		})
	}
}

func TestProcessFileAndGetRecord(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "ocr.txt")
	if err := os.WriteFile(path, []byte("Age: 52\nBody Mass Index (BMI): 24.7"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := svc.ProcessFile(ctx, mustStruct(t, map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	recID := resp.AsMap()["record_id"].(string)
	jobID := resp.AsMap()["job_id"].(string)

	got, err := svc.GetRecord(ctx, mustStruct(t, map[string]any{"id": recID}))
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.AsMap()["features"].(map[string]any)[constants.BMI] != 24.7 {
		t.Errorf("record = %v", got.AsMap())
	}

	job, err := svc.GetJob(ctx, mustStruct(t, map[string]any{"id": jobID}))
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.AsMap()["status"] != string(constants.JobStatusExtracted) {
		t.Errorf("job = %v", job.AsMap())
	}

	if _, err := svc.GetRecord(ctx, mustStruct(t, map[string]any{"id": "not-a-uuid"})); status.Code(err) != codes.InvalidArgument {
		t.Errorf("bad id: %v", err)
	}
	if _, err := svc.GetRecord(ctx, mustStruct(t, map[string]any{"id": jobID})); status.Code(err) != codes.NotFound {
		t.Errorf("unknown id: %v", err)
	}

	exp, err := svc.ExportRecords(ctx, mustStruct(t, map[string]any{}))
	if err != nil {
		t.Fatalf("ExportRecords: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(exp.AsMap()["xlsx"].(string)); err != nil {
		t.Errorf("xlsx not base64: %v", err)
	}
	if _, err := svc.ExportRecords(ctx, mustStruct(t, map[string]any{"from_date": "03/05/2024"})); status.Code(err) != codes.InvalidArgument {
		t.Errorf("bad date: %v", err)
	}
}

func TestIngestPathRPC(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	first, err := svc.IngestPath(ctx, mustStruct(t, map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("IngestPath: %v", err)
	}
	second, err := svc.IngestPath(ctx, mustStruct(t, map[string]any{"path": path}))
	if err != nil {
		t.Fatal(err)
	}
	if second.AsMap()["deduplicated"] != true || second.AsMap()["job_id"] != first.AsMap()["job_id"] {
		t.Errorf("second = %v", second.AsMap())
	}
	if _, err := svc.IngestPath(ctx, mustStruct(t, map[string]any{})); status.Code(err) != codes.InvalidArgument {
		t.Errorf("missing path: %v", err)
	}

	dir, err := svc.IngestDirectory(ctx, mustStruct(t, map[string]any{"root_path": filepath.Dir(path)}))
	if err != nil {
		t.Fatal(err)
	}
	if dir.AsMap()["deduplicated"] != 1.0 {
		t.Errorf("directory = %v", dir.AsMap())
	}
}

func TestRoundTripOverBufconn(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogging(nil)))
	Register(gs, newService(t))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	ctx := context.Background()

	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v err=%v", hc.GetStatus(), err)
	}

	out, err := NewClient(conn).Call(ctx, "ExtractText", map[string]any{"text": "Gender: Male Age: 61"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	features := out["features"].(map[string]any)
	if features[constants.Gender] != 1.0 || features[constants.Age] != 61.0 {
		t.Errorf("features = %v", features)
	}

	_, err = NewClient(conn).Call(ctx, "GetRecord", map[string]any{"id": ""})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("GetRecord(empty) code = %v", status.Code(err))
	}
}
