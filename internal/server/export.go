package server

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labscan/internal/common"
)

// ExportRecords returns an XLSX workbook, base64-encoded, of the records created
// between from_date and to_date (YYYY-MM-DD, both inclusive, both optional).
func (s *ExtractionService) ExportRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var fromPtr, toPtr *time.Time
	if fd := strings.TrimSpace(stringField(req, "from_date")); fd != "" {
		t, err := time.Parse("2006-01-02", fd)
		if err != nil {
			return nil, common.InvalidArgumentErrorf("from_date %q must be YYYY-MM-DD", fd)
		}
		fromPtr = &t
	}
	if td := strings.TrimSpace(stringField(req, "to_date")); td != "" {
		t, err := time.Parse("2006-01-02", td)
		if err != nil {
			return nil, common.InvalidArgumentErrorf("to_date %q must be YYYY-MM-DD", td)
		}
		// inclusive day -> exclusive bound
		t = t.AddDate(0, 0, 1)
		toPtr = &t
	}
	limit := int(req.GetFields()["limit"].GetNumberValue())

	xlsx, err := s.exporter.ExportRecordsXLSX(ctx, fromPtr, toPtr, limit)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "error", err)
		return nil, common.InternalError(err.Error())
	}
	return toStruct(map[string]any{
		"xlsx":  base64.StdEncoding.EncodeToString(xlsx),
		"bytes": len(xlsx),
	})
}
