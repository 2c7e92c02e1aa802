// Package report renders the prediction report for one lab record.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/joseph-ayodele/labscan/internal/core"
	"github.com/joseph-ayodele/labscan/internal/core/record"
)

const Title = "Gallstone Disease Prediction Report"

// Input is everything a report shows. Record is optional; when set, a table
// of the extracted values is appended.
type Input struct {
	Patient    record.PatientInfo
	Prediction core.Prediction
	Record     *record.Record
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithRendererOptions(html.WithXHTML()),
)

// Render writes the report as Markdown.
func Render(w io.Writer, in Input) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", Title)
	for _, kv := range in.Patient.Pairs() {
		fmt.Fprintf(&b, "- **%s:** %s\n", kv[0], escape(kv[1]))
	}
	b.WriteString("\n## Result\n\n")
	fmt.Fprintf(&b, "Prediction: **%s**\n\n", escape(in.Prediction.Label))
	fmt.Fprintf(&b, "Probability: %.2f%%\n", in.Prediction.Probability)

	if in.Record != nil {
		b.WriteString("\n## Extracted values\n\n| Field | Value | Note |\n|---|---|---|\n")
		for _, v := range in.Record.Values {
			val := strconv.FormatFloat(v.Num, 'f', -1, 64)
			if v.Categorical {
				val = strconv.Itoa(v.Code)
			}
			note := ""
			for _, d := range in.Record.Defaults {
				if d.Field == v.Name {
					note = "default (" + string(d.Reason) + ")"
				}
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", escape(v.Name), val, note)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderHTML writes the report as an HTML fragment.
func RenderHTML(w io.Writer, in Input) error {
	var src bytes.Buffer
	if err := Render(&src, in); err != nil {
		return err
	}
	if err := md.Convert(src.Bytes(), w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `_`, `\_`, "`", "\\`", `|`, `\|`, `<`, `&lt;`, `>`, `&gt;`, `[`, `\[`, `]`, `\]`,
)

// escape keeps OCR'd values from being read as Markdown or HTML.
func escape(s string) string { return mdEscaper.Replace(s) }
