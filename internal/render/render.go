// Package render draws prediction results as an HTML page or a text table.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"text/tabwriter"

	"github.com/urlsafety/batch-predictor/internal/features"
	"github.com/urlsafety/batch-predictor/internal/predict"
)

// Column headers shared by every rendering.
const (
	ColumnIndex      = "Website No."
	ColumnPrediction = "Prediction"
	ColumnLabel      = "Label"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.New("page.html").Funcs(template.FuncMap{
	"isMalicious": func(label string) bool { return label == predict.LabelMalicious },
}).ParseFS(templateFS, "templates/page.html"))

// Page is everything the upload page can show. Result and Error are mutually
// exclusive; both nil is the idle page.
type Page struct {
	Features     []features.Feature
	MaxUploadMiB int64
	Filename     string
	SubmissionID string
	Missing      []string
	Rows         []predict.Row
	Error        string
}

// Submitted reports whether the page follows a submit event.
func (p *Page) Submitted() bool { return p.SubmissionID != "" || p.Error != "" }

// Columns returns the result table headers.
func (p *Page) Columns() []string {
	return []string{ColumnIndex, ColumnPrediction, ColumnLabel}
}

// HTML writes the upload page.
func HTML(w io.Writer, p *Page) error {
	if p.Features == nil {
		p.Features = features.Required
	}
	if err := pageTmpl.Execute(w, p); err != nil {
		return fmt.Errorf("render: execute page: %w", err)
	}
	return nil
}

// Text writes rows as an aligned plain-text table.
func Text(w io.Writer, rows []predict.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\n", ColumnIndex, ColumnPrediction, ColumnLabel)
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", r.Index, r.Prediction, r.Label)
	}
	return tw.Flush()
}
