package reporting

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-cycler/types"
)

const HTMLTemplate = "summary.html.tmpl"

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// templateFuncs returns the functions available to report templates
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatMinutes": func(d time.Duration) string {
			return formatMinutes(d)
		},
		"statusColor": func(o types.Outcome) string {
			return string(types.ColorFor(o))
		},
		"relPath": func(base, target string) string {
			if base == "" {
				return filepath.ToSlash(target)
			}
			rel, err := filepath.Rel(base, target)
			if err != nil {
				return filepath.ToSlash(target)
			}
			return filepath.ToSlash(rel)
		},
	}
}

// HTMLWriter renders the HTML summary table
type HTMLWriter struct {
	tmpl *template.Template
}

// NewHTMLWriter parses the embedded summary template
func NewHTMLWriter() (*HTMLWriter, error) {
	tmpl, err := template.New(HTMLTemplate).Funcs(templateFuncs()).ParseFS(templateFS, "templates/"+HTMLTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return &HTMLWriter{tmpl: tmpl}, nil
}

// Write renders r to w. Log links are made relative to dir.
func (h *HTMLWriter) Write(w io.Writer, r *Report, dir string) error {
	data := struct {
		Report *Report
		Dir    string
	}{Report: r, Dir: dir}
	if err := h.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render HTML summary: %w", err)
	}
	return nil
}
