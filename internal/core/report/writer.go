package report

import (
	"bytes"
	"embed"
	"encoding/csv"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"contentscore/internal/core/result"
	"contentscore/internal/logger"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var csvHeader = []string{
	"URL", "Title", "Content Worth (Cw)", "Source Dependability (Sd)", "Diversity (Dv)",
	"Status", "Processed At", "Reasoning",
}

var funcs = map[string]any{
	"num":  formatScore,
	"band": band,
}

var htmlTmpl = htmltemplate.Must(htmltemplate.New("report.html.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/report.html.tmpl"))

// Paths are the suffixed files written by SaveAll.
type Paths struct {
	JSON string `json:"json"`
	CSV  string `json:"csv"`
	HTML string `json:"html"`
}

// Writer saves results under a directory.
type Writer struct {
	dir string
	now func() time.Time
	log *logger.Logger
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now, log: logger.New("Reports")}
}

func (w *Writer) Dir() string { return w.dir }

// Suffix derives a file suffix from an explicit prefix or, when empty, the
// current UTC time with separators made filename safe.
func Suffix(prefix string, at time.Time) string {
	if prefix != "" {
		return "-" + prefix
	}
	return "-" + at.UTC().Format("2006-01-02T15-04-05")
}

// SaveAll writes JSON, CSV and HTML under suffixed names and refreshes the
// unsuffixed latest copies.
func (w *Writer) SaveAll(results []result.Record, prefix string) (Paths, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create output dir: %w", err)
	}
	suffix := Suffix(prefix, w.now())
	paths := Paths{
		JSON: filepath.Join(w.dir, "results"+suffix+".json"),
		CSV:  filepath.Join(w.dir, "results"+suffix+".csv"),
		HTML: filepath.Join(w.dir, "report"+suffix+".html"),
	}
	latest := Paths{
		JSON: filepath.Join(w.dir, "results.json"),
		CSV:  filepath.Join(w.dir, "results.csv"),
		HTML: filepath.Join(w.dir, "report.html"),
	}
	for _, p := range []Paths{paths, latest} {
		if err := w.SaveJSON(results, p.JSON); err != nil {
			return Paths{}, err
		}
		if err := w.SaveCSV(results, p.CSV); err != nil {
			return Paths{}, err
		}
		if err := w.SaveHTML(results, p.HTML); err != nil {
			return Paths{}, err
		}
	}
	w.log.LogSuccessf("Results saved: %s, %s, %s", paths.JSON, paths.CSV, paths.HTML)
	return paths, nil
}

func (w *Writer) SaveJSON(results []result.Record, path string) error {
	if results == nil {
		results = []result.Record{}
	}
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return writeFile(path, b)
}

func (w *Writer) SaveCSV(results []result.Record, path string) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(csvHeader)
	for _, r := range results {
		_ = cw.Write([]string{
			r.URL, r.Title, formatScore(r.Cw), formatScore(r.Sd), formatScore(r.Dv),
			string(r.Status), r.ProcessedAt, r.Reasoning,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

func (w *Writer) SaveHTML(results []result.Record, path string) error {
	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}
	data := struct {
		Total, Successful, Errors int
		Generated                 string
		Results                   []result.Record
	}{
		Total:      len(results),
		Successful: succeeded,
		Errors:     len(results) - succeeded,
		Generated:  w.now().UTC().Format(time.RFC1123),
		Results:    results,
	}
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// Load reads a results JSON file written by SaveJSON.
func Load(path string) ([]result.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []result.Record
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

func writeFile(path string, b []byte) error {
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func band(v float64) string {
	switch {
	case v >= 70:
		return ""
	case v >= 40:
		return "medium"
	default:
		return "low"
	}
}

func clip(s string, n int) string {
	return strings.TrimSpace(result.Truncate(s, n))
}
