package report

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
	"time"

	"contentscore/internal/core/result"
)

// DomainStats aggregates successful results per source host.
type DomainStats struct {
	Domain   string  `json:"domain"`
	Count    int     `json:"count"`
	AvgCw    float64 `json:"avgCw"`
	AvgSd    float64 `json:"avgSd"`
	AvgDv    float64 `json:"avgDv"`
	Combined float64 `json:"combined"`
}

type ThemeStats struct {
	Theme    string  `json:"theme"`
	Label    string  `json:"label"`
	Count    int     `json:"count"`
	AvgScore float64 `json:"avgScore"`
}

type Analysis struct {
	Generated     string          `json:"generated"`
	Total         int             `json:"total"`
	Successful    int             `json:"successful"`
	Errors        int             `json:"errors"`
	SuccessRate   float64         `json:"successRate"`
	AvgCw         float64         `json:"avgCw"`
	AvgSd         float64         `json:"avgSd"`
	AvgDv         float64         `json:"avgDv"`
	AvgCombined   float64         `json:"avgCombined"`
	HighScoring   []result.Record `json:"highScoring"`
	Domains       []DomainStats   `json:"domains"`
	Themes        []ThemeStats    `json:"themes"`
	TopPerformers []result.Record `json:"topPerformers"`
}

var themeKeywords = []struct {
	theme    string
	keywords []string
}{
	{"philanthropy", []string{"philanthropy", "donation", "charity", "giving", "fundraising"}},
	{"environment", []string{"environment", "climate", "solar", "conservation", "sustainability"}},
	{"social_impact", []string{"social", "community", "impact", "helping", "support"}},
	{"technology", []string{"tech", "innovation", "startup", "digital", "ai"}},
	{"health", []string{"health", "medical", "healthcare", "treatment", "therapy"}},
	{"education", []string{"education", "school", "learning", "student", "teaching"}},
	{"animals", []string{"animal", "wildlife", "conservation", "species", "rescue"}},
}

// Analyze computes aggregate statistics over successful results. Errors
// counts every non-success record.
func Analyze(results []result.Record, now time.Time) Analysis {
	a := Analysis{Generated: now.UTC().Format(time.RFC3339), Total: len(results)}

	var ok []result.Record
	for _, r := range results {
		if r.Succeeded() {
			ok = append(ok, r)
		}
	}
	a.Successful = len(ok)
	a.Errors = a.Total - a.Successful
	if a.Total > 0 {
		a.SuccessRate = float64(a.Successful) / float64(a.Total) * 100
	}
	if len(ok) == 0 {
		return a
	}

	domains := map[string]*DomainStats{}
	themes := map[string]*ThemeStats{}
	themeTotals := map[string]float64{}
	for _, r := range ok {
		a.AvgCw += r.Cw
		a.AvgSd += r.Sd
		a.AvgDv += r.Dv
		if r.Cw > 80 && r.Sd > 75 && r.Dv > 70 {
			a.HighScoring = append(a.HighScoring, r)
		}
		if host := domainOf(r.URL); host != "" {
			d, found := domains[host]
			if !found {
				d = &DomainStats{Domain: host}
				domains[host] = d
			}
			d.Count++
			d.AvgCw += r.Cw
			d.AvgSd += r.Sd
			d.AvgDv += r.Dv
		}
		text := strings.ToLower(r.Title + " " + r.Reasoning)
		for _, tk := range themeKeywords {
			for _, kw := range tk.keywords {
				if strings.Contains(text, kw) {
					t, found := themes[tk.theme]
					if !found {
						t = &ThemeStats{Theme: tk.theme, Label: strings.ToUpper(strings.ReplaceAll(tk.theme, "_", " "))}
						themes[tk.theme] = t
					}
					t.Count++
					themeTotals[tk.theme] += r.Combined()
					break
				}
			}
		}
	}
	n := float64(len(ok))
	a.AvgCw /= n
	a.AvgSd /= n
	a.AvgDv /= n
	a.AvgCombined = a.AvgCw + a.AvgSd + a.AvgDv

	for _, d := range domains {
		c := float64(d.Count)
		d.AvgCw /= c
		d.AvgSd /= c
		d.AvgDv /= c
		d.Combined = d.AvgCw + d.AvgSd + d.AvgDv
		a.Domains = append(a.Domains, *d)
	}
	sort.SliceStable(a.Domains, func(i, j int) bool {
		if a.Domains[i].Combined != a.Domains[j].Combined {
			return a.Domains[i].Combined > a.Domains[j].Combined
		}
		return a.Domains[i].Domain < a.Domains[j].Domain
	})

	for name, t := range themes {
		t.AvgScore = themeTotals[name] / float64(t.Count)
		a.Themes = append(a.Themes, *t)
	}
	sort.SliceStable(a.Themes, func(i, j int) bool {
		if a.Themes[i].AvgScore != a.Themes[j].AvgScore {
			return a.Themes[i].AvgScore > a.Themes[j].AvgScore
		}
		return a.Themes[i].Theme < a.Themes[j].Theme
	})

	top := append([]result.Record(nil), ok...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Combined() > top[j].Combined() })
	if len(top) > 10 {
		top = top[:10]
	}
	a.TopPerformers = top
	return a
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

var mdTmpl = template.Must(template.New("analysis.md.tmpl").Funcs(template.FuncMap{
	"num":  formatScore,
	"f2":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"pct":  func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"inc":  func(i int) int { return i + 1 },
	"clip": clip,
	"first": func(n int, v any) any {
		switch s := v.(type) {
		case []result.Record:
			if len(s) > n {
				return s[:n]
			}
			return s
		case []DomainStats:
			if len(s) > n {
				return s[:n]
			}
			return s
		}
		return v
	},
}).ParseFS(templateFS, "templates/analysis.md.tmpl"))

// Markdown renders the analysis as a markdown report.
func (a Analysis) Markdown() (string, error) {
	var buf bytes.Buffer
	if err := mdTmpl.Execute(&buf, a); err != nil {
		return "", fmt.Errorf("render analysis: %w", err)
	}
	return buf.String(), nil
}
