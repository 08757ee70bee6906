package result

import (
	"time"
)

// Status of a single scored URL.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusError           Status = "error"
	StatusCreditExhausted Status = "credit_exhausted"
)

const (
	PreviewLength   = 200
	ReasoningLength = 500
)

// Record is the outcome of processing one URL. JSON names follow the
// report format consumed by the analyze command and external dashboards.
type Record struct {
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	ContentPreview  string  `json:"contentPreview"`
	ContentLength   int     `json:"contentLength"`
	Cw              float64 `json:"Cw"`
	Sd              float64 `json:"Sd"`
	Dv              float64 `json:"Dv"`
	Status          Status  `json:"status"`
	Reasoning       string  `json:"reasoning"`
	ProcessedAt     string  `json:"processedAt"`
	CreditExhausted bool    `json:"creditExhausted,omitempty"`
}

// Combined is the sum of the three protocol scores.
func (r Record) Combined() float64 { return r.Cw + r.Sd + r.Dv }

func (r Record) Succeeded() bool { return r.Status == StatusSuccess }

// Failed builds an error or credit_exhausted record with zeroed scores.
func Failed(url, title string, status Status, reasoning string, at time.Time) Record {
	return Record{
		URL:             url,
		Title:           title,
		Status:          status,
		Reasoning:       Truncate(reasoning, ReasoningLength),
		ProcessedAt:     at.UTC().Format(time.RFC3339Nano),
		CreditExhausted: status == StatusCreditExhausted,
	}
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Preview returns the first PreviewLength runes of text, with "..." appended
// when text was longer.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= PreviewLength {
		return text
	}
	return string(r[:PreviewLength]) + "..."
}

// Clamp bounds v to [0,100]; nil yields the neutral default.
func Clamp(v *float64) float64 {
	if v == nil {
		return 50
	}
	switch {
	case *v < 0:
		return 0
	case *v > 100:
		return 100
	default:
		return *v
	}
}
