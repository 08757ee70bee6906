package job

import (
	"contentscore/internal/core/usage"
)

// Job is the stored status of one run.
type Job struct {
	JobID     string   `json:"job_id"`
	Type      Type     `json:"type"`
	Status    Status   `json:"status"`
	URLCount  int      `json:"url_count,omitempty"`
	Error     string   `json:"error,omitempty"`
	Summary   *Summary `json:"summary,omitempty"`
	UpdatedAt string   `json:"updated_at"`
}

type Type string

const (
	TypeBatch Type = "batch"
	TypeScore Type = "score"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Summary is the outcome of a finished or in-flight run.
type Summary struct {
	Total           int            `json:"total"`
	Succeeded       int            `json:"succeeded"`
	Errored         int            `json:"errored"`
	CreditExhausted int            `json:"credit_exhausted"`
	Batches         int            `json:"batches"`
	Exhausted       bool           `json:"exhausted"`
	Reason          string         `json:"reason,omitempty"`
	Stats           usage.Snapshot `json:"stats"`
	Reports         *ReportPaths   `json:"reports,omitempty"`
}

type ReportPaths struct {
	JSON string `json:"json"`
	CSV  string `json:"csv"`
	HTML string `json:"html"`
}
