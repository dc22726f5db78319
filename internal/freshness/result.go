package freshness

import (
	"time"

	"github.com/ziadkadry99/memberrec/internal/llm"
)

// Status of a refresh run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RecordError is a per-member failure that did not stop the run.
type RecordError struct {
	MemberNo int64  `json:"member_no"`
	Error    string `json:"error"`
}

// Result summarizes one refresh run.
type Result struct {
	RunID      string        `json:"run_id"`
	Version    string        `json:"version"`
	Enhance    bool          `json:"enhance"`
	Status     Status        `json:"status"`
	Stale      int           `json:"stale"`
	Enhanced   int           `json:"enhanced"`
	Failed     int           `json:"failed"`
	Upserted   int           `json:"upserted"`
	Vectorized int           `json:"vectorized"`
	Usage      llm.Usage     `json:"usage"`
	Errors     []RecordError `json:"errors"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Duration is how long the run took, or has taken so far.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
