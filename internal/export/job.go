// Package export orchestrates Metrica Logs API bulk exports as an
// explicit, resumable state machine. One job covers one provider-side
// log request from evaluation to downloaded rows and cleanup.
package export

import (
	"time"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/report"
)

// State of an export job.
type State string

const (
	StateEvaluating  State = "evaluating"
	StateCreated     State = "created"
	StatePolling     State = "polling"
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateCancelled   State = "cancelled"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transition can leave the state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Params scope one export. Two advances disagree when any of these
// differ; the row budget is an invocation bound, not part of the scope.
type Params struct {
	CounterID int64  `json:"counter_id"`
	Date1     string `json:"date1"`
	Date2     string `json:"date2"`
	Source    string `json:"source,omitempty"`
	Fields    string `json:"fields,omitempty"`
}

// SameScope reports whether two parameter sets address the same export.
func (p Params) SameScope(other Params) bool {
	return p.CounterID == other.CounterID &&
		p.Date1 == other.Date1 &&
		p.Date2 == other.Date2 &&
		p.Source == other.Source &&
		p.Fields == other.Fields
}

// Job is one export orchestration. It is owned by the advancing call;
// concurrent advances on the same request id are a caller error.
type Job struct {
	RequestID string
	Params    Params
	RowBudget int

	State      State
	LastStatus string

	Parts           []int
	PartsDownloaded int
	RowsConsumed    int
	Partial         bool
	Table           report.Table
	Warnings        []string

	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	cleaned bool
}

// NewJob starts a job at the evaluation step.
func NewJob(params Params, rowBudget int, now time.Time) *Job {
	return &Job{
		Params:    params,
		RowBudget: rowBudget,
		State:     StateEvaluating,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResumeJob reconstructs a job for a request id this process has never
// seen, re-entering the state machine at polling.
func ResumeJob(requestID string, params Params, rowBudget int, now time.Time) *Job {
	job := NewJob(params, rowBudget, now)
	job.RequestID = requestID
	job.State = StatePolling
	return job
}

func (j *Job) warn(message string) {
	for _, existing := range j.Warnings {
		if existing == message {
			return
		}
	}
	j.Warnings = append(j.Warnings, message)
}
