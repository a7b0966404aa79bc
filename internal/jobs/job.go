package jobs

import (
	"time"

	"github.com/dshills/tandem/internal/reconcile"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"

	// StatusNotFound is reported for ids the store does not hold. No job ever carries it.
	StatusNotFound Status = "not_found"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	default:
		return 2
	}
}

// Progress tracks how far a run has got. Percentage is derived from the counts.
type Progress struct {
	CurrentItem string `json:"currentItem"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	Percentage  int    `json:"percentage"`
}

// LogEntry is one timestamped job log line.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Job is a snapshot of one analysis run.
type Job struct {
	ID        string                    `json:"id"`
	Status    Status                    `json:"status"`
	Progress  Progress                  `json:"progress"`
	Logs      []LogEntry                `json:"logs"`
	Result    *reconcile.AnalysisResult `json:"result,omitempty"`
	CreatedAt time.Time                 `json:"createdAt"`
	UpdatedAt time.Time                 `json:"updatedAt"`
}

// Snapshot is what pollers see. Unknown ids yield status not_found.
type Snapshot struct {
	ID       string                    `json:"id"`
	Status   Status                    `json:"status"`
	Progress *Progress                 `json:"progress,omitempty"`
	Logs     []LogEntry                `json:"logs,omitempty"`
	Result   *reconcile.AnalysisResult `json:"result,omitempty"`
}

func (j *Job) clone() Job {
	c := *j
	c.Logs = append([]LogEntry(nil), j.Logs...)
	return c
}

// ProgressOption updates one progress field.
type ProgressOption func(*Progress)

// WithCurrent sets the item currently being worked on.
func WithCurrent(item string) ProgressOption {
	return func(p *Progress) { p.CurrentItem = item }
}

// WithProcessed sets the number of processed items.
func WithProcessed(n int) ProgressOption {
	return func(p *Progress) { p.Processed = n }
}

// WithTotal sets the total number of items.
func WithTotal(n int) ProgressOption {
	return func(p *Progress) { p.Total = n }
}

func (p *Progress) recompute() {
	if p.Total <= 0 {
		return
	}
	pct := p.Processed * 100 / p.Total
	p.Percentage = max(0, min(100, pct))
}
