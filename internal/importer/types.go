package importer

import (
	"time"
)

// Phase describes where a run currently is in its lifecycle.
type Phase string

const (
	PhaseAwaitingReview Phase = "awaiting_review"
	PhaseWriting        Phase = "writing"
	PhaseComplete       Phase = "complete"
	PhaseCancelled      Phase = "cancelled"
	PhaseFailed         Phase = "failed"
)

// Status is the terminal status of a finished run.
type Status string

const (
	StatusCompleted          Status = "completed"
	StatusPartiallyCompleted Status = "partially_completed"
	StatusFailed             Status = "failed"
)

// RowError records one excluded row for the error report.
type RowError struct {
	RowIndex int      `json:"rowIndex"`
	Line     int      `json:"line"`
	Values   []string `json:"originalValues"`
	Reason   string   `json:"reason"`
}

// BatchResult is the outcome of one write batch.
type BatchResult struct {
	BatchIndex int        `json:"batchIndex"`
	Attempted  int        `json:"attempted"`
	Inserted   int        `json:"inserted"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Errors     []RowError `json:"errors,omitempty"`
}

// Outcome accumulates counts across batches. Counts only ever grow while a
// run is in flight.
type Outcome struct {
	Status     Status        `json:"status"`
	TotalRows  int           `json:"totalRows"`
	ValidRows  int           `json:"validRows"`
	Attempted  int           `json:"attempted"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Batches    []BatchResult `json:"batches"`
	RowErrors  []RowError    `json:"rowErrors,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`
}

// addBatch folds one batch result into the cumulative counts.
func (o *Outcome) addBatch(b BatchResult) {
	o.Batches = append(o.Batches, b)
	o.Attempted += b.Attempted
	o.Inserted += b.Inserted
	o.Updated += b.Updated
	o.Skipped += b.Skipped
	o.RowErrors = append(o.RowErrors, b.Errors...)
}

// Progress is one progress snapshot, emitted after every batch.
type Progress struct {
	ImportID         string  `json:"importId"`
	Phase            Phase   `json:"phase"`
	TotalBatches     int     `json:"totalBatches"`
	CompletedBatches int     `json:"completedBatches"`
	Outcome          Outcome `json:"outcome"`
}

// Percent returns completion as a fraction of batches in [0,1].
func (p Progress) Percent() float64 {
	if p.TotalBatches == 0 {
		if p.Phase == PhaseComplete {
			return 1.0
		}
		return 0
	}
	return float64(p.CompletedBatches) / float64(p.TotalBatches)
}
