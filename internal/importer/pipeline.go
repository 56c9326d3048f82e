package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/krwhynot/CRM-sub001/internal/store"
	"github.com/krwhynot/CRM-sub001/internal/transform"
)

// process runs the write phase: transform every row, then write valid rows
// in fixed-size batches, strictly in order, pausing between batches.
// Cancellation is honoured only at batch boundaries.
func (s *Service) process(ctx context.Context, r *run) {
	start := time.Now()
	defer func() {
		s.limiter.release()
		close(r.Done)
		r.notifyProgress()
		r.closeListeners()
		if r.Cancel != nil {
			r.Cancel()
		}
		s.cleanup(r.ID, s.cfg.Retention)
	}()

	t := transform.New(s.cat, r.gate.Confirmed(), r.file.Headers)

	var valid []transform.Record
	var rowErrors []RowError
	for _, rec := range r.file.Records {
		tr := t.Apply(rec)
		if !tr.Valid() {
			for _, reason := range tr.Errors {
				rowErrors = append(rowErrors, RowError{
					RowIndex: tr.RowIndex,
					Line:     tr.Line,
					Values:   tr.Raw,
					Reason:   reason,
				})
			}
			continue
		}
		valid = append(valid, tr)
	}

	batches := partition(valid, s.cfg.BatchSize)

	r.stateMu.Lock()
	r.Progress.TotalBatches = len(batches)
	r.Progress.Outcome.ValidRows = len(valid)
	r.Progress.Outcome.RowErrors = rowErrors
	r.stateMu.Unlock()
	r.notifyProgress()

	fatal := false
	cancelled := false
	var fatalErr error

	for i, batch := range batches {
		if i > 0 {
			// Inter-batch pause yields control without starting early.
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.BatchPause):
			}
		}
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		result := s.writeBatch(ctx, i, batch)
		if result.err != nil {
			if ctx.Err() != nil {
				// The run context ended while the write was in flight. The
				// store itself is fine; this is a stop, not store loss.
				cancelled = true
			} else {
				fatal = true
				fatalErr = result.err
			}
		}

		r.stateMu.Lock()
		r.Progress.Outcome.addBatch(result.BatchResult)
		r.Progress.CompletedBatches = i + 1
		r.stateMu.Unlock()
		r.notifyProgress()

		if fatal || cancelled {
			break
		}
	}

	r.stateMu.Lock()
	out := &r.Progress.Outcome
	out.Elapsed = time.Since(start)
	switch {
	case fatal:
		r.Progress.Phase = PhaseFailed
		out.Status = StatusFailed
		out.Error = fatalErr.Error()
	case cancelled:
		r.Progress.Phase = PhaseCancelled
		out.Status = StatusPartiallyCompleted
	case out.Skipped > 0:
		// Pre-write exclusions show up in RowErrors and the counts; only
		// batch-level skips downgrade the status.
		r.Progress.Phase = PhaseComplete
		out.Status = StatusPartiallyCompleted
	default:
		r.Progress.Phase = PhaseComplete
		out.Status = StatusCompleted
	}
	final := *out
	r.stateMu.Unlock()

	s.logger.Info("import finished",
		"import_id", r.ID,
		"status", string(final.Status),
		"inserted", final.Inserted,
		"updated", final.Updated,
		"skipped", final.Skipped,
		"elapsed", final.Elapsed,
	)
}

type batchOutcome struct {
	BatchResult

	// err is set only when the store itself became unusable; the run turns
	// Failed and later batches are not attempted.
	err error
}

// writeBatch writes one batch and maps per-row results into counts. A
// whole-batch store error marks every row skipped; the run continues unless
// the store is unavailable.
func (s *Service) writeBatch(ctx context.Context, index int, batch []transform.Record) batchOutcome {
	out := batchOutcome{BatchResult: BatchResult{
		BatchIndex: index,
		Attempted:  len(batch),
	}}

	rows := make([]map[string]string, len(batch))
	for i, rec := range batch {
		rows[i] = rec.Values
	}

	results, err := s.store.WriteBatch(ctx, rows)
	if err != nil {
		out.Skipped = len(batch)
		reason := fmt.Sprintf("batch write failed: %v", err)
		for _, rec := range batch {
			out.Errors = append(out.Errors, RowError{
				RowIndex: rec.RowIndex,
				Line:     rec.Line,
				Values:   rec.Raw,
				Reason:   reason,
			})
		}
		if store.IsUnavailable(err) {
			out.err = err
		} else {
			s.logger.Warn("batch skipped", "batch", index, "error", err)
		}
		return out
	}

	for i, res := range results {
		switch {
		case res.Err != nil:
			out.Skipped++
			out.Errors = append(out.Errors, RowError{
				RowIndex: batch[i].RowIndex,
				Line:     batch[i].Line,
				Values:   batch[i].Raw,
				Reason:   res.Err.Error(),
			})
		case res.Inserted:
			out.Inserted++
		default:
			out.Updated++
		}
	}
	return out
}

// partition splits records into fixed-size chunks, preserving order.
func partition(records []transform.Record, size int) [][]transform.Record {
	if len(records) == 0 {
		return nil
	}
	var out [][]transform.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

// ErrorReportCSV renders the excluded-row report as a CSV download: one line
// per error with the row position, reason, and original cell values.
func (s *Service) ErrorReportCSV(importID string) ([]byte, error) {
	r, err := s.get(importID)
	if err != nil {
		return nil, err
	}

	r.stateMu.Lock()
	rowErrors := append([]RowError(nil), r.Progress.Outcome.RowErrors...)
	r.stateMu.Unlock()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"line", "row", "reason", "original_values"}); err != nil {
		return nil, err
	}
	for _, re := range rowErrors {
		record := []string{
			fmt.Sprintf("%d", re.Line),
			fmt.Sprintf("%d", re.RowIndex),
			re.Reason,
		}
		record = append(record, re.Values...)
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
