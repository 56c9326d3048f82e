// Package csvio locates the header row in messy delimited exports and yields
// clean raw records for the mapping pipeline. It makes no assumptions about
// column meaning; downstream code keys off the confirmed mapping set.
package csvio

import "fmt"

// RawRecord is one data row from the source file. Cells are in source column
// order and are never mutated after parsing.
type RawRecord struct {
	// Cells holds the cleaned cell values. Missing trailing columns read as "".
	Cells []string

	// Index is the zero-based position among data rows (header excluded,
	// fully empty rows skipped).
	Index int

	// Line is the one-based line number in the source file, for reports.
	Line int
}

// Cell returns the cell at column i, or "" when the row is short.
func (r RawRecord) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// HeaderCandidate is one source column header with sample values drawn from
// the body, used for confidence scoring.
type HeaderCandidate struct {
	Raw     string
	Cleaned string
	Column  int

	// Samples holds the first N non-empty body values for this column.
	Samples []string
}

// File is a fully parsed source file.
type File struct {
	Headers    []HeaderCandidate
	HeaderLine int // one-based line number of the detected header row
	Records    []RawRecord
}

// ParseError is a fatal input problem: the file cannot be decoded, is empty,
// or contains no usable header row. Nothing is written when it occurs.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse: " + e.Reason }

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}
