package csvio

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode/utf8"
)

// Options control parsing limits and header detection.
type Options struct {
	// MaxBytes rejects oversized input outright. Zero means no cap.
	MaxBytes int64

	// HeaderScanRows is how many leading rows to consider as header
	// candidates.
	HeaderScanRows int

	// SampleValues is how many non-empty body values to collect per column.
	SampleValues int
}

// DefaultOptions match the standard import limits: 5MB files, header within
// the first 10 rows, 5 sample values per column.
func DefaultOptions() Options {
	return Options{
		MaxBytes:       5 * 1024 * 1024,
		HeaderScanRows: 10,
		SampleValues:   5,
	}
}

// Parse decodes a delimited file, locates its header row, and returns the
// headers plus the body as RawRecords. It returns a *ParseError for fatal
// input problems.
func Parse(data []byte, opts Options) (*File, error) {
	if opts.HeaderScanRows <= 0 {
		opts.HeaderScanRows = DefaultOptions().HeaderScanRows
	}
	if opts.SampleValues <= 0 {
		opts.SampleValues = DefaultOptions().SampleValues
	}
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return nil, parseErrorf("file exceeds %d byte limit", opts.MaxBytes)
	}
	if len(data) == 0 {
		return nil, parseErrorf("empty file")
	}

	data = stripBOM(data)
	data = sanitizeUTF8(data)

	rows, err := readAll(data)
	if err != nil {
		return nil, parseErrorf("read csv: %v", err)
	}
	if len(rows) == 0 {
		return nil, parseErrorf("no rows found")
	}

	headerIdx, ok := DetectHeaderRow(rows, opts.HeaderScanRows)
	if !ok {
		return nil, parseErrorf("no header row found in first %d rows", opts.HeaderScanRows)
	}

	headerRow := rows[headerIdx]
	headers := make([]HeaderCandidate, len(headerRow))
	for i, h := range headerRow {
		headers[i] = HeaderCandidate{
			Raw:     h,
			Cleaned: NormalizeHeader(h),
			Column:  i,
		}
	}

	records := parseBody(rows[headerIdx+1:], headerIdx)
	collectSamples(headers, records, opts.SampleValues)

	return &File{
		Headers:    headers,
		HeaderLine: headerIdx + 1,
		Records:    records,
	}, nil
}

// readAll parses RFC-4180-style content with lax quoting and ragged rows,
// which covers most real-world exports.
func readAll(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// DetectHeaderRow scans the first scanRows rows and scores each by the number
// of cells that look like column labels. The max-scoring row wins; ties go to
// the earliest. Returns false when no candidate has a usable cell.
func DetectHeaderRow(rows [][]string, scanRows int) (int, bool) {
	if scanRows > len(rows) {
		scanRows = len(rows)
	}

	best, bestScore := -1, 0
	for i := 0; i < scanRows; i++ {
		score := headerScore(rows[i])
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, best >= 0
}

func headerScore(row []string) int {
	score := 0
	for _, cell := range row {
		c := CleanCell(cell)
		if c == "" || looksFormulaic(cell) || looksInstructional(c) {
			continue
		}
		score++
	}
	return score
}

// looksFormulaic flags raw cells that carry spreadsheet formulas rather than
// labels.
func looksFormulaic(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "=") && !strings.HasPrefix(raw, "=\"")
}

// looksInstructional flags banner/instruction text that sometimes precedes
// the real header in hand-built exports.
func looksInstructional(cleaned string) bool {
	if utf8.RuneCountInString(cleaned) > 60 {
		return true
	}
	lower := strings.ToLower(cleaned)
	for _, prefix := range []string{"please ", "instructions", "note:", "fill in", "do not "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// NormalizeHeader trims and collapses internal whitespace, preserving case.
func NormalizeHeader(h string) string {
	return strings.Join(strings.Fields(CleanCell(h)), " ")
}

// CleanCell removes common CSV artifacts from a cell value: surrounding
// whitespace, the Excel formula prefix (="..."), and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// parseBody converts rows after the header into RawRecords, skipping fully
// empty rows. headerIdx is the zero-based row index of the header.
func parseBody(rows [][]string, headerIdx int) []RawRecord {
	records := make([]RawRecord, 0, len(rows))
	for i, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = CleanCell(cell)
		}
		records = append(records, RawRecord{
			Cells: cells,
			Index: len(records),
			Line:  headerIdx + i + 2, // one-based, after the header row
		})
	}
	return records
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func collectSamples(headers []HeaderCandidate, records []RawRecord, n int) {
	for i := range headers {
		col := headers[i].Column
		for _, rec := range records {
			if len(headers[i].Samples) >= n {
				break
			}
			if v := rec.Cell(col); v != "" {
				headers[i].Samples = append(headers[i].Samples, v)
			}
		}
	}
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

// sanitizeUTF8 replaces invalid byte sequences with the replacement rune so
// the rest of the pipeline can assume valid UTF-8.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}
	return buf.Bytes()
}
