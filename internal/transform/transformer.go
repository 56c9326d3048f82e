// Package transform projects raw rows through a confirmed mapping set into
// validated field values. Transformation is a pure function of the row, the
// mapping, and the catalogue; it never touches the store.
package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
	"github.com/krwhynot/CRM-sub001/internal/csvio"
	"github.com/krwhynot/CRM-sub001/internal/mapper"
)

// Record is one transformed row. Values holds normalized field values keyed
// by target field name; Errors lists validation failures that excluded fields
// or the whole row.
type Record struct {
	Values   map[string]string
	RowIndex int
	Line     int

	// Raw preserves the originating cell values for error reports.
	Raw []string

	Errors []string
}

// Valid reports whether the row may be written.
func (r Record) Valid() bool { return len(r.Errors) == 0 }

type binding struct {
	field  catalog.Field
	column int
}

// Transformer applies one confirmed mapping set to raw rows.
type Transformer struct {
	cat      *catalog.Catalog
	bindings []binding
}

// New builds a transformer from confirmed mappings. When several confirmed
// headers target the same field, the leftmost source column wins.
func New(cat *catalog.Catalog, confirmed map[string]mapper.FieldMapping, headers []csvio.HeaderCandidate) *Transformer {
	columnOf := make(map[string]int, len(headers))
	for _, h := range headers {
		columnOf[h.Cleaned] = h.Column
	}

	chosen := make(map[string]int)
	for header, fm := range confirmed {
		col, ok := columnOf[header]
		if !ok {
			continue
		}
		if prev, dup := chosen[fm.TargetField]; !dup || col < prev {
			chosen[fm.TargetField] = col
		}
	}

	t := &Transformer{cat: cat}
	for _, f := range cat.Fields {
		if col, ok := chosen[f.Name]; ok {
			t.bindings = append(t.bindings, binding{field: f, column: col})
		}
	}
	return t
}

// MappedFields returns the target field names this transformer populates from
// source columns, in catalogue order. Defaulted fields are included.
func (t *Transformer) MappedFields() []string {
	seen := make(map[string]bool, len(t.bindings))
	for _, b := range t.bindings {
		seen[b.field.Name] = true
	}
	var out []string
	for _, f := range t.cat.Fields {
		if seen[f.Name] || f.DefaultValue != "" {
			out = append(out, f.Name)
		}
	}
	return out
}

// Apply transforms one raw row. The returned record is invalid when any
// required field fails coercion or is missing; optional field failures only
// drop that field.
func (t *Transformer) Apply(rec csvio.RawRecord) Record {
	out := Record{
		Values:   make(map[string]string, len(t.bindings)),
		RowIndex: rec.Index,
		Line:     rec.Line,
		Raw:      rec.Cells,
	}

	// failed records required fields whose cell was present but rejected, so
	// the missing-field check below does not report them a second time.
	failed := make(map[string]bool)
	for _, b := range t.bindings {
		value, err := coerce(b.field, rec.Cell(b.column))
		if err != nil {
			if b.field.Required {
				failed[b.field.Name] = true
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", b.field.Name, err))
			}
			continue
		}
		if value != "" {
			out.Values[b.field.Name] = value
		}
	}

	for _, f := range t.cat.Fields {
		if out.Values[f.Name] == "" && f.DefaultValue != "" {
			out.Values[f.Name] = f.DefaultValue
		}
	}

	for _, f := range t.cat.Required() {
		if out.Values[f.Name] == "" && !failed[f.Name] {
			out.Errors = append(out.Errors, fmt.Sprintf("required field missing: %s", f.Name))
		}
	}

	if !out.Valid() {
		out.Values = nil
	}
	return out
}

// coerce normalizes and validates a single cell against its field definition.
// An empty result with nil error means "no value" (optional fields only).
func coerce(f catalog.Field, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", nil
	}

	if fn, ok := normalizers[f.Normalizer]; ok {
		v = fn(v)
	}

	switch f.Type {
	case catalog.FieldEnum:
		canonical, ok := foldEnum(v, f.EnumValues)
		if !ok {
			return "", fmt.Errorf("value %q is not one of %s", v, strings.Join(f.EnumValues, "/"))
		}
		v = canonical
	case catalog.FieldNumeric:
		cleaned := strings.ReplaceAll(strings.TrimPrefix(v, "$"), ",", "")
		if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
			return "", fmt.Errorf("value %q is not numeric", v)
		}
		v = cleaned
	case catalog.FieldBool:
		b, ok := foldBool(v)
		if !ok {
			return "", fmt.Errorf("value %q is not a yes/no value", v)
		}
		v = b
	}

	if f.MaxLength > 0 && len(v) > f.MaxLength {
		return "", fmt.Errorf("value exceeds maximum length %d", f.MaxLength)
	}
	return v, nil
}

// foldEnum matches a value against the canonical enum list, ignoring case.
func foldEnum(v string, values []string) (string, bool) {
	for _, canonical := range values {
		if strings.EqualFold(v, canonical) {
			return canonical, true
		}
	}
	return "", false
}

func foldBool(v string) (string, bool) {
	switch strings.ToLower(v) {
	case "true", "t", "yes", "y", "1":
		return "true", true
	case "false", "f", "no", "n", "0":
		return "false", true
	}
	return "", false
}
