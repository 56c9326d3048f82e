package transform

import (
	"reflect"
	"strings"
	"testing"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
	"github.com/krwhynot/CRM-sub001/internal/csvio"
	"github.com/krwhynot/CRM-sub001/internal/mapper"
)

func confirmed(pairs ...string) map[string]mapper.FieldMapping {
	out := make(map[string]mapper.FieldMapping, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out[pairs[i]] = mapper.FieldMapping{
			SourceHeader: pairs[i],
			TargetField:  pairs[i+1],
			Confidence:   1.0,
			Source:       mapper.SourceHuman,
		}
	}
	return out
}

func candidates(names ...string) []csvio.HeaderCandidate {
	out := make([]csvio.HeaderCandidate, len(names))
	for i, n := range names {
		out[i] = csvio.HeaderCandidate{Raw: n, Cleaned: n, Column: i}
	}
	return out
}

func rawRecord(cells ...string) csvio.RawRecord {
	return csvio.RawRecord{Index: 1, Line: 2, Cells: cells}
}

func TestApply(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name", "Type", "organization_type", "Pri", "priority", "St", "state"),
		candidates("Company", "Type", "Pri", "St"))

	rec := tr.Apply(rawRecord("Acme Corp", "Client", "High", "California"))

	if !rec.Valid() {
		t.Fatalf("record invalid: %v", rec.Errors)
	}
	want := map[string]string{
		"name":              "Acme Corp",
		"organization_type": "customer",
		"priority":          "A",
		"state":             "CA",
	}
	if !reflect.DeepEqual(rec.Values, want) {
		t.Errorf("Values = %v, want %v", rec.Values, want)
	}
}

func TestApply_MissingRequiredName(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name", "City", "city"),
		candidates("Company", "City"))

	rec := tr.Apply(rawRecord("", "Chicago"))

	if rec.Valid() {
		t.Fatal("record with empty name should be invalid")
	}
	if rec.Values != nil {
		t.Errorf("invalid record kept Values: %v", rec.Values)
	}
	found := false
	for _, e := range rec.Errors {
		if strings.Contains(e, "required field missing") && strings.Contains(e, "name") {
			found = true
		}
	}
	if !found {
		t.Errorf("Errors = %v, want a required-field-missing entry for name", rec.Errors)
	}
}

func TestApply_DefaultsOrganizationType(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name"),
		candidates("Company"))

	rec := tr.Apply(rawRecord("Acme Corp"))

	if !rec.Valid() {
		t.Fatalf("record invalid: %v", rec.Errors)
	}
	if got := rec.Values["organization_type"]; got != "prospect" {
		t.Errorf("organization_type = %q, want default %q", got, "prospect")
	}
}

func TestApply_InvalidOptionalEnumDropsField(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name", "Pri", "priority"),
		candidates("Company", "Pri"))

	rec := tr.Apply(rawRecord("Acme Corp", "urgent-ish"))

	if !rec.Valid() {
		t.Fatalf("optional field failure must not invalidate the row: %v", rec.Errors)
	}
	if _, ok := rec.Values["priority"]; ok {
		t.Errorf("invalid priority value kept: %v", rec.Values)
	}
	if rec.Values["name"] != "Acme Corp" {
		t.Errorf("name = %q", rec.Values["name"])
	}
}

func TestApply_EnumCaseFolding(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name", "Type", "organization_type"),
		candidates("Company", "Type"))

	rec := tr.Apply(rawRecord("Acme Corp", "VENDOR"))

	if got := rec.Values["organization_type"]; got != "vendor" {
		t.Errorf("organization_type = %q, want %q", got, "vendor")
	}
}

func TestApply_OverlongOptionalDropped(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name", "St", "state"),
		candidates("Company", "St"))

	// "Zzz" passes through the state normalizer untouched and then fails the
	// two-character length cap.
	rec := tr.Apply(rawRecord("Acme Corp", "Zzz"))

	if !rec.Valid() {
		t.Fatalf("record invalid: %v", rec.Errors)
	}
	if _, ok := rec.Values["state"]; ok {
		t.Errorf("overlong state kept: %v", rec.Values)
	}
}

func TestApply_OverlongRequiredInvalidates(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name"),
		candidates("Company"))

	rec := tr.Apply(rawRecord(strings.Repeat("x", 300)))

	if rec.Valid() {
		t.Fatal("overlong required name should invalidate the row")
	}
}

func TestApply_PhoneNormalization(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name", "Phone", "phone"),
		candidates("Company", "Phone"))

	rec := tr.Apply(rawRecord("Acme Corp", "(312) 555-0142"))

	if got := rec.Values["phone"]; got != "3125550142" {
		t.Errorf("phone = %q, want %q", got, "3125550142")
	}
}

func TestApply_ShortRowTreatedAsEmptyCells(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name", "City", "city"),
		candidates("Company", "City"))

	rec := tr.Apply(rawRecord("Acme Corp"))

	if !rec.Valid() {
		t.Fatalf("record invalid: %v", rec.Errors)
	}
	if _, ok := rec.Values["city"]; ok {
		t.Errorf("missing cell produced a city value: %v", rec.Values)
	}
}

func TestNew_LeftmostColumnWinsPerField(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Name A", "name", "Name B", "name"),
		candidates("Name A", "Name B"))

	rec := tr.Apply(rawRecord("First Co", "Second Co"))
	if got := rec.Values["name"]; got != "First Co" {
		t.Errorf("name = %q, want leftmost column value", got)
	}
}

func TestMappedFields(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name", "City", "city"),
		candidates("Company", "City"))

	got := tr.MappedFields()
	// organization_type appears because its default always fills it.
	want := []string{"name", "organization_type", "city"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MappedFields = %v, want %v", got, want)
	}
}

func TestCoerce_NumericAndBool(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
entity = "deal"

[[fields]]
name = "title"
type = "text"
required = true

[[fields]]
name = "amount"
type = "numeric"

[[fields]]
name = "active"
type = "bool"
`))
	if err != nil {
		t.Fatal(err)
	}

	tr := New(cat,
		confirmed("Title", "title", "Amount", "amount", "Active", "active"),
		candidates("Title", "Amount", "Active"))

	rec := tr.Apply(rawRecord("Big Deal", "$1,234.50", "Yes"))
	if !rec.Valid() {
		t.Fatalf("record invalid: %v", rec.Errors)
	}
	if got := rec.Values["amount"]; got != "1234.50" {
		t.Errorf("amount = %q, want %q", got, "1234.50")
	}
	if got := rec.Values["active"]; got != "true" {
		t.Errorf("active = %q, want %q", got, "true")
	}

	rec = tr.Apply(rawRecord("Big Deal", "lots", "maybe"))
	if !rec.Valid() {
		t.Fatalf("optional coercion failures must not invalidate: %v", rec.Errors)
	}
	if _, ok := rec.Values["amount"]; ok {
		t.Error("non-numeric amount kept")
	}
	if _, ok := rec.Values["active"]; ok {
		t.Error("non-boolean active kept")
	}
}

func TestNormalizers(t *testing.T) {
	tests := []struct {
		fn   func(string) string
		in   string
		want string
	}{
		{normalizeUsState, "California", "CA"},
		{normalizeUsState, "ca", "CA"},
		{normalizeUsState, "TX", "TX"},
		{normalizeUsState, "Bavaria", "Bavaria"},
		{normalizePriority, "A-highest", "A"},
		{normalizePriority, "b (medium)", "B"},
		{normalizePriority, "High", "A"},
		{normalizePriority, "lowest", "D"},
		{normalizePriority, "urgent", "urgent"},
		{normalizeOrgType, "Client", "customer"},
		{normalizeOrgType, "SUPPLIER", "vendor"},
		{normalizeOrgType, "Prospect", "prospect"},
		{normalizePhone, "(312) 555-0142", "3125550142"},
		{normalizePhone, "+1 415 555 0199", "+14155550199"},
		{normalizePhone, "x123", "x123"},
	}

	for _, tt := range tests {
		if got := tt.fn(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApply_RequiredCoercionFailureReportedOnce(t *testing.T) {
	tr := New(catalog.Organization(),
		confirmed("Company", "name"),
		candidates("Company"))

	rec := tr.Apply(rawRecord(strings.Repeat("x", 300)))

	if rec.Valid() {
		t.Fatal("rejected required name should invalidate the row")
	}
	// One error for the rejected cell, not a second missing-field entry.
	if len(rec.Errors) != 1 {
		t.Fatalf("Errors = %v, want a single entry", rec.Errors)
	}
	if !strings.Contains(rec.Errors[0], "name") {
		t.Errorf("Errors[0] = %q, want it to name the field", rec.Errors[0])
	}
}
