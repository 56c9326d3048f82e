package mapper

import (
	"reflect"
	"testing"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
	"github.com/krwhynot/CRM-sub001/internal/csvio"
)

func header(cleaned string, samples ...string) csvio.HeaderCandidate {
	return csvio.HeaderCandidate{Raw: cleaned, Cleaned: cleaned, Samples: samples}
}

func TestMatch_ExactAlias(t *testing.T) {
	m := NewMatcher(catalog.Organization(), DefaultConfig())

	set := m.Match([]csvio.HeaderCandidate{
		header("Organizations", "Acme Corp", "Globex Inc", "Initech LLC"),
	})

	fm, ok := set.Mappings["Organizations"]
	if !ok {
		t.Fatal("no mapping for Organizations")
	}
	if fm.TargetField != "name" {
		t.Errorf("TargetField = %q, want %q", fm.TargetField, "name")
	}
	if fm.Confidence < 0.9 {
		t.Errorf("Confidence = %v, want >= 0.9", fm.Confidence)
	}
	if fm.Source != SourceExact {
		t.Errorf("Source = %q, want %q", fm.Source, SourceExact)
	}
}

func TestMatch_ContentBoost(t *testing.T) {
	m := NewMatcher(catalog.Organization(), DefaultConfig())

	set := m.Match([]csvio.HeaderCandidate{
		header("PRIORITY-FOCUS (A-D) A-highest", "A", "B", "C", "D"),
	})

	fm, ok := set.Mappings["PRIORITY-FOCUS (A-D) A-highest"]
	if !ok {
		t.Fatal("no mapping for priority header")
	}
	if fm.TargetField != "priority" {
		t.Errorf("TargetField = %q, want %q", fm.TargetField, "priority")
	}
	if fm.Confidence < 0.85 {
		t.Errorf("Confidence = %v, want >= 0.85 after content boost", fm.Confidence)
	}
	if fm.Source != SourceContent {
		t.Errorf("Source = %q, want %q", fm.Source, SourceContent)
	}
}

func TestMatch_TokenOverlapWithoutSamples(t *testing.T) {
	m := NewMatcher(catalog.Organization(), DefaultConfig())

	set := m.Match([]csvio.HeaderCandidate{header("Market Segment")})

	fm, ok := set.Mappings["Market Segment"]
	if !ok {
		t.Fatal("no mapping for Market Segment")
	}
	// "Market Segment" is also an exact alias; exact wins over token overlap.
	if fm.TargetField != "segment" || fm.Source != SourceExact {
		t.Errorf("got (%q, %q), want (segment, exact)", fm.TargetField, fm.Source)
	}
}

func TestMatch_UnresolvedBelowFloor(t *testing.T) {
	m := NewMatcher(catalog.Organization(), DefaultConfig())

	set := m.Match([]csvio.HeaderCandidate{header("Xyzzy Widget Count", "1", "2")})

	if len(set.Mappings) != 0 {
		t.Errorf("expected no mappings, got %v", set.Mappings)
	}
	if len(set.Unresolved) != 1 || set.Unresolved[0] != "Xyzzy Widget Count" {
		t.Errorf("Unresolved = %v, want [Xyzzy Widget Count]", set.Unresolved)
	}
}

func TestMatch_NoDefaultAssigned(t *testing.T) {
	m := NewMatcher(catalog.Organization(), DefaultConfig())

	// A header that weakly resembles several fields must not be forced onto
	// any of them.
	set := m.Match([]csvio.HeaderCandidate{header("Internal Reference")})
	if fm, ok := set.Mappings["Internal Reference"]; ok {
		t.Errorf("expected unresolved, got mapping to %q", fm.TargetField)
	}
}

func TestMatch_Deterministic(t *testing.T) {
	m := NewMatcher(catalog.Organization(), DefaultConfig())
	headers := []csvio.HeaderCandidate{
		header("Organizations", "Acme Corp", "Globex Inc"),
		header("PRIORITY-FOCUS (A-D) A-highest", "A", "B"),
		header("Customer Type", "customer", "vendor"),
		header("Zip", "94105", "10001"),
	}

	first := m.Match(headers)
	for i := 0; i < 20; i++ {
		if got := m.Match(headers); !reflect.DeepEqual(first, got) {
			t.Fatalf("Match() not deterministic on run %d:\nfirst: %#v\ngot:   %#v", i, first, got)
		}
	}
}

func TestMatch_RecordsAlternatives(t *testing.T) {
	m := NewMatcher(catalog.Organization(), DefaultConfig())

	// Both tokens hit different fields: "customer" is a name keyword and
	// "type" an organization_type keyword.
	set := m.Match([]csvio.HeaderCandidate{header("Customer Type")})

	fm, ok := set.Mappings["Customer Type"]
	if !ok {
		t.Fatal("no mapping for Customer Type")
	}
	if len(fm.Alternatives) == 0 {
		t.Fatal("expected at least one alternative candidate")
	}
	for _, alt := range fm.Alternatives {
		if alt.TargetField == fm.TargetField {
			t.Errorf("alternative duplicates the chosen field %q", fm.TargetField)
		}
		if alt.Confidence > fm.Confidence {
			t.Errorf("alternative confidence %v exceeds chosen %v", alt.Confidence, fm.Confidence)
		}
	}
}

func TestMergeReplacesWeakerProposal(t *testing.T) {
	set := MappingSet{Mappings: map[string]FieldMapping{
		"Region": {SourceHeader: "Region", TargetField: "state", Confidence: 0.6, Source: SourceToken},
	}}

	set.Merge(FieldMapping{
		SourceHeader: "Region",
		TargetField:  "segment",
		Confidence:   0.8,
		Source:       SourceEnhancer,
	})

	fm := set.Mappings["Region"]
	if fm.TargetField != "segment" || fm.Source != SourceEnhancer {
		t.Errorf("Merge kept (%q, %q), want enhancer proposal", fm.TargetField, fm.Source)
	}
	if len(fm.Alternatives) != 1 || fm.Alternatives[0].TargetField != "state" {
		t.Errorf("displaced proposal not kept as alternative: %v", fm.Alternatives)
	}
}

func TestMergeKeepsStrongerProposal(t *testing.T) {
	set := MappingSet{Mappings: map[string]FieldMapping{
		"Region": {SourceHeader: "Region", TargetField: "state", Confidence: 0.9, Source: SourceContent},
	}}

	set.Merge(FieldMapping{
		SourceHeader: "Region",
		TargetField:  "segment",
		Confidence:   0.7,
		Source:       SourceEnhancer,
	})

	if fm := set.Mappings["Region"]; fm.TargetField != "state" {
		t.Errorf("weaker proposal displaced the stronger one: %q", fm.TargetField)
	}
}

func TestMergeResolvesUnresolvedHeader(t *testing.T) {
	set := MappingSet{
		Mappings:   map[string]FieldMapping{},
		Unresolved: []string{"Mystery Column"},
	}

	set.Merge(FieldMapping{
		SourceHeader: "Mystery Column",
		TargetField:  "notes",
		Confidence:   0.75,
		Source:       SourceEnhancer,
	})

	if len(set.Unresolved) != 0 {
		t.Errorf("Unresolved = %v, want empty", set.Unresolved)
	}
	if _, ok := set.Mappings["Mystery Column"]; !ok {
		t.Error("merged mapping missing")
	}
}

func TestHeaderTokens(t *testing.T) {
	got := headerTokens("PRIORITY-FOCUS (A-D) A-highest")
	want := []string{"priority", "focus", "highest"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("headerTokens = %v, want %v", got, want)
	}
}

func TestSampleMatchRatio(t *testing.T) {
	tests := []struct {
		pattern string
		samples []string
		want    float64
	}{
		{"priority_code", []string{"A", "b", "C", "D"}, 1.0},
		{"priority_code", []string{"A", "high", "C", "D"}, 0.75},
		{"email", []string{"a@b.com", "nope"}, 0.5},
		{"company_name", []string{"Acme Corp", "Globex Inc"}, 1.0},
		{"company_name", []string{"123456", "777"}, 0.0},
		{"no_such_rule", []string{"anything"}, 0.0},
		{"email", nil, 0.0},
	}

	for _, tt := range tests {
		if got := sampleMatchRatio(tt.pattern, tt.samples); got != tt.want {
			t.Errorf("sampleMatchRatio(%q, %v) = %v, want %v", tt.pattern, tt.samples, got, tt.want)
		}
	}
}

func TestNewMatcher_FillsUnsetThresholds(t *testing.T) {
	m := NewMatcher(catalog.Organization(), Config{CandidateFloor: 0.8})

	set := m.Match([]csvio.HeaderCandidate{
		header("Organizations"),
		header("Customer Type"),
	})

	// Exact alias hits keep the default confidence when only the floor is set.
	fm, ok := set.Mappings["Organizations"]
	if !ok {
		t.Fatal("no mapping for Organizations")
	}
	if fm.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", fm.Confidence)
	}

	// Without samples the token-overlap score stays at 0.7, under the floor.
	if _, ok := set.Mappings["Customer Type"]; ok {
		t.Error("Customer Type resolved despite the raised floor")
	}
	if len(set.Unresolved) != 1 || set.Unresolved[0] != "Customer Type" {
		t.Errorf("Unresolved = %v, want [Customer Type]", set.Unresolved)
	}
}
