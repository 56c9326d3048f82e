// Package mapper matches unknown source headers to catalogue fields with
// confidence scoring, and runs the human review gate over the proposals.
package mapper

import (
	"fmt"
	"strings"
)

// Source identifies where a mapping proposal came from.
type Source string

const (
	SourceExact    Source = "exact"    // alias dictionary hit
	SourceContent  Source = "content"  // token overlap boosted by sample shape
	SourceToken    Source = "token"    // keyword token overlap only
	SourceEnhancer Source = "enhancer" // external mapping service
	SourceHuman    Source = "human"    // explicit user choice
)

// passPriority orders tie-breaking between equal-confidence candidates:
// exact beats content-validated beats token-overlap.
func passPriority(s Source) int {
	switch s {
	case SourceHuman:
		return 4
	case SourceExact:
		return 3
	case SourceContent:
		return 2
	case SourceToken:
		return 1
	default:
		return 0
	}
}

// Alternative is a runner-up candidate kept for the review UI.
type Alternative struct {
	TargetField string  `json:"targetField"`
	Confidence  float64 `json:"confidence"`
}

// FieldMapping is the proposed (or confirmed) mapping for one source header.
type FieldMapping struct {
	SourceHeader string        `json:"sourceHeader"`
	TargetField  string        `json:"targetField"`
	Confidence   float64       `json:"confidence"`
	Rationale    string        `json:"rationale"`
	Source       Source        `json:"source"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// MappingSet holds one FieldMapping per source header plus the headers that
// produced no candidate above the floor.
type MappingSet struct {
	Mappings   map[string]FieldMapping `json:"mappings"`
	Unresolved []string                `json:"unresolved"`
}

// Merge replaces the mapping for a header when the incoming proposal is
// stronger, moving the header out of the unresolved set if needed. Human
// proposals always win.
func (s *MappingSet) Merge(fm FieldMapping) {
	existing, ok := s.Mappings[fm.SourceHeader]
	if ok && fm.Source != SourceHuman && fm.Confidence <= existing.Confidence {
		return
	}
	if ok {
		// Keep the displaced proposal visible as an alternative.
		fm.Alternatives = append(fm.Alternatives, Alternative{
			TargetField: existing.TargetField,
			Confidence:  existing.Confidence,
		})
	}
	s.Mappings[fm.SourceHeader] = fm

	for i, h := range s.Unresolved {
		if h == fm.SourceHeader {
			s.Unresolved = append(s.Unresolved[:i], s.Unresolved[i+1:]...)
			break
		}
	}
}

// MissingRequiredError reports required catalogue fields with no confirmed
// mapping. It is fatal: the pipeline never writes while it holds.
type MissingRequiredError struct {
	Fields []string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("required fields have no confirmed mapping: %s", strings.Join(e.Fields, ", "))
}
