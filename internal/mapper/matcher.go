package mapper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
	"github.com/krwhynot/CRM-sub001/internal/csvio"
)

// Config holds the matcher thresholds. All values are design parameters, not
// constants; see config.MapperConfig for the environment bindings.
type Config struct {
	// CandidateFloor is the minimum confidence for a proposal. Headers with
	// no candidate at or above it stay unresolved.
	CandidateFloor float64

	// ExactConfidence is assigned to alias dictionary hits.
	ExactConfidence float64

	// TokenFloor and TokenCeil bound the token-overlap score range.
	TokenFloor float64
	TokenCeil  float64

	// ContentBoostMin/Max bound the sample-shape confidence boost.
	ContentBoostMin float64
	ContentBoostMax float64

	// SampleMatchRatio is the fraction of samples that must match a field's
	// shape rule before the boost applies.
	SampleMatchRatio float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		CandidateFloor:   0.5,
		ExactConfidence:  0.95,
		TokenFloor:       0.5,
		TokenCeil:        0.9,
		ContentBoostMin:  0.10,
		ContentBoostMax:  0.15,
		SampleMatchRatio: 0.6,
	}
}

// Matcher scores source headers against a field catalogue. It is pure and
// deterministic: identical headers, samples, and catalogue always produce an
// identical MappingSet.
type Matcher struct {
	cat *catalog.Catalog
	cfg Config
}

// NewMatcher creates a Matcher for the given catalogue. Unset thresholds in
// cfg fall back to their DefaultConfig values.
func NewMatcher(cat *catalog.Catalog, cfg Config) *Matcher {
	def := DefaultConfig()
	if cfg.CandidateFloor <= 0 {
		cfg.CandidateFloor = def.CandidateFloor
	}
	if cfg.ExactConfidence <= 0 {
		cfg.ExactConfidence = def.ExactConfidence
	}
	if cfg.TokenFloor <= 0 {
		cfg.TokenFloor = def.TokenFloor
	}
	if cfg.TokenCeil <= 0 {
		cfg.TokenCeil = def.TokenCeil
	}
	if cfg.ContentBoostMin <= 0 {
		cfg.ContentBoostMin = def.ContentBoostMin
	}
	if cfg.ContentBoostMax <= 0 {
		cfg.ContentBoostMax = def.ContentBoostMax
	}
	if cfg.SampleMatchRatio <= 0 {
		cfg.SampleMatchRatio = def.SampleMatchRatio
	}
	return &Matcher{cat: cat, cfg: cfg}
}

// Match proposes one FieldMapping per header. Headers with no candidate at
// or above the floor are listed as unresolved.
func (m *Matcher) Match(headers []csvio.HeaderCandidate) MappingSet {
	set := MappingSet{Mappings: make(map[string]FieldMapping, len(headers))}

	for _, h := range headers {
		if h.Cleaned == "" {
			continue
		}
		candidates := m.score(h)
		if len(candidates) == 0 || candidates[0].Confidence < m.cfg.CandidateFloor {
			set.Unresolved = append(set.Unresolved, h.Cleaned)
			continue
		}

		best := candidates[0]
		fm := FieldMapping{
			SourceHeader: h.Cleaned,
			TargetField:  best.field,
			Confidence:   best.Confidence,
			Rationale:    best.rationale,
			Source:       best.source,
		}
		for _, alt := range candidates[1:] {
			if alt.Confidence < m.cfg.CandidateFloor {
				break
			}
			fm.Alternatives = append(fm.Alternatives, Alternative{
				TargetField: alt.field,
				Confidence:  alt.Confidence,
			})
		}
		set.Mappings[h.Cleaned] = fm
	}

	return set
}

type candidate struct {
	field      string
	Confidence float64
	source     Source
	rationale  string
}

// score runs the three matching passes for one header and returns candidates
// sorted best-first. Ordering is total: confidence, then pass priority, then
// field name, so output never depends on map iteration order.
func (m *Matcher) score(h csvio.HeaderCandidate) []candidate {
	byField := make(map[string]candidate)

	// Pass 1: exact alias lookup.
	if field, ok := m.cat.FieldByAlias(h.Cleaned); ok {
		byField[field] = candidate{
			field:      field,
			Confidence: m.cfg.ExactConfidence,
			source:     SourceExact,
			rationale:  fmt.Sprintf("header matches alias for %q", field),
		}
	}

	// Pass 2: keyword token overlap.
	tokens := headerTokens(h.Cleaned)
	if len(tokens) > 0 {
		for _, f := range m.cat.Fields {
			if len(f.Keywords) == 0 {
				continue
			}
			matched := overlap(tokens, f.Keywords)
			if matched == 0 {
				continue
			}
			ratio := float64(matched) / float64(len(tokens))
			conf := m.cfg.TokenFloor + (m.cfg.TokenCeil-m.cfg.TokenFloor)*ratio
			if prev, ok := byField[f.Name]; ok && prev.Confidence >= conf {
				continue
			}
			byField[f.Name] = candidate{
				field:      f.Name,
				Confidence: conf,
				source:     SourceToken,
				rationale:  fmt.Sprintf("%d of %d header tokens match %q keywords", matched, len(tokens), f.Name),
			}
		}
	}

	// Pass 3: content validation boost for candidates whose field declares a
	// sample-shape rule.
	if len(h.Samples) > 0 {
		for name, c := range byField {
			f, ok := m.cat.Get(name)
			if !ok || f.Pattern == "" {
				continue
			}
			ratio := sampleMatchRatio(f.Pattern, h.Samples)
			if ratio < m.cfg.SampleMatchRatio {
				continue
			}
			boost := m.cfg.ContentBoostMin +
				(m.cfg.ContentBoostMax-m.cfg.ContentBoostMin)*(ratio-m.cfg.SampleMatchRatio)/(1-m.cfg.SampleMatchRatio)
			c.Confidence = clamp(c.Confidence + boost)
			if c.source == SourceToken {
				c.source = SourceContent
			}
			c.rationale += fmt.Sprintf("; %.0f%% of samples match %q shape", ratio*100, f.Pattern)
			byField[name] = c
		}
	}

	out := make([]candidate, 0, len(byField))
	for _, c := range byField {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		pi, pj := passPriority(out[i].source), passPriority(out[j].source)
		if pi != pj {
			return pi > pj
		}
		return out[i].field < out[j].field
	})
	return out
}

// headerTokens splits a header into lowercase tokens, dropping single
// characters (grade letters, list markers) that carry no signal.
func headerTokens(header string) []string {
	fields := strings.FieldsFunc(strings.ToLower(header), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// overlap counts header tokens that match a keyword, tolerating trailing
// plural "s" in either direction.
func overlap(tokens, keywords []string) int {
	matched := 0
	for _, t := range tokens {
		for _, k := range keywords {
			if t == k || t == k+"s" || k == t+"s" {
				matched++
				break
			}
		}
	}
	return matched
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}
