package mapper

import (
	"fmt"
	"sort"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
)

// State is the review position of one source header.
type State string

const (
	StateUnresolved State = "unresolved"
	StateSuggested  State = "suggested"
	StateConfirmed  State = "confirmed"
	StateRejected   State = "rejected"
)

// HeaderReview is the gate's view of one source header.
type HeaderReview struct {
	Header  string        `json:"header"`
	State   State         `json:"state"`
	Mapping *FieldMapping `json:"mapping,omitempty"`
}

// ReviewGate is the human confirmation checkpoint over a MappingSet. Each
// header moves Unresolved → Suggested → Confirmed or Rejected; writes are
// blocked until every required catalogue field has a confirmed mapping.
type ReviewGate struct {
	cat        *catalog.Catalog
	autoAccept float64
	reviews    map[string]*HeaderReview
	order      []string
}

// NewReviewGate seeds the gate from a mapping set. Proposals at or above the
// autoAccept threshold are confirmed immediately; everything else waits for
// an explicit decision.
func NewReviewGate(cat *catalog.Catalog, autoAccept float64, set MappingSet) *ReviewGate {
	g := &ReviewGate{
		cat:        cat,
		autoAccept: autoAccept,
		reviews:    make(map[string]*HeaderReview, len(set.Mappings)+len(set.Unresolved)),
	}

	for _, h := range set.Unresolved {
		g.add(&HeaderReview{Header: h, State: StateUnresolved})
	}
	// Deterministic seeding order for stable review listings.
	headers := make([]string, 0, len(set.Mappings))
	for h := range set.Mappings {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	for _, h := range headers {
		fm := set.Mappings[h]
		r := &HeaderReview{Header: h, State: StateSuggested, Mapping: &fm}
		if fm.Confidence >= g.autoAccept {
			r.State = StateConfirmed
		}
		g.add(r)
	}
	return g
}

func (g *ReviewGate) add(r *HeaderReview) {
	g.reviews[r.Header] = r
	g.order = append(g.order, r.Header)
}

func (g *ReviewGate) get(header string) (*HeaderReview, error) {
	r, ok := g.reviews[header]
	if !ok {
		return nil, fmt.Errorf("unknown header %q", header)
	}
	return r, nil
}

// Confirm accepts the current suggestion for a header.
func (g *ReviewGate) Confirm(header string) error {
	r, err := g.get(header)
	if err != nil {
		return err
	}
	if r.State != StateSuggested && r.State != StateConfirmed {
		return fmt.Errorf("header %q has no suggestion to confirm", header)
	}
	r.State = StateConfirmed
	return nil
}

// Override maps a header to an explicitly chosen target field. The choice is
// recorded as a human decision with full confidence and confirmed directly.
func (g *ReviewGate) Override(header, targetField string) error {
	r, err := g.get(header)
	if err != nil {
		return err
	}
	if _, ok := g.cat.Get(targetField); !ok {
		return fmt.Errorf("unknown target field %q", targetField)
	}
	r.Mapping = &FieldMapping{
		SourceHeader: header,
		TargetField:  targetField,
		Confidence:   1.0,
		Rationale:    "user confirmed",
		Source:       SourceHuman,
	}
	r.State = StateConfirmed
	return nil
}

// Reject marks a header as "ignore this column".
func (g *ReviewGate) Reject(header string) error {
	r, err := g.get(header)
	if err != nil {
		return err
	}
	r.State = StateRejected
	return nil
}

// Reviews returns the gate state for every header in seeding order.
func (g *ReviewGate) Reviews() []HeaderReview {
	out := make([]HeaderReview, 0, len(g.order))
	for _, h := range g.order {
		out = append(out, *g.reviews[h])
	}
	return out
}

// Confirmed returns the confirmed mappings keyed by source header.
func (g *ReviewGate) Confirmed() map[string]FieldMapping {
	out := make(map[string]FieldMapping)
	for _, r := range g.reviews {
		if r.State == StateConfirmed && r.Mapping != nil {
			out[r.Header] = *r.Mapping
		}
	}
	return out
}

// MissingRequired lists required catalogue fields that have no confirmed
// mapping and no default value.
func (g *ReviewGate) MissingRequired() []string {
	confirmed := make(map[string]bool)
	for _, r := range g.reviews {
		if r.State == StateConfirmed && r.Mapping != nil {
			confirmed[r.Mapping.TargetField] = true
		}
	}

	var missing []string
	for _, f := range g.cat.Required() {
		if !confirmed[f.Name] && f.DefaultValue == "" {
			missing = append(missing, f.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Check returns a MissingRequiredError when the gate blocks the pipeline,
// nil when it is safe to proceed.
func (g *ReviewGate) Check() error {
	if missing := g.MissingRequired(); len(missing) > 0 {
		return &MissingRequiredError{Fields: missing}
	}
	return nil
}
