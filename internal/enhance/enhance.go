// Package enhance asks an external semantic service for mapping suggestions
// on headers the deterministic matcher is unsure about. It is a quality
// capability only: every failure degrades silently to the matcher's result,
// and pipeline correctness never depends on it.
package enhance

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
	"github.com/krwhynot/CRM-sub001/internal/csvio"
)

// Suggestion is one proposed header mapping. An empty TargetField means the
// service had no suggestion for the header.
type Suggestion struct {
	SourceHeader string
	TargetField  string
	Confidence   float64
	Rationale    string
}

// Request carries one or more headers with their samples plus the catalogue
// the suggestions must be constrained to.
type Request struct {
	Headers    []csvio.HeaderCandidate
	SampleRows [][]string
	Catalog    *catalog.Catalog
}

// Suggester is the capability interface for the external mapping service.
type Suggester interface {
	SuggestMappings(ctx context.Context, req Request) ([]Suggestion, error)
}

// NopSuggester is the implementation used when no service is configured.
type NopSuggester struct{}

// SuggestMappings returns no suggestions.
func (NopSuggester) SuggestMappings(context.Context, Request) ([]Suggestion, error) {
	return nil, nil
}

// Gather fans one request per header out to the suggester, bounded by
// maxConcurrent, and collects whatever succeeds. Per-header failures are
// logged and dropped; Gather itself never fails.
func Gather(ctx context.Context, s Suggester, headers []csvio.HeaderCandidate, sampleRows [][]string, cat *catalog.Catalog, maxConcurrent int, logger *slog.Logger) []Suggestion {
	if s == nil || len(headers) == 0 {
		return nil
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	results := make([][]Suggestion, len(headers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, h := range headers {
		i, h := i, h
		g.Go(func() error {
			suggestions, err := s.SuggestMappings(gctx, Request{
				Headers:    []csvio.HeaderCandidate{h},
				SampleRows: sampleRows,
				Catalog:    cat,
			})
			if err != nil {
				// Enhancement is best-effort: log and continue.
				logger.Warn("mapping enhancement failed",
					"header", h.Cleaned,
					"error", err,
				)
				return nil
			}
			results[i] = suggestions
			return nil
		})
	}
	_ = g.Wait()

	var out []Suggestion
	for _, r := range results {
		for _, sg := range r {
			if sg.TargetField == "" {
				continue
			}
			// Drop invented fields: suggestions must stay in the catalogue.
			if _, ok := cat.Get(sg.TargetField); !ok {
				logger.Warn("mapping suggestion outside catalogue discarded",
					"header", sg.SourceHeader,
					"field", sg.TargetField,
				)
				continue
			}
			if sg.Confidence < 0 {
				sg.Confidence = 0
			}
			if sg.Confidence > 1 {
				sg.Confidence = 1
			}
			out = append(out, sg)
		}
	}
	return out
}
