package domain

import (
	"context"
	"fmt"
	"strings"
)

// MaxProductTypes caps how many product types an intent carries.
const MaxProductTypes = 5

// AnalysisSource records whether an intent came from the language model or
// from the deterministic fallback analyzer.
type AnalysisSource string

// Analysis sources.
const (
	AnalysisModel    AnalysisSource = "model"
	AnalysisFallback AnalysisSource = "fallback"
)

// Extraction is the raw intent shape returned by the language model, before
// normalization. Gender may be the literal "null" sentinel.
type Extraction struct {
	Gender        string
	ProductTypes  []string
	ExpandedQuery string
}

// IntentExtractor is the language-model contract for query analysis.
type IntentExtractor interface {
	ExtractIntent(ctx context.Context, prompt string) (Extraction, error)
}

// Intent is the structured interpretation of a search query (immutable value
// object). It is created per request and never persisted.
type Intent struct {
	gender        Gender
	productTypes  []string
	expandedQuery string
	source        AnalysisSource
}

// NewIntent normalizes and validates an extraction into an Intent.
// A "null"/"none"/empty gender becomes GenderAny (no filter); product types
// are lowercased, trimmed, deduplicated and capped at MaxProductTypes; the
// expanded query must be non-empty.
func NewIntent(gender string, productTypes []string, expandedQuery string, source AnalysisSource) (Intent, error) {
	g, err := parseIntentGender(gender)
	if err != nil {
		return Intent{}, err
	}

	types := dedupe(NormalizeTags(productTypes))
	if len(types) == 0 {
		return Intent{}, fmt.Errorf("intent requires at least one product type: %w", ErrValidation)
	}
	if len(types) > MaxProductTypes {
		types = types[:MaxProductTypes]
	}

	expanded := strings.TrimSpace(expandedQuery)
	if expanded == "" {
		return Intent{}, fmt.Errorf("intent requires a non-empty expanded query: %w", ErrValidation)
	}

	return Intent{
		gender:        g,
		productTypes:  types,
		expandedQuery: expanded,
		source:        source,
	}, nil
}

// parseIntentGender accepts the product gender enum plus the absent sentinels
// a model may emit. Absence suppresses the gender filter at search time; it is
// never replaced with a placeholder value.
func parseIntentGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none":
		return GenderAny, nil
	}
	return ParseGender(s)
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Gender returns the detected gender, GenderAny when undetermined.
func (i *Intent) Gender() Gender { return i.gender }

// ProductTypes returns the ranked product types, primary type first.
func (i *Intent) ProductTypes() []string { return i.productTypes }

// ExpandedQuery returns the descriptive phrase used for embedding.
func (i *Intent) ExpandedQuery() string { return i.expandedQuery }

// Source reports whether the model or the fallback produced this intent.
func (i *Intent) Source() AnalysisSource { return i.source }
