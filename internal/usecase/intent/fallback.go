package intent

import (
	"strings"

	"github.com/kailas-cloud/shopsearch/internal/domain"
)

// Keyword sets for the deterministic fallback analyzer. Matching is
// token-based, not substring-based: "women" must never trip the male set.
var (
	maleKeywords = map[string]struct{}{
		"man": {}, "men": {}, "mens": {}, "male": {},
		"him": {}, "his": {}, "gentleman": {}, "boy": {}, "boys": {},
	}
	femaleKeywords = map[string]struct{}{
		"woman": {}, "women": {}, "womens": {}, "female": {},
		"her": {}, "hers": {}, "lady": {}, "ladies": {}, "girl": {}, "girls": {},
	}
)

// productTypeVocabulary is scanned in order; earlier entries rank first.
var productTypeVocabulary = []string{
	"suit", "shirt", "shoe", "dress", "pants", "jeans", "jacket", "coat",
	"sweater", "hoodie", "skirt", "tie", "watch", "belt", "hat", "scarf",
	"sock", "short", "boot", "sneaker", "bag",
}

// fallbackProductType is used when no vocabulary entry matches.
const fallbackProductType = "clothing"

// fallbackQualifiers pads the expanded query with generic domain terms.
const fallbackQualifiers = "clothing fashion wear"

// fallbackAnalyze is the deterministic substitute for the language model. It
// always produces a valid intent; gender stays absent when no keyword (or
// keywords from both sets) match.
func fallbackAnalyze(query string) domain.Intent {
	lower := strings.ToLower(query)

	gender := detectGender(lower)
	types := detectProductTypes(lower)
	expanded := strings.TrimSpace(query) + " " + fallbackQualifiers

	intent, err := domain.NewIntent(string(gender), types, expanded, domain.AnalysisFallback)
	if err != nil {
		// Unreachable with the constants above; kept total so Analyze can
		// guarantee a usable intent for any input.
		intent, _ = domain.NewIntent("", []string{fallbackProductType},
			strings.TrimSpace(query)+" "+fallbackQualifiers, domain.AnalysisFallback)
	}
	return intent
}

func detectGender(lowerQuery string) domain.Gender {
	male, female := false, false
	for _, tok := range tokenize(lowerQuery) {
		if _, ok := maleKeywords[tok]; ok {
			male = true
		}
		if _, ok := femaleKeywords[tok]; ok {
			female = true
		}
	}
	switch {
	case male && !female:
		return domain.GenderMale
	case female && !male:
		return domain.GenderFemale
	default:
		return domain.GenderAny
	}
}

func detectProductTypes(lowerQuery string) []string {
	var types []string
	for _, t := range productTypeVocabulary {
		if strings.Contains(lowerQuery, t) {
			types = append(types, t)
		}
		if len(types) == domain.MaxProductTypes {
			break
		}
	}
	if len(types) == 0 {
		types = []string{fallbackProductType}
	}
	return types
}

// tokenize splits on any non-letter/digit rune and strips possessive suffixes
// so "men's" and "ladies'" match their keyword entries.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '\'')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSuffix(f, "'s")
		f = strings.Trim(f, "'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
