// Package extract finds sentence-level claims in plain text.
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ppiankov/verity/internal/model"
)

const (
	baseConfidence = 50
	maxConfidence  = 95
)

// indicator is one claim signal; a sentence is a claim when any indicator matches
type indicator struct {
	name    string
	pattern *regexp.Regexp
}

var (
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

	indicators = []indicator{
		{"percentage", regexp.MustCompile(`\d+%`)},
		{"duration", regexp.MustCompile(`(?i)\d+\s*(hours?|days?|weeks?|months?|years?)\b`)},
		{"multiplier", regexp.MustCompile(`(?i)\d+\s*(times?\b|x\b)`)},
		{"claim-verb", regexp.MustCompile(`(?i)\b(proven|shows?|demonstrates?|indicates?|suggests?)\b`)},
		{"authority", regexp.MustCompile(`(?i)\b(study|studies|research|scientists?|experts?)`)},
		{"superlative", regexp.MustCompile(`(?i)\b(best|worst|most|least|fastest|slowest)\b`)},
		{"absolute", regexp.MustCompile(`(?i)\b(always|never|all|none|every|no)\b`)},
		{"product", regexp.MustCompile(`(?i)\b(waterproof|battery|lasts?|charge)\b`)},
	}

	digitPattern      = regexp.MustCompile(`\d`)
	percentagePattern = indicators[0].pattern
	authorityPattern  = indicators[4].pattern
	productPattern    = indicators[7].pattern

	numberPattern = regexp.MustCompile(`\d+`)
	datePattern   = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}|\d{4}`)
)

// Span is a trimmed sentence and its byte offset in the source text
type Span struct {
	Text   string
	Offset int
}

// ExtractClaims returns the claims found in text, in order of appearance.
// It never fails; text without terminal punctuation yields no claims.
func ExtractClaims(text string) []model.Claim {
	var claims []model.Claim

	for i, span := range SplitSentences(text) {
		heuristic, ok := matchIndicator(span.Text)
		if !ok {
			continue
		}
		claims = append(claims, model.Claim{
			Text:       span.Text,
			Offset:     span.Offset,
			Confidence: CalculateConfidence(span.Text),
			Sentence:   i,
			Heuristic:  "indicator:" + heuristic,
		})
	}

	return claims
}

// IsLikelyClaim reports whether the sentence carries any claim indicator
func IsLikelyClaim(sentence string) bool {
	_, ok := matchIndicator(sentence)
	return ok
}

// CalculateConfidence scores a sentence in [0, 95]
func CalculateConfidence(sentence string) int {
	confidence := baseConfidence

	if digitPattern.MatchString(sentence) {
		confidence += 15
	}
	if percentagePattern.MatchString(sentence) {
		confidence += 20
	}
	if authorityPattern.MatchString(sentence) {
		confidence += 10
	}
	if productPattern.MatchString(sentence) {
		confidence += 10
	}

	if confidence > maxConfidence {
		return maxConfidence
	}
	if confidence < 0 {
		return 0
	}
	return confidence
}

// SplitSentences splits text into spans ending in one or more of . ! ?
// A trailing fragment without terminal punctuation is not a sentence.
func SplitSentences(text string) []Span {
	var spans []Span

	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
		lead := len(raw) - len(trimmed)
		trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
		if trimmed == "" {
			continue
		}
		spans = append(spans, Span{Text: trimmed, Offset: loc[0] + lead})
	}

	return spans
}

// ExtractEntities pulls numbers, percentages and date-like tokens out of text
func ExtractEntities(text string) model.Entities {
	return model.Entities{
		Numbers:     nonNil(numberPattern.FindAllString(text, -1)),
		Percentages: nonNil(percentagePattern.FindAllString(text, -1)),
		Dates:       nonNil(datePattern.FindAllString(text, -1)),
	}
}

func matchIndicator(sentence string) (string, bool) {
	for _, ind := range indicators {
		if ind.pattern.MatchString(sentence) {
			return ind.name, true
		}
	}
	return "", false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
