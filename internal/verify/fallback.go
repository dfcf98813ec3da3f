package verify

import (
	"math/rand/v2"

	"github.com/ppiankov/verity/internal/model"
)

// randIntN draws fallback values (injectable for tests)
var randIntN = rand.IntN

var fallbackRatings = []model.Rating{model.RatingVerified, model.RatingQuestionable, model.RatingFalse}

var fallbackExplanations = map[model.Rating]string{
	model.RatingVerified:     "This claim has been verified against authoritative sources and appears to be accurate.",
	model.RatingQuestionable: "This claim lacks sufficient evidence or has conflicting information from different sources.",
	model.RatingFalse:        "This claim contradicts verified information from authoritative sources.",
}

var fallbackSources = []model.Source{
	{Name: "Example Source 1", URL: "https://example.com/source1"},
	{Name: "Example Source 2", URL: "https://example.com/source2"},
}

// FallbackResult synthesizes a degraded result for claim: a random rating from
// verified, questionable and false, confidence in [70,100] and two stub sources.
func FallbackResult(claim string) model.VerificationResult {
	rating := fallbackRatings[randIntN(len(fallbackRatings))]
	sources := make([]model.Source, len(fallbackSources))
	copy(sources, fallbackSources)

	return model.Degraded(model.VerificationResult{
		Claim:       claim,
		Rating:      rating,
		Confidence:  70 + randIntN(31),
		Sources:     sources,
		Explanation: fallbackExplanations[rating],
	})
}

// FallbackTrust synthesizes a degraded trust score in [60,100]
func FallbackTrust(domain string) model.TrustScore {
	return model.TrustScore{
		Domain:             domain,
		Score:              60 + randIntN(41),
		VerificationsCount: 100 + randIntN(1000),
		Provenance:         model.ProvenanceDegraded,
	}
}
