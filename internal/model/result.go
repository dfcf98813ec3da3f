package model

// Rating is the closed classification of a verified claim
type Rating string

const (
	RatingVerified     Rating = "verified"
	RatingQuestionable Rating = "questionable"
	RatingFalse        Rating = "false"
	RatingError        Rating = "error"
)

// ParseRating maps a wire value onto the closed rating set
func ParseRating(s string) (Rating, bool) {
	r := Rating(s)
	return r, r.Valid()
}

// Valid reports whether r is one of the four known ratings
func (r Rating) Valid() bool {
	switch r {
	case RatingVerified, RatingQuestionable, RatingFalse, RatingError:
		return true
	}
	return false
}

// Icon returns the glyph shown next to a rated claim
func (r Rating) Icon() string {
	switch r {
	case RatingVerified:
		return "✓"
	case RatingQuestionable:
		return "⚠"
	case RatingFalse:
		return "✕"
	default:
		return "?"
	}
}

// Label returns the human-readable rating name
func (r Rating) Label() string {
	switch r {
	case RatingVerified:
		return "Verified"
	case RatingQuestionable:
		return "Questionable"
	case RatingFalse:
		return "False Claim"
	default:
		return "Unknown"
	}
}

// Provenance tells whether a value came from the backend or was synthesized locally
type Provenance string

const (
	ProvenanceAuthoritative Provenance = "authoritative"
	ProvenanceDegraded      Provenance = "degraded"
)

// Source is a reference backing a verification result
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// VerificationResult is the outcome of verifying one claim.
// Values are built with Authoritative or Degraded so the provenance tag is always set.
type VerificationResult struct {
	Claim       string     `json:"claim"`
	Rating      Rating     `json:"rating"`
	Confidence  int        `json:"confidence"` // 0-100
	Sources     []Source   `json:"sources"`
	Explanation string     `json:"explanation,omitempty"`
	Provenance  Provenance `json:"provenance"`
}

// Authoritative tags r as a real backend answer
func Authoritative(r VerificationResult) VerificationResult {
	r.Provenance = ProvenanceAuthoritative
	r.Confidence = clamp(r.Confidence, 0, 100)
	return r
}

// Degraded tags r as a locally simulated result
func Degraded(r VerificationResult) VerificationResult {
	r.Provenance = ProvenanceDegraded
	r.Confidence = clamp(r.Confidence, 0, 100)
	return r
}

// IsDegraded reports whether the result was synthesized rather than verified.
// An untagged result is treated as degraded.
func (r VerificationResult) IsDegraded() bool {
	return r.Provenance != ProvenanceAuthoritative
}

// TrustScore is a 0-100 reputation value for a domain
type TrustScore struct {
	Domain             string     `json:"domain"`
	Score              int        `json:"score"`
	VerificationsCount int        `json:"verificationsCount"`
	Provenance         Provenance `json:"provenance"`
}

// IsDegraded reports whether the score was synthesized rather than fetched
func (t TrustScore) IsDegraded() bool {
	return t.Provenance != ProvenanceAuthoritative
}

// Class buckets the score for display: high, medium or low
func (t TrustScore) Class() string {
	switch {
	case t.Score >= 80:
		return "high"
	case t.Score >= 50:
		return "medium"
	default:
		return "low"
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
