package model

// Claim represents a sentence-level span of unit text flagged as a verifiable assertion
type Claim struct {
	Text       string `json:"text"`       // Trimmed sentence text
	Offset     int    `json:"offset"`     // Byte offset of Text within the unit text
	Confidence int    `json:"confidence"` // 0-95
	Sentence   int    `json:"sentence"`   // Sentence index in the unit (0-based)
	Heuristic  string `json:"heuristic"`  // First indicator that matched (e.g., "indicator:percentage")
}

// End returns the byte offset just past the claim text
func (c Claim) End() int {
	return c.Offset + len(c.Text)
}

// Overlaps reports whether two claims share any byte of unit text
func (c Claim) Overlaps(other Claim) bool {
	return c.Offset < other.End() && other.Offset < c.End()
}

// Entities holds simple tokens pulled out of text for display
type Entities struct {
	Numbers     []string `json:"numbers"`
	Percentages []string `json:"percentages"`
	Dates       []string `json:"dates"`
}
