package annotate

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/ppiankov/verity/internal/extract"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/page"
)

// fakeUnit records wrap calls without a real tree
type fakeUnit struct {
	id    string
	text  string
	wraps [][2]int
}

func (u *fakeUnit) ID() string   { return u.id }
func (u *fakeUnit) Text() string { return u.text }
func (u *fakeUnit) WrapRange(start, end int, newWrapper func(int) *html.Node) bool {
	if start < 0 || end > len(u.text) || end <= start {
		return false
	}
	newWrapper(0)
	u.wraps = append(u.wraps, [2]int{start, end})
	return true
}

func authoritative(rating model.Rating) model.VerificationResult {
	return model.Authoritative(model.VerificationResult{Rating: rating, Confidence: 90})
}

func claimAt(text, claim string) model.Claim {
	return model.Claim{Text: claim, Offset: strings.Index(text, claim)}
}

func TestBindUnit_Idempotent(t *testing.T) {
	e := NewEngine(nil)
	text := "Studies show 90% agree. Nothing else."
	unit := &fakeUnit{id: "u1", text: text}
	bindings := []Binding{{Claim: claimAt(text, "Studies show 90% agree."), Result: authoritative(model.RatingVerified)}}

	first := e.BindUnit(unit, bindings)
	require.Len(t, first, 1)
	assert.True(t, e.IsProcessed("u1"))

	second := e.BindUnit(unit, bindings)
	assert.Nil(t, second)
	assert.Len(t, unit.wraps, 1, "second bind must not mutate")
	assert.Len(t, e.Regions(), 1)
	assert.Equal(t, 1, e.Counts().Verified)

	_, ok := e.BindResult(unit, bindings[0].Claim, bindings[0].Result)
	assert.False(t, ok)
}

func TestBindUnit_ConcurrentTriggers(t *testing.T) {
	e := NewEngine(nil)
	text := "It lasts 10 hours."
	unit := &fakeUnit{id: "u1", text: text}
	claim := claimAt(text, "It lasts 10 hours.")

	var wg sync.WaitGroup
	created := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created <- len(e.BindUnit(unit, []Binding{{Claim: claim, Result: authoritative(model.RatingFalse)}}))
		}()
	}
	wg.Wait()
	close(created)

	total := 0
	for n := range created {
		total += n
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, model.Counts{False: 1}, e.Counts())
}

func TestBindUnit_OffsetPreferredOverFirstOccurrence(t *testing.T) {
	e := NewEngine(nil)
	text := "It is 100% safe. It is 100% safe."
	unit := &fakeUnit{id: "u1", text: text}

	second := model.Claim{Text: "It is 100% safe.", Offset: 17}
	regions := e.BindUnit(unit, []Binding{{Claim: second, Result: authoritative(model.RatingQuestionable)}})

	require.Len(t, regions, 1)
	assert.Equal(t, [][2]int{{17, 33}}, unit.wraps)
	assert.Equal(t, 17, regions[0].Claim.Offset)
}

func TestBindUnit_StaleOffsetFallsBack(t *testing.T) {
	e := NewEngine(nil)
	unit := &fakeUnit{id: "u1", text: "Prefix added. Experts say 5 times better."}

	stale := model.Claim{Text: "Experts say 5 times better.", Offset: 0}
	regions := e.BindUnit(unit, []Binding{{Claim: stale, Result: authoritative(model.RatingVerified)}})

	require.Len(t, regions, 1)
	assert.Equal(t, 14, regions[0].Claim.Offset)
}

func TestBindUnit_MissingClaimSkippedButCounted(t *testing.T) {
	e := NewEngine(nil)
	unit := &fakeUnit{id: "u1", text: "Completely different text now."}

	regions := e.BindUnit(unit, []Binding{{Claim: model.Claim{Text: "Gone 50% claim."}, Result: authoritative(model.RatingFalse)}})

	assert.Empty(t, regions)
	assert.Empty(t, unit.wraps)
	assert.True(t, e.IsProcessed("u1"))
	assert.Equal(t, 1, e.Counts().False)
}

func TestBindUnit_OverlappingClaimsFirstWins(t *testing.T) {
	e := NewEngine(nil)
	text := "The best battery ever made lasts always."
	unit := &fakeUnit{id: "u1", text: text}

	regions := e.BindUnit(unit, []Binding{
		{Claim: model.Claim{Text: "The best battery ever made", Offset: 0}, Result: authoritative(model.RatingVerified)},
		{Claim: model.Claim{Text: "battery ever made lasts always.", Offset: 9}, Result: authoritative(model.RatingFalse)},
	})

	require.Len(t, regions, 1)
	assert.Equal(t, model.RatingVerified, regions[0].Result.Rating)
	assert.Equal(t, model.Counts{Verified: 1, False: 1}, e.Counts())
}

func TestCounts_DegradedAndErrors(t *testing.T) {
	e := NewEngine(nil)
	e.BindUnit(&fakeUnit{id: "a", text: "x"}, []Binding{
		{Claim: model.Claim{Text: "x"}, Result: model.Degraded(model.VerificationResult{Rating: model.RatingQuestionable})},
	})
	e.BindUnit(&fakeUnit{id: "b", text: "y"}, []Binding{
		{Claim: model.Claim{Text: "y"}, Result: model.Authoritative(model.VerificationResult{Rating: model.RatingError})},
	})

	assert.Equal(t, model.Counts{Questionable: 1, Degraded: 1}, e.Counts())
	assert.Equal(t, 2, e.Bound())
	assert.Equal(t, model.Badge{Count: 1, Color: model.BadgeColorQuestionable, Degraded: 1}, e.Badge())
}

func TestRegionIDs_Unique(t *testing.T) {
	e := NewEngine(nil)
	ids := []string{"dup", "dup", "fresh"}
	e.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	e.BindUnit(&fakeUnit{id: "a", text: "one"}, []Binding{{Claim: model.Claim{Text: "one"}, Result: authoritative(model.RatingVerified)}})
	e.BindUnit(&fakeUnit{id: "b", text: "two"}, []Binding{{Claim: model.Claim{Text: "two"}, Result: authoritative(model.RatingVerified)}})

	regions := e.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, "dup", regions[0].ID)
	assert.Equal(t, "fresh", regions[1].ID)
}

func TestNewRegionID_Format(t *testing.T) {
	id := NewRegionID()
	assert.Regexp(t, `^verity-\d+-[0-9a-f]{9}$`, id)
	assert.NotEqual(t, id, NewRegionID())
}

func TestBindUnit_OnDocument(t *testing.T) {
	doc, err := page.ParseString(`<body><p>Intro text. This supplement is proven to boost energy by 300% according to new research. <a href="/more" onclick="track()">More</a></p></body>`, "https://shop.example.com/")
	require.NoError(t, err)

	units := doc.Units()
	require.Len(t, units, 1)
	unit := units[0]

	claims := extract.ExtractClaims(unit.Text())
	require.Len(t, claims, 1)

	result := model.Authoritative(model.VerificationResult{
		Rating:     model.RatingFalse,
		Confidence: 91,
		Sources:    []model.Source{{Name: "FDA", URL: "https://fda.example/x"}},
	})

	e := NewEngine(nil)
	regions := e.BindUnit(unit, []Binding{{Claim: claims[0], Result: result}})
	require.Len(t, regions, 1)

	out, err := doc.Render()
	require.NoError(t, err)

	id := regions[0].ID
	assert.Contains(t, out, fmt.Sprintf(`id="%s"`, id))
	assert.Contains(t, out, `class="verity-highlight verity-highlight-false"`)
	assert.Contains(t, out, `data-verity-confidence="91"`)
	assert.Contains(t, out, `data-verity-sources="[{&#34;name&#34;:&#34;FDA&#34;,&#34;url&#34;:&#34;https://fda.example/x&#34;}]"`)
	assert.Contains(t, out, `<a href="/more" onclick="track()">More</a>`)
	assert.Contains(t, out, "proven to boost energy by 300% according to new research.</span>")

	found, ok := e.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, result, found.Result)
	assert.Equal(t, unit.ID(), found.UnitID)

	// Rescanning the mutated document finds the same unit and does nothing
	again := doc.Units()
	require.Len(t, again, 1)
	assert.Equal(t, unit.ID(), again[0].ID())
	assert.Nil(t, e.BindUnit(again[0], []Binding{{Claim: claims[0], Result: result}}))
}
