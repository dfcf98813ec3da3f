// Package annotate binds verification results onto content units, once per unit.
package annotate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ppiankov/verity/internal/metrics"
	"github.com/ppiankov/verity/internal/model"
)

// Region element attributes
const (
	AttrRegion     = "data-verity-region"
	AttrRating     = "data-verity-rating"
	AttrConfidence = "data-verity-confidence"
	AttrSources    = "data-verity-sources"
	AttrProvenance = "data-verity-provenance"
)

// Binding pairs a claim with its verification result
type Binding struct {
	Claim  model.Claim
	Result model.VerificationResult
}

// Engine owns one session's annotation state: the processed set, the region
// lookup table and the aggregate counters. All methods are safe for concurrent
// use; each unit's mutation is committed under the lock before another starts.
type Engine struct {
	mu        sync.Mutex
	processed map[string]bool
	regions   map[string]model.AnnotatedRegion
	order     []string
	counts    model.Counts
	bound     int

	newID  func() string
	logger *slog.Logger
}

// NewEngine creates an engine with empty counters
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		processed: make(map[string]bool),
		regions:   make(map[string]model.AnnotatedRegion),
		newID:     NewRegionID,
		logger:    logger,
	}
}

// NewRegionID returns a time-based id with a random suffix
func NewRegionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("verity-%d-%s", time.Now().UnixMilli(), suffix)
}

// IsProcessed reports whether unitID has been processed
func (e *Engine) IsProcessed(unitID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processed[unitID]
}

// MarkProcessed marks unitID processed and reports whether this call did it.
// A unit with no claims is marked this way so later scans skip it.
func (e *Engine) MarkProcessed(unitID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.processed[unitID] {
		return false
	}
	e.processed[unitID] = true
	return true
}

// BindResult binds a single claim; see BindUnit
func (e *Engine) BindResult(unit model.ContentUnit, claim model.Claim, result model.VerificationResult) (model.AnnotatedRegion, bool) {
	regions := e.BindUnit(unit, []Binding{{Claim: claim, Result: result}})
	if len(regions) == 0 {
		return model.AnnotatedRegion{}, false
	}
	return regions[0], true
}

// BindUnit processes unit with all of its bindings. If the unit was already
// processed the call does nothing and returns nil. Otherwise the unit is marked
// processed, every result is counted, and each claim found in the unit's text
// is wrapped in a new region. Claims that can no longer be found, or that
// overlap an earlier claim's span, are skipped.
func (e *Engine) BindUnit(unit model.ContentUnit, bindings []Binding) []model.AnnotatedRegion {
	e.mu.Lock()
	defer e.mu.Unlock()

	unitID := unit.ID()
	if e.processed[unitID] {
		return nil
	}
	e.processed[unitID] = true

	text := unit.Text()
	var taken [][2]int
	var regions []model.AnnotatedRegion

	for _, b := range bindings {
		e.count(b.Result)

		start, ok := locate(text, b.Claim)
		if !ok {
			e.logger.Debug("claim no longer in unit", "unit", unitID, "claim", b.Claim.Text)
			continue
		}
		end := start + len(b.Claim.Text)
		if overlapsAny(taken, start, end) {
			e.logger.Debug("skipping overlapping claim", "unit", unitID, "offset", start)
			continue
		}

		id := e.uniqueID()
		if !unit.WrapRange(start, end, regionWrapper(id, b.Result)) {
			continue
		}
		taken = append(taken, [2]int{start, end})

		claim := b.Claim
		claim.Offset = start
		region := model.AnnotatedRegion{ID: id, UnitID: unitID, Claim: claim, Result: b.Result}
		e.regions[id] = region
		e.order = append(e.order, id)
		regions = append(regions, region)
		metrics.Annotations.WithLabelValues(string(b.Result.Rating)).Inc()
	}

	return regions
}

// Lookup returns the region with the given id
func (e *Engine) Lookup(id string) (model.AnnotatedRegion, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	region, ok := e.regions[id]
	return region, ok
}

// Regions returns all regions in creation order
func (e *Engine) Regions() []model.AnnotatedRegion {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.AnnotatedRegion, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.regions[id])
	}
	return out
}

// Counts returns the aggregate counters
func (e *Engine) Counts() model.Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts
}

// Badge returns the badge for the current counters
func (e *Engine) Badge() model.Badge {
	return e.Counts().Badge()
}

// Bound returns how many results have been bound, including error ratings
func (e *Engine) Bound() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bound
}

func (e *Engine) count(result model.VerificationResult) {
	e.bound++
	switch result.Rating {
	case model.RatingVerified:
		e.counts.Verified++
	case model.RatingQuestionable:
		e.counts.Questionable++
	case model.RatingFalse:
		e.counts.False++
	default:
		return
	}
	if result.IsDegraded() {
		e.counts.Degraded++
	}
}

func (e *Engine) uniqueID() string {
	for {
		id := e.newID()
		if _, taken := e.regions[id]; !taken {
			return id
		}
	}
}

// locate resolves the claim's span by its recorded offset, falling back to
// the first occurrence when the offset is stale
func locate(text string, claim model.Claim) (int, bool) {
	if claim.Text == "" {
		return 0, false
	}
	if end := claim.Offset + len(claim.Text); claim.Offset >= 0 && end <= len(text) && text[claim.Offset:end] == claim.Text {
		return claim.Offset, true
	}
	idx := strings.Index(text, claim.Text)
	return idx, idx >= 0
}

func overlapsAny(taken [][2]int, start, end int) bool {
	for _, r := range taken {
		if start < r[1] && r[0] < end {
			return true
		}
	}
	return false
}

// regionWrapper builds the span elements for one region. Only the first
// segment carries the id; every segment carries the region attribute.
func regionWrapper(id string, result model.VerificationResult) func(segment int) *html.Node {
	sources, err := json.Marshal(result.Sources)
	if err != nil || result.Sources == nil {
		sources = []byte("[]")
	}

	return func(segment int) *html.Node {
		n := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
		n.Attr = append(n.Attr,
			html.Attribute{Key: "class", Val: "verity-highlight verity-highlight-" + string(result.Rating)},
		)
		if segment == 0 {
			n.Attr = append(n.Attr, html.Attribute{Key: "id", Val: id})
		}
		n.Attr = append(n.Attr,
			html.Attribute{Key: AttrRegion, Val: id},
			html.Attribute{Key: AttrRating, Val: string(result.Rating)},
			html.Attribute{Key: AttrConfidence, Val: strconv.Itoa(result.Confidence)},
			html.Attribute{Key: AttrSources, Val: string(sources)},
			html.Attribute{Key: AttrProvenance, Val: string(result.Provenance)},
			html.Attribute{Key: "title", Val: "Click for details"},
		)
		return n
	}
}
