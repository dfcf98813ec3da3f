package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/verity/internal/llm"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/page"
)

// Report is the JSON document written for a scan
type Report struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Message     string            `json:"message"`
	Summary     model.ScanSummary `json:"summary"`
	LLM         *llm.Digest       `json:"llm,omitempty"`
}

// NewReport wraps a finished scan
func NewReport(result *ScanResult) *Report {
	return &Report{
		GeneratedAt: time.Now().UTC(),
		Message:     result.Summary.Message(),
		Summary:     result.Summary,
		LLM:         result.Digest,
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7A7A7A"))
	degradedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(model.BadgeColorQuestionable))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// ratingColor maps a rating onto the badge palette
func ratingColor(r model.Rating) lipgloss.Color {
	switch r {
	case model.RatingVerified:
		return lipgloss.Color(model.BadgeColorVerified)
	case model.RatingQuestionable:
		return lipgloss.Color(model.BadgeColorQuestionable)
	case model.RatingFalse:
		return lipgloss.Color(model.BadgeColorFalse)
	}
	return lipgloss.Color(model.BadgeColorIdle)
}

// Renderer writes scan reports
type Renderer struct{}

// NewRenderer creates a renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderJSON writes report as indented JSON
func (r *Renderer) RenderJSON(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, data)
}

// RenderHTML writes the annotated document
func (r *Renderer) RenderHTML(doc *page.Document, path string) error {
	out, err := doc.Render()
	if err != nil {
		return err
	}
	return writeFile(path, []byte(out))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// RenderBadge renders the badge count in its color
func RenderBadge(b model.Badge) string {
	style := lipgloss.NewStyle().Bold(true).Padding(0, 1).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color(b.Color))
	badge := style.Render(fmt.Sprintf("%d", b.Count))
	if b.Degraded > 0 {
		badge += " " + degradedStyle.Render(fmt.Sprintf("(%d simulated)", b.Degraded))
	}
	return badge
}

// RenderResult renders one verification result
func RenderResult(result model.VerificationResult) string {
	var b strings.Builder
	head := lipgloss.NewStyle().Bold(true).Foreground(ratingColor(result.Rating)).
		Render(fmt.Sprintf("%s %s", result.Rating.Icon(), result.Rating.Label()))
	fmt.Fprintf(&b, "%s  %d%% confidence", head, result.Confidence)
	if result.IsDegraded() {
		b.WriteString("  " + degradedStyle.Render("SIMULATED (verification service unreachable)"))
	}
	b.WriteString("\n")
	if result.Explanation != "" {
		b.WriteString(result.Explanation + "\n")
	}
	for _, s := range result.Sources {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  • %s %s", s.Name, s.URL)) + "\n")
	}
	return b.String()
}

// RenderTrust renders a domain trust score
func RenderTrust(t model.TrustScore) string {
	line := fmt.Sprintf("Domain trust for %s: %s (%s)", t.Domain, titleStyle.Render(fmt.Sprintf("%d/100", t.Score)), t.Class())
	if t.IsDegraded() {
		line += "  " + degradedStyle.Render("SIMULATED")
	}
	return line
}

// RenderSummary prints a terminal summary of summary to w
func (r *Renderer) RenderSummary(w io.Writer, summary model.ScanSummary, digest *llm.Digest) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render(summary.Message()), RenderBadge(summary.Badge))
	fmt.Fprintf(&b, "%s\n", mutedStyle.Render(summary.URL))
	fmt.Fprintf(&b, "✓ %d verified  ⚠ %d questionable  ✕ %d false\n",
		summary.Counts.Verified, summary.Counts.Questionable, summary.Counts.False)
	if summary.Trust != nil {
		b.WriteString(RenderTrust(*summary.Trust) + "\n")
	}
	if summary.Cancelled {
		b.WriteString(degradedStyle.Render("Scan cancelled before all claims were verified") + "\n")
	}

	if len(summary.Findings) > 0 {
		fmt.Fprintf(&b, "\nDark patterns (%d):\n", len(summary.Findings))
		for _, f := range summary.Findings {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", f.Severity, f.Type.Label(), f.Message)
		}
	}

	if len(summary.Regions) > 0 {
		b.WriteString("\nClaims:\n")
		for _, region := range summary.Regions {
			res := region.Result
			tag := lipgloss.NewStyle().Foreground(ratingColor(res.Rating)).Render(res.Rating.Icon())
			line := fmt.Sprintf("  %s %s", tag, region.Claim.Text)
			if res.IsDegraded() {
				line += " " + degradedStyle.Render("(simulated)")
			}
			b.WriteString(line + "\n")
		}
	}

	if digest != nil && digest.Text != "" {
		fmt.Fprintf(&b, "\nDigest (%s/%s):\n%s\n", digest.Provider, digest.Model, digest.Text)
	}
	if digest != nil {
		for _, warning := range digest.Warnings {
			b.WriteString(mutedStyle.Render("  "+warning) + "\n")
		}
	}

	_, _ = fmt.Fprintln(w, boxStyle.BorderForeground(lipgloss.Color(summary.Badge.Color)).Render(strings.TrimRight(b.String(), "\n")))
}
