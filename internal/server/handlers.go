package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/verity/internal/config"
	"github.com/ppiankov/verity/internal/model"
	"github.com/ppiankov/verity/internal/page"
	"github.com/ppiankov/verity/internal/pipeline"
	"github.com/ppiankov/verity/internal/verify"
)

type scanRequest struct {
	HTML     string          `json:"html" binding:"required"`
	URL      string          `json:"url" binding:"omitempty,url"`
	Settings *model.Settings `json:"settings"`
}

type scanResponse struct {
	SessionID string                  `json:"sessionId"`
	HTML      string                  `json:"html"`
	Message   string                  `json:"message"`
	Regions   []model.AnnotatedRegion `json:"regions"`
	Counts    model.Counts            `json:"counts"`
	Badge     model.Badge             `json:"badge"`
	Findings  []model.Finding         `json:"findings"`
	Trust     *model.TrustScore       `json:"trust,omitempty"`
	Cancelled bool                    `json:"cancelled"`
}

// Scan annotates posted HTML. The page is already rendered, so the
// verification delay is not applied.
func (s *Server) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	doc, err := page.ParseString(req.HTML, req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	var settings model.Settings
	if req.Settings != nil {
		settings = *req.Settings
	} else if settings, err = s.pipeline.Settings(c.Request.Context()); err != nil {
		s.logger.Warn("settings unavailable, using defaults", "error", err)
		settings = model.DefaultSettings()
	}
	settings.VerificationDelay = 0

	session := s.pipeline.NewSession(c.Request.Context(), doc, config.Static(settings), nil)
	summary := session.Run()

	out, err := doc.Render()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	s.sessions.SetDefault(session.ID(), session)

	c.JSON(http.StatusOK, scanResponse{
		SessionID: session.ID(),
		HTML:      out,
		Message:   summary.Message(),
		Regions:   nonNilRegions(summary.Regions),
		Counts:    summary.Counts,
		Badge:     summary.Badge,
		Findings:  nonNilFindings(summary.Findings),
		Trust:     summary.Trust,
		Cancelled: summary.Cancelled,
	})
}

// Region returns the tooltip data bound under a region id
func (s *Server) Region(c *gin.Context) {
	v, ok := s.sessions.Get(c.Param("session"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"err": "session not found"})
		return
	}
	region, ok := v.(*pipeline.Session).Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"err": "region not found"})
		return
	}
	c.JSON(http.StatusOK, region)
}

// Verify checks a single piece of selected text
func (s *Server) Verify(c *gin.Context) {
	var req struct {
		Claim string `json:"claim" binding:"required"`
		URL   string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	pc := verify.PageContext{URL: req.URL}
	if parsed, err := url.Parse(req.URL); err == nil {
		pc.Domain = parsed.Hostname()
	}
	c.JSON(http.StatusOK, s.pipeline.Client().Verify(c.Request.Context(), req.Claim, pc))
}

// Feedback forwards a user report to the backend. It is accepted
// immediately; delivery failures are only logged.
func (s *Server) Feedback(c *gin.Context) {
	var req struct {
		ClaimID   string `json:"claimId" binding:"required"`
		IsCorrect bool   `json:"isCorrect"`
		Feedback  string `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	go s.pipeline.Client().ReportFeedback(ctx, req.ClaimID, req.IsCorrect, req.Feedback)

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Health reports liveness and whether the verification backend answers
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"backend": s.pipeline.Client().Healthy(c.Request.Context()),
	})
}

func nonNilRegions(r []model.AnnotatedRegion) []model.AnnotatedRegion {
	if r == nil {
		return []model.AnnotatedRegion{}
	}
	return r
}

func nonNilFindings(f []model.Finding) []model.Finding {
	if f == nil {
		return []model.Finding{}
	}
	return f
}
