package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	qgotel "github.com/medtrans/qagate/internal/adapter/otel"
	"github.com/medtrans/qagate/internal/config"
	"github.com/medtrans/qagate/internal/domain/candidate"
	"github.com/medtrans/qagate/internal/domain/expert"
	"github.com/medtrans/qagate/internal/domain/memory"
	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/domain/scoring"
	"github.com/medtrans/qagate/internal/port/database"
)

// Pipeline is the QA gate's front door. A submitted candidate is validated,
// scored, matched against translation memory and then either routed into
// human review or accepted automatically.
type Pipeline struct {
	store        database.Store
	scorer       *Scorer
	memories     *MemoryIndex
	orchestrator *Orchestrator
	cfg          config.Pipeline
	now          func() time.Time
}

// NewPipeline creates the submission pipeline.
func NewPipeline(store database.Store, scorer *Scorer, memories *MemoryIndex, orchestrator *Orchestrator, cfg config.Pipeline) *Pipeline {
	return &Pipeline{
		store:        store,
		scorer:       scorer,
		memories:     memories,
		orchestrator: orchestrator,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Submission is the pipeline's answer for one candidate.
type Submission struct {
	Candidate *candidate.Candidate `json:"candidate"`
	Report    *scoring.Report      `json:"report"`
	Matches   []memory.Match       `json:"matches,omitempty"`
	Request   *review.Request      `json:"request,omitempty"`
	Routed    bool                 `json:"routed_to_review"`
	Reason    string               `json:"routing_reason,omitempty"`
}

// Submit runs a candidate through the gate. Only validation errors reject
// the candidate outright; scoring and memory lookup always produce a
// best-effort result.
func (p *Pipeline) Submit(ctx context.Context, cand *candidate.Candidate, priority review.Priority) (*Submission, error) {
	if err := cand.Validate(); err != nil {
		return nil, err
	}
	// An unknown content type is a caller error. Reject it before anything
	// is persisted so a failed submission leaves no candidate row behind.
	if _, err := p.orchestrator.PolicyFor(cand.ContentType); err != nil {
		return nil, err
	}
	if cand.ID == "" {
		cand.ID = uuid.NewString()
	}
	if cand.SubmittedAt.IsZero() {
		cand.SubmittedAt = p.now()
	}
	ctx, span := qgotel.StartSubmitSpan(ctx, cand.ID, cand.Domain, cand.ContentType)
	defer span.End()

	if err := p.store.CreateCandidate(ctx, cand); err != nil {
		return nil, fmt.Errorf("persist candidate: %w", err)
	}

	matches, err := p.memories.Search(ctx, cand.SourceText, cand.SourceLang, cand.TargetLang, cand.Domain, 0)
	if err != nil {
		slog.Warn("memory search failed", "candidate_id", cand.ID, "error", err)
	}
	reference, memoryEntryID := p.referenceFrom(cand, matches)

	report := p.scorer.Score(ctx, cand, reference)
	if err := p.store.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("persist accuracy report: %w", err)
	}

	sub := &Submission{
		Candidate: cand,
		Report:    report,
		Matches:   matches,
	}

	reason := p.routingReason(cand, report)
	if reason == "" {
		p.accept(ctx, cand)
		slog.Info("candidate auto-accepted",
			"candidate_id", cand.ID,
			"overall", report.Overall,
			"confidence", report.Confidence,
		)
		return sub, nil
	}

	minLevel := expert.Level("")
	if slices.Contains(p.cfg.HighRiskDomains, cand.Domain) {
		minLevel = expert.LevelSpecialist
	}
	req, err := p.orchestrator.SubmitForReview(ctx, cand, SubmitParams{
		Priority:      priority,
		MinLevel:      minLevel,
		MemoryEntryID: memoryEntryID,
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.orchestrator.Assign(ctx, req.ID); err != nil {
		slog.Warn("assign review request", "request_id", req.ID, "error", err)
	}
	if fresh, err := p.store.GetRequest(ctx, req.ID); err == nil {
		req = fresh
	}

	sub.Request = req
	sub.Routed = true
	sub.Reason = reason
	slog.Info("candidate routed to review",
		"candidate_id", cand.ID,
		"request_id", req.ID,
		"reason", reason,
	)
	return sub, nil
}

// referenceFrom picks a trusted reference translation for semantic scoring:
// the best exact or fuzzy match for the same source. When that match already
// carries the candidate's exact translation it is also the memory entry to
// reinforce after the verdict.
func (p *Pipeline) referenceFrom(cand *candidate.Candidate, matches []memory.Match) (reference, entryID string) {
	for _, m := range matches {
		if m.Type != memory.MatchExact && m.Type != memory.MatchFuzzy {
			continue
		}
		if reference == "" {
			reference = m.Entry.TargetText
		}
		if m.Entry.TargetText == cand.TranslatedText {
			return reference, m.Entry.ID
		}
	}
	return reference, ""
}

// routingReason decides whether a candidate needs human eyes. Empty means
// the gate accepts it automatically.
func (p *Pipeline) routingReason(cand *candidate.Candidate, report *scoring.Report) string {
	if report.Overall < p.cfg.ReviewThreshold {
		return fmt.Sprintf("overall score %.1f below threshold %.1f", report.Overall, p.cfg.ReviewThreshold)
	}
	if report.Confidence < p.cfg.MinConfidence {
		return fmt.Sprintf("scoring confidence %.2f below %.2f", report.Confidence, p.cfg.MinConfidence)
	}
	for _, issue := range report.Issues {
		if issue.Severity == scoring.SeverityCritical {
			return "critical scoring issue: " + issue.Description
		}
	}
	if slices.Contains(p.cfg.HighRiskDomains, cand.Domain) {
		return "high-risk domain " + cand.Domain
	}
	return ""
}

// accept indexes an auto-accepted translation so future submissions of the
// same source can match it.
func (p *Pipeline) accept(ctx context.Context, cand *candidate.Candidate) {
	entry := &memory.Entry{
		SourceText: cand.SourceText,
		TargetText: cand.TranslatedText,
		SourceLang: cand.SourceLang,
		TargetLang: cand.TargetLang,
		Domain:     cand.Domain,
	}
	if err := p.memories.Add(ctx, entry); err != nil {
		slog.Warn("index accepted translation", "candidate_id", cand.ID, "error", err)
	}
}
