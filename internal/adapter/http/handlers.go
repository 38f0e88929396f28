package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/medtrans/qagate/internal/domain/candidate"
	"github.com/medtrans/qagate/internal/domain/expert"
	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/domain/scoring"
	"github.com/medtrans/qagate/internal/port/database"
	"github.com/medtrans/qagate/internal/service"
)

// Handlers bundles the service dependencies for the operator API.
type Handlers struct {
	pipeline     *service.Pipeline
	directory    *service.Directory
	orchestrator *service.Orchestrator
	memories     *service.MemoryIndex
	store        database.Store
}

// NewHandlers creates the handler set.
func NewHandlers(pipeline *service.Pipeline, directory *service.Directory, orchestrator *service.Orchestrator, memories *service.MemoryIndex, store database.Store) *Handlers {
	return &Handlers{
		pipeline:     pipeline,
		directory:    directory,
		orchestrator: orchestrator,
		memories:     memories,
		store:        store,
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitCandidateRequest struct {
	SourceText     string `json:"source_text"`
	TranslatedText string `json:"translated_text"`
	SourceLang     string `json:"source_lang"`
	TargetLang     string `json:"target_lang"`
	Domain         string `json:"domain"`
	ContentType    string `json:"content_type"`
	SubmittedBy    string `json:"submitted_by"`
	Priority       string `json:"priority"`
}

// SubmitCandidate runs a translation candidate through the gate.
func (h *Handlers) SubmitCandidate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[submitCandidateRequest](w, r)
	if !ok {
		return
	}

	priority := review.PriorityNormal
	if req.Priority != "" {
		p := review.Priority(req.Priority)
		valid := false
		for _, known := range review.Priorities {
			if p == known {
				valid = true
				break
			}
		}
		if !valid {
			writeError(w, http.StatusBadRequest, "unknown priority: "+req.Priority)
			return
		}
		priority = p
	}

	cand := &candidate.Candidate{
		SourceText:     req.SourceText,
		TranslatedText: req.TranslatedText,
		SourceLang:     req.SourceLang,
		TargetLang:     req.TargetLang,
		Domain:         req.Domain,
		ContentType:    req.ContentType,
		SubmittedBy:    req.SubmittedBy,
	}

	sub, err := h.pipeline.Submit(r.Context(), cand, priority)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type candidateResponse struct {
	Candidate *candidate.Candidate `json:"candidate"`
	Report    *scoring.Report      `json:"report,omitempty"`
}

// GetCandidate returns a candidate with its accuracy report when scored.
func (h *Handlers) GetCandidate(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	cand, err := h.store.GetCandidate(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := candidateResponse{Candidate: cand}
	if report, err := h.store.GetReport(r.Context(), id); err == nil {
		resp.Report = report
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterExpert registers a reviewer profile.
func (h *Handlers) RegisterExpert(w http.ResponseWriter, r *http.Request) {
	profile, ok := readJSON[expert.Expert](w, r)
	if !ok {
		return
	}

	if err := h.directory.Register(r.Context(), &profile); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

// GetExpert returns a reviewer profile.
func (h *Handlers) GetExpert(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.GetExpert(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetExpertStats returns a reviewer's running performance statistics.
func (h *Handlers) GetExpertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.directory.Stats(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListPendingReviews lists requests awaiting assignment or decisions.
// Supports content_type, priority, and escalated query filters.
func (h *Handlers) ListPendingReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.PendingFilter{
		ContentType: q.Get("content_type"),
		Priority:    review.Priority(q.Get("priority")),
	}
	if raw := q.Get("escalated"); raw != "" {
		escalated, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid escalated filter")
			return
		}
		filter.Escalated = &escalated
	}

	requests, err := h.store.ListPendingRequests(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests, "count": len(requests)})
}

type reviewResponse struct {
	Request     *review.Request         `json:"request"`
	Assignments []review.Assignment     `json:"assignments"`
	Result      *review.ConsensusResult `json:"result,omitempty"`
}

// GetReview returns a request with its assignments and, once terminal,
// its consensus result.
func (h *Handlers) GetReview(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	req, err := h.store.GetRequest(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	assignments, err := h.store.ListAssignments(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := reviewResponse{Request: req, Assignments: assignments}
	if req.Status.Terminal() {
		if res, err := h.store.GetConsensusResult(r.Context(), id); err == nil {
			resp.Result = res
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// AssignReviewers staffs a pending request with eligible experts.
func (h *Handlers) AssignReviewers(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.orchestrator.Assign(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments, "count": len(assignments)})
}

type decisionRequest struct {
	ExpertID          string   `json:"expert_id"`
	Decision          string   `json:"decision"`
	Confidence        float64  `json:"confidence"`
	Issues            []string `json:"issues,omitempty"`
	SuggestedRevision string   `json:"suggested_revision,omitempty"`
}

// SubmitDecision records an expert's verdict on an assignment.
func (h *Handlers) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[decisionRequest](w, r)
	if !ok {
		return
	}
	if body.ExpertID == "" {
		writeError(w, http.StatusBadRequest, "expert_id is required")
		return
	}

	err := h.orchestrator.SubmitDecision(r.Context(), urlParam(r, "id"), body.ExpertID,
		review.Decision(body.Decision), body.Confidence, body.Issues, body.SuggestedRevision)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// CancelReview withdraws a request. Completed decisions are retained.
func (h *Handlers) CancelReview(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Cancel(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GetReviewResult returns the consensus result for a terminal request.
func (h *Handlers) GetReviewResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.orchestrator.Result(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ReviewStats aggregates request outcomes since an optional RFC 3339 cutoff.
func (h *Handlers) ReviewStats(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	stats, err := h.store.ReviewStats(r.Context(), since)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SearchMemory queries the translation memory for similar past translations.
func (h *Handlers) SearchMemory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("text")
	sourceLang := q.Get("source_lang")
	targetLang := q.Get("target_lang")
	if text == "" || sourceLang == "" || targetLang == "" {
		writeError(w, http.StatusBadRequest, "text, source_lang and target_lang are required")
		return
	}

	minConfidence := 0.0
	if raw := q.Get("min_confidence"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			writeError(w, http.StatusBadRequest, "min_confidence must be in [0,1]")
			return
		}
		minConfidence = parsed
	}

	matches, err := h.memories.Search(r.Context(), text, sourceLang, targetLang, q.Get("domain"), minConfidence)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "count": len(matches)})
}

// CheckConsistency reports how uniformly a term has been translated.
func (h *Handlers) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := q.Get("term")
	sourceLang := q.Get("source_lang")
	targetLang := q.Get("target_lang")
	if term == "" || sourceLang == "" || targetLang == "" {
		writeError(w, http.StatusBadRequest, "term, source_lang and target_lang are required")
		return
	}

	report, err := h.memories.CheckConsistency(r.Context(), term, sourceLang, targetLang)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
