package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/medtrans/qagate/internal/domain/candidate"
	"github.com/medtrans/qagate/internal/domain/event"
	"github.com/medtrans/qagate/internal/domain/expert"
	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/port/database"
	"github.com/medtrans/qagate/internal/port/messagequeue"
)

// Orchestrator owns the review request lifecycle: intake against the policy
// table, expert assignment, decision recording and requeue of expired
// requests. Verdict evaluation itself lives in the consensus Engine.
type Orchestrator struct {
	store     database.Store
	directory *Directory
	queue     messagequeue.Queue
	policies  review.PolicyTable
	engine    *Engine
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator. The consensus engine is attached
// separately so both sides can be built before the callback wiring.
func NewOrchestrator(store database.Store, directory *Directory, queue messagequeue.Queue, policies review.PolicyTable) *Orchestrator {
	return &Orchestrator{
		store:     store,
		directory: directory,
		queue:     queue,
		policies:  policies,
		now:       time.Now,
	}
}

// AttachEngine wires the consensus engine evaluated after each decision.
func (o *Orchestrator) AttachEngine(e *Engine) { o.engine = e }

// SubmitParams carries the routing decisions the pipeline made for a
// candidate entering human review.
type SubmitParams struct {
	Priority      review.Priority
	MinLevel      expert.Level
	MemoryEntryID string
}

// PolicyFor resolves the review policy governing a content type. The
// "general" policy covers candidates that carry no content type at all; an
// explicitly unknown type is a caller error (review.ErrNoPolicy).
func (o *Orchestrator) PolicyFor(contentType string) (review.Policy, error) {
	if contentType == "" {
		contentType = "general"
	}
	return o.policies.Lookup(contentType)
}

// SubmitForReview looks up the content-type policy and creates a review
// request in PENDING.
func (o *Orchestrator) SubmitForReview(ctx context.Context, cand *candidate.Candidate, p SubmitParams) (*review.Request, error) {
	contentType := cand.ContentType
	if contentType == "" {
		contentType = "general"
	}
	policy, err := o.PolicyFor(contentType)
	if err != nil {
		return nil, err
	}
	if p.Priority == "" {
		p.Priority = review.PriorityNormal
	}

	now := o.now()
	req := &review.Request{
		ID:              uuid.NewString(),
		CandidateID:     cand.ID,
		MemoryEntryID:   p.MemoryEntryID,
		RequiredDomains: []string{cand.Domain},
		RequiredRoles:   policy.RequiredRoles,
		MinReviewers:    policy.MinReviewers,
		MinLevel:        string(p.MinLevel),
		Priority:        p.Priority,
		Consensus:       policy.Consensus,
		Deadline:        policy.Deadline(now, p.Priority),
		Status:          review.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("persist review request: %w", err)
	}

	slog.Info("review request created",
		"request_id", req.ID,
		"candidate_id", cand.ID,
		"content_type", contentType,
		"priority", req.Priority,
		"min_reviewers", req.MinReviewers,
		"deadline", req.Deadline,
	)
	return req, nil
}

// Assign staffs a pending request with the top-ranked eligible experts,
// covering every required role and the reviewer minimum. The transition
// PENDING→IN_REVIEW is a compare-and-set so concurrent assigners cannot
// double-staff the same request. When too few experts are available the
// request drops back to PENDING, keeps whatever assignments were made and
// is flagged for escalation; it never silently runs under-staffed.
func (o *Orchestrator) Assign(ctx context.Context, requestID string) ([]review.Assignment, error) {
	req, err := o.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, review.ErrAlreadyTerminal
	}

	ok, err := o.store.CASRequestStatus(ctx, req.ID, review.StatusPending, review.StatusInReview)
	if err != nil {
		return nil, fmt.Errorf("claim request for assignment: %w", err)
	}
	if !ok {
		// Another assigner won the race or the request moved on.
		return nil, nil
	}

	cand, err := o.store.GetCandidate(ctx, req.CandidateID)
	if err != nil {
		return nil, err
	}

	existing, err := o.store.ListAssignments(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	taken := make(map[string]bool, len(existing))
	coveredRoles := make(map[string]bool)
	for _, a := range existing {
		taken[a.ExpertID] = true
		if a.Role != "" {
			coveredRoles[a.Role] = true
		}
	}

	ranked, err := o.directory.FindCandidates(ctx, expert.Requirements{
		Domains:     req.RequiredDomains,
		SourceLang:  cand.SourceLang,
		TargetLang:  cand.TargetLang,
		MinLevel:    expert.Level(req.MinLevel),
		ContentType: cand.ContentType,
	})
	if err != nil && !errors.Is(err, expert.ErrNoEligibleExpert) {
		return nil, err
	}

	var neededRoles []string
	for _, role := range req.RequiredRoles {
		if !coveredRoles[role] {
			neededRoles = append(neededRoles, role)
		}
	}

	var created []review.Assignment
	staffed := len(existing)
	for _, r := range ranked {
		if staffed >= req.MinReviewers && len(neededRoles) == 0 {
			break
		}
		if taken[r.Expert.ID] {
			continue
		}

		role := ""
		for i, need := range neededRoles {
			if r.Expert.HasRole(need) {
				role = need
				neededRoles = slices.Delete(neededRoles, i, i+1)
				break
			}
		}
		if role == "" && staffed >= req.MinReviewers {
			continue
		}

		a := review.Assignment{
			ID:         uuid.NewString(),
			RequestID:  req.ID,
			ExpertID:   r.Expert.ID,
			Role:       role,
			AssignedAt: o.now(),
		}
		if err := o.store.CreateAssignment(ctx, &a); err != nil {
			if errors.Is(err, review.ErrAlreadyAssigned) {
				continue
			}
			return created, fmt.Errorf("persist assignment: %w", err)
		}
		if err := o.directory.ReserveSlot(ctx, r.Expert.ID); err != nil {
			slog.Warn("reserve assignment slot", "expert_id", r.Expert.ID, "error", err)
		}
		taken[r.Expert.ID] = true
		staffed++
		created = append(created, a)
	}

	// Assignment notifications fan out in parallel, at most once per
	// (request, expert).
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range created {
		g.Go(func() error {
			publishEvent(gctx, o.queue, messagequeue.SubjectReviewAssigned, event.Assigned{
				RequestID:   req.ID,
				CandidateID: req.CandidateID,
				ExpertID:    a.ExpertID,
				Role:        a.Role,
				Priority:    string(req.Priority),
				Deadline:    req.Deadline,
			})
			return nil
		})
	}
	_ = g.Wait()

	if staffed < req.MinReviewers || len(neededRoles) > 0 {
		return created, o.escalate(ctx, req, staffed, "insufficient eligible experts")
	}

	slog.Info("review request staffed",
		"request_id", req.ID,
		"assignments", staffed,
	)
	return created, nil
}

// escalate drops an under-staffed request back to PENDING, flags it and
// emits an escalation event for supervisor attention.
func (o *Orchestrator) escalate(ctx context.Context, req *review.Request, staffed int, reason string) error {
	if _, err := o.store.CASRequestStatus(ctx, req.ID, review.StatusInReview, review.StatusPending); err != nil {
		return fmt.Errorf("return request to pending: %w", err)
	}
	req.Status = review.StatusPending
	req.Escalated = true
	req.UpdatedAt = o.now()
	if err := o.store.UpdateRequest(ctx, req); err != nil {
		return fmt.Errorf("flag request escalated: %w", err)
	}

	publishEvent(ctx, o.queue, messagequeue.SubjectReviewEscalated, event.Escalated{
		RequestID: req.ID,
		Reason:    reason,
		Assigned:  staffed,
		Required:  req.MinReviewers,
	})
	slog.Warn("review request escalated",
		"request_id", req.ID,
		"reason", reason,
		"assigned", staffed,
		"required", req.MinReviewers,
	)
	return nil
}

// SubmitDecision records one expert's verdict on a request. A second
// submission from the same expert is rejected with ErrDuplicateDecision and
// leaves all state untouched. On success the expert's rolling statistics are
// updated and the consensus engine evaluates the request.
func (o *Orchestrator) SubmitDecision(ctx context.Context, requestID, expertID string, decision review.Decision, confidence float64, issues []string, suggestedRevision string) error {
	if !decision.Valid() {
		return fmt.Errorf("%w: %q", review.ErrInvalidDecision, decision)
	}

	req, err := o.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return review.ErrAlreadyTerminal
	}

	a, err := o.store.GetAssignment(ctx, requestID, expertID)
	if err != nil {
		if errors.Is(err, review.ErrNotFound) || errors.Is(err, review.ErrNotAssigned) {
			return review.ErrNotAssigned
		}
		return err
	}
	if a.Completed() {
		return review.ErrDuplicateDecision
	}

	now := o.now()
	a.Decision = decision
	a.Confidence = confidence
	a.Issues = issues
	a.SuggestedRevision = suggestedRevision
	a.CompletedAt = &now
	if err := o.store.CompleteAssignment(ctx, a); err != nil {
		return err
	}

	if err := o.directory.RecordOutcome(ctx, expertID, decision, confidence, now.Sub(a.AssignedAt), req.RequiredDomains); err != nil {
		slog.Warn("record expert outcome", "expert_id", expertID, "error", err)
	}

	publishEvent(ctx, o.queue, messagequeue.SubjectDecisionSubmitted, event.DecisionSubmitted{
		RequestID:  requestID,
		ExpertID:   expertID,
		Decision:   string(decision),
		Confidence: confidence,
	})
	slog.Info("decision submitted",
		"request_id", requestID,
		"expert_id", expertID,
		"decision", decision,
	)

	if o.engine != nil {
		return o.engine.Evaluate(ctx, requestID)
	}
	return nil
}

// Cancel withdraws a request. Before any completed decision this is a hard
// cancel: the request terminates with no consensus record. Once at least one
// decision exists the withdrawal only soft-cancels — the request is marked
// CANCELLED but completed decisions are kept for audit and feedback.
func (o *Orchestrator) Cancel(ctx context.Context, requestID string) error {
	req, err := o.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return review.ErrAlreadyTerminal
	}

	assignments, err := o.store.ListAssignments(ctx, requestID)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	hasDecision := false
	for _, a := range assignments {
		if a.Completed() {
			hasDecision = true
			break
		}
	}

	ok, err := o.store.CASRequestStatus(ctx, req.ID, req.Status, review.StatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel request: %w", err)
	}
	if !ok {
		return review.ErrAlreadyTerminal
	}

	if hasDecision && o.engine != nil {
		if err := o.engine.recordCancelled(ctx, req, assignments); err != nil {
			return err
		}
	}
	slog.Info("review request cancelled",
		"request_id", req.ID,
		"soft", hasDecision,
	)
	return nil
}

// Result returns the terminal consensus record for a request. A request
// withdrawn before any completed decision has none; that surfaces as
// ErrHardCancelled rather than a bare not-found.
func (o *Orchestrator) Result(ctx context.Context, requestID string) (*review.ConsensusResult, error) {
	res, err := o.store.GetConsensusResult(ctx, requestID)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, review.ErrNotFound) {
		return nil, err
	}
	req, reqErr := o.store.GetRequest(ctx, requestID)
	if reqErr != nil {
		return nil, reqErr
	}
	if req.Status == review.StatusCancelled {
		return nil, review.ErrHardCancelled
	}
	return nil, err
}

// RequeueExpired gives an expired request one second chance with relaxed
// expertise constraints. A request that already used its requeue escalates
// to the supervisor queue instead and returns ErrAlreadyRequeued.
func (o *Orchestrator) RequeueExpired(ctx context.Context, req *review.Request) error {
	if req.Requeued {
		req.Escalated = true
		req.UpdatedAt = o.now()
		if err := o.store.UpdateRequest(ctx, req); err != nil {
			return fmt.Errorf("flag exhausted request: %w", err)
		}
		publishEvent(ctx, o.queue, messagequeue.SubjectReviewEscalated, event.Escalated{
			RequestID: req.ID,
			Reason:    "expired after requeue",
			Required:  req.MinReviewers,
		})
		return review.ErrAlreadyRequeued
	}

	policy, err := o.policies.Lookup(contentTypeOf(ctx, o.store, req))
	if err != nil {
		return err
	}

	req.Requeued = true
	req.MinLevel = ""
	req.Deadline = policy.Deadline(o.now(), req.Priority)
	req.UpdatedAt = o.now()
	if err := o.store.UpdateRequest(ctx, req); err != nil {
		return fmt.Errorf("update requeued request: %w", err)
	}
	ok, err := o.store.CASRequestStatus(ctx, req.ID, review.StatusExpired, review.StatusPending)
	if err != nil {
		return fmt.Errorf("reopen expired request: %w", err)
	}
	if !ok {
		return nil
	}

	slog.Info("expired request requeued",
		"request_id", req.ID,
		"deadline", req.Deadline,
	)
	_, err = o.Assign(ctx, req.ID)
	return err
}

func contentTypeOf(ctx context.Context, store database.Store, req *review.Request) string {
	cand, err := store.GetCandidate(ctx, req.CandidateID)
	if err != nil || cand.ContentType == "" {
		return "general"
	}
	return cand.ContentType
}
