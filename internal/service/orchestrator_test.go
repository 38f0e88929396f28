package service

import (
	"context"
	"errors"
	"testing"

	"github.com/medtrans/qagate/internal/domain/candidate"
	"github.com/medtrans/qagate/internal/domain/expert"
	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/port/messagequeue"
)

// seedPanel registers one verified specialist per prescription review role.
func seedPanel(t *testing.T, g *gate) {
	t.Helper()
	roles := []string{review.RoleMedicalProfessional, review.RoleNativeSpeaker, review.RoleClinicalReviewer}
	for i, role := range roles {
		registerExpert(t, g, &expert.Expert{
			ID:    "panel-" + role,
			Name:  "Panel Reviewer " + string(rune('A'+i)),
			Roles: []string{role},
		})
	}
}

func storedCandidate(t *testing.T, g *gate, contentType string) *candidate.Candidate {
	t.Helper()
	cand := prescriptionCandidate()
	cand.ContentType = contentType
	if err := g.store.CreateCandidate(context.Background(), cand); err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	return cand
}

func submitRequest(t *testing.T, g *gate, contentType string) *review.Request {
	t.Helper()
	cand := storedCandidate(t, g, contentType)
	req, err := g.orchestrator.SubmitForReview(context.Background(), cand, SubmitParams{
		Priority: review.PriorityNormal,
		MinLevel: expert.LevelSpecialist,
	})
	if err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	return req
}

func TestSubmitForReviewUnknownContentType(t *testing.T) {
	g := newGate()
	cand := storedCandidate(t, g, "shipping_label")
	_, err := g.orchestrator.SubmitForReview(context.Background(), cand, SubmitParams{})
	if !errors.Is(err, review.ErrNoPolicy) {
		t.Fatalf("err = %v, want ErrNoPolicy", err)
	}
}

func TestAssignStaffsPrescription(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	seedPanel(t, g)
	req := submitRequest(t, g, "prescription")

	created, err := g.orchestrator.Assign(ctx, req.ID)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created %d assignments, want 3", len(created))
	}

	roles := map[string]bool{}
	for _, a := range created {
		roles[a.Role] = true
	}
	for _, want := range []string{review.RoleMedicalProfessional, review.RoleNativeSpeaker, review.RoleClinicalReviewer} {
		if !roles[want] {
			t.Errorf("no assignment covers role %s", want)
		}
	}

	got, _ := g.store.GetRequest(ctx, req.ID)
	if got.Status != review.StatusInReview {
		t.Errorf("status = %s, want %s", got.Status, review.StatusInReview)
	}
	if n := g.queue.count(messagequeue.SubjectReviewAssigned); n != 3 {
		t.Errorf("published %d assignment events, want 3", n)
	}

	e, _ := g.store.GetExpert(ctx, "panel-"+review.RoleNativeSpeaker)
	if e.ActiveAssignments != 1 {
		t.Errorf("active assignments = %d, want 1", e.ActiveAssignments)
	}
}

func TestAssignIsCompareAndSet(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	seedPanel(t, g)
	req := submitRequest(t, g, "prescription")

	if _, err := g.orchestrator.Assign(ctx, req.ID); err != nil {
		t.Fatalf("first Assign: %v", err)
	}
	second, err := g.orchestrator.Assign(ctx, req.ID)
	if err != nil {
		t.Fatalf("second Assign: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second assigner created %d assignments, want 0", len(second))
	}
	assignments, _ := g.store.ListAssignments(ctx, req.ID)
	if len(assignments) != 3 {
		t.Errorf("total assignments = %d, want 3", len(assignments))
	}
}

func TestAssignPartialStaffingEscalates(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	// One reviewer for a three-reviewer policy.
	registerExpert(t, g, &expert.Expert{ID: "lone", Roles: []string{review.RoleMedicalProfessional}})
	req := submitRequest(t, g, "prescription")

	created, err := g.orchestrator.Assign(ctx, req.ID)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d assignments, want the 1 available", len(created))
	}

	got, _ := g.store.GetRequest(ctx, req.ID)
	if got.Status != review.StatusPending {
		t.Errorf("status = %s, want %s (never silently under-staffed)", got.Status, review.StatusPending)
	}
	if !got.Escalated {
		t.Error("request must be flagged for escalation")
	}
	if g.queue.count(messagequeue.SubjectReviewEscalated) != 1 {
		t.Error("expected an escalation event")
	}
}

func TestSubmitDecisionDuplicateIsRejected(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	seedPanel(t, g)
	req := submitRequest(t, g, "prescription")
	if _, err := g.orchestrator.Assign(ctx, req.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	expertID := "panel-" + review.RoleMedicalProfessional
	if err := g.orchestrator.SubmitDecision(ctx, req.ID, expertID, review.DecisionApproved, 0.9, nil, ""); err != nil {
		t.Fatalf("first decision: %v", err)
	}
	err := g.orchestrator.SubmitDecision(ctx, req.ID, expertID, review.DecisionRejected, 0.9, nil, "")
	if !errors.Is(err, review.ErrDuplicateDecision) {
		t.Fatalf("err = %v, want ErrDuplicateDecision", err)
	}

	// The original decision survives untouched.
	a, _ := g.store.GetAssignment(ctx, req.ID, expertID)
	if a.Decision != review.DecisionApproved {
		t.Errorf("decision = %s, original must be preserved", a.Decision)
	}
	e, _ := g.store.GetExpert(ctx, expertID)
	if e.Stats.Completed != 1 {
		t.Errorf("completed outcomes = %d, want 1", e.Stats.Completed)
	}
}

func TestSubmitDecisionRequiresAssignment(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	seedPanel(t, g)
	registerExpert(t, g, &expert.Expert{ID: "outsider"})
	req := submitRequest(t, g, "prescription")
	if _, err := g.orchestrator.Assign(ctx, req.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	err := g.orchestrator.SubmitDecision(ctx, req.ID, "outsider", review.DecisionApproved, 0.9, nil, "")
	if !errors.Is(err, review.ErrNotAssigned) {
		t.Fatalf("err = %v, want ErrNotAssigned", err)
	}
}

func TestStrictConsensusAllApprove(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	seedPanel(t, g)
	req := submitRequest(t, g, "prescription")
	created, err := g.orchestrator.Assign(ctx, req.ID)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	for _, a := range created {
		if err := g.orchestrator.SubmitDecision(ctx, req.ID, a.ExpertID, review.DecisionApproved, 0.9, nil, ""); err != nil {
			t.Fatalf("SubmitDecision(%s): %v", a.ExpertID, err)
		}
	}

	got, _ := g.store.GetRequest(ctx, req.ID)
	if got.Status != review.StatusApproved {
		t.Fatalf("status = %s, want %s", got.Status, review.StatusApproved)
	}
	res, err := g.orchestrator.Result(ctx, req.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.FinalTranslation != "Tomar 500 mg dos veces al día" {
		t.Errorf("final translation = %q, want the submitted translation", res.FinalTranslation)
	}
	if g.queue.count(messagequeue.SubjectConsensusReached) != 1 {
		t.Error("expected exactly one consensus event")
	}
}

func TestStrictConsensusSingleRejection(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	seedPanel(t, g)
	req := submitRequest(t, g, "prescription")
	created, _ := g.orchestrator.Assign(ctx, req.ID)

	decisions := []review.Decision{review.DecisionApproved, review.DecisionRejected, review.DecisionApproved}
	for i, a := range created {
		if err := g.orchestrator.SubmitDecision(ctx, req.ID, a.ExpertID, decisions[i], 0.8, []string{"ambiguous dosing instruction"}, ""); err != nil {
			t.Fatalf("SubmitDecision: %v", err)
		}
	}

	got, _ := g.store.GetRequest(ctx, req.ID)
	if got.Status == review.StatusApproved {
		t.Fatal("one rejection under strict consensus must not approve")
	}
	if got.Status != review.StatusRejected {
		t.Errorf("status = %s, want %s", got.Status, review.StatusRejected)
	}
}

func TestMajorityTieRequestsRevision(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	registerExpert(t, g, &expert.Expert{ID: "m1", Roles: []string{review.RoleMedicalProfessional}})
	registerExpert(t, g, &expert.Expert{ID: "m2", Roles: []string{review.RoleNativeSpeaker}})
	req := submitRequest(t, g, "consent_form")
	created, err := g.orchestrator.Assign(ctx, req.ID)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d assignments, want 2", len(created))
	}

	if err := g.orchestrator.SubmitDecision(ctx, req.ID, created[0].ExpertID, review.DecisionApproved, 0.9, nil, ""); err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}
	if err := g.orchestrator.SubmitDecision(ctx, req.ID, created[1].ExpertID, review.DecisionRejected, 0.9, nil, ""); err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}

	got, _ := g.store.GetRequest(ctx, req.ID)
	if got.Status != review.StatusRevisionRequested {
		t.Errorf("status = %s, want %s on a tie", got.Status, review.StatusRevisionRequested)
	}
}

func TestRevisionBecomesFinalTranslation(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	seedPanel(t, g)
	req := submitRequest(t, g, "prescription")
	created, _ := g.orchestrator.Assign(ctx, req.ID)

	revised := "Tomar 500 mg dos veces al día con alimentos"
	for i, a := range created {
		suggestion := ""
		if i == len(created)-1 {
			suggestion = revised
		}
		g.clock.advance(1) // distinct completion times
		if err := g.orchestrator.SubmitDecision(ctx, req.ID, a.ExpertID, review.DecisionApproved, 0.9, nil, suggestion); err != nil {
			t.Fatalf("SubmitDecision: %v", err)
		}
	}

	res, err := g.orchestrator.Result(ctx, req.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.FinalTranslation != revised {
		t.Errorf("final translation = %q, want the latest suggested revision", res.FinalTranslation)
	}
}

func TestCancelHardBeforeDecisions(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	seedPanel(t, g)
	req := submitRequest(t, g, "prescription")
	if _, err := g.orchestrator.Assign(ctx, req.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if err := g.orchestrator.Cancel(ctx, req.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := g.store.GetRequest(ctx, req.ID)
	if got.Status != review.StatusCancelled {
		t.Fatalf("status = %s, want %s", got.Status, review.StatusCancelled)
	}
	if _, err := g.orchestrator.Result(ctx, req.ID); !errors.Is(err, review.ErrHardCancelled) {
		t.Errorf("Result err = %v, want ErrHardCancelled", err)
	}
	if err := g.orchestrator.Cancel(ctx, req.ID); !errors.Is(err, review.ErrAlreadyTerminal) {
		t.Errorf("second Cancel err = %v, want ErrAlreadyTerminal", err)
	}
}

func TestCancelSoftKeepsDecisions(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	seedPanel(t, g)
	req := submitRequest(t, g, "prescription")
	created, _ := g.orchestrator.Assign(ctx, req.ID)

	if err := g.orchestrator.SubmitDecision(ctx, req.ID, created[0].ExpertID, review.DecisionApproved, 0.9, nil, ""); err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}
	if err := g.orchestrator.Cancel(ctx, req.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	res, err := g.orchestrator.Result(ctx, req.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.FinalStatus != review.StatusCancelled || res.ConsensusReached {
		t.Errorf("result = %+v, want a non-consensus cancelled record", res)
	}
	a, _ := g.store.GetAssignment(ctx, req.ID, created[0].ExpertID)
	if !a.Completed() {
		t.Error("completed decision must survive a soft cancel")
	}
}
