package service

import (
	"context"
	"testing"

	"github.com/medtrans/qagate/internal/domain/feedback"
	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/port/messagequeue"
)

func terminalFixture(t *testing.T, g *gate, issues ...string) (*review.Request, []review.Assignment) {
	t.Helper()
	cand := storedCandidate(t, g, "prescription")
	req := &review.Request{ID: "req-1", CandidateID: cand.ID, Status: review.StatusApproved}

	now := g.clock.now()
	var assignments []review.Assignment
	for i, issue := range issues {
		assignments = append(assignments, review.Assignment{
			RequestID:   req.ID,
			ExpertID:    "e" + string(rune('1'+i)),
			Decision:    review.DecisionApproved,
			Issues:      []string{issue},
			CompletedAt: &now,
		})
	}
	return req, assignments
}

func TestImprovementSignalFiresAtThreshold(t *testing.T) {
	g := newGate()
	learner := NewLearner(g.store, g.memories, g.queue, 3, 5)
	learner.now = g.clock.now
	ctx := context.Background()

	req, assignments := terminalFixture(t, g, "missing frequency", "missing frequency")
	res := &review.ConsensusResult{RequestID: req.ID, FinalStatus: review.StatusRejected}

	learner.HandleTerminal(ctx, req, assignments, res)
	if g.queue.count(messagequeue.SubjectImprovementSignal) != 0 {
		t.Fatal("signal fired below threshold")
	}

	learner.HandleTerminal(ctx, req, assignments, res)
	if g.queue.count(messagequeue.SubjectImprovementSignal) != 1 {
		t.Fatal("signal did not fire at threshold")
	}

	// The bucket resets after firing; the next signal needs a fresh run.
	bucket, err := g.store.GetIssueBucket(ctx, feedback.BucketKey{
		SourceLang: "en", TargetLang: "es", Domain: "medications",
	})
	if err != nil {
		t.Fatalf("GetIssueBucket: %v", err)
	}
	if bucket.Total != 0 {
		t.Errorf("bucket total after signal = %d, want 0", bucket.Total)
	}
}

func TestIncompleteAssignmentsContributeNoIssues(t *testing.T) {
	g := newGate()
	learner := NewLearner(g.store, g.memories, g.queue, 1, 5)
	learner.now = g.clock.now

	cand := storedCandidate(t, g, "prescription")
	req := &review.Request{ID: "req-1", CandidateID: cand.ID}
	assignments := []review.Assignment{
		{RequestID: req.ID, ExpertID: "e1", Issues: []string{"never submitted"}}, // not completed
	}
	learner.HandleTerminal(context.Background(), req, assignments, &review.ConsensusResult{
		RequestID: req.ID, FinalStatus: review.StatusCancelled,
	})

	if g.queue.count(messagequeue.SubjectImprovementSignal) != 0 {
		t.Error("issues from incomplete assignments must not count")
	}
}

func TestVerdictReinforcesMemoryEntry(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	entry := seedEntry(t, g, "Take 500 mg twice daily", "Tomar 500 mg dos veces al día")

	cand := storedCandidate(t, g, "prescription")
	req := &review.Request{ID: "req-1", CandidateID: cand.ID, MemoryEntryID: entry.ID}

	g.learner.HandleTerminal(ctx, req, nil, &review.ConsensusResult{
		RequestID:        req.ID,
		FinalStatus:      review.StatusApproved,
		FinalTranslation: cand.TranslatedText,
	})
	got, _ := g.store.GetMemoryEntry(ctx, entry.ID)
	if got.Confidence != 0.51 {
		t.Errorf("confidence after approval = %v, want 0.51", got.Confidence)
	}

	g.learner.HandleTerminal(ctx, req, nil, &review.ConsensusResult{
		RequestID:   req.ID,
		FinalStatus: review.StatusRejected,
	})
	got, _ = g.store.GetMemoryEntry(ctx, entry.ID)
	if got.Confidence != 0.5 {
		t.Errorf("confidence after rejection = %v, want the 0.5 floor", got.Confidence)
	}
}

func TestApprovedTranslationEntersMemory(t *testing.T) {
	g := newGate()
	ctx := context.Background()
	cand := storedCandidate(t, g, "prescription")
	req := &review.Request{ID: "req-1", CandidateID: cand.ID}

	g.learner.HandleTerminal(ctx, req, nil, &review.ConsensusResult{
		RequestID:        req.ID,
		FinalStatus:      review.StatusApproved,
		FinalTranslation: "Tomar 500 mg dos veces al día",
	})

	entries, err := g.store.ListMemoryBySource(ctx, cand.SourceText, "en", "es")
	if err != nil {
		t.Fatalf("ListMemoryBySource: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("stored %d memory entries, want 1", len(entries))
	}
	if entries[0].TargetText != "Tomar 500 mg dos veces al día" {
		t.Errorf("stored target = %q", entries[0].TargetText)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("entry creation time not set")
	}
}
