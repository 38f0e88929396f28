package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medtrans/qagate/internal/domain/event"
	"github.com/medtrans/qagate/internal/domain/feedback"
	"github.com/medtrans/qagate/internal/domain/memory"
	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/port/database"
	"github.com/medtrans/qagate/internal/port/messagequeue"
)

// Learner closes the loop on terminal review outcomes. It mines reviewer
// issues into per-language-pair buckets, emits improvement signals when a
// pattern recurs, and feeds verdicts back into translation memory
// confidence.
type Learner struct {
	store     database.Store
	memories  *MemoryIndex
	queue     messagequeue.Queue
	threshold int
	topIssues int
	now       func() time.Time
}

// NewLearner creates a Learner. threshold is the recurring-issue count at
// which a bucket fires an improvement signal.
func NewLearner(store database.Store, memories *MemoryIndex, queue messagequeue.Queue, threshold, topIssues int) *Learner {
	return &Learner{
		store:     store,
		memories:  memories,
		queue:     queue,
		threshold: threshold,
		topIssues: topIssues,
		now:       time.Now,
	}
}

// HandleTerminal is the consensus engine's terminal observer. It never
// fails the review lifecycle: learning errors are logged and dropped.
func (l *Learner) HandleTerminal(ctx context.Context, req *review.Request, assignments []review.Assignment, res *review.ConsensusResult) {
	cand, err := l.store.GetCandidate(ctx, req.CandidateID)
	if err != nil {
		slog.Warn("feedback: load candidate", "request_id", req.ID, "error", err)
		return
	}

	if err := l.mineIssues(ctx, cand.SourceLang, cand.TargetLang, cand.Domain, assignments); err != nil {
		slog.Warn("feedback: mine issues", "request_id", req.ID, "error", err)
	}

	switch res.FinalStatus {
	case review.StatusApproved:
		l.reinforce(ctx, req, true)
		l.remember(ctx, cand.SourceLang, cand.TargetLang, cand.Domain, cand.SourceText, res.FinalTranslation)
	case review.StatusRejected:
		l.reinforce(ctx, req, false)
	}
}

// mineIssues folds every reported issue from completed assignments into the
// (source_lang, target_lang, domain) bucket and fires an improvement signal
// when the bucket crosses the threshold. The bucket resets after a signal
// so the next one needs a fresh run of recurrences.
func (l *Learner) mineIssues(ctx context.Context, sourceLang, targetLang, domain string, assignments []review.Assignment) error {
	key := feedback.BucketKey{SourceLang: sourceLang, TargetLang: targetLang, Domain: domain}

	bucket, err := l.store.GetIssueBucket(ctx, key)
	if err != nil {
		if !errors.Is(err, review.ErrNotFound) {
			return fmt.Errorf("load issue bucket: %w", err)
		}
		bucket = &feedback.Bucket{Key: key}
	}

	now := l.now()
	added := 0
	for _, a := range assignments {
		if !a.Completed() {
			continue
		}
		for _, issue := range a.Issues {
			bucket.Add(issue, 1, now)
			added++
		}
	}
	if added == 0 {
		return nil
	}

	if bucket.Total >= l.threshold {
		publishEvent(ctx, l.queue, messagequeue.SubjectImprovementSignal, event.ImprovementSignal{
			SourceLang: sourceLang,
			TargetLang: targetLang,
			Domain:     domain,
			IssueCount: bucket.Total,
			TopIssues:  bucket.TopIssues(l.topIssues),
		})
		slog.Info("improvement signal emitted",
			"source_lang", sourceLang,
			"target_lang", targetLang,
			"domain", domain,
			"issues", bucket.Total,
		)
		bucket.Reset()
		bucket.UpdatedAt = now
	}

	if err := l.store.SaveIssueBucket(ctx, bucket); err != nil {
		return fmt.Errorf("save issue bucket: %w", err)
	}
	return nil
}

// reinforce nudges the memory entry that produced the reviewed translation,
// when the request used one.
func (l *Learner) reinforce(ctx context.Context, req *review.Request, helpful bool) {
	if req.MemoryEntryID == "" {
		return
	}
	if err := l.memories.Reinforce(ctx, req.MemoryEntryID, helpful); err != nil {
		slog.Warn("feedback: reinforce memory entry",
			"entry_id", req.MemoryEntryID,
			"helpful", helpful,
			"error", err,
		)
	}
}

// remember indexes an approved final translation so future candidates can
// match it.
func (l *Learner) remember(ctx context.Context, sourceLang, targetLang, domain, sourceText, finalText string) {
	if finalText == "" {
		return
	}
	entry := &memory.Entry{
		SourceText: sourceText,
		TargetText: finalText,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Domain:     domain,
	}
	if err := l.memories.Add(ctx, entry); err != nil {
		slog.Warn("feedback: index approved translation", "error", err)
	}
}
