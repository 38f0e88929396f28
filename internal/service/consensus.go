package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	qgotel "github.com/medtrans/qagate/internal/adapter/otel"
	"github.com/medtrans/qagate/internal/domain/event"
	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/port/database"
	"github.com/medtrans/qagate/internal/port/messagequeue"
)

// TerminalFunc observes a request reaching a terminal state, with its
// assignments and consensus record. Used by the feedback learner.
type TerminalFunc func(ctx context.Context, req *review.Request, assignments []review.Assignment, res *review.ConsensusResult)

// ExpiredFunc handles a freshly expired request, typically by requeuing it.
type ExpiredFunc func(ctx context.Context, req *review.Request) error

// Engine is the consensus state machine. It evaluates a request after every
// decision and on a periodic deadline sweep, and is the only writer of
// terminal verdict states.
type Engine struct {
	store      database.Store
	queue      messagequeue.Queue
	interval   time.Duration
	onTerminal []TerminalFunc
	onExpired  []ExpiredFunc
	now        func() time.Time
}

// NewEngine creates a consensus Engine sweeping deadlines at the given
// interval.
func NewEngine(store database.Store, queue messagequeue.Queue, sweepInterval time.Duration) *Engine {
	return &Engine{
		store:    store,
		queue:    queue,
		interval: sweepInterval,
		now:      time.Now,
	}
}

// OnTerminal registers a callback fired once per request reaching a
// terminal state with a consensus record.
func (e *Engine) OnTerminal(fn TerminalFunc) { e.onTerminal = append(e.onTerminal, fn) }

// OnExpired registers a callback fired once per request the sweep expires.
func (e *Engine) OnExpired(fn ExpiredFunc) { e.onExpired = append(e.onExpired, fn) }

// Evaluate applies the consensus rule to a request. It is a no-op until the
// quorum (reviewer minimum plus required roles, among completed decisions)
// is met, and a no-op on requests already terminal.
func (e *Engine) Evaluate(ctx context.Context, requestID string) error {
	ctx, span := qgotel.StartConsensusSpan(ctx, requestID)
	defer span.End()

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return nil
	}

	assignments, err := e.store.ListAssignments(ctx, requestID)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	if !review.QuorumMet(req, assignments) {
		return nil
	}

	verdict := review.Verdict(req.Consensus, review.TallyDecisions(assignments))
	return e.finalize(ctx, req, assignments, verdict, true)
}

// finalize writes the terminal state. The status write is a compare-and-set
// from the request's last observed status so a concurrent evaluator or the
// deadline sweep cannot produce a second verdict.
func (e *Engine) finalize(ctx context.Context, req *review.Request, assignments []review.Assignment, verdict review.Status, reached bool) error {
	ok, err := e.store.CASRequestStatus(ctx, req.ID, req.Status, verdict)
	if err != nil {
		return fmt.Errorf("write verdict: %w", err)
	}
	if !ok {
		return nil
	}
	req.Status = verdict
	req.UpdatedAt = e.now()

	final := ""
	if cand, err := e.store.GetCandidate(ctx, req.CandidateID); err == nil {
		final = review.FinalTranslation(cand.TranslatedText, assignments)
	}

	res := &review.ConsensusResult{
		RequestID:        req.ID,
		FinalStatus:      verdict,
		FinalTranslation: final,
		ConsensusReached: reached,
		CompletedAt:      e.now(),
	}
	if err := e.store.CreateConsensusResult(ctx, res); err != nil {
		return fmt.Errorf("persist consensus result: %w", err)
	}

	publishEvent(ctx, e.queue, messagequeue.SubjectConsensusReached, event.ConsensusReached{
		RequestID:        req.ID,
		CandidateID:      req.CandidateID,
		FinalStatus:      string(verdict),
		ConsensusReached: reached,
		CompletedAt:      res.CompletedAt,
	})
	slog.Info("consensus reached",
		"request_id", req.ID,
		"final_status", verdict,
		"mode", req.Consensus,
	)

	for _, fn := range e.onTerminal {
		fn(ctx, req, assignments, res)
	}
	return nil
}

// recordCancelled writes the consensus record for a soft-cancelled request.
// The orchestrator has already moved the status; completed decisions are
// retained and terminal observers still run so feedback sees them.
func (e *Engine) recordCancelled(ctx context.Context, req *review.Request, assignments []review.Assignment) error {
	req.Status = review.StatusCancelled
	res := &review.ConsensusResult{
		RequestID:        req.ID,
		FinalStatus:      review.StatusCancelled,
		ConsensusReached: false,
		CompletedAt:      e.now(),
	}
	if err := e.store.CreateConsensusResult(ctx, res); err != nil {
		return fmt.Errorf("persist consensus result: %w", err)
	}
	for _, fn := range e.onTerminal {
		fn(ctx, req, assignments, res)
	}
	return nil
}

// SweepDeadlines expires every overdue request whose quorum is still unmet.
// The EXPIRED write re-checks status at write time, so a request that got
// its last decision moments earlier keeps its verdict and re-running the
// sweep is a no-op.
func (e *Engine) SweepDeadlines(ctx context.Context) error {
	ctx, span := qgotel.StartSweepSpan(ctx)
	defer span.End()

	due, err := e.store.ListDueRequests(ctx, e.now())
	if err != nil {
		return fmt.Errorf("list due requests: %w", err)
	}

	for i := range due {
		req := &due[i]
		assignments, err := e.store.ListAssignments(ctx, req.ID)
		if err != nil {
			slog.Warn("sweep: list assignments", "request_id", req.ID, "error", err)
			continue
		}
		if review.QuorumMet(req, assignments) {
			// Quorum arrived before the sweep; resolve instead of expiring.
			if err := e.Evaluate(ctx, req.ID); err != nil {
				slog.Warn("sweep: evaluate", "request_id", req.ID, "error", err)
			}
			continue
		}

		ok, err := e.store.CASRequestStatus(ctx, req.ID, req.Status, review.StatusExpired)
		if err != nil {
			slog.Warn("sweep: expire request", "request_id", req.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		req.Status = review.StatusExpired

		publishEvent(ctx, e.queue, messagequeue.SubjectReviewExpired, event.Expired{
			RequestID:   req.ID,
			CandidateID: req.CandidateID,
			Deadline:    req.Deadline,
			Requeued:    !req.Requeued,
		})
		slog.Info("review request expired",
			"request_id", req.ID,
			"deadline", req.Deadline,
		)

		for _, fn := range e.onExpired {
			if err := fn(ctx, req); err != nil {
				slog.Warn("sweep: expired handler", "request_id", req.ID, "error", err)
			}
		}
	}
	return nil
}

// Run executes the deadline sweep on a ticker until the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	slog.Info("deadline sweeper started", "interval", e.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("deadline sweeper stopped")
			return
		case <-ticker.C:
			if err := e.SweepDeadlines(ctx); err != nil {
				slog.Error("deadline sweep failed", "error", err)
			}
		}
	}
}
