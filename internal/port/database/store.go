// Package database defines the persistence port for the QA gate.
package database

import (
	"context"
	"time"

	"github.com/medtrans/qagate/internal/domain/candidate"
	"github.com/medtrans/qagate/internal/domain/expert"
	"github.com/medtrans/qagate/internal/domain/feedback"
	"github.com/medtrans/qagate/internal/domain/memory"
	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/domain/scoring"
)

// PendingFilter narrows the operator pending-review listing.
type PendingFilter struct {
	ContentType string
	Priority    review.Priority
	Escalated   *bool
}

// ReviewStats aggregates request outcomes for the operator surface.
type ReviewStats struct {
	Total            int                   `json:"total"`
	ByStatus         map[review.Status]int `json:"by_status"`
	AvgTimeToVerdict time.Duration         `json:"avg_time_to_verdict"`
}

// Store is the persistence port. The postgres adapter implements it for
// production; the memstore adapter implements it for tests and local runs.
type Store interface {
	// Candidates (immutable once created).
	CreateCandidate(ctx context.Context, c *candidate.Candidate) error
	GetCandidate(ctx context.Context, id string) (*candidate.Candidate, error)

	// Accuracy reports (one per candidate, never mutated).
	CreateReport(ctx context.Context, r *scoring.Report) error
	GetReport(ctx context.Context, candidateID string) (*scoring.Report, error)

	// Experts.
	UpsertExpert(ctx context.Context, e *expert.Expert) error
	GetExpert(ctx context.Context, id string) (*expert.Expert, error)
	ListExperts(ctx context.Context) ([]expert.Expert, error)

	// Translation memory.
	CreateMemoryEntry(ctx context.Context, e *memory.Entry) error
	GetMemoryEntry(ctx context.Context, id string) (*memory.Entry, error)
	UpdateMemoryEntry(ctx context.Context, e *memory.Entry) error
	ListMemoryBySource(ctx context.Context, sourceText, sourceLang, targetLang string) ([]memory.Entry, error)
	// ListMemoryEntries returns every stored entry; the memory index uses
	// it to rebuild the vector index at startup.
	ListMemoryEntries(ctx context.Context) ([]memory.Entry, error)

	// Review requests.
	CreateRequest(ctx context.Context, r *review.Request) error
	GetRequest(ctx context.Context, id string) (*review.Request, error)
	UpdateRequest(ctx context.Context, r *review.Request) error
	// CASRequestStatus transitions a request from one status to another only
	// if it still holds the expected status at write time. Returns false
	// without mutating anything when the precondition fails.
	CASRequestStatus(ctx context.Context, id string, from, to review.Status) (bool, error)
	ListRequestsByStatus(ctx context.Context, statuses ...review.Status) ([]review.Request, error)
	// ListDueRequests returns non-terminal requests whose deadline has passed.
	ListDueRequests(ctx context.Context, now time.Time) ([]review.Request, error)
	ListPendingRequests(ctx context.Context, f PendingFilter) ([]review.Request, error)

	// Assignments.
	CreateAssignment(ctx context.Context, a *review.Assignment) error
	GetAssignment(ctx context.Context, requestID, expertID string) (*review.Assignment, error)
	ListAssignments(ctx context.Context, requestID string) ([]review.Assignment, error)
	CompleteAssignment(ctx context.Context, a *review.Assignment) error

	// Consensus results (exactly one per terminal request).
	CreateConsensusResult(ctx context.Context, r *review.ConsensusResult) error
	GetConsensusResult(ctx context.Context, requestID string) (*review.ConsensusResult, error)

	// Feedback issue buckets.
	GetIssueBucket(ctx context.Context, key feedback.BucketKey) (*feedback.Bucket, error)
	SaveIssueBucket(ctx context.Context, b *feedback.Bucket) error

	// Operator statistics.
	ReviewStats(ctx context.Context, since time.Time) (*ReviewStats, error)
}
