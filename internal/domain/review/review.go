// Package review defines the human-review coordination model: review
// requests, per-expert assignments, the consensus verdict and the status
// state machine that connects them.
package review

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a review request.
//
//	PENDING -> IN_REVIEW -> APPROVED | REJECTED | REVISION_REQUESTED
//	PENDING | IN_REVIEW  -> EXPIRED | CANCELLED
type Status string

const (
	StatusPending           Status = "pending"
	StatusInReview          Status = "in_review"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusRevisionRequested Status = "revision_requested"
	StatusExpired           Status = "expired"
	StatusCancelled         Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusRevisionRequested, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Priority orders requests and selects the deadline bucket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists all valid priorities.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// ConsensusMode selects the verdict rule once quorum is met.
type ConsensusMode string

const (
	ConsensusStrict   ConsensusMode = "strict"
	ConsensusMajority ConsensusMode = "majority"
)

// Reviewer roles referenced by content-type policies.
const (
	RoleMedicalProfessional = "medical_professional"
	RoleNativeSpeaker       = "native_speaker"
	RoleClinicalReviewer    = "clinical_reviewer"
)

var (
	ErrNotFound          = errors.New("review request not found")
	ErrDuplicateDecision = errors.New("expert already submitted a decision for this request")
	ErrAlreadyTerminal   = errors.New("review request is already in a terminal state")
	ErrDeadlinePast      = errors.New("deadline must be in the future")
	ErrNoPolicy          = errors.New("no review policy for content type")
	ErrAlreadyAssigned   = errors.New("expert already assigned to this request")
	ErrNotAssigned       = errors.New("expert is not assigned to this request")
	ErrHardCancelled     = errors.New("request withdrawn before any completed decision")
	ErrAlreadyRequeued   = errors.New("expired request was already requeued once")
	ErrInvalidDecision   = errors.New("invalid decision")
)

// Request is one unit of human-review coordination for a candidate.
type Request struct {
	ID              string        `json:"id"`
	CandidateID     string        `json:"candidate_id"`
	MemoryEntryID   string        `json:"memory_entry_id,omitempty"`
	RequiredDomains []string      `json:"required_domains"`
	RequiredRoles   []string      `json:"required_roles"`
	MinReviewers    int           `json:"min_reviewers"`
	MinLevel        string        `json:"min_level,omitempty"`
	Priority        Priority      `json:"priority"`
	Consensus       ConsensusMode `json:"consensus"`
	Deadline        time.Time     `json:"deadline"`
	Status          Status        `json:"status"`
	Escalated       bool          `json:"escalated"`
	Requeued        bool          `json:"requeued"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Decision is a reviewer's verdict on an assignment.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionRevision Decision = "revision"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionRevision:
		return true
	}
	return false
}

// Assignment binds one expert to one request. At most one assignment per
// (request, expert) pair; immutable once a decision is recorded.
type Assignment struct {
	ID                string     `json:"id"`
	RequestID         string     `json:"request_id"`
	ExpertID          string     `json:"expert_id"`
	Role              string     `json:"role,omitempty"`
	AssignedAt        time.Time  `json:"assigned_at"`
	Decision          Decision   `json:"decision,omitempty"`
	Confidence        float64    `json:"confidence,omitempty"`
	Issues            []string   `json:"issues,omitempty"`
	SuggestedRevision string     `json:"suggested_revision,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether the assignment carries a submitted decision.
func (a *Assignment) Completed() bool {
	return a.CompletedAt != nil
}

// ConsensusResult is the terminal verdict for a request. Exactly one per
// terminal request.
type ConsensusResult struct {
	RequestID        string    `json:"request_id"`
	FinalStatus      Status    `json:"final_status"`
	FinalTranslation string    `json:"final_translation"`
	ConsensusReached bool      `json:"consensus_reached"`
	CompletedAt      time.Time `json:"completed_at"`
}

// QuorumMet reports whether the completed assignments satisfy the request's
// quorum: at least MinReviewers decisions, with every required role present
// among the reviewers who completed.
func QuorumMet(req *Request, assignments []Assignment) bool {
	completed := 0
	roles := map[string]bool{}
	for i := range assignments {
		if !assignments[i].Completed() {
			continue
		}
		completed++
		if assignments[i].Role != "" {
			roles[assignments[i].Role] = true
		}
	}
	if completed < req.MinReviewers {
		return false
	}
	for _, r := range req.RequiredRoles {
		if !roles[r] {
			return false
		}
	}
	return true
}

// Tally counts completed decisions by kind.
type Tally struct {
	Approved  int
	Rejected  int
	Revision  int
	Completed int
}

// TallyDecisions summarizes the completed assignments.
func TallyDecisions(assignments []Assignment) Tally {
	var t Tally
	for i := range assignments {
		if !assignments[i].Completed() {
			continue
		}
		t.Completed++
		switch assignments[i].Decision {
		case DecisionApproved:
			t.Approved++
		case DecisionRejected:
			t.Rejected++
		case DecisionRevision:
			t.Revision++
		}
	}
	return t
}

// Verdict applies the request's consensus mode to a tally. It must only be
// called once QuorumMet holds.
func Verdict(mode ConsensusMode, t Tally) Status {
	switch mode {
	case ConsensusStrict:
		if t.Approved == t.Completed {
			return StatusApproved
		}
		if t.Rejected > 0 {
			return StatusRejected
		}
		return StatusRevisionRequested
	default: // majority
		if t.Approved > t.Rejected {
			return StatusApproved
		}
		if t.Rejected > t.Approved {
			return StatusRejected
		}
		return StatusRevisionRequested
	}
}

// FinalTranslation picks the text a terminal verdict settles on: the most
// recently completed non-empty suggested revision, else the original.
func FinalTranslation(original string, assignments []Assignment) string {
	final := original
	var latest time.Time
	for i := range assignments {
		a := &assignments[i]
		if !a.Completed() || a.SuggestedRevision == "" {
			continue
		}
		if a.CompletedAt.After(latest) {
			latest = *a.CompletedAt
			final = a.SuggestedRevision
		}
	}
	return final
}
