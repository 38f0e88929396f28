// Package event defines the domain events this core emits for external
// collaborators. Notification delivery itself lives outside the gate; the
// pipeline only publishes these records.
package event

import "time"

// Type identifies the kind of domain event.
type Type string

const (
	TypeReviewAssigned    Type = "review.assigned"
	TypeDecisionSubmitted Type = "review.decision_submitted"
	TypeConsensusReached  Type = "review.consensus_reached"
	TypeReviewExpired     Type = "review.expired"
	TypeReviewEscalated   Type = "review.escalated"
	TypeImprovementSignal Type = "feedback.improvement_signal"
)

// Assigned is emitted once per (request, expert) when an assignment is
// created.
type Assigned struct {
	RequestID   string    `json:"request_id"`
	CandidateID string    `json:"candidate_id"`
	ExpertID    string    `json:"expert_id"`
	Role        string    `json:"role,omitempty"`
	Priority    string    `json:"priority"`
	Deadline    time.Time `json:"deadline"`
}

// DecisionSubmitted is emitted after a reviewer's verdict is recorded.
type DecisionSubmitted struct {
	RequestID  string  `json:"request_id"`
	ExpertID   string  `json:"expert_id"`
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
}

// ConsensusReached is emitted when a request reaches a terminal verdict.
type ConsensusReached struct {
	RequestID        string    `json:"request_id"`
	CandidateID      string    `json:"candidate_id"`
	FinalStatus      string    `json:"final_status"`
	ConsensusReached bool      `json:"consensus_reached"`
	CompletedAt      time.Time `json:"completed_at"`
}

// Expired is emitted exactly once when the deadline sweep expires a request.
type Expired struct {
	RequestID   string    `json:"request_id"`
	CandidateID string    `json:"candidate_id"`
	Deadline    time.Time `json:"deadline"`
	Requeued    bool      `json:"requeued"`
}

// Escalated is emitted when a request cannot be fully staffed or has
// exhausted its requeue and needs supervisor attention.
type Escalated struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
	Assigned  int    `json:"assigned"`
	Required  int    `json:"required"`
}

// ImprovementSignal is emitted when an issue bucket for a language pair and
// domain crosses the recurrence threshold.
type ImprovementSignal struct {
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
	Domain     string   `json:"domain"`
	IssueCount int      `json:"issue_count"`
	TopIssues  []string `json:"top_issues,omitempty"`
}
