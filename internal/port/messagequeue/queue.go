// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
// The pipeline publishes domain events here; the external notification
// collaborator and credentialing feed consume and produce on it.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error
}

// Subjects carrying domain events and inbound collaborator feeds.
const (
	SubjectReviewAssigned    = "review.assigned"
	SubjectDecisionSubmitted = "review.decision_submitted"
	SubjectConsensusReached  = "review.consensus_reached"
	SubjectReviewExpired     = "review.expired"
	SubjectReviewEscalated   = "review.escalated"
	SubjectImprovementSignal = "feedback.improvement_signal"
	SubjectCredentialEvents  = "credentials.events"
)
