// Package credential defines the verification events the expert directory
// accepts from the external credentialing collaborator.
package credential

import "time"

// EventKind identifies a credentialing outcome.
type EventKind string

const (
	KindVerified   EventKind = "verified"
	KindSuspended  EventKind = "suspended"
	KindReinstated EventKind = "reinstated"
)

// Event is a single credentialing decision about an expert.
type Event struct {
	ExpertID   string    `json:"expert_id"`
	Kind       EventKind `json:"kind"`
	Credential string    `json:"credential,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
