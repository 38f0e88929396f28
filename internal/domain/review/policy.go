package review

import (
	"fmt"
	"time"
)

// Policy is the review requirement set for one content type: how many
// reviewers, which roles, how long each priority gets, and which consensus
// rule resolves the verdict. Loaded once at startup and never mutated.
type Policy struct {
	MinReviewers  int              `yaml:"min_reviewers" json:"min_reviewers"`
	RequiredRoles []string         `yaml:"required_roles" json:"required_roles"`
	DeadlineHours map[Priority]int `yaml:"deadline_hours" json:"deadline_hours"`
	Consensus     ConsensusMode    `yaml:"consensus" json:"consensus"`
}

// Deadline returns the review deadline for the given priority, falling back
// to the normal-priority bucket when the priority has no explicit entry.
func (p Policy) Deadline(now time.Time, pr Priority) time.Time {
	hours, ok := p.DeadlineHours[pr]
	if !ok {
		hours = p.DeadlineHours[PriorityNormal]
	}
	return now.Add(time.Duration(hours) * time.Hour)
}

// PolicyTable maps content types to their review policy.
type PolicyTable map[string]Policy

// Validate checks every policy for startup-fatal misconfiguration.
func (t PolicyTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("review policy table is empty")
	}
	for ct, p := range t {
		if p.MinReviewers < 1 {
			return fmt.Errorf("policy %q: min_reviewers must be >= 1", ct)
		}
		switch p.Consensus {
		case ConsensusStrict, ConsensusMajority:
		default:
			return fmt.Errorf("policy %q: unknown consensus mode %q", ct, p.Consensus)
		}
		if len(p.DeadlineHours) == 0 {
			return fmt.Errorf("policy %q: deadline_hours is empty", ct)
		}
		for pr, h := range p.DeadlineHours {
			if h <= 0 {
				return fmt.Errorf("policy %q: deadline_hours[%s] must be positive", ct, pr)
			}
		}
		if _, ok := p.DeadlineHours[PriorityNormal]; !ok {
			return fmt.Errorf("policy %q: deadline_hours must include %q", ct, PriorityNormal)
		}
	}
	return nil
}

// Lookup returns the policy for a content type or ErrNoPolicy.
func (t PolicyTable) Lookup(contentType string) (Policy, error) {
	p, ok := t[contentType]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrNoPolicy, contentType)
	}
	return p, nil
}
