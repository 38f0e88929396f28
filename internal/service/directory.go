package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medtrans/qagate/internal/domain/expert"
	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/port/credential"
	"github.com/medtrans/qagate/internal/port/database"
)

// Directory manages the registry of human reviewers: registration,
// suitability-ranked candidate matching, rolling performance statistics and
// credentialing state.
type Directory struct {
	store database.Store
	chain []expert.Predicate
	alpha float64 // EMA weight for new outcomes
	now   func() time.Time
}

// NewDirectory creates a Directory using the default eligibility chain.
func NewDirectory(store database.Store, statsAlpha float64) *Directory {
	return &Directory{
		store: store,
		chain: expert.EligibilityChain(),
		alpha: statsAlpha,
		now:   time.Now,
	}
}

// Register validates and stores an expert profile. New experts start
// unverified until a credentialing event confirms them.
func (d *Directory) Register(ctx context.Context, e *expert.Expert) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = d.now()
	}
	if err := d.store.UpsertExpert(ctx, e); err != nil {
		return fmt.Errorf("persist expert: %w", err)
	}
	slog.Info("expert registered",
		"expert_id", e.ID,
		"level", e.Level,
		"domains", e.ValidationDomains,
	)
	return nil
}

// FindCandidates returns experts eligible for the requirements, ranked by
// suitability. Ties break toward the lowest current assignment load.
// Returns expert.ErrNoEligibleExpert when nobody qualifies.
func (d *Directory) FindCandidates(ctx context.Context, req expert.Requirements) ([]expert.Ranked, error) {
	all, err := d.store.ListExperts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list experts: %w", err)
	}

	var ranked []expert.Ranked
	for i := range all {
		e := &all[i]
		if err := expert.Eligible(e, req, d.chain); err != nil {
			continue
		}
		cp := *e
		ranked = append(ranked, expert.Ranked{
			Expert: &cp,
			Score:  expert.Suitability(e, req),
		})
	}
	if len(ranked) == 0 {
		return nil, expert.ErrNoEligibleExpert
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Expert.ActiveAssignments < ranked[j].Expert.ActiveAssignments
	})
	return ranked, nil
}

// RecordOutcome folds a completed assignment into the expert's rolling
// statistics using an exponential moving average, and releases the active
// assignment slot.
func (d *Directory) RecordOutcome(ctx context.Context, expertID string, decision review.Decision, confidence float64, responseTime time.Duration, domains []string) error {
	e, err := d.store.GetExpert(ctx, expertID)
	if err != nil {
		return err
	}

	approved := 0.0
	if decision == review.DecisionApproved {
		approved = 1.0
	}

	if e.Stats.Completed == 0 {
		e.Stats.ApprovalRate = approved
		e.Stats.AvgConfidence = confidence
		e.Stats.AvgResponseTime = responseTime
	} else {
		a := d.alpha
		e.Stats.ApprovalRate = (1-a)*e.Stats.ApprovalRate + a*approved
		e.Stats.AvgConfidence = (1-a)*e.Stats.AvgConfidence + a*confidence
		e.Stats.AvgResponseTime = time.Duration((1-a)*float64(e.Stats.AvgResponseTime) + a*float64(responseTime))
	}
	e.Stats.Completed++

	if e.DomainCompleted == nil {
		e.DomainCompleted = make(map[string]int)
	}
	for _, dom := range domains {
		e.DomainCompleted[dom]++
	}
	if e.ActiveAssignments > 0 {
		e.ActiveAssignments--
	}

	if err := d.store.UpsertExpert(ctx, e); err != nil {
		return fmt.Errorf("persist expert stats: %w", err)
	}
	return nil
}

// ReserveSlot bumps the expert's active assignment count when a new
// assignment is created.
func (d *Directory) ReserveSlot(ctx context.Context, expertID string) error {
	e, err := d.store.GetExpert(ctx, expertID)
	if err != nil {
		return err
	}
	e.ActiveAssignments++
	return d.store.UpsertExpert(ctx, e)
}

// ApplyCredentialEvent updates an expert's standing from the external
// credentialing collaborator.
func (d *Directory) ApplyCredentialEvent(ctx context.Context, ev credential.Event) error {
	e, err := d.store.GetExpert(ctx, ev.ExpertID)
	if err != nil {
		return err
	}

	switch ev.Kind {
	case credential.KindVerified:
		e.Verified = true
		if ev.Credential != "" {
			e.Credentials = append(e.Credentials, ev.Credential)
		}
	case credential.KindSuspended:
		e.Suspended = true
	case credential.KindReinstated:
		e.Suspended = false
	default:
		return fmt.Errorf("unknown credential event kind %q", ev.Kind)
	}

	if err := d.store.UpsertExpert(ctx, e); err != nil {
		return fmt.Errorf("persist credential change: %w", err)
	}
	slog.Info("credential event applied",
		"expert_id", ev.ExpertID,
		"kind", ev.Kind,
	)
	return nil
}

// Stats returns the rolling statistics for one expert, for the operator
// surface.
func (d *Directory) Stats(ctx context.Context, expertID string) (*expert.Stats, error) {
	e, err := d.store.GetExpert(ctx, expertID)
	if err != nil {
		return nil, err
	}
	return &e.Stats, nil
}
