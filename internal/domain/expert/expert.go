// Package expert provides the domain model for the human reviewer
// directory: credentials, capability sets, ordinal expertise levels,
// rolling performance statistics and suitability ranking inputs.
package expert

import (
	"errors"
	"slices"
	"time"
)

// Level is the ordinal medical-training rank used to gate eligibility.
type Level string

const (
	LevelStudent    Level = "student"
	LevelResident   Level = "resident"
	LevelSpecialist Level = "specialist"
	LevelConsultant Level = "consultant"
	LevelProfessor  Level = "professor"
)

var levelRanks = map[Level]int{
	LevelStudent:    0,
	LevelResident:   1,
	LevelSpecialist: 2,
	LevelConsultant: 3,
	LevelProfessor:  4,
}

// Rank returns the ordinal position of a level; unknown levels rank below
// student so they never satisfy a minimum.
func (l Level) Rank() int {
	r, ok := levelRanks[l]
	if !ok {
		return -1
	}
	return r
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

var (
	ErrNameRequired      = errors.New("expert name is required")
	ErrInvalidLevel      = errors.New("invalid expertise level")
	ErrLanguagesRequired = errors.New("at least one language is required")
	ErrDomainsRequired   = errors.New("at least one validation domain is required")
	ErrNoEligibleExpert  = errors.New("no eligible expert for requirements")
)

// Stats holds rolling performance figures, updated after every completed
// assignment via an exponential moving average.
type Stats struct {
	ApprovalRate    float64       `json:"approval_rate"`
	AvgConfidence   float64       `json:"avg_confidence"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	Completed       int           `json:"completed"`
}

// Expert is a registered human reviewer.
type Expert struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Credentials       []string       `json:"credentials,omitempty"`
	Specialties       []string       `json:"specialties,omitempty"`
	Languages         []string       `json:"languages"`
	ValidationDomains []string       `json:"validation_domains"`
	Level             Level          `json:"expertise_level"`
	Roles             []string       `json:"roles,omitempty"`
	PreferredContent  []string       `json:"preferred_content,omitempty"`
	Stats             Stats          `json:"stats"`
	DomainCompleted   map[string]int `json:"domain_completed,omitempty"`
	HoursPerWeek      int            `json:"hours_per_week"`
	YearsExperience   int            `json:"years_experience"`
	Verified          bool           `json:"verified"`
	Suspended         bool           `json:"suspended"`
	ActiveAssignments int            `json:"active_assignments"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Validate checks a profile at registration time.
func (e *Expert) Validate() error {
	if e.Name == "" {
		return ErrNameRequired
	}
	if !e.Level.Valid() {
		return ErrInvalidLevel
	}
	if len(e.Languages) == 0 {
		return ErrLanguagesRequired
	}
	if len(e.ValidationDomains) == 0 {
		return ErrDomainsRequired
	}
	return nil
}

// HasRole reports whether the expert can act in the given review role.
func (e *Expert) HasRole(role string) bool {
	return slices.Contains(e.Roles, role)
}

// Requirements describes what a review request demands of a reviewer.
type Requirements struct {
	Domains     []string
	SourceLang  string
	TargetLang  string
	MinLevel    Level
	ContentType string
}

// Predicate is one eligibility check. Predicates are evaluated in order
// until the first failure; a nil error means the expert passes.
type Predicate interface {
	Name() string
	Check(e *Expert, req Requirements) error
}

type predicateFunc struct {
	name string
	fn   func(e *Expert, req Requirements) error
}

func (p predicateFunc) Name() string                            { return p.name }
func (p predicateFunc) Check(e *Expert, req Requirements) error { return p.fn(e, req) }

var (
	errNotVerified     = errors.New("expert not verified or suspended")
	errMissingDomain   = errors.New("missing required validation domain")
	errMissingLanguage = errors.New("missing language pair")
	errBelowMinLevel   = errors.New("expertise level below minimum")
	errNotAvailable    = errors.New("no weekly availability")
)

// EligibilityChain is the default ordered predicate list. Active-standing
// first so suspended reviewers are cut before any capability checks run.
func EligibilityChain() []Predicate {
	return []Predicate{
		predicateFunc{"active_standing", func(e *Expert, _ Requirements) error {
			if !e.Verified || e.Suspended {
				return errNotVerified
			}
			return nil
		}},
		predicateFunc{"domain_coverage", func(e *Expert, req Requirements) error {
			for _, d := range req.Domains {
				if !slices.Contains(e.ValidationDomains, d) {
					return errMissingDomain
				}
			}
			return nil
		}},
		predicateFunc{"language_pair", func(e *Expert, req Requirements) error {
			if !slices.Contains(e.Languages, req.SourceLang) ||
				!slices.Contains(e.Languages, req.TargetLang) {
				return errMissingLanguage
			}
			return nil
		}},
		predicateFunc{"min_expertise", func(e *Expert, req Requirements) error {
			if req.MinLevel != "" && e.Level.Rank() < req.MinLevel.Rank() {
				return errBelowMinLevel
			}
			return nil
		}},
		predicateFunc{"availability", func(e *Expert, _ Requirements) error {
			if e.HoursPerWeek <= 0 {
				return errNotAvailable
			}
			return nil
		}},
	}
}

// Eligible runs the expert through the predicate chain and returns the
// first failure, or nil if every check passes.
func Eligible(e *Expert, req Requirements, chain []Predicate) error {
	for _, p := range chain {
		if err := p.Check(e, req); err != nil {
			return err
		}
	}
	return nil
}

// Suitability bonus thresholds.
const (
	availabilityBonusHours   = 20
	responsivenessBonusLimit = 24 * time.Hour
	tenureBonusCapYears      = 10
)

// Suitability scores how well an eligible expert fits a request. Higher is
// better; the score is not normalized.
func Suitability(e *Expert, req Requirements) float64 {
	score := e.Stats.AvgConfidence*20 + e.Stats.ApprovalRate*20

	if req.ContentType != "" && slices.Contains(e.PreferredContent, req.ContentType) {
		score += 10
	}

	for _, d := range req.Domains {
		if e.DomainCompleted[d] > 0 {
			score += 15
			break
		}
	}

	if e.HoursPerWeek > availabilityBonusHours {
		score += 10
	}

	if e.Stats.Completed > 0 && e.Stats.AvgResponseTime < responsivenessBonusLimit {
		score += 10
	}

	years := e.YearsExperience
	if years > tenureBonusCapYears {
		years = tenureBonusCapYears
	}
	score += float64(years)

	return score
}

// Ranked pairs an expert with its suitability score for a request.
type Ranked struct {
	Expert *Expert `json:"expert"`
	Score  float64 `json:"score"`
}
