// Package memory provides the domain model for the translation memory:
// validated source/target pairs with embeddings, multi-signal retrieval
// ranking and bounded confidence reinforcement.
package memory

import (
	"errors"
	"time"
)

// Confidence bounds for a memory entry. Reinforcement never moves an
// entry outside this range.
const (
	MinConfidence = 0.5
	MaxConfidence = 1.0
)

var (
	ErrSourceRequired = errors.New("source_text is required")
	ErrTargetRequired = errors.New("target_text is required")
	ErrLangRequired   = errors.New("source_lang and target_lang are required")
)

// Entry is one validated translation pair stored in the memory index.
type Entry struct {
	ID         string    `json:"id"`
	SourceText string    `json:"source_text"`
	TargetText string    `json:"target_text"`
	SourceLang string    `json:"source_lang"`
	TargetLang string    `json:"target_lang"`
	Domain     string    `json:"domain"`
	Embedding  []float32 `json:"-"`
	UsageCount int       `json:"usage_count"`
	Confidence float64   `json:"confidence"`
	LastUsed   time.Time `json:"last_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the entry before indexing.
func (e *Entry) Validate() error {
	if e.SourceText == "" {
		return ErrSourceRequired
	}
	if e.TargetText == "" {
		return ErrTargetRequired
	}
	if e.SourceLang == "" || e.TargetLang == "" {
		return ErrLangRequired
	}
	return nil
}

// Reinforce nudges the entry's confidence after a confirmed use and bumps
// its usage statistics. Step sizes come from configuration; only the
// direction (reward up, penalty down) is fixed.
func (e *Entry) Reinforce(helpful bool, reward, penalty float64, now time.Time) {
	if helpful {
		e.Confidence += reward
	} else {
		e.Confidence -= penalty
	}
	if e.Confidence > MaxConfidence {
		e.Confidence = MaxConfidence
	}
	if e.Confidence < MinConfidence {
		e.Confidence = MinConfidence
	}
	e.UsageCount++
	e.LastUsed = now
}

// MatchType classifies how closely a retrieved entry matches a query.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchFuzzy    MatchType = "fuzzy"
	MatchSemantic MatchType = "semantic"
	MatchPartial  MatchType = "partial"
)

// ClassifyMatch maps a cosine similarity to a match type.
func ClassifyMatch(similarity float64) MatchType {
	switch {
	case similarity >= 0.99:
		return MatchExact
	case similarity >= 0.85:
		return MatchFuzzy
	case similarity >= 0.70:
		return MatchSemantic
	default:
		return MatchPartial
	}
}

// Match is a ranked retrieval result.
type Match struct {
	Entry      *Entry    `json:"entry"`
	Similarity float64   `json:"similarity"`
	Type       MatchType `json:"match_type"`
	Score      float64   `json:"score"`
}

// RankSignals carries the inputs of the retrieval ranking formula as named
// fields so each weight stays independently testable.
type RankSignals struct {
	Similarity  float64
	DomainMatch bool
	UsageCount  int
	LastUsed    time.Time
	QueryLen    int
	EntryLen    int
	Now         time.Time
}

// Ranking weights. Similarity dominates; the remaining signals break ties
// between near-equal matches.
const (
	weightSimilarity = 0.5
	weightDomain     = 0.2
	weightUsage      = 0.1
	weightRecency    = 0.1
	weightLength     = 0.1

	usageCap      = 100
	recencyWindow = 365 * 24 * time.Hour
	recencyFloor  = 0.5
)

// Rank combines the retrieval signals into a single score in [0,1].
// It is a pure function of its inputs.
func Rank(s RankSignals) float64 {
	score := weightSimilarity * s.Similarity

	if s.DomainMatch {
		score += weightDomain
	}

	usage := float64(s.UsageCount)
	if usage > usageCap {
		usage = usageCap
	}
	score += weightUsage * (usage / usageCap)

	score += weightRecency * recencyFactor(s.LastUsed, s.Now)

	score += weightLength * lengthSimilarity(s.QueryLen, s.EntryLen)

	return score
}

// recencyFactor decays linearly from 1.0 (used now) to the floor over the
// recency window.
func recencyFactor(lastUsed, now time.Time) float64 {
	if lastUsed.IsZero() || !lastUsed.Before(now) {
		return 1.0
	}
	age := now.Sub(lastUsed)
	if age >= recencyWindow {
		return recencyFloor
	}
	frac := float64(age) / float64(recencyWindow)
	return 1.0 - frac*(1.0-recencyFloor)
}

func lengthSimilarity(a, b int) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > b {
		a, b = b, a
	}
	return float64(a) / float64(b)
}

// ConsistencyReport describes how uniformly a term has been translated
// across the stored memory for one language pair.
type ConsistencyReport struct {
	Term               string         `json:"term"`
	SourceLang         string         `json:"source_lang"`
	TargetLang         string         `json:"target_lang"`
	Consistent         bool           `json:"consistent"`
	PrimaryTranslation string         `json:"primary_translation,omitempty"`
	Variants           map[string]int `json:"variants,omitempty"` // target text -> aggregate usage
}
