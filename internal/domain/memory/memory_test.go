package memory

import (
	"math"
	"testing"
	"time"
)

func TestClassifyMatch(t *testing.T) {
	tests := []struct {
		similarity float64
		want       MatchType
	}{
		{1.0, MatchExact},
		{0.99, MatchExact},
		{0.98, MatchFuzzy},
		{0.85, MatchFuzzy},
		{0.80, MatchSemantic},
		{0.70, MatchSemantic},
		{0.69, MatchPartial},
		{0.0, MatchPartial},
	}
	for _, tt := range tests {
		if got := ClassifyMatch(tt.similarity); got != tt.want {
			t.Errorf("ClassifyMatch(%v) = %s, want %s", tt.similarity, got, tt.want)
		}
	}
}

func TestRankWeights(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Perfect everything: similarity 1, same domain, usage at the cap,
	// used now, identical lengths.
	full := Rank(RankSignals{
		Similarity:  1.0,
		DomainMatch: true,
		UsageCount:  100,
		LastUsed:    now,
		QueryLen:    40,
		EntryLen:    40,
		Now:         now,
	})
	if math.Abs(full-1.0) > 1e-9 {
		t.Errorf("full-signal rank = %v, want 1.0", full)
	}

	// Similarity carries half the weight on its own.
	simOnly := Rank(RankSignals{Similarity: 1.0, Now: now})
	// LastUsed zero counts as fresh, so recency contributes its full 0.1.
	if math.Abs(simOnly-0.6) > 1e-9 {
		t.Errorf("similarity-only rank = %v, want 0.6", simOnly)
	}

	// Usage is capped at 100.
	capped := Rank(RankSignals{UsageCount: 100, Now: now})
	overCap := Rank(RankSignals{UsageCount: 5000, Now: now})
	if capped != overCap {
		t.Errorf("usage cap not applied: %v vs %v", capped, overCap)
	}
}

func TestRecencyDecay(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	fresh := recencyFactor(now, now)
	if fresh != 1.0 {
		t.Errorf("fresh entry factor = %v, want 1.0", fresh)
	}

	old := recencyFactor(now.Add(-2*365*24*time.Hour), now)
	if old != 0.5 {
		t.Errorf("two-year-old entry factor = %v, want floor 0.5", old)
	}

	half := recencyFactor(now.Add(-365*12*time.Hour), now)
	if math.Abs(half-0.75) > 1e-9 {
		t.Errorf("half-window factor = %v, want 0.75", half)
	}
}

func TestReinforceBounds(t *testing.T) {
	now := time.Now()

	e := Entry{Confidence: 0.99}
	e.Reinforce(true, 0.01, 0.02, now)
	if e.Confidence != 1.0 {
		t.Errorf("confidence after reward = %v, want 1.0", e.Confidence)
	}
	e.Reinforce(true, 0.01, 0.02, now)
	if e.Confidence != 1.0 {
		t.Errorf("confidence must clamp at 1.0, got %v", e.Confidence)
	}
	if e.UsageCount != 2 {
		t.Errorf("usage count = %d, want 2", e.UsageCount)
	}

	e = Entry{Confidence: 0.51}
	e.Reinforce(false, 0.01, 0.02, now)
	if e.Confidence != 0.5 {
		t.Errorf("confidence must clamp at 0.5, got %v", e.Confidence)
	}
}

func TestEntryValidate(t *testing.T) {
	good := Entry{SourceText: "blood pressure", TargetText: "presión arterial", SourceLang: "en", TargetLang: "es"}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() on good entry: %v", err)
	}

	bad := []Entry{
		{TargetText: "x", SourceLang: "en", TargetLang: "es"},
		{SourceText: "x", SourceLang: "en", TargetLang: "es"},
		{SourceText: "x", TargetText: "y", TargetLang: "es"},
	}
	for i, e := range bad {
		if err := e.Validate(); err == nil {
			t.Errorf("case %d: Validate() accepted an invalid entry", i)
		}
	}
}
