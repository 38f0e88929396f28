package service

import (
	"context"
	"testing"

	"github.com/medtrans/qagate/internal/adapter/vectormem"
	"github.com/medtrans/qagate/internal/config"
	"github.com/medtrans/qagate/internal/domain/memory"
	"github.com/medtrans/qagate/internal/port/embedding"
	"github.com/medtrans/qagate/internal/resilience"
)

func seedEntry(t *testing.T, g *gate, source, target string) *memory.Entry {
	t.Helper()
	e := &memory.Entry{
		SourceText: source,
		TargetText: target,
		SourceLang: "en",
		TargetLang: "es",
		Domain:     "medications",
	}
	if err := g.memories.Add(context.Background(), e); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return e
}

func TestSearchExactMatch(t *testing.T) {
	g := newGate()
	seedEntry(t, g, "Take 500 mg twice daily", "Tomar 500 mg dos veces al día")

	matches, err := g.memories.Search(context.Background(), "Take 500 mg twice daily", "en", "es", "medications", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Similarity < 0.99 {
		t.Errorf("similarity = %v, want >= 0.99 for an identical query", matches[0].Similarity)
	}
	if matches[0].Type != memory.MatchExact {
		t.Errorf("match type = %s, want %s", matches[0].Type, memory.MatchExact)
	}
}

func TestSearchRanksDomainAndUsage(t *testing.T) {
	g := newGate()
	ctx := context.Background()

	other := &memory.Entry{
		SourceText: "Apply the ointment daily",
		TargetText: "Aplicar la pomada diariamente",
		SourceLang: "en",
		TargetLang: "es",
		Domain:     "dermatology",
	}
	if err := g.memories.Add(ctx, other); err != nil {
		t.Fatalf("Add: %v", err)
	}
	seedEntry(t, g, "Apply the ointment daily", "Aplique la pomada cada día")

	matches, err := g.memories.Search(ctx, "Apply the ointment daily", "en", "es", "medications", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Entry.Domain != "medications" {
		t.Errorf("same-domain entry should rank first, got domain %s", matches[0].Entry.Domain)
	}
}

func TestSearchFiltersMinConfidence(t *testing.T) {
	g := newGate()
	seedEntry(t, g, "Take with food", "Tomar con alimentos") // confidence floor 0.5

	matches, err := g.memories.Search(context.Background(), "Take with food", "en", "es", "medications", 0.9)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches, want 0 below min confidence", len(matches))
	}
}

func TestSearchDegradesWhenEmbedderDown(t *testing.T) {
	g := newGate()
	g.embedder.err = embedding.ErrUnavailable

	matches, err := g.memories.Search(context.Background(), "anything", "en", "es", "", 0)
	if err != nil {
		t.Fatalf("Search must degrade, not fail: %v", err)
	}
	if matches != nil {
		t.Errorf("got %d matches from a dead embedder", len(matches))
	}
}

func TestEmbeddingCacheHit(t *testing.T) {
	g := newGate()
	seedEntry(t, g, "Take 500 mg twice daily", "Tomar 500 mg dos veces al día")
	before := g.embedder.callCount()

	for range 3 {
		if _, err := g.memories.Search(context.Background(), "Take 500 mg twice daily", "en", "es", "medications", 0); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}
	// The Add already embedded this text, so every search hits the cache.
	if got := g.embedder.callCount(); got != before {
		t.Errorf("embedder called %d more times, want 0 (cache hit)", got-before)
	}
}

func TestReinforce(t *testing.T) {
	g := newGate()
	e := seedEntry(t, g, "Take with food", "Tomar con alimentos")
	ctx := context.Background()

	if err := g.memories.Reinforce(ctx, e.ID, true); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	got, err := g.store.GetMemoryEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetMemoryEntry: %v", err)
	}
	if got.Confidence != 0.51 {
		t.Errorf("confidence after helpful use = %v, want 0.51", got.Confidence)
	}
	if got.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1", got.UsageCount)
	}

	if err := g.memories.Reinforce(ctx, e.ID, false); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	got, _ = g.store.GetMemoryEntry(ctx, e.ID)
	if got.Confidence != 0.5 {
		t.Errorf("confidence must clamp at the floor, got %v", got.Confidence)
	}
}

func TestCheckConsistency(t *testing.T) {
	g := newGate()
	ctx := context.Background()

	primary := seedEntry(t, g, "blood pressure", "presión arterial")
	primary.UsageCount = 9
	if err := g.store.UpdateMemoryEntry(ctx, primary); err != nil {
		t.Fatalf("UpdateMemoryEntry: %v", err)
	}
	seedEntry(t, g, "blood pressure", "tensión arterial")

	report, err := g.memories.CheckConsistency(ctx, "blood pressure", "en", "es")
	if err != nil {
		t.Fatalf("CheckConsistency: %v", err)
	}
	if report.Consistent {
		t.Error("two variants must flag as inconsistent")
	}
	if report.PrimaryTranslation != "presión arterial" {
		t.Errorf("primary = %q, want the highest-usage variant", report.PrimaryTranslation)
	}

	single, err := g.memories.CheckConsistency(ctx, "unknown term", "en", "es")
	if err != nil {
		t.Fatalf("CheckConsistency: %v", err)
	}
	if !single.Consistent {
		t.Error("a term with no stored translations is trivially consistent")
	}
}

func TestRehydrateRestoresSearchAfterRestart(t *testing.T) {
	g := newGate()
	seedEntry(t, g, "Take 500 mg twice daily", "Tomar 500 mg dos veces al día")

	// A process restart keeps the persisted entries but starts with an
	// empty vector index.
	cfg := config.Defaults()
	restarted := NewMemoryIndex(g.store, vectormem.New(), g.embedder, newMapCache(),
		resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout), cfg.Memory)
	restarted.now = g.clock.now

	ctx := context.Background()
	matches, err := restarted.Search(ctx, "Take 500 mg twice daily", "en", "es", "medications", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("fresh index should be empty before rehydration, got %d matches", len(matches))
	}

	if err := restarted.Rehydrate(ctx); err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}

	matches, err = restarted.Search(ctx, "Take 500 mg twice daily", "en", "es", "medications", 0)
	if err != nil {
		t.Fatalf("Search after rehydrate: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("rehydrated index must find the persisted entry")
	}
	if matches[0].Type != memory.MatchExact {
		t.Errorf("match type = %q, want %q", matches[0].Type, memory.MatchExact)
	}
}
