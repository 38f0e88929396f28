package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/medtrans/qagate/internal/config"
	"github.com/medtrans/qagate/internal/domain/memory"
	"github.com/medtrans/qagate/internal/port/cache"
	"github.com/medtrans/qagate/internal/port/database"
	"github.com/medtrans/qagate/internal/port/embedding"
	"github.com/medtrans/qagate/internal/port/vectorstore"
	"github.com/medtrans/qagate/internal/resilience"
)

// MemoryIndex manages the translation memory: indexing validated pairs,
// ranked semantic retrieval, consistency checking and reinforcement.
//
// The embedding provider is an I/O-bound external call: results are cached
// by (text, domain) hash and the number of outstanding calls is bounded by
// a weighted semaphore.
type MemoryIndex struct {
	store    database.Store
	vectors  vectorstore.VectorStore
	embedder embedding.Provider
	cache    cache.Cache
	breaker  *resilience.Breaker
	sem      *semaphore.Weighted
	cfg      config.Memory
	now      func() time.Time
}

// NewMemoryIndex creates a MemoryIndex.
func NewMemoryIndex(
	store database.Store,
	vectors vectorstore.VectorStore,
	embedder embedding.Provider,
	c cache.Cache,
	breaker *resilience.Breaker,
	cfg config.Memory,
) *MemoryIndex {
	return &MemoryIndex{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		cache:    c,
		breaker:  breaker,
		sem:      semaphore.NewWeighted(cfg.MaxInflightEmbed),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Rehydrate rebuilds the vector index from the persisted entries. The
// vector store is in-process and starts empty on every boot; without this
// pass, restarts would lose retrieval over entries the store still holds.
func (m *MemoryIndex) Rehydrate(ctx context.Context) error {
	entries, err := m.store.ListMemoryEntries(ctx)
	if err != nil {
		return fmt.Errorf("list memory entries: %w", err)
	}

	indexed := 0
	for i := range entries {
		e := entries[i]
		if len(e.Embedding) == 0 {
			slog.Warn("memory entry has no embedding, skipping", "entry_id", e.ID)
			continue
		}
		if err := m.vectors.Index(ctx, &e); err != nil {
			return fmt.Errorf("index memory entry %s: %w", e.ID, err)
		}
		indexed++
	}

	slog.Info("memory index rehydrated", "entries", indexed)
	return nil
}

// Add embeds and indexes a validated translation pair.
func (m *MemoryIndex) Add(ctx context.Context, e *memory.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Confidence == 0 {
		e.Confidence = memory.MinConfidence
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}

	vec, err := m.embed(ctx, e.SourceText, e.Domain)
	if err != nil {
		return fmt.Errorf("embed memory entry: %w", err)
	}
	e.Embedding = vec

	if err := m.store.CreateMemoryEntry(ctx, e); err != nil {
		return fmt.Errorf("persist memory entry: %w", err)
	}
	if err := m.vectors.Index(ctx, e); err != nil {
		return fmt.Errorf("index memory entry: %w", err)
	}

	slog.Info("memory entry indexed",
		"entry_id", e.ID,
		"lang_pair", e.SourceLang+">"+e.TargetLang,
		"domain", e.Domain,
	)
	return nil
}

// Search returns ranked matches for the query text. External failures
// degrade to an empty result rather than an error: retrieval is advisory
// and the pipeline continues without it.
func (m *MemoryIndex) Search(ctx context.Context, text, sourceLang, targetLang, domain string, minConfidence float64) ([]memory.Match, error) {
	vec, err := m.embed(ctx, text, domain)
	if err != nil {
		slog.Warn("memory search degraded, embedding unavailable", "error", err)
		return nil, nil
	}

	hits, err := m.vectors.Search(ctx, vec, vectorstore.Filters{
		SourceLang: sourceLang,
		TargetLang: targetLang,
	}, m.cfg.SearchLimit)
	if err != nil {
		slog.Warn("memory search degraded, vector store unavailable", "error", err)
		return nil, nil
	}

	now := m.now()
	matches := make([]memory.Match, 0, len(hits))
	for _, h := range hits {
		if h.Entry.Confidence < minConfidence {
			continue
		}
		score := memory.Rank(memory.RankSignals{
			Similarity:  h.Similarity,
			DomainMatch: domain != "" && h.Entry.Domain == domain,
			UsageCount:  h.Entry.UsageCount,
			LastUsed:    h.Entry.LastUsed,
			QueryLen:    len(text),
			EntryLen:    len(h.Entry.SourceText),
			Now:         now,
		})
		matches = append(matches, memory.Match{
			Entry:      h.Entry,
			Similarity: h.Similarity,
			Type:       memory.ClassifyMatch(h.Similarity),
			Score:      score,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// CheckConsistency groups all stored translations of a term for a language
// pair and flags non-uniform usage. The highest-aggregate-usage group is
// selected as primary.
func (m *MemoryIndex) CheckConsistency(ctx context.Context, term, sourceLang, targetLang string) (*memory.ConsistencyReport, error) {
	entries, err := m.store.ListMemoryBySource(ctx, term, sourceLang, targetLang)
	if err != nil {
		return nil, fmt.Errorf("list memory for term: %w", err)
	}

	report := &memory.ConsistencyReport{
		Term:       term,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Consistent: true,
	}
	if len(entries) == 0 {
		return report, nil
	}

	groups := make(map[string]int)
	for i := range entries {
		// usage_count 0 still counts as one observation
		groups[entries[i].TargetText] += entries[i].UsageCount + 1
	}
	report.Variants = groups
	report.Consistent = len(groups) <= 1

	best, bestUsage := "", -1
	for target, usage := range groups {
		if usage > bestUsage || (usage == bestUsage && target < best) {
			best, bestUsage = target, usage
		}
	}
	report.PrimaryTranslation = best
	return report, nil
}

// Reinforce records a confirmed use of an entry, nudging its confidence up
// (helpful) or down (not helpful) within the bounded range.
func (m *MemoryIndex) Reinforce(ctx context.Context, entryID string, helpful bool) error {
	e, err := m.store.GetMemoryEntry(ctx, entryID)
	if err != nil {
		return err
	}
	e.Reinforce(helpful, m.cfg.ReinforceReward, m.cfg.ReinforcePenalty, m.now())
	if err := m.store.UpdateMemoryEntry(ctx, e); err != nil {
		return fmt.Errorf("persist reinforcement: %w", err)
	}
	slog.Debug("memory entry reinforced",
		"entry_id", entryID,
		"helpful", helpful,
		"confidence", e.Confidence,
		"usage_count", e.UsageCount,
	)
	return nil
}

// embed returns the embedding for (text, domain), consulting the cache
// first and bounding both concurrency and call duration.
func (m *MemoryIndex) embed(ctx context.Context, text, domain string) ([]float32, error) {
	key := embedCacheKey(text, domain)
	if data, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		return decodeVector(data), nil
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire embed slot: %w", err)
	}
	defer m.sem.Release(1)

	ectx, cancel := context.WithTimeout(ctx, m.cfg.EmbedTimeout)
	defer cancel()

	var vec []float32
	err := m.breaker.Execute(func() error {
		var xerr error
		vec, xerr = m.embedder.Embed(ectx, text, domain)
		return xerr
	})
	if err != nil {
		return nil, err
	}

	_ = m.cache.Set(ctx, key, encodeVector(vec), m.cfg.CacheTTL)
	return vec, nil
}

func embedCacheKey(text, domain string) string {
	h := sha256.Sum256([]byte(domain + "\x00" + text))
	return "embed:" + hex.EncodeToString(h[:16])
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
