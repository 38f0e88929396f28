package service

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/medtrans/qagate/internal/adapter/memstore"
	"github.com/medtrans/qagate/internal/adapter/vectormem"
	"github.com/medtrans/qagate/internal/config"
	"github.com/medtrans/qagate/internal/port/messagequeue"
	"github.com/medtrans/qagate/internal/resilience"
)

// fakeTerms is a canned terminology service backed by a glossary map.
type fakeTerms struct {
	glossary map[string]string // source term -> expected translation
	err      error
}

func (f *fakeTerms) ExtractTerms(_ context.Context, text, _ string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	lower := strings.ToLower(text)
	var terms []string
	for term := range f.glossary {
		if strings.Contains(lower, term) {
			terms = append(terms, term)
		}
	}
	return terms, nil
}

func (f *fakeTerms) LookupTerm(_ context.Context, term, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.glossary[term], nil
}

// stubEmbedder produces a deterministic bag-of-words vector so identical
// texts embed identically (cosine 1.0) and unrelated texts do not.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubEmbedder) Embed(_ context.Context, text, _ string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	vec := make([]float32, 64)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%64]++
	}
	return vec, nil
}

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// mapCache is a trivial in-memory cache.Cache.
type mapCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{m: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

// captureQueue records published events instead of delivering them.
type captureQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newCaptureQueue() *captureQueue {
	return &captureQueue{published: make(map[string][][]byte)}
}

func (q *captureQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *captureQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *captureQueue) Close() error { return nil }

func (q *captureQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published[subject])
}

// gate bundles a fully wired service stack over in-memory adapters.
type gate struct {
	store        *memstore.Store
	queue        *captureQueue
	embedder     *stubEmbedder
	terms        *fakeTerms
	scorer       *Scorer
	memories     *MemoryIndex
	directory    *Directory
	orchestrator *Orchestrator
	engine       *Engine
	learner      *Learner
	pipeline     *Pipeline
	clock        *fakeClock
}

// fakeClock lets tests move time past deadlines.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newGate() *gate {
	cfg := config.Defaults()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	store := memstore.New()
	queue := newCaptureQueue()
	embedder := &stubEmbedder{}
	terms := &fakeTerms{glossary: map[string]string{}}

	scorer := NewScorer(terms, cfg.Scoring, resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	scorer.now = clock.now

	memories := NewMemoryIndex(store, vectormem.New(), embedder, newMapCache(),
		resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout), cfg.Memory)
	memories.now = clock.now

	directory := NewDirectory(store, cfg.Review.StatsAlpha)
	directory.now = clock.now

	orchestrator := NewOrchestrator(store, directory, queue, cfg.Review.Policies)
	orchestrator.now = clock.now

	engine := NewEngine(store, queue, cfg.Review.SweepInterval)
	engine.now = clock.now
	orchestrator.AttachEngine(engine)
	engine.OnExpired(orchestrator.RequeueExpired)

	learner := NewLearner(store, memories, queue, cfg.Feedback.IssueThreshold, cfg.Feedback.TopIssues)
	learner.now = clock.now
	engine.OnTerminal(learner.HandleTerminal)

	pipeline := NewPipeline(store, scorer, memories, orchestrator, cfg.Pipeline)
	pipeline.now = clock.now

	return &gate{
		store:        store,
		queue:        queue,
		embedder:     embedder,
		terms:        terms,
		scorer:       scorer,
		memories:     memories,
		directory:    directory,
		orchestrator: orchestrator,
		engine:       engine,
		learner:      learner,
		pipeline:     pipeline,
		clock:        clock,
	}
}
