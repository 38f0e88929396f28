// Package memstore implements the database port in memory. It backs the
// service tests and DSN-less local runs with the same CAS semantics the
// postgres adapter provides.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/medtrans/qagate/internal/domain/candidate"
	"github.com/medtrans/qagate/internal/domain/expert"
	"github.com/medtrans/qagate/internal/domain/feedback"
	"github.com/medtrans/qagate/internal/domain/memory"
	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/domain/scoring"
	"github.com/medtrans/qagate/internal/port/database"
)

// Store is an in-memory database.Store.
type Store struct {
	mu          sync.RWMutex
	candidates  map[string]candidate.Candidate
	reports     map[string]scoring.Report // by candidate ID
	experts     map[string]expert.Expert
	memories    map[string]memory.Entry
	requests    map[string]review.Request
	assignments map[string][]review.Assignment // by request ID
	results     map[string]review.ConsensusResult
	buckets     map[feedback.BucketKey]feedback.Bucket
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		candidates:  make(map[string]candidate.Candidate),
		reports:     make(map[string]scoring.Report),
		experts:     make(map[string]expert.Expert),
		memories:    make(map[string]memory.Entry),
		requests:    make(map[string]review.Request),
		assignments: make(map[string][]review.Assignment),
		results:     make(map[string]review.ConsensusResult),
		buckets:     make(map[feedback.BucketKey]feedback.Bucket),
	}
}

func (s *Store) CreateCandidate(_ context.Context, c *candidate.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.ID] = *c
	return nil
}

func (s *Store) GetCandidate(_ context.Context, id string) (*candidate.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, fmt.Errorf("candidate %s: %w", id, review.ErrNotFound)
	}
	return &c, nil
}

func (s *Store) CreateReport(_ context.Context, r *scoring.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.CandidateID] = *r
	return nil
}

func (s *Store) GetReport(_ context.Context, candidateID string) (*scoring.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[candidateID]
	if !ok {
		return nil, fmt.Errorf("report for %s: %w", candidateID, review.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) UpsertExpert(_ context.Context, e *expert.Expert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experts[e.ID] = *e
	return nil
}

func (s *Store) GetExpert(_ context.Context, id string) (*expert.Expert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.experts[id]
	if !ok {
		return nil, fmt.Errorf("expert %s: %w", id, review.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) ListExperts(_ context.Context) ([]expert.Expert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]expert.Expert, 0, len(s.experts))
	for _, e := range s.experts {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateMemoryEntry(_ context.Context, e *memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[e.ID] = *e
	return nil
}

func (s *Store) GetMemoryEntry(_ context.Context, id string) (*memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.memories[id]
	if !ok {
		return nil, fmt.Errorf("memory entry %s: %w", id, review.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) UpdateMemoryEntry(_ context.Context, e *memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memories[e.ID]; !ok {
		return fmt.Errorf("memory entry %s: %w", e.ID, review.ErrNotFound)
	}
	s.memories[e.ID] = *e
	return nil
}

func (s *Store) ListMemoryBySource(_ context.Context, sourceText, sourceLang, targetLang string) ([]memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(sourceText))
	var out []memory.Entry
	for _, e := range s.memories {
		if e.SourceLang != sourceLang || e.TargetLang != targetLang {
			continue
		}
		if strings.ToLower(strings.TrimSpace(e.SourceText)) == needle {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListMemoryEntries(_ context.Context) ([]memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]memory.Entry, 0, len(s.memories))
	for _, e := range s.memories {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateRequest(_ context.Context, r *review.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = *r
	return nil
}

func (s *Store) GetRequest(_ context.Context, id string) (*review.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, review.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) UpdateRequest(_ context.Context, r *review.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; !ok {
		return fmt.Errorf("request %s: %w", r.ID, review.ErrNotFound)
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *Store) CASRequestStatus(_ context.Context, id string, from, to review.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return false, fmt.Errorf("request %s: %w", id, review.ErrNotFound)
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	s.requests[id] = r
	return true, nil
}

func (s *Store) ListRequestsByStatus(_ context.Context, statuses ...review.Status) ([]review.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[review.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []review.Request
	for _, r := range s.requests {
		if want[r.Status] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListDueRequests(_ context.Context, now time.Time) ([]review.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []review.Request
	for _, r := range s.requests {
		if !r.Status.Terminal() && r.Deadline.Before(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

func (s *Store) ListPendingRequests(ctx context.Context, f database.PendingFilter) ([]review.Request, error) {
	all, err := s.ListRequestsByStatus(ctx, review.StatusPending, review.StatusInReview)
	if err != nil {
		return nil, err
	}
	var out []review.Request
	for _, r := range all {
		if f.Priority != "" && r.Priority != f.Priority {
			continue
		}
		if f.Escalated != nil && r.Escalated != *f.Escalated {
			continue
		}
		if f.ContentType != "" {
			c, ok := s.contentType(r.CandidateID)
			if !ok || c != f.ContentType {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) contentType(candidateID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[candidateID]
	if !ok {
		return "", false
	}
	return c.ContentType, true
}

func (s *Store) CreateAssignment(_ context.Context, a *review.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments[a.RequestID] {
		if existing.ExpertID == a.ExpertID {
			return fmt.Errorf("request %s expert %s: %w", a.RequestID, a.ExpertID, review.ErrAlreadyAssigned)
		}
	}
	s.assignments[a.RequestID] = append(s.assignments[a.RequestID], *a)
	return nil
}

func (s *Store) GetAssignment(_ context.Context, requestID, expertID string) (*review.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assignments[requestID] {
		if a.ExpertID == expertID {
			cp := a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("assignment %s/%s: %w", requestID, expertID, review.ErrNotAssigned)
}

func (s *Store) ListAssignments(_ context.Context, requestID string) ([]review.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]review.Assignment, len(s.assignments[requestID]))
	copy(out, s.assignments[requestID])
	return out, nil
}

func (s *Store) CompleteAssignment(_ context.Context, a *review.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.assignments[a.RequestID]
	for i := range list {
		if list[i].ExpertID == a.ExpertID {
			if list[i].CompletedAt != nil {
				return review.ErrDuplicateDecision
			}
			list[i] = *a
			return nil
		}
	}
	return fmt.Errorf("assignment %s/%s: %w", a.RequestID, a.ExpertID, review.ErrNotAssigned)
}

func (s *Store) CreateConsensusResult(_ context.Context, r *review.ConsensusResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[r.RequestID]; ok {
		return fmt.Errorf("consensus result for %s already exists", r.RequestID)
	}
	s.results[r.RequestID] = *r
	return nil
}

func (s *Store) GetConsensusResult(_ context.Context, requestID string) (*review.ConsensusResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[requestID]
	if !ok {
		return nil, fmt.Errorf("consensus result for %s: %w", requestID, review.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) GetIssueBucket(_ context.Context, key feedback.BucketKey) (*feedback.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[key]
	if !ok {
		return &feedback.Bucket{Key: key}, nil
	}
	cp := b
	cp.ByIssue = make(map[string]int, len(b.ByIssue))
	for k, v := range b.ByIssue {
		cp.ByIssue[k] = v
	}
	return &cp, nil
}

func (s *Store) SaveIssueBucket(_ context.Context, b *feedback.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[b.Key] = *b
	return nil
}

func (s *Store) ReviewStats(_ context.Context, since time.Time) (*database.ReviewStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &database.ReviewStats{ByStatus: make(map[review.Status]int)}
	var totalVerdict time.Duration
	verdicts := 0
	for _, r := range s.requests {
		if r.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		stats.ByStatus[r.Status]++
		if res, ok := s.results[r.ID]; ok {
			totalVerdict += res.CompletedAt.Sub(r.CreatedAt)
			verdicts++
		}
	}
	if verdicts > 0 {
		stats.AvgTimeToVerdict = totalVerdict / time.Duration(verdicts)
	}
	return stats, nil
}
