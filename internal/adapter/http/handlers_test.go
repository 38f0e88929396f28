package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	qghttp "github.com/medtrans/qagate/internal/adapter/http"
	"github.com/medtrans/qagate/internal/adapter/memstore"
	"github.com/medtrans/qagate/internal/adapter/vectormem"
	"github.com/medtrans/qagate/internal/config"
	"github.com/medtrans/qagate/internal/resilience"
	"github.com/medtrans/qagate/internal/service"
)

// stubTerms is a terminology lookup with no glossary entries.
type stubTerms struct{}

func (stubTerms) ExtractTerms(context.Context, string, string) ([]string, error) { return nil, nil }
func (stubTerms) LookupTerm(context.Context, string, string, string) (string, error) {
	return "", nil
}

// stubEmbedder produces a deterministic bag-of-words vector.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text, _ string) ([]float32, error) {
	vec := make([]float32, 64)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%64]++
	}
	return vec, nil
}

// nopCache never hits.
type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (nopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (nopCache) Delete(context.Context, string) error                     { return nil }

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	cfg := config.Defaults()
	store := memstore.New()

	scorer := service.NewScorer(stubTerms{}, cfg.Scoring, resilience.NewBreaker(5, time.Second))
	memories := service.NewMemoryIndex(store, vectormem.New(), stubEmbedder{}, nopCache{},
		resilience.NewBreaker(5, time.Second), cfg.Memory)
	directory := service.NewDirectory(store, cfg.Review.StatsAlpha)
	orchestrator := service.NewOrchestrator(store, directory, nil, cfg.Review.Policies)
	engine := service.NewEngine(store, nil, cfg.Review.SweepInterval)
	orchestrator.AttachEngine(engine)
	pipeline := service.NewPipeline(store, scorer, memories, orchestrator, cfg.Pipeline)

	r := chi.NewRouter()
	qghttp.MountRoutes(r, qghttp.NewHandlers(pipeline, directory, orchestrator, memories, store))
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRegisterExpert(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/experts", map[string]any{
		"name":               "Dr. Reyes",
		"expertise_level":    "specialist",
		"languages":          []string{"en", "es"},
		"validation_domains": []string{"medications"},
		"hours_per_week":     10,
		"verified":           true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected server-assigned expert ID")
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/experts/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
}

func TestRegisterExpertInvalid(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/experts", map[string]any{
		"expertise_level": "specialist",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetExpertNotFound(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/experts/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSubmitCandidateValidation(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/candidates", map[string]any{
		"source_text": "Take one tablet daily",
		"source_lang": "en",
		"target_lang": "es",
		"domain":      "medications",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitCandidateUnknownPriority(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/candidates", map[string]any{
		"source_text":     "Take one tablet daily",
		"translated_text": "Tome una tableta al dia",
		"source_lang":     "en",
		"target_lang":     "es",
		"domain":          "medications",
		"priority":        "whenever",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitCandidateRoutesHighRisk(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/candidates", map[string]any{
		"source_text":     "Take one tablet twice daily with food",
		"translated_text": "Tome una tableta dos veces al dia con alimentos",
		"source_lang":     "en",
		"target_lang":     "es",
		"domain":          "medications",
		"content_type":    "prescription",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var sub struct {
		Routed  bool   `json:"routed_to_review"`
		Reason  string `json:"routing_reason"`
		Request *struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"request"`
		Candidate struct {
			ID string `json:"id"`
		} `json:"candidate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sub.Routed || sub.Request == nil {
		t.Fatalf("high-risk domain should route to review: %s", rec.Body.String())
	}

	// The request is visible on the review surface.
	rec = doJSON(t, r, http.MethodGet, "/api/v1/reviews/"+sub.Request.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get review status = %d, want 200", rec.Code)
	}

	// And the candidate carries its report.
	rec = doJSON(t, r, http.MethodGet, "/api/v1/candidates/"+sub.Candidate.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get candidate status = %d, want 200", rec.Code)
	}
	var cand struct {
		Report *json.RawMessage `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cand); err != nil {
		t.Fatalf("decode candidate: %v", err)
	}
	if cand.Report == nil {
		t.Fatal("expected accuracy report attached to candidate")
	}
}

func TestPendingFilterValidation(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/reviews/pending?escalated=maybe", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/reviews/pending", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDecisionOnUnknownReview(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/reviews/nope/decisions", map[string]any{
		"expert_id":  "someone",
		"decision":   "approved",
		"confidence": 0.9,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestDecisionMissingExpert(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/reviews/nope/decisions", map[string]any{
		"decision":   "approved",
		"confidence": 0.9,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMemorySearchValidation(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/memory/search?text=hello", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet,
		"/api/v1/memory/search?text=hello&source_lang=en&target_lang=es&min_confidence=2", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for out-of-range min_confidence", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet,
		"/api/v1/memory/search?text=hello&source_lang=en&target_lang=es", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestReviewStatsSinceValidation(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/stats/reviews?since=yesterday", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/stats/reviews", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
