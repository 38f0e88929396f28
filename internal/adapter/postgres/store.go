package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrans/qagate/internal/domain/candidate"
	"github.com/medtrans/qagate/internal/domain/scoring"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Candidates ---

func (s *Store) CreateCandidate(ctx context.Context, c *candidate.Candidate) error {
	const q = `INSERT INTO candidates
		(id, source_text, translated_text, source_lang, target_lang, domain, content_type, submitted_by, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := s.pool.Exec(ctx, q,
		c.ID, c.SourceText, c.TranslatedText, c.SourceLang, c.TargetLang,
		c.Domain, c.ContentType, c.SubmittedBy, c.SubmittedAt,
	)
	return err
}

func (s *Store) GetCandidate(ctx context.Context, id string) (*candidate.Candidate, error) {
	const q = `SELECT id, source_text, translated_text, source_lang, target_lang, domain, content_type, submitted_by, submitted_at
		FROM candidates WHERE id = $1`
	c := &candidate.Candidate{}
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&c.ID, &c.SourceText, &c.TranslatedText, &c.SourceLang, &c.TargetLang,
		&c.Domain, &c.ContentType, &c.SubmittedBy, &c.SubmittedAt,
	)
	if err != nil {
		return nil, notFoundWrap(err, "get candidate %s", id)
	}
	return c, nil
}

// --- Accuracy reports ---

func (s *Store) CreateReport(ctx context.Context, r *scoring.Report) error {
	scores, err := json.Marshal(r.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	issues, err := json.Marshal(r.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}
	const q = `INSERT INTO accuracy_reports (candidate_id, scores, overall, confidence, issues, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`
	_, err = s.pool.Exec(ctx, q, r.CandidateID, scores, r.Overall, r.Confidence, issues, r.CreatedAt)
	return err
}

func (s *Store) GetReport(ctx context.Context, candidateID string) (*scoring.Report, error) {
	const q = `SELECT candidate_id, scores, overall, confidence, issues, created_at
		FROM accuracy_reports WHERE candidate_id = $1`
	r := &scoring.Report{}
	var scores, issues []byte
	err := s.pool.QueryRow(ctx, q, candidateID).Scan(
		&r.CandidateID, &scores, &r.Overall, &r.Confidence, &issues, &r.CreatedAt,
	)
	if err != nil {
		return nil, notFoundWrap(err, "get report %s", candidateID)
	}
	if err := json.Unmarshal(scores, &r.Scores); err != nil {
		return nil, fmt.Errorf("unmarshal scores: %w", err)
	}
	if err := json.Unmarshal(issues, &r.Issues); err != nil {
		return nil, fmt.Errorf("unmarshal issues: %w", err)
	}
	return r, nil
}
