package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medtrans/qagate/internal/domain/feedback"
)

func (s *Store) GetIssueBucket(ctx context.Context, key feedback.BucketKey) (*feedback.Bucket, error) {
	const q = `SELECT total, by_issue, updated_at FROM issue_buckets
		WHERE source_lang = $1 AND target_lang = $2 AND domain = $3`
	b := &feedback.Bucket{Key: key}
	var byIssue []byte
	err := s.pool.QueryRow(ctx, q, key.SourceLang, key.TargetLang, key.Domain).
		Scan(&b.Total, &byIssue, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, nil // empty bucket, not an error
	}
	if err != nil {
		return nil, fmt.Errorf("get issue bucket: %w", err)
	}
	if err := json.Unmarshal(byIssue, &b.ByIssue); err != nil {
		return nil, fmt.Errorf("unmarshal issue bucket: %w", err)
	}
	return b, nil
}

func (s *Store) SaveIssueBucket(ctx context.Context, b *feedback.Bucket) error {
	byIssue, err := json.Marshal(b.ByIssue)
	if err != nil {
		return fmt.Errorf("marshal issue bucket: %w", err)
	}
	if b.ByIssue == nil {
		byIssue = []byte("{}")
	}
	const q = `INSERT INTO issue_buckets (source_lang, target_lang, domain, total, by_issue, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (source_lang, target_lang, domain) DO UPDATE SET
			total = EXCLUDED.total,
			by_issue = EXCLUDED.by_issue,
			updated_at = EXCLUDED.updated_at`
	_, err = s.pool.Exec(ctx, q,
		b.Key.SourceLang, b.Key.TargetLang, b.Key.Domain, b.Total, byIssue, b.UpdatedAt,
	)
	return err
}
