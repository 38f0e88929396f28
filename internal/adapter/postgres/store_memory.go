package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/medtrans/qagate/internal/domain/memory"
	"github.com/medtrans/qagate/internal/domain/review"
)

const memoryColumns = `id, source_text, target_text, source_lang, target_lang, domain,
	embedding, usage_count, confidence, last_used, created_at`

func (s *Store) CreateMemoryEntry(ctx context.Context, e *memory.Entry) error {
	const q = `INSERT INTO memory_entries (` + memoryColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := s.pool.Exec(ctx, q,
		e.ID, e.SourceText, e.TargetText, e.SourceLang, e.TargetLang, e.Domain,
		e.Embedding, e.UsageCount, e.Confidence, nullTime(e.LastUsed), e.CreatedAt,
	)
	return err
}

func (s *Store) GetMemoryEntry(ctx context.Context, id string) (*memory.Entry, error) {
	const q = `SELECT ` + memoryColumns + ` FROM memory_entries WHERE id = $1`
	e, err := scanMemoryEntry(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFoundWrap(err, "get memory entry %s", id)
	}
	return e, nil
}

func (s *Store) UpdateMemoryEntry(ctx context.Context, e *memory.Entry) error {
	const q = `UPDATE memory_entries SET
		usage_count = $2, confidence = $3, last_used = $4
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, e.ID, e.UsageCount, e.Confidence, nullTime(e.LastUsed))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update memory entry %s: %w", e.ID, review.ErrNotFound)
	}
	return nil
}

func (s *Store) ListMemoryBySource(ctx context.Context, sourceText, sourceLang, targetLang string) ([]memory.Entry, error) {
	const q = `SELECT ` + memoryColumns + ` FROM memory_entries
		WHERE source_lang = $2 AND target_lang = $3 AND lower(source_text) = lower(btrim($1))
		ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, sourceText, sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []memory.Entry
	for rows.Next() {
		e, err := scanMemoryEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (s *Store) ListMemoryEntries(ctx context.Context) ([]memory.Entry, error) {
	const q = `SELECT ` + memoryColumns + ` FROM memory_entries ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []memory.Entry
	for rows.Next() {
		e, err := scanMemoryEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func scanMemoryEntry(row scannable) (*memory.Entry, error) {
	e := &memory.Entry{}
	var lastUsed *time.Time
	err := row.Scan(
		&e.ID, &e.SourceText, &e.TargetText, &e.SourceLang, &e.TargetLang, &e.Domain,
		&e.Embedding, &e.UsageCount, &e.Confidence, &lastUsed, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastUsed != nil {
		e.LastUsed = *lastUsed
	}
	return e, nil
}
