package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/medtrans/qagate/internal/domain/expert"
)

const expertColumns = `id, name, credentials, specialties, languages, validation_domains,
	expertise_level, roles, preferred_content, approval_rate, avg_confidence, avg_response_ns,
	completed, domain_completed, hours_per_week, years_experience, verified, suspended,
	active_assignments, created_at`

func (s *Store) UpsertExpert(ctx context.Context, e *expert.Expert) error {
	domainCompleted, err := json.Marshal(e.DomainCompleted)
	if err != nil {
		return fmt.Errorf("marshal domain_completed: %w", err)
	}
	const q = `INSERT INTO experts (` + expertColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			credentials = EXCLUDED.credentials,
			specialties = EXCLUDED.specialties,
			languages = EXCLUDED.languages,
			validation_domains = EXCLUDED.validation_domains,
			expertise_level = EXCLUDED.expertise_level,
			roles = EXCLUDED.roles,
			preferred_content = EXCLUDED.preferred_content,
			approval_rate = EXCLUDED.approval_rate,
			avg_confidence = EXCLUDED.avg_confidence,
			avg_response_ns = EXCLUDED.avg_response_ns,
			completed = EXCLUDED.completed,
			domain_completed = EXCLUDED.domain_completed,
			hours_per_week = EXCLUDED.hours_per_week,
			years_experience = EXCLUDED.years_experience,
			verified = EXCLUDED.verified,
			suspended = EXCLUDED.suspended,
			active_assignments = EXCLUDED.active_assignments`
	_, err = s.pool.Exec(ctx, q,
		e.ID, e.Name, pgTextArray(e.Credentials), pgTextArray(e.Specialties),
		pgTextArray(e.Languages), pgTextArray(e.ValidationDomains), string(e.Level),
		pgTextArray(e.Roles), pgTextArray(e.PreferredContent),
		e.Stats.ApprovalRate, e.Stats.AvgConfidence, int64(e.Stats.AvgResponseTime),
		e.Stats.Completed, domainCompleted, e.HoursPerWeek, e.YearsExperience,
		e.Verified, e.Suspended, e.ActiveAssignments, e.CreatedAt,
	)
	return err
}

func (s *Store) GetExpert(ctx context.Context, id string) (*expert.Expert, error) {
	const q = `SELECT ` + expertColumns + ` FROM experts WHERE id = $1`
	e, err := scanExpert(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFoundWrap(err, "get expert %s", id)
	}
	return e, nil
}

func (s *Store) ListExperts(ctx context.Context) ([]expert.Expert, error) {
	const q = `SELECT ` + expertColumns + ` FROM experts ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []expert.Expert
	for rows.Next() {
		e, err := scanExpert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanExpert(row scannable) (*expert.Expert, error) {
	e := &expert.Expert{}
	var level string
	var avgResponseNs int64
	var domainCompleted []byte
	err := row.Scan(
		&e.ID, &e.Name, &e.Credentials, &e.Specialties, &e.Languages, &e.ValidationDomains,
		&level, &e.Roles, &e.PreferredContent, &e.Stats.ApprovalRate, &e.Stats.AvgConfidence,
		&avgResponseNs, &e.Stats.Completed, &domainCompleted, &e.HoursPerWeek,
		&e.YearsExperience, &e.Verified, &e.Suspended, &e.ActiveAssignments, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Level = expert.Level(level)
	e.Stats.AvgResponseTime = time.Duration(avgResponseNs)
	if len(domainCompleted) > 0 {
		if err := json.Unmarshal(domainCompleted, &e.DomainCompleted); err != nil {
			return nil, fmt.Errorf("unmarshal domain_completed: %w", err)
		}
	}
	return e, nil
}
