package postgres

import (
	"context"
	"time"

	"github.com/medtrans/qagate/internal/domain/review"
	"github.com/medtrans/qagate/internal/port/database"
)

const requestColumns = `id, candidate_id, COALESCE(memory_entry_id::text, ''), required_domains,
	required_roles, min_reviewers, min_level, priority, consensus, deadline, status,
	escalated, requeued, created_at, updated_at`

func (s *Store) CreateRequest(ctx context.Context, r *review.Request) error {
	const q = `INSERT INTO review_requests
		(id, candidate_id, memory_entry_id, required_domains, required_roles, min_reviewers,
		 min_level, priority, consensus, deadline, status, escalated, requeued, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := s.pool.Exec(ctx, q,
		r.ID, r.CandidateID, nullIfEmpty(r.MemoryEntryID), pgTextArray(r.RequiredDomains),
		pgTextArray(r.RequiredRoles), r.MinReviewers, r.MinLevel, string(r.Priority),
		string(r.Consensus), r.Deadline, string(r.Status), r.Escalated, r.Requeued,
		r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (*review.Request, error) {
	const q = `SELECT ` + requestColumns + ` FROM review_requests WHERE id = $1`
	r, err := scanRequest(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, notFoundWrap(err, "get request %s", id)
	}
	return r, nil
}

func (s *Store) UpdateRequest(ctx context.Context, r *review.Request) error {
	const q = `UPDATE review_requests SET
		min_reviewers = $2, min_level = $3, deadline = $4, status = $5,
		escalated = $6, requeued = $7, updated_at = now()
		WHERE id = $1`
	_, err := s.pool.Exec(ctx, q,
		r.ID, r.MinReviewers, r.MinLevel, r.Deadline, string(r.Status), r.Escalated, r.Requeued,
	)
	return err
}

// CASRequestStatus transitions status only if the row still holds the
// expected value; the WHERE clause carries the compare-and-set predicate.
func (s *Store) CASRequestStatus(ctx context.Context, id string, from, to review.Status) (bool, error) {
	const q = `UPDATE review_requests SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`
	tag, err := s.pool.Exec(ctx, q, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListRequestsByStatus(ctx context.Context, statuses ...review.Status) ([]review.Request, error) {
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}
	const q = `SELECT ` + requestColumns + ` FROM review_requests
		WHERE status = ANY($1) ORDER BY created_at`
	return s.queryRequests(ctx, q, strs)
}

func (s *Store) ListDueRequests(ctx context.Context, now time.Time) ([]review.Request, error) {
	const q = `SELECT ` + requestColumns + ` FROM review_requests
		WHERE deadline < $1 AND status IN ('pending', 'in_review')
		ORDER BY deadline`
	return s.queryRequests(ctx, q, now)
}

func (s *Store) ListPendingRequests(ctx context.Context, f database.PendingFilter) ([]review.Request, error) {
	const q = `SELECT ` + requestColumnsPrefixed + ` FROM review_requests r
		JOIN candidates c ON c.id = r.candidate_id
		WHERE r.status IN ('pending', 'in_review')
		AND ($1 = '' OR c.content_type = $1)
		AND ($2 = '' OR r.priority = $2)
		AND ($3::boolean IS NULL OR r.escalated = $3)
		ORDER BY r.created_at`
	var escalated any
	if f.Escalated != nil {
		escalated = *f.Escalated
	}
	return s.queryRequests(ctx, q, f.ContentType, string(f.Priority), escalated)
}

const requestColumnsPrefixed = `r.id, r.candidate_id, COALESCE(r.memory_entry_id::text, ''), r.required_domains,
	r.required_roles, r.min_reviewers, r.min_level, r.priority, r.consensus, r.deadline, r.status,
	r.escalated, r.requeued, r.created_at, r.updated_at`

func (s *Store) queryRequests(ctx context.Context, q string, args ...any) ([]review.Request, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []review.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func scanRequest(row scannable) (*review.Request, error) {
	r := &review.Request{}
	var priority, consensus, status string
	err := row.Scan(
		&r.ID, &r.CandidateID, &r.MemoryEntryID, &r.RequiredDomains, &r.RequiredRoles,
		&r.MinReviewers, &r.MinLevel, &priority, &consensus, &r.Deadline, &status,
		&r.Escalated, &r.Requeued, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Priority = review.Priority(priority)
	r.Consensus = review.ConsensusMode(consensus)
	r.Status = review.Status(status)
	return r, nil
}

// --- Assignments ---

const assignmentColumns = `id, request_id, expert_id, role, assigned_at, decision,
	confidence, issues, suggested_revision, completed_at`

func (s *Store) CreateAssignment(ctx context.Context, a *review.Assignment) error {
	const q = `INSERT INTO review_assignments
		(id, request_id, expert_id, role, assigned_at, decision, confidence, issues, suggested_revision, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := s.pool.Exec(ctx, q,
		a.ID, a.RequestID, a.ExpertID, a.Role, a.AssignedAt, string(a.Decision),
		a.Confidence, pgTextArray(a.Issues), a.SuggestedRevision, a.CompletedAt,
	)
	return err
}

func (s *Store) GetAssignment(ctx context.Context, requestID, expertID string) (*review.Assignment, error) {
	const q = `SELECT ` + assignmentColumns + ` FROM review_assignments
		WHERE request_id = $1 AND expert_id = $2`
	a, err := scanAssignment(s.pool.QueryRow(ctx, q, requestID, expertID))
	if err != nil {
		return nil, notFoundWrap(err, "get assignment %s/%s", requestID, expertID)
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, requestID string) ([]review.Assignment, error) {
	const q = `SELECT ` + assignmentColumns + ` FROM review_assignments
		WHERE request_id = $1 ORDER BY assigned_at`
	rows, err := s.pool.Query(ctx, q, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []review.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// CompleteAssignment records a decision only if none exists yet; the
// completed_at guard makes resubmission a no-op at the database level.
func (s *Store) CompleteAssignment(ctx context.Context, a *review.Assignment) error {
	const q = `UPDATE review_assignments SET
		decision = $3, confidence = $4, issues = $5, suggested_revision = $6, completed_at = $7
		WHERE request_id = $1 AND expert_id = $2 AND completed_at IS NULL`
	tag, err := s.pool.Exec(ctx, q,
		a.RequestID, a.ExpertID, string(a.Decision), a.Confidence,
		pgTextArray(a.Issues), a.SuggestedRevision, a.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return review.ErrDuplicateDecision
	}
	return nil
}

func scanAssignment(row scannable) (*review.Assignment, error) {
	a := &review.Assignment{}
	var decision string
	err := row.Scan(
		&a.ID, &a.RequestID, &a.ExpertID, &a.Role, &a.AssignedAt, &decision,
		&a.Confidence, &a.Issues, &a.SuggestedRevision, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Decision = review.Decision(decision)
	return a, nil
}

// --- Consensus results ---

func (s *Store) CreateConsensusResult(ctx context.Context, r *review.ConsensusResult) error {
	const q = `INSERT INTO consensus_results
		(request_id, final_status, final_translation, consensus_reached, completed_at)
		VALUES ($1,$2,$3,$4,$5)`
	_, err := s.pool.Exec(ctx, q,
		r.RequestID, string(r.FinalStatus), r.FinalTranslation, r.ConsensusReached, r.CompletedAt,
	)
	return err
}

func (s *Store) GetConsensusResult(ctx context.Context, requestID string) (*review.ConsensusResult, error) {
	const q = `SELECT request_id, final_status, final_translation, consensus_reached, completed_at
		FROM consensus_results WHERE request_id = $1`
	r := &review.ConsensusResult{}
	var status string
	err := s.pool.QueryRow(ctx, q, requestID).Scan(
		&r.RequestID, &status, &r.FinalTranslation, &r.ConsensusReached, &r.CompletedAt,
	)
	if err != nil {
		return nil, notFoundWrap(err, "get consensus result %s", requestID)
	}
	r.FinalStatus = review.Status(status)
	return r, nil
}

// --- Statistics ---

func (s *Store) ReviewStats(ctx context.Context, since time.Time) (*database.ReviewStats, error) {
	const q = `SELECT r.status, count(*),
		COALESCE(avg(EXTRACT(EPOCH FROM (cr.completed_at - r.created_at))), 0)
		FROM review_requests r
		LEFT JOIN consensus_results cr ON cr.request_id = r.id
		WHERE r.created_at >= $1
		GROUP BY r.status`
	rows, err := s.pool.Query(ctx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &database.ReviewStats{ByStatus: make(map[review.Status]int)}
	var weightedSeconds float64
	var verdictCount int
	for rows.Next() {
		var status string
		var count int
		var avgSeconds float64
		if err := rows.Scan(&status, &count, &avgSeconds); err != nil {
			return nil, err
		}
		st := review.Status(status)
		stats.ByStatus[st] = count
		stats.Total += count
		if st.Terminal() && avgSeconds > 0 {
			weightedSeconds += avgSeconds * float64(count)
			verdictCount += count
		}
	}
	if verdictCount > 0 {
		stats.AvgTimeToVerdict = time.Duration(weightedSeconds / float64(verdictCount) * float64(time.Second))
	}
	return stats, rows.Err()
}
