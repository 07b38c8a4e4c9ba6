package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go-interview-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// PostgreSQL error codes
const (
	pgUniqueViolation = "23505"
)

const listPageSize = 200

const interviewColumns = `id, owner_company_id, candidate_id, organizer_user_id, provider, title, description,
	scheduled_start, scheduled_end, timezone, status, meeting_link, meeting_id, meeting_passcode,
	external_event_ref, reschedule_count, version, created_at, updated_at`

type interviewRepo struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewInterviewRepository(db *pgxpool.Pool) domain.InterviewRepository {
	return &interviewRepo{db: db, now: time.Now}
}

func scanInterview(row pgx.Row) (*domain.Interview, error) {
	var iv domain.Interview
	var status string
	err := row.Scan(
		&iv.ID, &iv.OwnerCompanyID, &iv.CandidateID, &iv.OrganizerUserID, &iv.Provider, &iv.Title, &iv.Description,
		&iv.ScheduledStart, &iv.ScheduledEnd, &iv.Timezone, &status,
		&iv.MeetingAccess.Link, &iv.MeetingAccess.MeetingID, &iv.MeetingAccess.Passcode,
		&iv.ExternalEventRef, &iv.RescheduleCount, &iv.Version, &iv.CreatedAt, &iv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	iv.Status = domain.InterviewStatus(status)
	return &iv, nil
}

func (r *interviewRepo) Create(ctx context.Context, iv *domain.Interview) error {
	if iv.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}
	if err := iv.Window().Validate(); err != nil {
		return err
	}
	if iv.Version == 0 {
		iv.Version = 1
	}
	now := r.now().UTC()
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = now
	}
	iv.UpdatedAt = now

	query := `INSERT INTO interviews (` + interviewColumns + `)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.db.Exec(ctx, query,
		iv.ID, iv.OwnerCompanyID, iv.CandidateID, iv.OrganizerUserID, iv.Provider, iv.Title, iv.Description,
		iv.ScheduledStart, iv.ScheduledEnd, iv.Timezone, string(iv.Status),
		iv.MeetingAccess.Link, iv.MeetingAccess.MeetingID, iv.MeetingAccess.Passcode,
		iv.ExternalEventRef, iv.RescheduleCount, iv.Version, iv.CreatedAt, iv.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *interviewRepo) GetByID(ctx context.Context, id string) (*domain.Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE id = $1`
	return scanInterview(r.db.QueryRow(ctx, query, id))
}

// UpdateWithVersion locks the row, checks the version and writes the mutated copy
// in one transaction.
func (r *interviewRepo) UpdateWithVersion(ctx context.Context, id string, expectedVersion int64, mutate func(*domain.Interview) error) (*domain.Interview, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE id = $1 FOR UPDATE`
	prev, err := scanInterview(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if prev.Version != expectedVersion {
		return nil, fmt.Errorf("%w: expected version %d, found %d", domain.ErrVersionConflict, expectedVersion, prev.Version)
	}

	next := prev.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := domain.ValidateMutation(prev, next); err != nil {
		return nil, err
	}
	next.Version = prev.Version + 1
	next.UpdatedAt = r.now().UTC()

	update := `UPDATE interviews SET
			title = $3, description = $4, scheduled_start = $5, scheduled_end = $6, timezone = $7,
			status = $8, meeting_link = $9, meeting_id = $10, meeting_passcode = $11,
			external_event_ref = $12, reschedule_count = $13, version = $14, updated_at = $15
		WHERE id = $1 AND version = $2`
	tag, err := tx.Exec(ctx, update,
		id, expectedVersion,
		next.Title, next.Description, next.ScheduledStart, next.ScheduledEnd, next.Timezone,
		string(next.Status), next.MeetingAccess.Link, next.MeetingAccess.MeetingID, next.MeetingAccess.Passcode,
		next.ExternalEventRef, next.RescheduleCount, next.Version, next.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return next, nil
}

// ownerColumns maps a role to its indexed ownership column.
var ownerColumns = map[domain.OwnerRole]string{
	domain.OwnerRoleCompany:   "owner_company_id",
	domain.OwnerRoleCandidate: "candidate_id",
	domain.OwnerRoleOrganizer: "organizer_user_id",
}

func (r *interviewRepo) ListByOwner(ctx context.Context, ownerID string, filter domain.InterviewFilter) iter.Seq2[*domain.Interview, error] {
	role := filter.Role
	if role == "" {
		role = domain.OwnerRoleCompany
	}
	column, ok := ownerColumns[role]
	if !ok {
		return func(yield func(*domain.Interview, error) bool) {
			yield(nil, fmt.Errorf("%w: unknown owner role %q", domain.ErrInvalidInput, role))
		}
	}

	conds := []string{column + " = $1"}
	args := []any{ownerID}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("scheduled_start >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("scheduled_start < $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	return r.pages(ctx, strings.Join(conds, " AND "), args)
}

func (r *interviewRepo) ListSyncCandidates(ctx context.Context, endAfter time.Time) iter.Seq2[*domain.Interview, error] {
	where := `status IN ('scheduled', 'rescheduled') AND external_event_ref IS NOT NULL AND scheduled_end > $1`
	return r.pages(ctx, where, []any{endAfter})
}

// pages walks the matching rows with keyset pagination on (scheduled_start, id),
// so a consumer that stops early never holds a connection.
func (r *interviewRepo) pages(ctx context.Context, where string, args []any) iter.Seq2[*domain.Interview, error] {
	return func(yield func(*domain.Interview, error) bool) {
		var (
			afterStart time.Time
			afterID    string
			first      = true
		)
		for {
			pageArgs := append([]any(nil), args...)
			query := `SELECT ` + interviewColumns + ` FROM interviews WHERE ` + where
			if !first {
				pageArgs = append(pageArgs, afterStart, afterID)
				query += fmt.Sprintf(" AND (scheduled_start, id) > ($%d, $%d)", len(pageArgs)-1, len(pageArgs))
			}
			pageArgs = append(pageArgs, listPageSize)
			query += fmt.Sprintf(" ORDER BY scheduled_start, id LIMIT $%d", len(pageArgs))

			page, err := r.fetch(ctx, query, pageArgs)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, iv := range page {
				if !yield(iv, nil) {
					return
				}
			}
			if len(page) < listPageSize {
				return
			}
			last := page[len(page)-1]
			afterStart, afterID, first = last.ScheduledStart, last.ID, false
		}
	}
}

func (r *interviewRepo) fetch(ctx context.Context, query string, args []any) ([]*domain.Interview, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page []*domain.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, iv)
	}
	return page, rows.Err()
}
