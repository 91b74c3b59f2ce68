package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/timeoff/internal/core"
	"github.com/edvin/timeoff/internal/model"
)

const requestColumns = `id, user_id, group_id, start_date, end_date, type, flight_number,
	status, status_update_method, status_updated_at, approval_date, denial_reason,
	custom_message, needs_review, email_mode,
	email_sent, email_sent_at, email_failed, email_failed_at, email_error, email_failure_count,
	thread_id, message_id,
	manual_to, manual_subject, manual_body, manual_confirmed, manual_confirmed_at,
	version, created_at, updated_at`

// deliveryColumns flattens the delivery union of a row into its columns.
type deliveryColumns struct {
	sent         bool
	sentAt       *time.Time
	failed       bool
	failedAt     *time.Time
	err          *string
	failureCount int
	threadID     *string
	messageID    *string

	to          *string
	subject     *string
	body        *string
	confirmed   bool
	confirmedAt *time.Time
}

func flattenDelivery(r *model.Request) deliveryColumns {
	var d deliveryColumns
	if a := r.Automatic; a != nil {
		d.sent, d.sentAt = a.Sent, a.SentAt
		d.failed, d.failedAt = a.Failed, a.FailedAt
		d.err, d.failureCount = a.Error, a.FailureCount
		d.threadID, d.messageID = a.ThreadID, a.MessageID
	}
	if m := r.Manual; m != nil {
		d.confirmed, d.confirmedAt = m.Confirmed, m.ConfirmedAt
		if c := m.Content; c != nil {
			d.to, d.subject, d.body = &c.To, &c.Subject, &c.Body
		}
	}
	return d
}

func (d deliveryColumns) apply(r *model.Request) {
	if r.EmailMode == model.EmailModeAutomatic {
		r.Automatic = &model.AutomaticDelivery{
			Sent:         d.sent,
			SentAt:       d.sentAt,
			Failed:       d.failed,
			FailedAt:     d.failedAt,
			Error:        d.err,
			FailureCount: d.failureCount,
			ThreadID:     d.threadID,
			MessageID:    d.messageID,
		}
		return
	}
	r.Manual = &model.ManualDelivery{Confirmed: d.confirmed, ConfirmedAt: d.confirmedAt}
	if d.body != nil {
		r.Manual.Content = &model.EmailContent{Body: *d.body}
		if d.to != nil {
			r.Manual.Content.To = *d.to
		}
		if d.subject != nil {
			r.Manual.Content.Subject = *d.subject
		}
	}
}

func scanRequest(row pgx.Row) (*model.Request, error) {
	var (
		r model.Request
		d deliveryColumns
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.GroupID, &r.StartDate, &r.EndDate, &r.Type, &r.FlightNumber,
		&r.Status, &r.StatusUpdateMethod, &r.StatusUpdatedAt, &r.ApprovalDate, &r.DenialReason,
		&r.CustomMessage, &r.NeedsReview, &r.EmailMode,
		&d.sent, &d.sentAt, &d.failed, &d.failedAt, &d.err, &d.failureCount,
		&d.threadID, &d.messageID,
		&d.to, &d.subject, &d.body, &d.confirmed, &d.confirmedAt,
		&r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.apply(&r)
	return &r, nil
}

func (s *Store) queryRequests(ctx context.Context, what, query string, args ...any) ([]model.Request, error) {
	rows, err := s.q().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer rows.Close()

	var out []model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}

func (s *Store) InsertGroup(ctx context.Context, g *model.Group) error {
	_, err := s.q().Exec(ctx,
		`INSERT INTO request_groups (id, user_id, version, created_at) VALUES ($1, $2, $3, $4)`,
		g.ID, g.UserID, g.Version, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert group %s: %w", g.ID, mapError(err))
	}
	return nil
}

// GetGroup returns the group with its members ordered by date.
func (s *Store) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	var g model.Group
	err := s.q().QueryRow(ctx,
		`SELECT id, user_id, version, created_at FROM request_groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.UserID, &g.Version, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", id, mapError(err))
	}

	g.Members, err = s.queryRequests(ctx, "group members",
		`SELECT `+requestColumns+` FROM time_off_requests WHERE group_id = $1 ORDER BY start_date`, id)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) TouchGroup(ctx context.Context, id string, expected int) error {
	tag, err := s.q().Exec(ctx,
		`UPDATE request_groups SET version = version + 1 WHERE id = $1 AND version = $2`, id, expected,
	)
	if err != nil {
		return fmt.Errorf("touch group %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrStale(ctx, "request_groups", id)
	}
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	tag, err := s.q().Exec(ctx, `DELETE FROM request_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete group %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) InsertRequest(ctx context.Context, r *model.Request) error {
	d := flattenDelivery(r)
	_, err := s.q().Exec(ctx,
		`INSERT INTO time_off_requests (`+requestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`,
		r.ID, r.UserID, r.GroupID, r.StartDate, r.EndDate, r.Type, r.FlightNumber,
		r.Status, r.StatusUpdateMethod, r.StatusUpdatedAt, r.ApprovalDate, r.DenialReason,
		r.CustomMessage, r.NeedsReview, r.EmailMode,
		d.sent, d.sentAt, d.failed, d.failedAt, d.err, d.failureCount,
		d.threadID, d.messageID,
		d.to, d.subject, d.body, d.confirmed, d.confirmedAt,
		r.Version, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request %s: %w", r.ID, mapError(err))
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	r, err := scanRequest(s.q().QueryRow(ctx,
		`SELECT `+requestColumns+` FROM time_off_requests WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, mapError(err))
	}
	return r, nil
}

// UpdateRequest writes the mutable columns of r if its version is current.
// Dates, owner, group and email mode never change after creation.
func (s *Store) UpdateRequest(ctx context.Context, r *model.Request) error {
	d := flattenDelivery(r)
	tag, err := s.q().Exec(ctx,
		`UPDATE time_off_requests SET
			type = $3, flight_number = $4,
			status = $5, status_update_method = $6, status_updated_at = $7,
			approval_date = $8, denial_reason = $9, custom_message = $10, needs_review = $11,
			email_sent = $12, email_sent_at = $13, email_failed = $14, email_failed_at = $15,
			email_error = $16, email_failure_count = $17, thread_id = $18, message_id = $19,
			manual_to = $20, manual_subject = $21, manual_body = $22,
			manual_confirmed = $23, manual_confirmed_at = $24,
			updated_at = $25, version = version + 1
		 WHERE id = $1 AND version = $2`,
		r.ID, r.Version,
		r.Type, r.FlightNumber,
		r.Status, r.StatusUpdateMethod, r.StatusUpdatedAt,
		r.ApprovalDate, r.DenialReason, r.CustomMessage, r.NeedsReview,
		d.sent, d.sentAt, d.failed, d.failedAt,
		d.err, d.failureCount, d.threadID, d.messageID,
		d.to, d.subject, d.body,
		d.confirmed, d.confirmedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update request %s: %w", r.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrStale(ctx, "time_off_requests", r.ID)
	}
	r.Version++
	return nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	tag, err := s.q().Exec(ctx, `DELETE FROM time_off_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete request %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete request %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) ListRequestsByUser(ctx context.Context, userID string, from, to time.Time) ([]model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM time_off_requests WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if !from.IsZero() {
		query += fmt.Sprintf(` AND end_date >= $%d`, argIdx)
		args = append(args, from)
		argIdx++
	}
	if !to.IsZero() {
		query += fmt.Sprintf(` AND start_date <= $%d`, argIdx)
		args = append(args, to)
	}
	query += ` ORDER BY start_date`

	return s.queryRequests(ctx, "requests of user "+userID, query, args...)
}

func (s *Store) ListRequestsByThread(ctx context.Context, threadID string) ([]model.Request, error) {
	return s.queryRequests(ctx, "requests of thread "+threadID,
		`SELECT `+requestColumns+` FROM time_off_requests WHERE thread_id = $1 ORDER BY start_date`, threadID)
}

// ListThreads returns one entry per thread of the user, anchored on the
// earliest row of the thread.
func (s *Store) ListThreads(ctx context.Context, userID string) ([]model.ThreadRef, error) {
	rows, err := s.q().Query(ctx,
		`SELECT DISTINCT ON (thread_id) thread_id, id, user_id
		 FROM time_off_requests
		 WHERE user_id = $1 AND thread_id IS NOT NULL
		 ORDER BY thread_id, start_date`, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads of user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.ThreadRef
	for rows.Next() {
		var t model.ThreadRef
		if err := rows.Scan(&t.ThreadID, &t.RequestID, &t.UserID); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return out, nil
}

func (s *Store) SetNeedsReview(ctx context.Context, threadID string, needsReview bool) error {
	_, err := s.q().Exec(ctx,
		`UPDATE time_off_requests SET needs_review = $2 WHERE thread_id = $1`, threadID, needsReview)
	if err != nil {
		return fmt.Errorf("set needs_review on thread %s: %w", threadID, err)
	}
	return nil
}

// ListUsersWithOpenThreads returns the users with at least one request that
// has a correspondence thread, whatever its status.
func (s *Store) ListUsersWithOpenThreads(ctx context.Context) ([]string, error) {
	rows, err := s.q().Query(ctx,
		`SELECT DISTINCT user_id FROM time_off_requests
		 WHERE thread_id IS NOT NULL
		 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users with open threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return ids, nil
}

// missingOrStale explains a versioned write that matched no row.
func (s *Store) missingOrStale(ctx context.Context, table, id string) error {
	var exists bool
	err := s.q().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s %s: %w", table, id, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", table, id, core.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", table, id, core.ErrConcurrentUpdate)
}
