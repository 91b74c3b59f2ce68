package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/timeoff/internal/core"
	"github.com/edvin/timeoff/internal/model"
)

const replyColumns = `id, request_id, user_id, thread_id, message_id, internet_message_id,
	from_email, from_name, subject, content, raw_content, received_at,
	is_processed, processed_at, processed_by,
	user_reply_sent, user_reply_content, user_reply_sent_at, created_at`

func scanReply(row pgx.Row) (*model.Reply, error) {
	var r model.Reply
	err := row.Scan(
		&r.ID, &r.RequestID, &r.UserID, &r.ThreadID, &r.MessageID, &r.InternetMessageID,
		&r.FromEmail, &r.FromName, &r.Subject, &r.Content, &r.RawContent, &r.ReceivedAt,
		&r.IsProcessed, &r.ProcessedAt, &r.ProcessedBy,
		&r.UserReplySent, &r.UserReplyContent, &r.UserReplySentAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) queryReplies(ctx context.Context, what, query string, args ...any) ([]model.Reply, error) {
	rows, err := s.q().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer rows.Close()

	var out []model.Reply
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}

// InsertReply stores rep unless a reply with the same provider message id
// exists. It reports whether a row was written.
func (s *Store) InsertReply(ctx context.Context, rep *model.Reply) (bool, error) {
	tag, err := s.q().Exec(ctx,
		`INSERT INTO email_replies (`+replyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (message_id) DO NOTHING`,
		rep.ID, rep.RequestID, rep.UserID, rep.ThreadID, rep.MessageID, rep.InternetMessageID,
		rep.FromEmail, rep.FromName, rep.Subject, rep.Content, rep.RawContent, rep.ReceivedAt,
		rep.IsProcessed, rep.ProcessedAt, rep.ProcessedBy,
		rep.UserReplySent, rep.UserReplyContent, rep.UserReplySentAt, rep.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert reply %s: %w", rep.MessageID, mapError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetReply(ctx context.Context, id string) (*model.Reply, error) {
	r, err := scanReply(s.q().QueryRow(ctx,
		`SELECT `+replyColumns+` FROM email_replies WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get reply %s: %w", id, mapError(err))
	}
	return r, nil
}

// UpdateReply writes the processing and answer state of rep.
func (s *Store) UpdateReply(ctx context.Context, rep *model.Reply) error {
	tag, err := s.q().Exec(ctx,
		`UPDATE email_replies SET
			is_processed = $2, processed_at = $3, processed_by = $4,
			user_reply_sent = $5, user_reply_content = $6, user_reply_sent_at = $7
		 WHERE id = $1`,
		rep.ID, rep.IsProcessed, rep.ProcessedAt, rep.ProcessedBy,
		rep.UserReplySent, rep.UserReplyContent, rep.UserReplySentAt,
	)
	if err != nil {
		return fmt.Errorf("update reply %s: %w", rep.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update reply %s: %w", rep.ID, core.ErrNotFound)
	}
	return nil
}

func (s *Store) ListRepliesByThread(ctx context.Context, threadID string) ([]model.Reply, error) {
	return s.queryReplies(ctx, "replies of thread "+threadID,
		`SELECT `+replyColumns+` FROM email_replies WHERE thread_id = $1 ORDER BY received_at, id`, threadID)
}

func (s *Store) ListRepliesByUser(ctx context.Context, userID string, unprocessedOnly bool) ([]model.Reply, error) {
	query := `SELECT ` + replyColumns + ` FROM email_replies WHERE user_id = $1`
	if unprocessedOnly {
		query += ` AND NOT is_processed`
	}
	query += ` ORDER BY received_at DESC, id`
	return s.queryReplies(ctx, "replies of user "+userID, query, userID)
}

func (s *Store) CountUnprocessedReplies(ctx context.Context, threadID string) (int, error) {
	var n int
	err := s.q().QueryRow(ctx,
		`SELECT count(*) FROM email_replies WHERE thread_id = $1 AND NOT is_processed`, threadID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unprocessed replies of thread %s: %w", threadID, err)
	}
	return n, nil
}
