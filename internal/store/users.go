package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/oauth2"

	"github.com/edvin/timeoff/internal/core"
	"github.com/edvin/timeoff/internal/model"
)

const userColumns = `id, email, password_hash, name, code, signature, email_mode, role, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Code, &u.Signature,
		&u.EmailMode, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, u *model.User) error {
	_, err := s.q().Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Code, u.Signature, u.EmailMode, u.Role, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", u.Email, mapError(err))
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.q().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, mapError(err))
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.q().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", mapError(err))
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	tag, err := s.q().Exec(ctx,
		`UPDATE users SET name = $2, code = $3, signature = $4, email_mode = $5, role = $6, updated_at = $7
		 WHERE id = $1`,
		u.ID, u.Name, u.Code, u.Signature, u.EmailMode, u.Role, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user %s: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update user %s: %w", u.ID, core.ErrNotFound)
	}
	return nil
}

// MailToken returns the OAuth token the user granted for their mailbox.
func (s *Store) MailToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	var (
		tok    oauth2.Token
		expiry *time.Time
	)
	err := s.q().QueryRow(ctx,
		`SELECT access_token, refresh_token, token_type, expiry FROM user_mail_tokens WHERE user_id = $1`, userID,
	).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s has not connected a mailbox", core.ErrPrecondition, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get mail token of user %s: %w", userID, err)
	}
	if expiry != nil {
		tok.Expiry = *expiry
	}
	return &tok, nil
}

// SaveMailToken stores tok, keeping the previous refresh token when the
// provider did not issue a new one.
func (s *Store) SaveMailToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		expiry = &tok.Expiry
	}
	_, err := s.q().Exec(ctx,
		`INSERT INTO user_mail_tokens (user_id, access_token, refresh_token, token_type, expiry, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), user_mail_tokens.refresh_token),
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			updated_at = now()`,
		userID, tok.AccessToken, tok.RefreshToken, tok.Type(), expiry,
	)
	if err != nil {
		return fmt.Errorf("save mail token of user %s: %w", userID, err)
	}
	return nil
}
