package activity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/timeoff/internal/core"
)

// UserLister finds the users whose requests have a provider thread to read.
// *store.Store satisfies this interface.
type UserLister interface {
	ListUsersWithOpenThreads(ctx context.Context) ([]string, error)
}

// ReplyChecker reads new messages from a user's request threads.
// *core.ReplyService satisfies this interface.
type ReplyChecker interface {
	CheckForNewReplies(ctx context.Context, userID string) (*core.CheckResult, error)
}

// Replies contains the activities behind the scheduled reply check.
type Replies struct {
	users   UserLister
	replies ReplyChecker
	logger  zerolog.Logger
}

// NewReplies creates a new Replies activity struct.
func NewReplies(users UserLister, replies ReplyChecker, logger zerolog.Logger) *Replies {
	return &Replies{users: users, replies: replies, logger: logger}
}

// CheckUserRepliesResult is the outcome of one user's reply check.
type CheckUserRepliesResult struct {
	UserID     string `json:"user_id"`
	Checked    int    `json:"checked"`
	Failed     int    `json:"failed"`
	NewReplies int    `json:"new_replies"`
}

// ListUsersWithOpenThreads returns the IDs of users with at least one
// dispatched request thread.
func (a *Replies) ListUsersWithOpenThreads(ctx context.Context) ([]string, error) {
	ids, err := a.users.ListUsersWithOpenThreads(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users with open threads: %w", err)
	}
	return ids, nil
}

// CheckUserReplies stores the new replies on every thread of the user's
// requests.
func (a *Replies) CheckUserReplies(ctx context.Context, userID string) (*CheckUserRepliesResult, error) {
	logger := a.logger.With().Str("user_id", userID).Logger()
	ctx = logger.WithContext(ctx)

	res, err := a.replies.CheckForNewReplies(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check replies for user %s: %w", userID, err)
	}

	if len(res.NewReplies) > 0 || res.Failed > 0 {
		logger.Info().
			Int("checked", res.Checked).
			Int("failed", res.Failed).
			Int("new_replies", len(res.NewReplies)).
			Msg("reply check finished")
	}
	return &CheckUserRepliesResult{
		UserID:     userID,
		Checked:    res.Checked,
		Failed:     res.Failed,
		NewReplies: len(res.NewReplies),
	}, nil
}
