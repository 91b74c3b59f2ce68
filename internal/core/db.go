package core

import (
	"context"
	"time"

	"github.com/edvin/timeoff/internal/model"
)

// Repository is the persistence used by the services. Lookups return
// ErrNotFound for missing rows; updates return ErrConcurrentUpdate when the
// stored version no longer matches.
type Repository interface {
	// InTx runs fn inside one transaction. If fn returns an error nothing
	// it wrote is kept.
	InTx(ctx context.Context, fn func(tx Repository) error) error

	InsertGroup(ctx context.Context, g *model.Group) error
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	// TouchGroup bumps the group version, failing if it is not expected.
	TouchGroup(ctx context.Context, id string, expected int) error
	DeleteGroup(ctx context.Context, id string) error

	InsertRequest(ctx context.Context, r *model.Request) error
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	// UpdateRequest writes r and increments r.Version.
	UpdateRequest(ctx context.Context, r *model.Request) error
	DeleteRequest(ctx context.Context, id string) error
	// ListRequestsByUser returns requests overlapping [from, to]. A zero
	// bound is open.
	ListRequestsByUser(ctx context.Context, userID string, from, to time.Time) ([]model.Request, error)
	ListRequestsByThread(ctx context.Context, threadID string) ([]model.Request, error)
	ListThreads(ctx context.Context, userID string) ([]model.ThreadRef, error)
	SetNeedsReview(ctx context.Context, threadID string, needsReview bool) error

	// InsertReply stores rep unless its message id is already known; it
	// reports whether a row was created.
	InsertReply(ctx context.Context, rep *model.Reply) (bool, error)
	GetReply(ctx context.Context, id string) (*model.Reply, error)
	UpdateReply(ctx context.Context, rep *model.Reply) error
	ListRepliesByThread(ctx context.Context, threadID string) ([]model.Reply, error)
	ListRepliesByUser(ctx context.Context, userID string, unprocessedOnly bool) ([]model.Reply, error)
	CountUnprocessedReplies(ctx context.Context, threadID string) (int, error)

	InsertUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	ListUsersWithOpenThreads(ctx context.Context) ([]string, error)
}
