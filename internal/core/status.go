package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/timeoff/internal/metrics"
	"github.com/edvin/timeoff/internal/model"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// StatusService applies approval decisions to requests.
type StatusService struct {
	repo     Repository
	settings Settings
}

func NewStatusService(repo Repository, settings Settings) *StatusService {
	return &StatusService{repo: repo, settings: settings}
}

// StatusUpdate is one status decision.
type StatusUpdate struct {
	RequestID    string
	Target       model.Status
	Method       string
	DenialReason *string
	ApplyToGroup bool
	// ExpectedVersion, when set, must match the row's version.
	ExpectedVersion *int
}

type StatusResult struct {
	RequestID    string       `json:"request_id"`
	UpdatedCount int          `json:"updated_count"`
	Status       model.Status `json:"status"`
	Method       string       `json:"method"`
	IsGroup      bool         `json:"is_group"`
	GroupID      *string      `json:"group_id"`
}

var validMethods = map[string]bool{
	model.MethodManualUserUpdate:  true,
	model.MethodAdminUpdate:       true,
	model.MethodReplyEmailParsing: true,
}

// SetStatus applies upd to the request, or to every row of its group when
// ApplyToGroup is set. Nothing is written unless the email of every affected
// row has gone out. Admins may act on requests they do not own. The
// reply_email_parsing method is only recorded by reply processing.
func (s *StatusService) SetStatus(ctx context.Context, actor Actor, upd StatusUpdate) (*StatusResult, error) {
	if upd.Method == model.MethodReplyEmailParsing {
		return nil, fmt.Errorf("%w: status update method %q is reserved for reply processing", ErrValidation, upd.Method)
	}

	var result *StatusResult
	err := s.repo.InTx(ctx, func(tx Repository) error {
		var err error
		result, err = s.setStatus(ctx, tx, actor, upd, s.settings.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set status of request %s: %w", upd.RequestID, err)
	}

	metrics.StatusUpdatesTotal.WithLabelValues(result.Method, string(result.Status)).Add(float64(result.UpdatedCount))
	zerolog.Ctx(ctx).Info().
		Str("request_id", upd.RequestID).
		Str("status", string(result.Status)).
		Str("method", result.Method).
		Int("rows", result.UpdatedCount).
		Msg("request status set")
	return result, nil
}

// setStatus runs inside the caller's transaction.
func (s *StatusService) setStatus(ctx context.Context, tx Repository, actor Actor, upd StatusUpdate, now time.Time) (*StatusResult, error) {
	if !upd.Target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, upd.Target)
	}

	r, err := tx.GetRequest(ctx, upd.RequestID)
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", upd.RequestID, err)
	}
	owner := r.UserID == actor.UserID
	if !owner && !actor.IsAdmin() {
		return nil, fmt.Errorf("get request %s: %w", upd.RequestID, ErrNotFound)
	}

	method := upd.Method
	if method == "" {
		method = model.MethodManualUserUpdate
		if !owner {
			method = model.MethodAdminUpdate
		}
	}
	if !validMethods[method] {
		return nil, fmt.Errorf("%w: unknown status update method %q", ErrValidation, method)
	}
	if method == model.MethodAdminUpdate && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: status update method %q requires an admin", ErrValidation, method)
	}

	if upd.ExpectedVersion != nil && *upd.ExpectedVersion != r.Version {
		return nil, fmt.Errorf("request %s is at version %d, not %d: %w",
			r.ID, r.Version, *upd.ExpectedVersion, ErrConcurrentUpdate)
	}

	sc, err := loadScope(ctx, tx, r, upd.ApplyToGroup)
	if err != nil {
		return nil, err
	}

	change := model.StatusChange{
		Target:       upd.Target,
		Method:       method,
		DenialReason: upd.DenialReason,
		At:           now,
	}
	if err := sc.mutate(ctx, tx, func(m *model.Request) error {
		next, err := model.ApplyStatus(*m, change)
		if errors.Is(err, model.ErrEmailNotDispatched) {
			return fmt.Errorf("%w: email for request %s has not been sent or confirmed", ErrPrecondition, m.ID)
		}
		if err != nil {
			return err
		}
		next.UpdatedAt = now
		*m = next
		return nil
	}); err != nil {
		return nil, err
	}

	return &StatusResult{
		RequestID:    r.ID,
		UpdatedCount: len(sc.rows),
		Status:       upd.Target,
		Method:       method,
		IsGroup:      sc.group != nil,
		GroupID:      sc.groupID(),
	}, nil
}
