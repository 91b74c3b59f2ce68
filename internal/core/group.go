package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/edvin/timeoff/internal/model"
	"github.com/edvin/timeoff/internal/platform"
)

// GroupService creates and removes multi-day requests as a unit.
type GroupService struct {
	repo     Repository
	users    *UserService
	settings Settings
}

func NewGroupService(repo Repository, users *UserService, settings Settings) *GroupService {
	return &GroupService{repo: repo, users: users, settings: settings}
}

// CreateGroup stores one row per date under a new group. The dates must be
// consecutive calendar days, at most MaxGroupDays of them, all inside the
// notice window.
func (s *GroupService) CreateGroup(ctx context.Context, userID string, dates []time.Time, fields RequestFields) (*model.Group, error) {
	days, err := s.consecutiveDays(dates)
	if err != nil {
		return nil, err
	}
	fields.normalize()
	if err := fields.check(); err != nil {
		return nil, err
	}
	for _, d := range days {
		if err := s.settings.checkWindow(d, d); err != nil {
			return nil, err
		}
	}

	mode, err := s.users.GetEmailMode(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.settings.now()
	g := &model.Group{
		ID:        platform.NewID(),
		UserID:    userID,
		Version:   1,
		CreatedAt: now,
	}
	for _, d := range days {
		g.Members = append(g.Members, newRequest(userID, &g.ID, d, fields, mode, now))
	}

	err = s.repo.InTx(ctx, func(tx Repository) error {
		if err := checkOverlap(ctx, tx, userID, days[0], days[len(days)-1]); err != nil {
			return err
		}
		if err := tx.InsertGroup(ctx, g); err != nil {
			return err
		}
		return g.Each(func(r *model.Request) error {
			return tx.InsertRequest(ctx, r)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create group for user %s: %w", userID, err)
	}
	return g, nil
}

func (s *GroupService) consecutiveDays(dates []time.Time) ([]time.Time, error) {
	if len(dates) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least two dates", ErrValidation)
	}
	if s.settings.MaxGroupDays > 0 && len(dates) > s.settings.MaxGroupDays {
		return nil, fmt.Errorf("%w: a group may span at most %d days", ErrValidation, s.settings.MaxGroupDays)
	}

	days := make([]time.Time, len(dates))
	for i, d := range dates {
		days[i] = day(d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	for i := 1; i < len(days); i++ {
		if !days[i].Equal(days[i-1].AddDate(0, 0, 1)) {
			return nil, fmt.Errorf("%w: dates must be consecutive days", ErrValidation)
		}
	}
	return days, nil
}

// FetchGroup returns the group if userID owns it.
func (s *GroupService) FetchGroup(ctx context.Context, groupID, userID string) (*model.Group, error) {
	return getOwnedGroup(ctx, s.repo, groupID, userID)
}

func getOwnedGroup(ctx context.Context, repo Repository, groupID, userID string) (*model.Group, error) {
	g, err := repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", groupID, err)
	}
	if g.UserID != userID {
		return nil, fmt.Errorf("get group %s: %w", groupID, ErrNotFound)
	}
	return g, nil
}

// DeleteGroup removes the group and every member, or nothing when any member
// is no longer editable.
func (s *GroupService) DeleteGroup(ctx context.Context, groupID, userID string) (int, error) {
	var deleted int
	err := s.repo.InTx(ctx, func(tx Repository) error {
		g, err := getOwnedGroup(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if !g.Deletable() {
			return fmt.Errorf("%w: group %s has members that can no longer be deleted", ErrPrecondition, groupID)
		}
		if err := tx.TouchGroup(ctx, g.ID, g.Version); err != nil {
			return err
		}
		if err := g.Each(func(r *model.Request) error {
			return tx.DeleteRequest(ctx, r.ID)
		}); err != nil {
			return err
		}
		deleted = len(g.Members)
		return tx.DeleteGroup(ctx, g.ID)
	})
	if err != nil {
		return 0, fmt.Errorf("delete group %s: %w", groupID, err)
	}
	return deleted, nil
}

// scope is the set of rows one operation writes: a single row, or every
// member of its group. Grouped scopes bump the group version before any row
// is written so concurrent writers on the same group conflict.
type scope struct {
	group *model.Group
	rows  []*model.Request
}

// loadScope returns r alone, or its whole group when wholeGroup is set.
func loadScope(ctx context.Context, repo Repository, r *model.Request, wholeGroup bool) (*scope, error) {
	if !r.IsGrouped() {
		return &scope{rows: []*model.Request{r}}, nil
	}

	g, err := repo.GetGroup(ctx, *r.GroupID)
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", *r.GroupID, err)
	}
	if !wholeGroup {
		return &scope{group: g, rows: []*model.Request{r}}, nil
	}

	rows := make([]*model.Request, len(g.Members))
	for i := range g.Members {
		rows[i] = &g.Members[i]
	}
	return &scope{group: g, rows: rows}, nil
}

// mutate applies fn to every row and persists it. The caller's transaction
// discards everything if any step fails.
func (s *scope) mutate(ctx context.Context, tx Repository, fn func(*model.Request) error) error {
	if s.group != nil {
		if err := tx.TouchGroup(ctx, s.group.ID, s.group.Version); err != nil {
			return fmt.Errorf("lock group %s: %w", s.group.ID, err)
		}
		s.group.Version++
	}
	for _, r := range s.rows {
		if err := fn(r); err != nil {
			return err
		}
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return fmt.Errorf("update request %s: %w", r.ID, err)
		}
	}
	return nil
}

func (s *scope) values() []model.Request {
	out := make([]model.Request, len(s.rows))
	for i, r := range s.rows {
		out[i] = *r
	}
	return out
}

func (s *scope) groupID() *string {
	if s.group == nil {
		return nil
	}
	id := s.group.ID
	return &id
}

// size is the number of rows in the request's group, or 1.
func (s *scope) size() int {
	if s.group == nil {
		return 1
	}
	return len(s.group.Members)
}
