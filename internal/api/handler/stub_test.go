package handler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edvin/timeoff/internal/core"
	"github.com/edvin/timeoff/internal/mail"
	"github.com/edvin/timeoff/internal/model"
)

// stubRepo implements the parts of core.Repository the handler tests reach.
// Any other method panics through the nil embedded interface.
type stubRepo struct {
	core.Repository
	users    map[string]*model.User
	requests map[string]*model.Request
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: map[string]*model.User{}, requests: map[string]*model.Request{}}
}

func (s *stubRepo) InTx(_ context.Context, fn func(tx core.Repository) error) error {
	return fn(s)
}

func (s *stubRepo) GetUser(_ context.Context, id string) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *stubRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *stubRepo) UpdateUser(_ context.Context, u *model.User) error {
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *stubRepo) GetRequest(_ context.Context, id string) (*model.Request, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, core.ErrNotFound)
	}
	c := *r
	return &c, nil
}

func (s *stubRepo) UpdateRequest(_ context.Context, r *model.Request) error {
	stored, ok := s.requests[r.ID]
	if !ok {
		return core.ErrNotFound
	}
	if stored.Version != r.Version {
		return core.ErrConcurrentUpdate
	}
	r.Version++
	c := *r
	s.requests[r.ID] = &c
	return nil
}

func (s *stubRepo) ListRequestsByUser(_ context.Context, userID string, _, _ time.Time) ([]model.Request, error) {
	var out []model.Request
	for _, r := range s.requests {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

var day = time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

// addRequest stores a single-day request in mode for userID.
func (s *stubRepo) addRequest(id, userID string, mode model.EmailMode) *model.Request {
	auto, manual := model.NewDelivery(mode)
	r := &model.Request{
		ID:        id,
		UserID:    userID,
		StartDate: day,
		EndDate:   day,
		Type:      model.TypeDayOff,
		Status:    model.StatusPending,
		EmailMode: mode,
		Automatic: auto,
		Manual:    manual,
		Version:   1,
	}
	s.requests[id] = r
	return r
}

func newTestServices(t *testing.T, repo *stubRepo) *core.Services {
	t.Helper()
	templates, err := core.LoadTemplates("")
	require.NoError(t, err)

	return core.NewServices(repo, mail.Disabled{},
		core.AuthSettings{Secret: "handler-test-secret-handler-test-secret", Issuer: "timeoff"},
		core.Settings{
			SchedulingEmail: "crew@example.com",
			MinNoticeDays:   1,
			MaxAdvanceDays:  120,
			MaxGroupDays:    4,
			Templates:       templates,
			Now:             func() time.Time { return day.AddDate(0, 0, -10) },
		})
}
