package core

import (
	"time"

	"github.com/edvin/timeoff/internal/mail"
)

// Settings are the engine's tunables.
type Settings struct {
	// SchedulingEmail receives every request email.
	SchedulingEmail string
	// MinNoticeDays and MaxAdvanceDays bound the start date relative to today.
	MinNoticeDays  int
	MaxAdvanceDays int
	MaxGroupDays   int
	SendTimeout    time.Duration
	Templates      Templates
	Now            func() time.Time
}

func (s Settings) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s Settings) sendTimeout() time.Duration {
	if s.SendTimeout <= 0 {
		return 15 * time.Second
	}
	return s.SendTimeout
}

type Services struct {
	User     *UserService
	Auth     *AuthService
	Request  *RequestService
	Group    *GroupService
	Dispatch *DispatchService
	Status   *StatusService
	Reply    *ReplyService
}

func NewServices(repo Repository, transport mail.Transport, auth AuthSettings, settings Settings) *Services {
	users := NewUserService(repo, settings)
	groups := NewGroupService(repo, users, settings)
	status := NewStatusService(repo, settings)
	return &Services{
		User:     users,
		Auth:     NewAuthService(repo, auth),
		Request:  NewRequestService(repo, users, groups, settings),
		Group:    groups,
		Dispatch: NewDispatchService(repo, transport, settings),
		Status:   status,
		Reply:    NewReplyService(repo, transport, status, settings),
	}
}
