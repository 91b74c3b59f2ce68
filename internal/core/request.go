package core

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/timeoff/internal/model"
	"github.com/edvin/timeoff/internal/platform"
)

var flightNumberRe = regexp.MustCompile(`^[A-Z]{2,3}\d{1,4}[A-Z]?$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("flight", func(fl validator.FieldLevel) bool {
		return flightNumberRe.MatchString(fl.Field().String())
	})
	return v
}

// RequestFields are the values shared by every row created by one action.
type RequestFields struct {
	Type          model.RequestType `validate:"required"`
	FlightNumber  *string           `validate:"omitempty,flight"`
	CustomMessage *string           `validate:"omitempty,max=2000"`
}

func (f *RequestFields) normalize() {
	if f.FlightNumber != nil {
		n := strings.ToUpper(strings.TrimSpace(*f.FlightNumber))
		f.FlightNumber = &n
		if n == "" || f.Type != model.TypeFlight {
			f.FlightNumber = nil
		}
	}
	if f.CustomMessage != nil {
		m := strings.TrimSpace(*f.CustomMessage)
		f.CustomMessage = &m
		if m == "" {
			f.CustomMessage = nil
		}
	}
}

// check validates type and flight number rules.
func (f RequestFields) check() error {
	if !f.Type.Valid() {
		return fmt.Errorf("%w: unknown request type %q", ErrValidation, f.Type)
	}
	if f.Type == model.TypeFlight && f.FlightNumber == nil {
		return fmt.Errorf("%w: flight number is required for flight requests", ErrValidation)
	}
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	var msgs []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "flight":
			msgs = append(msgs, fmt.Sprintf("invalid flight number %q", fe.Value()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s exceeds %s characters", strings.ToLower(fe.Field()), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// day truncates t to its UTC calendar date.
func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// checkWindow enforces end >= start and the advance-notice window on start.
func (s Settings) checkWindow(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrValidation,
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	today := day(s.now())
	earliest := today.AddDate(0, 0, s.MinNoticeDays)
	latest := today.AddDate(0, 0, s.MaxAdvanceDays)
	if start.Before(earliest) {
		return fmt.Errorf("%w: %s is inside the %d day notice period", ErrValidation,
			start.Format(time.DateOnly), s.MinNoticeDays)
	}
	if start.After(latest) {
		return fmt.Errorf("%w: %s is more than %d days ahead", ErrValidation,
			start.Format(time.DateOnly), s.MaxAdvanceDays)
	}
	return nil
}

// checkOverlap fails when the user already has a request on any of the days.
func checkOverlap(ctx context.Context, repo Repository, userID string, from, to time.Time) error {
	existing, err := repo.ListRequestsByUser(ctx, userID, from, to)
	if err != nil {
		return fmt.Errorf("list requests for user %s: %w", userID, err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: a request already exists for %s", ErrValidation, existing[0].StartDate.Format(time.DateOnly))
	}
	return nil
}

// RequestService stores and validates individual request rows.
type RequestService struct {
	repo     Repository
	users    *UserService
	groups   *GroupService
	settings Settings
}

func NewRequestService(repo Repository, users *UserService, groups *GroupService, settings Settings) *RequestService {
	return &RequestService{repo: repo, users: users, groups: groups, settings: settings}
}

// Create stores the rows for one user action: a single row for one date, a
// group for several consecutive dates. Nothing is sent here.
func (s *RequestService) Create(ctx context.Context, userID string, dates []time.Time, fields RequestFields) ([]model.Request, error) {
	switch len(dates) {
	case 0:
		return nil, fmt.Errorf("%w: at least one date is required", ErrValidation)
	case 1:
		r, err := s.createSingle(ctx, userID, day(dates[0]), fields)
		if err != nil {
			return nil, err
		}
		return []model.Request{*r}, nil
	}

	g, err := s.groups.CreateGroup(ctx, userID, dates, fields)
	if err != nil {
		return nil, err
	}
	return g.Members, nil
}

func (s *RequestService) createSingle(ctx context.Context, userID string, date time.Time, fields RequestFields) (*model.Request, error) {
	fields.normalize()
	if err := fields.check(); err != nil {
		return nil, err
	}
	if err := s.settings.checkWindow(date, date); err != nil {
		return nil, err
	}

	mode, err := s.users.GetEmailMode(ctx, userID)
	if err != nil {
		return nil, err
	}

	r := newRequest(userID, nil, date, fields, mode, s.settings.now())
	err = s.repo.InTx(ctx, func(tx Repository) error {
		if err := checkOverlap(ctx, tx, userID, date, date); err != nil {
			return err
		}
		return tx.InsertRequest(ctx, &r)
	})
	if err != nil {
		return nil, fmt.Errorf("create request for user %s: %w", userID, err)
	}
	return &r, nil
}

func newRequest(userID string, groupID *string, date time.Time, fields RequestFields, mode model.EmailMode, now time.Time) model.Request {
	auto, manual := model.NewDelivery(mode)
	return model.Request{
		ID:            platform.NewID(),
		UserID:        userID,
		GroupID:       groupID,
		StartDate:     date,
		EndDate:       date,
		Type:          fields.Type,
		FlightNumber:  fields.FlightNumber,
		Status:        model.StatusPending,
		CustomMessage: fields.CustomMessage,
		EmailMode:     mode,
		Automatic:     auto,
		Manual:        manual,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Get returns the request if userID owns it.
func (s *RequestService) Get(ctx context.Context, id, userID string) (*model.Request, error) {
	return getOwned(ctx, s.repo, id, userID)
}

func getOwned(ctx context.Context, repo Repository, id, userID string) (*model.Request, error) {
	r, err := repo.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("get request %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// List returns the user's requests overlapping [from, to], ordered by date.
func (s *RequestService) List(ctx context.Context, userID string, from, to time.Time) ([]model.Request, error) {
	if !to.IsZero() && to.Before(from) {
		return nil, fmt.Errorf("%w: range end is before range start", ErrValidation)
	}
	rows, err := s.repo.ListRequestsByUser(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list requests for user %s: %w", userID, err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].StartDate.Before(rows[j].StartDate) })
	return rows, nil
}

// RequestUpdate is a partial content update. Nil fields are left unchanged.
type RequestUpdate struct {
	Type          *model.RequestType
	FlightNumber  *string
	CustomMessage *string
}

// Update changes the content of an editable request. Grouped rows share their
// content, so the change is applied to every member. A manual email that was
// prepared but not yet confirmed is rendered again from the new content.
func (s *RequestService) Update(ctx context.Context, id, userID string, upd RequestUpdate) ([]model.Request, error) {
	var out []model.Request
	err := s.repo.InTx(ctx, func(tx Repository) error {
		r, err := getOwned(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		scope, err := loadScope(ctx, tx, r, true)
		if err != nil {
			return err
		}

		fields := RequestFields{Type: r.Type, FlightNumber: r.FlightNumber, CustomMessage: r.CustomMessage}
		if upd.Type != nil {
			fields.Type = *upd.Type
		}
		if upd.FlightNumber != nil {
			fields.FlightNumber = upd.FlightNumber
		}
		if upd.CustomMessage != nil {
			fields.CustomMessage = upd.CustomMessage
		}
		fields.normalize()
		if err := fields.check(); err != nil {
			return err
		}

		content, err := s.refreshedContent(ctx, tx, userID, scope, fields)
		if err != nil {
			return err
		}

		if err := scope.mutate(ctx, tx, func(m *model.Request) error {
			if !m.Editable() {
				return fmt.Errorf("%w: request %s can no longer be edited", ErrPrecondition, m.ID)
			}
			fields.apply(m)
			if content != nil && m.Manual != nil && m.Manual.Content != nil {
				c := *content
				m.Manual.Content = &c
			}
			m.UpdatedAt = s.settings.now()
			return nil
		}); err != nil {
			return err
		}
		out = scope.values()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update request %s: %w", id, err)
	}
	return out, nil
}

func (f RequestFields) apply(m *model.Request) {
	m.Type = f.Type
	m.FlightNumber = f.FlightNumber
	m.CustomMessage = f.CustomMessage
}

// refreshedContent renders the manual email for the scope with fields
// applied. It returns nil when no row carries prepared content.
func (s *RequestService) refreshedContent(ctx context.Context, tx Repository, userID string, sc *scope, fields RequestFields) (*model.EmailContent, error) {
	prepared := false
	for _, m := range sc.rows {
		if m.Manual != nil && m.Manual.Content != nil && !m.Manual.Confirmed {
			prepared = true
			break
		}
	}
	if !prepared {
		return nil, nil
	}

	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	rows := sc.values()
	for i := range rows {
		fields.apply(&rows[i])
	}
	content := s.settings.renderRequest(user, rows)
	return &content, nil
}

// Delete removes a request. A grouped request is removed with its whole group.
func (s *RequestService) Delete(ctx context.Context, id, userID string) (int, error) {
	r, err := getOwned(ctx, s.repo, id, userID)
	if err != nil {
		return 0, err
	}
	if r.IsGrouped() {
		return s.groups.DeleteGroup(ctx, *r.GroupID, userID)
	}

	err = s.repo.InTx(ctx, func(tx Repository) error {
		current, err := getOwned(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if !current.Editable() {
			return fmt.Errorf("%w: request %s can no longer be deleted", ErrPrecondition, id)
		}
		return tx.DeleteRequest(ctx, id)
	})
	if err != nil {
		return 0, fmt.Errorf("delete request %s: %w", id, err)
	}
	return 1, nil
}
