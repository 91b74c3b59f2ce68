package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/edvin/timeoff/internal/model"
	"github.com/edvin/timeoff/internal/platform"
)

// UserService owns user accounts and the preferences the engine reads when
// creating and rendering requests.
type UserService struct {
	repo     Repository
	settings Settings
}

func NewUserService(repo Repository, settings Settings) *UserService {
	return &UserService{repo: repo, settings: settings}
}

// NewUser is the input for creating an account.
type NewUser struct {
	Email     string
	Password  string
	Name      string
	Code      string
	Signature *string
	EmailMode model.EmailMode
	Role      string
}

// Create stores a new user with a hashed password.
func (s *UserService) Create(ctx context.Context, in NewUser) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" || in.Name == "" || in.Code == "" {
		return nil, fmt.Errorf("%w: email, password, name and code are required", ErrValidation)
	}
	mode := in.EmailMode
	if mode == "" {
		mode = model.EmailModeManual
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown email mode %q", ErrValidation, mode)
	}
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.settings.now()
	u := &model.User{
		ID:           platform.NewID(),
		Email:        email,
		PasswordHash: hash,
		Name:         in.Name,
		Code:         strings.ToUpper(in.Code),
		Signature:    in.Signature,
		EmailMode:    mode,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user %s: %w", email, err)
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// GetEmailMode returns the mode new requests of the user are created with.
func (s *UserService) GetEmailMode(ctx context.Context, userID string) (model.EmailMode, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.EmailMode, nil
}

// GetSignatureFields returns the user values rendered into request emails.
func (s *UserService) GetSignatureFields(ctx context.Context, userID string) (model.SignatureFields, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return model.SignatureFields{}, err
	}
	return signatureFields(u), nil
}

func signatureFields(u *model.User) model.SignatureFields {
	f := model.SignatureFields{Code: u.Code, Name: u.Name, Email: u.Email}
	if u.Signature != nil {
		f.Signature = *u.Signature
	}
	return f
}

// MailboxAddress returns the address the user's mail is sent from.
func (s *UserService) MailboxAddress(ctx context.Context, userID string) (string, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// Preferences is a partial update of the user's settings. Nil fields are
// left unchanged.
type Preferences struct {
	EmailMode *model.EmailMode
	Name      *string
	Code      *string
	Signature *string
}

// UpdatePreferences changes the user's settings. A new email mode applies to
// requests created afterwards; existing requests keep the mode they were
// created with.
func (s *UserService) UpdatePreferences(ctx context.Context, userID string, p Preferences) (*model.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if p.EmailMode != nil {
		if !p.EmailMode.Valid() {
			return nil, fmt.Errorf("%w: unknown email mode %q", ErrValidation, *p.EmailMode)
		}
		u.EmailMode = *p.EmailMode
	}
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.Code != nil {
		if strings.TrimSpace(*p.Code) == "" {
			return nil, fmt.Errorf("%w: code must not be empty", ErrValidation)
		}
		u.Code = strings.ToUpper(strings.TrimSpace(*p.Code))
	}
	if p.Signature != nil {
		u.Signature = p.Signature
	}
	u.UpdatedAt = s.settings.now()

	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("update user %s: %w", userID, err)
	}
	return u, nil
}
