package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chepyr/tasktracker/internal/apperr"
	"github.com/chepyr/tasktracker/internal/db"
	"github.com/chepyr/tasktracker/internal/models"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

type RegisterInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

var namePattern = regexp.MustCompile(`^[\p{L}\s]+$`)

// Normalize trims the name and lowercases the email.
func (in *RegisterInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
}

func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name,
			validation.Required.Error("The name field is required."),
			validation.RuneLength(1, 255).Error("The name field must not be greater than 255 characters."),
			validation.Match(namePattern).Error("The name field must only contain letters and spaces."),
		),
		validation.Field(&in.Email,
			validation.Required.Error("The email field is required."),
			validation.RuneLength(1, 255).Error("The email field must not be greater than 255 characters."),
			is.Email.Error("The email field must be a valid email address."),
		),
		validation.Field(&in.Password, passwordRules()...),
		validation.Field(&in.PasswordConfirmation,
			validation.By(func(value interface{}) error {
				if s, _ := value.(string); s != in.Password {
					return errors.New("The password field confirmation does not match.")
				}
				return nil
			}),
		),
	)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CredentialStore registers users and verifies their passwords.
type CredentialStore struct {
	users   db.UserRepositoryInterface
	hasher  *PasswordHasher
	breach  BreachChecker
	now     func() time.Time
	dummyMu sync.Once
	dummy   string
}

func NewCredentialStore(users db.UserRepositoryInterface, hasher *PasswordHasher, breach BreachChecker) *CredentialStore {
	if breach == nil {
		breach = NoBreachCheck{}
	}
	return &CredentialStore{users: users, hasher: hasher, breach: breach, now: time.Now}
}

// Register validates the input, consults the breach corpus and stores the
// new user. Failures are, in order: validation (including the password
// policy), EMAIL_TAKEN, PASSWORD_COMPROMISED, BREACH_CHECK_UNAVAILABLE.
func (s *CredentialStore) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		verr := ValidationError(err)
		if e, ok := apperr.As(verr); ok && len(e.Fields) == 1 && e.Fields["password"] != "" {
			return nil, fieldError(ErrWeakPassword, "password", e.Fields["password"])
		}
		return nil, verr
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, fieldError(ErrEmailTaken, "email", ErrEmailTaken.Message)
	} else if !errors.Is(err, db.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	compromised, err := s.breach.Compromised(ctx, in.Password)
	if err != nil {
		return nil, ErrBreachCheckUnavailable.Wrap(err)
	}
	if compromised {
		return nil, fieldError(ErrPasswordCompromised, "password", ErrPasswordCompromised.Message)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, db.ErrEmailExists) {
			return nil, fieldError(ErrEmailTaken, "email", ErrEmailTaken.Message)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Verify returns the user owning email if password matches. Unknown emails
// and wrong passwords are indistinguishable, and an unknown email still pays
// for one bcrypt comparison.
func (s *CredentialStore) Verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, db.ErrUserNotFound) {
		s.hasher.Verify(password, s.dummyHash())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// User loads a user by id.
func (s *CredentialStore) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *CredentialStore) dummyHash() string {
	s.dummyMu.Do(func() {
		h, err := s.hasher.Hash(uuid.NewString())
		if err == nil {
			s.dummy = h
		}
	})
	return s.dummy
}
