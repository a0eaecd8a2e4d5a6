package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chepyr/tasktracker/internal/apperr"
	"github.com/chepyr/tasktracker/internal/db"
	"github.com/chepyr/tasktracker/internal/models"
)

// ClientInfo describes the caller of an auth operation, for logging and
// throttling.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Service wires the credential store, the session issuer and the login
// limiter into the auth use cases.
type Service struct {
	credentials *CredentialStore
	sessions    *SessionIssuer
	limiter     Limiter
	logger      *slog.Logger
}

func NewService(credentials *CredentialStore, sessions *SessionIssuer, limiter Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{credentials: credentials, sessions: sessions, limiter: limiter, logger: logger}
}

func (s *Service) Register(ctx context.Context, in RegisterInput, client ClientInfo) (*models.User, Token, error) {
	user, err := s.credentials.Register(ctx, in)
	if err != nil {
		s.logger.Warn("registration failed",
			"email", NormalizeEmail(in.Email), "ip", client.IP,
			"kind", apperr.KindOf(err), "fields", FieldNames(err), "error", err)
		return nil, Token{}, err
	}
	tok, err := s.sessions.Issue(user.Identity())
	if err != nil {
		return nil, Token{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email, "ip", client.IP)
	return user, tok, nil
}

// LoginKeys are the throttle keys of a login attempt.
func LoginKeys(email, ip string) []string {
	return []string{"login:ip:" + ip, "login:email:" + NormalizeEmail(email)}
}

// Login checks the throttle before the credentials, so an attempt over the
// limit is refused even with the right password.
func (s *Service) Login(ctx context.Context, email, password string, client ClientInfo) (*models.User, Token, error) {
	if s.limiter != nil {
		res, err := s.limiter.Attempt(ctx, LoginKeys(email, client.IP)...)
		if err != nil {
			return nil, Token{}, fmt.Errorf("login limiter: %w", err)
		}
		if !res.Allowed {
			s.logger.Warn("login rate limited", "email", NormalizeEmail(email), "ip", client.IP, "retry_after", res.RetryAfter)
			return nil, Token{}, ErrRateLimited.WithRetryAfter(res.RetryAfter)
		}
	}

	user, err := s.credentials.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.Warn("failed login attempt", "email", NormalizeEmail(email), "ip", client.IP, "user_agent", client.UserAgent)
		}
		return nil, Token{}, err
	}
	tok, err := s.sessions.Issue(user.Identity())
	if err != nil {
		return nil, Token{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID, "ip", client.IP)
	return user, tok, nil
}

// Authenticate resolves a bearer token to a live user. A token whose user
// no longer exists is invalid.
func (s *Service) Authenticate(ctx context.Context, raw string) (*Session, error) {
	sess, err := s.sessions.Authenticate(ctx, raw)
	if err != nil {
		return nil, err
	}
	user, err := s.credentials.User(ctx, sess.Identity.ID)
	if errors.Is(err, db.ErrUserNotFound) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	sess.Identity = user.Identity()
	return sess, nil
}

func (s *Service) Logout(ctx context.Context, raw string) error {
	sess, err := s.Authenticate(ctx, raw)
	if err != nil {
		return err
	}
	if err := s.sessions.Invalidate(ctx, raw); err != nil {
		return err
	}
	s.logger.Info("user logged out", "user_id", sess.Identity.ID)
	return nil
}

func (s *Service) Refresh(ctx context.Context, raw string) (Token, error) {
	if _, err := s.Authenticate(ctx, raw); err != nil {
		return Token{}, err
	}
	tok, sess, err := s.sessions.Refresh(ctx, raw)
	if err != nil {
		return Token{}, err
	}
	s.logger.Info("token refreshed", "user_id", sess.Identity.ID)
	return tok, nil
}

// WhoAmI returns the current record of the authenticated user.
func (s *Service) WhoAmI(ctx context.Context, id models.Identity) (*models.User, error) {
	if !id.Authenticated() {
		return nil, ErrTokenMissing
	}
	user, err := s.credentials.User(ctx, id.ID)
	if errors.Is(err, db.ErrUserNotFound) {
		return nil, ErrTokenInvalid
	}
	return user, err
}
