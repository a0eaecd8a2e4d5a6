package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chepyr/tasktracker/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type SessionConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims carried by a session token. The subject is the user id and the
// token id is what the denylist records.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// Session is an authenticated token together with the identity it names.
type Session struct {
	Identity  models.Identity
	TokenID   string
	ExpiresAt time.Time
}

// SessionIssuer turns identities into signed bearer tokens and back. Tokens
// are stateless; only invalidation touches shared state.
type SessionIssuer struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	denylist Denylist
	now      func() time.Time
}

func NewSessionIssuer(cfg SessionConfig, denylist Denylist, now func() time.Time) *SessionIssuer {
	if now == nil {
		now = time.Now
	}
	if denylist == nil {
		denylist = NewMemoryDenylist(now)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionIssuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		ttl:      ttl,
		denylist: denylist,
		now:      now,
	}
}

func (s *SessionIssuer) Issue(id models.Identity) (Token, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	jti := uuid.NewString()
	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   id.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	// expiry is carried with second precision
	exp = exp.Truncate(time.Second)
	return Token{Value: signed, ID: jti, ExpiresAt: exp, ExpiresIn: s.ttl}, nil
}

// Authenticate resolves a token to its session. Expired tokens yield
// ErrTokenExpired; forged, malformed or revoked ones ErrTokenInvalid.
func (s *SessionIssuer) Authenticate(ctx context.Context, raw string) (*Session, error) {
	if raw == "" {
		return nil, ErrTokenMissing
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid.Wrap(err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check denylist: %w", err)
	}
	if revoked {
		return nil, ErrTokenInvalid
	}

	return &Session{
		Identity:  models.Identity{ID: userID, Name: claims.Name, Email: claims.Email},
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh swaps a valid token for a new one. The old token is revoked first,
// so of two concurrent refreshes of the same token only one succeeds.
func (s *SessionIssuer) Refresh(ctx context.Context, raw string) (Token, *Session, error) {
	sess, err := s.Authenticate(ctx, raw)
	if err != nil {
		return Token{}, nil, err
	}
	added, err := s.denylist.Revoke(ctx, sess.TokenID, sess.ExpiresAt)
	if err != nil {
		return Token{}, nil, fmt.Errorf("revoke token: %w", err)
	}
	if !added {
		return Token{}, nil, ErrTokenInvalid
	}
	tok, err := s.Issue(sess.Identity)
	if err != nil {
		return Token{}, nil, err
	}
	return tok, sess, nil
}

// Invalidate revokes the token for the rest of its lifetime.
func (s *SessionIssuer) Invalidate(ctx context.Context, raw string) error {
	sess, err := s.Authenticate(ctx, raw)
	if err != nil {
		return err
	}
	if _, err := s.denylist.Revoke(ctx, sess.TokenID, sess.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}
