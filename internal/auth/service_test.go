package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chepyr/tasktracker/internal/apperr"
	"github.com/chepyr/tasktracker/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clock := newClock()
	store, _ := newTestStore(t, nil)
	limiter := NewRateLimiter(5, time.Minute, clock.Now)
	t.Cleanup(limiter.Close)
	return NewService(store, newTestIssuer(clock), limiter, discardLogger()), clock
}

var client = ClientInfo{IP: "10.0.0.1", UserAgent: "test"}

func TestService_RegisterLoginWhoAmI(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, tok, err := svc.Register(ctx, registration("ANN@X.COM"), client)
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", user.Email)
	assert.NotEmpty(t, tok.Value)

	loggedIn, tok, err := svc.Login(ctx, "ann@x.com", goodPassword, client)
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	sess, err := svc.Authenticate(ctx, tok.Value)
	require.NoError(t, err)
	me, err := svc.WhoAmI(ctx, sess.Identity)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
	assert.Equal(t, "Ann Smith", me.Name)
}

func TestService_SixthLoginRejectedEvenWithCorrectPassword(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.Register(ctx, registration("ann@x.com"), client)
	require.NoError(t, err)

	for i := range 5 {
		_, _, err := svc.Login(ctx, "ann@x.com", "Wrong1!pass", client)
		require.True(t, errors.Is(err, ErrInvalidCredentials), "attempt %d: %v", i+1, err)
		clock.Advance(time.Second)
	}

	_, _, err = svc.Login(ctx, "ann@x.com", goodPassword, client)
	require.True(t, errors.Is(err, ErrRateLimited), "got %v", err)
	e, _ := apperr.As(err)
	assert.Equal(t, 55*time.Second, e.RetryAfter)

	// the email key also throttles attempts from another address
	_, _, err = svc.Login(ctx, "ANN@x.com", goodPassword, ClientInfo{IP: "10.0.0.2"})
	assert.True(t, errors.Is(err, ErrRateLimited))

	clock.Advance(time.Minute)
	_, _, err = svc.Login(ctx, "ann@x.com", goodPassword, client)
	assert.NoError(t, err)
}

func TestService_RefreshAndLogout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, first, err := svc.Register(ctx, registration("ann@x.com"), client)
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.Value)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, second.Value)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, first.Value)
	assert.True(t, errors.Is(err, ErrTokenInvalid))

	require.NoError(t, svc.Logout(ctx, second.Value))
	_, err = svc.Authenticate(ctx, second.Value)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
	assert.Error(t, svc.Logout(ctx, second.Value))
}

func TestService_TokenForUnknownUserIsInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	tok, err := svc.sessions.Issue(models.Identity{ID: uuid.New(), Email: "ghost@x.com"})
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), tok.Value)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}
