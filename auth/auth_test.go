package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rovermail/rover/consts"
)

func testStore(t *testing.T) *StaticStore {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewStaticStore([]User{
		{Username: "alice@example.com", PasswordHash: string(hash), Lang: "de"},
		{Username: "bob@example.com", PasswordHash: string(hash),
			Delegates: []string{"alice@example.com"}},
	})
}

func TestAuthenticate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	u, err := s.Authenticate(ctx, "alice@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "de", u.Lang)

	// Case-insensitive username.
	_, err = s.Authenticate(ctx, "ALICE@example.com", "secret")
	assert.NoError(t, err)

	_, err = s.Authenticate(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, consts.ErrAuthFailed)

	_, err = s.Authenticate(ctx, "nobody@example.com", "secret")
	assert.ErrorIs(t, err, consts.ErrUserNotFound)
}

func TestAuthorize(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Authorize(ctx, "alice@example.com", "alice@example.com")
	assert.NoError(t, err)

	// bob lists alice as a delegate.
	_, err = s.Authorize(ctx, "alice@example.com", "bob@example.com")
	assert.NoError(t, err)

	// The reverse grant does not exist.
	_, err = s.Authorize(ctx, "bob@example.com", "alice@example.com")
	assert.ErrorIs(t, err, consts.ErrNotPermitted)

	_, err = s.Authorize(ctx, "alice@example.com", "nobody@example.com")
	assert.ErrorIs(t, err, consts.ErrUserNotFound)
}

func TestLimiterBansAfterMaxFailures(t *testing.T) {
	cfg := LimiterConfig{Enabled: true, MaxFailures: 3, Window: time.Minute, BanDuration: time.Minute}
	l := NewLimiter(cfg)
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.NoError(t, l.CanAttempt("1.2.3.4"))
	assert.False(t, l.RecordFailure("1.2.3.4"))
	assert.False(t, l.RecordFailure("1.2.3.4"))
	assert.True(t, l.RecordFailure("1.2.3.4"))
	assert.ErrorIs(t, l.CanAttempt("1.2.3.4"), consts.ErrUserBanned)

	// Ban expires.
	now = now.Add(2 * time.Minute)
	assert.NoError(t, l.CanAttempt("1.2.3.4"))
}

func TestLimiterWindowReset(t *testing.T) {
	cfg := LimiterConfig{Enabled: true, MaxFailures: 2, Window: time.Minute, BanDuration: time.Minute}
	l := NewLimiter(cfg)
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.False(t, l.RecordFailure("u"))
	now = now.Add(2 * time.Minute) // outside window, counter restarts
	assert.False(t, l.RecordFailure("u"))
	assert.True(t, l.RecordFailure("u"))
}

func TestLimiterSuccessClears(t *testing.T) {
	cfg := LimiterConfig{Enabled: true, MaxFailures: 2, Window: time.Minute, BanDuration: time.Minute}
	l := NewLimiter(cfg)

	assert.False(t, l.RecordFailure("u"))
	l.RecordSuccess("u")
	assert.False(t, l.RecordFailure("u"))
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(LimiterConfig{Enabled: false, MaxFailures: 1})
	assert.False(t, l.RecordFailure("u"))
	assert.NoError(t, l.CanAttempt("u"))
}
