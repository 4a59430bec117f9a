// Package auth verifies user credentials and mailbox access rights.
package auth

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/rovermail/rover/consts"
)

// User is one provisioned account.
type User struct {
	Username     string   `toml:"username"`
	PasswordHash string   `toml:"password_hash"` // bcrypt
	Lang         string   `toml:"lang"`
	MaildirPath  string   `toml:"maildir_path"`
	Delegates    []string `toml:"delegates"` // accounts allowed to open this mailbox
}

// Authenticator verifies a username/password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*User, error)
}

// Authorizer decides whether actor may open owner's mailboxes.
type Authorizer interface {
	Authorize(ctx context.Context, actor, owner string) (*User, error)
}

// StaticStore is an in-memory account store loaded from configuration.
type StaticStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewStaticStore(users []User) *StaticStore {
	s := &StaticStore{users: make(map[string]*User, len(users))}
	for i := range users {
		u := users[i]
		s.users[strings.ToLower(u.Username)] = &u
	}
	return s
}

// Lookup returns the account for username, matched case-insensitively.
func (s *StaticStore) Lookup(username string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.ToLower(username)]
	return u, ok
}

func (s *StaticStore) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, ok := s.Lookup(username)
	if !ok {
		// Run a comparison anyway so missing users cost the same as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, consts.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, consts.ErrAuthFailed
	}
	return u, nil
}

// Authorize grants actor access to owner's mailboxes when actor is the
// owner, or when owner lists actor as a delegate.
func (s *StaticStore) Authorize(ctx context.Context, actor, owner string) (*User, error) {
	target, ok := s.Lookup(owner)
	if !ok {
		return nil, consts.ErrUserNotFound
	}
	if strings.EqualFold(actor, owner) {
		return target, nil
	}
	for _, d := range target.Delegates {
		if strings.EqualFold(d, actor) {
			return target, nil
		}
	}
	return nil, consts.ErrNotPermitted
}

// dummyHash is a bcrypt hash of an unguessable value, used to equalize
// timing for unknown users.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")
