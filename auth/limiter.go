package auth

import (
	"sync"
	"time"

	"github.com/rovermail/rover/consts"
)

// LimiterConfig controls failed-login tracking.
type LimiterConfig struct {
	Enabled     bool          `toml:"enabled"`
	MaxFailures int           `toml:"max_failures"` // failures inside Window before a ban
	Window      time.Duration `toml:"window"`
	BanDuration time.Duration `toml:"ban_duration"`
}

func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Enabled:     true,
		MaxFailures: 10,
		Window:      15 * time.Minute,
		BanDuration: 15 * time.Minute,
	}
}

type failureInfo struct {
	count       int
	windowStart time.Time
	bannedUntil time.Time
}

// Limiter bans a key (username or remote IP) after repeated failed
// authentication attempts.
type Limiter struct {
	cfg LimiterConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*failureInfo
}

func NewLimiter(cfg LimiterConfig) *Limiter {
	return &Limiter{cfg: cfg, now: time.Now, entries: make(map[string]*failureInfo)}
}

// CanAttempt reports whether an authentication attempt for key is
// currently allowed. Returns consts.ErrUserBanned while banned.
func (l *Limiter) CanAttempt(key string) error {
	if !l.cfg.Enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fi, ok := l.entries[key]
	if !ok {
		return nil
	}
	if l.now().Before(fi.bannedUntil) {
		return consts.ErrUserBanned
	}
	return nil
}

// RecordFailure counts a failed attempt and reports whether the key is
// now banned.
func (l *Limiter) RecordFailure(key string) bool {
	if !l.cfg.Enabled {
		return false
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	fi, ok := l.entries[key]
	if !ok || now.Sub(fi.windowStart) > l.cfg.Window {
		fi = &failureInfo{windowStart: now}
		l.entries[key] = fi
	}
	fi.count++
	if fi.count >= l.cfg.MaxFailures {
		fi.bannedUntil = now.Add(l.cfg.BanDuration)
		return true
	}
	return false
}

// RecordSuccess clears failure state for the key.
func (l *Limiter) RecordSuccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Sweep drops expired entries. Callers run it periodically.
func (l *Limiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, fi := range l.entries {
		if now.After(fi.bannedUntil) && now.Sub(fi.windowStart) > l.cfg.Window {
			delete(l.entries, k)
		}
	}
}
