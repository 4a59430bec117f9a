// Package server holds the pieces shared by the protocol listeners:
// the session logging base and connection counters.
package server

import (
	"fmt"
	"sync/atomic"

	"github.com/rovermail/rover/logger"
)

// ConnStats exposes listener-wide connection counters to sessions.
type ConnStats interface {
	TotalConnections() int64
	AuthenticatedConnections() int64
}

// Counters is the standard ConnStats implementation.
type Counters struct {
	total         atomic.Int64
	authenticated atomic.Int64
}

func (c *Counters) TotalConnections() int64         { return c.total.Load() }
func (c *Counters) AuthenticatedConnections() int64 { return c.authenticated.Load() }

func (c *Counters) AddConnection() int64       { return c.total.Add(1) }
func (c *Counters) RemoveConnection() int64    { return c.total.Add(-1) }
func (c *Counters) AddAuthenticated() int64    { return c.authenticated.Add(1) }
func (c *Counters) RemoveAuthenticated() int64 { return c.authenticated.Add(-1) }

// Session is the logging identity of one client connection.
type Session struct {
	ID       string
	RemoteIP string
	Username string // empty until authenticated
	Protocol string
	Stats    ConnStats
}

func (s *Session) log(level func(string, ...any), format string, args ...any) {
	user := s.Username
	if user == "" {
		user = "none"
	}
	if s.Stats != nil {
		level("session",
			"protocol", s.Protocol,
			"remote", s.RemoteIP,
			"user", user,
			"session", s.ID,
			"conn_total", s.Stats.TotalConnections(),
			"conn_auth", s.Stats.AuthenticatedConnections(),
			"msg", fmt.Sprintf(format, args...))
		return
	}
	level("session",
		"protocol", s.Protocol,
		"remote", s.RemoteIP,
		"user", user,
		"session", s.ID,
		"msg", fmt.Sprintf(format, args...))
}

func (s *Session) Log(format string, args ...any)      { s.log(logger.Info, format, args...) }
func (s *Session) DebugLog(format string, args ...any) { s.log(logger.Debug, format, args...) }
func (s *Session) WarnLog(format string, args ...any)  { s.log(logger.Warn, format, args...) }
func (s *Session) ErrorLog(format string, args ...any) { s.log(logger.Error, format, args...) }
