package imap

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/emersion/go-sasl"

	"github.com/rovermail/rover/consts"
	"github.com/rovermail/rover/pkg/metrics"
)

// capabilityList is advertised by CAPABILITY and in practice pinned:
// clients cache it per connection.
var capabilityList = []string{
	"IMAP4rev1",
	"AUTH=PLAIN",
	"AUTH=LOGIN",
	"IDLE",
	"LITERAL+",
	"UIDPLUS",
	"UNSELECT",
	"CHILDREN",
	"SPECIAL-USE",
	"XLIST",
}

func (s *session) capabilityString() string {
	caps := make([]string, 0, len(capabilityList)+2)
	caps = append(caps, capabilityList...)
	if s.srv.tlsConfig != nil && !s.isTLS() {
		caps = append(caps, "STARTTLS")
	}
	if s.srv.enableID {
		caps = append(caps, "ID")
	}
	return strings.Join(caps, " ")
}

func (s *session) isTLS() bool {
	_, ok := s.conn.(*tls.Conn)
	return ok
}

func cmdCapability(_ context.Context, s *session, _ []string) Outcome {
	s.untagged("CAPABILITY " + s.capabilityString())
	return ok(codeCapabilityOK)
}

func cmdNoop(_ context.Context, _ *session, _ []string) Outcome {
	return ok(codeNoopOK)
}

func cmdLogout(_ context.Context, s *session, _ []string) Outcome {
	s.clearSelection()
	s.untagged(statusLine(codeBye))
	return closing(codeLogoutOK)
}

func cmdID(_ context.Context, s *session, _ []string) Outcome {
	if !s.srv.enableID {
		return ok(codeBadCommand)
	}
	s.untagged(`ID ("name" "rover" "vendor" "rovermail")`)
	return ok(codeIDOK)
}

func cmdStartTLS(_ context.Context, s *session, args []string) Outcome {
	if s.srv.tlsConfig == nil || s.isTLS() || s.phase != phaseUnauth {
		return ok(codeBadTLSState)
	}
	s.writer.WriteString(args[0] + " " + statusLine(codeStartTLSOK) + "\r\n")
	s.writer.Flush()

	tlsConn := tls.Server(s.conn, s.srv.tlsConfig)
	if err := tlsConn.HandshakeContext(s.ctx); err != nil {
		s.Log("TLS handshake failed: %v", err)
		return Outcome{CloseConn: true}
	}
	s.conn = tlsConn
	s.reader.Reset(tlsConn)
	s.writer.Reset(tlsConn)
	s.Log("TLS established")
	return Outcome{}
}

func cmdLogin(ctx context.Context, s *session, args []string) Outcome {
	if s.phase >= phaseAuthenticated {
		return ok(codeAlreadyAuthed)
	}
	if len(args) != 4 {
		return ok(codeBadCommand)
	}
	return s.finishLogin(ctx, "LOGIN", args[2], args[3])
}

func cmdAuthenticate(ctx context.Context, s *session, args []string) Outcome {
	if s.phase >= phaseAuthenticated {
		return ok(codeAlreadyAuthed)
	}
	if len(args) < 3 {
		return ok(codeBadCommand)
	}
	mech := strings.ToUpper(args[2])
	switch mech {
	case "LOGIN":
		s.authTag = args[0]
		s.authMech = mech
		s.phase = phaseUsernamePending
		// base64 "Username:"
		s.writer.WriteString("+ VXNlcm5hbWU6\r\n")
		return carryTag()
	case "PLAIN":
		s.authTag = args[0]
		s.authMech = mech
		if len(args) >= 4 {
			// SASL initial response on the command line.
			out := s.plainStep(ctx, args[3])
			s.authTag = ""
			return out
		}
		s.phase = phaseUsernamePending
		s.writer.WriteString("+ \r\n")
		return carryTag()
	}
	return ok(codeBadCommand)
}

// authStep consumes one continuation line of a pending AUTHENTICATE.
func (s *session) authStep(line string) Outcome {
	if line == "*" {
		s.resetAuth()
		return ok(codeBadCommand)
	}
	ctx := s.ctx
	if s.authMech == "PLAIN" {
		out := s.plainStep(ctx, line)
		if !out.CarryTag {
			s.resetAuthPhase()
		}
		return out
	}
	switch s.phase {
	case phaseUsernamePending:
		raw, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			s.resetAuth()
			return ok(codeBadUsername)
		}
		s.authUser = string(raw)
		s.phase = phasePasswordPending
		// base64 "Password:"
		s.writer.WriteString("+ UGFzc3dvcmQ6\r\n")
		return carryTag()
	case phasePasswordPending:
		raw, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			s.resetAuth()
			return ok(codeBadPassword)
		}
		username := s.authUser
		s.resetAuth()
		return s.finishLogin(ctx, "LOGIN", username, string(raw))
	}
	s.resetAuth()
	return ok(codeBadCommand)
}

// plainStep feeds one base64 response through the SASL PLAIN server.
func (s *session) plainStep(ctx context.Context, encoded string) Outcome {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ok(codeBadUsername)
	}
	var username, password string
	srv := sasl.NewPlainServer(func(identity, user, pass string) error {
		if identity != "" && identity != user {
			return consts.ErrNotPermitted
		}
		username, password = user, pass
		return nil
	})
	if _, _, err := srv.Next(raw); err != nil {
		if errors.Is(err, consts.ErrNotPermitted) {
			return s.authFailure(username, consts.ErrNotPermitted)
		}
		return ok(codeBadUsername)
	}
	return s.finishLogin(ctx, "PLAIN", username, password)
}

func (s *session) resetAuthPhase() {
	if s.phase == phaseUsernamePending || s.phase == phasePasswordPending {
		s.phase = phaseUnauth
	}
}

func (s *session) resetAuth() {
	s.resetAuthPhase()
	s.authUser = ""
	s.authMech = ""
	s.authTag = ""
}

// finishLogin authenticates and, for "actor!owner" logins, authorizes
// the actor against the owner's delegate list. The session then
// operates on the owner's mailbox under the actor's credentials.
func (s *session) finishLogin(ctx context.Context, mechanism, username, password string) Outcome {
	actor, owner := username, username
	if i := strings.IndexByte(username, '!'); i >= 0 {
		actor, owner = username[:i], username[i+1:]
	}

	for _, key := range []string{s.RemoteIP, strings.ToLower(actor)} {
		if errors.Is(s.srv.limiter.CanAttempt(key), consts.ErrUserBanned) {
			metrics.AuthenticationAttempts.WithLabelValues(mechanism, "banned").Inc()
			return closing(codeTooManyFails)
		}
	}

	if _, err := s.srv.store.Authenticate(ctx, actor, password); err != nil {
		s.Log("authentication failed for %q", actor)
		metrics.AuthenticationAttempts.WithLabelValues(mechanism, "failure").Inc()
		return s.authFailure(actor, err)
	}

	user, err := s.srv.store.Authorize(ctx, actor, owner)
	if err != nil {
		s.Log("authorization denied: %q as %q", actor, owner)
		metrics.AuthenticationAttempts.WithLabelValues(mechanism, "failure").Inc()
		return s.authFailure(actor, err)
	}
	if user.MaildirPath == "" {
		return ok(codeNoMaildir)
	}

	s.srv.limiter.RecordSuccess(s.RemoteIP)
	s.srv.limiter.RecordSuccess(strings.ToLower(actor))

	s.user = user
	s.Username = user.Username
	if user.Lang != "" {
		s.lang = user.Lang
	}
	s.phase = phaseAuthenticated
	s.srv.counters.AddAuthenticated()
	metrics.AuthenticatedConnectionsCurrent.Inc()
	metrics.AuthenticationAttempts.WithLabelValues(mechanism, "success").Inc()
	s.Log("authenticated")
	return ok(codeLoginOK)
}
