package imap

import (
	"context"
	"errors"
	"strings"

	"github.com/rovermail/rover/consts"
	"github.com/rovermail/rover/midb"
)

// Outcome tells the session loop what to do after a handler returns.
type Outcome struct {
	// Code selects the canned status line; 0 means the handler wrote
	// its own final line (or none, for CarryTag).
	Code int

	// CarryTag suppresses the response entirely: the pending tag is
	// kept for a later step of a multi-step command (AUTHENTICATE
	// continuation, literal-bearing APPEND).
	CarryTag bool

	// CloseConn closes the connection after the response is flushed.
	CloseConn bool

	// BackendErr, when non-nil, appends the backend's error text to a
	// codeMIDBError status.
	BackendErr error
}

func ok(code int) Outcome      { return Outcome{Code: code} }
func closing(code int) Outcome { return Outcome{Code: code, CloseConn: true} }
func carryTag() Outcome        { return Outcome{CarryTag: true} }

func backendNO(err error) Outcome {
	return Outcome{Code: codeMIDBError, BackendErr: err}
}

// midbOutcome maps a backend error to its canned status.
func midbOutcome(err error) Outcome {
	switch {
	case errors.Is(err, midb.ErrNoServer):
		return ok(codeMIDBOffline)
	case errors.Is(err, midb.ErrReadWrite):
		return ok(codeMIDBRdwr)
	case errors.Is(err, midb.ErrTooManyResults):
		return ok(codeTooManyResults)
	}
	if me, isApp := midb.AsError(err); isApp {
		if me.Code == midb.CodeNoFolder {
			return ok(codeNonexistent)
		}
		return backendNO(err)
	}
	return backendNO(err)
}

type handler func(ctx context.Context, s *session, args []string) Outcome

// phase requirements per verb. Pre-auth verbs are always legal; the
// rest need at least the listed phase.
type verbEntry struct {
	fn        handler
	needsAuth bool
	needsSel  bool
	mutating  bool // rejected on read-only (EXAMINE) sessions
}

var verbs = map[string]verbEntry{
	"CAPABILITY":   {fn: cmdCapability},
	"ID":           {fn: cmdID},
	"NOOP":         {fn: cmdNoop},
	"LOGOUT":       {fn: cmdLogout},
	"STARTTLS":     {fn: cmdStartTLS},
	"LOGIN":        {fn: cmdLogin},
	"AUTHENTICATE": {fn: cmdAuthenticate},

	"SELECT":      {fn: cmdSelect, needsAuth: true},
	"EXAMINE":     {fn: cmdExamine, needsAuth: true},
	"CREATE":      {fn: cmdCreate, needsAuth: true},
	"DELETE":      {fn: cmdDelete, needsAuth: true},
	"RENAME":      {fn: cmdRename, needsAuth: true},
	"SUBSCRIBE":   {fn: cmdSubscribe, needsAuth: true},
	"UNSUBSCRIBE": {fn: cmdUnsubscribe, needsAuth: true},
	"LIST":        {fn: cmdList, needsAuth: true},
	"XLIST":       {fn: cmdXlist, needsAuth: true},
	"LSUB":        {fn: cmdLsub, needsAuth: true},
	"STATUS":      {fn: cmdStatus, needsAuth: true},
	"APPEND":      {fn: cmdAppend, needsAuth: true},
	"IDLE":        {fn: cmdIdle, needsAuth: true},

	"CHECK":    {fn: cmdCheck, needsSel: true},
	"CLOSE":    {fn: cmdClose, needsSel: true},
	"UNSELECT": {fn: cmdUnselect, needsSel: true},
	"EXPUNGE":  {fn: cmdExpunge, needsSel: true, mutating: true},
	"SEARCH":   {fn: cmdSearch, needsSel: true},
	"FETCH":    {fn: cmdFetch, needsSel: true},
	"STORE":    {fn: cmdStore, needsSel: true, mutating: true},
	"COPY":     {fn: cmdCopy, needsSel: true},
	"UID":      {fn: cmdUID, needsSel: true},
}

// uidVerbs handles the UID-prefixed sub-commands.
var uidVerbs = map[string]struct {
	fn       handler
	mutating bool
}{
	"SEARCH":  {fn: cmdUIDSearch},
	"FETCH":   {fn: cmdUIDFetch},
	"STORE":   {fn: cmdUIDStore, mutating: true},
	"COPY":    {fn: cmdUIDCopy},
	"EXPUNGE": {fn: cmdUIDExpunge, mutating: true},
}

// dispatch routes one parsed command. args[0] is the tag, args[1] the
// verb.
func (s *session) dispatch(ctx context.Context, args []string) Outcome {
	if len(args) < 2 {
		return ok(codeBadCommand)
	}
	verb := strings.ToUpper(args[1])
	entry, known := verbs[verb]
	if !known {
		return ok(codeBadCommand)
	}
	if entry.needsAuth && s.phase < phaseAuthenticated {
		return ok(codeNotAuthed)
	}
	if entry.needsSel && s.phase != phaseSelected {
		if s.phase < phaseAuthenticated {
			return ok(codeNotAuthed)
		}
		return ok(codeNotSelected)
	}
	if entry.mutating && s.readOnly {
		return ok(codeReadOnly)
	}
	return entry.fn(ctx, s, args)
}

func cmdUID(ctx context.Context, s *session, args []string) Outcome {
	if len(args) < 3 {
		return ok(codeBadCommand)
	}
	sub, known := uidVerbs[strings.ToUpper(args[2])]
	if !known {
		return ok(codeBadCommand)
	}
	if sub.mutating && s.readOnly {
		return ok(codeReadOnly)
	}
	// Strip the UID token so sub-handlers see tag, verb, args...
	rest := append([]string{args[0], args[2]}, args[3:]...)
	return sub.fn(ctx, s, rest)
}

// authFailure books a failed login attempt and decides whether the
// session has to go.
func (s *session) authFailure(username string, err error) Outcome {
	s.authFailures++
	key := s.RemoteIP
	banned := s.srv.limiter.RecordFailure(key)
	if username != "" {
		banned = s.srv.limiter.RecordFailure(strings.ToLower(username)) || banned
	}
	if banned || s.authFailures >= maxAuthFailures {
		return closing(codeTooManyFails)
	}
	if errors.Is(err, consts.ErrNotPermitted) {
		return ok(codeUserDenied)
	}
	return ok(codeAuthFailed)
}
