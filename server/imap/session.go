// Package imap implements the IMAP session layer: the line loop, the
// command dispatch table and all command handlers. Mailbox state lives
// in the external index behind midb.Client; message bytes live in flat
// per-message files and are spliced into responses by byte range.
package imap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rovermail/rover/auth"
	"github.com/rovermail/rover/pkg/metrics"
	"github.com/rovermail/rover/server"
)

// Session phases. Username/password pending are the AUTHENTICATE LOGIN
// continuation steps; they sit below authenticated so the dispatch
// matrix rejects mailbox commands during a half-done handshake.
const (
	phaseUnauth = iota
	phaseUsernamePending
	phasePasswordPending
	phaseAuthenticated
	phaseSelected
)

const maxAuthFailures = 10

// maxLineLength bounds a single command line; maxInlineLiteral bounds
// literals that are buffered in memory (anything but the APPEND
// message literal, which streams to a staging file).
const (
	maxLineLength    = 64 * 1024
	maxInlineLiteral = 64 * 1024
)

type session struct {
	server.Session
	srv    *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	ctx    context.Context
	cancel context.CancelFunc

	phase    int
	readOnly bool
	user     *auth.User
	lang     string
	started  time.Time

	selectedFolder string // backend name of the selected folder
	contents       *contents

	authFailures int
	authTag      string // tag carried across AUTHENTICATE continuations
	authMech     string // mechanism of the pending AUTHENTICATE
	authUser     string // username collected by the LOGIN mechanism

	staging *appendStaging

	// Broadcast delivery from sessions sharing the selection.
	mu      sync.Mutex
	pending []string
	subKey  string
}

func (s *session) maildir() string {
	if s.user == nil {
		return ""
	}
	return s.user.MaildirPath
}

// enqueue queues untagged lines posted by another session.
func (s *session) enqueue(lines []string) {
	s.mu.Lock()
	s.pending = append(s.pending, lines...)
	s.mu.Unlock()
}

// flushPending writes queued broadcast lines. Called at command
// boundaries and between IDLE wakeups.
func (s *session) flushPending() {
	s.mu.Lock()
	lines := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, l := range lines {
		s.writer.WriteString(l)
	}
	if len(lines) > 0 {
		s.writer.Flush()
	}
}

func (s *session) untagged(line string) {
	s.writer.WriteString("* " + line + "\r\n")
}

func (s *session) untaggedf(format string, args ...any) {
	fmt.Fprintf(s.writer, "* "+format+"\r\n", args...)
}

func (s *session) taggedf(tag, format string, args ...any) {
	fmt.Fprintf(s.writer, tag+" "+format+"\r\n", args...)
}

func (s *session) handleConnection() {
	s.started = time.Now()
	defer s.cancel()
	defer s.cleanup()

	s.untagged(statusLine(codeServiceReady))
	s.writer.Flush()
	s.Log("connected")

	for {
		s.flushPending()
		s.conn.SetReadDeadline(time.Now().Add(s.srv.idleTimeout))
		line, err := s.readLine()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.untagged(statusLine(codeAutologout))
				s.writer.Flush()
				s.Log("timed out")
			} else if err == io.EOF {
				s.Log("client dropped connection")
			} else {
				s.Log("read error: %v", err)
			}
			return
		}
		if s.ctx.Err() != nil {
			s.untagged(statusLine(codeBye))
			s.writer.Flush()
			return
		}
		if line == "" {
			continue
		}

		// A half-done AUTHENTICATE owns the line: it is continuation
		// data, not a command.
		if s.phase == phaseUsernamePending || s.phase == phasePasswordPending {
			if s.writeOutcome(s.authTag, s.authStep(line)) {
				return
			}
			continue
		}

		tag, out := s.handleCommand(line)
		if s.writeOutcome(tag, out) {
			return
		}
	}
}

// handleCommand runs one command line through literal collection and
// dispatch. The returned tag is what the status line is written under.
func (s *session) handleCommand(line string) (string, Outcome) {
	fields := strings.Fields(line)
	tag := "*"
	if len(fields) > 0 {
		tag = fields[0]
	}
	if len(fields) < 2 {
		return tag, ok(codeBadCommand)
	}

	// APPEND streams its message literal to a staging file instead of
	// buffering it; everything else collects literals inline.
	if strings.EqualFold(fields[1], "APPEND") {
		if count, nonSync, isLit := literalMarker(line); isLit {
			return tag, s.handleAppendLiteral(tag, line, count, nonSync)
		}
	}

	full, out, okLine := s.collectLiterals(line)
	if !okLine {
		return tag, out
	}
	args, err := tokenize(full)
	if err != nil || len(args) < 2 {
		return tag, ok(codeBadCommand)
	}

	verb := strings.ToUpper(args[1])
	started := time.Now()
	result := s.dispatch(s.ctx, args)
	status := "ok"
	if result.Code >= 1800 {
		status = "rejected"
	}
	metrics.CommandsTotal.WithLabelValues(verb, status).Inc()
	metrics.CommandDuration.WithLabelValues(verb).Observe(time.Since(started).Seconds())
	return args[0], result
}

// collectLiterals folds inline {N} literals into the logical command
// line, answering the continuation prompt for synchronizing ones.
func (s *session) collectLiterals(line string) (string, Outcome, bool) {
	for {
		count, nonSync, isLit := literalMarker(line)
		if !isLit {
			return line, Outcome{}, true
		}
		if count > maxInlineLiteral {
			if !nonSync {
				return "", ok(codeTooLong), false
			}
			// The client sends the bytes regardless; drain them so the
			// stream stays in sync.
			if _, err := io.CopyN(io.Discard, s.reader, count); err != nil {
				return "", closing(codeTooLong), false
			}
			s.readLine()
			return "", ok(codeTooLong), false
		}
		if !nonSync {
			s.writer.WriteString(statusLine(codeContinue) + "\r\n")
			s.writer.Flush()
		}
		buf := make([]byte, count)
		if _, err := io.ReadFull(s.reader, buf); err != nil {
			return "", closing(codeTooLong), false
		}
		rest, err := s.readLine()
		if err != nil {
			return "", closing(codeTooLong), false
		}
		line = line[:strings.LastIndexByte(line, '{')] + quoteToken(string(buf)) + rest
		if len(line) > maxLineLength {
			return "", ok(codeTooLong), false
		}
	}
}

// quoteToken renders a literal's content as a quoted string token.
func quoteToken(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte('"')
	return sb.String()
}

func (s *session) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) > maxLineLength {
		return "", io.ErrShortBuffer
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// writeOutcome writes the status line an Outcome selects and reports
// whether the connection should close.
func (s *session) writeOutcome(tag string, out Outcome) bool {
	if out.CarryTag {
		s.writer.Flush()
		return false
	}
	if out.Code != 0 {
		text := statusLine(out.Code)
		switch {
		case strings.HasPrefix(text, "+"):
			s.writer.WriteString(text + "\r\n")
		case out.Code < 1700:
			s.untagged(text)
		default:
			if out.BackendErr != nil {
				s.writer.WriteString(tag + " " + text + out.BackendErr.Error() + "\r\n")
			} else {
				s.writer.WriteString(tag + " " + text + "\r\n")
			}
		}
	}
	s.writer.Flush()
	if out.CloseConn {
		s.Log("closing connection")
	}
	return out.CloseConn
}

// cleanup runs on every session exit path: counters, broadcast
// membership, pending APPEND staging file.
func (s *session) cleanup() {
	s.srv.bcast.unsubscribe(s)
	s.discardStaging()
	if s.phase >= phaseAuthenticated {
		s.srv.counters.RemoveAuthenticated()
		metrics.AuthenticatedConnectionsCurrent.Dec()
	}
	s.srv.counters.RemoveConnection()
	metrics.ConnectionsCurrent.Dec()
	if !s.started.IsZero() {
		metrics.ConnectionDuration.Observe(time.Since(s.started).Seconds())
	}
	s.srv.removeSession(s)
	s.conn.Close()
	s.Log("disconnected")
}

func (s *session) discardStaging() {
	if s.staging == nil {
		return
	}
	s.staging.file.Close()
	os.Remove(s.staging.path)
	s.staging = nil
}
