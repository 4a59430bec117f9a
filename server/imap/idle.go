package imap

import (
	"context"
	"net"
	"strings"
	"time"
)

// idlePollInterval is how often the blocked IDLE read wakes up to
// drain broadcast lines.
const idlePollInterval = 2 * time.Second

func cmdIdle(_ context.Context, s *session, _ []string) Outcome {
	s.writer.WriteString(statusLine(codeIdling) + "\r\n")
	s.writer.Flush()
	s.Log("idling")

	started := time.Now()
	for {
		s.flushPending()
		if s.ctx.Err() != nil {
			return Outcome{Code: codeBye, CloseConn: true}
		}
		if time.Since(started) > s.srv.idleTimeout {
			return Outcome{Code: codeAutologout, CloseConn: true}
		}
		s.conn.SetReadDeadline(time.Now().Add(idlePollInterval))
		line, err := s.readLine()
		if err != nil {
			if netErr, isNet := err.(net.Error); isNet && netErr.Timeout() {
				continue
			}
			return Outcome{CloseConn: true}
		}
		if strings.EqualFold(strings.TrimSpace(line), "DONE") {
			return ok(codeIdleOK)
		}
		return ok(codeExpectedDone)
	}
}
