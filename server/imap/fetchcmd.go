package imap

import (
	"context"
	"fmt"

	"github.com/rovermail/rover/midb"
	"github.com/rovermail/rover/seqset"
)

func cmdFetch(ctx context.Context, s *session, args []string) Outcome {
	return fetchCommand(ctx, s, args, false)
}

func cmdUIDFetch(ctx context.Context, s *session, args []string) Outcome {
	return fetchCommand(ctx, s, args, true)
}

func fetchCommand(ctx context.Context, s *session, args []string, byUID bool) Outcome {
	if len(args) != 4 {
		return ok(codeBadCommand)
	}
	set, err := seqset.Parse(args[2])
	if err != nil {
		return ok(codeBadCommand)
	}
	req, valid := parseFetchItems(args[3])
	if !valid {
		return ok(codeBadCommand)
	}

	// Anything beyond UID/FLAGS reads per-message state; ask the
	// backend for the detail listing first so messages that arrived
	// since the selection are picked up with fresh metadata.
	if req.needsDetail {
		if err := s.refreshContentsDetail(ctx); err != nil {
			return midbOutcome(err)
		}
	}

	targets := s.resolveSet(set, byUID)
	for _, it := range targets {
		var b respBuffer
		renderFetch(&b, it, req, s.maildir())
		if err := b.writeTo(s.writer); err != nil {
			s.Log("FETCH write error: %v", err)
			return Outcome{CloseConn: true}
		}
	}

	// A body read is an implicit \Seen on read-write selections.
	if fetchTouchesBody(req) && !s.readOnly {
		var lines []string
		for _, it := range targets {
			if it.flags&midb.FlagSeen != 0 {
				continue
			}
			if err := s.srv.client.SetFlags(ctx, s.maildir(), s.selectedFolder, it.mid, midb.FlagSeen); err != nil {
				s.Log("implicit seen failed for %s: %v", it.mid, err)
				continue
			}
			it.flags |= midb.FlagSeen
			s.untaggedf("%d FETCH (UID %d FLAGS %s)", it.seq, it.uid, it.flags.String())
			lines = append(lines, fmt.Sprintf("* %d FETCH (UID %d FLAGS %s)\r\n", it.seq, it.uid, it.flags.String()))
		}
		s.srv.bcast.post(s, s.maildir(), s.selectedFolder, lines)
	}

	// Delivery consumed the recent status of everything touched.
	for _, it := range targets {
		it.flags &^= midb.FlagRecent
	}
	s.contents.recount()

	if byUID {
		return ok(codeUIDFetchOK)
	}
	return ok(codeFetchOK)
}
