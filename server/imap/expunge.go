package imap

import (
	"context"
	"fmt"
	"os"

	"github.com/emersion/go-imap/v2"

	"github.com/rovermail/rover/seqset"
)

func cmdCheck(ctx context.Context, s *session, _ []string) Outcome {
	if err := s.refreshContents(ctx, false); err != nil {
		return midbOutcome(err)
	}
	return ok(codeCheckOK)
}

func cmdClose(ctx context.Context, s *session, _ []string) Outcome {
	// CLOSE expunges silently; a read-only selection just unselects.
	if !s.readOnly {
		s.expunge(ctx, nil, false)
	}
	s.clearSelection()
	return ok(codeCloseOK)
}

func cmdUnselect(_ context.Context, s *session, _ []string) Outcome {
	s.clearSelection()
	return ok(codeUnselectOK)
}

func cmdExpunge(ctx context.Context, s *session, _ []string) Outcome {
	if out := s.expunge(ctx, nil, true); out.Code != 0 {
		return out
	}
	return ok(codeExpungeOK)
}

func cmdUIDExpunge(ctx context.Context, s *session, args []string) Outcome {
	if len(args) != 3 {
		return ok(codeBadCommand)
	}
	set, err := seqset.Parse(args[2])
	if err != nil {
		return ok(codeBadCommand)
	}
	if out := s.expunge(ctx, set, true); out.Code != 0 {
		return out
	}
	return ok(codeUIDExpungeOK)
}

// expunge removes the \Deleted messages of the selection, restricted
// to uidSet when given. Message files are unlinked after the backend
// confirms removal. EXPUNGE responses go out highest sequence first.
func (s *session) expunge(ctx context.Context, uidSet seqset.List, respond bool) Outcome {
	deleted, err := s.srv.client.ListDeleted(ctx, s.maildir(), s.selectedFolder)
	if err != nil {
		return midbOutcome(err)
	}
	maxUID := s.contents.maxUID()

	var mids []string
	uids := make(map[imap.UID]struct{})
	for _, it := range deleted {
		if uidSet != nil && !uidSet.Contains(uint32(it.UID), maxUID) {
			continue
		}
		mids = append(mids, it.MID)
		uids[it.UID] = struct{}{}
	}
	if len(mids) == 0 {
		return Outcome{}
	}

	if err := s.srv.client.RemoveMail(ctx, s.maildir(), s.selectedFolder, mids); err != nil {
		return midbOutcome(err)
	}
	for _, mid := range mids {
		os.Remove(messagePath(s.maildir(), mid))
	}

	removed := s.contents.removeUIDs(uids)
	var lines []string
	for _, seq := range removed {
		if respond {
			s.untaggedf("%d EXPUNGE", seq)
		}
		lines = append(lines, fmt.Sprintf("* %d EXPUNGE\r\n", seq))
	}
	s.srv.bcast.post(s, s.maildir(), s.selectedFolder, lines)
	s.Log("expunged %d messages from %q", len(mids), s.selectedFolder)
	return Outcome{}
}
