package imap

import (
	"context"

	"github.com/rovermail/rover/foldermap"
	"github.com/rovermail/rover/seqset"
)

// allUIDs addresses every message of a folder.
var allUIDs = seqset.List{{Lo: 1, Hi: seqset.Star}}

// sysFolder maps a client-supplied folder name to its backend name.
func (s *session) sysFolder(name string) (string, bool) {
	sys, err := foldermap.ImapToSys(s.lang, name)
	if err != nil {
		return "", false
	}
	return sys, true
}

// refreshContents reloads the selection cache from the backend. A full
// refresh renumbers everything; an incremental one only appends
// messages that arrived since, so sequence numbers the client holds
// stay stable. Failures leave the cache untouched.
func (s *session) refreshContents(ctx context.Context, full bool) error {
	listing, err := s.srv.client.FetchSimpleUID(ctx, s.maildir(), s.selectedFolder, allUIDs)
	if err != nil {
		return err
	}
	if full {
		s.contents.refreshFull(listing)
	} else {
		s.contents.refreshIncremental(listing)
	}
	return nil
}

// refreshContentsDetail is the incremental refresh used before
// per-message reads: the detail listing makes the backend re-scan the
// folder, so sizes and flags are current when the message files are
// about to be opened.
func (s *session) refreshContentsDetail(ctx context.Context) error {
	listing, err := s.srv.client.FetchDetailUID(ctx, s.maildir(), s.selectedFolder, allUIDs)
	if err != nil {
		return err
	}
	s.contents.refreshIncremental(listing)
	return nil
}

func (s *session) clearSelection() {
	if s.phase == phaseSelected {
		s.phase = phaseAuthenticated
	}
	s.selectedFolder = ""
	s.readOnly = false
	s.contents = newContents()
	s.srv.bcast.unsubscribe(s)
}

func cmdSelect(ctx context.Context, s *session, args []string) Outcome {
	return selectFolder(ctx, s, args, false)
}

func cmdExamine(ctx context.Context, s *session, args []string) Outcome {
	return selectFolder(ctx, s, args, true)
}

func selectFolder(ctx context.Context, s *session, args []string, readOnly bool) Outcome {
	if len(args) != 3 {
		return ok(codeBadCommand)
	}
	sys, valid := s.sysFolder(args[2])
	if !valid {
		return ok(codeBadFolderName)
	}

	// Selecting a new folder drops the old selection no matter how the
	// new one turns out.
	s.clearSelection()

	summary, err := s.srv.client.SummaryFolder(ctx, s.maildir(), sys)
	if err != nil {
		return midbOutcome(err)
	}
	listing, err := s.srv.client.FetchSimpleUID(ctx, s.maildir(), sys, allUIDs)
	if err != nil {
		return midbOutcome(err)
	}

	s.selectedFolder = sys
	s.readOnly = readOnly
	s.phase = phaseSelected
	s.contents.refreshFull(listing)
	s.srv.bcast.subscribe(s, s.maildir(), sys)

	s.untaggedf("%d EXISTS", s.contents.count())
	s.untaggedf("%d RECENT", s.contents.recent)
	s.untagged(`FLAGS (\Answered \Flagged \Deleted \Seen \Draft)`)
	if s.contents.firstUns != 0 {
		s.untaggedf("OK [UNSEEN %d] unseen message", s.contents.firstUns)
	}
	s.untaggedf("OK [UIDVALIDITY %d] UIDs valid", summary.UIDValidity)
	s.untaggedf("OK [UIDNEXT %d] predicted next UID", summary.UIDNext)
	if readOnly {
		s.untagged(`OK [PERMANENTFLAGS ()] no permanent flags permitted`)
		s.taggedf(args[0], "OK [READ-ONLY] EXAMINE completed")
	} else {
		s.untagged(`OK [PERMANENTFLAGS (\Answered \Flagged \Deleted \Seen \Draft)] limited`)
		s.taggedf(args[0], "OK [READ-WRITE] SELECT completed")
	}
	s.Log("selected %q read_only=%v", sys, readOnly)
	return Outcome{}
}
