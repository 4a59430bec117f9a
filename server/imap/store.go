package imap

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/rovermail/rover/midb"
	"github.com/rovermail/rover/seqset"
)

const settableFlags = midb.FlagAnswered | midb.FlagFlagged | midb.FlagDeleted |
	midb.FlagSeen | midb.FlagDraft

func cmdStore(ctx context.Context, s *session, args []string) Outcome {
	out := storeCommand(ctx, s, args, false)
	if out.Code != 0 {
		return out
	}
	return ok(codeStoreOK)
}

func cmdUIDStore(ctx context.Context, s *session, args []string) Outcome {
	out := storeCommand(ctx, s, args, true)
	if out.Code != 0 {
		return out
	}
	return ok(codeUIDStoreOK)
}

func storeCommand(ctx context.Context, s *session, args []string, byUID bool) Outcome {
	if len(args) != 5 {
		return ok(codeBadCommand)
	}
	set, err := seqset.Parse(args[2])
	if err != nil {
		return ok(codeBadCommand)
	}

	item := strings.ToUpper(args[3])
	silent := strings.HasSuffix(item, ".SILENT")
	item = strings.TrimSuffix(item, ".SILENT")
	var mode byte
	switch item {
	case "FLAGS":
		mode = '='
	case "+FLAGS":
		mode = '+'
	case "-FLAGS":
		mode = '-'
	default:
		return ok(codeBadCommand)
	}

	names, err := tokenize(stripParens(args[4]))
	if err != nil {
		return ok(codeBadCommand)
	}
	var flags midb.FlagBits
	for _, n := range names {
		bit, known := midb.ParseFlag(n)
		if !known || bit == midb.FlagRecent {
			return ok(codeBadFlags)
		}
		flags |= bit
	}

	targets := s.resolveSet(set, byUID)
	var lines []string
	for _, it := range targets {
		switch mode {
		case '=':
			if err := s.srv.client.UnsetFlags(ctx, s.maildir(), s.selectedFolder, it.mid, settableFlags); err != nil {
				return midbOutcome(err)
			}
			if flags != 0 {
				if err := s.srv.client.SetFlags(ctx, s.maildir(), s.selectedFolder, it.mid, flags); err != nil {
					return midbOutcome(err)
				}
			}
		case '+':
			if err := s.srv.client.SetFlags(ctx, s.maildir(), s.selectedFolder, it.mid, flags); err != nil {
				return midbOutcome(err)
			}
		case '-':
			if err := s.srv.client.UnsetFlags(ctx, s.maildir(), s.selectedFolder, it.mid, flags); err != nil {
				return midbOutcome(err)
			}
		}

		// Report what the backend actually stored, not the cached view;
		// another session may have touched the message in between. The
		// recent status is session-local and survives the read-back.
		current, err := s.srv.client.GetFlags(ctx, s.maildir(), s.selectedFolder, it.mid)
		if err != nil {
			return midbOutcome(err)
		}
		newFlags := current | (it.flags & midb.FlagRecent)
		it.flags = newFlags

		if !silent {
			if byUID {
				s.untaggedf("%d FETCH (UID %d FLAGS %s)", it.seq, it.uid, newFlags.String())
			} else {
				s.untaggedf("%d FETCH (FLAGS %s)", it.seq, newFlags.String())
			}
		}
		lines = append(lines, fmt.Sprintf("* %d FETCH (UID %d FLAGS %s)\r\n", it.seq, it.uid, newFlags.String()))
	}
	s.contents.recount()
	s.srv.bcast.post(s, s.maildir(), s.selectedFolder, lines)
	return Outcome{}
}

// resolveSet maps a sequence or UID set onto cached items.
func (s *session) resolveSet(set seqset.List, byUID bool) []*contentItem {
	var out []*contentItem
	if byUID {
		for _, n := range set.Resolve(s.contents.maxUID()).Expand() {
			if it, known := s.contents.itemByUID(imap.UID(n)); known {
				out = append(out, it)
			}
		}
		return out
	}
	for _, n := range set.Resolve(s.contents.count()).Expand() {
		if it, known := s.contents.bySeq(n); known {
			out = append(out, it)
		}
	}
	return out
}
