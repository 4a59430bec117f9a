package imap

import (
	"context"
	"strings"

	"github.com/rovermail/rover/consts"
	"github.com/rovermail/rover/foldermap"
	"github.com/rovermail/rover/midb"
)

// hasWildcards rejects folder names that would collide with the LIST
// pattern syntax when created or renamed into existence.
func hasWildcards(name string) bool {
	return strings.ContainsAny(name, "%*?")
}

func cmdCreate(ctx context.Context, s *session, args []string) Outcome {
	if len(args) != 3 {
		return ok(codeBadCommand)
	}
	if hasWildcards(args[2]) {
		return ok(codeBadFolderName)
	}
	sys, valid := s.sysFolder(args[2])
	if !valid {
		return ok(codeBadFolderName)
	}
	if foldermap.IsSpecial(sys) {
		return ok(codeReservedCreate)
	}
	if err := s.srv.client.MakeFolder(ctx, s.maildir(), sys); err != nil {
		if me, isApp := midb.AsError(err); isApp && me.Code == codeAlreadyExists {
			return ok(codeAlreadyExists)
		}
		return midbOutcome(err)
	}
	s.Log("created folder %q", sys)
	return ok(codeCreateOK)
}

func cmdDelete(ctx context.Context, s *session, args []string) Outcome {
	if len(args) != 3 {
		return ok(codeBadCommand)
	}
	sys, valid := s.sysFolder(args[2])
	if !valid {
		return ok(codeBadFolderName)
	}
	if foldermap.IsSpecial(sys) {
		return ok(codeDelReserved)
	}
	if hasSub, err := s.hasSubfolders(ctx, sys); err != nil {
		return midbOutcome(err)
	} else if hasSub {
		return ok(codeDelSubFirst)
	}
	if err := s.srv.client.RemoveFolder(ctx, s.maildir(), sys); err != nil {
		return midbOutcome(err)
	}
	s.Log("deleted folder %q", sys)
	return ok(codeDeleteOK)
}

func cmdRename(ctx context.Context, s *session, args []string) Outcome {
	if len(args) != 4 {
		return ok(codeBadCommand)
	}
	if hasWildcards(args[2]) || hasWildcards(args[3]) {
		return ok(codeBadFolderName)
	}
	from, valid := s.sysFolder(args[2])
	if !valid {
		return ok(codeBadFolderName)
	}
	to, valid := s.sysFolder(args[3])
	if !valid {
		return ok(codeBadFolderName)
	}
	if foldermap.IsSpecial(from) || foldermap.IsSpecial(to) {
		return ok(codeRenReserved)
	}
	if err := s.srv.client.RenameFolder(ctx, s.maildir(), from, to); err != nil {
		return midbOutcome(err)
	}
	s.Log("renamed folder %q to %q", from, to)
	return ok(codeRenameOK)
}

func cmdSubscribe(ctx context.Context, s *session, args []string) Outcome {
	if len(args) != 3 {
		return ok(codeBadCommand)
	}
	sys, valid := s.sysFolder(args[2])
	if !valid {
		return ok(codeBadFolderName)
	}
	if err := s.srv.client.SubscribeFolder(ctx, s.maildir(), sys); err != nil {
		return midbOutcome(err)
	}
	return ok(codeSubscribeOK)
}

func cmdUnsubscribe(ctx context.Context, s *session, args []string) Outcome {
	if len(args) != 3 {
		return ok(codeBadCommand)
	}
	sys, valid := s.sysFolder(args[2])
	if !valid {
		return ok(codeBadFolderName)
	}
	if err := s.srv.client.UnsubscribeFolder(ctx, s.maildir(), sys); err != nil {
		return midbOutcome(err)
	}
	return ok(codeUnsubscribeOK)
}

// hasSubfolders checks the full listing for children of sys. The
// backend stores a flat folder list; hierarchy is a naming convention.
func (s *session) hasSubfolders(ctx context.Context, sys string) (bool, error) {
	folders, err := s.srv.client.EnumFolders(ctx, s.maildir())
	if err != nil {
		return false, err
	}
	display, err := foldermap.SysToImap(s.lang, sys)
	if err != nil {
		return false, nil
	}
	prefix := display + string(consts.MailboxDelimiter)
	for _, f := range folders {
		name, err := foldermap.SysToImap(s.lang, f)
		if err != nil {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			return true, nil
		}
	}
	return false, nil
}
