package imap

import (
	"context"
	"sort"
	"strings"

	"github.com/rovermail/rover/consts"
	"github.com/rovermail/rover/dirtree"
	"github.com/rovermail/rover/foldermap"
)

// listEntry pairs a protocol-visible folder name with its backend
// name, so attribute decisions can key on the stable backend name.
type listEntry struct {
	name string
	sys  string
}

func cmdList(ctx context.Context, s *session, args []string) Outcome {
	return listCommand(ctx, s, args, "LIST", codeListOK)
}

func cmdXlist(ctx context.Context, s *session, args []string) Outcome {
	return listCommand(ctx, s, args, "XLIST", codeXlistOK)
}

func cmdLsub(ctx context.Context, s *session, args []string) Outcome {
	return listCommand(ctx, s, args, "LSUB", codeLsubOK)
}

func listCommand(ctx context.Context, s *session, args []string, verb string, okCode int) Outcome {
	// Optional selection/return option lists (SPECIAL-USE) arrive as
	// extra parenthesized tokens around ref and pattern.
	var bare []string
	specialOnly := false
	for _, a := range args[2:] {
		if strings.HasPrefix(a, "(") {
			if strings.Contains(strings.ToUpper(a), "SPECIAL-USE") {
				specialOnly = true
			}
			continue
		}
		if strings.EqualFold(a, "RETURN") {
			continue
		}
		bare = append(bare, a)
	}
	if len(bare) != 2 {
		return ok(codeBadCommand)
	}
	ref, pattern := bare[0], bare[1]

	// An empty pattern asks for the hierarchy delimiter.
	if pattern == "" {
		s.untaggedf(`%s (\Noselect) "/" ""`, verb)
		return ok(okCode)
	}
	full := ref + pattern

	entries, err := s.folderListing(ctx, verb == "LSUB")
	if err != nil {
		return midbOutcome(err)
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	tree := dirtree.Build(names)

	for _, e := range entries {
		if !wildcardMatch(full, e.name) {
			continue
		}
		attrs := folderAttrs(tree, e, verb == "XLIST")
		if specialOnly && specialUseAttr(e.sys, false) == "" {
			continue
		}
		s.untaggedf(`%s (%s) "/" "%s"`, verb, attrs, e.name)
	}
	return ok(okCode)
}

// folderListing enumerates the user's folders (or subscriptions) as
// protocol-visible names, INBOX first.
func (s *session) folderListing(ctx context.Context, subscribed bool) ([]listEntry, error) {
	var sysNames []string
	var err error
	if subscribed {
		sysNames, err = s.srv.client.EnumSubscriptions(ctx, s.maildir())
	} else {
		sysNames, err = s.srv.client.EnumFolders(ctx, s.maildir())
	}
	if err != nil {
		return nil, err
	}

	entries := make([]listEntry, 0, len(sysNames)+1)
	haveInbox := false
	for _, sys := range sysNames {
		name, convErr := foldermap.SysToImap(s.lang, sys)
		if convErr != nil {
			continue
		}
		if sys == consts.SysInbox {
			haveInbox = true
		}
		entries = append(entries, listEntry{name: name, sys: sys})
	}
	if !subscribed && !haveInbox {
		entries = append(entries, listEntry{name: "INBOX", sys: consts.SysInbox})
	}
	sort.Slice(entries, func(i, j int) bool {
		// INBOX sorts first, the rest alphabetically.
		if entries[i].sys == consts.SysInbox {
			return entries[j].sys != consts.SysInbox
		}
		if entries[j].sys == consts.SysInbox {
			return false
		}
		return entries[i].name < entries[j].name
	})
	return entries, nil
}

func folderAttrs(tree *dirtree.Tree, e listEntry, xlist bool) string {
	var attrs []string
	if h := tree.Match(e.name); h != dirtree.NotFound && tree.HasChildren(h) {
		attrs = append(attrs, `\HasChildren`)
	} else {
		attrs = append(attrs, `\HasNoChildren`)
	}
	if su := specialUseAttr(e.sys, xlist); su != "" {
		attrs = append(attrs, su)
	}
	return strings.Join(attrs, " ")
}

// specialUseAttr returns the special-use attribute string of a backend
// folder name. XLIST adds the legacy \Inbox and \Spam spellings.
func specialUseAttr(sys string, xlist bool) string {
	switch sys {
	case consts.SysInbox:
		if xlist {
			return `\Inbox`
		}
		return ""
	case consts.SysDraft:
		return `\Drafts`
	case consts.SysSent:
		return `\Sent`
	case consts.SysTrash:
		return `\Trash`
	case consts.SysJunk:
		if xlist {
			return `\Junk \Spam`
		}
		return `\Junk`
	}
	return ""
}
