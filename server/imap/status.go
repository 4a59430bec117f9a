package imap

import (
	"context"
	"fmt"
	"strings"
)

func cmdStatus(ctx context.Context, s *session, args []string) Outcome {
	if len(args) != 4 || !strings.HasPrefix(args[3], "(") {
		return ok(codeBadCommand)
	}
	sys, valid := s.sysFolder(args[2])
	if !valid {
		return ok(codeBadFolderName)
	}
	items, err := tokenize(stripParens(args[3]))
	if err != nil || len(items) == 0 {
		return ok(codeBadCommand)
	}

	summary, err := s.srv.client.SummaryFolder(ctx, s.maildir(), sys)
	if err != nil {
		return midbOutcome(err)
	}

	var parts []string
	for _, item := range items {
		switch strings.ToUpper(item) {
		case "MESSAGES":
			parts = append(parts, fmt.Sprintf("MESSAGES %d", summary.Exists))
		case "RECENT":
			parts = append(parts, fmt.Sprintf("RECENT %d", summary.Recent))
		case "UIDNEXT":
			parts = append(parts, fmt.Sprintf("UIDNEXT %d", summary.UIDNext))
		case "UIDVALIDITY":
			parts = append(parts, fmt.Sprintf("UIDVALIDITY %d", summary.UIDValidity))
		case "UNSEEN":
			parts = append(parts, fmt.Sprintf("UNSEEN %d", summary.Unseen))
		default:
			return ok(codeBadCommand)
		}
	}
	s.untaggedf(`STATUS "%s" (%s)`, args[2], strings.Join(parts, " "))
	return ok(codeStatusOK)
}
