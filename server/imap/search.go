package imap

import (
	"context"
	"strings"
)

func cmdSearch(ctx context.Context, s *session, args []string) Outcome {
	return searchCommand(ctx, s, args, false)
}

func cmdUIDSearch(ctx context.Context, s *session, args []string) Outcome {
	return searchCommand(ctx, s, args, true)
}

// searchCommand passes the criteria through to the backend, which
// owns the index needed to evaluate them.
func searchCommand(ctx context.Context, s *session, args []string, byUID bool) Outcome {
	criteria := args[2:]
	charset := "utf-8"
	if len(criteria) >= 2 && strings.EqualFold(criteria[0], "CHARSET") {
		charset = criteria[1]
		criteria = criteria[2:]
	}
	if len(criteria) == 0 {
		return ok(codeBadSearch)
	}

	var result string
	var err error
	if byUID {
		result, err = s.srv.client.SearchUID(ctx, s.maildir(), s.selectedFolder, charset, criteria)
	} else {
		result, err = s.srv.client.Search(ctx, s.maildir(), s.selectedFolder, charset, criteria)
	}
	if err != nil {
		return midbOutcome(err)
	}

	if result == "" {
		s.untagged("SEARCH")
	} else {
		s.untagged("SEARCH " + result)
	}
	if byUID {
		return ok(codeUIDSearchOK)
	}
	return ok(codeSearchOK)
}
