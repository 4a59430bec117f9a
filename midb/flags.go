package midb

import (
	"strings"

	"github.com/emersion/go-imap/v2"
)

// FlagBits is the packed flag representation shared between the index
// and the session layer.
type FlagBits uint16

const (
	FlagAnswered FlagBits = 1 << iota
	FlagFlagged
	FlagDeleted
	FlagSeen
	FlagDraft
	FlagRecent
)

// ParseFlag maps an IMAP flag name to its bit. Recent is accepted even
// though clients cannot normally set it; the session layer decides
// which contexts allow it.
func ParseFlag(name string) (FlagBits, bool) {
	switch {
	case strings.EqualFold(name, string(imap.FlagAnswered)):
		return FlagAnswered, true
	case strings.EqualFold(name, string(imap.FlagFlagged)):
		return FlagFlagged, true
	case strings.EqualFold(name, string(imap.FlagDeleted)):
		return FlagDeleted, true
	case strings.EqualFold(name, string(imap.FlagSeen)):
		return FlagSeen, true
	case strings.EqualFold(name, string(imap.FlagDraft)):
		return FlagDraft, true
	case strings.EqualFold(name, "\\Recent"):
		return FlagRecent, true
	}
	return 0, false
}

// String formats the bits as a parenthesized IMAP flag list, Recent
// first, in the order clients of the original server expect.
func (f FlagBits) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, e := range [...]struct {
		bit  FlagBits
		name string
	}{
		{FlagRecent, "\\Recent"},
		{FlagAnswered, string(imap.FlagAnswered)},
		{FlagFlagged, string(imap.FlagFlagged)},
		{FlagDeleted, string(imap.FlagDeleted)},
		{FlagSeen, string(imap.FlagSeen)},
		{FlagDraft, string(imap.FlagDraft)},
	} {
		if f&e.bit == 0 {
			continue
		}
		if sb.Len() > 1 {
			sb.WriteByte(' ')
		}
		sb.WriteString(e.name)
	}
	sb.WriteByte(')')
	return sb.String()
}

// ParseStoreFlags reads the compact single-letter form back into
// bits. Unknown letters are ignored.
func ParseStoreFlags(s string) FlagBits {
	var f FlagBits
	for _, c := range s {
		switch c {
		case 'S':
			f |= FlagSeen
		case 'A':
			f |= FlagAnswered
		case 'F':
			f |= FlagFlagged
		case 'U':
			f |= FlagDraft
		case 'D':
			f |= FlagDeleted
		case 'R':
			f |= FlagRecent
		}
	}
	return f
}

// StoreString formats the bits in the compact single-letter form the
// backend's flag calls take: (S)een, (A)nswered, (F)lagged, draft as
// "U", (D)eleted. Recent is never sent; the backend owns it.
func (f FlagBits) StoreString() string {
	var sb strings.Builder
	sb.WriteByte('(')
	if f&FlagSeen != 0 {
		sb.WriteByte('S')
	}
	if f&FlagAnswered != 0 {
		sb.WriteByte('A')
	}
	if f&FlagFlagged != 0 {
		sb.WriteByte('F')
	}
	if f&FlagDraft != 0 {
		sb.WriteByte('U')
	}
	if f&FlagDeleted != 0 {
		sb.WriteByte('D')
	}
	sb.WriteByte(')')
	return sb.String()
}
