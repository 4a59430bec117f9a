package foldermap

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/rovermail/rover/consts"
	"github.com/rovermail/rover/mutf7"
)

var ErrBadName = errors.New("foldermap: invalid folder name")

// IsSpecial reports whether a backend name is one of the reserved
// special folder names (inbox matched case-insensitively).
func IsSpecial(sysName string) bool {
	if strings.EqualFold(sysName, consts.SysInbox) {
		return true
	}
	for _, s := range consts.SysSpecialFolders {
		if sysName == s {
			return true
		}
	}
	return false
}

// specialSysName maps a localized display-name head segment to its
// backend alias, or returns the segment unchanged.
func specialSysName(lang, head string) string {
	if strings.EqualFold(head, "INBOX") {
		return consts.SysInbox
	}
	for id, sys := range map[FolderID]string{
		FolderDraft: consts.SysDraft,
		FolderSent:  consts.SysSent,
		FolderTrash: consts.SysTrash,
		FolderJunk:  consts.SysJunk,
	} {
		if head == DisplayName(lang, id) {
			return sys
		}
	}
	return head
}

// ImapToSys converts a protocol-visible folder name to the backend
// storage name. The head segment is matched against INBOX and the
// localized special folder names; everything else is hex-encoded. A
// trailing slash is stripped before mapping.
func ImapToSys(lang, imapName string) (string, error) {
	utf8Name, err := mutf7.Decode(imapName)
	if err != nil {
		return "", ErrBadName
	}
	utf8Name = strings.TrimSuffix(utf8Name, "/")

	head, rest, nested := strings.Cut(utf8Name, "/")
	head = specialSysName(lang, head)
	if nested {
		return hex.EncodeToString([]byte(head + "/" + rest)), nil
	}
	if IsSpecial(head) {
		if strings.EqualFold(head, consts.SysInbox) {
			return consts.SysInbox, nil
		}
		return head, nil
	}
	return hex.EncodeToString([]byte(head)), nil
}

// SysToImap converts a backend storage name back to the
// protocol-visible name, localized for lang.
func SysToImap(lang, sysName string) (string, error) {
	switch sysName {
	case consts.SysInbox:
		return "INBOX", nil
	case consts.SysDraft:
		return mutf7.Encode(DisplayName(lang, FolderDraft)), nil
	case consts.SysSent:
		return mutf7.Encode(DisplayName(lang, FolderSent)), nil
	case consts.SysTrash:
		return mutf7.Encode(DisplayName(lang, FolderTrash)), nil
	case consts.SysJunk:
		return mutf7.Encode(DisplayName(lang, FolderJunk)), nil
	}
	raw, err := hex.DecodeString(sysName)
	if err != nil {
		return "", ErrBadName
	}
	utf8Name := string(raw)

	head, rest, nested := strings.Cut(utf8Name, "/")
	switch head {
	case consts.SysInbox:
		head = "INBOX"
	case consts.SysDraft:
		head = DisplayName(lang, FolderDraft)
	case consts.SysSent:
		head = DisplayName(lang, FolderSent)
	case consts.SysTrash:
		head = DisplayName(lang, FolderTrash)
	case consts.SysJunk:
		head = DisplayName(lang, FolderJunk)
	}
	if nested {
		return mutf7.Encode(head + "/" + rest), nil
	}
	return mutf7.Encode(head), nil
}

// ConvertList rewrites a backend folder listing into protocol-visible
// names in place, skipping entries that fail to decode.
func ConvertList(lang string, list []string) {
	for i, sysName := range list {
		if imapName, err := SysToImap(lang, sysName); err == nil {
			list[i] = imapName
		}
	}
}
