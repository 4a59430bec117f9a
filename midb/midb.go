// Package midb defines the capability contract of the external mail
// index service (MIDB) that owns authoritative UID, flag and folder
// state, plus the item and flag types shared with the IMAP session
// layer.
//
// The session layer never talks SQL or touches the index storage; all
// of that lives behind Client. Implementations are expected to return
// the error taxonomy from errors.go so that callers can distinguish a
// dead backend from an application-level rejection.
package midb

import (
	"context"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/rovermail/rover/seqset"
)

// Item is one message as reported by the index: the folder-scoped UID,
// the message identifier naming the on-disk file, and the flag bits.
type Item struct {
	UID   imap.UID
	MID   string
	Flags FlagBits
}

// Summary mirrors the backend's per-folder counters.
type Summary struct {
	Exists      uint32
	Recent      uint32
	Unseen      uint32
	UIDValidity uint32
	UIDNext     uint32
}

// Client is the RPC surface the session layer consumes. All calls are
// synchronous from the caller's point of view and honor ctx
// cancellation.
type Client interface {
	EnumFolders(ctx context.Context, maildir string) ([]string, error)
	EnumSubscriptions(ctx context.Context, maildir string) ([]string, error)
	SummaryFolder(ctx context.Context, maildir, folder string) (Summary, error)

	MakeFolder(ctx context.Context, maildir, folder string) error
	RemoveFolder(ctx context.Context, maildir, folder string) error
	RenameFolder(ctx context.Context, maildir, from, to string) error
	SubscribeFolder(ctx context.Context, maildir, folder string) error
	UnsubscribeFolder(ctx context.Context, maildir, folder string) error

	// FetchSimpleUID returns the items whose UIDs fall into ranges, in
	// backend (UID) order. FetchDetailUID is identical but forces the
	// backend to refresh its folder listing first.
	FetchSimpleUID(ctx context.Context, maildir, folder string, ranges seqset.List) ([]Item, error)
	FetchDetailUID(ctx context.Context, maildir, folder string, ranges seqset.List) ([]Item, error)

	ListDeleted(ctx context.Context, maildir, folder string) ([]Item, error)
	RemoveMail(ctx context.Context, maildir, folder string, mids []string) error
	CopyMail(ctx context.Context, maildir, srcFolder, srcMID, dstFolder, dstMID string) error
	InsertMail(ctx context.Context, maildir, folder, mid, flagString string, received time.Time) error

	GetFlags(ctx context.Context, maildir, folder, mid string) (FlagBits, error)
	SetFlags(ctx context.Context, maildir, folder, mid string, flags FlagBits) error
	UnsetFlags(ctx context.Context, maildir, folder, mid string, flags FlagBits) error

	GetUID(ctx context.Context, maildir, folder, mid string) (imap.UID, error)

	// Search runs the given criteria against the folder and returns the
	// backend-formatted result list (sequence numbers or UIDs).
	Search(ctx context.Context, maildir, folder, charset string, criteria []string) (string, error)
	SearchUID(ctx context.Context, maildir, folder, charset string, criteria []string) (string, error)
}
