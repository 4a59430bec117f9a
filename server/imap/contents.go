package imap

import (
	"github.com/emersion/go-imap/v2"

	"github.com/rovermail/rover/midb"
)

// contentItem is one cached message of the selected folder.
type contentItem struct {
	uid   imap.UID
	seq   uint32 // 1-based, equals index+1 at all times
	mid   string
	flags midb.FlagBits
}

// contents is the per-selection mailbox cache. Sequence numbers are
// positions in items; the backend listing is the order of record.
type contents struct {
	items    []contentItem
	byUID    map[imap.UID]int // index into items
	recent   uint32
	firstUns uint32 // 1-based sequence of first unseen, 0 if none
}

func newContents() *contents {
	return &contents{byUID: make(map[imap.UID]int)}
}

// refreshFull replaces the cache with the backend listing, assigning
// sequence numbers 1..N in listing order. The previous state survives
// untouched if the caller aborted before calling (all-or-nothing is
// the caller's concern; this method cannot fail).
func (c *contents) refreshFull(listing []midb.Item) {
	c.items = make([]contentItem, len(listing))
	c.byUID = make(map[imap.UID]int, len(listing))
	for i, it := range listing {
		c.items[i] = contentItem{uid: it.UID, seq: uint32(i + 1), mid: it.MID, flags: it.Flags}
		c.byUID[it.UID] = i
	}
	c.recount()
}

// refreshIncremental appends backend items with unknown UIDs, giving
// them the next sequence numbers. Existing entries keep their
// positions and cached flags, so sequence numbers a client observed
// mid-command stay valid.
func (c *contents) refreshIncremental(listing []midb.Item) {
	for _, it := range listing {
		if _, known := c.byUID[it.UID]; known {
			continue
		}
		c.items = append(c.items, contentItem{
			uid:   it.UID,
			seq:   uint32(len(c.items) + 1),
			mid:   it.MID,
			flags: it.Flags,
		})
		c.byUID[it.UID] = len(c.items) - 1
	}
	c.recount()
}

func (c *contents) recount() {
	c.recent = 0
	c.firstUns = 0
	for i := range c.items {
		if c.items[i].flags&midb.FlagRecent != 0 {
			c.recent++
		}
		if c.firstUns == 0 && c.items[i].flags&midb.FlagSeen == 0 {
			c.firstUns = c.items[i].seq
		}
	}
}

func (c *contents) count() uint32 {
	return uint32(len(c.items))
}

// maxUID is the highest cached UID (the last item, since the backend
// assigns UIDs monotonically).
func (c *contents) maxUID() uint32 {
	if len(c.items) == 0 {
		return 0
	}
	return uint32(c.items[len(c.items)-1].uid)
}

// bySeq returns the item at the 1-based sequence number.
func (c *contents) bySeq(seq uint32) (*contentItem, bool) {
	if seq < 1 || seq > uint32(len(c.items)) {
		return nil, false
	}
	return &c.items[seq-1], true
}

// itemByUID returns the cached item with the given UID.
func (c *contents) itemByUID(uid imap.UID) (*contentItem, bool) {
	i, known := c.byUID[uid]
	if !known {
		return nil, false
	}
	return &c.items[i], true
}

// removeUIDs drops the given UIDs and renumbers the survivors 1..N.
// Returns the sequence numbers removed, highest first, the order
// EXPUNGE responses are sent in so earlier numbers stay valid while
// the client processes the batch.
func (c *contents) removeUIDs(uids map[imap.UID]struct{}) []uint32 {
	var removed []uint32
	kept := c.items[:0]
	for _, it := range c.items {
		if _, gone := uids[it.uid]; gone {
			removed = append(removed, it.seq)
			continue
		}
		kept = append(kept, it)
	}
	c.items = kept
	c.byUID = make(map[imap.UID]int, len(kept))
	for i := range c.items {
		c.items[i].seq = uint32(i + 1)
		c.byUID[c.items[i].uid] = i
	}
	c.recount()
	// highest first
	for i, j := 0, len(removed)-1; i < j; i, j = i+1, j-1 {
		removed[i], removed[j] = removed[j], removed[i]
	}
	return removed
}
