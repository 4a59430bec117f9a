package imap

import (
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovermail/rover/midb"
)

func listing(uids ...uint32) []midb.Item {
	items := make([]midb.Item, len(uids))
	for i, u := range uids {
		items[i] = midb.Item{UID: imap.UID(u), MID: "m"}
	}
	return items
}

func TestRefreshFullRenumbers(t *testing.T) {
	c := newContents()
	c.refreshFull(listing(5, 6, 7))

	assert.EqualValues(t, 3, c.count())
	for i, want := range []uint32{5, 6, 7} {
		it, ok := c.bySeq(uint32(i + 1))
		require.True(t, ok)
		assert.EqualValues(t, want, it.uid)
		assert.EqualValues(t, i+1, it.seq)
	}

	// A second full refresh renumbers from scratch.
	c.refreshFull(listing(6, 7, 9, 10))
	it, ok := c.bySeq(1)
	require.True(t, ok)
	assert.EqualValues(t, 6, it.uid)
	assert.EqualValues(t, 10, c.maxUID())
}

func TestRefreshIncrementalAppendsOnly(t *testing.T) {
	c := newContents()
	c.refreshFull(listing(5, 6, 7))

	// Backend grew; incremental refresh must not disturb existing
	// sequence numbers even though UID 5 vanished backend-side.
	c.refreshIncremental(listing(6, 7, 8, 9))

	it, ok := c.itemByUID(5)
	require.True(t, ok)
	assert.EqualValues(t, 1, it.seq)

	it, ok = c.itemByUID(8)
	require.True(t, ok)
	assert.EqualValues(t, 4, it.seq)

	it, ok = c.itemByUID(9)
	require.True(t, ok)
	assert.EqualValues(t, 5, it.seq)
}

func TestRecount(t *testing.T) {
	c := newContents()
	c.refreshFull([]midb.Item{
		{UID: 1, MID: "a", Flags: midb.FlagSeen},
		{UID: 2, MID: "b", Flags: midb.FlagRecent},
		{UID: 3, MID: "c", Flags: midb.FlagSeen | midb.FlagRecent},
	})
	assert.EqualValues(t, 2, c.recent)
	assert.EqualValues(t, 2, c.firstUns)

	c.refreshFull([]midb.Item{{UID: 1, MID: "a", Flags: midb.FlagSeen}})
	assert.EqualValues(t, 0, c.recent)
	assert.EqualValues(t, 0, c.firstUns)
}

func TestRemoveUIDs(t *testing.T) {
	c := newContents()
	c.refreshFull(listing(5, 6, 7, 8))

	removed := c.removeUIDs(map[imap.UID]struct{}{6: {}, 8: {}})
	assert.Equal(t, []uint32{4, 2}, removed)

	assert.EqualValues(t, 2, c.count())
	it, ok := c.bySeq(2)
	require.True(t, ok)
	assert.EqualValues(t, 7, it.uid)
	_, ok = c.itemByUID(6)
	assert.False(t, ok)
}
