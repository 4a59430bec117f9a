// Package idgen produces the identifiers the server hands out:
// per-connection session IDs and message IDs (MIDs) naming delivered
// message files.
package idgen

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

var (
	nodeID   [2]byte
	sequence atomic.Uint32

	encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)
)

func init() {
	if _, err := rand.Read(nodeID[:]); err != nil {
		// Degrade to a host-derived value; uniqueness within the
		// process still holds through the sequence counter.
		host, _ := os.Hostname()
		h := uint16(len(host))
		for i := 0; i < len(host); i++ {
			h = h*31 + uint16(host[i])
		}
		nodeID[0], nodeID[1] = byte(h>>8), byte(h)
	}
}

// New returns a compact session ID: 4 bytes of timestamp, 2 bytes of
// node ID and 2 bytes of a wrapping sequence counter, base32-encoded.
// The counter wrapping is harmless; IDs only need to be unique among
// live sessions.
func New() string {
	ts := uint32(time.Now().Unix())
	seq := uint16(sequence.Add(1))

	var id [8]byte
	id[0], id[1], id[2], id[3] = byte(ts>>24), byte(ts>>16), byte(ts>>8), byte(ts)
	id[4], id[5] = nodeID[0], nodeID[1]
	id[6], id[7] = byte(seq>>8), byte(seq)
	return encoding.EncodeToString(id[:])
}

// NewMessageID returns a MID for a message delivered by this process:
// unix time, a node marker, and the wrapping sequence counter. The
// format is filename-safe and sorts roughly by delivery time.
func NewMessageID() string {
	return fmt.Sprintf("%d.r%x%04x", time.Now().Unix(),
		uint16(nodeID[0])<<8|uint16(nodeID[1]), uint16(sequence.Add(1)))
}
