package imap

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovermail/rover/midb"
)

func TestParseAppendArgs(t *testing.T) {
	s, _ := newTestSession(t, newFakeClient())

	t.Run("folder only", func(t *testing.T) {
		folder, flags, _, out := parseAppendArgs(s, []string{"a", "APPEND", "INBOX"})
		require.Equal(t, 0, out.Code)
		assert.Equal(t, "inbox", folder)
		assert.Equal(t, midb.FlagBits(0), flags)
	})

	t.Run("flags and date", func(t *testing.T) {
		folder, flags, received, out := parseAppendArgs(s,
			[]string{"a", "APPEND", "INBOX", `(\Seen \Draft)`, "7-Feb-2026 09:15:00 +0100"})
		require.Equal(t, 0, out.Code)
		assert.Equal(t, "inbox", folder)
		assert.Equal(t, midb.FlagSeen|midb.FlagDraft, flags)
		assert.Equal(t, 2026, received.Year())
		assert.Equal(t, time.February, received.Month())
	})

	t.Run("recent flag rejected", func(t *testing.T) {
		_, _, _, out := parseAppendArgs(s, []string{"a", "APPEND", "INBOX", `(\Recent)`})
		assert.Equal(t, codeBadFlags, out.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		_, _, _, out := parseAppendArgs(s, []string{"a", "APPEND", "INBOX", "not-a-date"})
		assert.Equal(t, codeBadCommand, out.Code)
	})
}

func TestStagePromoteRoundTrip(t *testing.T) {
	s, _ := newTestSession(t, newFakeClient())
	payload := "From: a@example.com\r\n\r\nhello\r\n"

	mid, err := s.stageAppend("inbox", midb.FlagSeen, time.Unix(1700000000, 0),
		strings.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	require.NotNil(t, s.staging)

	// The staging file carries a length-prefixed metadata block ahead
	// of the payload.
	raw, err := os.ReadFile(s.staging.path)
	require.NoError(t, err)
	require.Greater(t, len(raw), 4)
	metaLen := binary.LittleEndian.Uint32(raw[:4])
	meta := string(raw[4 : 4+metaLen])
	fields := strings.Split(meta, "\x00")
	require.Len(t, fields, 3)
	assert.Equal(t, "inbox", fields[0])
	assert.Equal(t, "(S)", fields[1])
	assert.Equal(t, "1700000000", fields[2])
	assert.Equal(t, payload, string(raw[4+metaLen:]))

	require.NoError(t, s.promoteStaging(mid))

	// The promoted file must hold exactly the message bytes.
	got, err := os.ReadFile(messagePath(s.maildir(), mid))
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestAppendReportsAppendUID(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)

	resp := runLine(s, out, `a1 APPEND INBOX (\Seen) "From: a@b\r\n\r\nhi\r\n"`)

	require.Len(t, client.insertedMIDs, 1)
	assert.Contains(t, resp, "a1 OK [APPENDUID 1234 8] APPEND completed\r\n")
	// No selection, so no unsolicited EXISTS on this session.
	assert.NotContains(t, resp, "EXISTS")

	// The staged file is gone and the message file exists.
	mid := client.insertedMIDs[0]
	_, err := os.Stat(messagePath(s.maildir(), mid))
	assert.NoError(t, err)
	assert.Nil(t, s.staging)
}

func TestAppendIntoSelectionAnnouncesExists(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 SELECT INBOX")

	resp := runLine(s, out, `a2 APPEND INBOX "From: a@b\r\n\r\nhi\r\n"`)

	assert.Contains(t, resp, "* 4 EXISTS\r\n")
	assert.Contains(t, resp, "a2 OK [APPENDUID 1234 8] APPEND completed\r\n")
	assert.Equal(t, uint32(4), s.contents.count())
}

func TestAppendIntoExaminedFolderRefused(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 EXAMINE INBOX")

	resp := runLine(s, out, `a2 APPEND INBOX "From: a@b\r\n\r\nhi\r\n"`)

	assert.Contains(t, resp, "a2 BAD can not store with read-only status\r\n")
	assert.Empty(t, client.insertedMIDs)

	// Other folders stay writable during the read-only selection.
	client.summaries["trash"] = midb.Summary{UIDValidity: 7, UIDNext: 1}
	resp = runLine(s, out, `a3 APPEND "Deleted Items" "From: a@b\r\n\r\nhi\r\n"`)
	assert.Contains(t, resp, "a3 OK [APPENDUID 7 1] APPEND completed\r\n")
}

func TestAppendUnknownFolderSaysTryCreate(t *testing.T) {
	client := newFakeClient()
	s, out := newTestSession(t, client)

	resp := runLine(s, out, `a1 APPEND Archive "From: a@b\r\n\r\nhi\r\n"`)

	assert.Contains(t, resp, "a1 NO [TRYCREATE]")
	assert.Empty(t, client.insertedMIDs)
}

func TestCopyReportsCopyUID(t *testing.T) {
	client := threeMessageInbox()
	client.summaries["trash"] = midb.Summary{UIDValidity: 99, UIDNext: 1}
	s, out := newTestSession(t, client)
	// Message files must exist for COPY to duplicate.
	require.NoError(t, os.MkdirAll(filepath.Join(s.maildir(), "eml"), 0o700))
	for _, mid := range []string{"m5", "m6", "m7"} {
		require.NoError(t, os.WriteFile(messagePath(s.maildir(), mid), []byte("x\r\n"), 0o600))
	}
	runLine(s, out, "a1 SELECT INBOX")

	resp := runLine(s, out, `a2 UID COPY 5:6 "Deleted Items"`)

	assert.Contains(t, resp, "a2 OK [COPYUID 99 5:6 1:2] UID COPY completed\r\n")
}

func TestCopyUnknownFolderSaysTryCreate(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)
	require.NoError(t, os.MkdirAll(filepath.Join(s.maildir(), "eml"), 0o700))
	require.NoError(t, os.WriteFile(messagePath(s.maildir(), "m5"), []byte("x\r\n"), 0o600))
	runLine(s, out, "a1 SELECT INBOX")

	resp := runLine(s, out, "a2 COPY 1 Nowhere")

	assert.Contains(t, resp, "a2 NO [TRYCREATE]")
}
