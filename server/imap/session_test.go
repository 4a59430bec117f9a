package imap

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovermail/rover/auth"
	"github.com/rovermail/rover/midb"
	"github.com/rovermail/rover/seqset"
	serverPkg "github.com/rovermail/rover/server"
)

// flagCall records one flag mutation against the fake backend.
type flagCall struct {
	folder string
	mid    string
	flags  midb.FlagBits
	set    bool
}

// fakeClient is an in-memory midb.Client for handler tests.
type fakeClient struct {
	folders   []string
	subs      []string
	summaries map[string]midb.Summary
	listings  map[string][]midb.Item
	deleted   map[string][]midb.Item

	flagCalls    []flagCall
	removedMIDs  []string
	insertedMIDs []string
	detailCalls  int

	err error // when set, every call fails with it
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		folders:   []string{"inbox"},
		summaries: make(map[string]midb.Summary),
		listings:  make(map[string][]midb.Item),
		deleted:   make(map[string][]midb.Item),
	}
}

func (f *fakeClient) EnumFolders(ctx context.Context, maildir string) ([]string, error) {
	return f.folders, f.err
}

func (f *fakeClient) EnumSubscriptions(ctx context.Context, maildir string) ([]string, error) {
	return f.subs, f.err
}

func (f *fakeClient) SummaryFolder(ctx context.Context, maildir, folder string) (midb.Summary, error) {
	if f.err != nil {
		return midb.Summary{}, f.err
	}
	sum, known := f.summaries[folder]
	if !known {
		return midb.Summary{}, &midb.Error{Code: midb.CodeNoFolder, Text: "no such folder"}
	}
	return sum, nil
}

func (f *fakeClient) MakeFolder(ctx context.Context, maildir, folder string) error {
	if f.err != nil {
		return f.err
	}
	f.folders = append(f.folders, folder)
	return nil
}

func (f *fakeClient) RemoveFolder(ctx context.Context, maildir, folder string) error {
	return f.err
}

func (f *fakeClient) RenameFolder(ctx context.Context, maildir, from, to string) error {
	return f.err
}

func (f *fakeClient) SubscribeFolder(ctx context.Context, maildir, folder string) error {
	if f.err != nil {
		return f.err
	}
	f.subs = append(f.subs, folder)
	return nil
}

func (f *fakeClient) UnsubscribeFolder(ctx context.Context, maildir, folder string) error {
	return f.err
}

func (f *fakeClient) FetchSimpleUID(ctx context.Context, maildir, folder string, ranges seqset.List) ([]midb.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.listings[folder], nil
}

func (f *fakeClient) FetchDetailUID(ctx context.Context, maildir, folder string, ranges seqset.List) ([]midb.Item, error) {
	f.detailCalls++
	return f.FetchSimpleUID(ctx, maildir, folder, ranges)
}

func (f *fakeClient) ListDeleted(ctx context.Context, maildir, folder string) ([]midb.Item, error) {
	return f.deleted[folder], f.err
}

func (f *fakeClient) RemoveMail(ctx context.Context, maildir, folder string, mids []string) error {
	if f.err != nil {
		return f.err
	}
	f.removedMIDs = append(f.removedMIDs, mids...)
	return nil
}

func (f *fakeClient) CopyMail(ctx context.Context, maildir, srcFolder, srcMID, dstFolder, dstMID string) error {
	if f.err != nil {
		return f.err
	}
	sum, known := f.summaries[dstFolder]
	if !known {
		return &midb.Error{Code: midb.CodeNoFolder, Text: "no such folder"}
	}
	uid := imap.UID(sum.UIDNext)
	if uid == 0 {
		uid = 1
	}
	f.listings[dstFolder] = append(f.listings[dstFolder], midb.Item{UID: uid, MID: dstMID})
	sum.UIDNext = uint32(uid) + 1
	sum.Exists++
	f.summaries[dstFolder] = sum
	return nil
}

func (f *fakeClient) InsertMail(ctx context.Context, maildir, folder, mid, flagString string, received time.Time) error {
	if f.err != nil {
		return f.err
	}
	if _, known := f.summaries[folder]; !known {
		return &midb.Error{Code: midb.CodeNoFolder, Text: "no such folder"}
	}
	f.insertedMIDs = append(f.insertedMIDs, mid)

	// The index assigns the next UID and bumps the folder counters,
	// like the real backend does.
	sum := f.summaries[folder]
	uid := imap.UID(sum.UIDNext)
	if uid == 0 {
		uid = 1
	}
	f.listings[folder] = append(f.listings[folder], midb.Item{UID: uid, MID: mid})
	sum.UIDNext = uint32(uid) + 1
	sum.Exists++
	f.summaries[folder] = sum
	return nil
}

func (f *fakeClient) applyFlags(folder, mid string, flags midb.FlagBits, set bool) {
	items := f.listings[folder]
	for i := range items {
		if items[i].MID != mid {
			continue
		}
		if set {
			items[i].Flags |= flags
		} else {
			items[i].Flags &^= flags
		}
	}
}

func (f *fakeClient) GetFlags(ctx context.Context, maildir, folder, mid string) (midb.FlagBits, error) {
	if f.err != nil {
		return 0, f.err
	}
	for _, it := range f.listings[folder] {
		if it.MID == mid {
			return it.Flags, nil
		}
	}
	return 0, &midb.Error{Code: midb.CodeNoMessage, Text: "no such message"}
}

func (f *fakeClient) SetFlags(ctx context.Context, maildir, folder, mid string, flags midb.FlagBits) error {
	if f.err != nil {
		return f.err
	}
	f.flagCalls = append(f.flagCalls, flagCall{folder: folder, mid: mid, flags: flags, set: true})
	f.applyFlags(folder, mid, flags, true)
	return nil
}

func (f *fakeClient) UnsetFlags(ctx context.Context, maildir, folder, mid string, flags midb.FlagBits) error {
	if f.err != nil {
		return f.err
	}
	f.flagCalls = append(f.flagCalls, flagCall{folder: folder, mid: mid, flags: flags, set: false})
	f.applyFlags(folder, mid, flags, false)
	return nil
}

func (f *fakeClient) GetUID(ctx context.Context, maildir, folder, mid string) (imap.UID, error) {
	if f.err != nil {
		return 0, f.err
	}
	for _, it := range f.listings[folder] {
		if it.MID == mid {
			return it.UID, nil
		}
	}
	return 0, &midb.Error{Code: midb.CodeNoMessage, Text: "no such message"}
}

func (f *fakeClient) Search(ctx context.Context, maildir, folder, charset string, criteria []string) (string, error) {
	return "1 2", f.err
}

func (f *fakeClient) SearchUID(ctx context.Context, maildir, folder, charset string, criteria []string) (string, error) {
	return "5 6", f.err
}

func newTestSession(t *testing.T, client midb.Client) (*session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	srv := &Server{
		hostname:       "mail.test",
		client:         client,
		defaultLang:    "en",
		idleTimeout:    time.Minute,
		maxMessageSize: 1 << 20,
		store:          auth.NewStaticStore(nil),
		limiter:        auth.NewLimiter(auth.DefaultLimiterConfig()),
		bcast:          newBroadcaster(),
		activeSessions: make(map[*session]struct{}),
	}
	srv.appCtx, srv.cancel = context.WithCancel(context.Background())
	t.Cleanup(srv.cancel)

	s := &session{
		Session: serverPkg.Session{
			ID:       "test",
			RemoteIP: "127.0.0.1",
			Protocol: "IMAP",
			Stats:    &srv.counters,
		},
		srv:      srv,
		reader:   bufio.NewReader(strings.NewReader("")),
		writer:   bufio.NewWriter(&out),
		phase:    phaseAuthenticated,
		lang:     "en",
		user:     &auth.User{Username: "kim", MaildirPath: t.TempDir()},
		contents: newContents(),
	}
	s.ctx, s.cancel = context.WithCancel(srv.appCtx)
	t.Cleanup(s.cancel)
	srv.addSession(s)
	return s, &out
}

// runLine pushes one command line through the session and returns
// everything it wrote.
func runLine(s *session, out *bytes.Buffer, line string) string {
	tag, res := s.handleCommand(line)
	s.writeOutcome(tag, res)
	resp := out.String()
	out.Reset()
	return resp
}

func threeMessageInbox() *fakeClient {
	client := newFakeClient()
	client.summaries["inbox"] = midb.Summary{
		Exists:      3,
		UIDValidity: 1234,
		UIDNext:     8,
	}
	client.listings["inbox"] = []midb.Item{
		{UID: 5, MID: "m5", Flags: midb.FlagSeen},
		{UID: 6, MID: "m6"},
		{UID: 7, MID: "m7", Flags: midb.FlagSeen},
	}
	return client
}

func TestDispatchPhaseMatrix(t *testing.T) {
	tests := []struct {
		name  string
		phase int
		line  []string
		want  int
	}{
		{"select before login", phaseUnauth, []string{"a", "SELECT", "INBOX"}, codeNotAuthed},
		{"fetch before login", phaseUnauth, []string{"a", "FETCH", "1", "FLAGS"}, codeNotAuthed},
		{"fetch before select", phaseAuthenticated, []string{"a", "FETCH", "1", "FLAGS"}, codeNotSelected},
		{"check before select", phaseAuthenticated, []string{"a", "CHECK"}, codeNotSelected},
		{"unknown verb", phaseAuthenticated, []string{"a", "FROBNICATE"}, codeBadCommand},
		{"missing verb", phaseAuthenticated, []string{"a"}, codeBadCommand},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestSession(t, newFakeClient())
			s.phase = tc.phase
			res := s.dispatch(s.ctx, tc.line)
			assert.Equal(t, tc.want, res.Code)
		})
	}
}

func TestSelectReportsMailboxState(t *testing.T) {
	s, out := newTestSession(t, threeMessageInbox())

	resp := runLine(s, out, "a1 SELECT INBOX")

	assert.Contains(t, resp, "* 3 EXISTS\r\n")
	assert.Contains(t, resp, "* 0 RECENT\r\n")
	assert.Contains(t, resp, "* OK [UNSEEN 2]")
	assert.Contains(t, resp, "* OK [UIDVALIDITY 1234]")
	assert.Contains(t, resp, "* OK [UIDNEXT 8]")
	assert.Contains(t, resp, "a1 OK [READ-WRITE] SELECT completed\r\n")
	assert.Equal(t, phaseSelected, s.phase)
	assert.Equal(t, "inbox", s.selectedFolder)
}

func TestSelectNonexistentFolder(t *testing.T) {
	s, out := newTestSession(t, threeMessageInbox())

	resp := runLine(s, out, "a1 SELECT Missing")

	assert.Contains(t, resp, "a1 NO [NONEXISTENT]")
	assert.Equal(t, phaseAuthenticated, s.phase)
}

func TestCreateRenameRejectWildcardNames(t *testing.T) {
	s, out := newTestSession(t, threeMessageInbox())

	for _, line := range []string{
		"a1 CREATE news%",
		"a2 CREATE some*name",
		"a3 CREATE what?",
		"a4 RENAME archive arch*ve",
		"a5 RENAME arch%ve archive",
	} {
		resp := runLine(s, out, line)
		assert.Contains(t, resp, "NO folder name format error\r\n", "line %q", line)
	}
}

func TestExamineIsReadOnly(t *testing.T) {
	s, out := newTestSession(t, threeMessageInbox())

	resp := runLine(s, out, "a1 EXAMINE INBOX")
	require.Contains(t, resp, "a1 OK [READ-ONLY] EXAMINE completed\r\n")

	res := s.dispatch(s.ctx, []string{"a2", "STORE", "1", "+FLAGS", `(\Seen)`})
	assert.Equal(t, codeReadOnly, res.Code)

	res = s.dispatch(s.ctx, []string{"a3", "EXPUNGE"})
	assert.Equal(t, codeReadOnly, res.Code)
}

func TestStoreBySequenceNumber(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 SELECT INBOX")
	client.flagCalls = nil

	resp := runLine(s, out, `a2 STORE 2 +FLAGS (\Seen)`)

	// Sequence 2 is UID 6 / mid m6; the others stay untouched.
	require.Len(t, client.flagCalls, 1)
	assert.Equal(t, flagCall{folder: "inbox", mid: "m6", flags: midb.FlagSeen, set: true}, client.flagCalls[0])
	assert.Contains(t, resp, `* 2 FETCH (FLAGS (\Seen))`+"\r\n")
	assert.Contains(t, resp, "a2 OK STORE completed\r\n")

	it, known := s.contents.bySeq(2)
	require.True(t, known)
	assert.Equal(t, midb.FlagSeen, it.flags&midb.FlagSeen)
}

func TestStoreSilentSuppressesUntagged(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 SELECT INBOX")

	resp := runLine(s, out, `a2 STORE 2 +FLAGS.SILENT (\Seen)`)

	assert.NotContains(t, resp, "FETCH")
	assert.Contains(t, resp, "a2 OK STORE completed\r\n")
}

func TestStoreReplaceModeClearsFirst(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 SELECT INBOX")
	client.flagCalls = nil

	runLine(s, out, `a2 STORE 1 FLAGS (\Flagged)`)

	require.Len(t, client.flagCalls, 2)
	assert.False(t, client.flagCalls[0].set)
	assert.Equal(t, settableFlags, client.flagCalls[0].flags)
	assert.True(t, client.flagCalls[1].set)
	assert.Equal(t, midb.FlagFlagged, client.flagCalls[1].flags)
}

func TestStoreReportsBackendFlags(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 SELECT INBOX")

	// Another writer flagged m6 behind this session's back; the
	// untagged FETCH must reflect the stored state, not the cache.
	client.applyFlags("inbox", "m6", midb.FlagAnswered, true)

	resp := runLine(s, out, `a2 STORE 2 +FLAGS (\Seen)`)

	assert.Contains(t, resp, `* 2 FETCH (FLAGS (\Answered \Seen))`+"\r\n")
	it, known := s.contents.bySeq(2)
	require.True(t, known)
	assert.Equal(t, midb.FlagAnswered|midb.FlagSeen, it.flags)
}

func TestFetchDetailRefreshesListing(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 SELECT INBOX")

	// UID/FLAGS-only fetches run off the cache.
	runLine(s, out, "a2 FETCH 1 (FLAGS)")
	assert.Equal(t, 0, client.detailCalls)

	// Anything touching message state asks for the detail listing,
	// picking up messages delivered since the selection.
	client.listings["inbox"] = append(client.listings["inbox"], midb.Item{UID: 9, MID: "m9"})
	runLine(s, out, "a3 FETCH 1 (RFC822.SIZE)")
	assert.Equal(t, 1, client.detailCalls)
	assert.Equal(t, uint32(4), s.contents.count())
}

func TestStoreRejectsRecent(t *testing.T) {
	s, out := newTestSession(t, threeMessageInbox())
	runLine(s, out, "a1 SELECT INBOX")

	res := s.dispatch(s.ctx, []string{"a2", "STORE", "1", "+FLAGS", `(\Recent)`})
	assert.Equal(t, codeBadFlags, res.Code)
}

func TestUIDStoreEchoesUID(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 SELECT INBOX")
	client.flagCalls = nil

	resp := runLine(s, out, `a2 UID STORE 6 +FLAGS (\Flagged)`)

	require.Len(t, client.flagCalls, 1)
	assert.Equal(t, "m6", client.flagCalls[0].mid)
	assert.Contains(t, resp, `* 2 FETCH (UID 6 FLAGS (\Flagged))`+"\r\n")
	assert.Contains(t, resp, "a2 OK STORE completed\r\n")
}

func TestStoreBroadcastsToSharedSelection(t *testing.T) {
	client := threeMessageInbox()
	s1, out1 := newTestSession(t, client)
	s2, out2 := newTestSession(t, client)
	s2.srv = s1.srv
	s2.user = s1.user
	s1.srv.addSession(s2)

	runLine(s1, out1, "a1 SELECT INBOX")
	runLine(s2, out2, "b1 SELECT INBOX")

	runLine(s1, out1, `a2 STORE 2 +FLAGS (\Seen)`)

	s2.flushPending()
	assert.Contains(t, out2.String(), `* 2 FETCH (UID 6 FLAGS (\Seen))`+"\r\n")

	// The acting session must not see its own broadcast.
	s1.flushPending()
	assert.Empty(t, out1.String())
}

func TestListShowsSpecialFolders(t *testing.T) {
	client := threeMessageInbox()
	client.folders = []string{"inbox", "sent", "trash"}
	s, out := newTestSession(t, client)

	resp := runLine(s, out, `a1 LIST "" "*"`)

	lines := strings.Split(strings.TrimSuffix(resp, "\r\n"), "\r\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, `* LIST (\HasNoChildren) "/" "INBOX"`, lines[0])
	assert.Contains(t, resp, `* LIST (\HasNoChildren \Sent) "/" "Sent Items"`+"\r\n")
	assert.Contains(t, resp, `* LIST (\HasNoChildren \Trash) "/" "Deleted Items"`+"\r\n")
	assert.Contains(t, resp, "a1 OK LIST completed\r\n")
}

func TestListEmptyPatternReturnsDelimiter(t *testing.T) {
	s, out := newTestSession(t, newFakeClient())

	resp := runLine(s, out, `a1 LIST "" ""`)

	assert.Contains(t, resp, `* LIST (\Noselect) "/" ""`+"\r\n")
	assert.Contains(t, resp, "a1 OK LIST completed\r\n")
}

func TestListPercentStopsAtHierarchy(t *testing.T) {
	client := newFakeClient()
	// hex("archive") and hex("archive/2024")
	client.folders = []string{"inbox", "61726368697665", "617263686976652f32303234"}
	s, out := newTestSession(t, client)

	resp := runLine(s, out, `a1 LIST "" "%"`)

	assert.Contains(t, resp, `"archive"`)
	assert.NotContains(t, resp, "archive/2024")
}

func TestStatusReportsCounters(t *testing.T) {
	s, out := newTestSession(t, threeMessageInbox())

	resp := runLine(s, out, "a1 STATUS INBOX (MESSAGES UIDNEXT)")

	assert.Contains(t, resp, `* STATUS "INBOX" (MESSAGES 3 UIDNEXT 8)`+"\r\n")
	assert.Contains(t, resp, "a1 OK STATUS completed\r\n")

	res := s.dispatch(s.ctx, []string{"a2", "STATUS", "INBOX", "(BOGUS)"})
	assert.Equal(t, codeBadCommand, res.Code)
}

func TestLogoutSaysBye(t *testing.T) {
	s, out := newTestSession(t, newFakeClient())

	tag, res := s.handleCommand("a1 LOGOUT")
	s.writeOutcome(tag, res)

	assert.True(t, res.CloseConn)
	resp := out.String()
	assert.Contains(t, resp, "* BYE")
	assert.Contains(t, resp, "a1 OK LOGOUT completed\r\n")
}

func TestSearchPassesThroughBackendResult(t *testing.T) {
	s, out := newTestSession(t, threeMessageInbox())
	runLine(s, out, "a1 SELECT INBOX")

	resp := runLine(s, out, "a2 SEARCH UNSEEN")
	assert.Contains(t, resp, "* SEARCH 1 2\r\n")

	resp = runLine(s, out, "a3 UID SEARCH UNSEEN")
	assert.Contains(t, resp, "* SEARCH 5 6\r\n")
}

func TestExpungeRemovesDeletedHighestFirst(t *testing.T) {
	client := threeMessageInbox()
	client.deleted["inbox"] = []midb.Item{
		{UID: 5, MID: "m5"},
		{UID: 7, MID: "m7"},
	}
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 SELECT INBOX")

	resp := runLine(s, out, "a2 EXPUNGE")

	assert.ElementsMatch(t, []string{"m5", "m7"}, client.removedMIDs)
	// Highest sequence first so earlier numbers stay valid.
	first := strings.Index(resp, "* 3 EXPUNGE")
	second := strings.Index(resp, "* 1 EXPUNGE")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
	assert.Contains(t, resp, "a2 OK EXPUNGE completed\r\n")
	assert.Equal(t, uint32(1), s.contents.count())
}

func TestCloseExpungesSilently(t *testing.T) {
	client := threeMessageInbox()
	client.deleted["inbox"] = []midb.Item{{UID: 6, MID: "m6"}}
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 SELECT INBOX")

	resp := runLine(s, out, "a2 CLOSE")

	assert.Equal(t, []string{"m6"}, client.removedMIDs)
	assert.NotContains(t, resp, "EXPUNGE\r\n")
	assert.Contains(t, resp, "a2 OK CLOSE completed\r\n")
	assert.Equal(t, phaseAuthenticated, s.phase)
}

func TestBackendDownMapsToMIDBOffline(t *testing.T) {
	client := threeMessageInbox()
	s, out := newTestSession(t, client)
	runLine(s, out, "a1 SELECT INBOX")

	client.err = fmt.Errorf("dial: %w", midb.ErrNoServer)
	res := s.dispatch(s.ctx, []string{"a2", "CHECK"})
	assert.Equal(t, codeMIDBOffline, res.Code)

	res = s.dispatch(s.ctx, []string{"a3", "SELECT", "INBOX"})
	assert.Equal(t, codeMIDBOffline, res.Code)
}

func TestCollectLiteralsFoldsSyncLiteral(t *testing.T) {
	s, out := newTestSession(t, newFakeClient())
	s.reader = bufio.NewReader(strings.NewReader("Trash\r\n"))

	full, _, okLine := s.collectLiterals("a1 CREATE {5}")
	require.True(t, okLine)
	assert.Equal(t, `a1 CREATE "Trash"`, full)
	// The continuation prompt must go out before the literal is read.
	assert.True(t, strings.HasPrefix(out.String(), "+ "))
}

func TestCollectLiteralsOversized(t *testing.T) {
	s, _ := newTestSession(t, newFakeClient())
	line := fmt.Sprintf("a1 CREATE {%d}", maxInlineLiteral+1)

	_, res, okLine := s.collectLiterals(line)
	assert.False(t, okLine)
	assert.Equal(t, codeTooLong, res.Code)
}
