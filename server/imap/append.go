package imap

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/rovermail/rover/midb"
	"github.com/rovermail/rover/pkg/retry"
	"github.com/rovermail/rover/server/idgen"
)

// appendStaging is a message being written to the user's tmp
// directory before the backend learns about it. The file starts with a
// little-endian length-prefixed metadata block (folder, flags,
// internal date, NUL separated) so an interrupted APPEND leaves a
// self-describing file; the prefix is advisory when reading back.
type appendStaging struct {
	path string
	file *os.File
}

// handleAppendLiteral runs an APPEND whose message arrives as a
// literal, streaming the bytes to a staging file instead of memory.
func (s *session) handleAppendLiteral(tag, line string, count int64, nonSync bool) Outcome {
	if s.phase < phaseAuthenticated {
		return ok(codeNotAuthed)
	}
	head := strings.TrimRight(line[:strings.LastIndexByte(line, '{')], " ")
	args, err := tokenize(head)
	if err != nil || len(args) < 3 {
		return ok(codeBadCommand)
	}
	folder, flags, received, out := parseAppendArgs(s, args)
	if out.Code != 0 {
		if nonSync {
			// The bytes are already in flight; drain to stay in sync.
			io.CopyN(io.Discard, s.reader, count)
			s.readLine()
		}
		return out
	}
	if s.srv.maxMessageSize > 0 && count > s.srv.maxMessageSize {
		if nonSync {
			io.CopyN(io.Discard, s.reader, count)
			s.readLine()
		}
		return ok(codeTooLong)
	}

	if !nonSync {
		s.writer.WriteString(statusLine(codeContinue) + "\r\n")
		s.writer.Flush()
	}

	s.conn.SetReadDeadline(time.Now().Add(s.srv.idleTimeout))
	mid, err := s.stageAppend(folder, flags, received, s.reader, count)
	if err != nil {
		s.Log("APPEND staging failed: %v", err)
		s.discardStaging()
		return closing(codeSaveFailed)
	}
	// The command line's trailing CRLF follows the literal.
	if rest, err := s.readLine(); err != nil || strings.TrimSpace(rest) != "" {
		s.discardStaging()
		if err != nil {
			return closing(codeBadCommand)
		}
		return ok(codeBadCommand)
	}
	return s.finishAppend(s.ctx, tag, mid, folder, flags, received)
}

// cmdAppend covers the literal-free form where the message arrived as
// a quoted token (tiny messages, test clients).
func cmdAppend(ctx context.Context, s *session, args []string) Outcome {
	if len(args) < 4 {
		return ok(codeBadCommand)
	}
	payload := args[len(args)-1]
	folder, flags, received, out := parseAppendArgs(s, args[:len(args)-1])
	if out.Code != 0 {
		return out
	}
	mid, err := s.stageAppend(folder, flags, received, strings.NewReader(payload), int64(len(payload)))
	if err != nil {
		s.Log("APPEND staging failed: %v", err)
		s.discardStaging()
		return ok(codeSaveFailed)
	}
	return s.finishAppend(ctx, args[0], mid, folder, flags, received)
}

// parseAppendArgs parses "tag APPEND folder [flag-list] [date-time]".
// A zero Outcome means success.
func parseAppendArgs(s *session, args []string) (string, midb.FlagBits, time.Time, Outcome) {
	sys, valid := s.sysFolder(args[2])
	if !valid {
		return "", 0, time.Time{}, ok(codeBadFolderName)
	}
	// An EXAMINE'd folder takes no writes, appends included.
	if s.readOnly && s.phase == phaseSelected && sys == s.selectedFolder {
		return "", 0, time.Time{}, ok(codeReadOnly)
	}
	var flags midb.FlagBits
	received := time.Now()
	for _, a := range args[3:] {
		switch {
		case strings.HasPrefix(a, "("):
			names, err := tokenize(stripParens(a))
			if err != nil {
				return "", 0, time.Time{}, ok(codeBadCommand)
			}
			for _, n := range names {
				bit, known := midb.ParseFlag(n)
				if !known || bit == midb.FlagRecent {
					return "", 0, time.Time{}, ok(codeBadFlags)
				}
				flags |= bit
			}
		default:
			t, err := time.Parse("_2-Jan-2006 15:04:05 -0700", a)
			if err != nil {
				return "", 0, time.Time{}, ok(codeBadCommand)
			}
			received = t
		}
	}
	return sys, flags, received, Outcome{}
}

// stageAppend writes the metadata block and n payload bytes to a new
// staging file and registers it for cleanup-on-exit.
func (s *session) stageAppend(folder string, flags midb.FlagBits, received time.Time, payload io.Reader, n int64) (string, error) {
	tmpDir := filepath.Join(s.maildir(), "tmp")
	if err := os.MkdirAll(tmpDir, 0o700); err != nil {
		return "", err
	}
	mid := idgen.NewMessageID()
	path := filepath.Join(tmpDir, mid)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	s.staging = &appendStaging{path: path, file: f}

	meta := folder + "\x00" + flags.StoreString() + "\x00" + strconv.FormatInt(received.Unix(), 10)
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(meta)))
	if _, err := f.Write(prefix[:]); err != nil {
		return "", err
	}
	if _, err := f.WriteString(meta); err != nil {
		return "", err
	}
	if _, err := io.CopyN(f, payload, n); err != nil {
		return "", err
	}
	return mid, f.Sync()
}

// finishAppend promotes the staged payload to the message store,
// registers it with the backend and reports APPENDUID. The backend
// assigns the UID asynchronously, hence the bounded wait.
func (s *session) finishAppend(ctx context.Context, tag, mid, folder string, flags midb.FlagBits, received time.Time) Outcome {
	defer s.discardStaging()

	if err := s.promoteStaging(mid); err != nil {
		s.Log("APPEND promote failed: %v", err)
		return ok(codeSaveFailed)
	}
	if err := s.srv.client.InsertMail(ctx, s.maildir(), folder, mid, flags.StoreString(), received); err != nil {
		os.Remove(messagePath(s.maildir(), mid))
		if midb.IsNoFolder(err) {
			s.taggedf(tag, "NO [TRYCREATE] APPEND failed, no such folder")
			return Outcome{}
		}
		return midbOutcome(err)
	}

	var uid imap.UID
	waitErr := retry.Do(ctx, retry.Fixed(10, 50*time.Millisecond), func() error {
		u, err := s.srv.client.GetUID(ctx, s.maildir(), folder, mid)
		if err != nil {
			return err
		}
		uid = u
		return nil
	})

	summary, sumErr := s.srv.client.SummaryFolder(ctx, s.maildir(), folder)
	if s.selectedFolder == folder {
		if s.refreshContents(ctx, false) == nil {
			s.untaggedf("%d EXISTS", s.contents.count())
			s.untaggedf("%d RECENT", s.contents.recent)
		}
	}
	if sumErr == nil {
		s.srv.bcast.post(s, s.maildir(), folder, []string{
			fmt.Sprintf("* %d EXISTS\r\n", summary.Exists),
			fmt.Sprintf("* %d RECENT\r\n", summary.Recent),
		})
	}

	s.Log("appended %s to %q", mid, folder)
	if waitErr != nil || sumErr != nil {
		// UID not visible yet: plain completion, no APPENDUID.
		s.taggedf(tag, "OK APPEND completed")
		return Outcome{}
	}
	line := strings.Replace(statusLine(codeAppendOK), "<APPENDUID>",
		fmt.Sprintf("[APPENDUID %d %d]", summary.UIDValidity, uid), 1)
	s.taggedf(tag, "%s", line)
	return Outcome{}
}

// promoteStaging copies the staged payload (everything after the
// metadata block) into the message store under its final name.
func (s *session) promoteStaging(mid string) error {
	st := s.staging
	if st == nil {
		return os.ErrNotExist
	}
	st.file.Close()
	src, err := os.Open(st.path)
	if err != nil {
		return err
	}
	defer src.Close()

	var prefix [4]byte
	if _, err := io.ReadFull(src, prefix[:]); err != nil {
		return err
	}
	metaLen := int64(binary.LittleEndian.Uint32(prefix[:]))
	if _, err := src.Seek(4+metaLen, io.SeekStart); err != nil {
		return err
	}

	emlDir := filepath.Join(s.maildir(), "eml")
	if err := os.MkdirAll(emlDir, 0o700); err != nil {
		return err
	}
	dst, err := os.OpenFile(filepath.Join(emlDir, mid), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return err
	}
	return dst.Close()
}
