package imap

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/rovermail/rover/midb"
	"github.com/rovermail/rover/pkg/retry"
	"github.com/rovermail/rover/seqset"
	"github.com/rovermail/rover/server/idgen"
)

func cmdCopy(ctx context.Context, s *session, args []string) Outcome {
	return copyCommand(ctx, s, args, false)
}

func cmdUIDCopy(ctx context.Context, s *session, args []string) Outcome {
	return copyCommand(ctx, s, args, true)
}

type copiedMessage struct {
	srcUID imap.UID
	dstMID string
}

func copyCommand(ctx context.Context, s *session, args []string, byUID bool) Outcome {
	failCode := codeCopyFailed
	okCode := codeCopyOK
	if byUID {
		failCode = codeUIDCopyFailed
		okCode = codeUIDCopyOK
	}
	if len(args) != 4 {
		return ok(codeBadCommand)
	}
	set, err := seqset.Parse(args[2])
	if err != nil {
		return ok(codeBadCommand)
	}
	dst, valid := s.sysFolder(args[3])
	if !valid {
		return ok(codeBadFolderName)
	}

	targets := s.resolveSet(set, byUID)
	if len(targets) == 0 {
		return ok(okCode)
	}

	var copied []copiedMessage
	for _, it := range targets {
		newMID := idgen.NewMessageID()
		if err := copyFile(messagePath(s.maildir(), it.mid), messagePath(s.maildir(), newMID)); err != nil {
			s.Log("COPY file error: %v", err)
			s.rollbackCopy(ctx, dst, copied)
			return ok(failCode)
		}
		if err := s.srv.client.CopyMail(ctx, s.maildir(), s.selectedFolder, it.mid, dst, newMID); err != nil {
			os.Remove(messagePath(s.maildir(), newMID))
			s.rollbackCopy(ctx, dst, copied)
			if midb.IsNoFolder(err) {
				s.taggedf(args[0], "NO [TRYCREATE] COPY failed, no such folder")
				return Outcome{}
			}
			if midb.IsTransport(err) {
				return midbOutcome(err)
			}
			return ok(failCode)
		}
		copied = append(copied, copiedMessage{srcUID: it.uid, dstMID: newMID})
	}

	// COPYUID wants the destination UIDs; the backend assigns them
	// asynchronously, like APPEND.
	srcUIDs := make([]uint32, len(copied))
	dstUIDs := make([]uint32, len(copied))
	uidComplete := true
	for i, c := range copied {
		srcUIDs[i] = uint32(c.srcUID)
		var uid imap.UID
		err := retry.Do(ctx, retry.Fixed(10, 50*time.Millisecond), func() error {
			u, err := s.srv.client.GetUID(ctx, s.maildir(), dst, c.dstMID)
			if err != nil {
				return err
			}
			uid = u
			return nil
		})
		if err != nil {
			uidComplete = false
			break
		}
		dstUIDs[i] = uint32(uid)
	}

	summary, sumErr := s.srv.client.SummaryFolder(ctx, s.maildir(), dst)
	if sumErr == nil {
		s.srv.bcast.post(s, s.maildir(), dst, []string{
			fmt.Sprintf("* %d EXISTS\r\n", summary.Exists),
			fmt.Sprintf("* %d RECENT\r\n", summary.Recent),
		})
	}

	s.Log("copied %d messages to %q", len(copied), dst)
	if !uidComplete || sumErr != nil {
		if byUID {
			s.taggedf(args[0], "OK UID COPY completed")
		} else {
			s.taggedf(args[0], "OK COPY completed")
		}
		return Outcome{}
	}
	line := strings.Replace(statusLine(okCode), "<COPYUID>",
		fmt.Sprintf("[COPYUID %d %s %s]", summary.UIDValidity, uidSetString(srcUIDs), uidSetString(dstUIDs)), 1)
	s.taggedf(args[0], "%s", line)
	return Outcome{}
}

// rollbackCopy undoes a half-done COPY so the destination never shows
// a partial batch.
func (s *session) rollbackCopy(ctx context.Context, dst string, copied []copiedMessage) {
	if len(copied) == 0 {
		return
	}
	mids := make([]string, len(copied))
	for i, c := range copied {
		mids[i] = c.dstMID
	}
	if err := s.srv.client.RemoveMail(ctx, s.maildir(), dst, mids); err != nil {
		s.Log("COPY rollback failed: %v", err)
	}
	for _, mid := range mids {
		os.Remove(messagePath(s.maildir(), mid))
	}
}

// uidSetString collapses an ordered UID list into set notation.
func uidSetString(uids []uint32) string {
	var list seqset.List
	for _, u := range uids {
		if n := len(list); n > 0 && list[n-1].Hi+1 == u {
			list[n-1].Hi = u
			continue
		}
		list = append(list, seqset.Range{Lo: u, Hi: u})
	}
	return list.String()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
