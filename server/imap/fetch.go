package imap

import (
	"os"
	"path/filepath"

	"github.com/rovermail/rover/digest"
)

const internalDateLayout = "02-Jan-2006 15:04:05 -0700"

// messagePath is the on-disk location of a message file inside a
// user's mail directory.
func messagePath(maildir, mid string) string {
	return filepath.Join(maildir, "eml", mid)
}

// fetchSource lazily opens the message file backing one FETCH
// response. Metadata items stat the file; structure items parse it.
type fetchSource struct {
	path string
	st   os.FileInfo
	msg  *digest.Message
}

func (f *fetchSource) stat() (os.FileInfo, error) {
	if f.st == nil {
		st, err := os.Stat(f.path)
		if err != nil {
			return nil, err
		}
		f.st = st
	}
	return f.st, nil
}

func (f *fetchSource) open() (*digest.Message, error) {
	if f.msg == nil {
		m, err := digest.Open(f.path)
		if err != nil {
			return nil, err
		}
		f.msg = m
	}
	return f.msg, nil
}

// renderFetch appends one untagged FETCH response for the message.
// Items the file cannot satisfy render as NIL rather than aborting the
// whole FETCH, so one unreadable message does not starve the rest.
func renderFetch(b *respBuffer, it *contentItem, req *fetchRequest, maildir string) {
	src := &fetchSource{path: messagePath(maildir, it.mid)}
	b.textf("* %d FETCH (", it.seq)
	for i, item := range req.items {
		if i > 0 {
			b.text(" ")
		}
		switch item.name {
		case "UID":
			b.textf("UID %d", it.uid)
		case "FLAGS":
			b.textf("FLAGS %s", it.flags.String())
		case "INTERNALDATE":
			st, err := src.stat()
			if err != nil {
				b.text("INTERNALDATE NIL")
				continue
			}
			b.textf("INTERNALDATE \"%s\"", st.ModTime().Format(internalDateLayout))
		case "RFC822.SIZE":
			st, err := src.stat()
			if err != nil {
				b.text("RFC822.SIZE 0")
				continue
			}
			b.textf("RFC822.SIZE %d", st.Size())
		case "ENVELOPE":
			msg, err := src.open()
			if err != nil {
				b.text("ENVELOPE NIL")
				continue
			}
			b.textf("ENVELOPE %s", msg.Envelope())
		case "BODY", "BODYSTRUCTURE":
			msg, err := src.open()
			if err != nil {
				b.textf("%s NIL", item.name)
				continue
			}
			b.textf("%s %s", item.name, msg.Structure(item.name == "BODYSTRUCTURE"))
		case "RFC822":
			st, err := src.stat()
			if err != nil {
				b.text("RFC822 NIL")
				continue
			}
			b.text("RFC822 ")
			b.literal(FileRef{Path: src.path, Length: st.Size()})
		case "RFC822.HEADER":
			msg, err := src.open()
			if err != nil {
				b.text("RFC822.HEADER NIL")
				continue
			}
			b.text("RFC822.HEADER ")
			b.literal(FileRef{Path: src.path, Offset: msg.Root.HeadOffset, Length: msg.Root.HeadLength})
		case "RFC822.TEXT":
			msg, err := src.open()
			if err != nil {
				b.text("RFC822.TEXT NIL")
				continue
			}
			b.text("RFC822.TEXT ")
			b.literal(FileRef{Path: src.path, Offset: msg.Root.ContentOffset, Length: msg.Root.ContentLength})
		case "BODYSECTION":
			msg, err := src.open()
			if err != nil {
				b.text("BODY[] NIL")
				continue
			}
			appendSection(b, msg, item.section)
		}
	}
	b.text(")\r\n")
}

// fetchTouchesBody reports whether serving the request implies marking
// the message seen: any body read that is not an explicit PEEK.
func fetchTouchesBody(req *fetchRequest) bool {
	for _, it := range req.items {
		switch it.name {
		case "RFC822", "RFC822.TEXT":
			return true
		case "BODYSECTION":
			if !it.section.peek {
				return true
			}
		}
	}
	return false
}
