package imap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// FileRef names a byte range of an on-disk file to be spliced into
// the outbound stream in place of an inline literal.
type FileRef struct {
	Path   string
	Offset int64
	Length int64
}

// respBuffer assembles a response as a sequence of text segments and
// file-backed literals, so message bodies are streamed from disk
// rather than materialized.
type respBuffer struct {
	segs []any // string or FileRef
}

func (b *respBuffer) text(s string) {
	b.segs = append(b.segs, s)
}

func (b *respBuffer) textf(format string, args ...any) {
	b.segs = append(b.segs, fmt.Sprintf(format, args...))
}

// literal appends the {N} marker plus the file range carrying N bytes.
func (b *respBuffer) literal(ref FileRef) {
	b.textf("{%d}\r\n", ref.Length)
	b.segs = append(b.segs, ref)
}

// literalBytes appends an inline literal for already-materialized
// content (filtered header fields).
func (b *respBuffer) literalBytes(data []byte) {
	b.textf("{%d}\r\n", len(data))
	b.segs = append(b.segs, string(data))
}

func (b *respBuffer) empty() bool { return len(b.segs) == 0 }

// writeTo flushes the buffer, splicing file ranges into w.
func (b *respBuffer) writeTo(w *bufio.Writer) error {
	for _, seg := range b.segs {
		switch v := seg.(type) {
		case string:
			if _, err := w.WriteString(v); err != nil {
				return err
			}
		case FileRef:
			if err := spliceFile(w, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// debugString renders the buffer with file ranges as placeholder
// markers, for tests and logging.
func (b *respBuffer) debugString() string {
	var sb strings.Builder
	for _, seg := range b.segs {
		switch v := seg.(type) {
		case string:
			sb.WriteString(v)
		case FileRef:
			fmt.Fprintf(&sb, "<<{file}%s|%d|%d", v.Path, v.Offset, v.Length)
		}
	}
	return sb.String()
}

func spliceFile(w io.Writer, ref FileRef) error {
	f, err := os.Open(ref.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(ref.Offset, io.SeekStart); err != nil {
		return err
	}
	_, err = io.CopyN(w, f, ref.Length)
	return err
}
