// Package digest parses on-disk RFC 5322 message files into a MIME
// part tree annotated with byte offsets, so that message content can
// be served as file byte ranges without materializing bodies in
// memory.
//
// Offsets are absolute positions in the message file, including for
// parts of embedded message/rfc822 messages; the same file descriptor
// serves the whole tree.
package digest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"strconv"
	"strings"

	"github.com/emersion/go-message/textproto"
)

// Part is one MIME entity of a message. The root entity has ID "".
type Part struct {
	ID string

	// HeadOffset/HeadLength cover the raw header block including the
	// terminating blank line. ContentOffset/ContentLength cover the
	// raw (still transfer-encoded) body.
	HeadOffset    int64
	HeadLength    int64
	ContentOffset int64
	ContentLength int64

	// Lines is the body line count, kept for text parts.
	Lines int64

	Header    textproto.Header
	MediaType string // lowercased, e.g. "text/plain"
	Params    map[string]string

	Children []*Part

	// Embedded is the root entity of a message/rfc822 part's payload.
	Embedded *Part
}

// Message is a parsed message file.
type Message struct {
	Path string
	Size int64
	Root *Part

	parts map[string]*Part
}

// EntireLength is the byte length of the whole message.
func (m *Message) EntireLength() int64 { return m.Size }

// Part returns the entity with the given IMAP part ID. ID "" is the
// root entity. For a message/rfc822 part, "<id>" addresses the part
// itself, and deeper IDs address entities of the embedded message.
func (m *Message) Part(id string) (*Part, bool) {
	p, ok := m.parts[id]
	return p, ok
}

// Open parses the message file at path.
func Open(path string) (*Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	sc := &scanner{r: bufio.NewReader(f)}
	root, err := parseEntity(sc, "", nil)
	if err != nil {
		return nil, fmt.Errorf("digest: parse %s: %w", path, err)
	}
	m := &Message{Path: path, Size: st.Size(), Root: root, parts: make(map[string]*Part)}
	m.index(root)
	return m, nil
}

func (m *Message) index(p *Part) {
	m.parts[p.ID] = p
	for _, c := range p.Children {
		m.index(c)
	}
	if p.Embedded != nil {
		// The embedded root shares the container part's ID space:
		// "<id>.HEADER" style addressing resolves through the
		// container; child entities get their own dotted IDs.
		for _, c := range p.Embedded.Children {
			m.index(c)
		}
	}
}

// IsMultipart reports whether the part is a multipart container.
func (p *Part) IsMultipart() bool {
	return strings.HasPrefix(p.MediaType, "multipart/")
}

// IsMessage reports whether the part embeds a full message.
func (p *Part) IsMessage() bool {
	return p.MediaType == "message/rfc822"
}

// scanner reads lines while tracking the absolute file offset.
type scanner struct {
	r      *bufio.Reader
	offset int64
	eof    bool

	// one-line pushback for boundary handling
	pushedLine  []byte
	pushedStart int64
}

// line returns the next raw line including its terminator, plus the
// offset of its first byte. At EOF it returns io.EOF.
func (s *scanner) line() ([]byte, int64, error) {
	if s.pushedLine != nil {
		l, off := s.pushedLine, s.pushedStart
		s.pushedLine = nil
		return l, off, nil
	}
	if s.eof {
		return nil, s.offset, io.EOF
	}
	start := s.offset
	l, err := s.r.ReadBytes('\n')
	s.offset += int64(len(l))
	if err == io.EOF {
		s.eof = true
		if len(l) == 0 {
			return nil, start, io.EOF
		}
		return l, start, nil
	}
	return l, start, err
}

func (s *scanner) unline(l []byte, start int64) {
	s.pushedLine = l
	s.pushedStart = start
}

// pos is the offset of the next unconsumed byte, accounting for a
// pushed-back line.
func (s *scanner) pos() int64 {
	if s.pushedLine != nil {
		return s.pushedStart
	}
	return s.offset
}

func isBlank(l []byte) bool {
	t := bytes.TrimRight(l, "\r\n")
	return len(t) == 0
}

// boundaryKind classifies a line against the enclosing boundary stack.
// It returns the index into bounds of the boundary that matched and
// whether the line is the closing "--boundary--" form.
func boundaryKind(l []byte, bounds []string) (int, bool, bool) {
	t := bytes.TrimRight(l, "\r\n \t")
	if !bytes.HasPrefix(t, []byte("--")) {
		return 0, false, false
	}
	body := string(t[2:])
	for i := len(bounds) - 1; i >= 0; i-- {
		b := bounds[i]
		if body == b {
			return i, false, true
		}
		if body == b+"--" {
			return i, true, true
		}
	}
	return 0, false, false
}

// parseEntity parses one entity starting at the current offset. bounds
// is the stack of enclosing multipart boundaries; scanning stops (with
// the line pushed back) when a line matches any of them.
func parseEntity(sc *scanner, id string, bounds []string) (*Part, error) {
	p := &Part{ID: id, Params: map[string]string{}}

	// Header block.
	p.HeadOffset = sc.pos()
	var rawHeader bytes.Buffer
	for {
		l, start, err := sc.line()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, _, matched := boundaryKind(l, bounds); matched {
			sc.unline(l, start)
			break
		}
		rawHeader.Write(l)
		if isBlank(l) {
			break
		}
	}
	p.HeadLength = sc.pos() - p.HeadOffset

	hdr, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(rawHeader.Bytes())))
	if err != nil {
		// Tolerate malformed headers: serve the part as opaque bytes.
		hdr = textproto.Header{}
	}
	p.Header = hdr

	mediaType, params, err := mime.ParseMediaType(hdr.Get("Content-Type"))
	if err != nil || mediaType == "" {
		mediaType, params = "text/plain", map[string]string{"charset": "us-ascii"}
	}
	p.MediaType = strings.ToLower(mediaType)
	p.Params = params

	p.ContentOffset = sc.pos()

	switch {
	case p.IsMultipart():
		if err := parseMultipart(sc, p, bounds); err != nil {
			return nil, err
		}
	case p.IsMessage():
		sub, err := parseEntity(sc, "", bounds)
		if err != nil {
			return nil, err
		}
		subID := id
		if subID != "" {
			renumber(sub, subID)
		}
		p.Embedded = sub
		p.ContentLength = (sub.ContentOffset + sub.ContentLength) - p.ContentOffset
		p.Lines = sub.Lines
	default:
		if err := parseLeafContent(sc, p, bounds); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// renumber rewrites the IDs of an embedded message's entities so they
// hang off the container part's ID.
func renumber(root *Part, containerID string) {
	for i, c := range root.Children {
		rewriteID(c, containerID+"."+strconv.Itoa(i+1))
	}
	if len(root.Children) == 0 {
		// Non-multipart embedded message: its body is part
		// "<container>.1" per RFC 3501 part addressing.
		clone := *root
		clone.ID = containerID + ".1"
		root.Children = []*Part{&clone}
	}
}

func rewriteID(p *Part, id string) {
	old := p.ID
	p.ID = id
	for _, c := range p.Children {
		suffix := strings.TrimPrefix(strings.TrimPrefix(c.ID, old), ".")
		rewriteID(c, id+"."+suffix)
	}
}

func parseLeafContent(sc *scanner, p *Part, bounds []string) error {
	end := sc.pos()
	for {
		l, start, err := sc.line()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, _, matched := boundaryKind(l, bounds); matched {
			sc.unline(l, start)
			break
		}
		end = start + int64(len(l))
		p.Lines++
	}
	p.ContentLength = end - p.ContentOffset
	return nil
}

func parseMultipart(sc *scanner, p *Part, bounds []string) error {
	boundary := p.Params["boundary"]
	if boundary == "" {
		// No boundary: treat as an opaque leaf.
		return parseLeafContent(sc, p, bounds)
	}
	inner := append(append([]string(nil), bounds...), boundary)

	// Preamble: skip until the first occurrence of our boundary; stop
	// early if a parent boundary shows up.
	closed := false
	for {
		l, start, err := sc.line()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		idx, closing, matched := boundaryKind(l, inner)
		if !matched {
			continue
		}
		if idx < len(inner)-1 {
			// Parent boundary: broken message, no parts.
			sc.unline(l, start)
			closed = true
			break
		}
		if closing {
			closed = true
		}
		break
	}
	n := 0
	for !closed {
		n++
		childID := strconv.Itoa(n)
		if p.ID != "" {
			childID = p.ID + "." + childID
		}
		child, err := parseEntity(sc, childID, inner)
		if err != nil {
			return err
		}
		p.Children = append(p.Children, child)

		l, start, err := sc.line()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		idx, closing, matched := boundaryKind(l, inner)
		if !matched {
			// parseEntity only stops at boundaries or EOF.
			return fmt.Errorf("unexpected line after part %s", childID)
		}
		if idx < len(inner)-1 {
			sc.unline(l, start)
			break
		}
		if closing {
			break
		}
	}
	// Epilogue up to a parent boundary or EOF belongs to this part.
	for {
		l, start, err := sc.line()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, _, matched := boundaryKind(l, bounds); matched {
			sc.unline(l, start)
			break
		}
	}
	p.ContentLength = sc.pos() - p.ContentOffset
	return nil
}
