package imap

import (
	"io"
	"os"

	"github.com/rovermail/rover/digest"
)

// sectionContent is the resolved payload of a BODY[...] item: either a
// byte range of the message file, inline bytes, or NIL.
type sectionContent struct {
	null   bool
	inline []byte
	ref    FileRef
}

// resolveSection maps a parsed section spec onto the message's offset
// index. Unknown part IDs and empty ranges resolve to NIL rather than
// an error, matching what clients expect for out-of-range requests.
func resolveSection(msg *digest.Message, sec *sectionSpec) sectionContent {
	var off, length int64
	switch {
	case sec.partID == "" && sec.keyword == "":
		off, length = 0, msg.Size
	case sec.keyword == "HEADER.FIELDS" || sec.keyword == "HEADER.FIELDS.NOT":
		p, ok := msg.Part(sec.partID)
		if !ok {
			return sectionContent{null: true}
		}
		hp := headerPart(p)
		raw, err := readRange(msg.Path, hp.HeadOffset, hp.HeadLength)
		if err != nil {
			return sectionContent{null: true}
		}
		filtered := digest.FilterHeaderFields(raw, sec.fields, sec.keyword == "HEADER.FIELDS.NOT")
		return clampInline(filtered, sec)
	case sec.keyword == "HEADER":
		p, ok := msg.Part(sec.partID)
		if !ok {
			return sectionContent{null: true}
		}
		// HEADER on a named part only makes sense for an embedded
		// message; a plain sub-part has no message header.
		if sec.partID != "" && p.Embedded == nil {
			return sectionContent{null: true}
		}
		hp := headerPart(p)
		off, length = hp.HeadOffset, hp.HeadLength
	case sec.keyword == "MIME":
		// MIME is the part's own header block, container headers for a
		// message/rfc822 part included.
		p, ok := msg.Part(sec.partID)
		if !ok {
			return sectionContent{null: true}
		}
		off, length = p.HeadOffset, p.HeadLength
	case sec.keyword == "TEXT":
		p, ok := msg.Part(sec.partID)
		if !ok {
			return sectionContent{null: true}
		}
		// Likewise TEXT: valid on the whole message or an embedded
		// message, NIL on any other named part.
		if sec.partID != "" && p.Embedded == nil {
			return sectionContent{null: true}
		}
		bp := headerPart(p)
		off, length = bp.ContentOffset, bp.ContentLength
	default:
		// Bare part number: the part's content.
		p, ok := msg.Part(sec.partID)
		if !ok {
			return sectionContent{null: true}
		}
		off, length = p.ContentOffset, p.ContentLength
	}
	return clampRange(msg.Path, off, length, sec)
}

// headerPart returns the entity whose HEADER/TEXT a section addresses:
// for a message/rfc822 part that is the embedded message, for
// everything else the part itself.
func headerPart(p *digest.Part) *digest.Part {
	if p.Embedded != nil {
		return p.Embedded
	}
	return p
}

func clampRange(path string, off, length int64, sec *sectionSpec) sectionContent {
	if sec.partial {
		if sec.offset >= length {
			return sectionContent{null: true}
		}
		off += sec.offset
		length -= sec.offset
		if sec.length < length {
			length = sec.length
		}
	}
	if length == 0 {
		return sectionContent{inline: []byte{}}
	}
	return sectionContent{ref: FileRef{Path: path, Offset: off, Length: length}}
}

func clampInline(data []byte, sec *sectionSpec) sectionContent {
	if sec.partial {
		if sec.offset >= int64(len(data)) {
			return sectionContent{null: true}
		}
		data = data[sec.offset:]
		if sec.length < int64(len(data)) {
			data = data[:sec.length]
		}
	}
	return sectionContent{inline: data}
}

func readRange(path string, off, length int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// appendSection writes the data-item name and payload of a BODY[...]
// response to the buffer. The echoed item name drops the .PEEK and the
// partial length ("<offset>" only), per protocol.
func appendSection(b *respBuffer, msg *digest.Message, sec *sectionSpec) {
	b.text("BODY[")
	if sec.partID != "" {
		b.text(sec.partID)
		if sec.keyword != "" {
			b.text(".")
		}
	}
	b.text(sec.keyword)
	if len(sec.fields) > 0 {
		b.text(" (")
		for i, f := range sec.fields {
			if i > 0 {
				b.text(" ")
			}
			b.textf("%q", f)
		}
		b.text(")")
	}
	b.text("]")
	if sec.partial {
		b.textf("<%d>", sec.offset)
	}
	b.text(" ")

	c := resolveSection(msg, sec)
	switch {
	case c.null:
		b.text("NIL")
	case c.inline != nil:
		b.literalBytes(c.inline)
	default:
		b.literal(c.ref)
	}
}
