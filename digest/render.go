package digest

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// quoteOrNIL renders a string as an IMAP quoted string, or NIL when
// empty. Strings that cannot be quoted are stripped to what can.
func quoteOrNIL(s string) string {
	if s == "" {
		return "NIL"
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\r', '\n':
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func renderAddressList(h mail.Header, field string) string {
	addrs, err := h.AddressList(field)
	if err != nil || len(addrs) == 0 {
		return "NIL"
	}
	var b strings.Builder
	b.WriteByte('(')
	for _, a := range addrs {
		mailbox, host := a.Address, ""
		if i := strings.LastIndexByte(a.Address, '@'); i >= 0 {
			mailbox, host = a.Address[:i], a.Address[i+1:]
		}
		fmt.Fprintf(&b, "(%s NIL %s %s)",
			quoteOrNIL(a.Name), quoteOrNIL(mailbox), quoteOrNIL(host))
	}
	b.WriteByte(')')
	return b.String()
}

// Envelope renders the RFC 3501 ENVELOPE structure for the message,
// derived from the root entity's header.
func (m *Message) Envelope() string {
	return renderEnvelope(m.Root.Header)
}

func renderEnvelope(hdr textproto.Header) string {
	h := mail.Header{Header: message.Header{Header: hdr.Copy()}}
	from := renderAddressList(h, "From")
	sender := renderAddressList(h, "Sender")
	if sender == "NIL" {
		sender = from
	}
	replyTo := renderAddressList(h, "Reply-To")
	if replyTo == "NIL" {
		replyTo = from
	}
	return fmt.Sprintf("(%s %s %s %s %s %s %s %s %s %s)",
		quoteOrNIL(hdr.Get("Date")),
		quoteOrNIL(hdr.Get("Subject")),
		from, sender, replyTo,
		renderAddressList(h, "To"),
		renderAddressList(h, "Cc"),
		renderAddressList(h, "Bcc"),
		quoteOrNIL(hdr.Get("In-Reply-To")),
		quoteOrNIL(hdr.Get("Message-Id")))
}

// Structure renders BODY (extended=false) or BODYSTRUCTURE
// (extended=true) for the message.
func (m *Message) Structure(extended bool) string {
	var b strings.Builder
	renderStructure(&b, m.Root, extended)
	return b.String()
}

func renderStructure(b *strings.Builder, p *Part, extended bool) {
	if p.IsMultipart() && len(p.Children) > 0 {
		b.WriteByte('(')
		for _, c := range p.Children {
			renderStructure(b, c, extended)
		}
		slash := strings.IndexByte(p.MediaType, '/')
		b.WriteByte(' ')
		b.WriteString(quoteOrNIL(strings.ToUpper(p.MediaType[slash+1:])))
		if extended {
			b.WriteByte(' ')
			b.WriteString(renderParams(p.Params))
			b.WriteString(" NIL NIL")
		}
		b.WriteByte(')')
		return
	}

	typ, sub := "text", "plain"
	if i := strings.IndexByte(p.MediaType, '/'); i >= 0 {
		typ, sub = p.MediaType[:i], p.MediaType[i+1:]
	}
	enc := p.Header.Get("Content-Transfer-Encoding")
	if enc == "" {
		enc = "7bit"
	}
	b.WriteByte('(')
	fmt.Fprintf(b, "%s %s %s %s %s %s %d",
		quoteOrNIL(strings.ToUpper(typ)),
		quoteOrNIL(strings.ToUpper(sub)),
		renderParams(p.Params),
		quoteOrNIL(p.Header.Get("Content-Id")),
		quoteOrNIL(p.Header.Get("Content-Description")),
		quoteOrNIL(strings.ToUpper(enc)),
		p.ContentLength)
	switch {
	case p.IsMessage() && p.Embedded != nil:
		b.WriteByte(' ')
		b.WriteString(renderEnvelope(p.Embedded.Header))
		b.WriteByte(' ')
		renderStructure(b, p.Embedded, extended)
		fmt.Fprintf(b, " %d", p.Lines)
	case typ == "text":
		fmt.Fprintf(b, " %d", p.Lines)
	}
	if extended {
		b.WriteString(" NIL ")
		b.WriteString(renderDisposition(p.Header.Get("Content-Disposition")))
		b.WriteString(" NIL")
	}
	b.WriteByte(')')
}

func renderParams(params map[string]string) string {
	if len(params) == 0 {
		return "NIL"
	}
	// Deterministic order: boundary and charset first, then the rest
	// sorted by insertion is unavailable on a map, so order by name.
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quoteOrNIL(strings.ToUpper(k)))
		b.WriteByte(' ')
		b.WriteString(quoteOrNIL(params[k]))
	}
	b.WriteByte(')')
	return b.String()
}

func renderDisposition(v string) string {
	if v == "" {
		return "NIL"
	}
	typ, params := v, map[string]string(nil)
	if i := strings.IndexByte(v, ';'); i >= 0 {
		typ = strings.TrimSpace(v[:i])
	}
	return fmt.Sprintf("(%s %s)", quoteOrNIL(strings.ToUpper(typ)), renderParams(params))
}

// FilterHeaderFields returns the header lines of raw whose field names
// are (exclude=false) or are not (exclude=true) in names, terminated
// by a blank line. Field name matching is case-insensitive.
func FilterHeaderFields(raw []byte, names []string, exclude bool) []byte {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = true
	}
	hdr, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil && hdr.Len() == 0 {
		return []byte("\r\n")
	}
	var out bytes.Buffer
	// Fields iterates in reverse insertion order; collect then emit in
	// original order.
	var lines [][]byte
	fields := hdr.Fields()
	for fields.Next() {
		if want[strings.ToLower(fields.Key())] == exclude {
			continue
		}
		raw, err := fields.Raw()
		if err != nil {
			continue
		}
		lines = append(lines, raw)
	}
	for i := len(lines) - 1; i >= 0; i-- {
		out.Write(lines[i])
	}
	out.WriteString("\r\n")
	return out.Bytes()
}
