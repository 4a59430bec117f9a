// Package mutf7 implements the modified UTF-7 encoding used for IMAP
// mailbox names (RFC 3501 section 5.1.3).
//
// Mailbox names are 7-bit safe on the wire: printable ASCII passes
// through, "&" is escaped as "&-", and any other character is carried
// as modified BASE64 of its UTF-16BE form, delimited by "&" and "-".
package mutf7

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

var ErrInvalid = errors.New("mutf7: invalid modified UTF-7")

// Modified BASE64 uses "," instead of "/" and carries no padding.
var b64 = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,").WithPadding(base64.NoPadding)

// Encode converts a UTF-8 string to modified UTF-7.
func Encode(s string) string {
	var sb strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '&' {
			sb.WriteString("&-")
			i++
			continue
		}
		if c >= 0x20 && c <= 0x7e {
			sb.WriteByte(c)
			i++
			continue
		}
		// Collect the maximal run of characters outside the printable
		// ASCII range and emit it as one BASE64 section.
		var units []byte
		for i < len(s) {
			r, sz := utf8.DecodeRuneInString(s[i:])
			if r >= 0x20 && r <= 0x7e {
				break
			}
			i += sz
			if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
				units = append(units, byte(r1>>8), byte(r1))
				r = r2
			}
			units = append(units, byte(r>>8), byte(r))
		}
		sb.WriteByte('&')
		sb.WriteString(b64.EncodeToString(units))
		sb.WriteByte('-')
	}
	return sb.String()
}

// Decode converts a modified UTF-7 string back to UTF-8.
func Decode(s string) (string, error) {
	var sb strings.Builder
	for len(s) > 0 {
		c := s[0]
		s = s[1:]
		if c != '&' {
			sb.WriteByte(c)
			continue
		}
		end := strings.IndexByte(s, '-')
		if end < 0 {
			return "", ErrInvalid
		}
		if end == 0 {
			// "&-" is the escaped ampersand.
			sb.WriteByte('&')
			s = s[1:]
			continue
		}
		raw, err := b64.DecodeString(s[:end])
		if err != nil || len(raw)%2 != 0 {
			return "", ErrInvalid
		}
		s = s[end+1:]
		for len(raw) > 0 {
			r := rune(raw[0])<<8 | rune(raw[1])
			raw = raw[2:]
			if utf16.IsSurrogate(r) {
				if len(raw) < 2 {
					return "", ErrInvalid
				}
				r2 := rune(raw[0])<<8 | rune(raw[1])
				raw = raw[2:]
				r = utf16.DecodeRune(r, r2)
				if r == utf8.RuneError {
					return "", ErrInvalid
				}
			}
			sb.WriteRune(r)
		}
	}
	return sb.String(), nil
}
