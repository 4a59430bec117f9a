package imap

import (
	"errors"
	"strings"
)

var errArgSyntax = errors.New("imap: malformed argument list")

// tokenize splits a command line into arguments. Double-quoted
// strings form one argument with the quotes stripped and backslash
// escapes resolved. Runs enclosed in parentheses or square brackets
// stay a single argument including the brackets, so FETCH item lists
// and part specs survive as one token; handlers re-tokenize the inner
// text themselves.
func tokenize(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuote := false
	depth := 0
	started := false

	flush := func() {
		if started {
			args = append(args, cur.String())
			cur.Reset()
			started = false
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		if inQuote {
			switch c {
			case '\\':
				if i+1 >= len(line) {
					return nil, errArgSyntax
				}
				i++
				cur.WriteByte(line[i])
			case '"':
				inQuote = false
			default:
				cur.WriteByte(c)
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				cur.WriteByte(c)
				started = true
				continue
			}
			inQuote = true
			started = true
		case '(', '[':
			depth++
			cur.WriteByte(c)
			started = true
		case ')', ']':
			if depth == 0 {
				return nil, errArgSyntax
			}
			depth--
			cur.WriteByte(c)
			started = true
		case ' ', '\t':
			if depth > 0 {
				cur.WriteByte(c)
				continue
			}
			flush()
		default:
			cur.WriteByte(c)
			started = true
		}
	}
	if inQuote || depth != 0 {
		return nil, errArgSyntax
	}
	flush()
	return args, nil
}

// stripParens removes one level of enclosing parentheses, if present.
func stripParens(s string) string {
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		return s[1 : len(s)-1]
	}
	return s
}

// literalMarker reports whether the last argument of a raw command
// line announces an inline literal, returning the byte count. Both
// synchronizing {N} and non-synchronizing {N+} forms are accepted.
func literalMarker(line string) (count int64, nonSync, ok bool) {
	if !strings.HasSuffix(line, "}") {
		return 0, false, false
	}
	open := strings.LastIndexByte(line, '{')
	if open < 0 {
		return 0, false, false
	}
	spec := line[open+1 : len(line)-1]
	if strings.HasSuffix(spec, "+") {
		nonSync = true
		spec = spec[:len(spec)-1]
	}
	if spec == "" {
		return 0, false, false
	}
	var n int64
	for i := 0; i < len(spec); i++ {
		if spec[i] < '0' || spec[i] > '9' {
			return 0, false, false
		}
		n = n*10 + int64(spec[i]-'0')
		if n > 1<<40 {
			return 0, false, false
		}
	}
	return n, nonSync, true
}
