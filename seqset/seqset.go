// Package seqset parses the IMAP sequence-set grammar ("1,2:3,4:*")
// used to address messages by sequence number or UID.
//
// A parsed set is a list of closed ranges. The special token "*" is
// kept as the Star sentinel until the set is resolved against the
// highest sequence number or UID known to the session.
package seqset

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Star stands in for "the highest number in use" until resolution.
const Star = uint32(math.MaxUint32)

var ErrSyntax = errors.New("seqset: malformed sequence set")

// Range is a closed interval. Either bound may be Star before
// resolution; afterwards both bounds are concrete and Lo <= Hi.
type Range struct {
	Lo, Hi uint32
}

// List is a parsed sequence set.
type List []Range

// Parse parses a comma-separated sequence set. Each token is a bare
// number, "*", or "lo:hi" where either side may be "*".
func Parse(text string) (List, error) {
	if text == "" {
		return nil, ErrSyntax
	}
	var list List
	for _, tok := range strings.Split(text, ",") {
		lo, hi, found := strings.Cut(tok, ":")
		a, err := parseNum(lo)
		if err != nil {
			return nil, err
		}
		b := a
		if found {
			if b, err = parseNum(hi); err != nil {
				return nil, err
			}
		}
		list = append(list, Range{Lo: a, Hi: b})
	}
	return list, nil
}

func parseNum(s string) (uint32, error) {
	if s == "*" {
		return Star, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, ErrSyntax
	}
	return uint32(n), nil
}

// Resolve substitutes Star with max and normalizes each range so that
// Lo <= Hi, Lo >= 1 and Hi <= max. Ranges that fall entirely above max
// are dropped. A max of zero yields an empty list.
func (l List) Resolve(max uint32) List {
	var out List
	for _, r := range l {
		switch {
		case r.Lo == Star && r.Hi == Star:
			r.Lo, r.Hi = max, max
		case r.Lo == Star:
			// "*:99" means "99:MAX".
			r.Lo, r.Hi = r.Hi, max
		case r.Hi == Star:
			r.Hi = max
		}
		if r.Lo > r.Hi {
			r.Lo, r.Hi = r.Hi, r.Lo
		}
		if r.Lo < 1 {
			r.Lo = 1
		}
		if r.Hi > max {
			r.Hi = max
		}
		if r.Lo > r.Hi || max == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Contains reports whether n falls inside the set, treating Star as
// max. Values above max never match.
func (l List) Contains(n, max uint32) bool {
	if n > max {
		return false
	}
	for _, r := range l {
		lo, hi := r.Lo, r.Hi
		if lo == Star {
			lo = max
		}
		if hi == Star {
			hi = max
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		if n >= lo && n <= hi {
			return true
		}
	}
	return false
}

// String renders the list back into sequence-set syntax. Star prints
// as "*".
func (l List) String() string {
	var sb strings.Builder
	for i, r := range l {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(formatNum(r.Lo))
		if r.Hi != r.Lo {
			sb.WriteByte(':')
			sb.WriteString(formatNum(r.Hi))
		}
	}
	return sb.String()
}

func formatNum(n uint32) string {
	if n == Star {
		return "*"
	}
	return strconv.FormatUint(uint64(n), 10)
}

// Expand materializes a resolved list into a sorted, deduplicated
// slice of values.
func (l List) Expand() []uint32 {
	seen := make(map[uint32]struct{})
	var out []uint32
	for _, r := range l {
		for v := r.Lo; v <= r.Hi; v++ {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
			if v == math.MaxUint32 {
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
