package imap

import (
	"strconv"
	"strings"
)

// sectionSpec is a parsed BODY[...] or BODY.PEEK[...] data item.
type sectionSpec struct {
	peek    bool
	partID  string   // dotted part path, "" for whole message
	keyword string   // "", "HEADER", "TEXT", "MIME", "HEADER.FIELDS", "HEADER.FIELDS.NOT"
	fields  []string // header field names for HEADER.FIELDS[.NOT]
	partial bool
	offset  int64
	length  int64
	raw     string // original token, echoed back in the response
}

// fetchItem is one requested data item in canonical order.
type fetchItem struct {
	name    string // upper-cased item name, "BODYSECTION" for BODY[...]
	section *sectionSpec
}

// fetchRequest is the parsed and reordered item list of a FETCH.
type fetchRequest struct {
	items       []fetchItem
	needsDetail bool // any item beyond UID and FLAGS
	needsRaw    bool // any item reading message bytes from disk
}

var macroItems = map[string][]string{
	"ALL":  {"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE"},
	"FAST": {"FLAGS", "INTERNALDATE", "RFC822.SIZE"},
	"FULL": {"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE", "BODY"},
}

var simpleItems = map[string]bool{
	"UID":           true,
	"FLAGS":         true,
	"INTERNALDATE":  true,
	"RFC822.SIZE":   true,
	"ENVELOPE":      true,
	"BODY":          true,
	"BODYSTRUCTURE": true,
	"RFC822":        true,
	"RFC822.HEADER": true,
	"RFC822.TEXT":   true,
}

// canonical ordering: cheap metadata items first, whole-message and
// structure items last.
var itemRank = map[string]int{
	"UID":           0,
	"FLAGS":         1,
	"INTERNALDATE":  2,
	"RFC822.SIZE":   3,
	"ENVELOPE":      4,
	"RFC822.HEADER": 5,
	"RFC822.TEXT":   6,
	"BODYSECTION":   7,
	"BODY":          8,
	"BODYSTRUCTURE": 9,
	"RFC822":        10,
}

// parseFetchItems parses the data-item argument of FETCH. UID is
// always reported, whether the client asked for it or not.
func parseFetchItems(arg string) (*fetchRequest, bool) {
	var tokens []string
	if strings.HasPrefix(arg, "(") {
		if !strings.HasSuffix(arg, ")") {
			return nil, false
		}
		var err error
		tokens, err = tokenize(stripParens(arg))
		if err != nil {
			return nil, false
		}
	} else {
		tokens = []string{arg}
	}
	if len(tokens) == 0 {
		return nil, false
	}

	// Macros stand alone.
	if len(tokens) == 1 {
		if exp, ok := macroItems[strings.ToUpper(tokens[0])]; ok {
			tokens = exp
		}
	} else {
		for _, t := range tokens {
			if _, isMacro := macroItems[strings.ToUpper(t)]; isMacro {
				return nil, false
			}
		}
	}

	req := &fetchRequest{}
	seen := map[string]bool{}
	add := func(it fetchItem) {
		if it.section == nil && seen[it.name] {
			return
		}
		seen[it.name] = true
		req.items = append(req.items, it)
	}

	add(fetchItem{name: "UID"})
	for _, tok := range tokens {
		upper := strings.ToUpper(tok)
		switch {
		case simpleItems[upper]:
			add(fetchItem{name: upper})
		case strings.HasPrefix(upper, "BODY[") || strings.HasPrefix(upper, "BODY.PEEK["):
			sec, ok := parseSection(tok)
			if !ok {
				return nil, false
			}
			add(fetchItem{name: "BODYSECTION", section: sec})
		default:
			return nil, false
		}
	}

	for _, it := range req.items {
		if it.name != "UID" && it.name != "FLAGS" {
			req.needsDetail = true
		}
		switch it.name {
		case "RFC822", "RFC822.HEADER", "RFC822.TEXT":
			req.needsRaw = true
		case "BODYSECTION":
			// A header-field filter is served from the parsed header;
			// everything else splices raw file bytes.
			switch it.section.keyword {
			case "HEADER.FIELDS", "HEADER.FIELDS.NOT":
			default:
				req.needsRaw = true
			}
		}
	}

	stableSortItems(req.items)
	return req, true
}

func stableSortItems(items []fetchItem) {
	// Insertion sort keeps equal-rank items (multiple BODY[...]) in
	// request order.
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && itemRank[items[j-1].name] > itemRank[items[j].name] {
			items[j-1], items[j] = items[j], items[j-1]
			j--
		}
	}
}

// parseSection parses BODY[...]<offset.length> tokens.
func parseSection(tok string) (*sectionSpec, bool) {
	sec := &sectionSpec{raw: tok}
	rest := tok
	upper := strings.ToUpper(rest)
	switch {
	case strings.HasPrefix(upper, "BODY.PEEK["):
		sec.peek = true
		rest = rest[len("BODY.PEEK["):]
	case strings.HasPrefix(upper, "BODY["):
		rest = rest[len("BODY["):]
	default:
		return nil, false
	}
	close := strings.IndexByte(rest, ']')
	if close < 0 {
		return nil, false
	}
	inner := rest[:close]
	tail := rest[close+1:]

	if tail != "" {
		if !strings.HasPrefix(tail, "<") || !strings.HasSuffix(tail, ">") {
			return nil, false
		}
		body := tail[1 : len(tail)-1]
		dot := strings.IndexByte(body, '.')
		if dot < 0 {
			return nil, false
		}
		off, err1 := strconv.ParseInt(body[:dot], 10, 64)
		ln, err2 := strconv.ParseInt(body[dot+1:], 10, 64)
		if err1 != nil || err2 != nil || off < 0 || ln < 0 {
			return nil, false
		}
		sec.partial = true
		sec.offset = off
		sec.length = ln
	}

	return sec, parseSectionInner(inner, sec)
}

func parseSectionInner(inner string, sec *sectionSpec) bool {
	if inner == "" {
		return true
	}
	// Leading dotted part numbers.
	rest := inner
	for {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 {
			break
		}
		if sec.partID != "" {
			sec.partID += "."
		}
		sec.partID += rest[:i]
		rest = rest[i:]
		if rest == "" {
			return true
		}
		if rest[0] != '.' {
			return false
		}
		rest = rest[1:]
	}

	upper := strings.ToUpper(rest)
	switch {
	case upper == "HEADER" || upper == "TEXT":
		sec.keyword = upper
		return true
	case upper == "MIME":
		// MIME is only valid on a named part.
		sec.keyword = upper
		return sec.partID != ""
	case strings.HasPrefix(upper, "HEADER.FIELDS.NOT "):
		sec.keyword = "HEADER.FIELDS.NOT"
		return parseFieldList(rest[len("HEADER.FIELDS.NOT "):], sec)
	case strings.HasPrefix(upper, "HEADER.FIELDS "):
		sec.keyword = "HEADER.FIELDS"
		return parseFieldList(rest[len("HEADER.FIELDS "):], sec)
	}
	return false
}

func parseFieldList(arg string, sec *sectionSpec) bool {
	trimmed := strings.TrimSpace(arg)
	if !strings.HasPrefix(trimmed, "(") || !strings.HasSuffix(trimmed, ")") {
		return false
	}
	names, err := tokenize(stripParens(trimmed))
	if err != nil || len(names) == 0 {
		return false
	}
	for _, n := range names {
		sec.fields = append(sec.fields, strings.Trim(n, `"`))
	}
	return true
}
