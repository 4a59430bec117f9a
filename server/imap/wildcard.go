package imap

// wildcardMatch reports whether name matches the LIST pattern. `*`
// matches any run of characters including the hierarchy delimiter,
// `%` matches any run not containing '/'. ASCII letters compare
// case-insensitively, as folder listings are matched after codec
// normalization.
//
// Implemented as a position-set scan over the pattern (the NFA
// construction): one pass over name, a set of live pattern positions
// per step. Worst case len(name)*len(pattern), so long wildcard runs
// cannot blow up the way a backtracking matcher does.
func wildcardMatch(pattern, name string) bool {
	n := len(pattern)

	// add marks position p live, following empty-match transitions
	// through consecutive wildcards.
	add := func(states []bool, p int) {
		for {
			if p >= n {
				states[n] = true
				return
			}
			if states[p] {
				return
			}
			states[p] = true
			if pattern[p] == '*' || pattern[p] == '%' {
				p++
				continue
			}
			return
		}
	}

	cur := make([]bool, n+1)
	next := make([]bool, n+1)
	add(cur, 0)

	for i := 0; i < len(name); i++ {
		c := name[i]
		for j := range next {
			next[j] = false
		}
		alive := false
		for p := 0; p < n; p++ {
			if !cur[p] {
				continue
			}
			switch pattern[p] {
			case '*':
				add(next, p) // consume c, wildcard stays open
				alive = true
			case '%':
				if c != '/' {
					add(next, p)
					alive = true
				}
			default:
				if asciiLowerByte(pattern[p]) == asciiLowerByte(c) {
					add(next, p+1)
					alive = true
				}
			}
		}
		if !alive {
			return false
		}
		cur, next = next, cur
	}
	return cur[n]
}

func asciiLowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
