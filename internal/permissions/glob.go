// ABOUTME: Shell-style glob matching for deck name patterns
// ABOUTME: Anchored, case-sensitive, with * crossing the :: hierarchy separator

package permissions

// globMatch reports whether name matches the shell-style pattern. Unlike
// path.Match, * matches any run of characters including the :: hierarchy
// separator, and character classes negate with [!...]. Matching is
// case-sensitive and anchored to the whole string.
func globMatch(pattern, name string) bool {
	p := []rune(pattern)
	n := []rune(name)
	pi, ni := 0, 0
	// Position of the last * seen and how much of the name it has consumed,
	// for backtracking.
	starPi, starNi := -1, 0
	for ni < len(n) {
		if pi < len(p) {
			switch p[pi] {
			case '*':
				starPi, starNi = pi, ni
				pi++
				continue
			case '?':
				pi++
				ni++
				continue
			case '[':
				matched, next, ok := matchClass(p, pi, n[ni])
				if ok {
					if matched {
						pi = next
						ni++
						continue
					}
				} else if n[ni] == '[' {
					// An unterminated class matches a literal bracket.
					pi++
					ni++
					continue
				}
			default:
				if p[pi] == n[ni] {
					pi++
					ni++
					continue
				}
			}
		}
		// Mismatch: widen the last * by one more character, or fail.
		if starPi >= 0 {
			starNi++
			pi, ni = starPi+1, starNi
			continue
		}
		return false
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// matchClass evaluates the character class opening at p[start] against c.
// next is the index just past the closing bracket. ok is false when the
// class never closes.
func matchClass(p []rune, start int, c rune) (matched bool, next int, ok bool) {
	i := start + 1
	negate := false
	if i < len(p) && p[i] == '!' {
		negate = true
		i++
	}
	// A ] immediately after the opening (or the !) is a literal member.
	first := true
	for i < len(p) {
		if p[i] == ']' && !first {
			return matched != negate, i + 1, true
		}
		first = false
		lo, hi := p[i], p[i]
		if i+2 < len(p) && p[i+1] == '-' && p[i+2] != ']' {
			hi = p[i+2]
			i += 2
		}
		if lo <= c && c <= hi {
			matched = true
		}
		i++
	}
	return false, 0, false
}

// matchesAny reports whether name matches at least one pattern.
func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if globMatch(pattern, name) {
			return true
		}
	}
	return false
}
