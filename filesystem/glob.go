package filesystem

import "strings"

// MatchGlob applies a case-insensitive glob with '*' (any run, including
// empty) and '?' (exactly one character) against name. Both pattern and
// name are expected to already be in canonical form for the target format.
func MatchGlob(pattern, name string) bool {
	return matchGlob(strings.ToUpper(pattern), strings.ToUpper(name))
}

func matchGlob(pattern, name string) bool {
	// classic DP-free recursive glob matcher, adequate for the short
	// filenames these formats use.
	if pattern == "" {
		return name == ""
	}
	switch pattern[0] {
	case '*':
		if matchGlob(pattern[1:], name) {
			return true
		}
		for i := 0; i < len(name); i++ {
			if matchGlob(pattern[1:], name[i+1:]) {
				return true
			}
		}
		return false
	case '?':
		if len(name) == 0 {
			return false
		}
		return matchGlob(pattern[1:], name[1:])
	default:
		if len(name) == 0 || name[0] != pattern[0] {
			return false
		}
		return matchGlob(pattern[1:], name[1:])
	}
}

// SplitNameExt splits "FOO.TXT" into ("FOO", "TXT"); a pattern with no dot
// gets an implicit "*" extension when wildcard is enabled, per the
// specification's wildcard semantics.
func SplitNameExt(pattern string, wildcard bool) (name, ext string) {
	idx := strings.IndexByte(pattern, '.')
	if idx < 0 {
		if wildcard {
			return pattern, "*"
		}
		return pattern, ""
	}
	return pattern[:idx], pattern[idx+1:]
}
