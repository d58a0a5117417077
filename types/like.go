package types

import "strings"

// MatchLike evaluates a SQL LIKE pattern (% and _ wildcards),
// case-insensitively as the remote store does.
func MatchLike(s, pattern string) bool {
	return likeMatch(strings.ToLower(s), strings.ToLower(pattern))
}

func likeMatch(s, p string) bool {
	if p == "" {
		return s == ""
	}
	if p[0] == '%' {
		for i := 0; i <= len(s); i++ {
			if likeMatch(s[i:], p[1:]) {
				return true
			}
		}
		return false
	}
	if s == "" {
		return false
	}
	if p[0] == '_' || p[0] == s[0] {
		return likeMatch(s[1:], p[1:])
	}
	return false
}
