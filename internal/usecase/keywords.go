package usecase

import "strings"

var mapKeywords = []string{"map", "maps", "navigation", "navigate"}

// MatchesKeywords reports whether text mentions a mapping or navigation
// keyword, case-insensitively and anywhere in the text.
func MatchesKeywords(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range mapKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
