package trigger

import (
	"strings"

	"github.com/pscheid92/commentreply/internal/domain"
)

// MatchKeywords reports whether text satisfies keywords under mode.
// MatchAll requires every keyword, anything else requires at least one.
// Empty keywords are ignored and a trigger without keywords never matches.
func MatchKeywords(text string, keywords []string, mode domain.MatchMode) bool {
	lowerText := strings.ToLower(text)

	checked := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		checked++

		found := strings.Contains(lowerText, strings.ToLower(kw))
		if mode == domain.MatchAll && !found {
			return false
		}
		if mode != domain.MatchAll && found {
			return true
		}
	}

	return mode == domain.MatchAll && checked > 0
}
