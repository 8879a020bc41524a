package ritual

import (
	"strings"

	"github.com/lazypower/chrysalis/internal/identity"
)

// reflectiveKeywords mark an utterance that looks backward in time.
var reflectiveKeywords = []string{
	"remember", "used to", "looking back", "back then",
	"years ago", "when i was", "past self", "younger me",
	"i once", "have changed", "reminds me", "nostalgic",
	"how far i", "who i was", "i've grown", "back when",
}

// HasReflectiveCue reports whether the utterance contains a reflective keyword.
func HasReflectiveCue(utterance string) bool {
	if utterance == "" {
		return false
	}
	lower := strings.ToLower(utterance)
	for _, kw := range reflectiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ShouldSurface decides whether a pending message belongs in this turn: its
// tags overlap the conversation themes, or the utterance is reflective.
func ShouldSurface(pendingTags, themes []string, utterance string) bool {
	if len(pendingTags) > 0 && len(themes) > 0 {
		want := make(map[string]bool, len(themes))
		for _, t := range identity.NormalizeTags(themes) {
			want[t] = true
		}
		for _, t := range identity.NormalizeTags(pendingTags) {
			if want[t] {
				return true
			}
		}
	}
	return HasReflectiveCue(utterance)
}
