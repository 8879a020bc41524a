package hooks

import (
	"strings"

	"github.com/lazypower/chrysalis/internal/detect"
)

// breakthroughCues are phrases that report a breakthrough in the user's own words.
var breakthroughCues = []string{
	"it clicked", "it finally clicked", "breakthrough", "i finally understand",
	"i finally get it", "now i see", "that changes everything", "i see it now",
	"something shifted", "i get it now",
}

// intenseFeelings maps strong feeling words to the mood recorded for them.
var intenseFeelings = map[string]string{
	"overwhelmed": "overwhelmed",
	"devastated":  "grief",
	"heartbroken": "grief",
	"terrified":   "fear",
	"furious":     "anger",
	"ecstatic":    "joy",
	"elated":      "joy",
	"euphoric":    "joy",
	"exhausted":   "depletion",
	"relieved":    "relief",
	"ashamed":     "shame",
	"liberated":   "freedom",
}

// intenseShift is the intensity assigned to a feeling word match.
const intenseShift = 0.8

// hasBreakthrough reports whether the prompt contains a breakthrough cue.
func hasBreakthrough(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, cue := range breakthroughCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// emotionalShift returns a shift for the first strong feeling word in the
// prompt, or nil.
func emotionalShift(prompt string) *detect.EmotionalShift {
	for _, word := range strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return (r < 'a' || r > 'z') && r != '\''
	}) {
		if mood, ok := intenseFeelings[word]; ok {
			return &detect.EmotionalShift{To: mood, Intensity: intenseShift}
		}
	}
	return nil
}

// minThemeLen drops short function words from prompt themes.
const minThemeLen = 4

// themesOf turns prompt words into candidate themes for message matching.
func themesOf(prompt string) []string {
	var out []string
	for _, word := range strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_'
	}) {
		if len(word) >= minThemeLen {
			out = append(out, word)
		}
	}
	return out
}

// reply is how the user answered a pending boundary.
type reply int

const (
	replyNone reply = iota
	replyAccept
	replyDecline
)

var (
	acceptCues  = []string{"yes", "yeah", "yep", "i'm ready", "im ready", "confirm", "i accept", "let's do it", "lets do it"}
	declineCues = []string{"no", "nope", "not yet", "not now", "not ready", "i'm not ready", "im not ready", "stay"}
)

// maxReplyWords bounds how long a prompt can be and still count as an answer.
const maxReplyWords = 6

// replyTo classifies a short prompt as accepting or declining a proposed
// boundary. Longer prompts are ordinary turns.
func replyTo(prompt string) reply {
	lower := strings.ToLower(strings.TrimSpace(prompt))
	if lower == "" || len(strings.Fields(lower)) > maxReplyWords {
		return replyNone
	}
	if startsWithCue(lower, declineCues) {
		return replyDecline
	}
	if startsWithCue(lower, acceptCues) {
		return replyAccept
	}
	return replyNone
}

func startsWithCue(s string, cues []string) bool {
	for _, cue := range cues {
		if !strings.HasPrefix(s, cue) {
			continue
		}
		rest := s[len(cue):]
		if rest == "" || !isLetter(rest[0]) {
			return true
		}
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || b == '\''
}
