// Package ritual renders the natural-language fragments that accompany the
// identity chain: context summaries, reflection prompts, confirmation and
// bridging text. Everything here is pure string assembly.
package ritual

import (
	"fmt"
	"math"
	"strings"

	"github.com/lazypower/chrysalis/internal/identity"
)

// maxQuestions caps follow-up questions per reflection prompt.
const maxQuestions = 3

// catTable is indexed by identity.Category; slot Unknown holds the default.
type catTable[T any] [identity.Ether + 1]T

var questions = catTable[[]string]{
	identity.Unknown: {
		"What in these words still feels true?",
		"What would you say back to the person who wrote this?",
	},
	identity.Earth: {
		"What foundations from then are you still standing on?",
		"Which of those commitments have you kept, and which have you set down?",
		"What feels steady now that felt uncertain then?",
	},
	identity.Water: {
		"What feelings from then still move through you?",
		"Where has that current carried you since?",
		"What would you comfort in the person who wrote this?",
	},
	identity.Fire: {
		"What were you fighting for, and is it still worth the fight?",
		"What did that fire burn away?",
		"Where does that drive live in you today?",
	},
	identity.Air: {
		"Which of those ideas turned out to be true?",
		"What questions were you asking that you have since answered?",
		"What perspective do you have now that you lacked then?",
	},
	identity.Ether: {
		"What were you trying to hold together then?",
		"What has integrated since you wrote this?",
		"What meaning do these words carry for you now?",
	},
}

var openings = catTable[string]{
	identity.Unknown: "A message from an earlier you has surfaced.",
	identity.Earth:   "A grounded voice from your past has something to say.",
	identity.Water:   "Something you felt deeply once has found its way back to you.",
	identity.Fire:    "An earlier, fiercer you left this behind.",
	identity.Air:     "A thought from an earlier you is drifting back into view.",
	identity.Ether:   "Across the threads of your story, an earlier you reaches forward.",
}

// ReflectionPrompt pairs a past message with follow-up questions.
type ReflectionPrompt struct {
	MessageID string   `json:"message_id"`
	Title     string   `json:"title,omitempty"`
	Content   string   `json:"content"`
	Questions []string `json:"questions"`
	Opening   string   `json:"opening"`
	Dialogue  string   `json:"dialogue,omitempty"`
}

// ContextSummary is the one-sentence description of where the chain stands.
func ContextSummary(current *identity.Node, pending int, coherence float64) string {
	var b strings.Builder
	if current == nil {
		b.WriteString("No identity node has been recorded yet.")
	} else {
		label := current.PhaseLabel
		if label == "" {
			label = identity.PhaseLabel(current.Category, current.Cycle)
		}
		fmt.Fprintf(&b, "Currently in %s, a %s phase.", label, current.Category)
	}
	switch pending {
	case 0:
		b.WriteString(" No messages are waiting.")
	case 1:
		b.WriteString(" 1 message from a past self is waiting.")
	default:
		fmt.Fprintf(&b, " %d messages from past selves are waiting.", pending)
	}
	fmt.Fprintf(&b, " Chain coherence is %d%%.", int(math.Round(coherence*100)))
	return b.String()
}

// Reflection builds the prompt for surfacing m, choosing questions by the
// category of the node that wrote it.
func Reflection(m *identity.Message, source identity.Category) *ReflectionPrompt {
	if m == nil {
		return nil
	}
	if !source.Valid() {
		source = identity.Unknown
	}
	qs := questions[source]
	if len(qs) > maxQuestions {
		qs = qs[:maxQuestions]
	}
	return &ReflectionPrompt{
		MessageID: m.ID,
		Title:     m.Title,
		Content:   m.Content,
		Questions: append([]string(nil), qs...),
		Opening:   openings[source],
	}
}

// DialogueOpening introduces a conversation between two nodes of the chain.
func DialogueOpening(from, to *identity.Node) string {
	if from == nil || to == nil {
		return "Two versions of you meet at the threshold."
	}
	if from.Category == to.Category {
		return fmt.Sprintf("Your %s self speaks to who you are in %s, still rooted in %s.",
			labelOf(from), labelOf(to), to.Category)
	}
	return fmt.Sprintf("Your %s self (%s) speaks across the %s to who you are in %s (%s).",
		labelOf(from), from.Category, identity.Symbol(from.Category, to.Category), labelOf(to), to.Category)
}

func labelOf(n *identity.Node) string {
	if n.PhaseLabel != "" {
		return n.PhaseLabel
	}
	return identity.PhaseLabel(n.Category, n.Cycle)
}
