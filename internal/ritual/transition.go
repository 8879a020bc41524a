package ritual

import (
	"fmt"
	"strings"

	"github.com/lazypower/chrysalis/internal/identity"
)

// confirmationTemplates are indexed by identity.SignalType. %s is the
// suggested phase label.
var confirmationTemplates = [identity.SignalTransformation + 1]string{
	identity.SignalMicro:          "Something shifted just now. Shall I note this moment as part of %s?",
	identity.SignalBreakthrough:   "That sounded like a breakthrough. Would you like to mark it as the start of %s?",
	identity.SignalEvolution:      "You seem to have grown past where you were. Are you ready to step into %s?",
	identity.SignalTransformation: "This feels like a metamorphosis. Do you want to cross the threshold into %s?",
}

// GenericBridge is used for category pairs without a dedicated ritual.
const GenericBridge = "Pause at the threshold. Name one thing you carry forward, and one thing you set down, before you step through."

type pair struct{ from, to identity.Category }

var bridges = map[pair]string{
	{identity.Earth, identity.Water}: "Let the ground soften. Write down one certainty you are willing to let flow.",
	{identity.Water, identity.Earth}: "Let what has been moving settle. Name the shore you are building on.",
	{identity.Water, identity.Air}:   "Let the feeling rise as mist. Describe it from a step above.",
	{identity.Air, identity.Water}:   "Let the thought fall as rain. Where does it land in your body?",
	{identity.Fire, identity.Air}:    "Let the flame lift. What idea did the struggle leave behind?",
	{identity.Air, identity.Fire}:    "Strike the idea against the world. What are you now willing to act on?",
	{identity.Fire, identity.Earth}:  "Let the ash cool into soil. What will you plant in it?",
	{identity.Earth, identity.Fire}:  "Put something solid into the forge. What are you ready to reshape?",
	{identity.Fire, identity.Water}:  "Quench the blade. What did the heat teach you that calm can keep?",
}

// ConfirmationPrompt renders the confirmation question for a signal type.
func ConfirmationPrompt(t identity.SignalType, phaseLabel string) string {
	if !t.Valid() {
		t = identity.SignalMicro
	}
	if phaseLabel == "" {
		phaseLabel = "a new phase"
	}
	return fmt.Sprintf(confirmationTemplates[t], phaseLabel)
}

// BridgingRitual returns the ritual text for crossing from one category to
// another, falling back to GenericBridge.
func BridgingRitual(from, to identity.Category) string {
	if from == to {
		return GenericBridge
	}
	if s, ok := bridges[pair{from, to}]; ok {
		return s
	}
	if to == identity.Connector {
		return fmt.Sprintf("Gather the threads of your %s self. What connects everything you have been?", from)
	}
	if from == identity.Connector {
		return fmt.Sprintf("Bring what you have integrated down into %s. What is the first concrete step?", to)
	}
	return GenericBridge
}

// Moment describes a detected boundary worth writing down.
type Moment struct {
	Type       identity.SignalType
	From       identity.Category
	To         identity.Category
	PhaseLabel string
	Reason     string
	Tags       []string
}

// MomentMessage synthesizes the message recorded after a major boundary.
func MomentMessage(m Moment) (title, content string, objects []string) {
	symbol := identity.Symbol(m.From, m.To)
	switch m.Type {
	case identity.SignalTransformation:
		title = fmt.Sprintf("The %s", symbol)
		content = fmt.Sprintf("You crossed from %s into %s here.", m.From, m.To)
		objects = []string{symbol}
	case identity.SignalEvolution:
		title = "A step forward"
		content = "You outgrew where you had been standing."
	default:
		title = "A breakthrough"
		content = "Something opened up in this conversation."
	}
	if m.PhaseLabel != "" {
		content += fmt.Sprintf(" It marked the beginning of %s.", m.PhaseLabel)
	}
	if r := strings.TrimSpace(m.Reason); r != "" {
		content += " " + r
	}
	if objects == nil {
		objects = []string{}
	}
	return title, content, objects
}

// PromptInjection renders the context block handed to the conversation layer.
func PromptInjection(summary string, current *identity.Node, reflection *ReflectionPrompt) string {
	var b strings.Builder
	b.WriteString("<identity>\n## Chrysalis: Identity Chain\n")
	b.WriteString(summary)
	b.WriteString("\n")

	if current != nil {
		if len(current.RoleTags) > 0 {
			fmt.Fprintf(&b, "\n### Current Roles\n%s\n", strings.Join(current.RoleTags, ", "))
		}
		if len(current.DominantMoods) > 0 {
			fmt.Fprintf(&b, "\n### Dominant Moods\n%s\n", strings.Join(current.DominantMoods, ", "))
		}
		if current.EssenceSummary != "" {
			fmt.Fprintf(&b, "\n### Essence\n%s\n", current.EssenceSummary)
		}
	}

	if reflection != nil {
		b.WriteString("\n### Message From a Past Self\n")
		b.WriteString(reflection.Opening)
		b.WriteString("\n")
		if reflection.Dialogue != "" {
			fmt.Fprintf(&b, "_%s_\n", reflection.Dialogue)
		}
		if reflection.Title != "" {
			fmt.Fprintf(&b, "**%s**\n", reflection.Title)
		}
		fmt.Fprintf(&b, "> %s\n", strings.ReplaceAll(reflection.Content, "\n", "\n> "))
		for _, q := range reflection.Questions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}

	b.WriteString("</identity>")
	return b.String()
}
