package hooks

import (
	"encoding/json"
	"io"
)

// ContextOutput is the stdout shape for events that inject context.
type ContextOutput struct {
	HookSpecificOutput struct {
		HookEventName     string `json:"hookEventName"`
		AdditionalContext string `json:"additionalContext"`
	} `json:"hookSpecificOutput"`
}

// MessageOutput shows text to the user without injecting it into context.
type MessageOutput struct {
	SystemMessage string `json:"systemMessage"`
}

// WriteContext writes additional context for the named hook event.
func WriteContext(w io.Writer, event, context string) error {
	var out ContextOutput
	out.HookSpecificOutput.HookEventName = event
	out.HookSpecificOutput.AdditionalContext = context
	return json.NewEncoder(w).Encode(out)
}

// WriteMessage writes a user-visible system message.
func WriteMessage(w io.Writer, msg string) error {
	return json.NewEncoder(w).Encode(MessageOutput{SystemMessage: msg})
}
