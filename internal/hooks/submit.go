package hooks

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/lazypower/chrysalis/internal/engine"
	"github.com/lazypower/chrysalis/internal/identity"
)

// handleSubmit asks the server whether a past message belongs in this turn
// and remembers what the stop hook needs to report. A prompt that answers a
// pending boundary confirms or drops it first.
func (h *Handler) handleSubmit(ctx context.Context, input *HookInput) error {
	prev, err := h.State.Load(input.SessionID)
	if err != nil {
		h.Log.Debug("load turn state", zap.Error(err))
	}
	st := TurnState{
		Prompt:         input.Prompt,
		Breakthrough:   hasBreakthrough(input.Prompt),
		Emotional:      emotionalShift(input.Prompt),
		PendingEventID: prev.PendingEventID,
	}

	var notes []string
	if st.PendingEventID != "" {
		if note := h.answerBoundary(ctx, &st, input.Prompt); note != "" {
			notes = append(notes, note)
		}
	}

	var res engine.ContextResult
	err = h.Client.Post(ctx, h.Client.ownerPath("/context"), engine.ContextRequest{
		SessionID: input.SessionID,
		Themes:    themesOf(input.Prompt),
		Utterance: input.Prompt,
	}, &res)
	if err != nil {
		// Still record the cues; the stop hook can report them.
		if serr := h.State.Save(input.SessionID, st); serr != nil {
			h.Log.Debug("save turn state", zap.Error(serr))
		}
		if len(notes) > 0 {
			WriteContext(h.Out, "UserPromptSubmit", strings.Join(notes, "\n\n"))
		}
		return err
	}

	st.SurfacedMessageID = res.SurfacedMessageID
	if err := h.State.Save(input.SessionID, st); err != nil {
		return err
	}
	if res.PendingReflection != nil {
		notes = append(notes, res.PromptInjectionText)
	}
	if len(notes) == 0 {
		return nil
	}
	return WriteContext(h.Out, "UserPromptSubmit", strings.Join(notes, "\n\n"))
}

// answerBoundary applies the user's reply to the pending boundary and returns
// a note for the model, or "" when the prompt was not an answer.
func (h *Handler) answerBoundary(ctx context.Context, st *TurnState, prompt string) string {
	switch replyTo(prompt) {
	case replyAccept:
		eventID := st.PendingEventID
		st.PendingEventID = ""
		var node identity.Node
		path := h.Client.ownerPath("/events/" + url.PathEscape(eventID) + "/confirm")
		if err := h.Client.Post(ctx, path, struct{}{}, &node); err != nil {
			h.Log.Warn("confirm boundary", zap.String("event", eventID), zap.Error(err))
			return "The proposed transition could not be confirmed; the chain is unchanged."
		}
		return fmt.Sprintf("The user accepted the transition. They are now in %s, a %s phase.", node.PhaseLabel, node.Category)
	case replyDecline:
		st.PendingEventID = ""
		return "The user chose to stay in their current phase; the proposed transition was set aside."
	}
	return ""
}
