package hooks

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lazypower/chrysalis/internal/engine"
	"github.com/lazypower/chrysalis/internal/transcript"
)

// handleStop reports the finished turn. A proposed boundary that needs the
// user's word is shown as a system message.
func (h *Handler) handleStop(ctx context.Context, input *HookInput) error {
	if input.StopHookActive {
		return nil
	}
	st, err := h.State.Load(input.SessionID)
	if err != nil {
		return err
	}
	response := input.LastAssistantMessage
	if (st.Prompt == "" || response == "") && input.TranscriptPath != "" {
		st, response = h.fromTranscript(input.TranscriptPath, st, response)
	}

	var res engine.TurnResult
	err = h.Client.Post(ctx, h.Client.ownerPath("/turns"), engine.TurnSignals{
		SessionID:         input.SessionID,
		Emotional:         st.Emotional,
		Breakthrough:      st.Breakthrough,
		SurfacedMessageID: st.SurfacedMessageID,
		Input:             st.Prompt,
		Response:          response,
	}, &res)
	pending := st.PendingEventID
	if err == nil && res.ConfirmationPromptText != "" && res.EventID != "" {
		pending = res.EventID
	}
	if serr := h.keepPending(input.SessionID, pending); serr != nil && err == nil {
		err = serr
	}
	if err != nil {
		return err
	}

	if res.ConfirmationPromptText == "" {
		return nil
	}
	parts := []string{res.ConfirmationPromptText}
	if res.TransitionRitualText != "" {
		parts = append(parts, res.TransitionRitualText)
	}
	if res.EventID != "" {
		parts = append(parts, answerHint)
	}
	return WriteMessage(h.Out, strings.Join(parts, "\n\n"))
}

const answerHint = `Reply "yes" to step into it, or "not yet" to stay.`

// keepPending ends the turn, keeping only a boundary still awaiting an answer.
func (h *Handler) keepPending(sessionID, eventID string) error {
	if eventID == "" {
		return h.State.Clear(sessionID)
	}
	return h.State.Save(sessionID, TurnState{PendingEventID: eventID})
}

// fromTranscript fills in whatever the submit hook didn't record. Cues are
// derived from a recovered prompt the same way submit derives them.
func (h *Handler) fromTranscript(path string, st TurnState, response string) (TurnState, string) {
	turn, err := transcript.LastTurnFile(path)
	if err != nil {
		h.Log.Debug("read transcript", zap.String("path", path), zap.Error(err))
		return st, response
	}
	if st.Prompt == "" && turn.Prompt != "" {
		st.Prompt = turn.Prompt
		st.Breakthrough = hasBreakthrough(turn.Prompt)
		st.Emotional = emotionalShift(turn.Prompt)
	}
	if response == "" {
		response = turn.Response
	}
	return st, response
}
