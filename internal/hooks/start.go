package hooks

import (
	"context"

	"go.uber.org/zap"

	"github.com/lazypower/chrysalis/internal/engine"
)

func (h *Handler) handleStart(ctx context.Context, input *HookInput) error {
	if err := h.State.Clear(input.SessionID); err != nil {
		h.Log.Debug("clear turn state", zap.Error(err))
	}

	var res engine.ContextResult
	err := h.Client.Post(ctx, h.Client.ownerPath("/context"),
		engine.ContextRequest{SessionID: input.SessionID}, &res)
	if err != nil {
		WriteContext(h.Out, "SessionStart", "")
		return err
	}
	return WriteContext(h.Out, "SessionStart", res.PromptInjectionText)
}
