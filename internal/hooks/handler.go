package hooks

import (
	"context"
	"encoding/json"
	"io"

	"go.uber.org/zap"
)

// Handler bridges hook events to the server. It never fails the caller:
// every error is logged and the hook exits cleanly.
type Handler struct {
	Client *Client
	State  StateDir
	Log    *zap.Logger
	Out    io.Writer
}

// Handle reads HookInput from stdin and dispatches on event.
func (h *Handler) Handle(ctx context.Context, event string, stdin io.Reader) {
	log := h.Log.With(zap.String("event", event))

	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil && err != io.EOF {
		log.Warn("decode stdin", zap.Error(err))
		h.emptyContext(event)
		return
	}

	if !h.Client.Healthy(ctx) {
		log.Debug("server unreachable")
		h.emptyContext(event)
		return
	}

	var err error
	switch event {
	case "start":
		err = h.handleStart(ctx, &input)
	case "submit":
		err = h.handleSubmit(ctx, &input)
	case "stop":
		err = h.handleStop(ctx, &input)
	case "end":
		err = h.State.Clear(input.SessionID)
	default:
		log.Warn("unknown hook event")
		return
	}
	if err != nil {
		log.Warn("hook failed", zap.String("session", input.SessionID), zap.Error(err))
	}
}

// emptyContext keeps SessionStart well-formed when the server can't help.
func (h *Handler) emptyContext(event string) {
	if event == "start" {
		WriteContext(h.Out, "SessionStart", "")
	}
}
