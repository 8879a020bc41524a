package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/chrysalis/internal/detect"
	"github.com/lazypower/chrysalis/internal/engine"
	"github.com/lazypower/chrysalis/internal/identity"
)

func owner(r *http.Request) string {
	return chi.URLParam(r, "owner")
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &identity.ValidationError{Field: key, Reason: "must be a non-negative integer"}
	}
	return n, nil
}

func (s *Server) handleLoadContext(w http.ResponseWriter, r *http.Request) {
	var req engine.ContextRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.OwnerID = owner(r)

	res, err := s.engine.LoadContext(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAfterResponse(w http.ResponseWriter, r *http.Request) {
	var sig engine.TurnSignals
	if err := decode(w, r, &sig); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.AfterResponse(r.Context(), owner(r), sig)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Signal  *detect.Signal `json:"signal"`
		Essence string         `json:"essence,omitempty"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	node, err := s.engine.ConfirmTransition(r.Context(), owner(r), req.Signal, req.Essence)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleConfirmEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Essence string `json:"essence,omitempty"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	node, err := s.engine.ConfirmEvent(r.Context(), owner(r), chi.URLParam(r, "id"), req.Essence)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleRecordMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		engine.MessageMeta
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.engine.RecordFutureMessage(r.Context(), owner(r), req.Content, req.MessageMeta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handlePendingMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.engine.PendingMessages(r.Context(), owner(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

func (s *Server) handleSeedNode(w http.ResponseWriter, r *http.Request) {
	var in identity.NodeInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.OwnerID = owner(r)
	node, err := s.engine.SeedNode(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.engine.Chain(r.Context(), owner(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "count": len(nodes)})
}

func (s *Server) handleContinuity(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Continuity(r.Context(), owner(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleEchoes(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	echoes, err := s.engine.FindEchoes(r.Context(), owner(r), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"echoes": echoes, "count": len(echoes)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.engine.DB.BoundaryEvents(r.Context(), owner(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []identity.BoundaryEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (s *Server) handleReinterpret(w http.ResponseWriter, r *http.Request) {
	var req engine.ReinterpretRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ri, err := s.engine.Reinterpret(r.Context(), owner(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ri)
}

func (s *Server) handleCompleteRitual(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.CompleteRitual(r.Context(), owner(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "transition_id": id})
}
