// Package engine sequences the chain store, the boundary detector and the
// ritual templates for each conversational turn.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/chrysalis/internal/detect"
	"github.com/lazypower/chrysalis/internal/identity"
	"github.com/lazypower/chrysalis/internal/metrics"
	"github.com/lazypower/chrysalis/internal/ritual"
	"github.com/lazypower/chrysalis/internal/store"
)

// StubIntegrationDepth is recorded on the reinterpretation written when a
// surfaced message is delivered.
const StubIntegrationDepth = 0.25

// Options are the orchestrator settings that can change at runtime.
type Options struct {
	Detect       detect.Config
	AutoConfirm  bool
	MessageLimit int
}

// DefaultOptions returns the standard orchestrator settings.
func DefaultOptions() Options {
	return Options{
		Detect:       detect.DefaultConfig(),
		AutoConfirm:  true,
		MessageLimit: store.DefaultMessageLimit,
	}
}

// Engine is the per-turn orchestrator.
type Engine struct {
	DB       *store.DB
	Embedder Embedder
	Log      *zap.Logger
	Metrics  *metrics.Collector

	mu   sync.RWMutex
	opts Options
}

// New creates an Engine. A nil logger or collector gets a no-op logger and
// a fresh private collector.
func New(db *store.DB, log *zap.Logger, m *metrics.Collector) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewCollector("chrysalis")
	}
	return &Engine{
		DB:      db,
		Log:     log,
		Metrics: m,
		opts:    DefaultOptions(),
	}
}

// SetEmbedder configures the embedding provider.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Embedder = emb
}

func (e *Engine) embedder() Embedder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Embedder
}

// EmbedderModel names the configured embedder, or "" when there is none.
func (e *Engine) EmbedderModel() string {
	if emb := e.embedder(); emb != nil {
		return emb.Model()
	}
	return ""
}

// SetOptions replaces the runtime options.
func (e *Engine) SetOptions(o Options) {
	if o.MessageLimit <= 0 {
		o.MessageLimit = store.DefaultMessageLimit
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = o
}

// Options returns the current runtime options.
func (e *Engine) Options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts
}

// degrade logs and counts a failure swallowed at the orchestrator boundary.
func (e *Engine) degrade(op string, err error) {
	e.Log.Warn("degrading after storage error", zap.String("op", op), zap.Error(err))
	e.Metrics.Degraded.WithLabelValues(op).Inc()
}

func requireOwner(ownerID string) error {
	if ownerID == "" {
		return &identity.ValidationError{Field: "owner_id", Reason: "is required"}
	}
	return nil
}

// ContextRequest is the input to LoadContext.
type ContextRequest struct {
	OwnerID   string   `json:"owner_id"`
	Themes    []string `json:"themes,omitempty"`
	Utterance string   `json:"utterance,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// ContextResult is what the conversation layer receives before a turn.
type ContextResult struct {
	ContextSummary       string                   `json:"context_summary"`
	PromptInjectionText  string                   `json:"prompt_injection_text"`
	PendingReflection    *ritual.ReflectionPrompt `json:"pending_reflection,omitempty"`
	SurfacedMessageID    string                   `json:"surfaced_message_id,omitempty"`
	CurrentNode          *identity.Node           `json:"current_node,omitempty"`
	UnresolvedTransition *identity.Transition     `json:"unresolved_transition,omitempty"`
}

// LoadContext builds the identity context for the coming turn and decides
// whether a pending message should surface. Storage failures yield an empty
// result; only validation errors are returned.
func (e *Engine) LoadContext(ctx context.Context, req ContextRequest) (*ContextResult, error) {
	if err := requireOwner(req.OwnerID); err != nil {
		return nil, err
	}

	if req.SessionID != "" {
		if _, err := e.DB.TouchSession(ctx, req.OwnerID, req.SessionID); err != nil {
			e.degrade("touch_session", err)
		}
	}

	cc, err := e.DB.BuildContext(ctx, req.OwnerID)
	if err != nil {
		e.degrade("load_context", err)
		return &ContextResult{}, nil
	}

	res := &ContextResult{
		ContextSummary:       cc.SummaryText,
		CurrentNode:          cc.CurrentNode,
		UnresolvedTransition: cc.UnresolvedTransition,
	}

	if len(cc.PendingMessages) > 0 && ritual.ShouldSurface(pendingTags(cc.PendingMessages), req.Themes, req.Utterance) {
		res.PendingReflection = e.pickReflection(ctx, req, cc.CurrentNode)
		if res.PendingReflection != nil {
			res.SurfacedMessageID = res.PendingReflection.MessageID
			e.Metrics.MessagesSurfaced.Inc()
		}
	}

	res.PromptInjectionText = ritual.PromptInjection(res.ContextSummary, cc.CurrentNode, res.PendingReflection)
	return res, nil
}

// pickReflection builds the prompt for the most relevant pending message.
// A message written by an earlier node opens with a dialogue between that
// node and the current one.
func (e *Engine) pickReflection(ctx context.Context, req ContextRequest, current *identity.Node) *ritual.ReflectionPrompt {
	msgs, err := e.DB.RelevantMessages(ctx, req.OwnerID, req.Themes, e.Options().MessageLimit)
	if err != nil {
		e.degrade("relevant_messages", err)
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}
	msg := msgs[0]

	source := identity.Unknown
	n, err := e.DB.Node(ctx, msg.FromNodeID)
	if err != nil {
		e.degrade("message_source", err)
	} else if n != nil {
		source = n.Category
	}
	p := ritual.Reflection(&msg, source)
	if n != nil && current != nil && n.ID != current.ID {
		p.Dialogue = ritual.DialogueOpening(n, current)
	}
	return p
}

func pendingTags(msgs []identity.Message) []string {
	var tags []string
	for _, m := range msgs {
		tags = append(tags, m.RelevanceTags...)
	}
	return tags
}

// TurnSignals are the caller's observations about the turn that just ended.
// Session-derived fields are filled from the session record when omitted.
type TurnSignals struct {
	SessionID         string                 `json:"session_id,omitempty"`
	Emotional         *detect.EmotionalShift `json:"emotional,omitempty"`
	Category          *detect.CategoryShift  `json:"category,omitempty"`
	Roles             *detect.RoleShift      `json:"roles,omitempty"`
	Breakthrough      bool                   `json:"breakthrough,omitempty"`
	LevelDelta        float64                `json:"level_delta,omitempty"`
	SessionSeconds    *float64               `json:"session_seconds,omitempty"`
	BreakthroughCount *int                   `json:"breakthrough_count,omitempty"`

	SurfacedMessageID string `json:"surfaced_message_id,omitempty"`
	Interpretation    string `json:"interpretation,omitempty"`
	Input             string `json:"input,omitempty"`
	Response          string `json:"response,omitempty"`
}

// TurnResult reports what AfterResponse detected and did.
type TurnResult struct {
	BoundaryDetected       bool           `json:"boundary_detected"`
	Signal                 *detect.Signal `json:"signal,omitempty"`
	ConfirmationPromptText string         `json:"confirmation_prompt_text,omitempty"`
	TransitionRitualText   string         `json:"transition_ritual_text,omitempty"`
	EventID                string         `json:"event_id,omitempty"`
	MomentMessageID        string         `json:"moment_message_id,omitempty"`
	AutoConfirmedNode      *identity.Node `json:"auto_confirmed_node,omitempty"`
}

// AfterResponse runs detection over the finished turn, logs the outcome and
// delivers any message surfaced by LoadContext. Storage failures before the
// boundary event is written yield an empty result; later failures are logged
// and skipped.
func (e *Engine) AfterResponse(ctx context.Context, ownerID string, sig TurnSignals) (*TurnResult, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	opts := e.Options()

	current, err := e.DB.CurrentNode(ctx, ownerID)
	if err != nil {
		e.degrade("after_response", err)
		return &TurnResult{}, nil
	}

	snap := detect.Snapshot{
		Current:      current,
		Emotional:    sig.Emotional,
		Category:     sig.Category,
		Roles:        sig.Roles,
		Breakthrough: sig.Breakthrough,
		LevelDelta:   sig.LevelDelta,
	}
	if err := e.fillSession(ctx, ownerID, sig, &snap); err != nil {
		e.degrade("after_response", err)
		return &TurnResult{}, nil
	}

	res := &TurnResult{}
	signal := detect.Detect(snap, opts.Detect)
	if signal != nil {
		ev, err := e.recordEvent(ctx, ownerID, current, signal, sig)
		if err != nil {
			if identity.IsValidation(err) {
				return nil, err
			}
			e.degrade("after_response", err)
			return &TurnResult{}, nil
		}
		e.Metrics.Boundaries.WithLabelValues(string(signal.Kind())).Inc()
		e.Log.Info("boundary detected",
			zap.String("owner", ownerID),
			zap.Stringer("type", signal.Type),
			zap.Float64("strength", signal.Strength),
			zap.String("event", ev.ID))

		res.BoundaryDetected = true
		res.Signal = signal
		res.EventID = ev.ID
		res.TransitionRitualText = signal.BridgingRitual
		if signal.RequiresConfirmation {
			res.ConfirmationPromptText = signal.ConfirmationPrompt
		}

		if current != nil && signal.Kind() != identity.BoundaryMicro {
			msg, err := e.recordMoment(ctx, ownerID, current, signal)
			if err != nil {
				e.degrade("moment_message", err)
			} else if msg != nil {
				res.MomentMessageID = msg.ID
			}
		}
	}

	// Deliver before auto-confirming so the stub is attributed to the node
	// that read the message.
	if sig.SurfacedMessageID != "" {
		e.deliver(ctx, ownerID, current, sig, res.EventID)
	}

	if signal != nil && !signal.RequiresConfirmation && opts.AutoConfirm {
		node, err := e.ConfirmTransition(ctx, ownerID, signal, "")
		switch {
		case err == nil:
			res.AutoConfirmedNode = node
			if lerr := e.DB.LinkEventNode(ctx, ownerID, res.EventID, node.ID); lerr != nil {
				e.degrade("link_event", lerr)
			}
		case identity.IsValidation(err):
			e.Log.Debug("auto-confirm skipped", zap.String("owner", ownerID), zap.Error(err))
		default:
			e.degrade("auto_confirm", err)
		}
	}

	return res, nil
}

// fillSession derives session duration and breakthrough count when the
// caller did not supply them. A reported breakthrough is counted before
// detection runs.
func (e *Engine) fillSession(ctx context.Context, ownerID string, sig TurnSignals, snap *detect.Snapshot) error {
	if sig.SessionSeconds != nil {
		snap.SessionDuration = time.Duration(*sig.SessionSeconds * float64(time.Second))
	}
	if sig.BreakthroughCount != nil {
		snap.BreakthroughCount = *sig.BreakthroughCount
	}
	if sig.SessionID == "" {
		return nil
	}

	sess, err := e.DB.Session(ctx, sig.SessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		if sess, err = e.DB.TouchSession(ctx, ownerID, sig.SessionID); err != nil {
			return err
		}
	}
	if sig.SessionSeconds == nil {
		snap.SessionDuration = sess.Duration()
	}
	count := sess.BreakthroughCount
	if sig.Breakthrough {
		if count, err = e.DB.IncrementBreakthroughs(ctx, sig.SessionID); err != nil {
			return err
		}
	}
	if sig.BreakthroughCount == nil {
		snap.BreakthroughCount = count
	}
	return nil
}

func (e *Engine) recordEvent(ctx context.Context, ownerID string, current *identity.Node, s *detect.Signal, sig TurnSignals) (*identity.BoundaryEvent, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode signal: %w", err)
	}
	in := identity.BoundaryEventInput{
		OwnerID:         ownerID,
		Kind:            s.Kind(),
		CategoryFrom:    s.FromCategory,
		CategoryTo:      s.SuggestedCategory,
		PhaseTo:         s.SuggestedPhase,
		Intensity:       s.Strength,
		SignalPayload:   payload,
		InputExcerpt:    sig.Input,
		ResponseExcerpt: sig.Response,
	}
	if current != nil {
		in.FromNodeID = current.ID
		in.PhaseFrom = current.PhaseLabel
		score := current.ContinuityScore
		in.ContinuityScoreBefore = &score
	}
	return e.DB.RecordBoundaryEvent(ctx, in)
}

// momentTypes maps signal types that leave a message behind to the message
// type they are written as.
var momentTypes = map[identity.SignalType]identity.MessageType{
	identity.SignalBreakthrough:   identity.MessageWisdomSeed,
	identity.SignalEvolution:      identity.MessageFutureProjection,
	identity.SignalTransformation: identity.MessageSymbolicState,
}

func (e *Engine) recordMoment(ctx context.Context, ownerID string, current *identity.Node, s *detect.Signal) (*identity.Message, error) {
	msgType, ok := momentTypes[s.Type]
	if !ok {
		return nil, nil
	}
	to := s.SuggestedCategory
	if !to.Valid() {
		to = current.Category
	}
	title, content, objects := ritual.MomentMessage(ritual.Moment{
		Type:       s.Type,
		From:       current.Category,
		To:         to,
		PhaseLabel: s.SuggestedPhase,
		Reason:     s.Reason,
		Tags:       s.SuggestedRoleTags,
	})
	tags := append([]string{s.Type.String()}, s.SuggestedRoleTags...)
	msg, err := e.DB.SendMessage(ctx, identity.MessageInput{
		OwnerID:         ownerID,
		FromNodeID:      current.ID,
		Type:            msgType,
		Title:           title,
		Content:         content,
		SymbolicObjects: objects,
		RitualTrigger:   s.Type.String(),
		RelevanceTags:   tags,
	})
	if err != nil {
		return nil, err
	}
	e.Metrics.MessagesRecorded.WithLabelValues(string(msgType)).Inc()
	return msg, nil
}

// deliver marks the owner's surfaced message delivered and records a stub
// reinterpretation pointing at the turn's boundary event.
func (e *Engine) deliver(ctx context.Context, ownerID string, current *identity.Node, sig TurnSignals, eventID string) {
	dc, _ := json.Marshal(map[string]string{
		"session_id": sig.SessionID,
		"event_id":   eventID,
	})
	err := e.DB.MarkDelivered(ctx, ownerID, sig.SurfacedMessageID, sig.Interpretation, dc)
	if errors.Is(err, identity.ErrAlreadyDelivered) || errors.Is(err, identity.ErrNotFound) {
		e.Log.Debug("surfaced message not delivered", zap.String("message", sig.SurfacedMessageID), zap.Error(err))
		return
	}
	if err != nil {
		e.degrade("mark_delivered", err)
		return
	}
	if current == nil {
		return
	}

	msg, err := e.DB.Message(ctx, sig.SurfacedMessageID)
	if err != nil || msg == nil {
		if err != nil {
			e.degrade("mark_delivered", err)
		}
		return
	}
	text := sig.Interpretation
	if text == "" {
		text = "Surfaced during conversation."
	}
	if _, err := e.DB.RecordReinterpretation(ctx, identity.ReinterpretationInput{
		OwnerID:            current.OwnerID,
		InterpretingNodeID: current.ID,
		SourceNodeID:       msg.FromNodeID,
		SourceMessageID:    msg.ID,
		TriggerEventID:     eventID,
		InterpretationText: text,
		IntegrationDepth:   StubIntegrationDepth,
	}); err != nil {
		e.degrade("reinterpretation_stub", err)
	}
}

// ConfirmTransition appends the node a signal proposed. Fields the signal
// leaves empty are carried over from the current node. A failed embedding
// is logged and the node is stored without one.
func (e *Engine) ConfirmTransition(ctx context.Context, ownerID string, s *detect.Signal, essence string) (*identity.Node, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &identity.ValidationError{Field: "signal", Reason: "is required"}
	}

	current, err := e.DB.CurrentNode(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	in := identity.NodeInput{
		OwnerID:        ownerID,
		Category:       s.SuggestedCategory,
		Cycle:          s.SuggestedCycle,
		PhaseLabel:     s.SuggestedPhase,
		RoleTags:       s.SuggestedRoleTags,
		DominantMoods:  s.SuggestedMoods,
		EssenceSummary: essence,
		TriggerContext: fmt.Sprintf("%s: %s", s.Type, s.Reason),
	}
	if current != nil {
		if !in.Category.Valid() {
			in.Category = current.Category
		}
		if in.Cycle == 0 {
			in.Cycle = current.Cycle
		}
		if len(in.RoleTags) == 0 {
			in.RoleTags = current.RoleTags
		}
		if len(in.DominantMoods) == 0 {
			in.DominantMoods = current.DominantMoods
		}
		if in.EssenceSummary == "" {
			in.EssenceSummary = current.EssenceSummary
		}
	}
	if !in.Category.Valid() {
		return nil, &identity.ValidationError{Field: "category", Reason: "signal suggests none and the owner has no current node"}
	}

	e.embedInto(ctx, &in)

	node, err := e.DB.CreateNode(ctx, in)
	if err != nil {
		return nil, err
	}
	e.Metrics.NodesCreated.Inc()
	e.Log.Info("node created",
		zap.String("owner", ownerID),
		zap.String("node", node.ID),
		zap.Int64("seq", node.Seq),
		zap.Stringer("category", node.Category),
		zap.Stringer("signal", s.Type))
	return node, nil
}

// ConfirmEvent accepts a boundary the owner was asked about. The signal is
// rebuilt from the stored event; the chain must still be at the node the
// event was detected on, and an event produces at most one node.
func (e *Engine) ConfirmEvent(ctx context.Context, ownerID, eventID, essence string) (*identity.Node, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if eventID == "" {
		return nil, &identity.ValidationError{Field: "event_id", Reason: "is required"}
	}
	ev, err := e.DB.BoundaryEvent(ctx, ownerID, eventID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, identity.Storage("confirm event", fmt.Errorf("boundary event %s: %w", eventID, identity.ErrNotFound))
	}
	if ev.Confirmed() {
		return nil, identity.Storage("confirm event", fmt.Errorf("boundary event %s: %w", eventID, identity.ErrAlreadyConfirmed))
	}

	current, err := e.DB.CurrentNode(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if current != nil && ev.FromNodeID != current.ID {
		return nil, identity.Storage("confirm event", fmt.Errorf("boundary event %s was detected on an earlier node: %w", eventID, identity.ErrConflict))
	}

	var s detect.Signal
	if err := json.Unmarshal(ev.SignalPayload, &s); err != nil {
		return nil, identity.Storage("confirm event", fmt.Errorf("decode signal: %w", err))
	}
	node, err := e.ConfirmTransition(ctx, ownerID, &s, essence)
	if err != nil {
		return nil, err
	}
	if err := e.DB.LinkEventNode(ctx, ownerID, ev.ID, node.ID); err != nil {
		e.degrade("link_event", err)
	}
	return node, nil
}

func (e *Engine) embedInto(ctx context.Context, in *identity.NodeInput) {
	emb := e.embedder()
	if emb == nil || in.EssenceSummary == "" {
		return
	}
	vec, err := emb.Embed(ctx, in.EssenceSummary)
	if err != nil {
		e.Log.Warn("essence embedding failed", zap.String("owner", in.OwnerID), zap.Error(err))
		return
	}
	in.EssenceEmbedding = vec
	in.EmbeddingModel = emb.Model()
}

// SeedNode creates an owner's first node. Owners that already have a
// current node get identity.ErrConflict.
func (e *Engine) SeedNode(ctx context.Context, in identity.NodeInput) (*identity.Node, error) {
	if err := identity.Validate(in); err != nil {
		return nil, err
	}
	current, err := e.DB.CurrentNode(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, identity.Storage("seed node", fmt.Errorf("owner %s already has a chain: %w", in.OwnerID, identity.ErrConflict))
	}

	e.embedInto(ctx, &in)
	node, err := e.DB.CreateNode(ctx, in)
	if err != nil {
		return nil, err
	}
	e.Metrics.NodesCreated.Inc()
	e.Log.Info("chain seeded", zap.String("owner", in.OwnerID), zap.String("node", node.ID))
	return node, nil
}

// MessageMeta carries the optional fields of a future message.
type MessageMeta struct {
	Type            identity.MessageType `json:"type,omitempty"`
	Title           string               `json:"title,omitempty"`
	ToNodeID        string               `json:"to_node_id,omitempty"`
	SymbolicObjects []string             `json:"symbolic_objects,omitempty"`
	RitualTrigger   string               `json:"ritual_trigger,omitempty"`
	RelevanceTags   []string             `json:"relevance_tags,omitempty"`
}

// RecordFutureMessage stores a message from the owner's current node to a
// future self. Without a type it is a letter.
func (e *Engine) RecordFutureMessage(ctx context.Context, ownerID, content string, meta MessageMeta) (*identity.Message, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	current, err := e.DB.CurrentNode(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &identity.ValidationError{Field: "from_node_id", Reason: "owner has no current node"}
	}
	if meta.Type == "" {
		meta.Type = identity.MessageLetter
	}

	msg, err := e.DB.SendMessage(ctx, identity.MessageInput{
		OwnerID:         ownerID,
		FromNodeID:      current.ID,
		ToNodeID:        meta.ToNodeID,
		Type:            meta.Type,
		Title:           meta.Title,
		Content:         content,
		SymbolicObjects: meta.SymbolicObjects,
		RitualTrigger:   meta.RitualTrigger,
		RelevanceTags:   meta.RelevanceTags,
	})
	if err != nil {
		return nil, err
	}
	e.Metrics.MessagesRecorded.WithLabelValues(string(msg.Type)).Inc()
	return msg, nil
}

// ReinterpretRequest is a reinterpretation written by the owner's current
// node. SourceNodeID may be omitted when SourceMessageID is set.
type ReinterpretRequest struct {
	SourceNodeID       string  `json:"source_node_id,omitempty"`
	SourceMessageID    string  `json:"source_message_id,omitempty"`
	Text               string  `json:"text"`
	EmotionalResonance string  `json:"emotional_resonance,omitempty"`
	IntegrationDepth   float64 `json:"integration_depth"`
	TranslationNotes   string  `json:"translation_notes,omitempty"`
}

// Reinterpret records the current node's reading of an earlier node or
// message.
func (e *Engine) Reinterpret(ctx context.Context, ownerID string, req ReinterpretRequest) (*identity.Reinterpretation, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	current, err := e.DB.CurrentNode(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &identity.ValidationError{Field: "interpreting_node_id", Reason: "owner has no current node"}
	}

	source := req.SourceNodeID
	if source == "" && req.SourceMessageID != "" {
		msg, err := e.DB.Message(ctx, req.SourceMessageID)
		if err != nil {
			return nil, err
		}
		if msg == nil || msg.OwnerID != ownerID {
			return nil, identity.Storage("reinterpret", fmt.Errorf("message %s: %w", req.SourceMessageID, identity.ErrNotFound))
		}
		source = msg.FromNodeID
	}

	return e.DB.RecordReinterpretation(ctx, identity.ReinterpretationInput{
		OwnerID:            ownerID,
		InterpretingNodeID: current.ID,
		SourceNodeID:       source,
		SourceMessageID:    req.SourceMessageID,
		InterpretationText: req.Text,
		EmotionalResonance: req.EmotionalResonance,
		IntegrationDepth:   req.IntegrationDepth,
		TranslationNotes:   req.TranslationNotes,
	})
}

// CompleteRitual marks one of the owner's transitions as bridged.
func (e *Engine) CompleteRitual(ctx context.Context, ownerID, transitionID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if transitionID == "" {
		return &identity.ValidationError{Field: "transition_id", Reason: "is required"}
	}
	return e.DB.CompleteBridgingRitual(ctx, ownerID, transitionID)
}

// Chain returns the owner's nodes, oldest first.
func (e *Engine) Chain(ctx context.Context, ownerID string) ([]identity.Node, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	nodes, err := e.DB.Chain(ctx, ownerID)
	if nodes == nil && err == nil {
		nodes = []identity.Node{}
	}
	return nodes, err
}

// Continuity returns the owner's chain metrics.
func (e *Engine) Continuity(ctx context.Context, ownerID string) (identity.ContinuityMetrics, error) {
	if err := requireOwner(ownerID); err != nil {
		return identity.ContinuityMetrics{}, err
	}
	return e.DB.CalculateContinuity(ctx, ownerID)
}

// PendingMessages returns the owner's undelivered messages.
func (e *Engine) PendingMessages(ctx context.Context, ownerID string) ([]identity.Message, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return e.DB.PendingMessages(ctx, ownerID)
}
