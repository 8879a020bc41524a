package identity

import (
	"encoding/json"
	"time"
)

// MessageType classifies a message left for a future self.
type MessageType string

const (
	MessageLetter           MessageType = "letter"
	MessageSymbolicState    MessageType = "symbolic_state"
	MessageFutureProjection MessageType = "future_projection"
	MessageWisdomSeed       MessageType = "wisdom_seed"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageLetter, MessageSymbolicState, MessageFutureProjection, MessageWisdomSeed:
		return true
	}
	return false
}

// BoundaryKind is the audit classification of a detected boundary.
type BoundaryKind string

const (
	BoundaryMicro         BoundaryKind = "micro"
	BoundaryMajor         BoundaryKind = "major"
	BoundaryMetamorphosis BoundaryKind = "metamorphosis"
)

// Node is one version of an owner's identity, active over a single interval.
type Node struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Seq             int64      `json:"seq"`
	PhaseLabel      string     `json:"phase_label"`
	Category        Category   `json:"category"`
	Cycle           int        `json:"cycle"`
	RoleTags        []string   `json:"role_tags"`
	DominantMoods   []string   `json:"dominant_moods"`
	ParentNodeID    string     `json:"parent_node_id,omitempty"`
	ContinuityScore float64    `json:"continuity_score"`
	CreatedAt       time.Time  `json:"created_at"`
	ActiveUntil     *time.Time `json:"active_until,omitempty"`
	EssenceSummary  string     `json:"essence_summary"`

	// EssenceEmbedding is loaded on demand; list queries leave it nil.
	EssenceEmbedding []float64 `json:"-"`
}

// IsCurrent reports whether the node is still open.
func (n *Node) IsCurrent() bool {
	return n != nil && n.ActiveUntil == nil
}

// NodeInput describes a node to append to an owner's chain.
type NodeInput struct {
	OwnerID       string   `json:"owner_id" validate:"required,max=128"`
	PhaseLabel    string   `json:"phase_label" validate:"max=200"`
	Category      Category `json:"category" validate:"category"`
	Cycle         int      `json:"cycle" validate:"gte=0"`
	RoleTags      []string `json:"role_tags" validate:"max=32,dive,max=64"`
	DominantMoods []string `json:"dominant_moods" validate:"max=32,dive,max=64"`
	// ContinuityScore overrides the computed score when set.
	ContinuityScore  *float64  `json:"continuity_score,omitempty" validate:"omitempty,gte=0,lte=1"`
	EssenceSummary   string    `json:"essence_summary" validate:"max=4000"`
	EssenceEmbedding []float64 `json:"-"`
	EmbeddingModel   string    `json:"-"`

	// Recorded on the transition row when the category changes.
	TransitionInterpretation string `json:"transition_interpretation,omitempty" validate:"max=4000"`
	TriggerContext           string `json:"trigger_context,omitempty" validate:"max=4000"`
}

// Message is a note an owner leaves for a future version of themselves.
type Message struct {
	ID                     string          `json:"id"`
	OwnerID                string          `json:"owner_id"`
	FromNodeID             string          `json:"from_node_id"`
	ToNodeID               string          `json:"to_node_id,omitempty"`
	Type                   MessageType     `json:"type"`
	Title                  string          `json:"title,omitempty"`
	Content                string          `json:"content"`
	SymbolicObjects        []string        `json:"symbolic_objects"`
	RitualTrigger          string          `json:"ritual_trigger,omitempty"`
	RelevanceTags          []string        `json:"relevance_tags"`
	DeliveredAt            *time.Time      `json:"delivered_at,omitempty"`
	ReceivedInterpretation string          `json:"received_interpretation,omitempty"`
	DeliveryContext        json.RawMessage `json:"delivery_context,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
}

// Delivered reports whether the message has been surfaced.
func (m *Message) Delivered() bool {
	return m.DeliveredAt != nil
}

// MessageInput describes a message to append.
type MessageInput struct {
	OwnerID         string      `json:"owner_id" validate:"required,max=128"`
	FromNodeID      string      `json:"from_node_id" validate:"required"`
	ToNodeID        string      `json:"to_node_id,omitempty"`
	Type            MessageType `json:"type" validate:"required,oneof=letter symbolic_state future_projection wisdom_seed"`
	Title           string      `json:"title,omitempty" validate:"max=200"`
	Content         string      `json:"content" validate:"required,max=20000"`
	SymbolicObjects []string    `json:"symbolic_objects" validate:"max=32,dive,max=200"`
	RitualTrigger   string      `json:"ritual_trigger,omitempty" validate:"max=500"`
	RelevanceTags   []string    `json:"relevance_tags" validate:"max=32,dive,max=64"`
}

// Reinterpretation records a later node reading an earlier node's words.
type Reinterpretation struct {
	ID                 string    `json:"id"`
	OwnerID            string    `json:"owner_id"`
	InterpretingNodeID string    `json:"interpreting_node_id"`
	SourceNodeID       string    `json:"source_node_id"`
	SourceMessageID    string    `json:"source_message_id,omitempty"`
	TriggerEventID     string    `json:"trigger_event_id,omitempty"`
	InterpretationText string    `json:"interpretation_text"`
	EmotionalResonance string    `json:"emotional_resonance,omitempty"`
	IntegrationDepth   float64   `json:"integration_depth"`
	TranslationNotes   string    `json:"translation_notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// ReinterpretationInput describes a reinterpretation to append.
type ReinterpretationInput struct {
	OwnerID            string  `json:"owner_id" validate:"required,max=128"`
	InterpretingNodeID string  `json:"interpreting_node_id" validate:"required"`
	SourceNodeID       string  `json:"source_node_id" validate:"required"`
	SourceMessageID    string  `json:"source_message_id,omitempty"`
	TriggerEventID     string  `json:"trigger_event_id,omitempty"`
	InterpretationText string  `json:"interpretation_text" validate:"required,max=20000"`
	EmotionalResonance string  `json:"emotional_resonance,omitempty" validate:"max=200"`
	IntegrationDepth   float64 `json:"integration_depth" validate:"gte=0,lte=1"`
	TranslationNotes   string  `json:"translation_notes,omitempty" validate:"max=4000"`
}

// Transition records a category change at a node boundary.
type Transition struct {
	ID                      string    `json:"id"`
	OwnerID                 string    `json:"owner_id"`
	NodeID                  string    `json:"node_id"`
	FromCategory            Category  `json:"from_category"`
	ToCategory              Category  `json:"to_category"`
	Symbol                  string    `json:"symbol"`
	Interpretation          string    `json:"interpretation,omitempty"`
	DiscontinuityScore      float64   `json:"discontinuity_score"`
	TranslationNeeded       bool      `json:"translation_needed"`
	BridgingRitualCompleted bool      `json:"bridging_ritual_completed"`
	TriggerContext          string    `json:"trigger_context,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
}

// BoundaryEvent is the audit record of one detection outcome.
type BoundaryEvent struct {
	ID                    string          `json:"id"`
	OwnerID               string          `json:"owner_id"`
	FromNodeID            string          `json:"from_node_id,omitempty"`
	Kind                  BoundaryKind    `json:"boundary_kind"`
	CategoryFrom          Category        `json:"category_from,omitempty"`
	CategoryTo            Category        `json:"category_to,omitempty"`
	PhaseFrom             string          `json:"phase_from,omitempty"`
	PhaseTo               string          `json:"phase_to,omitempty"`
	Intensity             float64         `json:"intensity"`
	ContinuityScoreBefore *float64        `json:"continuity_score_before,omitempty"`
	SignalPayload         json.RawMessage `json:"signal_payload"`
	InputExcerpt          string          `json:"input_excerpt,omitempty"`
	ResponseExcerpt       string          `json:"response_excerpt,omitempty"`
	ResultingNodeID       string          `json:"resulting_node_id,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// Confirmed reports whether the event already produced a node.
func (e *BoundaryEvent) Confirmed() bool { return e.ResultingNodeID != "" }

// BoundaryEventInput describes a boundary event to append.
type BoundaryEventInput struct {
	OwnerID               string `validate:"required,max=128"`
	FromNodeID            string
	Kind                  BoundaryKind `validate:"required,oneof=micro major metamorphosis"`
	CategoryFrom          Category
	CategoryTo            Category
	PhaseFrom             string
	PhaseTo               string
	Intensity             float64 `validate:"gte=0,lte=1"`
	ContinuityScoreBefore *float64
	SignalPayload         json.RawMessage `validate:"required"`
	InputExcerpt          string
	ResponseExcerpt       string
}

// Session tracks one conversation session for an owner.
type Session struct {
	ID                int64     `json:"id"`
	SessionID         string    `json:"session_id"`
	OwnerID           string    `json:"owner_id"`
	StartedAt         time.Time `json:"started_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
	TurnCount         int       `json:"turn_count"`
	BreakthroughCount int       `json:"breakthrough_count"`
}

// Duration is the time between the first and latest turn of the session.
func (s *Session) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.LastSeenAt.Sub(s.StartedAt)
}
