// Package detect evaluates a turn snapshot and proposes at most one boundary
// signal. Detection is pure: callers gather the snapshot, Detect does no I/O.
package detect

import (
	"math"
	"time"

	"github.com/lazypower/chrysalis/internal/identity"
	"github.com/lazypower/chrysalis/internal/ritual"
)

// Config holds the tunable thresholds.
type Config struct {
	MicroIntensity float64 `yaml:"micro_intensity" json:"micro_intensity"`
	EvolutionDelta float64 `yaml:"evolution_delta" json:"evolution_delta"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MicroIntensity: 0.7,
		EvolutionDelta: 0.15,
	}
}

const (
	breakthroughSession   = 15 * time.Minute
	breakthroughRepeat    = 2
	transformationRepeats = 3
	lowOverlap            = 0.5
	minIndicators         = 2
)

// EmotionalShift describes a change in mood during the turn.
type EmotionalShift struct {
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	Intensity float64 `json:"intensity"`
}

// CategoryShift is the caller's hint about a category change.
type CategoryShift struct {
	From identity.Category `json:"from"`
	To   identity.Category `json:"to"`
}

// RoleShift is the caller's hint about role tags before and after the turn.
type RoleShift struct {
	From []string `json:"from"`
	To   []string `json:"to"`
}

// Snapshot is everything the detectors look at.
type Snapshot struct {
	Current           *identity.Node
	Emotional         *EmotionalShift
	Category          *CategoryShift
	Roles             *RoleShift
	Breakthrough      bool
	LevelDelta        float64
	SessionDuration   time.Duration
	BreakthroughCount int
}

// Signal is a proposed boundary.
type Signal struct {
	Type                 identity.SignalType `json:"type"`
	Strength             float64             `json:"strength"`
	RequiresConfirmation bool                `json:"requires_confirmation"`
	Reason               string              `json:"reason"`
	Indicators           []string            `json:"indicators,omitempty"`

	FromCategory      identity.Category `json:"from_category,omitempty"`
	SuggestedCategory identity.Category `json:"suggested_category,omitempty"`
	SuggestedPhase    string            `json:"suggested_phase,omitempty"`
	SuggestedCycle    int               `json:"suggested_cycle,omitempty"`
	SuggestedRoleTags []string          `json:"suggested_role_tags,omitempty"`
	SuggestedMoods    []string          `json:"suggested_moods,omitempty"`

	ConfirmationPrompt string `json:"confirmation_prompt"`
	BridgingRitual     string `json:"bridging_ritual,omitempty"`
}

// Kind is the boundary kind this signal is logged as.
func (s *Signal) Kind() identity.BoundaryKind {
	return s.Type.Kind()
}

// Detect runs every detector and returns the strongest signal, or nil. On an
// exact tie the later detector in evaluation order wins.
func Detect(snap Snapshot, cfg Config) *Signal {
	candidates := []*Signal{
		detectMicro(snap, cfg),
		detectBreakthrough(snap),
		detectEvolution(snap, cfg),
		detectTransformation(snap),
	}

	var best *Signal
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if best == nil || c.Strength >= best.Strength {
			best = c
		}
	}
	if best == nil {
		return nil
	}

	if best.SuggestedPhase == "" {
		best.SuggestedPhase = defaultPhase(snap, best)
	}
	best.ConfirmationPrompt = ritual.ConfirmationPrompt(best.Type, best.SuggestedPhase)
	if best.Type == identity.SignalTransformation {
		best.BridgingRitual = ritual.BridgingRitual(best.FromCategory, best.SuggestedCategory)
	}
	return best
}

func detectMicro(snap Snapshot, cfg Config) *Signal {
	if snap.Emotional == nil || snap.Emotional.Intensity < cfg.MicroIntensity {
		return nil
	}
	s := &Signal{
		Type:                 identity.SignalMicro,
		Strength:             round(math.Min(0.5, snap.Emotional.Intensity*0.5)),
		RequiresConfirmation: false,
		Reason:               "strong emotional shift",
		FromCategory:         currentCategory(snap),
	}
	if to := snap.Emotional.To; to != "" {
		s.SuggestedMoods = []string{to}
	}
	return s
}

func detectBreakthrough(snap Snapshot) *Signal {
	if !snap.Breakthrough {
		return nil
	}
	hundredths := 60
	var indicators []string
	if snap.SessionDuration >= breakthroughSession {
		hundredths += 10
		indicators = append(indicators, "long_session")
	}
	if snap.BreakthroughCount >= breakthroughRepeat {
		hundredths += 10
		indicators = append(indicators, "repeated_breakthrough")
	}
	strength := fromHundredths(min(hundredths, 80))
	return &Signal{
		Type:                 identity.SignalBreakthrough,
		Strength:             strength,
		RequiresConfirmation: strength >= 0.7,
		Reason:               "breakthrough reported",
		Indicators:           indicators,
		FromCategory:         currentCategory(snap),
	}
}

func detectEvolution(snap Snapshot, cfg Config) *Signal {
	if snap.LevelDelta < cfg.EvolutionDelta {
		return nil
	}
	s := &Signal{
		Type:                 identity.SignalEvolution,
		Strength:             round(math.Min(0.9, 0.7+snap.LevelDelta)),
		RequiresConfirmation: true,
		Reason:               "growth beyond the current phase",
		FromCategory:         currentCategory(snap),
	}
	if snap.Category != nil && snap.Category.To.Valid() {
		s.SuggestedCategory = snap.Category.To
	}
	if snap.Roles != nil && len(snap.Roles.To) > 0 {
		s.SuggestedRoleTags = identity.NormalizeTags(snap.Roles.To)
	}
	return s
}

func detectTransformation(snap Snapshot) *Signal {
	origin := currentCategory(snap)
	if !origin.Valid() && snap.Category != nil {
		origin = snap.Category.From
	}

	categoryChanged := snap.Category != nil && snap.Category.To.Valid() && snap.Category.To != origin
	tagsLow := false
	var overlap float64
	if snap.Roles != nil && len(snap.Roles.To) > 0 {
		prev := snap.Roles.From
		if len(prev) == 0 && snap.Current != nil {
			prev = snap.Current.RoleTags
		}
		overlap = identity.TagOverlapRatio(snap.Roles.To, prev)
		tagsLow = overlap < lowOverlap
	}
	repeated := snap.BreakthroughCount >= transformationRepeats

	hundredths := 80
	var indicators []string
	if categoryChanged {
		hundredths += 10
		indicators = append(indicators, "category_changed")
	}
	if tagsLow {
		hundredths += 5
		indicators = append(indicators, "role_overlap_low")
	}
	if repeated {
		hundredths += 5
		indicators = append(indicators, "breakthrough_threshold")
	}
	if len(indicators) < minIndicators {
		return nil
	}

	target, cycle := advance(origin, cycleOf(snap.Current), snap.Category, categoryChanged)
	s := &Signal{
		Type:                 identity.SignalTransformation,
		Strength:             fromHundredths(min(hundredths, 95)),
		RequiresConfirmation: true,
		Reason:               "multiple indicators of metamorphosis",
		Indicators:           indicators,
		FromCategory:         origin,
		SuggestedCategory:    target,
		SuggestedCycle:       cycle,
		SuggestedPhase:       identity.PhaseLabel(target, cycle),
	}
	if snap.Roles != nil && len(snap.Roles.To) > 0 {
		s.SuggestedRoleTags = identity.NormalizeTags(snap.Roles.To)
	}
	return s
}

// advance picks the next category and cycle. The cycle increments whenever
// the target does not lie ahead of the origin in cursor order.
func advance(origin identity.Category, cycle int, shift *CategoryShift, changed bool) (identity.Category, int) {
	var target identity.Category
	if changed {
		target = shift.To
	} else {
		target, _ = origin.Next()
	}
	if origin.Valid() && target.Index() <= origin.Index() {
		cycle++
	}
	return target, cycle
}

func defaultPhase(snap Snapshot, s *Signal) string {
	cat := s.SuggestedCategory
	if !cat.Valid() {
		cat = currentCategory(snap)
	}
	if !cat.Valid() {
		return ""
	}
	cycle := cycleOf(snap.Current)
	s.SuggestedCycle = cycle
	return identity.PhaseLabel(cat, cycle)
}

func currentCategory(snap Snapshot) identity.Category {
	if snap.Current == nil {
		return identity.Unknown
	}
	return snap.Current.Category
}

func cycleOf(n *identity.Node) int {
	if n == nil || n.Cycle < 1 {
		return 1
	}
	return n.Cycle
}

func fromHundredths(h int) float64 {
	return float64(h) / 100
}

// round quantizes a continuous strength to four decimals so sums like
// 0.7+0.1 compare equal to their literal value.
func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
