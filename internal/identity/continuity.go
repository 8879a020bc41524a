package identity

// Continuity scoring constants.
const (
	categoryChangePenalty = 0.2
	roleDriftPenalty      = 0.15
	ContinuityFloor       = 0.3
	maxIntegrationBonus   = 0.2
)

// ContinuityMetrics summarizes how coherent an owner's chain is.
type ContinuityMetrics struct {
	NodeCount             int      `json:"node_count"`
	ReinterpretationCount int      `json:"reinterpretation_count"`
	TransitionCount       int      `json:"transition_count"`
	AverageContinuity     float64  `json:"average_continuity"`
	ChainCoherence        float64  `json:"chain_coherence"`
	IntegrationStrength   float64  `json:"integration_strength"`
	GrowthVelocity        float64  `json:"growth_velocity"`
	EssenceSimilarity     *float64 `json:"essence_similarity,omitempty"`
}

// TagOverlapRatio is |next ∩ prev| / max(|next|, 1) over normalized tags.
func TagOverlapRatio(next, prev []string) float64 {
	nextSet := tagSet(next)
	prevSet := tagSet(prev)
	shared := 0
	for t := range nextSet {
		if prevSet[t] {
			shared++
		}
	}
	return float64(shared) / float64(max(len(nextSet), 1))
}

// NodeContinuity scores a prospective node against its parent. A node with
// no parent starts the chain at full continuity.
func NodeContinuity(parent *Node, category Category, roleTags []string) float64 {
	if parent == nil {
		return 1.0
	}
	score := 1.0
	if parent.Category != category {
		score -= categoryChangePenalty
	}
	score -= roleDriftPenalty * (1 - TagOverlapRatio(roleTags, parent.RoleTags))
	return clamp(score, ContinuityFloor, 1.0)
}

// ChainCoherence averages node scores and adds a bonus for reinterpretation
// work, capped at 0.2. An empty chain has no coherence.
func ChainCoherence(scores []float64, reinterpretations int) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(len(scores))
	bonus := min(maxIntegrationBonus, float64(reinterpretations)/float64(len(scores))*0.1)
	return clamp(avg+bonus, 0, 1)
}

// ComputeMetrics derives the chain-level metrics from node scores and counts.
func ComputeMetrics(scores []float64, reinterpretations, transitions int) ContinuityMetrics {
	n := len(scores)
	denom := float64(max(1, n))
	m := ContinuityMetrics{
		NodeCount:             n,
		ReinterpretationCount: reinterpretations,
		TransitionCount:       transitions,
		ChainCoherence:        ChainCoherence(scores, reinterpretations),
		IntegrationStrength:   float64(reinterpretations) / denom,
		GrowthVelocity:        float64(transitions) / denom,
	}
	if n > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		m.AverageContinuity = sum / float64(n)
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		if n := NormalizeTag(t); n != "" {
			set[n] = true
		}
	}
	return set
}
