package identity

// Discontinuity scores for a category change.
const (
	NeighborDiscontinuity  = 0.3
	ConnectorDiscontinuity = 0.5
	DistantDiscontinuity   = 0.7
)

// FallbackSymbol is returned only for pairs outside the table (identity pairs
// or invalid categories).
const FallbackSymbol = "Threshold"

// neighbors holds the declared neighbors of each non-connector category.
// The connector's adjacency is expressed by the connector rule, not here.
var neighbors = [tableWidth][]Category{
	Earth: {Water},
	Water: {Earth, Air},
	Fire:  {Air, Earth},
	Air:   {Fire, Water},
}

var symbols = [tableWidth][tableWidth]string{
	Earth: {
		Water: "Wellspring",
		Fire:  "Forge",
		Air:   "Summit",
		Ether: "Crystal",
	},
	Water: {
		Earth: "Delta",
		Fire:  "Steam",
		Air:   "Mist",
		Ether: "Moonlit Tide",
	},
	Fire: {
		Earth: "Ash",
		Water: "Tempered Blade",
		Air:   "Phoenix",
		Ether: "Starfire",
	},
	Air: {
		Earth: "Seed on the Wind",
		Water: "Rain",
		Fire:  "Lightning",
		Ether: "Aurora",
	},
	Ether: {
		Earth: "Incarnation",
		Water: "Dew",
		Fire:  "Spark",
		Air:   "Breath",
	},
}

// IsNeighbor reports whether to is a declared neighbor of from.
func IsNeighbor(from, to Category) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	for _, n := range neighbors[from] {
		if n == to {
			return true
		}
	}
	return false
}

// Adjacent reports whether two distinct categories touch, either as declared
// neighbors or through the connector.
func Adjacent(a, b Category) bool {
	if !a.Valid() || !b.Valid() || a == b {
		return false
	}
	return IsNeighbor(a, b) || a == Connector || b == Connector
}

// Discontinuity returns how abrupt a move from one category to another is.
// Staying in the same category is 0.
func Discontinuity(from, to Category) float64 {
	if from == to {
		return 0
	}
	switch {
	case IsNeighbor(from, to):
		return NeighborDiscontinuity
	case from == Connector || to == Connector:
		return ConnectorDiscontinuity
	default:
		return DistantDiscontinuity
	}
}

// Symbol returns the symbolic label for a category change.
func Symbol(from, to Category) string {
	if !from.Valid() || !to.Valid() {
		return FallbackSymbol
	}
	if s := symbols[from][to]; s != "" {
		return s
	}
	return FallbackSymbol
}

// TranslationNeeded reports whether a change is discontinuous enough to need
// an explicit bridge between the two nodes.
func TranslationNeeded(discontinuity float64) bool {
	return discontinuity > 0.5
}
