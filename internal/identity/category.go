package identity

import (
	"fmt"
	"strings"
)

// Category classifies a node's dominant disposition. The set is closed: every
// table in this package is an array indexed by Category, so adding one is a
// change every lookup has to account for.
type Category int

const (
	Unknown Category = iota
	Earth
	Water
	Fire
	Air
	Ether
)

// Connector is the category adjacent to every other category.
const Connector = Ether

// tableWidth sizes the per-category lookup arrays (Unknown occupies slot 0).
const tableWidth = int(Ether) + 1

// Order is the fixed cursor order used when advancing through phases.
var Order = [...]Category{Earth, Water, Fire, Air, Ether}

var categoryNames = [tableWidth]string{
	Unknown: "unknown",
	Earth:   "earth",
	Water:   "water",
	Fire:    "fire",
	Air:     "air",
	Ether:   "ether",
}

var phaseNames = [tableWidth]string{
	Unknown: "Threshold",
	Earth:   "Rooting",
	Water:   "Flowing",
	Fire:    "Kindling",
	Air:     "Unfolding",
	Ether:   "Integrating",
}

// Valid reports whether c is one of the five real categories.
func (c Category) Valid() bool {
	return c >= Earth && c <= Ether
}

func (c Category) String() string {
	if c < Unknown || int(c) >= tableWidth {
		return categoryNames[Unknown]
	}
	return categoryNames[c]
}

// PhaseName returns the phase name associated with the category.
func (c Category) PhaseName() string {
	if !c.Valid() {
		return phaseNames[Unknown]
	}
	return phaseNames[c]
}

// Index returns the category's position in Order, or -1.
func (c Category) Index() int {
	if !c.Valid() {
		return -1
	}
	return int(c) - int(Earth)
}

// Next returns the category after c in cursor order and whether the cursor wrapped.
func (c Category) Next() (Category, bool) {
	i := c.Index()
	if i < 0 {
		return Order[0], false
	}
	if i == len(Order)-1 {
		return Order[0], true
	}
	return Order[i+1], false
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name. Empty input and "unknown" decode to
// Unknown.
func (c *Category) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	if s == "" || s == categoryNames[Unknown] {
		*c = Unknown
		return nil
	}
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory resolves a category name (case-insensitive).
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Order {
		if categoryNames[c] == name {
			return c, nil
		}
	}
	return Unknown, fmt.Errorf("unknown category %q", s)
}

// PhaseLabel renders the label for a category within a cycle.
func PhaseLabel(c Category, cycle int) string {
	if cycle < 1 {
		cycle = 1
	}
	return fmt.Sprintf("%s (cycle %d)", c.PhaseName(), cycle)
}
