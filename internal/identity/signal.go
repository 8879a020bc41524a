package identity

import "fmt"

// SignalType names one of the four boundary detectors, in evaluation order.
type SignalType int

const (
	SignalMicro SignalType = iota
	SignalBreakthrough
	SignalEvolution
	SignalTransformation
)

// signalCount sizes the per-signal lookup arrays.
const signalCount = int(SignalTransformation) + 1

var signalNames = [signalCount]string{
	SignalMicro:          "micro",
	SignalBreakthrough:   "breakthrough",
	SignalEvolution:      "evolution",
	SignalTransformation: "transformation",
}

var signalKinds = [signalCount]BoundaryKind{
	SignalMicro:          BoundaryMicro,
	SignalBreakthrough:   BoundaryMajor,
	SignalEvolution:      BoundaryMajor,
	SignalTransformation: BoundaryMetamorphosis,
}

// Valid reports whether t is a known signal type.
func (t SignalType) Valid() bool {
	return t >= SignalMicro && t <= SignalTransformation
}

func (t SignalType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("signal(%d)", int(t))
	}
	return signalNames[t]
}

// Kind maps a signal to the boundary kind recorded in the audit log.
func (t SignalType) Kind() BoundaryKind {
	if !t.Valid() {
		return BoundaryMicro
	}
	return signalKinds[t]
}

// MarshalText encodes the signal type by name.
func (t SignalType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid signal type %d", int(t))
	}
	return []byte(signalNames[t]), nil
}

// UnmarshalText decodes a signal type name.
func (t *SignalType) UnmarshalText(b []byte) error {
	for i, name := range signalNames {
		if name == string(b) {
			*t = SignalType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown signal type %q", string(b))
}
