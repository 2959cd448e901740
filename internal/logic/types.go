// Package logic contains the pure humidex derivation pipeline.
// This package has NO transport dependencies (no MQTT, HTTP, OS, or clocks).
// Readings are passed in as value snapshots and results are returned as values.
package logic

// Validity describes whether a Reading carries a usable state.
type Validity int

const (
	ValidityKnown Validity = iota
	ValidityUnknown
	ValidityUnavailable
)

// Sentinel state strings used by reading sources for invalid readings.
const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

func (v Validity) String() string {
	switch v {
	case ValidityKnown:
		return "known"
	case ValidityUnknown:
		return StateUnknown
	case ValidityUnavailable:
		return StateUnavailable
	}
	return "invalid"
}

// Reading is an observed value from an external source.
// The core never mutates a Reading; it is always handled by value.
type Reading struct {
	// State is the raw state text, e.g. "21.5".
	State string
	// Unit is the declared unit_of_measurement, empty if the source has none.
	Unit string
	// Validity is derived from State by ValidityOf unless set explicitly.
	Validity Validity
}

// NewReading builds a Reading and derives its validity from the state text.
func NewReading(state, unit string) Reading {
	return Reading{State: state, Unit: unit, Validity: ValidityOf(state)}
}

// ValidityOf maps the sentinel states to their validity. Any other text is
// considered known, even if it is not numeric.
func ValidityOf(state string) Validity {
	switch state {
	case StateUnknown:
		return ValidityUnknown
	case StateUnavailable:
		return ValidityUnavailable
	}
	return ValidityKnown
}

// Outcome explains how a refresh ended.
type Outcome string

const (
	OutcomeAvailable        Outcome = "available"
	OutcomeInputUnavailable Outcome = "input_unavailable"
	OutcomeInputUnparseable Outcome = "input_unparseable"
	OutcomeUnitUnresolved   Outcome = "unit_unresolved"
	OutcomeComputeFault     Outcome = "compute_fault"
)

// Outcomes lists every outcome, in the order they are checked.
var Outcomes = []Outcome{
	OutcomeAvailable,
	OutcomeInputUnavailable,
	OutcomeInputUnparseable,
	OutcomeUnitUnresolved,
	OutcomeComputeFault,
}

// DerivedState is the result of a refresh.
// Humidex and Comfort are only meaningful when Available is true; the zero
// value is the absent state.
type DerivedState struct {
	Humidex   float64
	Comfort   Comfort
	Available bool
}

// Absent is the fully unavailable derived state.
var Absent = DerivedState{}
