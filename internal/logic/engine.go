package logic

import (
	"math"
	"strconv"
	"strings"
)

// Engine derives humidex and comfort from a temperature and a humidity reading.
// It holds no state besides the fallback unit and is safe to share.
type Engine struct {
	fallback Unit
}

// NewEngine creates an Engine that uses fallback when the temperature reading
// declares no unit.
func NewEngine(fallback Unit) *Engine {
	return &Engine{fallback: fallback}
}

// FallbackUnit returns the unit used for readings without a declared unit.
func (e *Engine) FallbackUnit() Unit {
	return e.fallback
}

// Refresh computes a new DerivedState from one snapshot of both readings.
// A nil reading means the source entity does not exist. Every failure mode
// yields Absent together with an Outcome describing it; Refresh never fails
// hard and returns identical results for identical inputs.
func (e *Engine) Refresh(temp, humidity *Reading) (DerivedState, Outcome) {
	if temp == nil || humidity == nil ||
		temp.Validity != ValidityKnown || humidity.Validity != ValidityKnown {
		return Absent, OutcomeInputUnavailable
	}

	tempValue, ok := ParseState(temp.State)
	if !ok {
		return Absent, OutcomeInputUnparseable
	}
	humidityPct, ok := ParseState(humidity.State)
	if !ok {
		return Absent, OutcomeInputUnparseable
	}

	tempC, ok := Normalize(tempValue, temp.Unit, e.fallback)
	if !ok {
		return Absent, OutcomeUnitUnresolved
	}

	humidex := Humidex(tempC, humidityPct)
	if math.IsNaN(humidex) || math.IsInf(humidex, 0) {
		return Absent, OutcomeComputeFault
	}

	return DerivedState{
		Humidex:   humidex,
		Comfort:   Classify(humidex),
		Available: true,
	}, OutcomeAvailable
}

// ParseState parses a numeric reading state. Non-finite values such as
// "NaN" or "Inf" are rejected.
func ParseState(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
