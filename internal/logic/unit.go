package logic

import "strings"

// Unit is a temperature scale.
type Unit string

const (
	UnitCelsius    Unit = "°C"
	UnitFahrenheit Unit = "°F"
)

// ParseUnit resolves a unit token. Tokens are trimmed and matched
// case-insensitively against the known aliases.
func ParseUnit(s string) (Unit, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "°c", "c", "celsius":
		return UnitCelsius, true
	case "°f", "f", "fahrenheit":
		return UnitFahrenheit, true
	}
	return "", false
}

// Normalize converts value to centigrade. The declared unit wins when it is
// non-empty, even if it is only whitespace; otherwise fallback is used. ok is
// false when the unit is not recognized.
func Normalize(value float64, declared string, fallback Unit) (float64, bool) {
	token := declared
	if token == "" {
		token = string(fallback)
	}

	unit, ok := ParseUnit(token)
	if !ok {
		return 0, false
	}

	if unit == UnitFahrenheit {
		return (value - 32.0) * (5.0 / 9.0), true
	}
	return value, true
}
