package logic

// Comfort is an ordered comfort level. The zero value means "no level".
type Comfort int

const (
	ComfortNoSignificantDiscomfort Comfort = iota + 1
	ComfortComfortable
	ComfortSomeDiscomfort
	ComfortAvoidExertion
	ComfortDangerous
	ComfortHeatStrokeImminent
)

// Comforts lists all levels in ascending order.
var Comforts = []Comfort{
	ComfortNoSignificantDiscomfort,
	ComfortComfortable,
	ComfortSomeDiscomfort,
	ComfortAvoidExertion,
	ComfortDangerous,
	ComfortHeatStrokeImminent,
}

var comfortTokens = map[Comfort]string{
	ComfortNoSignificantDiscomfort: "no_significant_discomfort",
	ComfortComfortable:             "comfortable",
	ComfortSomeDiscomfort:          "some_discomfort",
	ComfortAvoidExertion:           "avoid_exertion",
	ComfortDangerous:               "dangerous",
	ComfortHeatStrokeImminent:      "heat_stroke_imminent",
}

var comfortLabels = map[Comfort]string{
	ComfortNoSignificantDiscomfort: "No significant discomfort",
	ComfortComfortable:             "Comfortable",
	ComfortSomeDiscomfort:          "Some discomfort",
	ComfortAvoidExertion:           "Avoid exertion",
	ComfortDangerous:               "Dangerous",
	ComfortHeatStrokeImminent:      "Heat stroke imminent",
}

// String returns the stable machine token, e.g. "comfortable".
func (c Comfort) String() string {
	if s, ok := comfortTokens[c]; ok {
		return s
	}
	return ""
}

// Label returns the human readable name for display only.
func (c Comfort) Label() string {
	return comfortLabels[c]
}

// Level returns the 1-based level, or 0 for no level.
func (c Comfort) Level() int {
	if _, ok := comfortTokens[c]; !ok {
		return 0
	}
	return int(c)
}

// ComfortTokens returns the machine tokens in ascending level order.
func ComfortTokens() []string {
	out := make([]string, len(Comforts))
	for i, c := range Comforts {
		out[i] = c.String()
	}
	return out
}

// Classify maps a humidex value to its comfort level.
// Bins are left-inclusive: exactly 20.0 is ComfortComfortable.
func Classify(humidex float64) Comfort {
	switch {
	case humidex < 20:
		return ComfortNoSignificantDiscomfort
	case humidex < 30:
		return ComfortComfortable
	case humidex < 40:
		return ComfortSomeDiscomfort
	case humidex < 46:
		return ComfortAvoidExertion
	case humidex < 54:
		return ComfortDangerous
	default:
		return ComfortHeatStrokeImminent
	}
}
