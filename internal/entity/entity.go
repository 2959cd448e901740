// Package entity turns a registration and its derived state into the two
// published entities (humidex score and comfort level).
//
// Entities are fixed-shape values. Encode serializes them into the versioned
// wire payload; rounding for presentation happens here and nowhere else.
package entity

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/sweeney/humidex-sensor/internal/logic"
	"github.com/sweeney/humidex-sensor/internal/registry"
)

// SchemaVersion is the version of the payload produced by Encode.
const SchemaVersion = 1

// Kind distinguishes the two entities of a registration.
type Kind string

const (
	KindScore   Kind = "humidex"
	KindComfort Kind = "comfort"
)

const (
	scoreIcon = "mdi:thermometer-lines"
	unitC     = "°C"
)

// Attributes are the supplementary values published with an entity.
// Pointer fields are omitted when unknown.
type Attributes struct {
	Temperature string   `json:"temperature"`
	Humidity    string   `json:"humidity"`
	Humidex     *float64 `json:"humidex,omitempty"`
	Comfort     string   `json:"comfort,omitempty"`
	DewPoint    *float64 `json:"dewpoint,omitempty"`
	// RawHumidity is only set on the comfort entity.
	RawHumidity *float64 `json:"humidity_pct,omitempty"`
}

// Entity is one published derived entity.
type Entity struct {
	Kind      Kind
	UniqueID  string
	ObjectID  string
	Name      string
	Icon      string
	Unit      string
	Options   []string
	Available bool
	// Value is the humidex score (one decimal) or nil.
	Value *float64
	// Token is the comfort token or empty.
	Token      string
	Attributes Attributes
}

// Inputs carries the values needed to build entities for one registration.
type Inputs struct {
	Entry    registry.Entry
	State    logic.DerivedState
	DewPoint float64
	// Humidity is the current humidity reading, nil if missing.
	Humidity *logic.Reading
}

// Build returns the score and comfort entities for a registration.
func Build(in Inputs) (score, comfort Entity) {
	base := BaseName(in.Entry.Title)
	attrs := Attributes{
		Temperature: in.Entry.Temperature,
		Humidity:    in.Entry.Humidity,
	}
	if in.State.Available {
		attrs.Humidex = ptr(Round(in.State.Humidex, 2))
		attrs.Comfort = in.State.Comfort.String()
		if !math.IsNaN(in.DewPoint) && !math.IsInf(in.DewPoint, 0) {
			attrs.DewPoint = ptr(Round(in.DewPoint, 2))
		}
	}

	score = Entity{
		Kind:       KindScore,
		UniqueID:   in.Entry.ID + "_" + string(KindScore),
		ObjectID:   ObjectID(in.Entry.ID, KindScore),
		Name:       base,
		Icon:       scoreIcon,
		Unit:       unitC,
		Available:  in.State.Available,
		Attributes: attrs,
	}
	if in.State.Available {
		score.Value = ptr(Round(in.State.Humidex, 1))
	}

	comfortAttrs := attrs
	comfortAttrs.DewPoint = nil
	if in.Humidity != nil && in.Humidity.Validity == logic.ValidityKnown {
		if v, ok := logic.ParseState(in.Humidity.State); ok {
			comfortAttrs.RawHumidity = ptr(v)
		}
	}

	comfort = Entity{
		Kind:       KindComfort,
		UniqueID:   in.Entry.ID + "_" + string(KindComfort),
		ObjectID:   ObjectID(in.Entry.ID, KindComfort),
		Name:       base + " Comfortable",
		Icon:       in.Entry.Icon,
		Options:    logic.ComfortTokens(),
		Available:  in.State.Available,
		Attributes: comfortAttrs,
	}
	if in.State.Available {
		comfort.Token = in.State.Comfort.String()
		comfort.Icon = ComfortIcon(in.State.Comfort)
	}
	if comfort.Icon == "" {
		comfort.Icon = registry.DefaultIcon
	}

	return score, comfort
}

// BaseName returns the display name with exactly one trailing "Humidex".
func BaseName(title string) string {
	base := strings.TrimSpace(title)
	if strings.HasSuffix(strings.ToLower(base), "humidex") {
		base = strings.TrimSpace(base[:len(base)-len("humidex")])
	}
	return strings.TrimSpace(base + " Humidex")
}

// ComfortIcon picks a gauge icon for a comfort level.
func ComfortIcon(c logic.Comfort) string {
	switch c {
	case logic.ComfortNoSignificantDiscomfort, logic.ComfortComfortable:
		return "mdi:gauge-empty"
	case logic.ComfortSomeDiscomfort:
		return "mdi:gauge-low"
	case logic.ComfortAvoidExertion:
		return "mdi:gauge"
	default:
		return "mdi:gauge-full"
	}
}

// ObjectID is the topic-safe identifier of an entity.
func ObjectID(entryID string, kind Kind) string {
	return strings.ReplaceAll(entryID, "-", "") + "_" + string(kind)
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Payload is the versioned wire shape of an entity state.
type Payload struct {
	SchemaVersion int        `json:"schema_version"`
	UniqueID      string     `json:"unique_id"`
	Name          string     `json:"name"`
	Available     bool       `json:"available"`
	State         any        `json:"state"`
	Unit          string     `json:"unit_of_measurement,omitempty"`
	Icon          string     `json:"icon"`
	Attributes    Attributes `json:"attributes"`
}

// ToPayload converts an entity to its wire shape. State is a number for the
// score, a token for the comfort entity, or null when unavailable.
func (e Entity) ToPayload() Payload {
	p := Payload{
		SchemaVersion: SchemaVersion,
		UniqueID:      e.UniqueID,
		Name:          e.Name,
		Available:     e.Available,
		Unit:          e.Unit,
		Icon:          e.Icon,
		Attributes:    e.Attributes,
	}
	switch {
	case !e.Available:
		p.State = nil
	case e.Kind == KindScore && e.Value != nil:
		p.State = *e.Value
	case e.Kind == KindComfort:
		p.State = e.Token
	}
	return p
}

// Encode serializes an entity as its versioned JSON payload.
func Encode(e Entity) ([]byte, error) {
	return json.Marshal(e.ToPayload())
}

func ptr(v float64) *float64 {
	return &v
}
