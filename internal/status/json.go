package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/humidex-sensor/internal/entity"
	"github.com/sweeney/humidex-sensor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string             `json:"event,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	StartTime     string             `json:"start_time"`
	Timestamp     string             `json:"timestamp"`
	MQTT          MQTTStatus         `json:"mqtt"`
	Registrations []RegistrationJSON `json:"registrations"`
	Counts        map[string]int     `json:"outcome_counts"`
	Config        ConfigJSON         `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// RegistrationJSON is the JSON representation of one registration.
type RegistrationJSON struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Temperature SourceJSON `json:"temperature"`
	Humidity    SourceJSON `json:"humidity"`
	Available   bool       `json:"available"`
	Humidex     *float64   `json:"humidex"`
	Comfort     string     `json:"comfort,omitempty"`
	DewPoint    *float64   `json:"dewpoint,omitempty"`
	Outcome     string     `json:"outcome"`
	UpdatedAt   string     `json:"updated_at,omitempty"`
	Refreshes   int        `json:"refreshes"`
}

// SourceJSON describes a source entity.
type SourceJSON struct {
	Entity string `json:"entity"`
	State  string `json:"state,omitempty"`
	Unit   string `json:"unit,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
	StatePrefix  string `json:"state_prefix"`
	OutputPrefix string `json:"output_prefix"`
	FallbackUnit string `json:"fallback_unit"`
	Database     string `json:"database"`
}

func buildRegistration(r Registration) RegistrationJSON {
	out := RegistrationJSON{
		ID:          r.ID,
		Title:       r.Title,
		Temperature: SourceJSON{Entity: r.Temperature, State: r.TemperatureState, Unit: r.TemperatureUnit},
		Humidity:    SourceJSON{Entity: r.Humidity, State: r.HumidityState},
		Available:   r.Available,
		Outcome:     string(r.Outcome),
		Refreshes:   r.Refreshes,
	}
	if !r.UpdatedAt.IsZero() {
		out.UpdatedAt = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if r.Available {
		h := entity.Round(r.Humidex, 2)
		out.Humidex = &h
		out.Comfort = r.Comfort.String()
		if !math.IsNaN(r.DewPoint) && !math.IsInf(r.DewPoint, 0) {
			d := entity.Round(r.DewPoint, 2)
			out.DewPoint = &d
		}
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	regs := make([]RegistrationJSON, 0, len(snap.Registrations))
	for _, r := range snap.Registrations {
		regs = append(regs, buildRegistration(r))
	}

	counts := make(map[string]int, len(logic.Outcomes))
	for _, o := range logic.Outcomes {
		counts[string(o)] = snap.Counts[o]
	}

	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Registrations: regs,
		Counts:        counts,
		Config: ConfigJSON{
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			StatePrefix:  snap.Config.StatePrefix,
			OutputPrefix: snap.Config.OutputPrefix,
			FallbackUnit: snap.Config.FallbackUnit,
			Database:     snap.Config.Database,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
