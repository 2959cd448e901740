// Package mqtt provides MQTT publishing and statestream ingestion with
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/humidex-sensor/internal/entity"
)

// Default topic prefixes.
const (
	DefaultStatePrefix     = "homeassistant"
	DefaultOutputPrefix    = "humidex"
	DefaultDiscoveryPrefix = "homeassistant"
)

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics holds the prefixes used to build topic names.
type Topics struct {
	// StatePrefix is the base topic of the upstream statestream.
	StatePrefix string
	// OutputPrefix is the base topic for derived entities and system events.
	OutputPrefix string
	// DiscoveryPrefix is the Home Assistant MQTT discovery prefix.
	DiscoveryPrefix string
}

// DefaultTopics returns the default prefixes.
func DefaultTopics() Topics {
	return Topics{
		StatePrefix:     DefaultStatePrefix,
		OutputPrefix:    DefaultOutputPrefix,
		DiscoveryPrefix: DefaultDiscoveryPrefix,
	}
}

// System is the topic for daemon lifecycle events.
func (t Topics) System() string {
	return t.OutputPrefix + "/system"
}

// State is the topic carrying an entity's JSON payload.
func (t Topics) State(objectID string) string {
	return t.OutputPrefix + "/" + objectID + "/state"
}

// Availability is the topic carrying "online" or "offline" for an entity.
func (t Topics) Availability(objectID string) string {
	return t.OutputPrefix + "/" + objectID + "/availability"
}

// Discovery is the Home Assistant discovery config topic of an entity.
func (t Topics) Discovery(objectID string) string {
	return t.DiscoveryPrefix + "/sensor/" + objectID + "/config"
}

// StatestreamFilters are the subscriptions needed to follow upstream entities.
func (t Topics) StatestreamFilters() []string {
	return []string{
		t.StatePrefix + "/+/+/" + attrState,
		t.StatePrefix + "/+/+/" + attrUnit,
	}
}

// Publisher publishes derived entities to MQTT.
type Publisher interface {
	// PublishEntity sends the state and availability of an entity.
	// Returns error if publishing fails (should not crash the process).
	PublishEntity(e entity.Entity) error

	// PublishDiscovery sends the retained discovery config for an entity.
	PublishDiscovery(e entity.Entity) error

	// ClearEntity removes retained state, availability and discovery config.
	ClearEntity(e entity.Entity) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillEvent is the last-will message the broker publishes if the daemon
// disappears without a clean shutdown.
func WillEvent(now time.Time) SystemEvent {
	return SystemEvent{Timestamp: now, Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT", Retained: true}
}

// AvailabilityPayload returns the availability message for an entity.
func AvailabilityPayload(e entity.Entity) []byte {
	if e.Available {
		return []byte(PayloadOnline)
	}
	return []byte(PayloadOffline)
}

// systemAvailabilityTemplate maps system events to availability: the entity
// goes offline on SHUTDOWN, including the broker-published will.
const systemAvailabilityTemplate = "{{ 'offline' if " +
	"(value_json.system is defined and value_json.system.event == 'SHUTDOWN') or " +
	"(value_json.status is defined and value_json.status.event == 'SHUTDOWN') " +
	"else 'online' }}"

// AvailabilityConfig is one entry of a discovery availability list.
type AvailabilityConfig struct {
	Topic         string `json:"topic"`
	ValueTemplate string `json:"value_template,omitempty"`
}

// DiscoveryConfig is the Home Assistant MQTT discovery payload for a sensor.
type DiscoveryConfig struct {
	Name                   string               `json:"name"`
	UniqueID               string               `json:"unique_id"`
	ObjectID               string               `json:"object_id"`
	StateTopic             string               `json:"state_topic"`
	ValueTemplate          string               `json:"value_template"`
	JSONAttributesTopic    string               `json:"json_attributes_topic"`
	JSONAttributesTemplate string               `json:"json_attributes_template"`
	Availability           []AvailabilityConfig `json:"availability"`
	AvailabilityMode       string               `json:"availability_mode"`
	Icon                   string               `json:"icon,omitempty"`
	DeviceClass            string               `json:"device_class"`
	StateClass             string               `json:"state_class,omitempty"`
	UnitOfMeasurement      string               `json:"unit_of_measurement,omitempty"`
	SuggestedPrecision     *int                 `json:"suggested_display_precision,omitempty"`
	Options                []string             `json:"options,omitempty"`
}

// FormatDiscovery builds the discovery payload for an entity.
func FormatDiscovery(t Topics, e entity.Entity) ([]byte, error) {
	cfg := DiscoveryConfig{
		Name:                   e.Name,
		UniqueID:               e.UniqueID,
		ObjectID:               e.ObjectID,
		StateTopic:             t.State(e.ObjectID),
		ValueTemplate:          "{{ value_json.state }}",
		JSONAttributesTopic:    t.State(e.ObjectID),
		JSONAttributesTemplate: "{{ value_json.attributes | tojson }}",
		Availability: []AvailabilityConfig{
			{Topic: t.Availability(e.ObjectID)},
			{Topic: t.System(), ValueTemplate: systemAvailabilityTemplate},
		},
		AvailabilityMode: "all",
		Icon:             e.Icon,
	}

	switch e.Kind {
	case entity.KindScore:
		precision := 1
		cfg.DeviceClass = "temperature"
		cfg.StateClass = "measurement"
		cfg.UnitOfMeasurement = e.Unit
		cfg.SuggestedPrecision = &precision
	case entity.KindComfort:
		cfg.DeviceClass = "enum"
		cfg.Options = e.Options
	default:
		return nil, fmt.Errorf("unknown entity kind %q", e.Kind)
	}

	return json.Marshal(cfg)
}

// Statestream attribute topics we follow.
const (
	attrState = "state"
	attrUnit  = "unit_of_measurement"
)

// ParseStatestreamTopic splits "<prefix>/<domain>/<object>/<attr>" into an
// entity id ("<domain>.<object>") and attribute name.
func ParseStatestreamTopic(prefix, topic string) (entityID, attr string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0] + "." + parts[1], parts[2], true
}

// decodeAttribute decodes a JSON-encoded statestream attribute value.
// Non-JSON payloads are used verbatim.
func decodeAttribute(payload []byte) string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(payload))
}
