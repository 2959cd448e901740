package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/humidex-sensor/internal/entity"
	"github.com/sweeney/humidex-sensor/internal/logic"
	"github.com/sweeney/humidex-sensor/internal/registry"
	"github.com/sweeney/humidex-sensor/internal/source"
)

var testEntry = registry.Entry{
	ID:          "ab-12",
	UniqueID:    "sensor.t|sensor.h",
	Title:       "Office",
	Temperature: "sensor.t",
	Humidity:    "sensor.h",
	Icon:        registry.DefaultIcon,
}

func testEntities(available bool) (entity.Entity, entity.Entity) {
	state := logic.Absent
	if available {
		state = logic.DerivedState{Humidex: 30.07627881278205, Comfort: logic.ComfortSomeDiscomfort, Available: true}
	}
	return entity.Build(entity.Inputs{Entry: testEntry, State: state})
}

func TestTopics(t *testing.T) {
	topics := DefaultTopics()

	tests := []struct {
		name, got, want string
	}{
		{"system", topics.System(), "humidex/system"},
		{"state", topics.State("ab12_humidex"), "humidex/ab12_humidex/state"},
		{"availability", topics.Availability("ab12_humidex"), "humidex/ab12_humidex/availability"},
		{"discovery", topics.Discovery("ab12_comfort"), "homeassistant/sensor/ab12_comfort/config"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s topic: got %s, want %s", tt.name, tt.got, tt.want)
		}
	}

	filters := topics.StatestreamFilters()
	if len(filters) != 2 || filters[0] != "homeassistant/+/+/state" || filters[1] != "homeassistant/+/+/unit_of_measurement" {
		t.Errorf("unexpected statestream filters: %v", filters)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 15, 30, 45, 0, loc),
		Event:     "STARTUP",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-03T10:30:45Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"system":{"event":"STARTUP","registrations":2}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestWillEvent(t *testing.T) {
	event := WillEvent(time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC))
	if !event.Retained {
		t.Error("will should be retained")
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestAvailabilityPayload(t *testing.T) {
	score, _ := testEntities(true)
	if got := string(AvailabilityPayload(score)); got != PayloadOnline {
		t.Errorf("available entity: got %s, want %s", got, PayloadOnline)
	}

	score, _ = testEntities(false)
	if got := string(AvailabilityPayload(score)); got != PayloadOffline {
		t.Errorf("unavailable entity: got %s, want %s", got, PayloadOffline)
	}
}

func TestFormatDiscoveryScore(t *testing.T) {
	score, _ := testEntities(true)
	payload, err := FormatDiscovery(DefaultTopics(), score)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var cfg DiscoveryConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if cfg.Name != "Office Humidex" {
		t.Errorf("name: got %s", cfg.Name)
	}
	if cfg.UniqueID != "ab-12_humidex" {
		t.Errorf("unique_id: got %s", cfg.UniqueID)
	}
	if cfg.StateTopic != "humidex/ab12_humidex/state" {
		t.Errorf("state_topic: got %s", cfg.StateTopic)
	}
	if cfg.AvailabilityMode != "all" {
		t.Errorf("availability_mode: got %s", cfg.AvailabilityMode)
	}
	if len(cfg.Availability) != 2 {
		t.Fatalf("expected 2 availability topics, got %+v", cfg.Availability)
	}
	if cfg.Availability[0].Topic != "humidex/ab12_humidex/availability" || cfg.Availability[0].ValueTemplate != "" {
		t.Errorf("entity availability: got %+v", cfg.Availability[0])
	}
	// The will on the system topic takes entities offline if the daemon dies.
	if cfg.Availability[1].Topic != "humidex/system" {
		t.Errorf("system availability topic: got %s", cfg.Availability[1].Topic)
	}
	if !strings.Contains(cfg.Availability[1].ValueTemplate, "'SHUTDOWN'") {
		t.Errorf("system availability template: got %s", cfg.Availability[1].ValueTemplate)
	}
	if cfg.DeviceClass != "temperature" || cfg.StateClass != "measurement" {
		t.Errorf("classes: got %s/%s", cfg.DeviceClass, cfg.StateClass)
	}
	if cfg.UnitOfMeasurement != "°C" {
		t.Errorf("unit: got %s", cfg.UnitOfMeasurement)
	}
	if cfg.SuggestedPrecision == nil || *cfg.SuggestedPrecision != 1 {
		t.Errorf("suggested precision: got %v", cfg.SuggestedPrecision)
	}
	if len(cfg.Options) != 0 {
		t.Errorf("score entity should not carry options, got %v", cfg.Options)
	}
}

func TestFormatDiscoveryComfort(t *testing.T) {
	_, comfort := testEntities(false)
	payload, err := FormatDiscovery(DefaultTopics(), comfort)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var cfg DiscoveryConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if cfg.DeviceClass != "enum" {
		t.Errorf("device_class: got %s", cfg.DeviceClass)
	}
	if cfg.UnitOfMeasurement != "" {
		t.Errorf("comfort entity should have no unit, got %s", cfg.UnitOfMeasurement)
	}
	if len(cfg.Options) != 6 || cfg.Options[0] != "no_significant_discomfort" || cfg.Options[5] != "heat_stroke_imminent" {
		t.Errorf("options: got %v", cfg.Options)
	}
}

func TestFormatDiscoveryUnknownKind(t *testing.T) {
	if _, err := FormatDiscovery(DefaultTopics(), entity.Entity{Kind: "bogus"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestParseStatestreamTopic(t *testing.T) {
	tests := []struct {
		topic  string
		id     string
		attr   string
		wantOK bool
	}{
		{"homeassistant/sensor/kitchen_temp/state", "sensor.kitchen_temp", "state", true},
		{"homeassistant/sensor/kitchen_temp/unit_of_measurement", "sensor.kitchen_temp", "unit_of_measurement", true},
		{"homeassistant/sensor/kitchen_temp/friendly_name", "sensor.kitchen_temp", "friendly_name", true},
		{"homeassistant/sensor/kitchen_temp", "", "", false},
		{"homeassistant/sensor//state", "", "", false},
		{"other/sensor/x/state", "", "", false},
		{"homeassistant/a/b/c/d", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, attr, ok := ParseStatestreamTopic("homeassistant", tt.topic)
			if ok != tt.wantOK || id != tt.id || attr != tt.attr {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)", id, attr, ok, tt.id, tt.attr, tt.wantOK)
			}
		})
	}
}

func TestHandleStatestream(t *testing.T) {
	store := source.NewStore()

	if got := HandleStatestream(store, "homeassistant", "homeassistant/sensor/t/state", []byte("86")); got != IngestState {
		t.Errorf("state message: got %s", got)
	}
	if got := HandleStatestream(store, "homeassistant", "homeassistant/sensor/t/unit_of_measurement", []byte(`"°F"`)); got != IngestUnit {
		t.Errorf("unit message: got %s", got)
	}
	if got := HandleStatestream(store, "homeassistant", "homeassistant/sensor/t/friendly_name", []byte(`"Temp"`)); got != IngestIgnored {
		t.Errorf("friendly_name message: got %s", got)
	}
	if got := HandleStatestream(store, "homeassistant", "elsewhere/sensor/t/state", []byte("1")); got != IngestIgnored {
		t.Errorf("foreign prefix: got %s", got)
	}

	r, ok := store.Get("sensor.t")
	if !ok {
		t.Fatal("expected sensor.t in store")
	}
	if r.State != "86" || r.Unit != "°F" {
		t.Errorf("unexpected reading: %+v", r)
	}
}

func TestHandleStatestreamUnquotedUnit(t *testing.T) {
	store := source.NewStore()
	HandleStatestream(store, "ha", "ha/sensor/h/unit_of_measurement", []byte(" % "))
	HandleStatestream(store, "ha", "ha/sensor/h/state", []byte("unavailable"))

	r, _ := store.Get("sensor.h")
	if r.Unit != "%" {
		t.Errorf("unit: got %q, want %%", r.Unit)
	}
	if r.Validity != logic.ValidityUnavailable {
		t.Errorf("validity: got %v", r.Validity)
	}
}

func TestHandleStatestreamEmptyStateRemoves(t *testing.T) {
	store := source.NewStore()
	HandleStatestream(store, "ha", "ha/sensor/t/state", []byte("21"))

	if got := HandleStatestream(store, "ha", "ha/sensor/t/state", nil); got != IngestRemoved {
		t.Errorf("empty state: got %s, want %s", got, IngestRemoved)
	}
	if _, ok := store.Get("sensor.t"); ok {
		t.Error("expected sensor.t to be removed")
	}
}

func TestFakePublisher(t *testing.T) {
	fake := NewFakePublisher()
	score, comfort := testEntities(true)

	if err := fake.PublishEntity(score); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fake.PublishEntity(comfort); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := fake.PublishDiscovery(score); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.Published()) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(fake.Published()))
	}
	if len(fake.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(fake.Payloads))
	}
	if len(fake.Discoveries) != 1 {
		t.Errorf("expected 1 discovery, got %d", len(fake.Discoveries))
	}

	last, ok := fake.Last("ab-12_comfort")
	if !ok || last.Token != "some_discomfort" {
		t.Errorf("Last: got %+v, %v", last, ok)
	}
	if _, ok := fake.Last("missing"); ok {
		t.Error("Last should report missing unique ids")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	fake := NewFakePublisher()
	fake.PublishError = errors.New("broker down")
	fake.PublishSystemError = errors.New("system down")

	score, _ := testEntities(true)
	if err := fake.PublishEntity(score); err == nil {
		t.Error("expected PublishEntity error")
	}
	if err := fake.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected PublishSystem error")
	}
	if len(fake.Entities) != 0 || len(fake.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	fake := NewFakePublisher()
	if err := fake.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.SystemEvents) != 1 || !fake.SystemEvents[0].Retained {
		t.Errorf("expected retained system event, got %+v", fake.SystemEvents)
	}
}

func TestFakePublisherReset(t *testing.T) {
	fake := NewFakePublisher()
	score, _ := testEntities(true)
	_ = fake.PublishEntity(score)
	_ = fake.ClearEntity(score)
	_ = fake.PublishSystem(SystemEvent{Event: "STARTUP"})
	_ = fake.Close()
	fake.Connected = true

	fake.Reset()

	if len(fake.Entities) != 0 || len(fake.Payloads) != 0 || len(fake.Cleared) != 0 {
		t.Error("expected recorded entities to be cleared")
	}
	if len(fake.SystemEvents) != 0 || len(fake.SystemPayloads) != 0 {
		t.Error("expected system events to be cleared")
	}
	if fake.Closed || fake.IsConnected() {
		t.Error("expected closed and connected to be reset")
	}

	// Reusable after reset
	if err := fake.PublishEntity(score); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Entities) != 1 {
		t.Errorf("expected 1 entity after reuse, got %d", len(fake.Entities))
	}
}
