// Package status provides a thread-safe status tracker for the humidex daemon.
// It is read by the HTTP status page and by lifecycle events.
package status

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/humidex-sensor/internal/binding"
	"github.com/sweeney/humidex-sensor/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker       string
	HTTPAddr     string
	StatePrefix  string
	OutputPrefix string
	FallbackUnit string
	Database     string
}

// Registration is the latest derived state of one registration.
type Registration struct {
	ID          string
	Title       string
	Temperature string
	Humidity    string
	// TemperatureState and HumidityState are the raw source states, empty if missing.
	TemperatureState string
	TemperatureUnit  string
	HumidityState    string
	Available        bool
	Humidex          float64
	Comfort          logic.Comfort
	// DewPoint is NaN when unknown.
	DewPoint  float64
	Outcome   logic.Outcome
	UpdatedAt time.Time
	Refreshes int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Registrations []Registration
	Counts        map[logic.Outcome]int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Available returns how many registrations currently have a value.
func (s Snapshot) Available() int {
	n := 0
	for _, r := range s.Registrations {
		if r.Available {
			n++
		}
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	clock clockwork.Clock

	mu            sync.RWMutex
	startTime     time.Time
	config        Config
	mqttConnected bool
	regs          map[string]Registration
	counts        map[logic.Outcome]int
}

// NewTracker creates a Tracker. The start time is read from clock; a nil
// clock uses the real clock.
func NewTracker(clock clockwork.Clock, cfg Config) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		clock:     clock,
		startTime: clock.Now(),
		config:    cfg,
		regs:      make(map[string]Registration),
		counts:    make(map[logic.Outcome]int),
	}
}

// Observe records a refresh result. It implements binding.Observer.
func (t *Tracker) Observe(r binding.Result) {
	reg := Registration{
		ID:          r.Entry.ID,
		Title:       r.Entry.Title,
		Temperature: r.Entry.Temperature,
		Humidity:    r.Entry.Humidity,
		Available:   r.State.Available,
		Humidex:     r.State.Humidex,
		Comfort:     r.State.Comfort,
		DewPoint:    r.DewPoint,
		Outcome:     r.Outcome,
		UpdatedAt:   r.At,
		Refreshes:   r.Refreshes,
	}
	if !r.State.Available {
		reg.DewPoint = math.NaN()
	}
	if r.Temperature != nil {
		reg.TemperatureState = r.Temperature.State
		reg.TemperatureUnit = r.Temperature.Unit
	}
	if r.Humidity != nil {
		reg.HumidityState = r.Humidity.State
	}

	t.mu.Lock()
	t.regs[reg.ID] = reg
	t.counts[r.Outcome]++
	t.mu.Unlock()
}

// Retain drops registrations whose id is not listed.
func (t *Tracker) Retain(ids []string) {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	t.mu.Lock()
	for id := range t.regs {
		if _, ok := keep[id]; !ok {
			delete(t.regs, id)
		}
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.mqttConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state, registrations
// ordered by title then id. The Now field is read from the clock.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := Snapshot{
		Registrations: make([]Registration, 0, len(t.regs)),
		Counts:        make(map[logic.Outcome]int, len(t.counts)),
		StartTime:     t.startTime,
		MQTTConnected: t.mqttConnected,
		Config:        t.config,
	}
	for _, r := range t.regs {
		s.Registrations = append(s.Registrations, r)
	}
	for k, v := range t.counts {
		s.Counts[k] = v
	}
	t.mu.RUnlock()

	sort.Slice(s.Registrations, func(i, j int) bool {
		a, b := s.Registrations[i], s.Registrations[j]
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
	s.Now = t.clock.Now()
	return s
}
