// Package binding keeps one registration's derived entities in step with its
// source entities.
//
// A Binding subscribes to both sources, recomputes on any change and
// publishes the score and comfort entities. Refreshes of one binding are
// serialized so published state always reflects a consistent snapshot.
package binding

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sweeney/humidex-sensor/internal/entity"
	"github.com/sweeney/humidex-sensor/internal/logic"
	"github.com/sweeney/humidex-sensor/internal/metrics"
	"github.com/sweeney/humidex-sensor/internal/registry"
	"github.com/sweeney/humidex-sensor/internal/source"
)

// Publisher receives derived entities.
type Publisher interface {
	PublishEntity(e entity.Entity) error
}

// Source is the read and subscribe side of the entity store.
type Source interface {
	source.PairGetter
	source.Subscriber
}

// Observer is notified after every refresh.
type Observer interface {
	Observe(r Result)
}

// Result is the outcome of one refresh.
type Result struct {
	Entry    registry.Entry
	State    logic.DerivedState
	Outcome  logic.Outcome
	DewPoint float64
	// Temperature and Humidity are the readings used, nil if missing.
	Temperature *logic.Reading
	Humidity    *logic.Reading
	At          time.Time
	// Refreshes counts refreshes since Start.
	Refreshes int
}

// Entities returns the published entities for this result.
func (r Result) Entities() (score, comfort entity.Entity) {
	return entity.Build(entity.Inputs{
		Entry:    r.Entry,
		State:    r.State,
		DewPoint: r.DewPoint,
		Humidity: r.Humidity,
	})
}

// Deps are the collaborators shared by all bindings.
type Deps struct {
	Engine    *logic.Engine
	Source    Source
	Publisher Publisher
	Observer  Observer
	Logger    *zap.SugaredLogger
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
}

// Binding derives humidex entities for one registration.
type Binding struct {
	entry registry.Entry
	deps  Deps

	mu          sync.Mutex
	last        Result
	unsubscribe func()
	stopped     bool
}

// New creates a Binding. It does nothing until Start is called.
func New(entry registry.Entry, deps Deps) *Binding {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetricsForTesting()
	}
	return &Binding{
		entry: entry,
		deps:  deps,
		last:  Result{Entry: entry, State: logic.Absent, Outcome: logic.OutcomeInputUnavailable, DewPoint: nanDew},
	}
}

var nanDew = math.NaN()

// Entry returns the registration this binding serves.
func (b *Binding) Entry() registry.Entry {
	return b.entry
}

// Start subscribes to both sources and performs the initial refresh.
// A stopped binding cannot be restarted.
func (b *Binding) Start() Result {
	b.mu.Lock()
	if b.stopped {
		defer b.mu.Unlock()
		return b.last
	}
	if b.unsubscribe == nil {
		ids := []string{b.entry.Temperature, b.entry.Humidity}
		b.unsubscribe = b.deps.Source.OnChange(ids, func(source.ChangeEvent) {
			b.Refresh()
		})
	}
	b.mu.Unlock()

	return b.Refresh()
}

// Stop removes the source subscriptions. Entities are left as last published.
// Change events already in flight are dropped once Stop returns.
func (b *Binding) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	b.deps.Metrics.Humidex.DeleteLabelValues(b.entry.ID)
}

// Refresh recomputes the derived state from the current source readings and
// publishes both entities. Publish failures are logged, never returned.
// After Stop it returns the last result without publishing.
func (b *Binding) Refresh() Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return b.last
	}

	temp, humidity := b.deps.Source.GetPair(b.entry.Temperature, b.entry.Humidity)
	state, outcome := b.deps.Engine.Refresh(temp, humidity)

	r := Result{
		Entry:       b.entry,
		State:       state,
		Outcome:     outcome,
		DewPoint:    nanDew,
		Temperature: temp,
		Humidity:    humidity,
		At:          b.deps.Clock.Now(),
		Refreshes:   b.last.Refreshes + 1,
	}
	if state.Available {
		r.DewPoint = b.dewPoint(temp, humidity)
	}

	b.log(r)
	b.record(r)
	b.publish(r)

	b.last = r
	if b.deps.Observer != nil {
		b.deps.Observer.Observe(r)
	}
	return r
}

// State returns the result of the most recent refresh.
func (b *Binding) State() Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func (b *Binding) dewPoint(temp, humidity *logic.Reading) float64 {
	t, ok := logic.ParseState(temp.State)
	if !ok {
		return nanDew
	}
	tempC, ok := logic.Normalize(t, temp.Unit, b.deps.Engine.FallbackUnit())
	if !ok {
		return nanDew
	}
	h, ok := logic.ParseState(humidity.State)
	if !ok {
		return nanDew
	}
	return logic.DewPoint(tempC, h)
}

func (b *Binding) log(r Result) {
	l := b.deps.Logger
	switch r.Outcome {
	case logic.OutcomeAvailable:
		l.Debugw("humidex updated",
			"id", b.entry.ID, "humidex", r.State.Humidex, "comfort", r.State.Comfort.String())
	case logic.OutcomeUnitUnresolved:
		l.Debugw("temperature unit not supported",
			"id", b.entry.ID, "entity", b.entry.Temperature, "unit", r.Temperature.Unit)
	case logic.OutcomeComputeFault:
		l.Warnw("humidex computation failed",
			"id", b.entry.ID, "temperature", r.Temperature.State, "humidity", r.Humidity.State)
	case logic.OutcomeInputUnparseable:
		l.Debugw("source state is not numeric", "id", b.entry.ID)
	default:
		l.Debugw("source unavailable", "id", b.entry.ID)
	}
}

func (b *Binding) record(r Result) {
	m := b.deps.Metrics
	m.Refreshes.WithLabelValues(string(r.Outcome)).Inc()
	if r.State.Available {
		m.Humidex.WithLabelValues(b.entry.ID).Set(r.State.Humidex)
	} else {
		m.Humidex.DeleteLabelValues(b.entry.ID)
	}
}

func (b *Binding) publish(r Result) {
	if b.deps.Publisher == nil {
		return
	}
	score, comfort := r.Entities()
	for _, e := range []entity.Entity{score, comfort} {
		if err := b.deps.Publisher.PublishEntity(e); err != nil {
			b.deps.Logger.Errorw("publish entity failed", "unique_id", e.UniqueID, "error", err)
		}
	}
}
