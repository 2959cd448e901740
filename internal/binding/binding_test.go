package binding

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/humidex-sensor/internal/logic"
	"github.com/sweeney/humidex-sensor/internal/metrics"
	"github.com/sweeney/humidex-sensor/internal/mqtt"
	"github.com/sweeney/humidex-sensor/internal/registry"
	"github.com/sweeney/humidex-sensor/internal/source"
)

var testEntry = registry.Entry{
	ID:          "e1",
	UniqueID:    "sensor.t|sensor.h",
	Title:       "Living Room",
	Temperature: "sensor.t",
	Humidity:    "sensor.h",
	Icon:        registry.DefaultIcon,
}

type recordingObserver struct {
	mu      sync.Mutex
	results []Result
}

func (o *recordingObserver) Observe(r Result) {
	o.mu.Lock()
	o.results = append(o.results, r)
	o.mu.Unlock()
}

type harness struct {
	store   *source.Store
	pub     *mqtt.FakePublisher
	obs     *recordingObserver
	logs    *observer.ObservedLogs
	metrics *metrics.Metrics
	clock   *clockwork.FakeClock
	deps    Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		store:   source.NewStore(),
		pub:     mqtt.NewFakePublisher(),
		obs:     &recordingObserver{},
		logs:    logs,
		metrics: metrics.NewMetricsForTesting(),
		clock:   clockwork.NewFakeClockAt(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.deps = Deps{
		Engine:    logic.NewEngine(logic.UnitCelsius),
		Source:    h.store,
		Publisher: h.pub,
		Observer:  h.obs,
		Logger:    zap.New(core).Sugar(),
		Metrics:   h.metrics,
		Clock:     h.clock,
	}
	return h
}

func TestBindingCelsiusScenario(t *testing.T) {
	h := newHarness(t)
	h.store.Set("sensor.t", "25", "°C")
	h.store.Set("sensor.h", "60", "%")

	b := New(testEntry, h.deps)
	r := b.Start()
	defer b.Stop()

	require.Equal(t, logic.OutcomeAvailable, r.Outcome)
	assert.InDelta(t, 30.0763, r.State.Humidex, 0.001)
	assert.Equal(t, logic.ComfortSomeDiscomfort, r.State.Comfort)
	assert.InDelta(t, 16.684, r.DewPoint, 0.001)
	assert.Equal(t, h.clock.Now(), r.At)

	_, ok := h.pub.Last("e1_humidex")
	require.True(t, ok)

	_, ok = h.pub.Last("e1_comfort")
	require.True(t, ok)
	assert.Len(t, h.pub.Published(), 2)
}

func TestBindingFahrenheitScenario(t *testing.T) {
	h := newHarness(t)
	h.store.Set("sensor.t", "86", "°F")
	h.store.Set("sensor.h", "80", "%")

	b := New(testEntry, h.deps)
	r := b.Start()
	defer b.Stop()

	require.Equal(t, logic.OutcomeAvailable, r.Outcome)
	assert.InDelta(t, 43.658, r.State.Humidex, 0.001)
	assert.Equal(t, logic.ComfortAvoidExertion, r.State.Comfort)
}

func TestBindingUnavailableSource(t *testing.T) {
	h := newHarness(t)
	h.store.Set("sensor.t", "unavailable", "°C")
	h.store.Set("sensor.h", "60", "%")

	b := New(testEntry, h.deps)
	r := b.Start()
	defer b.Stop()

	assert.Equal(t, logic.OutcomeInputUnavailable, r.Outcome)
	assert.False(t, r.State.Available)

	score, _ := h.pub.Last("e1_humidex")
	comfort, _ := h.pub.Last("e1_comfort")
	assert.False(t, score.Available)
	assert.False(t, comfort.Available)
}

func TestBindingMissingSources(t *testing.T) {
	h := newHarness(t)
	b := New(testEntry, h.deps)
	r := b.Start()
	defer b.Stop()

	assert.Equal(t, logic.OutcomeInputUnavailable, r.Outcome)
	assert.Nil(t, r.Temperature)
	assert.Nil(t, r.Humidity)
}

func TestBindingReactsToChanges(t *testing.T) {
	h := newHarness(t)
	h.store.Set("sensor.t", "unknown", "°C")
	h.store.Set("sensor.h", "60", "%")

	b := New(testEntry, h.deps)
	b.Start()
	defer b.Stop()
	assert.False(t, b.State().State.Available)

	h.store.SetState("sensor.t", "25")
	got := b.State()
	require.True(t, got.State.Available)
	assert.InDelta(t, 30.0763, got.State.Humidex, 0.001)

	h.store.SetState("sensor.h", "40")
	h.store.SetState("sensor.t", "22")
	got = b.State()
	assert.InDelta(t, 22.3199, got.State.Humidex, 0.001)
	assert.Equal(t, logic.ComfortComfortable, got.State.Comfort)

	// Start + three changes
	assert.Equal(t, 4, got.Refreshes)
	assert.Len(t, h.obs.results, 4)

	// Unrelated entities do not trigger refreshes.
	h.store.SetState("sensor.other", "1")
	assert.Equal(t, 4, b.State().Refreshes)
}

func TestBindingUnitUnresolvedLogsDebug(t *testing.T) {
	h := newHarness(t)
	h.store.Set("sensor.t", "300", "K")
	h.store.Set("sensor.h", "50", "%")

	b := New(testEntry, h.deps)
	r := b.Start()
	defer b.Stop()

	assert.Equal(t, logic.OutcomeUnitUnresolved, r.Outcome)

	entries := h.logs.FilterMessage("temperature unit not supported").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "K", fields["unit"])
	assert.Equal(t, "sensor.t", fields["entity"])
}

func TestBindingComputeFaultLogsWarning(t *testing.T) {
	h := newHarness(t)
	h.store.Set("sensor.t", "-237.7", "°C")
	h.store.Set("sensor.h", "50", "%")

	b := New(testEntry, h.deps)
	r := b.Start()
	defer b.Stop()

	assert.Equal(t, logic.OutcomeComputeFault, r.Outcome)
	assert.False(t, r.State.Available)
	assert.Equal(t, 1, h.logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestBindingStopEndsUpdates(t *testing.T) {
	h := newHarness(t)
	h.store.Set("sensor.t", "25", "°C")
	h.store.Set("sensor.h", "60", "%")

	b := New(testEntry, h.deps)
	b.Start()
	b.Stop()
	b.Stop()

	h.store.SetState("sensor.t", "30")
	assert.Equal(t, 1, b.State().Refreshes)
	assert.Len(t, h.pub.Published(), 2)
}

func TestBindingStoppedIgnoresRefresh(t *testing.T) {
	h := newHarness(t)
	h.store.Set("sensor.t", "25", "°C")
	h.store.Set("sensor.h", "60", "%")

	b := New(testEntry, h.deps)
	b.Start()
	b.Stop()

	h.store.SetState("sensor.t", "36")
	r := b.Refresh()
	assert.Equal(t, 1, r.Refreshes)
	assert.Len(t, h.pub.Published(), 2)
	assert.Len(t, h.obs.results, 1)

	// No restart after Stop.
	b.Start()
	assert.Len(t, h.pub.Published(), 2)
}

func TestBindingPublishErrorIsLogged(t *testing.T) {
	h := newHarness(t)
	h.pub.PublishError = errors.New("broker down")
	h.store.Set("sensor.t", "25", "°C")
	h.store.Set("sensor.h", "60", "%")

	b := New(testEntry, h.deps)
	r := b.Start()
	defer b.Stop()

	assert.True(t, r.State.Available)
	assert.Equal(t, 2, h.logs.FilterMessage("publish entity failed").Len())
}

func TestBindingMetrics(t *testing.T) {
	h := newHarness(t)
	h.store.Set("sensor.t", "25", "°C")
	h.store.Set("sensor.h", "60", "%")

	b := New(testEntry, h.deps)
	b.Start()

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Refreshes.WithLabelValues("available")))
	assert.InDelta(t, 30.0763, testutil.ToFloat64(h.metrics.Humidex.WithLabelValues("e1")), 0.001)

	h.store.SetState("sensor.h", "abc")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Refreshes.WithLabelValues("input_unparseable")))
	assert.Equal(t, 0, testutil.CollectAndCount(h.metrics.Humidex))

	b.Stop()
}

func TestBindingConcurrentUpdates(t *testing.T) {
	h := newHarness(t)
	h.store.Set("sensor.t", "20", "°C")
	h.store.Set("sensor.h", "50", "%")

	b := New(testEntry, h.deps)
	b.Start()
	defer b.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			h.store.SetState("sensor.t", fmt.Sprintf("%d", 20+i%10))
		}(i)
		go func(i int) {
			defer wg.Done()
			h.store.SetState("sensor.h", fmt.Sprintf("%d", 40+i%10))
		}(i)
	}
	wg.Wait()

	// Whatever the interleaving, a final refresh reflects the final inputs.
	final := b.Refresh()
	temp, _ := h.store.Get("sensor.t")
	hum, _ := h.store.Get("sensor.h")
	tv, _ := logic.ParseState(temp.State)
	hv, _ := logic.ParseState(hum.State)
	assert.Equal(t, logic.Humidex(tv, hv), final.State.Humidex)
}
