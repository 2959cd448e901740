// Package source holds the latest known state of upstream sensor entities.
// The MQTT statestream subscriber feeds a Store; bindings read from it and
// subscribe to its change notifications. Tests drive a Store directly as a
// fake event source.
package source

import (
	"sync"

	"github.com/sweeney/humidex-sensor/internal/logic"
)

// PairGetter returns two readings taken as one consistent snapshot.
type PairGetter interface {
	GetPair(a, b string) (ra, rb *logic.Reading)
}

// ChangeEvent describes a change to one entity.
type ChangeEvent struct {
	EntityID string
	Old      *logic.Reading
	New      *logic.Reading
}

// Handler receives change events.
type Handler func(ChangeEvent)

// Subscriber delivers change events for a set of entities.
type Subscriber interface {
	// OnChange registers handler for changes to any of entityIDs.
	// The returned function removes the subscription.
	OnChange(entityIDs []string, handler Handler) (unsubscribe func())
}

type entity struct {
	state    string
	unit     string
	hasState bool
}

type subscription struct {
	id      int
	ids     map[string]struct{}
	handler Handler
}

// Store is a thread-safe registry of entity readings.
// Handlers are invoked after the lock is released, in subscription order,
// so a handler may read from the store.
type Store struct {
	mu       sync.RWMutex
	entities map[string]*entity
	subs     []subscription
	nextID   int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{entities: make(map[string]*entity)}
}

// Get returns the reading for entityID. An entity whose unit arrived before
// any state is reported as unknown.
func (s *Store) Get(entityID string) (logic.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(entityID)
}

// GetPair reads both entities under a single lock. Missing entities are nil.
func (s *Store) GetPair(a, b string) (*logic.Reading, *logic.Reading) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ra, rb *logic.Reading
	if r, ok := s.getLocked(a); ok {
		ra = &r
	}
	if r, ok := s.getLocked(b); ok {
		rb = &r
	}
	return ra, rb
}

func (s *Store) getLocked(entityID string) (logic.Reading, bool) {
	e, ok := s.entities[entityID]
	if !ok {
		return logic.Reading{}, false
	}
	if !e.hasState {
		return logic.Reading{State: logic.StateUnknown, Unit: e.unit, Validity: logic.ValidityUnknown}, true
	}
	return logic.NewReading(e.state, e.unit), true
}

// Set replaces both the state and the unit of an entity.
func (s *Store) Set(entityID, state, unit string) {
	s.update(entityID, func(e *entity) {
		e.state = state
		e.hasState = true
		e.unit = unit
	})
}

// SetState updates the state, keeping the last known unit.
func (s *Store) SetState(entityID, state string) {
	s.update(entityID, func(e *entity) {
		e.state = state
		e.hasState = true
	})
}

// SetUnit updates the unit_of_measurement attribute.
func (s *Store) SetUnit(entityID, unit string) {
	s.update(entityID, func(e *entity) {
		e.unit = unit
	})
}

// Remove forgets an entity. Subscribers see New == nil.
func (s *Store) Remove(entityID string) {
	s.mu.Lock()
	old, ok := s.getLocked(entityID)
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.entities, entityID)
	handlers := s.handlersLocked(entityID)
	s.mu.Unlock()

	dispatch(handlers, ChangeEvent{EntityID: entityID, Old: &old})
}

// OnChange implements Subscriber.
func (s *Store) OnChange(entityIDs []string, handler Handler) func() {
	ids := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		ids[id] = struct{}{}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, ids: ids, handler: handler})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) update(entityID string, apply func(*entity)) {
	s.mu.Lock()
	var old *logic.Reading
	if r, ok := s.getLocked(entityID); ok {
		old = &r
	}

	e, ok := s.entities[entityID]
	if !ok {
		e = &entity{}
		s.entities[entityID] = e
	}
	apply(e)

	cur, _ := s.getLocked(entityID)
	if old != nil && *old == cur {
		s.mu.Unlock()
		return
	}
	handlers := s.handlersLocked(entityID)
	s.mu.Unlock()

	dispatch(handlers, ChangeEvent{EntityID: entityID, Old: old, New: &cur})
}

func (s *Store) handlersLocked(entityID string) []Handler {
	var out []Handler
	for _, sub := range s.subs {
		if _, ok := sub.ids[entityID]; ok {
			out = append(out, sub.handler)
		}
	}
	return out
}

func dispatch(handlers []Handler, ev ChangeEvent) {
	for _, h := range handlers {
		h(ev)
	}
}
