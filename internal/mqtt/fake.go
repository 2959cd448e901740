package mqtt

import (
	"sync"

	"github.com/sweeney/humidex-sensor/internal/entity"
)

// FakePublisher records published entities for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Entities contains all entity states that were published.
	Entities []entity.Entity

	// Payloads contains the JSON payloads that were published for entities.
	Payloads [][]byte

	// Discoveries contains all entities whose discovery config was published.
	Discoveries []entity.Entity

	// Cleared contains all entities that were cleared.
	Cleared []entity.Entity

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishEntity.
	PublishError error

	// PublishDiscoveryError, if set, will be returned by PublishDiscovery.
	PublishDiscoveryError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishEntity records the entity.
func (f *FakePublisher) PublishEntity(e entity.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := entity.Encode(e)
	if err != nil {
		return err
	}
	f.Entities = append(f.Entities, e)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishDiscovery records the entity whose config was announced.
func (f *FakePublisher) PublishDiscovery(e entity.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishDiscoveryError != nil {
		return f.PublishDiscoveryError
	}
	f.Discoveries = append(f.Discoveries, e)
	return nil
}

// ClearEntity records the cleared entity.
func (f *FakePublisher) ClearEntity(e entity.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Cleared = append(f.Cleared, e)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.Connected
}

// Published returns a copy of the recorded entities.
func (f *FakePublisher) Published() []entity.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]entity.Entity(nil), f.Entities...)
}

// Last returns the most recently published entity of the given unique id.
func (f *FakePublisher) Last(uniqueID string) (entity.Entity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.Entities) - 1; i >= 0; i-- {
		if f.Entities[i].UniqueID == uniqueID {
			return f.Entities[i], true
		}
	}
	return entity.Entity{}, false
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Entities = nil
	f.Payloads = nil
	f.Discoveries = nil
	f.Cleared = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishDiscoveryError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
