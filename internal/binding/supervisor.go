package binding

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/humidex-sensor/internal/entity"
	"github.com/sweeney/humidex-sensor/internal/logic"
	"github.com/sweeney/humidex-sensor/internal/metrics"
	"github.com/sweeney/humidex-sensor/internal/registry"
)

// Announcer publishes entities and manages their discovery configs.
type Announcer interface {
	Publisher
	PublishDiscovery(e entity.Entity) error
	ClearEntity(e entity.Entity) error
}

// SyncStats reports what a Sync changed.
type SyncStats struct {
	Added   int
	Updated int
	Removed int
}

// Changed reports whether Sync touched any binding.
func (s SyncStats) Changed() bool {
	return s.Added+s.Updated+s.Removed > 0
}

// Supervisor owns the running bindings, one per registration.
type Supervisor struct {
	deps      Deps
	announcer Announcer

	mu       sync.Mutex
	bindings map[string]*Binding
}

// NewSupervisor creates a Supervisor publishing through announcer.
func NewSupervisor(announcer Announcer, deps Deps) *Supervisor {
	deps.Publisher = announcer
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetricsForTesting()
	}
	return &Supervisor{
		deps:      deps,
		announcer: announcer,
		bindings:  make(map[string]*Binding),
	}
}

// Sync makes the running bindings match entries. New registrations are
// announced and started, changed ones restarted, missing ones stopped and
// cleared.
func (s *Supervisor) Sync(entries []registry.Entry) SyncStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats SyncStats
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.ID] = struct{}{}

		existing, ok := s.bindings[e.ID]
		switch {
		case !ok:
			s.startLocked(e)
			stats.Added++
		case !sameEntry(existing.Entry(), e):
			existing.Stop()
			s.startLocked(e)
			stats.Updated++
		}
	}

	for id, b := range s.bindings {
		if _, ok := seen[id]; ok {
			continue
		}
		s.removeLocked(b)
		stats.Removed++
	}

	s.deps.Metrics.Registrations.Set(float64(len(s.bindings)))
	if stats.Changed() {
		s.deps.Logger.Infow("bindings synced",
			"added", stats.Added, "updated", stats.Updated, "removed", stats.Removed, "active", len(s.bindings))
	}
	return stats
}

func (s *Supervisor) startLocked(e registry.Entry) {
	b := New(e, s.deps)
	s.bindings[e.ID] = b

	score, comfort := entity.Build(entity.Inputs{Entry: e, State: logic.Absent})
	for _, ent := range []entity.Entity{score, comfort} {
		if err := s.announcer.PublishDiscovery(ent); err != nil {
			s.deps.Logger.Errorw("publish discovery failed", "unique_id", ent.UniqueID, "error", err)
		}
	}

	b.Start()
}

func (s *Supervisor) removeLocked(b *Binding) {
	b.Stop()
	delete(s.bindings, b.Entry().ID)

	score, comfort := entity.Build(entity.Inputs{Entry: b.Entry(), State: logic.Absent})
	for _, ent := range []entity.Entity{score, comfort} {
		if err := s.announcer.ClearEntity(ent); err != nil {
			s.deps.Logger.Errorw("clear entity failed", "unique_id", ent.UniqueID, "error", err)
		}
	}
}

// Get returns the binding of a registration.
func (s *Supervisor) Get(id string) (*Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[id]
	return b, ok
}

// Results returns the latest result of every binding, ordered by title then id.
func (s *Supervisor) Results() []Result {
	s.mu.Lock()
	bindings := make([]*Binding, 0, len(s.bindings))
	for _, b := range s.bindings {
		bindings = append(bindings, b)
	}
	s.mu.Unlock()

	results := make([]Result, 0, len(bindings))
	for _, b := range bindings {
		results = append(results, b.State())
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Entry.Title != results[j].Entry.Title {
			return results[i].Entry.Title < results[j].Entry.Title
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})
	return results
}

// Len returns the number of running bindings.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bindings)
}

// StopAll stops every binding and publishes its entities as unavailable.
// Discovery configs stay retained so the entities survive a restart.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.bindings {
		b.Stop()
		delete(s.bindings, id)

		score, comfort := entity.Build(entity.Inputs{Entry: b.Entry(), State: logic.Absent})
		for _, ent := range []entity.Entity{score, comfort} {
			if err := s.announcer.PublishEntity(ent); err != nil {
				s.deps.Logger.Errorw("publish offline failed", "unique_id", ent.UniqueID, "error", err)
			}
		}
	}
	s.deps.Metrics.Registrations.Set(0)
}

func sameEntry(a, b registry.Entry) bool {
	return a.ID == b.ID &&
		a.UniqueID == b.UniqueID &&
		a.Title == b.Title &&
		a.Temperature == b.Temperature &&
		a.Humidity == b.Humidity &&
		a.Icon == b.Icon &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}
