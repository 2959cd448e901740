package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Manager applies registration rules on top of a Repository.
type Manager struct {
	mu     sync.Mutex
	repo   Repository
	clock  clockwork.Clock
	logger *zap.SugaredLogger
	newID  func() string
}

// NewManager creates a Manager. A nil clock uses the real clock.
func NewManager(repo Repository, clock clockwork.Clock, logger *zap.SugaredLogger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		repo:   repo,
		clock:  clock,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Register validates req and stores a new registration.
// A pair that is already registered is rejected with ErrAlreadyConfigured.
func (m *Manager) Register(ctx context.Context, req Request) (Entry, error) {
	req, err := req.Normalize()
	if err != nil {
		return Entry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	uid := UniqueID(req.Temperature, req.Humidity)
	if _, err := m.repo.GetByUniqueID(ctx, uid); err == nil {
		return Entry{}, fmt.Errorf("%s: %w", uid, ErrAlreadyConfigured)
	} else if !errors.Is(err, ErrNotFound) {
		return Entry{}, err
	}

	now := m.clock.Now().UTC()
	e := Entry{
		ID:          m.newID(),
		UniqueID:    uid,
		Title:       req.Name,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Icon:        req.Icon,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.repo.Insert(ctx, e); err != nil {
		if errors.Is(err, ErrAlreadyConfigured) {
			return Entry{}, fmt.Errorf("%s: %w", uid, ErrAlreadyConfigured)
		}
		return Entry{}, err
	}

	m.logger.Infow("registration added", "id", e.ID, "unique_id", uid, "title", e.Title)
	return e, nil
}

// Reconfigure changes the title or icon of an existing registration. The
// source pair is fixed: a request naming a different pair fails with
// ErrAlreadyConfigured.
func (m *Manager) Reconfigure(ctx context.Context, id string, req Request) (Entry, error) {
	req, err := req.Normalize()
	if err != nil {
		return Entry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.repo.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}

	uid := UniqueID(req.Temperature, req.Humidity)
	if uid != e.UniqueID {
		return Entry{}, fmt.Errorf("%s: %w", uid, ErrAlreadyConfigured)
	}

	e.Title = req.Name
	e.Icon = req.Icon
	e.UpdatedAt = m.clock.Now().UTC()

	if err := m.repo.Update(ctx, e); err != nil {
		return Entry{}, err
	}

	m.logger.Infow("registration reconfigured", "id", e.ID, "unique_id", uid, "title", e.Title)
	return e, nil
}

// Remove deletes a registration.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Infow("registration removed", "id", id)
	return nil
}

// Get returns one registration.
func (m *Manager) Get(ctx context.Context, id string) (Entry, error) {
	return m.repo.Get(ctx, id)
}

// List returns all registrations.
func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	return m.repo.List(ctx)
}

// ImportLegacy registers each legacy declaration once. Pairs that are already
// registered are skipped. It returns the newly created entries.
func (m *Manager) ImportLegacy(ctx context.Context, legacy []Legacy) ([]Entry, error) {
	if len(legacy) == 0 {
		return nil, nil
	}

	m.logger.Warnw("legacy_sensors in the configuration file is deprecated and will be removed in a future release; "+
		"entries are imported as registrations", "count", len(legacy))

	var created []Entry
	for _, l := range legacy {
		e, err := m.Register(ctx, LegacyToRequest(l))
		switch {
		case errors.Is(err, ErrAlreadyConfigured):
			m.logger.Infow("legacy sensor already registered, skipping",
				"temperature", l.Temperature, "humidity", l.Humidity)
		case err != nil:
			return created, fmt.Errorf("import legacy sensor %q: %w", l.Name, err)
		default:
			created = append(created, e)
		}
	}
	return created, nil
}
