// Package registry manages humidex registrations: pairs of a temperature and
// a humidity entity that together produce one set of derived entities.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultName is used when a registration has no display name.
	DefaultName = "Humidex"
	// DefaultIcon is shown on the comfort entity while it is unavailable.
	DefaultIcon = "mdi:gauge"
)

var (
	// ErrAlreadyConfigured is returned when the temperature/humidity pair is
	// already registered.
	ErrAlreadyConfigured = errors.New("already configured")
	// ErrMissingField is returned when a required field is empty.
	ErrMissingField = errors.New("missing required field")
	// ErrNotFound is returned when no registration matches.
	ErrNotFound = errors.New("registration not found")
)

// Request carries user input for a new or changed registration.
type Request struct {
	Name        string
	Temperature string
	Humidity    string
	Icon        string
}

// Entry is a stored registration.
type Entry struct {
	// ID is a random identifier, stable across reconfiguration.
	ID string
	// UniqueID identifies the source pair, see UniqueID.
	UniqueID    string
	Title       string
	Temperature string
	Humidity    string
	Icon        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UniqueID derives the deduplication key for a source pair.
func UniqueID(temperature, humidity string) string {
	return temperature + "|" + humidity
}

// Normalize validates a request and fills defaults. Entity ids are trimmed.
func (r Request) Normalize() (Request, error) {
	out := Request{
		Name:        strings.TrimSpace(r.Name),
		Temperature: strings.TrimSpace(r.Temperature),
		Humidity:    strings.TrimSpace(r.Humidity),
		Icon:        strings.TrimSpace(r.Icon),
	}

	if out.Temperature == "" {
		return Request{}, fmt.Errorf("temperature: %w", ErrMissingField)
	}
	if out.Humidity == "" {
		return Request{}, fmt.Errorf("humidity: %w", ErrMissingField)
	}
	if out.Name == "" {
		out.Name = DefaultName
	}
	if out.Icon == "" {
		out.Icon = DefaultIcon
	}
	return out, nil
}

// Legacy is the flat declaration accepted by the deprecated YAML
// sensor list.
type Legacy struct {
	Name        string `yaml:"name"`
	Temperature string `yaml:"temperature"`
	Humidity    string `yaml:"humidity"`
	Icon        string `yaml:"icon"`
}

// LegacyToRequest translates a legacy declaration into a registration request.
// It performs no validation; Manager.Register does.
func LegacyToRequest(l Legacy) Request {
	name := l.Name
	if name == "" {
		name = DefaultName
	}
	icon := l.Icon
	if icon == "" {
		icon = DefaultIcon
	}
	return Request{
		Name:        name,
		Temperature: l.Temperature,
		Humidity:    l.Humidity,
		Icon:        icon,
	}
}
