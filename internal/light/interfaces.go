// Package light models controllable lights of varying capability and
// reconciles backend-reported, staged and persisted state into the single
// coherent view exposed to a protocol emulation layer.
package light

import (
	"context"
	"time"

	"github.com/huebridged/huebridged/internal/hass"
)

// Backend is the slice of the Home Assistant client this package consumes.
type Backend interface {
	// DeviceIDForEntity resolves the physical device owning an entity.
	// An empty id with nil error means the entity has no device entry.
	DeviceIDForEntity(ctx context.Context, entityID string) (string, error)
	// DeviceAttributes fetches registry metadata for a device.
	DeviceAttributes(ctx context.Context, deviceID string) (hass.DeviceAttributes, error)
	// EntityState fetches the current snapshot for an entity.
	EntityState(ctx context.Context, entityID string) (*hass.EntityState, error)
	// TurnOn and TurnOff dispatch light commands with a service payload.
	TurnOn(ctx context.Context, entityID string, data map[string]any) error
	TurnOff(ctx context.Context, entityID string, data map[string]any) error
}

// LightConfig is the stored configuration for one light.
type LightConfig struct {
	Name       string
	UniqueID   string
	Enabled    bool
	ThrottleMS int
	State      *State
}

// Store is the persisted-store collaborator. Exactly one persisted state
// exists per light; SetLightState must be a durable write-through.
type Store interface {
	EntityIDToLightID(entityID string) (string, error)
	LightConfig(lightID string) (LightConfig, error)
	SetLightState(lightID string, state *State) error
}

// Scheduler registers callbacks to run on a fixed interval.
type Scheduler interface {
	Add(name string, interval time.Duration, fn func(context.Context))
}
