package light

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/huebridged/huebridged/internal/errors"
	"github.com/huebridged/huebridged/internal/events"
)

// DefaultRefreshInterval is the cadence at which registered lights pull
// backend state.
const DefaultRefreshInterval = 5000 * time.Millisecond

// Registry is the device factory and process-wide cache. Devices are created
// lazily on first reference to an entity, seeded with one full refresh,
// registered for periodic refresh and then cached for the process lifetime.
// Nothing is ever evicted: the population is bounded by the number of
// controllable entities.
type Registry struct {
	logger          *slog.Logger
	backend         Backend
	store           Store
	sched           Scheduler
	bus             *events.Bus
	refreshInterval time.Duration

	mu      sync.Mutex
	devices map[string]*Device
}

// NewRegistry creates an empty registry. A zero refreshInterval selects
// DefaultRefreshInterval.
func NewRegistry(logger *slog.Logger, backend Backend, store Store, sched Scheduler,
	bus *events.Bus, refreshInterval time.Duration) *Registry {

	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	return &Registry{
		logger:          logger,
		backend:         backend,
		store:           store,
		sched:           sched,
		bus:             bus,
		refreshInterval: refreshInterval,
		devices:         make(map[string]*Device),
	}
}

// Get returns the device for entityID, constructing it on first reference.
// Construction infers the capability composition from the backend-reported
// supported color modes, resolves device metadata, performs one full refresh
// and schedules the periodic refresh. Repeated calls return the cached
// instance.
func (r *Registry) Get(ctx context.Context, entityID string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.devices[entityID]; ok {
		return d, nil
	}

	lightID, err := r.store.EntityIDToLightID(entityID)
	if err != nil {
		return nil, errors.WrapErrorf(err, "resolve light id for %s", entityID)
	}
	cfg, err := r.store.LightConfig(lightID)
	if err != nil {
		return nil, errors.WrapErrorf(err, "load light config %s", lightID)
	}

	snap, err := r.backend.EntityState(ctx, entityID)
	if err != nil {
		return nil, errors.BackendUnavailablef("initial state for %s: %w", entityID, err)
	}

	comp := InferComposition(snap.Attributes.SupportedColorModes)
	meta := resolveMetadata(ctx, r.backend, entityID, r.logger)

	d := newDevice(r.logger, r.backend, r.store, r.bus, entityID, lightID, cfg, comp, meta)
	if err := d.Refresh(ctx, true); err != nil {
		return nil, err
	}

	r.sched.Add("light-refresh:"+entityID, r.refreshInterval, func(ctx context.Context) {
		if err := d.Refresh(ctx, true); err != nil {
			r.logger.Warn("light: periodic refresh failed", "entity_id", entityID, "error", err)
		}
	})

	r.devices[entityID] = d
	r.logger.Info("light: registered",
		slog.String("entity_id", entityID),
		slog.String("light_id", lightID),
		slog.String("kind", comp.Kind()),
	)
	if r.bus != nil {
		r.bus.Publish(events.NewEvent(events.LightRegistered, entityID))
	}
	return d, nil
}

// Lookup returns the cached device for entityID without constructing one.
func (r *Registry) Lookup(entityID string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[entityID]
	return d, ok
}

// Devices returns a snapshot of all registered devices.
func (r *Registry) Devices() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}
