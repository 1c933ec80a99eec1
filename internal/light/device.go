package light

import (
	"context"
	"log/slog"
	"sync"

	"github.com/huebridged/huebridged/internal/errors"
	"github.com/huebridged/huebridged/internal/events"
	"github.com/huebridged/huebridged/internal/hass"
	"github.com/huebridged/huebridged/internal/metrics"
)

// NoHandle asks a write operation to stage a fresh control state.
const NoHandle = -1

// DefaultTransitionSeconds is the transition applied to staged commands that
// never set one explicitly.
const DefaultTransitionSeconds = 0.4

// Device is one controllable light. It owns three state slots that are never
// the same object: the backend snapshot (overwritten wholesale on refresh),
// the persisted last-known-good state (rewritten on every reconciliation) and
// zero or more staged control states keyed by handle.
//
// All operations are serialized by the device mutex, so control-state and
// persisted-state mutations are atomic with respect to each other; a commit
// and a periodic refresh never interleave mid-mutation.
type Device struct {
	logger  *slog.Logger
	backend Backend
	store   Store
	bus     *events.Bus

	entityID string
	lightID  string
	name     string
	uniqueID string
	enabled  bool

	comp  Composition
	hooks []refreshHook
	meta  Metadata

	throttleMS        int
	defaultTransition float64
	gate              *throttleGate

	mu           sync.Mutex
	snapshot     *hass.EntityState
	backendState *State
	persisted    *State
	control      map[int]*State
}

func newDevice(logger *slog.Logger, backend Backend, store Store, bus *events.Bus,
	entityID, lightID string, cfg LightConfig, comp Composition, meta Metadata) *Device {

	// A light may not transition faster than its throttle allows, so the
	// default transition stretches to match.
	defaultTransition := DefaultTransitionSeconds
	if t := float64(cfg.ThrottleMS) / 1000; t > defaultTransition {
		defaultTransition = t
	}

	return &Device{
		logger:            logger,
		backend:           backend,
		store:             store,
		bus:               bus,
		entityID:          entityID,
		lightID:           lightID,
		name:              cfg.Name,
		uniqueID:          cfg.UniqueID,
		enabled:           cfg.Enabled,
		comp:              comp,
		hooks:             refreshHooksFor(comp),
		meta:              meta,
		throttleMS:        cfg.ThrottleMS,
		defaultTransition: defaultTransition,
		gate:              newThrottleGate(cfg.ThrottleMS),
		persisted:         cfg.State.Clone(),
		control:           make(map[int]*State),
	}
}

// --- control-state store ---

func (d *Device) nextHandleLocked() int {
	next := 0
	for h := range d.control {
		if h >= next {
			next = h + 1
		}
	}
	return next
}

// stageLocked returns the control state for handle, or stages a fresh one
// seeded from the persisted power state and default transition. A handle that
// no longer names an entry is stale: a new one is allocated instead.
func (d *Device) stageLocked(handle int) (int, *State) {
	if handle >= 0 {
		if cs, ok := d.control[handle]; ok {
			return handle, cs
		}
		d.logger.Warn("light: stale control handle, staging a new one",
			"entity_id", d.entityID, "handle", handle)
	}

	h := d.nextHandleLocked()
	seed := &State{TransitionSeconds: ptr(d.defaultTransition)}
	if p := d.persistedLocked(); p.On != nil {
		seed.On = cloneField(p.On)
	} else {
		seed.On = ptr(false)
	}
	d.control[h] = seed
	return h, seed
}

// Stage obtains-or-creates a control state and returns its handle. Pass
// NoHandle to allocate a fresh one.
func (d *Device) Stage(handle int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, _ := d.stageLocked(handle)
	return h
}

// --- write operations ---
// Each stages (or reuses) a control state, mutates only its own fields and
// returns the handle so callers can chain further writes before committing.

func (d *Device) SetPowerState(on bool, handle int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, cs := d.stageLocked(handle)
	cs.On = ptr(on)
	return h, nil
}

func (d *Device) SetTransitionMs(transitionMS float64, handle int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setTransitionMsLocked(transitionMS, handle), nil
}

func (d *Device) setTransitionMsLocked(transitionMS float64, handle int) int {
	// A command may not request a faster cadence than the throttle permits.
	if transitionMS < float64(d.throttleMS) {
		transitionMS = float64(d.throttleMS)
	}
	h, cs := d.stageLocked(handle)
	cs.TransitionSeconds = ptr(transitionMS / 1000)
	return h
}

func (d *Device) SetTransitionSeconds(transitionSeconds float64, handle int) (int, error) {
	return d.SetTransitionMs(transitionSeconds*1000, handle)
}

func (d *Device) SetBrightness(brightness int, handle int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.comp.Brightness {
		return NoHandle, errors.InvalidInputf("light %s does not support brightness", d.entityID)
	}
	h, cs := d.stageLocked(handle)
	cs.Brightness = ptr(clampInt(brightness, 1, 255))
	return h, nil
}

func (d *Device) SetColorTemperature(mireds int, handle int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.comp.ColorTemp {
		return NoHandle, errors.InvalidInputf("light %s does not support color temperature", d.entityID)
	}
	return d.setColorTemperatureLocked(mireds, handle), nil
}

func (d *Device) setColorTemperatureLocked(mireds int, handle int) int {
	h, cs := d.stageLocked(handle)
	cs.ColorTemp = ptr(mireds)
	cs.ColorMode = ptr(ColorModeColorTemp)
	return h
}

func (d *Device) SetHueSaturation(hue, sat int, handle int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.comp.RGB {
		return NoHandle, errors.InvalidInputf("light %s does not support color", d.entityID)
	}
	return d.setHueSaturationLocked(hue, sat, handle), nil
}

func (d *Device) setHueSaturationLocked(hue, sat int, handle int) int {
	h, cs := d.stageLocked(handle)
	cs.HueSat = &[2]int{hue, sat}
	cs.ColorMode = ptr(ColorModeHS)
	return h
}

func (d *Device) SetXY(x, y float64, handle int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.comp.RGB {
		return NoHandle, errors.InvalidInputf("light %s does not support color", d.entityID)
	}
	h, cs := d.stageLocked(handle)
	cs.XY = &[2]float64{x, y}
	cs.ColorMode = ptr(ColorModeXY)
	return h, nil
}

func (d *Device) SetRGB(r, g, b int, handle int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.comp.RGB {
		return NoHandle, errors.InvalidInputf("light %s does not support color", d.entityID)
	}
	h, cs := d.stageLocked(handle)
	cs.RGB = &[3]int{r, g, b}
	cs.ColorMode = ptr(ColorModeRGB)
	return h, nil
}

func (d *Device) SetEffect(effect string, handle int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.comp.RGB {
		return NoHandle, errors.InvalidInputf("light %s does not support effects", d.entityID)
	}
	h, cs := d.stageLocked(handle)
	cs.Effect = ptr(effect)
	return h, nil
}

// SetFlash stages a flash command. The backend requires a non-empty color
// target alongside a flash, so color-capable compositions re-assert their
// current color: temperature lights their mireds, color lights their
// hue/saturation. Lights with both delegate on the current color mode.
func (d *Device) SetFlash(flash string, handle int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.comp.Brightness {
		return NoHandle, errors.InvalidInputf("light %s does not support flash", d.entityID)
	}

	switch {
	case d.comp.ColorTemp && d.comp.RGB:
		if d.colorModeLocked() == ColorModeColorTemp {
			return d.flashColorTempLocked(flash, handle), nil
		}
		return d.flashRGBLocked(flash, handle), nil
	case d.comp.ColorTemp:
		return d.flashColorTempLocked(flash, handle), nil
	case d.comp.RGB:
		return d.flashRGBLocked(flash, handle), nil
	default:
		h, cs := d.stageLocked(handle)
		cs.Flash = ptr(flash)
		return h, nil
	}
}

func (d *Device) flashColorTempLocked(flash string, handle int) int {
	h, cs := d.stageLocked(handle)
	cs.Flash = ptr(flash)
	d.setColorTemperatureLocked(d.colorTempLocked(), h)
	return h
}

func (d *Device) flashRGBLocked(flash string, handle int) int {
	h, cs := d.stageLocked(handle)
	cs.Flash = ptr(flash)
	hue, sat := d.hueSatLocked()
	d.setHueSaturationLocked(hue, sat, h)
	return h
}

// --- refresh and commit ---

// Refresh pulls a fresh backend snapshot through the capability hooks and
// reconciles it into persisted state. Disabled lights are skipped once they
// have been seeded. A full refresh re-seeds the base fields; a partial one
// only overlays capability fields onto the existing backend state.
func (d *Device) Refresh(ctx context.Context, full bool) error {
	d.mu.Lock()
	wasReachable := d.reachableLocked()
	refreshed, err := d.refreshLocked(ctx, full)
	nowReachable := d.reachableLocked()
	d.mu.Unlock()

	if err == nil && refreshed && d.bus != nil {
		d.bus.Publish(events.NewEvent(events.LightStateChanged, d.entityID))
		if wasReachable && !nowReachable {
			d.bus.Publish(events.NewEvent(events.LightUnreachable, d.entityID))
		}
	}
	return err
}

func (d *Device) refreshLocked(ctx context.Context, full bool) (bool, error) {
	if !d.enabled && d.persisted != nil {
		return false, nil
	}

	snap, err := d.backend.EntityState(ctx, d.entityID)
	if err != nil {
		return false, errors.WrapErrorf(err, "refresh %s", d.entityID)
	}
	d.snapshot = snap

	for _, hook := range d.hooks {
		hook(d, snap, full)
	}

	if err := d.reconcileLocked(nil); err != nil {
		return false, err
	}
	metrics.RefreshesTotal.Inc()
	return true, nil
}

// Commit pops the control state for handle and executes it: throttle gate,
// backend dispatch, then reconciliation into persisted state. Committing is
// at-most-once per handle; a failed dispatch is not restored or retried.
func (d *Device) Commit(ctx context.Context, handle int) error {
	d.mu.Lock()
	dispatched, err := d.commitLocked(ctx, handle)
	d.mu.Unlock()

	if err == nil && dispatched && d.bus != nil {
		d.bus.Publish(events.NewEvent(events.LightStateChanged, d.entityID))
	}
	return err
}

func (d *Device) commitLocked(ctx context.Context, handle int) (bool, error) {
	cs, ok := d.control[handle]
	if !ok {
		d.logger.Warn("light: no staged state to commit", "entity_id", d.entityID, "handle", handle)
		return false, nil
	}
	delete(d.control, handle)

	if !d.gate.allow(cs, d.persisted) {
		d.logger.Debug("light: commit vetoed by throttle", "entity_id", d.entityID, "handle", handle)
		metrics.ThrottleVetoesTotal.Inc()
		return false, nil
	}

	data := cs.ServiceData()
	var err error
	if cs.On != nil && *cs.On {
		err = d.backend.TurnOn(ctx, d.entityID, data)
	} else {
		err = d.backend.TurnOff(ctx, d.entityID, data)
	}
	if err != nil {
		metrics.DispatchErrorsTotal.Inc()
		return false, errors.BackendUnavailablef("dispatch %s: %w", d.entityID, err)
	}
	metrics.CommitsTotal.Inc()

	return true, d.reconcileLocked(cs)
}

// reconcileLocked merges staged, backend and previous persisted state into a
// new persisted record and writes it through the store. The in-memory slot is
// updated with the write; a store failure propagates to the caller.
func (d *Device) reconcileLocked(control *State) error {
	merged := merge(control, d.backendState, d.persisted)
	d.persisted = merged
	if err := d.store.SetLightState(d.lightID, merged); err != nil {
		return errors.WrapErrorf(err, "persist light %s", d.lightID)
	}
	return nil
}

// --- read surface ---

func (d *Device) persistedLocked() *State {
	if d.persisted == nil {
		return &State{}
	}
	return d.persisted
}

// EntityID returns the backend entity identity.
func (d *Device) EntityID() string { return d.entityID }

// LightID returns the store's light identity.
func (d *Device) LightID() string { return d.lightID }

// UniqueID returns the stable identifier exposed to protocol clients.
func (d *Device) UniqueID() string { return d.uniqueID }

// Enabled reports whether the light accepts refreshes after initial seeding.
func (d *Device) Enabled() bool { return d.enabled }

// Composition returns the capability composition fixed at construction.
func (d *Device) Composition() Composition { return d.comp }

// Metadata returns the physical-device attributes resolved at construction.
func (d *Device) Metadata() Metadata { return d.meta }

// Name returns the configured name, falling back to the backend's friendly
// name when none is stored.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.name != "" {
		return d.name
	}
	if d.snapshot != nil {
		return d.snapshot.Attributes.FriendlyName
	}
	return ""
}

// Reachable reports whether the backend could reach the light.
func (d *Device) Reachable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reachableLocked()
}

func (d *Device) reachableLocked() bool {
	if r := d.persistedLocked().Reachable; r != nil {
		return *r
	}
	return true
}

// PowerState returns the reconciled power state.
func (d *Device) PowerState() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if on := d.persistedLocked().On; on != nil {
		return *on
	}
	return false
}

// Brightness returns the reconciled brightness, 0 when undefined.
func (d *Device) Brightness() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b := d.persistedLocked().Brightness; b != nil {
		return *b
	}
	return 0
}

// ColorMode returns the reconciled color mode. Undefined falls back to
// color_temp for temperature-capable lights and xy for color-only lights.
func (d *Device) ColorMode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.colorModeLocked()
}

func (d *Device) colorModeLocked() string {
	if cm := d.persistedLocked().ColorMode; cm != nil {
		return *cm
	}
	if d.comp.ColorTemp {
		return ColorModeColorTemp
	}
	if d.comp.RGB {
		return ColorModeXY
	}
	return ""
}

// ColorTemperature returns the reconciled color temperature in mireds,
// defaulting to 153 (coolest Hue white) when undefined.
func (d *Device) ColorTemperature() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.colorTempLocked()
}

func (d *Device) colorTempLocked() int {
	if ct := d.persistedLocked().ColorTemp; ct != nil {
		return *ct
	}
	return 153
}

// MinMireds returns the coolest supported temperature from the live
// snapshot, 0 when the backend does not report bounds.
func (d *Device) MinMireds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapshot != nil && d.snapshot.Attributes.MinMireds != nil {
		return *d.snapshot.Attributes.MinMireds
	}
	return 0
}

// MaxMireds returns the warmest supported temperature from the live
// snapshot, 0 when the backend does not report bounds.
func (d *Device) MaxMireds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snapshot != nil && d.snapshot.Attributes.MaxMireds != nil {
		return *d.snapshot.Attributes.MaxMireds
	}
	return 0
}

// HueSaturation returns the reconciled hue/saturation pair.
func (d *Device) HueSaturation() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hueSatLocked()
}

func (d *Device) hueSatLocked() (int, int) {
	if hs := d.persistedLocked().HueSat; hs != nil {
		return hs[0], hs[1]
	}
	return 0, 0
}

// XYColor returns the reconciled CIE xy coordinates.
func (d *Device) XYColor() (float64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if xy := d.persistedLocked().XY; xy != nil {
		return xy[0], xy[1]
	}
	return 0, 0
}

// RGBColor returns the reconciled RGB triple.
func (d *Device) RGBColor() (int, int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rgb := d.persistedLocked().RGB; rgb != nil {
		return rgb[0], rgb[1], rgb[2]
	}
	return 0, 0, 0
}

// Effect returns the reconciled effect name.
func (d *Device) Effect() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e := d.persistedLocked().Effect; e != nil {
		return *e
	}
	return ""
}

// FlashState returns the reconciled flash value ("short", "long" or "").
func (d *Device) FlashState() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f := d.persistedLocked().Flash; f != nil {
		return *f
	}
	return ""
}

// TransitionSeconds returns the reconciled transition time.
func (d *Device) TransitionSeconds() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t := d.persistedLocked().TransitionSeconds; t != nil {
		return *t
	}
	return d.defaultTransition
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
