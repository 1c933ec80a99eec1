package light

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	huberr "github.com/huebridged/huebridged/internal/errors"
	"github.com/huebridged/huebridged/internal/events"
	"github.com/huebridged/huebridged/internal/hass"
)

// --- fakes ---

type dispatchCall struct {
	entityID string
	data     map[string]any
}

type fakeBackend struct {
	mu          sync.Mutex
	states      map[string]*hass.EntityState
	deviceIDs   map[string]string
	attrs       map[string]hass.DeviceAttributes
	turnOns     []dispatchCall
	turnOffs    []dispatchCall
	stateCalls  int
	dispatchErr error
}

func (f *fakeBackend) DeviceIDForEntity(_ context.Context, entityID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deviceIDs[entityID], nil
}

func (f *fakeBackend) DeviceAttributes(_ context.Context, deviceID string) (hass.DeviceAttributes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attrs[deviceID], nil
}

func (f *fakeBackend) EntityState(_ context.Context, entityID string) (*hass.EntityState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateCalls++
	if s, ok := f.states[entityID]; ok {
		return s, nil
	}
	return nil, huberr.NotFoundf("entity %s", entityID)
}

func (f *fakeBackend) TurnOn(_ context.Context, entityID string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return f.dispatchErr
	}
	f.turnOns = append(f.turnOns, dispatchCall{entityID, data})
	return nil
}

func (f *fakeBackend) TurnOff(_ context.Context, entityID string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return f.dispatchErr
	}
	f.turnOffs = append(f.turnOffs, dispatchCall{entityID, data})
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	lightIDs map[string]string
	configs  map[string]LightConfig
	saved    map[string]*State
	saves    int
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lightIDs: make(map[string]string),
		configs:  make(map[string]LightConfig),
		saved:    make(map[string]*State),
	}
}

func (f *fakeStore) EntityIDToLightID(entityID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.lightIDs[entityID]; ok {
		return id, nil
	}
	id := "1"
	f.lightIDs[entityID] = id
	return id, nil
}

func (f *fakeStore) LightConfig(lightID string) (LightConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg, ok := f.configs[lightID]; ok {
		return cfg, nil
	}
	return LightConfig{Enabled: true}, nil
}

func (f *fakeStore) SetLightState(lightID string, state *State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.saved[lightID] = state.Clone()
	return nil
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []string
}

func (f *fakeScheduler) Add(name string, _ time.Duration, _ func(context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, name)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func onSnapshot(attrs hass.Attributes) *hass.EntityState {
	return &hass.EntityState{EntityID: "light.office", State: hass.StateOn, Attributes: attrs}
}

// newTestDevice builds a device directly, bypassing the registry.
func newTestDevice(t *testing.T, comp Composition, cfg LightConfig, snap *hass.EntityState) (*Device, *fakeBackend, *fakeStore) {
	t.Helper()
	backend := &fakeBackend{states: map[string]*hass.EntityState{"light.office": snap}}
	store := newFakeStore()
	d := newDevice(testLogger(), backend, store, nil, "light.office", "1", cfg, comp, Metadata{})
	return d, backend, store
}

// --- handle allocation ---

func TestHandleAllocation(t *testing.T) {
	d, _, _ := newTestDevice(t, Composition{}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))

	assert.Equal(t, 0, d.Stage(NoHandle))
	assert.Equal(t, 1, d.Stage(NoHandle))

	// Holes are never reused: {0, 2} allocates 3
	d.control = map[int]*State{0: {}, 2: {}}
	assert.Equal(t, 3, d.Stage(NoHandle))
}

func TestStageSeedsFromPersisted(t *testing.T) {
	cfg := LightConfig{Enabled: true, State: &State{On: ptr(true)}}
	d, _, _ := newTestDevice(t, Composition{}, cfg, onSnapshot(hass.Attributes{}))

	h := d.Stage(NoHandle)
	cs := d.control[h]
	require.NotNil(t, cs.On)
	assert.True(t, *cs.On)
	require.NotNil(t, cs.TransitionSeconds)
	assert.Equal(t, DefaultTransitionSeconds, *cs.TransitionSeconds)
}

func TestStaleHandleStagesNew(t *testing.T) {
	d, _, _ := newTestDevice(t, Composition{}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))

	h, err := d.SetPowerState(true, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, h)
	assert.NotContains(t, d.control, 42)
}

func TestWriteChainingOntoOneHandle(t *testing.T) {
	comp := Composition{Brightness: true}
	d, backend, store := newTestDevice(t, comp, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))
	require.NoError(t, d.Refresh(context.Background(), true))

	h, err := d.SetPowerState(true, NoHandle)
	require.NoError(t, err)
	h2, err := d.SetBrightness(128, h)
	require.NoError(t, err)
	assert.Equal(t, h, h2)

	cs := d.control[h]
	require.NotNil(t, cs)
	assert.True(t, *cs.On)
	assert.Equal(t, 128, *cs.Brightness)
	assert.Len(t, d.control, 1)

	require.NoError(t, d.Commit(context.Background(), h))

	// Handle is gone, exactly one power-on was dispatched with both fields
	assert.Empty(t, d.control)
	require.Len(t, backend.turnOns, 1)
	assert.Empty(t, backend.turnOffs)
	assert.Equal(t, 128, backend.turnOns[0].data["brightness"])

	// Reconciled into persisted state and written through
	assert.True(t, d.PowerState())
	assert.Equal(t, 128, d.Brightness())
	require.NotNil(t, store.saved["1"])
	assert.Equal(t, 128, *store.saved["1"].Brightness)
}

func TestCommitUnknownHandleIsNoOp(t *testing.T) {
	d, backend, store := newTestDevice(t, Composition{}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))

	require.NoError(t, d.Commit(context.Background(), 7))
	assert.Empty(t, backend.turnOns)
	assert.Empty(t, backend.turnOffs)
	assert.Zero(t, store.saves)
}

func TestCommitPowerOffDispatchesTurnOff(t *testing.T) {
	cfg := LightConfig{Enabled: true, State: &State{On: ptr(true)}}
	d, backend, _ := newTestDevice(t, Composition{}, cfg, onSnapshot(hass.Attributes{}))

	h, err := d.SetPowerState(false, NoHandle)
	require.NoError(t, err)
	require.NoError(t, d.Commit(context.Background(), h))

	assert.Empty(t, backend.turnOns)
	require.Len(t, backend.turnOffs, 1)
	assert.Contains(t, backend.turnOffs[0].data, "transition")
	assert.False(t, d.PowerState())
}

func TestCommitDispatchFailure(t *testing.T) {
	d, backend, store := newTestDevice(t, Composition{}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))
	backend.dispatchErr = errors.New("connection refused")

	h, err := d.SetPowerState(true, NoHandle)
	require.NoError(t, err)

	err = d.Commit(context.Background(), h)
	require.Error(t, err)
	assert.True(t, huberr.IsBackendUnavailable(err))

	// At-most-once: the popped control state is not restored
	assert.Empty(t, d.control)
	assert.Zero(t, store.saves)
	assert.False(t, d.PowerState())
}

func TestCommitStoreFailurePropagates(t *testing.T) {
	d, _, store := newTestDevice(t, Composition{}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))
	store.saveErr = errors.New("disk full")

	h, err := d.SetPowerState(true, NoHandle)
	require.NoError(t, err)

	err = d.Commit(context.Background(), h)
	require.Error(t, err)
	assert.Empty(t, d.control)
}

// --- capability guards ---

func TestCapabilityGuards(t *testing.T) {
	d, _, _ := newTestDevice(t, Composition{}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))

	_, err := d.SetBrightness(100, NoHandle)
	assert.True(t, huberr.IsInvalidInput(err))
	_, err = d.SetColorTemperature(300, NoHandle)
	assert.True(t, huberr.IsInvalidInput(err))
	_, err = d.SetHueSaturation(10, 20, NoHandle)
	assert.True(t, huberr.IsInvalidInput(err))
	_, err = d.SetFlash(FlashShort, NoHandle)
	assert.True(t, huberr.IsInvalidInput(err))

	// Power and transition are always supported
	_, err = d.SetPowerState(true, NoHandle)
	assert.NoError(t, err)
	_, err = d.SetTransitionSeconds(1.5, NoHandle)
	assert.NoError(t, err)
}

func TestBrightnessClamped(t *testing.T) {
	d, _, _ := newTestDevice(t, Composition{Brightness: true}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))

	h, err := d.SetBrightness(0, NoHandle)
	require.NoError(t, err)
	assert.Equal(t, 1, *d.control[h].Brightness)

	h, err = d.SetBrightness(999, h)
	require.NoError(t, err)
	assert.Equal(t, 255, *d.control[h].Brightness)
}

func TestTransitionClampedToThrottle(t *testing.T) {
	cfg := LightConfig{Enabled: true, ThrottleMS: 1000}
	d, _, _ := newTestDevice(t, Composition{}, cfg, onSnapshot(hass.Attributes{}))

	h, err := d.SetTransitionMs(200, NoHandle)
	require.NoError(t, err)
	assert.Equal(t, 1.0, *d.control[h].TransitionSeconds)

	// Longer transitions pass through unchanged
	h, err = d.SetTransitionMs(2500, h)
	require.NoError(t, err)
	assert.Equal(t, 2.5, *d.control[h].TransitionSeconds)
}

// --- throttling ---

func TestThrottledCommitScenario(t *testing.T) {
	cfg := LightConfig{Enabled: true, ThrottleMS: 1000}
	d, backend, _ := newTestDevice(t, Composition{}, cfg, onSnapshot(hass.Attributes{}))

	now := time.Unix(5000, 0)
	d.gate.now = func() time.Time { return now }

	// t=0: power-on allowed, persisted updated
	h, _ := d.SetPowerState(true, NoHandle)
	require.NoError(t, d.Commit(context.Background(), h))
	assert.True(t, d.PowerState())
	assert.Len(t, backend.turnOns, 1)

	// t=500ms: power-off vetoed, persisted still reflects power-on
	now = now.Add(500 * time.Millisecond)
	h, _ = d.SetPowerState(false, NoHandle)
	require.NoError(t, d.Commit(context.Background(), h))
	assert.True(t, d.PowerState())
	assert.Empty(t, backend.turnOffs)

	// t=1100ms: power-off allowed, persisted updated
	now = now.Add(600 * time.Millisecond)
	h, _ = d.SetPowerState(false, NoHandle)
	require.NoError(t, d.Commit(context.Background(), h))
	assert.False(t, d.PowerState())
	assert.Len(t, backend.turnOffs, 1)
}

// --- refresh ---

func TestRefreshPopulatesByComposition(t *testing.T) {
	snap := onSnapshot(hass.Attributes{
		Brightness: ptr(200),
		ColorTemp:  ptr(320),
		ColorMode:  ptr(ColorModeColorTemp),
	})
	d, _, store := newTestDevice(t, Composition{Brightness: true, ColorTemp: true}, LightConfig{Enabled: true}, snap)

	require.NoError(t, d.Refresh(context.Background(), true))

	assert.True(t, d.PowerState())
	assert.True(t, d.Reachable())
	assert.Equal(t, 200, d.Brightness())
	assert.Equal(t, 320, d.ColorTemperature())
	assert.Equal(t, ColorModeColorTemp, d.ColorMode())
	assert.Equal(t, 1, store.saves)
}

func TestRefreshSkippedWhenDisabledAndSeeded(t *testing.T) {
	cfg := LightConfig{Enabled: false, State: &State{On: ptr(true)}}
	d, backend, _ := newTestDevice(t, Composition{}, cfg, onSnapshot(hass.Attributes{}))

	require.NoError(t, d.Refresh(context.Background(), true))
	assert.Zero(t, backend.stateCalls)

	// An unseeded disabled light still refreshes once
	cfg = LightConfig{Enabled: false}
	d, backend, _ = newTestDevice(t, Composition{}, cfg, onSnapshot(hass.Attributes{}))
	require.NoError(t, d.Refresh(context.Background(), true))
	assert.Equal(t, 1, backend.stateCalls)
}

func TestRefreshMergeKeepsPersistedForUnreported(t *testing.T) {
	// Backend reports no brightness; the previous persisted value survives
	cfg := LightConfig{Enabled: true, State: &State{Brightness: ptr(77)}}
	d, _, _ := newTestDevice(t, Composition{Brightness: true}, cfg, onSnapshot(hass.Attributes{}))

	require.NoError(t, d.Refresh(context.Background(), true))
	assert.Equal(t, 77, d.Brightness())
}

func TestRGBWSnapshotKeepsColorTemp(t *testing.T) {
	comp := Composition{Brightness: true, ColorTemp: true, RGB: true}
	snap := onSnapshot(hass.Attributes{
		ColorMode: ptr(ColorModeXY),
		XYColor:   &[2]float64{0.3, 0.3},
	})
	cfg := LightConfig{Enabled: true, State: &State{ColorTemp: ptr(300)}}
	d, _, _ := newTestDevice(t, comp, cfg, snap)

	require.NoError(t, d.Refresh(context.Background(), true))

	assert.Equal(t, ColorModeXY, d.ColorMode())
	x, y := d.XYColor()
	assert.Equal(t, 0.3, x)
	assert.Equal(t, 0.3, y)
	// Temperature retains its last persisted value unchanged
	assert.Equal(t, 300, d.ColorTemperature())
}

// --- flash delegation ---

func TestFlashDelegatesByColorMode(t *testing.T) {
	comp := Composition{Brightness: true, ColorTemp: true, RGB: true}

	t.Run("color_temp mode re-asserts temperature", func(t *testing.T) {
		cfg := LightConfig{Enabled: true, State: &State{
			ColorMode: ptr(ColorModeColorTemp),
			ColorTemp: ptr(250),
		}}
		d, _, _ := newTestDevice(t, comp, cfg, onSnapshot(hass.Attributes{}))

		h, err := d.SetFlash(FlashShort, NoHandle)
		require.NoError(t, err)
		cs := d.control[h]
		assert.Equal(t, FlashShort, *cs.Flash)
		assert.Equal(t, 250, *cs.ColorTemp)
		assert.Equal(t, ColorModeColorTemp, *cs.ColorMode)
		assert.Nil(t, cs.HueSat)
	})

	t.Run("color mode re-asserts hue/saturation", func(t *testing.T) {
		cfg := LightConfig{Enabled: true, State: &State{
			ColorMode: ptr(ColorModeHS),
			HueSat:    &[2]int{120, 44},
		}}
		d, _, _ := newTestDevice(t, comp, cfg, onSnapshot(hass.Attributes{}))

		h, err := d.SetFlash(FlashLong, NoHandle)
		require.NoError(t, err)
		cs := d.control[h]
		assert.Equal(t, FlashLong, *cs.Flash)
		assert.Equal(t, [2]int{120, 44}, *cs.HueSat)
		assert.Equal(t, ColorModeHS, *cs.ColorMode)
		assert.Nil(t, cs.ColorTemp)
	})
}

func TestFlashOnBrightnessOnlyLight(t *testing.T) {
	d, _, _ := newTestDevice(t, Composition{Brightness: true}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))

	h, err := d.SetFlash(FlashShort, NoHandle)
	require.NoError(t, err)
	cs := d.control[h]
	assert.Equal(t, FlashShort, *cs.Flash)
	assert.Nil(t, cs.ColorTemp)
	assert.Nil(t, cs.HueSat)
}

// --- read surface defaults ---

func TestReaderDefaults(t *testing.T) {
	t.Run("color temp composition", func(t *testing.T) {
		d, _, _ := newTestDevice(t, Composition{Brightness: true, ColorTemp: true}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))
		assert.Equal(t, ColorModeColorTemp, d.ColorMode())
		assert.Equal(t, 153, d.ColorTemperature())
	})

	t.Run("rgb composition", func(t *testing.T) {
		d, _, _ := newTestDevice(t, Composition{Brightness: true, RGB: true}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))
		assert.Equal(t, ColorModeXY, d.ColorMode())
		hue, sat := d.HueSaturation()
		assert.Zero(t, hue)
		assert.Zero(t, sat)
	})

	t.Run("onoff composition", func(t *testing.T) {
		d, _, _ := newTestDevice(t, Composition{}, LightConfig{Enabled: true}, onSnapshot(hass.Attributes{}))
		assert.Equal(t, "", d.ColorMode())
		assert.True(t, d.Reachable())
		assert.False(t, d.PowerState())
		assert.Equal(t, DefaultTransitionSeconds, d.TransitionSeconds())
	})
}

func TestNameFallsBackToFriendlyName(t *testing.T) {
	snap := onSnapshot(hass.Attributes{FriendlyName: "Office Lamp"})
	d, _, _ := newTestDevice(t, Composition{}, LightConfig{Enabled: true}, snap)

	assert.Equal(t, "", d.Name())
	require.NoError(t, d.Refresh(context.Background(), true))
	assert.Equal(t, "Office Lamp", d.Name())

	d2, _, _ := newTestDevice(t, Composition{}, LightConfig{Enabled: true, Name: "Configured"}, snap)
	assert.Equal(t, "Configured", d2.Name())
}

func TestDefaultTransitionStretchedByThrottle(t *testing.T) {
	cfg := LightConfig{Enabled: true, ThrottleMS: 2000}
	d, _, _ := newTestDevice(t, Composition{}, cfg, onSnapshot(hass.Attributes{}))
	assert.Equal(t, 2.0, d.defaultTransition)

	cfg = LightConfig{Enabled: true, ThrottleMS: 100}
	d, _, _ = newTestDevice(t, Composition{}, cfg, onSnapshot(hass.Attributes{}))
	assert.Equal(t, DefaultTransitionSeconds, d.defaultTransition)
}

func TestRefreshPublishesUnreachable(t *testing.T) {
	backend := &fakeBackend{states: map[string]*hass.EntityState{
		"light.office": onSnapshot(hass.Attributes{}),
	}}
	bus := events.NewBus()
	var got []events.EventType
	bus.Subscribe(func(e events.Event) { got = append(got, e.Type) })

	d := newDevice(testLogger(), backend, newFakeStore(), bus,
		"light.office", "1", LightConfig{Enabled: true}, Composition{}, Metadata{})
	require.NoError(t, d.Refresh(context.Background(), true))
	assert.True(t, d.Reachable())
	assert.NotContains(t, got, events.LightUnreachable)

	backend.mu.Lock()
	backend.states["light.office"] = &hass.EntityState{
		EntityID: "light.office", State: hass.StateUnavailable,
	}
	backend.mu.Unlock()
	require.NoError(t, d.Refresh(context.Background(), true))

	assert.False(t, d.Reachable())
	assert.Contains(t, got, events.LightStateChanged)
	assert.Contains(t, got, events.LightUnreachable)
}
