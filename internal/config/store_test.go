package config

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huebridged/huebridged/internal/errors"
	"github.com/huebridged/huebridged/internal/light"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func TestStoreAllocatesStableLightIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lights.yaml")
	store, err := OpenStore(testLogger(), path, 250)
	require.NoError(t, err)

	id1, err := store.EntityIDToLightID("light.office")
	require.NoError(t, err)
	assert.Equal(t, "1", id1)

	id2, err := store.EntityIDToLightID("light.kitchen")
	require.NoError(t, err)
	assert.Equal(t, "2", id2)

	// Repeated lookups return the same id
	again, err := store.EntityIDToLightID("light.office")
	require.NoError(t, err)
	assert.Equal(t, id1, again)

	cfg, err := store.LightConfig(id1)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 250, cfg.ThrottleMS)
	assert.NotEmpty(t, cfg.UniqueID)

	assert.ElementsMatch(t, []string{"light.office", "light.kitchen"}, store.EntityIDs())
}

func TestStoreUnknownLight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lights.yaml")
	store, err := OpenStore(testLogger(), path, 0)
	require.NoError(t, err)

	_, err = store.LightConfig("99")
	assert.True(t, errors.IsNotFound(err))

	err = store.SetLightState("99", &light.State{})
	assert.True(t, errors.IsNotFound(err))
}

func TestStoreStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lights.yaml")
	store, err := OpenStore(testLogger(), path, 0)
	require.NoError(t, err)

	id, err := store.EntityIDToLightID("light.office")
	require.NoError(t, err)

	state := &light.State{
		On:         boolPtr(true),
		Brightness: intPtr(200),
		ColorTemp:  intPtr(320),
	}
	require.NoError(t, store.SetLightState(id, state))

	// A fresh store loaded from the same file sees the persisted state
	reloaded, err := OpenStore(testLogger(), path, 0)
	require.NoError(t, err)

	again, err := reloaded.EntityIDToLightID("light.office")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	cfg, err := reloaded.LightConfig(id)
	require.NoError(t, err)
	require.NotNil(t, cfg.State)
	assert.True(t, state.Equal(cfg.State))

	// Unset fields stay unset across the round trip
	assert.Nil(t, cfg.State.XY)
	assert.Nil(t, cfg.State.Effect)
}

func TestStoreConfigCopiesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lights.yaml")
	store, err := OpenStore(testLogger(), path, 0)
	require.NoError(t, err)

	id, err := store.EntityIDToLightID("light.office")
	require.NoError(t, err)
	require.NoError(t, store.SetLightState(id, &light.State{Brightness: intPtr(10)}))

	cfg, err := store.LightConfig(id)
	require.NoError(t, err)
	*cfg.State.Brightness = 99

	cfg2, err := store.LightConfig(id)
	require.NoError(t, err)
	assert.Equal(t, 10, *cfg2.State.Brightness)
}
