package light

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huebridged/huebridged/internal/hass"
)

func TestInferComposition(t *testing.T) {
	tests := []struct {
		name  string
		modes []string
		want  string
	}{
		{"empty", nil, "onoff"},
		{"onoff only", []string{ColorModeOnOff}, "onoff"},
		{"brightness", []string{ColorModeBrightness}, "brightness"},
		{"color temp", []string{ColorModeColorTemp}, "color_temp"},
		{"xy", []string{ColorModeXY}, "rgb"},
		{"hs", []string{ColorModeHS}, "rgb"},
		{"xy plus color temp", []string{ColorModeColorTemp, ColorModeXY}, "rgbw"},
		{"rgbw reported directly", []string{ColorModeRGBW}, "rgbw"},
		{"rgb plus white", []string{ColorModeRGB, ColorModeWhite}, "rgbw"},
		{"unknown modes", []string{"sparkle"}, "onoff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferComposition(tt.modes).Kind())
		})
	}
}

func TestRegistryGetConstructsOnce(t *testing.T) {
	backend := &fakeBackend{
		states: map[string]*hass.EntityState{
			"light.office": onSnapshot(hass.Attributes{
				SupportedColorModes: []string{ColorModeColorTemp, ColorModeXY},
			}),
		},
		deviceIDs: map[string]string{"light.office": "dev-1"},
		attrs: map[string]hass.DeviceAttributes{
			"dev-1": {
				Manufacturer: "Signify",
				Model:        "LCT015",
				Identifiers:  json.RawMessage(`[["hue", "00:17:88:01"]]`),
			},
		},
	}
	store := newFakeStore()
	sched := &fakeScheduler{}
	reg := NewRegistry(testLogger(), backend, store, sched, nil, 0)

	d, err := reg.Get(context.Background(), "light.office")
	require.NoError(t, err)
	assert.Equal(t, "rgbw", d.Composition().Kind())
	assert.Equal(t, "Signify", d.Metadata().Manufacturer)
	assert.Equal(t, "00:17:88:01", d.Metadata().UniqueID)

	// Initial refresh seeded and persisted state
	assert.True(t, d.PowerState())
	assert.Equal(t, 1, store.saves)

	// Periodic refresh registered exactly once
	require.Len(t, sched.jobs, 1)
	assert.Equal(t, "light-refresh:light.office", sched.jobs[0])

	// Second lookup returns the cached instance without reconstruction
	d2, err := reg.Get(context.Background(), "light.office")
	require.NoError(t, err)
	assert.Same(t, d, d2)
	assert.Len(t, sched.jobs, 1)
}

func TestRegistryGetUnknownEntity(t *testing.T) {
	backend := &fakeBackend{states: map[string]*hass.EntityState{}}
	reg := NewRegistry(testLogger(), backend, newFakeStore(), &fakeScheduler{}, nil, 0)

	_, err := reg.Get(context.Background(), "light.missing")
	require.Error(t, err)

	_, ok := reg.Lookup("light.missing")
	assert.False(t, ok)
}

func TestRegistryDevices(t *testing.T) {
	backend := &fakeBackend{
		states: map[string]*hass.EntityState{
			"light.office": onSnapshot(hass.Attributes{}),
		},
	}
	reg := NewRegistry(testLogger(), backend, newFakeStore(), &fakeScheduler{}, nil, 0)

	assert.Empty(t, reg.Devices())

	_, err := reg.Get(context.Background(), "light.office")
	require.NoError(t, err)
	assert.Len(t, reg.Devices(), 1)

	d, ok := reg.Lookup("light.office")
	require.True(t, ok)
	assert.Equal(t, "light.office", d.EntityID())
}
