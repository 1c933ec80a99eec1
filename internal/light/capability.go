package light

import "github.com/huebridged/huebridged/internal/hass"

// Composition is the set of capabilities a light was constructed with. It is
// fixed at construction: OnOff is always present, the rest are additive.
type Composition struct {
	Brightness bool
	ColorTemp  bool
	RGB        bool
}

// Kind returns the composition name used in logs and API responses.
func (c Composition) Kind() string {
	switch {
	case c.ColorTemp && c.RGB:
		return "rgbw"
	case c.RGB:
		return "rgb"
	case c.ColorTemp:
		return "color_temp"
	case c.Brightness:
		return "brightness"
	default:
		return "onoff"
	}
}

func containsAny(haystack []string, needles ...string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n {
				return true
			}
		}
	}
	return false
}

// InferComposition selects a composition from the backend-reported supported
// color modes. First match wins; an empty or unknown set is plain on/off.
func InferComposition(supportedModes []string) Composition {
	colorCapable := containsAny(supportedModes,
		ColorModeHS, ColorModeXY, ColorModeRGB, ColorModeRGBW, ColorModeRGBWW)
	whiteCapable := containsAny(supportedModes,
		ColorModeColorTemp, ColorModeRGBW, ColorModeRGBWW, ColorModeWhite)

	switch {
	case colorCapable && whiteCapable:
		return Composition{Brightness: true, ColorTemp: true, RGB: true}
	case colorCapable:
		return Composition{Brightness: true, RGB: true}
	case containsAny(supportedModes, ColorModeColorTemp):
		return Composition{Brightness: true, ColorTemp: true}
	case containsAny(supportedModes, ColorModeBrightness):
		return Composition{Brightness: true}
	default:
		return Composition{}
	}
}

// refreshHook maps one capability's slice of a backend snapshot onto the
// device's backend state. Hooks run in composition order so later layers may
// overwrite shared fields set by earlier ones.
type refreshHook func(d *Device, snap *hass.EntityState, full bool)

// refreshHooksFor builds the ordered hook list for a composition. The base
// hook always runs first; for combined color+white lights the temperature
// hook runs before the color hook so the snapshot's reported color_mode
// (written by the color hook) decides final rendering. That ordering mirrors
// the backend's reporting quirks rather than any general contract.
func refreshHooksFor(c Composition) []refreshHook {
	hooks := []refreshHook{refreshOnOff}
	if c.Brightness {
		hooks = append(hooks, refreshBrightness)
	}
	if c.ColorTemp {
		hooks = append(hooks, refreshColorTemp)
	}
	if c.RGB {
		hooks = append(hooks, refreshRGB)
	}
	return hooks
}

// refreshOnOff seeds power, reachability and the default transition. On a
// partial refresh the existing backend state is kept so previously reported
// fields survive; defaults are never written here or the last persisted
// values would stop winning the merge.
func refreshOnOff(d *Device, snap *hass.EntityState, full bool) {
	if !full && d.backendState != nil {
		return
	}
	d.backendState = &State{
		On:                ptr(snap.State == hass.StateOn),
		Reachable:         ptr(snap.State != hass.StateUnavailable),
		TransitionSeconds: ptr(d.defaultTransition),
	}
}

func refreshBrightness(d *Device, snap *hass.EntityState, _ bool) {
	d.backendState.Brightness = cloneField(snap.Attributes.Brightness)
}

func refreshColorTemp(d *Device, snap *hass.EntityState, _ bool) {
	d.backendState.ColorTemp = cloneField(snap.Attributes.ColorTemp)
	d.backendState.ColorMode = cloneField(snap.Attributes.ColorMode)
}

func refreshRGB(d *Device, snap *hass.EntityState, _ bool) {
	if hs := snap.Attributes.HSColor; hs != nil {
		d.backendState.HueSat = &[2]int{int(hs[0]), int(hs[1])}
	} else {
		d.backendState.HueSat = nil
	}
	d.backendState.XY = cloneField(snap.Attributes.XYColor)
	d.backendState.RGB = cloneField(snap.Attributes.RGBColor)
	d.backendState.ColorMode = cloneField(snap.Attributes.ColorMode)
}
