package light

// Color modes as reported by the Home Assistant light domain.
const (
	ColorModeOnOff      = "onoff"
	ColorModeBrightness = "brightness"
	ColorModeColorTemp  = "color_temp"
	ColorModeHS         = "hs"
	ColorModeXY         = "xy"
	ColorModeRGB        = "rgb"
	ColorModeRGBW       = "rgbw"
	ColorModeRGBWW      = "rgbww"
	ColorModeWhite      = "white"
)

// Flash values accepted by the backend.
const (
	FlashShort = "short"
	FlashLong  = "long"
)

// State is the shared value shape for backend-reported, persisted and staged
// light state. Every field may be unset (nil), which is distinct from a
// defined zero value: an unset field never participates in reconciliation.
type State struct {
	On                *bool       `yaml:"power_state" json:"power_state"`
	Brightness        *int        `yaml:"brightness" json:"brightness"`
	ColorTemp         *int        `yaml:"color_temp" json:"color_temp"`
	ColorMode         *string     `yaml:"color_mode" json:"color_mode"`
	HueSat            *[2]int     `yaml:"hue_saturation" json:"hue_saturation"`
	XY                *[2]float64 `yaml:"xy_color" json:"xy_color"`
	RGB               *[3]int     `yaml:"rgb_color" json:"rgb_color"`
	Effect            *string     `yaml:"effect" json:"effect"`
	Flash             *string     `yaml:"flash_state" json:"flash_state"`
	TransitionSeconds *float64    `yaml:"transition_seconds" json:"transition_seconds"`
	Reachable         *bool       `yaml:"reachable" json:"reachable"`
}

// ptr returns a pointer to a copy of v.
func ptr[T any](v T) *T { return &v }

// cloneField copies the pointee so the clone never aliases the source.
func cloneField[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// eqField compares two optional fields by value.
func eqField[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		On:                cloneField(s.On),
		Brightness:        cloneField(s.Brightness),
		ColorTemp:         cloneField(s.ColorTemp),
		ColorMode:         cloneField(s.ColorMode),
		HueSat:            cloneField(s.HueSat),
		XY:                cloneField(s.XY),
		RGB:               cloneField(s.RGB),
		Effect:            cloneField(s.Effect),
		Flash:             cloneField(s.Flash),
		TransitionSeconds: cloneField(s.TransitionSeconds),
		Reachable:         cloneField(s.Reachable),
	}
}

// Equal reports structural field-by-field equality.
func (s *State) Equal(other *State) bool {
	if s == nil || other == nil {
		return s == other
	}
	return eqField(s.On, other.On) &&
		eqField(s.Brightness, other.Brightness) &&
		eqField(s.ColorTemp, other.ColorTemp) &&
		eqField(s.ColorMode, other.ColorMode) &&
		eqField(s.HueSat, other.HueSat) &&
		eqField(s.XY, other.XY) &&
		eqField(s.RGB, other.RGB) &&
		eqField(s.Effect, other.Effect) &&
		eqField(s.Flash, other.Flash) &&
		eqField(s.TransitionSeconds, other.TransitionSeconds) &&
		eqField(s.Reachable, other.Reachable)
}

// ServiceData converts the defined fields into a backend service payload.
// Transition is always included when set; everything else only when defined.
func (s *State) ServiceData() map[string]any {
	data := make(map[string]any)
	if s.Brightness != nil {
		data["brightness"] = *s.Brightness
	}
	if s.ColorTemp != nil {
		data["color_temp"] = *s.ColorTemp
	}
	if s.HueSat != nil {
		data["hs_color"] = []int{s.HueSat[0], s.HueSat[1]}
	}
	if s.XY != nil {
		data["xy_color"] = []float64{s.XY[0], s.XY[1]}
	}
	if s.RGB != nil {
		data["rgb_color"] = []int{s.RGB[0], s.RGB[1], s.RGB[2]}
	}
	if s.Flash != nil {
		data["flash"] = *s.Flash
	}
	if s.Effect != nil {
		data["effect"] = *s.Effect
	}
	if s.TransitionSeconds != nil {
		data["transition"] = *s.TransitionSeconds
	}
	return data
}

// merge produces the reconciled state: for every field, the staged value wins
// if defined, then the backend value, then the previous persisted value.
func merge(control, backend, prev *State) *State {
	if control == nil {
		control = &State{}
	}
	if backend == nil {
		backend = &State{}
	}
	if prev == nil {
		prev = &State{}
	}
	return &State{
		On:                pickField(control.On, backend.On, prev.On),
		Brightness:        pickField(control.Brightness, backend.Brightness, prev.Brightness),
		ColorTemp:         pickField(control.ColorTemp, backend.ColorTemp, prev.ColorTemp),
		ColorMode:         pickField(control.ColorMode, backend.ColorMode, prev.ColorMode),
		HueSat:            pickField(control.HueSat, backend.HueSat, prev.HueSat),
		XY:                pickField(control.XY, backend.XY, prev.XY),
		RGB:               pickField(control.RGB, backend.RGB, prev.RGB),
		Effect:            pickField(control.Effect, backend.Effect, prev.Effect),
		Flash:             pickField(control.Flash, backend.Flash, prev.Flash),
		TransitionSeconds: pickField(control.TransitionSeconds, backend.TransitionSeconds, prev.TransitionSeconds),
		Reachable:         pickField(control.Reachable, backend.Reachable, prev.Reachable),
	}
}

// pickField returns a copy of the first defined value.
func pickField[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return cloneField(v)
		}
	}
	return nil
}
