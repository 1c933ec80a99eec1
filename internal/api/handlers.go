// Package api exposes the admin/debug HTTP surface: health, version, light
// inspection and direct state writes for operators.
package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/huebridged/huebridged/internal/light"
)

// LightService is the slice of the light registry the handlers consume.
type LightService interface {
	Devices() []*light.Device
}

// LightResponse is one light as returned by the API.
type LightResponse struct {
	ID           string      `json:"id" doc:"Light identifier"`
	EntityID     string      `json:"entity_id" doc:"Backend entity id"`
	UniqueID     string      `json:"uniqueid" doc:"Stable unique id"`
	Name         string      `json:"name"`
	Kind         string      `json:"kind" doc:"Capability composition (onoff, brightness, color_temp, rgb, rgbw)"`
	Enabled      bool        `json:"enabled"`
	Reachable    bool        `json:"reachable"`
	On           bool        `json:"on"`
	Brightness   int         `json:"brightness"`
	ColorMode    string      `json:"color_mode,omitempty"`
	ColorTemp    int         `json:"ct,omitempty"`
	Hue          int         `json:"hue,omitempty"`
	Saturation   int         `json:"sat,omitempty"`
	XY           *[2]float64 `json:"xy,omitempty"`
	Effect       string      `json:"effect,omitempty"`
	Transition   float64     `json:"transition_seconds"`
	Manufacturer string      `json:"manufacturer,omitempty"`
	Model        string      `json:"model,omitempty"`
	SWVersion    string      `json:"swversion,omitempty"`
}

func lightResponse(d *light.Device) LightResponse {
	hue, sat := d.HueSaturation()
	x, y := d.XYColor()
	meta := d.Metadata()

	resp := LightResponse{
		ID:           d.LightID(),
		EntityID:     d.EntityID(),
		UniqueID:     d.UniqueID(),
		Name:         d.Name(),
		Kind:         d.Composition().Kind(),
		Enabled:      d.Enabled(),
		Reachable:    d.Reachable(),
		On:           d.PowerState(),
		Brightness:   d.Brightness(),
		ColorMode:    d.ColorMode(),
		Hue:          hue,
		Saturation:   sat,
		Effect:       d.Effect(),
		Transition:   d.TransitionSeconds(),
		Manufacturer: meta.Manufacturer,
		Model:        meta.Model,
		SWVersion:    meta.SWVersion,
	}
	if d.Composition().ColorTemp {
		resp.ColorTemp = d.ColorTemperature()
	}
	if d.Composition().RGB {
		resp.XY = &[2]float64{x, y}
	}
	return resp
}

// StatusResponse is a minimal status acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthOutput is the health check response.
type HealthOutput struct {
	Body StatusResponse
}

// VersionOutput reports the running daemon's build information.
type VersionOutput struct {
	Body struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
		Date    string `json:"date"`
	}
}

// ListLightsOutput returns lights as a map keyed by light id.
type ListLightsOutput struct {
	Body map[string]LightResponse
}

// GetLightInput selects a light by id.
type GetLightInput struct {
	ID string `path:"id" doc:"Light identifier"`
}

// GetLightOutput is a single light.
type GetLightOutput struct {
	Body LightResponse
}

// SetLightStateInput stages one or more state fields and commits them as a
// single write.
type SetLightStateInput struct {
	ID   string `path:"id" doc:"Light identifier"`
	Body struct {
		On           *bool       `json:"on,omitempty" doc:"Power state"`
		Brightness   *int        `json:"brightness,omitempty" doc:"Brightness (1-255)"`
		ColorTemp    *int        `json:"ct,omitempty" doc:"Color temperature in mireds"`
		Hue          *int        `json:"hue,omitempty" doc:"Hue (0-65535), requires sat"`
		Saturation   *int        `json:"sat,omitempty" doc:"Saturation (0-255), requires hue"`
		XY           *[2]float64 `json:"xy,omitempty" doc:"CIE xy coordinates"`
		RGB          *[3]int     `json:"rgb,omitempty" doc:"RGB components (0-255 each)"`
		Effect       *string     `json:"effect,omitempty"`
		Flash        *string     `json:"flash,omitempty" doc:"Flash request: select or lselect"`
		TransitionMS *float64    `json:"transition_ms,omitempty" doc:"Transition time in milliseconds"`
	}
}

// SetLightStateOutput acknowledges a committed write.
type SetLightStateOutput struct {
	Body StatusResponse
}

// Handlers implements the API operations over the light registry.
type Handlers struct {
	Lights  LightService
	Version string
	Commit  string
	Date    string
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	return &HealthOutput{Body: StatusResponse{Status: "ok"}}, nil
}

// VersionCheck reports build information.
func (h *Handlers) VersionCheck(_ context.Context, _ *struct{}) (*VersionOutput, error) {
	out := &VersionOutput{}
	out.Body.Version = h.Version
	out.Body.Commit = h.Commit
	out.Body.Date = h.Date
	return out, nil
}

// ListLights returns all registered lights keyed by id.
func (h *Handlers) ListLights(_ context.Context, _ *struct{}) (*ListLightsOutput, error) {
	out := &ListLightsOutput{Body: make(map[string]LightResponse)}
	for _, d := range h.Lights.Devices() {
		out.Body[d.LightID()] = lightResponse(d)
	}
	return out, nil
}

// GetLight returns a single light by id.
func (h *Handlers) GetLight(_ context.Context, input *GetLightInput) (*GetLightOutput, error) {
	d := h.lookup(input.ID)
	if d == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("light not found: %s", input.ID))
	}
	return &GetLightOutput{Body: lightResponse(d)}, nil
}

// SetLightState stages the requested fields onto one pending write and
// commits it.
func (h *Handlers) SetLightState(ctx context.Context, input *SetLightStateInput) (*SetLightStateOutput, error) {
	d := h.lookup(input.ID)
	if d == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("light not found: %s", input.ID))
	}

	body := input.Body
	if (body.Hue == nil) != (body.Saturation == nil) {
		return nil, huma.Error422UnprocessableEntity("hue and sat must be set together")
	}

	handle := light.NoHandle
	var err error
	stage := func(fn func(int) (int, error)) {
		if err != nil {
			return
		}
		handle, err = fn(handle)
	}

	if body.On != nil {
		stage(func(hd int) (int, error) { return d.SetPowerState(*body.On, hd) })
	}
	if body.Brightness != nil {
		stage(func(hd int) (int, error) { return d.SetBrightness(*body.Brightness, hd) })
	}
	if body.ColorTemp != nil {
		stage(func(hd int) (int, error) { return d.SetColorTemperature(*body.ColorTemp, hd) })
	}
	if body.Hue != nil {
		stage(func(hd int) (int, error) { return d.SetHueSaturation(*body.Hue, *body.Saturation, hd) })
	}
	if body.XY != nil {
		stage(func(hd int) (int, error) { return d.SetXY(body.XY[0], body.XY[1], hd) })
	}
	if body.RGB != nil {
		stage(func(hd int) (int, error) { return d.SetRGB(body.RGB[0], body.RGB[1], body.RGB[2], hd) })
	}
	if body.Effect != nil {
		stage(func(hd int) (int, error) { return d.SetEffect(*body.Effect, hd) })
	}
	if body.Flash != nil {
		flash, ferr := flashValue(*body.Flash)
		if ferr != nil {
			return nil, huma.Error422UnprocessableEntity(ferr.Error())
		}
		stage(func(hd int) (int, error) { return d.SetFlash(flash, hd) })
	}
	if body.TransitionMS != nil {
		stage(func(hd int) (int, error) { return d.SetTransitionMs(*body.TransitionMS, hd) })
	}
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	if handle == light.NoHandle {
		return nil, huma.Error422UnprocessableEntity("no state fields provided")
	}

	if err := d.Commit(ctx, handle); err != nil {
		return nil, huma.Error502BadGateway(fmt.Sprintf("commit failed: %s", err))
	}
	return &SetLightStateOutput{Body: StatusResponse{Status: "ok"}}, nil
}

// flashValue maps the Hue-style flash request onto the backend vocabulary.
func flashValue(v string) (string, error) {
	switch v {
	case "select":
		return light.FlashShort, nil
	case "lselect":
		return light.FlashLong, nil
	default:
		return "", fmt.Errorf("invalid flash value %q, expected select or lselect", v)
	}
}

func (h *Handlers) lookup(lightID string) *light.Device {
	for _, d := range h.Lights.Devices() {
		if d.LightID() == lightID {
			return d
		}
	}
	return nil
}
