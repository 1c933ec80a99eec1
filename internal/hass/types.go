// Package hass talks to the Home Assistant websocket API: entity state
// snapshots, registry lookups and light service calls.
package hass

import "encoding/json"

// Entity state strings used by the light domain.
const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnavailable = "unavailable"
)

// Attributes is the subset of a light entity's attribute map this system
// consumes. Missing or malformed attributes stay nil.
type Attributes struct {
	FriendlyName        string      `json:"friendly_name"`
	Brightness          *int        `json:"brightness"`
	ColorTemp           *int        `json:"color_temp"`
	ColorMode           *string     `json:"color_mode"`
	HSColor             *[2]float64 `json:"hs_color"`
	XYColor             *[2]float64 `json:"xy_color"`
	RGBColor            *[3]int     `json:"rgb_color"`
	Effect              *string     `json:"effect"`
	SupportedColorModes []string    `json:"supported_color_modes"`
	MinMireds           *int        `json:"min_mireds"`
	MaxMireds           *int        `json:"max_mireds"`
}

// EntityState is one entity snapshot as reported by get_states or a
// state_changed event.
type EntityState struct {
	EntityID   string     `json:"entity_id"`
	State      string     `json:"state"`
	Attributes Attributes `json:"attributes"`
}

// DeviceAttributes describes a physical device from the device registry.
// Identifiers is kept raw because its shape varies between integrations;
// parsing is the consumer's concern.
type DeviceAttributes struct {
	ID           string          `json:"id"`
	Manufacturer string          `json:"manufacturer"`
	Model        string          `json:"model"`
	Name         string          `json:"name"`
	SWVersion    string          `json:"sw_version"`
	Identifiers  json.RawMessage `json:"identifiers"`
}

// registryEntity is one row from config/entity_registry/list.
type registryEntity struct {
	EntityID string `json:"entity_id"`
	DeviceID string `json:"device_id"`
}
