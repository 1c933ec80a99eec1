package light

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Metadata holds the static descriptive attributes of the physical device
// behind an entity, resolved once at construction and immutable thereafter.
type Metadata struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Name         string `json:"name"`
	SWVersion    string `json:"sw_version"`
	UniqueID     string `json:"unique_id"`
}

// resolveMetadata looks the entity's device up in the backend registry.
// Missing or malformed registry data is not an error: attributes default to
// empty and the light keeps working without a stable hardware identifier.
func resolveMetadata(ctx context.Context, backend Backend, entityID string, logger *slog.Logger) Metadata {
	deviceID, err := backend.DeviceIDForEntity(ctx, entityID)
	if err != nil || deviceID == "" {
		if err != nil {
			logger.Warn("light: device lookup failed, using empty metadata", "entity_id", entityID, "error", err)
		}
		return Metadata{}
	}

	attrs, err := backend.DeviceAttributes(ctx, deviceID)
	if err != nil {
		logger.Warn("light: device attributes unavailable, using empty metadata", "entity_id", entityID, "device_id", deviceID, "error", err)
		return Metadata{}
	}

	return Metadata{
		Manufacturer: attrs.Manufacturer,
		Model:        attrs.Model,
		Name:         attrs.Name,
		SWVersion:    attrs.SWVersion,
		UniqueID:     stableIdentifier(attrs.Identifiers),
	}
}

// stableIdentifier extracts a stable hardware identifier from the registry's
// identifiers field. Integrations report two shapes, handled as explicit
// variants; anything else means no stable identifier.
//
//   - keyed list: {"zha": "00:11:..."} — prefer the zigbee address, useful
//     later for addressing the mesh directly
//   - plain list: ["id", ...] or [["hue", "abc"], ...] — first string entry,
//     or the last element of the first nested list
func stableIdentifier(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var keyed map[string]string
	if err := json.Unmarshal(raw, &keyed); err == nil {
		return keyed["zha"]
	}

	var plain []any
	if err := json.Unmarshal(raw, &plain); err == nil {
		for _, entry := range plain {
			switch v := entry.(type) {
			case string:
				return v
			case []any:
				if len(v) == 0 {
					continue
				}
				if s, ok := v[len(v)-1].(string); ok {
					return s
				}
			}
		}
	}

	return ""
}
