package device

import "time"

// Kind is the role a device plays for a fermentation project.
type Kind string

const (
	// KindSensor reports temperature (and optionally humidity).
	KindSensor Kind = "sensor"

	// KindOutlet is a switchable heating outlet.
	KindOutlet Kind = "outlet"
)

// AllKinds returns every recognised device kind.
func AllKinds() []Kind {
	return []Kind{KindSensor, KindOutlet}
}

// Device is a sensor or outlet reachable through the automation hub,
// directly on the LAN, or both.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// HubEntityID is the hub entity, e.g. "sensor.fermenter_temp" or "switch.heat_mat".
	HubEntityID *string `json:"hub_entity_id,omitempty"`

	// HumidityEntityID is an optional second hub entity on a sensor.
	HumidityEntityID *string `json:"humidity_entity_id,omitempty"`

	// Address is host or host:port for direct control of a smart outlet.
	Address *string `json:"address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns an independent copy of the device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.HubEntityID = cloneString(d.HubEntityID)
	cpy.HumidityEntityID = cloneString(d.HumidityEntityID)
	cpy.Address = cloneString(d.Address)
	return &cpy
}

// HasHubEntity reports whether the device is reachable through the hub.
func (d *Device) HasHubEntity() bool {
	return d.HubEntityID != nil && *d.HubEntityID != ""
}

// HasAddress reports whether the device is reachable directly.
func (d *Device) HasAddress() bool {
	return d.Address != nil && *d.Address != ""
}

// Actuatable reports whether an outlet exposes at least one control path.
func (d *Device) Actuatable() bool {
	return d.Kind == KindOutlet && (d.HasHubEntity() || d.HasAddress())
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
