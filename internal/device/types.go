package device

import (
	"strings"
	"time"
)

// Entity platforms.
const (
	PlatformSensor       = "sensor"
	PlatformBinarySensor = "binary_sensor"
)

// DeviceInfo describes a device to GetOrCreate. Domain and Identifier form
// the lookup key; the remaining fields are descriptive attributes.
type DeviceInfo struct {
	Domain           string
	Identifier       string
	Name             string
	Manufacturer     string
	Model            string
	SWVersion        string
	HWVersion        string
	ConfigurationURL string
}

// key is the identifier column value for this device.
func (i DeviceInfo) key() string {
	return i.Domain + ":" + i.Identifier
}

// Device is one registered physical node.
type Device struct {
	ID               string    `json:"id"`
	Identifier       string    `json:"identifier"`
	Name             string    `json:"name"`
	Manufacturer     string    `json:"manufacturer,omitempty"`
	Model            string    `json:"model,omitempty"`
	SWVersion        string    `json:"sw_version,omitempty"`
	HWVersion        string    `json:"hw_version,omitempty"`
	ConfigurationURL string    `json:"configuration_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Copy returns an independent copy of the device.
func (d *Device) Copy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// applyInfo copies descriptive attributes from info and reports whether
// anything changed. Empty fields in info are ignored.
func (d *Device) applyInfo(info DeviceInfo) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&d.Name, info.Name)
	set(&d.Manufacturer, info.Manufacturer)
	set(&d.Model, info.Model)
	set(&d.SWVersion, info.SWVersion)
	set(&d.HWVersion, info.HWVersion)
	set(&d.ConfigurationURL, info.ConfigurationURL)
	return changed
}

// Entity is one sensor-like datapoint belonging to a device.
type Entity struct {
	EntityID    string    `json:"entity_id"`
	UniqueID    string    `json:"unique_id"`
	Platform    string    `json:"platform"`
	DeviceID    string    `json:"device_id"`
	Name        string    `json:"name"`
	DeviceClass string    `json:"device_class,omitempty"`
	StateClass  string    `json:"state_class,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Copy returns an independent copy of the entity.
func (e *Entity) Copy() *Entity {
	if e == nil {
		return nil
	}
	cpy := *e
	return &cpy
}

// PlatformOf returns the platform prefix of an entity ID ("sensor" for
// "sensor.esp_now_x"), or "" when the ID has no dot.
func PlatformOf(entityID string) string {
	platform, _, ok := strings.Cut(entityID, ".")
	if !ok {
		return ""
	}
	return platform
}
