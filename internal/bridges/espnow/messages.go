package espnow

import "time"

// MQTT message types published by the bridge.

// StateMessage is the retained state of one sensor.
// Topic: espnow/state/{mac}/{path}
type StateMessage struct {
	EntityID  string `json:"entity_id"`
	MAC       string `json:"mac"`
	Path      string `json:"path"`
	Kind      string `json:"kind"`
	State     any    `json:"state"`
	Unit      string `json:"unit,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewStateMessage builds the state message of u.
func NewStateMessage(u SensorUpdate) StateMessage {
	ts := u.Sensor.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return StateMessage{
		EntityID:  u.Sensor.EntityID,
		MAC:       u.MAC,
		Path:      u.Sensor.Path,
		Kind:      u.Sensor.Kind.String(),
		State:     u.Sensor.State,
		Unit:      u.Sensor.Unit,
		Timestamp: timestamp(ts),
	}
}

// EventMessage is one fired event.
// Topic: espnow/event/{mac}
type EventMessage struct {
	Event     string         `json:"event"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// NewEventMessage builds the message of ev.
func NewEventMessage(ev Event) EventMessage {
	return EventMessage{
		Event:     ev.Name,
		Source:    ev.Source,
		Data:      ev.Data,
		Timestamp: timestamp(ev.FiredAt),
	}
}

// DiscoveryConfig is a Home Assistant MQTT discovery payload, using the
// abbreviated field names.
// Topic: homeassistant/{component}/{unique_id}/config
type DiscoveryConfig struct {
	Name              string           `json:"name"`
	UniqueID          string           `json:"uniq_id"`
	ObjectID          string           `json:"obj_id"`
	StateTopic        string           `json:"stat_t"`
	ValueTemplate     string           `json:"val_tpl"`
	AvailabilityTopic string           `json:"avty_t"`
	AvailabilityTpl   string           `json:"avty_tpl"`
	DeviceClass       string           `json:"dev_cla,omitempty"`
	StateClass        string           `json:"stat_cla,omitempty"`
	Unit              string           `json:"unit_of_meas,omitempty"`
	Icon              string           `json:"ic,omitempty"`
	PayloadOn         string           `json:"pl_on,omitempty"`
	PayloadOff        string           `json:"pl_off,omitempty"`
	Device            *DiscoveryDevice `json:"dev"`
}

// DiscoveryDevice groups discovered entities under one device.
type DiscoveryDevice struct {
	Identifiers  []string `json:"ids"`
	Name         string   `json:"name"`
	SWVersion    string   `json:"sw"`
	HWVersion    string   `json:"hw"`
	Model        string   `json:"mdl"`
	Manufacturer string   `json:"mf"`
	ConfigURL    string   `json:"cu,omitempty"`
}

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is reading frames normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates a collaborator is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: espnow/bridge/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     string       `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Serial        SerialStatus `json:"serial"`
	Nodes         int          `json:"nodes"`
	Reason        string       `json:"reason,omitempty"`
}

// SerialStatus describes the serial transport.
type SerialStatus struct {
	Port       string `json:"port"`
	Connected  bool   `json:"connected"`
	LinesRead  uint64 `json:"lines_read"`
	Reconnects uint64 `json:"reconnects"`
}
