package espnow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/espnow-bridge/internal/device"
)

// SensorKind is the closed set of sensor types a node can declare.
type SensorKind int

const (
	// KindMeasurement stores the raw reported scalar.
	KindMeasurement SensorKind = iota
	// KindBoolean coerces reported values to "on"/"off".
	KindBoolean
)

// String returns the entity platform of the kind.
func (k SensorKind) String() string {
	if k == KindBoolean {
		return device.PlatformBinarySensor
	}
	return device.PlatformSensor
}

// MarshalText implements encoding.TextMarshaler.
func (k SensorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Boolean sensor states.
const (
	StateOn  = "on"
	StateOff = "off"
)

// Sensor config fields ("$" keys).
const (
	cfgType        = "t"
	cfgDeviceClass = "dc"
	cfgStateClass  = "sc"
	cfgIcon        = "icon"
	cfgIconShort   = "i"
	cfgUnit        = "unit"
	cfgUnitShort   = "u"
	cfgInitial     = "nv"
)

// Values of the "t" config field.
const (
	typeBoolean   = 1
	typeEventOnly = 2
)

// entityNamespace prefixes every durable sensor identifier.
const entityNamespace = "esp_now"

// stateClasses expands state class abbreviations.
var stateClasses = map[string]string{
	"m":  "measurement",
	"t":  "total",
	"ti": "total_increasing",
}

// Sensor is one named datapoint of a node.
type Sensor struct {
	Path        string     `json:"path"`
	Name        string     `json:"name"`
	Kind        SensorKind `json:"kind"`
	EntityID    string     `json:"entity_id"`
	UniqueID    string     `json:"unique_id"`
	DeviceClass string     `json:"device_class,omitempty"`
	StateClass  string     `json:"state_class,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	State       any        `json:"state"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DurableID returns the entity ID of the sensor at path. The same
// (mac, node name, path) triple always yields the same ID.
//
// Example:
//
//	DurableID(KindMeasurement, "AA:BB", "Kitchen", "env temp")
//	// sensor.esp_now_aa:bb_kitchen_env_temp
func DurableID(kind SensorKind, mac, nodeName, path string) string {
	return kind.String() + "." + slug(entityNamespace+"_"+mac+"_"+nodeName+"_"+path)
}

// uniqueID is the registry unique ID used for discovery.
func uniqueID(mac, sensorName string) string {
	return mac + "_" + slug(sensorName)
}

// sensorName is the display name of the sensor at path.
func sensorName(n *Node, path string) string {
	return n.name + " " + path
}

// setValue records a reported value, coercing it for the sensor kind.
func (s *Sensor) setValue(v any, now time.Time) {
	if s.Kind == KindBoolean {
		if truthy(v) {
			s.State = StateOn
		} else {
			s.State = StateOff
		}
	} else {
		s.State = plain(v)
	}
	s.UpdatedAt = now
}

// entity converts the sensor to its registry record.
func (s *Sensor) entity(deviceID string) *device.Entity {
	return &device.Entity{
		EntityID:    s.EntityID,
		UniqueID:    s.UniqueID,
		Platform:    s.Kind.String(),
		DeviceID:    deviceID,
		Name:        s.Name,
		DeviceClass: s.DeviceClass,
		StateClass:  s.StateClass,
		Icon:        s.Icon,
		Unit:        s.Unit,
	}
}

// EntityStore is the entity side of the device registry.
// Satisfied by *device.Registry.
type EntityStore interface {
	GetOrCreateEntity(ctx context.Context, e *device.Entity) (*device.Entity, error)
	UpdateEntity(ctx context.Context, e *device.Entity) error
	GetEntity(ctx context.Context, entityID string) (*device.Entity, error)
}

// EntityRegistry creates, configures and updates the sensors of nodes.
type EntityRegistry struct {
	entities EntityStore
	sinks    []StateSink
	logger   Logger
	now      func() time.Time
}

// NewEntityRegistry creates a registry backed by entities. Every sensor
// discovery and state change is delivered to sinks in order.
func NewEntityRegistry(entities EntityStore, logger Logger, sinks ...StateSink) *EntityRegistry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &EntityRegistry{
		entities: entities,
		sinks:    sinks,
		logger:   logger,
		now:      time.Now,
	}
}

// Configure applies a "$" key. A missing sensor is created first; an
// existing one is reconfigured. A non-object config counts as empty.
// Caller must hold n.mu.
func (r *EntityRegistry) Configure(ctx context.Context, n *Node, path string, config any) error {
	cfg, _ := config.(Object)

	if s, ok := n.sensors[path]; ok {
		attrsChanged, valueSet := r.applyConfig(s, cfg)
		if attrsChanged {
			if err := r.entities.UpdateEntity(ctx, s.entity(n.deviceID)); err != nil {
				return fmt.Errorf("update entity %s: %w", s.EntityID, err)
			}
			r.discovered(n, s)
		}
		if valueSet {
			r.changed(n, s)
		}
		return nil
	}

	_, err := r.AddSensor(ctx, n, path, cfg)
	return err
}

// AddSensor creates the sensor at path from cfg. The "t" field selects the
// kind: 1 is Boolean, 2 is an event-only placeholder (no sensor), anything
// else is Measurement. Returns nil without error for placeholders.
// Caller must hold n.mu.
func (r *EntityRegistry) AddSensor(ctx context.Context, n *Node, path string, cfg Object) (*Sensor, error) {
	kind := KindMeasurement
	if t, ok := cfg.Get(cfgType); ok {
		num, _ := asNumber(t)
		switch num {
		case typeEventOnly:
			r.logger.Debug("event-only config, no sensor created", "mac", n.mac, "path", path)
			return nil, nil
		case typeBoolean:
			kind = KindBoolean
		}
	}

	name := sensorName(n, path)
	s := &Sensor{
		Path:     path,
		Name:     name,
		Kind:     kind,
		EntityID: DurableID(kind, n.mac, n.name, path),
		UniqueID: uniqueID(n.mac, name),
	}
	if kind == KindMeasurement {
		s.StateClass = stateClasses["m"]
	}
	_, valueSet := r.applyConfig(s, cfg)

	if _, err := r.entities.GetOrCreateEntity(ctx, s.entity(n.deviceID)); err != nil {
		return nil, fmt.Errorf("register entity %s: %w", s.EntityID, err)
	}
	n.sensors[path] = s

	r.logger.Info("sensor created", "mac", n.mac, "path", path, "entity_id", s.EntityID, "kind", kind.String())
	r.discovered(n, s)
	if valueSet {
		r.changed(n, s)
	}
	return s, nil
}

// applyConfig copies recognised fields from cfg into s. It reports whether
// any attribute changed and whether an initial value was set. Unknown
// fields are logged and ignored.
func (r *EntityRegistry) applyConfig(s *Sensor, cfg Object) (changed, valueSet bool) {
	set := func(dst *string, v any) {
		str := formatValue(v)
		if *dst != str {
			*dst = str
			changed = true
		}
	}

	for _, m := range cfg {
		switch m.Key {
		case cfgType:
		case cfgDeviceClass:
			set(&s.DeviceClass, m.Value)
		case cfgStateClass:
			if s.Kind != KindMeasurement {
				r.logger.Warn("state class ignored for binary sensor", "entity_id", s.EntityID)
				continue
			}
			sc := formatValue(m.Value)
			if full, ok := stateClasses[sc]; ok {
				sc = full
			}
			set(&s.StateClass, sc)
		case cfgIcon, cfgIconShort:
			set(&s.Icon, m.Value)
		case cfgUnit, cfgUnitShort:
			set(&s.Unit, m.Value)
		case cfgInitial:
			s.setValue(m.Value, r.now())
			valueSet = true
		default:
			r.logger.Warn("unknown sensor config", "entity_id", s.EntityID, "key", m.Key, "value", m.Value)
		}
	}
	return changed, valueSet
}

// HandleValue routes a scalar value to the sensor at path. A sensor not yet
// known to the node is reattached from the entity registry; values for
// unknown sensors are discarded. Caller must hold n.mu.
func (r *EntityRegistry) HandleValue(ctx context.Context, n *Node, path string, value any) error {
	s, ok := n.sensors[path]
	if !ok {
		var err error
		s, err = r.reattach(ctx, n, path)
		if err != nil {
			return err
		}
		if s == nil {
			r.logger.Debug("value for unknown sensor discarded", "mac", n.mac, "path", path)
			return nil
		}
	}

	s.setValue(value, r.now())
	r.changed(n, s)
	return nil
}

// reattach looks up a sensor created in an earlier run, probing the
// Measurement ID before the Boolean one.
func (r *EntityRegistry) reattach(ctx context.Context, n *Node, path string) (*Sensor, error) {
	for _, kind := range []SensorKind{KindMeasurement, KindBoolean} {
		id := DurableID(kind, n.mac, n.name, path)
		e, err := r.entities.GetEntity(ctx, id)
		if errors.Is(err, device.ErrEntityNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup entity %s: %w", id, err)
		}

		s := &Sensor{
			Path:        path,
			Name:        sensorName(n, path),
			Kind:        kind,
			EntityID:    e.EntityID,
			UniqueID:    e.UniqueID,
			DeviceClass: e.DeviceClass,
			Icon:        e.Icon,
			Unit:        e.Unit,
		}
		if kind == KindMeasurement {
			s.StateClass = e.StateClass
		}
		n.sensors[path] = s

		r.logger.Info("sensor reattached", "mac", n.mac, "path", path, "entity_id", s.EntityID)
		r.discovered(n, s)
		return s, nil
	}
	return nil, nil
}

func (r *EntityRegistry) discovered(n *Node, s *Sensor) {
	update := newSensorUpdate(n, s)
	for _, sink := range r.sinks {
		sink.SensorDiscovered(update)
	}
}

func (r *EntityRegistry) changed(n *Node, s *Sensor) {
	update := newSensorUpdate(n, s)
	for _, sink := range r.sinks {
		sink.StateChanged(update)
	}
}
