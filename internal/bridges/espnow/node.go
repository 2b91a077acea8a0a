package espnow

import (
	"sort"
	"sync"
)

// defaultNamePrefix is prepended to the MAC for nodes that never sent a name.
const defaultNamePrefix = "ESPNOW-"

// Node is one physical ESP-NOW sensor device.
//
// The ingest goroutine is the only writer; it holds mu while a frame is
// applied. Exported accessors take the read lock and return copies.
type Node struct {
	mac      string
	name     string
	deviceID string

	mu       sync.RWMutex
	sensors  map[string]*Sensor
	triggers map[string]map[string]any // trigger key -> extra event payload
	events   map[string]string         // event name -> trigger key

	// dirty is set when a trigger or event binding changed during the
	// current frame.
	dirty bool
}

func newNode(mac, name, deviceID string) *Node {
	return &Node{
		mac:      mac,
		name:     name,
		deviceID: deviceID,
		sensors:  make(map[string]*Sensor),
		triggers: make(map[string]map[string]any),
		events:   make(map[string]string),
	}
}

// defaultNodeName is the display name of a node that sent no name.
func defaultNodeName(mac string) string {
	return defaultNamePrefix + mac
}

// MAC returns the node's MAC address.
func (n *Node) MAC() string { return n.mac }

// Name returns the display name fixed when the node was created.
func (n *Node) Name() string { return n.name }

// DeviceID returns the device registry ID of the node.
func (n *Node) DeviceID() string { return n.deviceID }

// Sensors returns copies of the node's sensors sorted by path.
func (n *Node) Sensors() []Sensor {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Sensor, 0, len(n.sensors))
	for _, s := range n.sensors {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Sensor returns a copy of the sensor at path.
func (n *Node) Sensor(path string) (Sensor, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	s, ok := n.sensors[path]
	if !ok {
		return Sensor{}, false
	}
	return *s, true
}

// Triggers returns a deep copy of the trigger table.
func (n *Node) Triggers() map[string]map[string]any {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyTriggers(n.triggers)
}

// EventBindings returns a copy of the event name to trigger key bindings.
func (n *Node) EventBindings() map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyBindings(n.events)
}

// Snapshot returns the persisted form of the node.
func (n *Node) Snapshot() NodeSnapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return NodeSnapshot{
		Name:     n.name,
		DeviceID: n.deviceID,
		Triggers: copyTriggers(n.triggers),
		Events:   copyBindings(n.events),
	}
}

func copyTriggers(src map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(src))
	for k, payload := range src {
		cp := make(map[string]any, len(payload))
		for f, v := range payload {
			cp[f] = v
		}
		out[k] = cp
	}
	return out
}

func copyBindings(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
