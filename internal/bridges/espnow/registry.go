package espnow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/espnow-bridge/internal/device"
)

// Device registry attributes of every node.
const (
	deviceDomain       = "esp_now"
	deviceManufacturer = "Espressive"
	deviceModel        = "ESP32"
	deviceSWVersion    = "0.1"
	deviceHWVersion    = "0.1"
	deviceConfigURL    = "https://github.com/avenhaus"
)

// DeviceRegistry assigns durable device IDs to nodes.
// Satisfied by *device.Registry.
type DeviceRegistry interface {
	GetOrCreate(ctx context.Context, info device.DeviceInfo) (*device.Device, error)
}

// Snapshot is the persisted state of every known node.
type Snapshot struct {
	Nodes map[string]NodeSnapshot `json:"nodes"`
}

// NodeSnapshot is the persisted state of one node. Sensors are not
// persisted; they reattach through their durable entity IDs.
type NodeSnapshot struct {
	Name     string                    `json:"name"`
	DeviceID string                    `json:"device_id"`
	Triggers map[string]map[string]any `json:"triggers"`
	Events   map[string]string         `json:"events"`
}

// NodeRegistry indexes nodes by MAC and by device ID.
//
// Thread Safety: safe for concurrent use. Nodes are only created by the
// ingest goroutine.
type NodeRegistry struct {
	devices DeviceRegistry
	logger  Logger

	mu         sync.RWMutex
	byMAC      map[string]*Node
	byDeviceID map[string]*Node
}

// NewNodeRegistry creates an empty registry.
func NewNodeRegistry(devices DeviceRegistry, logger Logger) *NodeRegistry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &NodeRegistry{
		devices:    devices,
		logger:     logger,
		byMAC:      make(map[string]*Node),
		byDeviceID: make(map[string]*Node),
	}
}

// LookupOrCreate returns the node for mac, creating and registering it on
// first sight. The name is used only at creation; an empty name becomes
// "ESPNOW-<mac>".
//
// Returns:
//   - *Node: existing or newly created node
//   - bool: true when the node was created by this call
//   - error: device registry failure
func (r *NodeRegistry) LookupOrCreate(ctx context.Context, mac, name string) (*Node, bool, error) {
	if n, ok := r.ByMAC(mac); ok {
		return n, false, nil
	}

	n, err := r.create(ctx, mac, name, nil, nil)
	if err != nil {
		return nil, false, err
	}
	r.logger.Info("new node", "mac", mac, "name", n.name, "device_id", n.deviceID)
	return n, true, nil
}

func (r *NodeRegistry) create(ctx context.Context, mac, name string, triggers map[string]map[string]any, events map[string]string) (*Node, error) {
	if name == "" {
		name = defaultNodeName(mac)
	}

	d, err := r.devices.GetOrCreate(ctx, device.DeviceInfo{
		Domain:           deviceDomain,
		Identifier:       mac,
		Name:             name,
		Manufacturer:     deviceManufacturer,
		Model:            deviceModel,
		SWVersion:        deviceSWVersion,
		HWVersion:        deviceHWVersion,
		ConfigurationURL: deviceConfigURL,
	})
	if err != nil {
		return nil, fmt.Errorf("register device for %s: %w", mac, err)
	}

	n := newNode(mac, name, d.ID)
	for key, payload := range triggers {
		if payload == nil {
			payload = map[string]any{}
		}
		n.triggers[key] = payload
	}
	for ev, key := range events {
		n.events[ev] = key
	}

	r.mu.Lock()
	r.byMAC[mac] = n
	r.byDeviceID[n.deviceID] = n
	r.mu.Unlock()
	return n, nil
}

// ByMAC returns the node with the given MAC.
func (r *NodeRegistry) ByMAC(mac string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byMAC[mac]
	return n, ok
}

// ByDeviceID returns the node with the given device registry ID.
func (r *NodeRegistry) ByDeviceID(id string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byDeviceID[id]
	return n, ok
}

// Nodes returns all nodes sorted by MAC.
func (r *NodeRegistry) Nodes() []*Node {
	r.mu.RLock()
	nodes := make([]*Node, 0, len(r.byMAC))
	for _, n := range r.byMAC {
		nodes = append(nodes, n)
	}
	r.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].mac < nodes[j].mac })
	return nodes
}

// Len returns the number of known nodes.
func (r *NodeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byMAC)
}

// Restore recreates the nodes of a loaded snapshot with their triggers and
// event bindings. Nodes already known are left untouched. A node that
// cannot be registered is logged and skipped.
func (r *NodeRegistry) Restore(ctx context.Context, snap Snapshot) int {
	restored := 0
	for _, mac := range sortedKeys(snap.Nodes) {
		if _, ok := r.ByMAC(mac); ok {
			continue
		}
		ns := snap.Nodes[mac]
		n, err := r.create(ctx, mac, ns.Name, ns.Triggers, ns.Events)
		if err != nil {
			r.logger.Error("failed to restore node", "mac", mac, "error", err)
			continue
		}
		if ns.DeviceID != "" && ns.DeviceID != n.deviceID {
			r.logger.Warn("device id changed since snapshot", "mac", mac, "stored", ns.DeviceID, "current", n.deviceID)
		}
		restored++
	}
	return restored
}

// Snapshot serialises every known node.
func (r *NodeRegistry) Snapshot() Snapshot {
	nodes := r.Nodes()
	snap := Snapshot{Nodes: make(map[string]NodeSnapshot, len(nodes))}
	for _, n := range nodes {
		snap.Nodes[n.mac] = n.Snapshot()
	}
	return snap
}
