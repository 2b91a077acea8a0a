package espnow

import (
	"fmt"
	"sort"
	"sync"
)

// Device trigger descriptor constants.
const (
	triggerDomain   = "esp_now"
	triggerPlatform = "device"
)

// DeviceTrigger describes one trigger an automation can attach to.
type DeviceTrigger struct {
	DeviceID string `json:"device_id"`
	Domain   string `json:"domain"`
	Platform string `json:"platform"`
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
}

// TriggerHandler is invoked for each matching event on the ingest
// goroutine. It must not block.
type TriggerHandler func(ev Event)

type attachment struct {
	id      uint64
	match   map[string]any
	handler TriggerHandler
}

// TriggerBus resolves device triggers through a NodeRegistry and delivers
// matching events to attached handlers.
//
// Thread Safety: safe for concurrent use.
type TriggerBus struct {
	nodes *NodeRegistry

	mu          sync.RWMutex
	nextID      uint64
	attachments map[uint64]attachment
}

// NewTriggerBus creates a bus resolving devices through nodes.
func NewTriggerBus(nodes *NodeRegistry) *TriggerBus {
	return &TriggerBus{
		nodes:       nodes,
		attachments: make(map[uint64]attachment),
	}
}

// ListTriggers returns one descriptor per trigger key of the device,
// sorted by key.
//
// Returns ErrDeviceNotFound for an unknown device ID.
func (b *TriggerBus) ListTriggers(deviceID string) ([]DeviceTrigger, error) {
	n, ok := b.nodes.ByDeviceID(deviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	keys := n.TriggerKeys()
	out := make([]DeviceTrigger, 0, len(keys))
	for _, key := range keys {
		typ, subtype, _ := SplitTriggerKey(key)
		out = append(out, DeviceTrigger{
			DeviceID: deviceID,
			Domain:   triggerDomain,
			Platform: triggerPlatform,
			Type:     typ,
			Subtype:  subtype,
		})
	}
	return out, nil
}

// Attach registers handler for events of the device's trigger type and
// optional subtype. An event matches when it comes from the device, has
// the same type and subtype, and carries every field of the stored trigger.
//
// Parameters:
//   - deviceID: device registry ID of the node
//   - typ, subtype: trigger key parts; subtype may be empty
//   - handler: invoked for each matching event
//
// Returns:
//   - func(): detaches the handler; safe to call more than once
//   - error: ErrDeviceNotFound or ErrTriggerNotFound
func (b *TriggerBus) Attach(deviceID, typ, subtype string, handler TriggerHandler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	n, ok := b.nodes.ByDeviceID(deviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	key := JoinTriggerKey(typ, subtype)
	triggers := n.Triggers()
	payload, ok := triggers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrTriggerNotFound, key, n.Name())
	}

	match := map[string]any{eventFieldType: typ}
	if subtype != "" {
		match[eventFieldSubtype] = subtype
	}
	for k, v := range payload {
		match[k] = v
	}
	match[eventFieldDeviceID] = deviceID

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.attachments[id] = attachment{id: id, match: match, handler: handler}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.attachments, id)
			b.mu.Unlock()
		})
	}, nil
}

// EventFired implements EventSink.
func (b *TriggerBus) EventFired(ev Event) {
	b.mu.RLock()
	var matched []TriggerHandler
	for _, id := range sortedIDs(b.attachments) {
		a := b.attachments[id]
		if eventMatches(ev, a.match) {
			matched = append(matched, a.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		h(ev)
	}
}

// Attached returns the number of attached handlers.
func (b *TriggerBus) Attached() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.attachments)
}

func eventMatches(ev Event, match map[string]any) bool {
	for k, want := range match {
		got, ok := ev.Data[k]
		if !ok || !sameValue(got, want) {
			return false
		}
	}
	return true
}

func sortedIDs(m map[uint64]attachment) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
