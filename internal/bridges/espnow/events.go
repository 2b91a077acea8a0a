package espnow

import "time"

// EventName is the name under which every node event is published.
const EventName = "esp_now_event"

// Event payload fields set by the dispatcher.
const (
	eventFieldType       = "type"
	eventFieldSubtype    = "subtype"
	eventFieldValue      = "value"
	eventFieldDeviceID   = "device_id"
	eventFieldDeviceName = "device_name"
)

// Event is one fired "@" key.
type Event struct {
	// Name is always EventName.
	Name    string         `json:"event"`
	MAC     string         `json:"mac"`
	Source  string         `json:"source"`
	Data    map[string]any `json:"data"`
	FiredAt time.Time      `json:"fired_at"`
}

// Type returns the type field of the payload.
func (e Event) Type() string { return stringField(e.Data, eventFieldType) }

// Subtype returns the subtype field of the payload, or "".
func (e Event) Subtype() string { return stringField(e.Data, eventFieldSubtype) }

// DeviceID returns the device_id field of the payload.
func (e Event) DeviceID() string { return stringField(e.Data, eventFieldDeviceID) }

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// pendingEvent is an "@" key collected during a frame walk.
type pendingEvent struct {
	name  string
	value any
}

// eventList collects events in first-seen order; a repeated name keeps its
// position and takes the later value.
type eventList []pendingEvent

func (l *eventList) add(name string, value any) {
	for i := range *l {
		if (*l)[i].name == name {
			(*l)[i].value = value
			return
		}
	}
	*l = append(*l, pendingEvent{name: name, value: value})
}

// buildEvent assembles the payload for one event. Caller must hold n.mu.
//
// The payload starts as {type: slug(name)}. A bound trigger replaces the
// type, adds its subtype and merges its stored fields. An object value is
// merged; any other non-null value is set as "value".
func (n *Node) buildEvent(name string, value any, now time.Time) Event {
	data := map[string]any{eventFieldType: slug(name)}

	if key, ok := n.events[name]; ok {
		typ, subtype, hasSub := SplitTriggerKey(key)
		data[eventFieldType] = typ
		if hasSub {
			data[eventFieldSubtype] = subtype
		}
		if payload, ok := n.trigger(key); ok {
			for k, v := range payload {
				data[k] = v
			}
		}
	}

	switch v := value.(type) {
	case nil:
	case Object:
		for _, m := range v {
			data[m.Key] = plain(m.Value)
		}
	default:
		data[eventFieldValue] = plain(v)
	}

	data[eventFieldDeviceID] = n.deviceID
	data[eventFieldDeviceName] = n.name

	return Event{
		Name:    EventName,
		MAC:     n.mac,
		Source:  name,
		Data:    data,
		FiredAt: now,
	}
}

// EventDispatcher delivers fired events to its sinks.
type EventDispatcher struct {
	sinks []EventSink
	now   func() time.Time
}

// NewEventDispatcher creates a dispatcher delivering to sinks in order.
func NewEventDispatcher(sinks ...EventSink) *EventDispatcher {
	return &EventDispatcher{sinks: sinks, now: time.Now}
}

// build assembles every collected event of a frame. Caller must hold n.mu.
func (d *EventDispatcher) build(n *Node, events eventList) []Event {
	now := d.now()
	out := make([]Event, 0, len(events))
	for _, pe := range events {
		out = append(out, n.buildEvent(pe.name, pe.value, now))
	}
	return out
}

// Fire delivers events, in order, to every sink.
func (d *EventDispatcher) Fire(events []Event) {
	for _, ev := range events {
		for _, sink := range d.sinks {
			sink.EventFired(ev)
		}
	}
}
