package espnow

import (
	"context"
	"strings"
)

// KeyKind is the role of one frame key, selected by its sigil.
type KeyKind int

const (
	// KeySkip marks reserved keys and "not_found" sensor values.
	KeySkip KeyKind = iota
	// KeyStructural is a plain key whose value is an object.
	KeyStructural
	// KeyTrigger is a "^" key defining a device trigger.
	KeyTrigger
	// KeyEvent is an "@" key firing an event.
	KeyEvent
	// KeyConfig is a "$" key configuring a sensor.
	KeyConfig
	// KeyValue is a plain key with a scalar value.
	KeyValue
)

var keyKindNames = [...]string{"skip", "structural", "trigger", "event", "config", "value"}

func (k KeyKind) String() string {
	if int(k) < len(keyKindNames) {
		return keyKindNames[k]
	}
	return "unknown"
}

// Key sigils.
const (
	sigilTrigger = '^'
	sigilEvent   = '@'
	sigilConfig  = '$'
)

// pathSep joins nested key segments.
const pathSep = " "

// classifyKey returns the role of key and its path leaf with the sigil
// stripped. Sigils take precedence over the value shape at every depth.
func classifyKey(key string, value any, topLevel bool) (KeyKind, string) {
	if key == "" {
		return KeySkip, ""
	}
	if topLevel && (key == keyMAC || key == keyName) {
		return KeySkip, ""
	}
	switch key[0] {
	case sigilTrigger:
		return KeyTrigger, key[1:]
	case sigilEvent:
		return KeyEvent, key[1:]
	case sigilConfig:
		return KeyConfig, key[1:]
	}

	if _, ok := value.(Object); ok {
		return KeyStructural, key
	}
	// The sentinel only applies to sensor values.
	if key == notFound {
		return KeySkip, ""
	}
	if s, ok := value.(string); ok && s == notFound {
		return KeySkip, ""
	}
	return KeyValue, key
}

// joinPath extends path by leaf. An empty leaf keeps the parent path.
func joinPath(path, leaf string) string {
	switch {
	case path == "":
		return leaf
	case leaf == "":
		return path
	default:
		return strings.Join([]string{path, leaf}, pathSep)
	}
}

// walk applies every member of obj to n, depth first in source order.
// Events are collected into events for dispatch after the walk. Errors are
// isolated to their key. Caller must hold n.mu.
func (e *Engine) walk(ctx context.Context, n *Node, obj Object, path string, events *eventList) {
	for _, m := range obj {
		kind, leaf := classifyKey(m.Key, m.Value, path == "")
		if kind == KeySkip {
			continue
		}

		name := joinPath(path, leaf)
		if name == "" {
			e.logger.Debug("key with empty path ignored", "mac", n.mac, "key", m.Key)
			continue
		}

		switch kind {
		case KeyStructural:
			e.walk(ctx, n, m.Value.(Object), name, events)
		case KeyTrigger:
			if err := n.configureTrigger(name, m.Value); err != nil {
				e.logger.Error("invalid device trigger config", "mac", n.mac, "name", name, "error", err)
			}
		case KeyEvent:
			events.add(name, m.Value)
		case KeyConfig:
			if err := e.sensors.Configure(ctx, n, name, m.Value); err != nil {
				e.logger.Error("sensor config failed", "mac", n.mac, "path", name, "error", err)
			}
		case KeyValue:
			if err := e.sensors.HandleValue(ctx, n, name, m.Value); err != nil {
				e.logger.Error("sensor update failed", "mac", n.mac, "path", name, "error", err)
			}
		}
	}
}
