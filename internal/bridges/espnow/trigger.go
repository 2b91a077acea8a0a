package espnow

import (
	"fmt"
	"sort"
	"strings"
)

// Trigger config fields consumed when deriving the trigger key.
const (
	triggerFieldType    = "t"
	triggerFieldSubtype = "s"

	// triggerKeySep separates type and subtype in a trigger key.
	triggerKeySep = "|"
)

// TriggerInfo is one entry of a node's trigger table.
type TriggerInfo struct {
	Key     string         `json:"key"`
	Type    string         `json:"type"`
	Subtype string         `json:"subtype,omitempty"`
	Payload map[string]any `json:"payload"`
}

// deriveTrigger computes the canonical trigger key and stored payload for
// a "^" key named name.
//
//	null or {}             key slug(name), empty payload
//	"button"               key "button" verbatim
//	{"t":"button","s":"x"} key "button|x", remaining fields as payload
func deriveTrigger(name string, config any) (string, map[string]any, error) {
	payload := map[string]any{}

	if !truthy(config) {
		return slug(name), payload, nil
	}

	switch c := config.(type) {
	case string:
		return c, payload, nil
	case Object:
		typ := slug(name)
		subtype := ""
		for _, m := range c {
			switch m.Key {
			case triggerFieldType:
				typ = slug(name)
				if truthy(m.Value) {
					typ = formatValue(m.Value)
				}
			case triggerFieldSubtype:
				subtype = ""
				if truthy(m.Value) {
					subtype = formatValue(m.Value)
				}
			default:
				payload[m.Key] = plain(m.Value)
			}
		}
		return JoinTriggerKey(typ, subtype), payload, nil
	default:
		return "", nil, fmt.Errorf("%w: %q has %T value", ErrInvalidTriggerConfig, name, config)
	}
}

// configureTrigger stores the trigger derived from a "^" key and binds the
// event name to it. The node becomes dirty when either mapping changes.
// Caller must hold n.mu.
func (n *Node) configureTrigger(name string, config any) error {
	key, payload, err := deriveTrigger(name, config)
	if err != nil {
		return err
	}

	prevKey, bound := n.events[name]
	prevPayload, known := n.triggers[key]
	if !bound || prevKey != key || !known || !sameValue(prevPayload, payload) {
		n.dirty = true
	}

	n.triggers[key] = payload
	n.events[name] = key
	return nil
}

// TriggerKeys returns the node's trigger keys sorted.
func (n *Node) TriggerKeys() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return sortedKeys(n.triggers)
}

// TriggerList is the lookup view of the trigger table, computed from the
// stored mapping on every call.
func (n *Node) TriggerList() []TriggerInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]TriggerInfo, 0, len(n.triggers))
	for _, key := range sortedKeys(n.triggers) {
		typ, sub, _ := SplitTriggerKey(key)
		payload := make(map[string]any, len(n.triggers[key]))
		for k, v := range n.triggers[key] {
			payload[k] = v
		}
		out = append(out, TriggerInfo{Key: key, Type: typ, Subtype: sub, Payload: payload})
	}
	return out
}

// trigger returns the stored payload for key. Caller must hold n.mu.
func (n *Node) trigger(key string) (map[string]any, bool) {
	p, ok := n.triggers[key]
	return p, ok
}

// SplitTriggerKey splits a trigger key on the first '|'. ok reports
// whether a subtype was present.
func SplitTriggerKey(key string) (typ, subtype string, ok bool) {
	return strings.Cut(key, triggerKeySep)
}

// JoinTriggerKey builds a trigger key from type and optional subtype.
func JoinTriggerKey(typ, subtype string) string {
	if subtype == "" {
		return typ
	}
	return typ + triggerKeySep + subtype
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
