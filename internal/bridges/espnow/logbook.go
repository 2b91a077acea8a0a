package espnow

import (
	"encoding/json"
	"strings"
	"unicode"
)

// unknownDevice is the logbook name of events from unregistered devices.
const unknownDevice = "Unknown device"

// LogbookEntry is the human-readable form of a fired event.
type LogbookEntry struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// DescribeEvent renders an event payload for the logbook.
//
// Example:
//
//	{"type": "button", "subtype": "double_click", "value": 2}
//	// "Button - Double Click event was fired with value: 2"
func DescribeEvent(nodes *NodeRegistry, data map[string]any) LogbookEntry {
	entry := LogbookEntry{Name: unknownDevice}
	if id, ok := data[eventFieldDeviceID].(string); ok {
		if n, ok := nodes.ByDeviceID(id); ok && n.Name() != "" {
			entry.Name = n.Name()
		}
	}

	typ, ok := data[eventFieldType].(string)
	if !ok || typ == "" {
		typ = EventName
	}
	if sub, ok := data[eventFieldSubtype].(string); ok && sub != typ {
		typ = typ + " - " + sub
	}
	typ = titleCase(strings.ReplaceAll(typ, "_", " "))

	if strings.Contains(strings.ToLower(typ), "event") {
		entry.Message = typ + " was fired"
	} else {
		entry.Message = typ + " event was fired"
	}

	if v, ok := data[eventFieldValue]; ok && truthy(v) {
		entry.Message += " with value: " + describeValue(v)
	}
	if p, ok := data["params"]; ok && truthy(p) {
		entry.Message += " with parameters: " + describeValue(p)
	}
	return entry
}

// titleCase upper-cases the first letter of every word and lower-cases
// the rest. A word starts after any non-letter.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if prevLetter {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

func describeValue(v any) string {
	switch v.(type) {
	case map[string]any, []any, Object:
		data, err := json.Marshal(v)
		if err == nil {
			return string(data)
		}
	}
	return formatValue(v)
}
