package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots.
const (
	// TopicPrefix is the base of every topic the bridge owns.
	TopicPrefix = "espnow"

	// DefaultDiscoveryPrefix is Home Assistant's default discovery root.
	DefaultDiscoveryPrefix = "homeassistant"
)

// Topics builds the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.SensorState("aa:bb:cc:dd:ee:ff", "door open")
//	// espnow/state/aabbccddeeff/door_open
type Topics struct {
	// DiscoveryPrefix overrides DefaultDiscoveryPrefix when set.
	DiscoveryPrefix string
}

// BridgeStatus is the retained online/offline status topic (also the LWT).
func (Topics) BridgeStatus() string {
	return TopicPrefix + "/bridge/status"
}

// BridgeHealth is the periodic health report topic.
func (Topics) BridgeHealth() string {
	return TopicPrefix + "/bridge/health"
}

// SensorState is the retained state topic of one sensor.
func (Topics) SensorState(mac, path string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, TopicSegment(mac), TopicSegment(path))
}

// NodeEvents is the topic on which events fired by a node are published.
func (Topics) NodeEvents(mac string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, TopicSegment(mac))
}

// AllEvents matches the events of every node.
func (Topics) AllEvents() string {
	return TopicPrefix + "/event/+"
}

// Discovery is the Home Assistant discovery config topic for one entity.
// component is "sensor" or "binary_sensor".
func (t Topics) Discovery(component, uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/config", t.discoveryPrefix(), component, TopicSegment(uniqueID))
}

// DiscoveryStatus is the topic where Home Assistant announces it is online.
func (t Topics) DiscoveryStatus() string {
	return t.discoveryPrefix() + "/status"
}

func (t Topics) discoveryPrefix() string {
	if t.DiscoveryPrefix != "" {
		return t.DiscoveryPrefix
	}
	return DefaultDiscoveryPrefix
}

// TopicSegment makes s safe for use as a single topic level: lowercase,
// colons dropped, wildcards, separators and whitespace replaced by '_'.
func TopicSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case ':':
		case '/', '+', '#', ' ', '-', '\t':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
