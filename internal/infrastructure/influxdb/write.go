package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	measurementSensorValues = "sensor_values"
	measurementNodeEvents   = "node_events"
)

// WriteSensorValue records one sensor reading.
//
// Numbers are stored in field "value", booleans in "state" and anything
// else in "text". The write is non-blocking.
func (c *Client) WriteSensorValue(mac, entityID, path string, value any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sensorPoint(mac, entityID, path, value, time.Now()))
}

// WriteEvent records one fired node event with its data as fields.
func (c *Client) WriteEvent(mac, eventType string, data map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(eventPoint(mac, eventType, data, time.Now()))
}

func sensorPoint(mac, entityID, path string, value any, ts time.Time) *write.Point {
	tags := map[string]string{
		"mac":       mac,
		"entity_id": entityID,
		"path":      path,
	}

	var fields map[string]any
	switch v := value.(type) {
	case bool:
		fields = map[string]any{"state": v}
	case float64:
		fields = map[string]any{"value": v}
	case int:
		fields = map[string]any{"value": float64(v)}
	case int64:
		fields = map[string]any{"value": float64(v)}
	case string:
		fields = map[string]any{"text": v}
	default:
		fields = map[string]any{"text": formatAny(v)}
	}

	return write.NewPoint(measurementSensorValues, tags, fields, ts)
}

func eventPoint(mac, eventType string, data map[string]any, ts time.Time) *write.Point {
	fields := make(map[string]any, len(data)+1)
	for k, v := range data {
		switch v.(type) {
		case bool, float64, int, int64, string:
			fields[k] = v
		default:
			fields[k] = formatAny(v)
		}
	}
	// InfluxDB rejects points with no fields.
	fields["count"] = 1

	return write.NewPoint(measurementNodeEvents,
		map[string]string{"mac": mac, "event_type": eventType},
		fields, ts)
}
