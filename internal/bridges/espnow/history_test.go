package espnow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sensorWrite struct {
	mac, entityID, path string
	value               any
}

type eventWrite struct {
	mac, eventType string
	data           map[string]any
}

type fakeHistory struct {
	sensors []sensorWrite
	events  []eventWrite
}

func (f *fakeHistory) WriteSensorValue(mac, entityID, path string, value any) {
	f.sensors = append(f.sensors, sensorWrite{mac, entityID, path, value})
}

func (f *fakeHistory) WriteEvent(mac, eventType string, data map[string]any) {
	f.events = append(f.events, eventWrite{mac, eventType, data})
}

func TestHistorySink(t *testing.T) {
	te := newTestEngine(t)
	history := &fakeHistory{}
	sink := NewHistorySink(history)
	te.sensors.sinks = append(te.sensors.sinks, sink)
	te.events.sinks = append(te.events.sinks, sink)

	te.feed(t,
		`{"MAC":"AA","name":"Hall","$temp":{}}`,
		`{"MAC":"AA","temp":20.5,"@press":{"n":2}}`,
	)

	require.Len(t, history.sensors, 1, "discovery without a value is not recorded")
	assert.Equal(t, sensorWrite{"AA", "sensor.esp_now_aa_hall_temp", "temp", 20.5}, history.sensors[0])

	require.Len(t, history.events, 1)
	assert.Equal(t, "AA", history.events[0].mac)
	assert.Equal(t, "press", history.events[0].eventType)
	assert.Equal(t, int64(2), history.events[0].data["n"])
}
