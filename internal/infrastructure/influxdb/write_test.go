package influxdb

import (
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/espnow-bridge/internal/infrastructure/config"
)

var testTime = time.Unix(1_700_000_000, 0)

func lineOf(p *write.Point) string {
	return write.PointToLineProtocol(p, time.Second)
}

func TestSensorPoint_FieldByKind(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"float", 21.5, "value=21.5"},
		{"int", 3, "value=3"},
		{"bool", true, "state=true"},
		{"string", "idle", `text="idle"`},
		{"array", []any{1.0, 2.0}, `text="[1,2]"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := lineOf(sensorPoint("aa:bb", "sensor.esp_now_x", "temp", tt.value, testTime))
			assert.Contains(t, line, "sensor_values,")
			assert.Contains(t, line, "entity_id=sensor.esp_now_x")
			assert.Contains(t, line, "path=temp")
			assert.Contains(t, line, tt.want)
		})
	}
}

func TestEventPoint(t *testing.T) {
	line := lineOf(eventPoint("aa:bb", "button", map[string]any{"force": 3.0, "nested": map[string]any{"a": 1}}, testTime))

	assert.Contains(t, line, "node_events,")
	assert.Contains(t, line, "event_type=button")
	assert.Contains(t, line, "force=3")
	assert.Contains(t, line, "count=1i")
}

func TestEventPoint_NoData(t *testing.T) {
	line := lineOf(eventPoint("aa:bb", "ping", nil, testTime))
	assert.Contains(t, line, "count=1i")
}

func TestBatchSettings(t *testing.T) {
	size, interval := batchSettings(config.InfluxDBConfig{BatchSize: -5, FlushInterval: 0})
	assert.Equal(t, defaultBatchSize, size)
	assert.Equal(t, defaultFlushInterval, interval)

	size, interval = batchSettings(config.InfluxDBConfig{BatchSize: 50, FlushInterval: 2})
	assert.Equal(t, 50, size)
	assert.Equal(t, 2, interval)
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestDisconnectedClient_IsNoop(t *testing.T) {
	c := &Client{}
	assert.False(t, c.IsConnected())
	assert.NotPanics(t, func() {
		c.WriteSensorValue("aa", "e", "p", 1.0)
		c.WriteEvent("aa", "button", nil)
		c.Flush()
	})
	assert.NoError(t, c.Close())
}
