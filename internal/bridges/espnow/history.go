package espnow

// HistoryWriter records sensor values and events as time series.
// Satisfied by *influxdb.Client.
type HistoryWriter interface {
	WriteSensorValue(mac, entityID, path string, value any)
	WriteEvent(mac, eventType string, data map[string]any)
}

// HistorySink forwards state changes and events to a HistoryWriter.
type HistorySink struct {
	writer HistoryWriter
}

// NewHistorySink returns a sink writing to w.
func NewHistorySink(w HistoryWriter) *HistorySink {
	return &HistorySink{writer: w}
}

// SensorDiscovered implements StateSink. Discovery carries no value.
func (h *HistorySink) SensorDiscovered(SensorUpdate) {}

// StateChanged implements StateSink.
func (h *HistorySink) StateChanged(u SensorUpdate) {
	if u.Sensor.State == nil {
		return
	}
	h.writer.WriteSensorValue(u.MAC, u.Sensor.EntityID, u.Sensor.Path, u.Sensor.State)
}

// EventFired implements EventSink.
func (h *HistorySink) EventFired(ev Event) {
	h.writer.WriteEvent(ev.MAC, ev.Type(), ev.Data)
}
