package espnow

import "time"

// Logger is the logging surface used by the bridge.
// Satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SensorUpdate is a sensor together with the identity of its node.
type SensorUpdate struct {
	MAC        string `json:"mac"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Sensor     Sensor `json:"sensor"`
}

func newSensorUpdate(n *Node, s *Sensor) SensorUpdate {
	return SensorUpdate{
		MAC:        n.mac,
		DeviceID:   n.deviceID,
		DeviceName: n.name,
		Sensor:     *s,
	}
}

// StateSink receives sensor discoveries and state changes. Calls happen on
// the ingest goroutine, synchronously with the frame that caused them, and
// must not block.
type StateSink interface {
	SensorDiscovered(u SensorUpdate)
	StateChanged(u SensorUpdate)
}

// EventSink receives fired events in frame order on the ingest goroutine.
type EventSink interface {
	EventFired(ev Event)
}

// StateSinkFuncs adapts plain functions to StateSink. Nil fields are skipped.
type StateSinkFuncs struct {
	OnDiscovered func(SensorUpdate)
	OnChanged    func(SensorUpdate)
}

// SensorDiscovered implements StateSink.
func (f StateSinkFuncs) SensorDiscovered(u SensorUpdate) {
	if f.OnDiscovered != nil {
		f.OnDiscovered(u)
	}
}

// StateChanged implements StateSink.
func (f StateSinkFuncs) StateChanged(u SensorUpdate) {
	if f.OnChanged != nil {
		f.OnChanged(u)
	}
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// EventFired implements EventSink.
func (f EventSinkFunc) EventFired(ev Event) { f(ev) }

// timestamp formats t for outbound payloads.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
