// Package espnow implements the ESP-NOW serial bridge.
//
// Battery powered ESP-NOW sensor nodes report to a gateway that forwards
// every received packet as one JSON object per line on a serial port. The
// nodes never declare a schema up front; instead each key of a frame carries
// a one-character sigil selecting how its value is treated:
//
//	{"MAC": "aa:bb:cc:dd:ee:ff", "name": "Kitchen", "temp": 21.5,
//	 "door": {"$": {"t": 1}, "open": true},
//	 "^click": {"t": "button", "s": "single"},
//	 "@click": null}
//
//	plain key, object value   nested group, walked recursively
//	plain key, scalar value   sensor value for an existing sensor
//	"$" key                   sensor configuration (creates the sensor)
//	"^" key                   device trigger definition
//	"@" key                   event, fired after the whole frame is walked
//
// Path segments are joined with a single space, so "door" then "open"
// addresses the sensor "door open". The string "not_found" as a plain key or
// a scalar sensor value is a no-update sentinel.
//
// # Architecture
//
//	serial port ──► SerialTransport ──► Bridge.run ──► Engine.HandleLine
//	                                                     │
//	                      ┌──────────────────────────────┼──────────────────┐
//	                      ▼                              ▼                  ▼
//	              EntityRegistry                  TriggerTable       EventDispatcher
//	              (sensors, StateSink)          (trigger store)      (EventSink)
//
// The Engine processes exactly one line at a time on the bridge goroutine.
// Sensor state is pushed to every StateSink synchronously with the frame
// that produced it; fired events go to every EventSink in frame order.
// Trigger and event bindings are persisted through a SnapshotStore whose
// saves are debounced.
//
// Downstream collaborators:
//   - Publisher: MQTT state, events and Home Assistant discovery
//   - TriggerBus: in-process device trigger attachment
//   - Metrics: Prometheus counters and gauges
//
// # Thread Safety
//
// The Engine itself is driven by a single goroutine. NodeRegistry and Node
// read accessors are safe for concurrent use by API handlers.
package espnow
