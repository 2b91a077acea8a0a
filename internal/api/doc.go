// Package api implements the HTTP API and WebSocket event stream of the
// ESP-NOW bridge.
//
// This package provides:
//   - Read-only REST endpoints for nodes, sensors and device triggers
//   - A recent-events log rendered with logbook messages
//   - A WebSocket hub relaying sensor state and node events
//   - The Prometheus /metrics endpoint
//   - Middleware stack (request ID, logging, recovery)
//
// The hub and event log are fed directly by the bridge as state and event
// sinks; nothing is relayed through MQTT.
package api
