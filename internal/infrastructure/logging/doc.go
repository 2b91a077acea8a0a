// Package logging provides structured logging for the ESP-NOW bridge.
//
// It wraps log/slog so every component logs with the same handler, level
// and default attributes (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file: "/var/log/espnow-bridge.log"
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	serialLog := logger.Component("serial")
//	serialLog.Info("port opened", "port", "/dev/ttyUSB0")
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
